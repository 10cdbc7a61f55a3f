// Package runstore keeps the run ledger in a local SQLite database so
// every pipeline invocation leaves an inspectable trail.
package runstore

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/unosaa/datapipe/internal/domain"
)

// Store provides SQLite-backed run persistence.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the run database at the given path.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun records the beginning of a run.
func (s *Store) StartRun(run *domain.Run) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, command, target, status, exit_code, error, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		string(run.Command),
		run.Target,
		string(run.Status),
		run.ExitCode,
		nullString(run.Error),
		run.StartedAt,
	)
	return err
}

// FinishRun records the outcome of a previously started run.
func (s *Store) FinishRun(run *domain.Run) error {
	_, err := s.db.Exec(`
		UPDATE runs SET status = ?, exit_code = ?, error = ?, finished_at = ?
		WHERE id = ?
	`,
		string(run.Status),
		run.ExitCode,
		nullString(run.Error),
		run.FinishedAt,
		run.ID,
	)
	return err
}

// GetRun retrieves a run by ID, or nil when no such run exists.
func (s *Store) GetRun(id string) (*domain.Run, error) {
	row := s.db.QueryRow(`
		SELECT id, command, target, status, exit_code, error, started_at, finished_at
		FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// ListOptions specifies filters for listing runs.
type ListOptions struct {
	Command domain.Command
	Status  domain.RunStatus
	Limit   int
}

// ListRuns returns runs matching the given options, most recent first.
func (s *Store) ListRuns(opts ListOptions) ([]*domain.Run, error) {
	query := `SELECT id, command, target, status, exit_code, error, started_at, finished_at FROM runs WHERE 1=1`
	var args []interface{}

	if opts.Command != "" {
		query += " AND command = ?"
		args = append(args, string(opts.Command))
	}
	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}

	query += " ORDER BY started_at DESC"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// LastRun returns the most recent run of a command, or nil when the
// command has never run.
func (s *Store) LastRun(cmd domain.Command) (*domain.Run, error) {
	runs, err := s.ListRuns(ListOptions{Command: cmd, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return runs[0], nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*domain.Run, error) {
	var run domain.Run
	var command, status string
	var errMsg sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(&run.ID, &command, &run.Target, &status, &run.ExitCode, &errMsg, &run.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	run.Command = domain.Command(command)
	run.Status = domain.RunStatus(status)
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}

	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
