// Package statesync moves the SQLMesh state database between the local
// filesystem and the shared S3 bucket.
package statesync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/unosaa/datapipe/internal/errs"
)

// Store is the subset of the object store state sync needs.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Download(ctx context.Context, key, path string) error
	Upload(ctx context.Context, key, path string) error
}

// Syncer copies the state database between its local path and its S3 key.
type Syncer struct {
	store Store
	key   string
	path  string
	log   *zap.Logger
}

// New returns a Syncer for the given object key and local file path.
func New(store Store, key, path string, log *zap.Logger) *Syncer {
	return &Syncer{store: store, key: key, path: path, log: log}
}

// Download brings the remote state database to the local path. When no
// remote copy exists yet, an empty placeholder is created so SQLMesh
// starts from fresh state. Remote failures other than absence are
// reported as RemoteUnavailable.
func (s *Syncer) Download(ctx context.Context) error {
	exists, err := s.store.Exists(ctx, s.key)
	if err != nil {
		return &errs.RemoteUnavailable{Op: "stat " + s.key, Err: err}
	}
	if !exists {
		s.log.Info("no remote state database, starting fresh", zap.String("key", s.key))
		return touch(s.path)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	if err := s.store.Download(ctx, s.key, s.path); err != nil {
		return &errs.RemoteUnavailable{Op: "download " + s.key, Err: err}
	}
	s.log.Info("downloaded state database",
		zap.String("key", s.key),
		zap.String("path", s.path))
	return nil
}

// Upload pushes the local state database to S3, overwriting whatever the
// remote key held before.
func (s *Syncer) Upload(ctx context.Context) error {
	if _, err := os.Stat(s.path); err != nil {
		return fmt.Errorf("local state database: %w", err)
	}
	if err := s.store.Upload(ctx, s.key, s.path); err != nil {
		return &errs.RemoteUnavailable{Op: "upload " + s.key, Err: err}
	}
	s.log.Info("uploaded state database",
		zap.String("key", s.key),
		zap.String("path", s.path))
	return nil
}

// touch creates the file if it is absent and leaves existing content
// alone.
func touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create state placeholder: %w", err)
	}
	return f.Close()
}
