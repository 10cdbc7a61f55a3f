// Package executor runs the external pipeline jobs (ingest, SQLMesh) in the
// foreground. Job output is passed through unmodified so operators see
// exactly what the job printed; the orchestrator adds nothing to it.
package executor

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/unosaa/datapipe/internal/errs"
)

// Exit codes reported when the job could not be started at all, following
// the shell conventions for missing and unrunnable commands.
const (
	exitNotFound   = 127
	exitCannotExec = 126
)

// Job describes a single external process invocation.
type Job struct {
	// Name identifies the pipeline step in errors and logs.
	Name string
	Path string
	Args []string
	// Dir is the working directory; empty means inherit.
	Dir string
	// Env entries are appended to the inherited environment.
	Env []string
}

// Executor starts jobs and waits for them. The zero writers default to the
// process's own stdout and stderr.
type Executor struct {
	Stdout io.Writer
	Stderr io.Writer

	log *zap.Logger
}

// New returns an Executor wired to the process streams.
func New(log *zap.Logger) *Executor {
	return &Executor{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		log:    log,
	}
}

// Run starts the job and waits for it to finish. A non-zero exit comes back
// as *errs.ExternalJobFailure carrying the job's own exit code. Cancelling
// the context sends SIGTERM and, after a grace period, SIGKILL.
func (e *Executor) Run(ctx context.Context, job Job) error {
	cmd := exec.CommandContext(ctx, job.Path, job.Args...)
	cmd.Dir = job.Dir
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr
	if len(job.Env) > 0 {
		cmd.Env = append(os.Environ(), job.Env...)
	}
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 10 * time.Second

	e.log.Info("starting job",
		zap.String("step", job.Name),
		zap.String("command", job.Path+" "+strings.Join(job.Args, " ")),
		zap.String("dir", job.Dir),
	)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		code := exitCannotExec
		if errors.Is(err, exec.ErrNotFound) {
			code = exitNotFound
		}
		e.log.Error("job could not start",
			zap.String("step", job.Name),
			zap.Error(err),
		)
		return &errs.ExternalJobFailure{Step: job.Name, ExitCode: code, Err: err}
	}

	err := cmd.Wait()
	elapsed := time.Since(start)
	if err != nil {
		code := cmd.ProcessState.ExitCode()
		e.log.Error("job failed",
			zap.String("step", job.Name),
			zap.Int("exit_code", code),
			zap.Duration("elapsed", elapsed),
		)
		return &errs.ExternalJobFailure{Step: job.Name, ExitCode: code, Err: err}
	}

	e.log.Info("job finished",
		zap.String("step", job.Name),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}
