package executor

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/unosaa/datapipe/internal/errs"
)

func newTestExecutor() (*Executor, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	ex := New(zap.NewNop())
	ex.Stdout = &stdout
	ex.Stderr = &stderr
	return ex, &stdout, &stderr
}

func requireSh(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test requires sh")
	}
}

func TestRun_Success(t *testing.T) {
	requireSh(t)
	ex, stdout, _ := newTestExecutor()

	err := ex.Run(context.Background(), Job{
		Name: "ingest",
		Path: "sh",
		Args: []string{"-c", "echo hello"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := stdout.String(); got != "hello\n" {
		t.Errorf("stdout = %q, want passthrough %q", got, "hello\n")
	}
}

func TestRun_ExitCodePropagated(t *testing.T) {
	requireSh(t)
	ex, _, _ := newTestExecutor()

	err := ex.Run(context.Background(), Job{
		Name: "transform",
		Path: "sh",
		Args: []string{"-c", "exit 3"},
	})

	var jf *errs.ExternalJobFailure
	if !errors.As(err, &jf) {
		t.Fatalf("Run error = %v, want ExternalJobFailure", err)
	}
	if jf.Step != "transform" {
		t.Errorf("Step = %q, want transform", jf.Step)
	}
	if jf.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", jf.ExitCode)
	}
	if errs.ExitCode(err) != 3 {
		t.Errorf("errs.ExitCode = %d, want 3", errs.ExitCode(err))
	}
}

func TestRun_StderrPassthrough(t *testing.T) {
	requireSh(t)
	ex, stdout, stderr := newTestExecutor()

	err := ex.Run(context.Background(), Job{
		Name: "ingest",
		Path: "sh",
		Args: []string{"-c", "echo oops >&2; exit 2"},
	})
	if errs.ExitCode(err) != 2 {
		t.Fatalf("exit code = %d, want 2", errs.ExitCode(err))
	}
	if got := stderr.String(); got != "oops\n" {
		t.Errorf("stderr = %q, want %q", got, "oops\n")
	}
	if stdout.Len() != 0 {
		t.Errorf("stdout = %q, want empty", stdout.String())
	}
}

func TestRun_EnvOverlay(t *testing.T) {
	requireSh(t)
	ex, stdout, _ := newTestExecutor()

	err := ex.Run(context.Background(), Job{
		Name: "ingest",
		Path: "sh",
		Args: []string{"-c", "printf '%s' \"$DRY_RUN_FLG\""},
		Env:  []string{"DRY_RUN_FLG=true"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := stdout.String(); got != "true" {
		t.Errorf("stdout = %q, want overlay value %q", got, "true")
	}
}

func TestRun_WorkingDirectory(t *testing.T) {
	requireSh(t)
	dir := t.TempDir()
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}

	ex, stdout, _ := newTestExecutor()
	if err := ex.Run(context.Background(), Job{
		Name: "transform",
		Path: "sh",
		Args: []string{"-c", "pwd"},
		Dir:  dir,
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.TrimSpace(stdout.String()); got != resolved {
		t.Errorf("pwd = %q, want %q", got, resolved)
	}
}

func TestRun_CommandNotFound(t *testing.T) {
	ex, _, _ := newTestExecutor()

	err := ex.Run(context.Background(), Job{
		Name: "ingest",
		Path: "datapipe-no-such-binary",
	})

	var jf *errs.ExternalJobFailure
	if !errors.As(err, &jf) {
		t.Fatalf("Run error = %v, want ExternalJobFailure", err)
	}
	if jf.ExitCode != exitNotFound {
		t.Errorf("ExitCode = %d, want %d", jf.ExitCode, exitNotFound)
	}
}

func TestRun_ContextCancel(t *testing.T) {
	requireSh(t)
	ex, _, _ := newTestExecutor()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ex.Run(ctx, Job{
			Name: "ui",
			Path: "sh",
			Args: []string{"-c", "sleep 30"},
		})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Run should fail when its context is cancelled")
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
