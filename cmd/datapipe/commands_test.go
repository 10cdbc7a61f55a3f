package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/unosaa/datapipe/internal/batch"
	"github.com/unosaa/datapipe/internal/domain"
	"github.com/unosaa/datapipe/internal/errs"
	"github.com/unosaa/datapipe/internal/runstore"
)

func TestUnknownCommand(t *testing.T) {
	var stderr bytes.Buffer
	rootCmd.SetOut(&stderr)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"frobnicate"})

	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("Unknown command should error")
	}

	var usageErr *errs.UsageError
	if !errors.As(err, &usageErr) {
		t.Errorf("error = %T, want *errs.UsageError", err)
	}
	if code := errs.ExitCode(err); code != 1 {
		t.Errorf("ExitCode = %d, want 1", code)
	}
	if !strings.Contains(err.Error(), "frobnicate") {
		t.Errorf("error %q should name the unknown command", err)
	}
	if !strings.Contains(stderr.String(), "Usage:") {
		t.Error("Unknown command should print usage")
	}
}

func TestMissingCommand(t *testing.T) {
	var stderr bytes.Buffer
	rootCmd.SetOut(&stderr)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{})

	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("Missing command should error")
	}

	var usageErr *errs.UsageError
	if !errors.As(err, &usageErr) {
		t.Errorf("error = %T, want *errs.UsageError", err)
	}
	if !strings.Contains(stderr.String(), "Usage:") {
		t.Error("Missing command should print usage")
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	verbs := []string{
		"ingest",
		"transform",
		"transform_dry_run",
		"ui",
		"etl",
		"promote",
		"config_test",
		"env-test",
		"debug-aws",
		"schedule",
		"history",
		"dash",
	}

	for _, verb := range verbs {
		cmd, _, err := rootCmd.Find([]string{verb})
		if err != nil {
			t.Errorf("Find(%q) error = %v", verb, err)
			continue
		}
		if cmd.Name() != verb {
			t.Errorf("Find(%q) resolved to %q", verb, cmd.Name())
		}
	}
}

func TestNeedsObjectStore(t *testing.T) {
	tests := []struct {
		command domain.Command
		want    bool
	}{
		{domain.CommandIngest, false},
		{domain.CommandTransform, false},
		{domain.CommandTransformDryRun, false},
		{domain.CommandUI, false},
		{domain.CommandConfigTest, false},
		{domain.CommandDebugAWS, false},
		{domain.CommandETL, true},
		{domain.CommandPromote, true},
		{domain.CommandEnvTest, true},
	}

	for _, tt := range tests {
		if got := needsObjectStore(tt.command); got != tt.want {
			t.Errorf("needsObjectStore(%s) = %v, want %v", tt.command, got, tt.want)
		}
	}
}

func TestSeedScheduler(t *testing.T) {
	store, err := runstore.New(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	finished := time.Now().Add(-10 * time.Minute)
	run := &domain.Run{
		ID:        "run-1",
		Command:   domain.CommandETL,
		Target:    "dev",
		Status:    domain.RunRunning,
		StartedAt: finished.Add(-5 * time.Minute),
	}
	if err := store.StartRun(run); err != nil {
		t.Fatal(err)
	}
	run.Status = domain.RunSucceeded
	run.FinishedAt = &finished
	if err := store.FinishRun(run); err != nil {
		t.Fatal(err)
	}

	jobs := []batch.JobConfig{
		{Name: "nightly-etl", Command: "etl", Cron: "0 22 * * *"},
		{Name: "never-ran", Command: "transform", Cron: "0 6 * * *"},
	}
	sched, err := batch.NewScheduler(jobs, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	if err := seedScheduler(sched, store, jobs); err != nil {
		t.Errorf("seedScheduler() error = %v", err)
	}

	bad := []batch.JobConfig{{Name: "broken", Command: "bogus", Cron: "0 22 * * *"}}
	if err := seedScheduler(sched, store, bad); err == nil {
		t.Error("Unknown command in schedule should error")
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("0a1b2c3d-4e5f-6071-8293-a4b5c6d7e8f9"); got != "0a1b2c3d" {
		t.Errorf("shortID = %q, want %q", got, "0a1b2c3d")
	}
	if got := shortID("short"); got != "short" {
		t.Errorf("shortID = %q, want %q", got, "short")
	}
}
