// Package domain holds the shared pipeline types: the closed command set
// and the run records the ledger persists.
package domain

import (
	"github.com/unosaa/datapipe/internal/errs"
)

// Command is one of the pipeline verbs. The set is closed: anything not
// listed here is a usage error before any external call happens.
type Command string

const (
	CommandIngest          Command = "ingest"
	CommandTransform       Command = "transform"
	CommandTransformDryRun Command = "transform_dry_run"
	CommandUI              Command = "ui"
	CommandETL             Command = "etl"
	CommandPromote         Command = "promote"
	CommandConfigTest      Command = "config_test"
	CommandEnvTest         Command = "env-test"
	CommandDebugAWS        Command = "debug-aws"
)

// Commands returns the closed command set in documentation order.
func Commands() []Command {
	return []Command{
		CommandIngest,
		CommandTransform,
		CommandTransformDryRun,
		CommandUI,
		CommandETL,
		CommandPromote,
		CommandConfigTest,
		CommandEnvTest,
		CommandDebugAWS,
	}
}

// ParseCommand maps a CLI verb onto the closed command set.
func ParseCommand(s string) (Command, error) {
	for _, c := range Commands() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", errs.Usagef("unknown command %q", s)
}

func (c Command) String() string { return string(c) }

// Schedulable reports whether the command may appear in a batch schedule.
// Interactive and diagnostic verbs cannot be scheduled.
func (c Command) Schedulable() bool {
	switch c {
	case CommandIngest, CommandTransform, CommandTransformDryRun, CommandETL, CommandPromote:
		return true
	}
	return false
}

// Recorded reports whether runs of the command are written to the ledger.
// Diagnostic verbs and the long-running UI server are not.
func (c Command) Recorded() bool {
	switch c {
	case CommandIngest, CommandTransform, CommandTransformDryRun, CommandETL, CommandPromote:
		return true
	}
	return false
}
