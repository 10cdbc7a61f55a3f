package domain

import "time"

// RunStatus represents the execution state of a recorded run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run is a single execution of a pipeline command.
type Run struct {
	ID         string
	Command    Command
	Target     string
	Status     RunStatus
	ExitCode   int
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Duration returns the run's wall time, zero while it is still running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
