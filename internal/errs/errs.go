// Package errs defines the error taxonomy shared by the command router:
// usage errors, configuration errors, external job failures, and remote
// storage failures. The router never retries or reinterprets these; they
// carry exactly what the process exit code and logs need.
package errs

import (
	"errors"
	"fmt"
)

// UsageError reports a bad or unknown command-line invocation.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// Usagef builds a UsageError from a format string.
func Usagef(format string, args ...any) *UsageError {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

// ConfigError reports an invalid run configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "invalid configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// ExternalJobFailure reports a non-zero exit from an invoked job. The exit
// code is propagated verbatim to the process exit.
type ExternalJobFailure struct {
	Step     string
	ExitCode int
	Err      error
}

func (e *ExternalJobFailure) Error() string {
	return fmt.Sprintf("%s job failed with exit code %d", e.Step, e.ExitCode)
}

func (e *ExternalJobFailure) Unwrap() error {
	return e.Err
}

// RemoteUnavailable reports that object storage could not be reached or
// rejected the configured credentials.
type RemoteUnavailable struct {
	Op  string
	Err error
}

func (e *RemoteUnavailable) Error() string {
	return fmt.Sprintf("remote storage unavailable during %s: %v", e.Op, e.Err)
}

func (e *RemoteUnavailable) Unwrap() error {
	return e.Err
}

// ExitCode maps an error to the process exit code. External job failures
// surface their own exit code; every other failure exits 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var job *ExternalJobFailure
	if errors.As(err, &job) && job.ExitCode > 0 {
		return job.ExitCode
	}
	return 1
}
