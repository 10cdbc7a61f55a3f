// Package pipeline sequences the external jobs behind each command verb.
// Every sequence is fail-fast: the first failing step aborts the rest and
// its exit code becomes the process exit code.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/unosaa/datapipe/internal/config"
	"github.com/unosaa/datapipe/internal/domain"
	"github.com/unosaa/datapipe/internal/errs"
	"github.com/unosaa/datapipe/internal/executor"
	"github.com/unosaa/datapipe/internal/notify"
)

// Output formats for ConfigTest.
const (
	ConfigFormatTable = "table"
	ConfigFormatYAML  = "yaml"
)

// JobRunner runs a single external job to completion.
type JobRunner interface {
	Run(ctx context.Context, job executor.Job) error
}

// StateSync moves the state database between local disk and the bucket.
type StateSync interface {
	Download(ctx context.Context) error
	Upload(ctx context.Context) error
}

// Promoter copies pipeline data between S3 environments.
type Promoter interface {
	Run(ctx context.Context) (int, error)
}

// BucketLister verifies credentials by listing visible buckets.
type BucketLister interface {
	ListBuckets(ctx context.Context) ([]string, error)
}

// Recorder persists run outcomes to the ledger.
type Recorder interface {
	StartRun(run *domain.Run) error
	FinishRun(run *domain.Run) error
}

// MetricsPusher publishes run outcomes to a metrics backend.
type MetricsPusher interface {
	PushRun(run *domain.Run) error
}

// Options carries the collaborators a Runner sequences. Jobs is required
// for the job-running commands; the rest may be nil when the matching
// feature is not configured.
type Options struct {
	Jobs     JobRunner
	Sync     StateSync
	Promoter Promoter
	Buckets  BucketLister
	Recorder Recorder
	Metrics  MetricsPusher
	Notifier notify.Notifier
	Out      io.Writer
}

// Runner executes pipeline commands against a fixed run configuration.
type Runner struct {
	cfg      config.Config
	jobs     JobRunner
	sync     StateSync
	promoter Promoter
	buckets  BucketLister
	recorder Recorder
	metrics  MetricsPusher
	notifier notify.Notifier
	out      io.Writer
	log      *zap.Logger
}

// New assembles a Runner.
func New(cfg config.Config, opts Options, log *zap.Logger) *Runner {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &Runner{
		cfg:      cfg,
		jobs:     opts.Jobs,
		sync:     opts.Sync,
		promoter: opts.Promoter,
		buckets:  opts.Buckets,
		recorder: opts.Recorder,
		metrics:  opts.Metrics,
		notifier: notifier,
		out:      out,
		log:      log,
	}
}

// Execute dispatches one command. Job-running commands are recorded in
// the run ledger and pushed to metrics when those collaborators are
// wired; failures additionally raise a notification.
func (r *Runner) Execute(ctx context.Context, cmd domain.Command) error {
	if !cmd.Recorded() {
		return r.dispatch(ctx, cmd)
	}

	run := &domain.Run{
		ID:        uuid.NewString(),
		Command:   cmd,
		Target:    r.cfg.Target,
		Status:    domain.RunRunning,
		StartedAt: time.Now(),
	}
	if r.recorder != nil {
		if err := r.recorder.StartRun(run); err != nil {
			r.log.Warn("recording run start failed", zap.Error(err))
		}
	}

	err := r.dispatch(ctx, cmd)

	finished := time.Now()
	run.FinishedAt = &finished
	if err != nil {
		run.Status = domain.RunFailed
		run.ExitCode = errs.ExitCode(err)
		run.Error = err.Error()
	} else {
		run.Status = domain.RunSucceeded
	}

	if r.recorder != nil {
		if rerr := r.recorder.FinishRun(run); rerr != nil {
			r.log.Warn("recording run outcome failed", zap.Error(rerr))
		}
	}
	if r.metrics != nil {
		if perr := r.metrics.PushRun(run); perr != nil {
			r.log.Warn("pushing run metrics failed", zap.Error(perr))
		}
	}
	if err != nil {
		r.notifyFailure(run)
	}
	return err
}

func (r *Runner) dispatch(ctx context.Context, cmd domain.Command) error {
	switch cmd {
	case domain.CommandIngest:
		return r.Ingest(ctx)
	case domain.CommandTransform:
		return r.Transform(ctx)
	case domain.CommandTransformDryRun:
		return r.TransformDryRun(ctx)
	case domain.CommandUI:
		return r.UI(ctx)
	case domain.CommandETL:
		return r.ETL(ctx)
	case domain.CommandPromote:
		return r.Promote(ctx)
	case domain.CommandConfigTest:
		return r.ConfigTest(ConfigFormatTable)
	case domain.CommandEnvTest:
		return r.EnvTest(ctx)
	case domain.CommandDebugAWS:
		return r.DebugAWS()
	default:
		return errs.Usagef("unknown command %q", string(cmd))
	}
}

// Ingest runs the ingestion job with the ambient environment. When
// RAW_DATA_DIR is not configured it stays unset for the child.
func (r *Runner) Ingest(ctx context.Context) error {
	return r.jobs.Run(ctx, IngestJob(nil))
}

// Transform runs the SQLMesh plan against the configured target.
func (r *Runner) Transform(ctx context.Context) error {
	return r.jobs.Run(ctx, TransformJob(r.cfg))
}

// TransformDryRun runs ingest and transform with dry-run environment so
// nothing is uploaded. SKIP_SQLMESH drops the transform step.
func (r *Runner) TransformDryRun(ctx context.Context) error {
	env := []string{
		"DRY_RUN_FLG=true",
		"RAW_DATA_DIR=" + r.cfg.DryRunRawDataDir(),
	}

	ingest := IngestJob(env)
	if err := r.jobs.Run(ctx, ingest); err != nil {
		return err
	}

	if r.cfg.SkipSQLMesh {
		r.log.Info("transform step skipped", zap.String("reason", "SKIP_SQLMESH=true"))
		return nil
	}

	transform := TransformJob(r.cfg)
	transform.Env = env
	return r.jobs.Run(ctx, transform)
}

// UI starts the SQLMesh browser UI and blocks until it exits.
func (r *Runner) UI(ctx context.Context) error {
	return r.jobs.Run(ctx, UIJob(r.cfg))
}

// ETL runs the full pipeline: pull remote state, ingest, transform, then
// decide whether to push state back. A failing step aborts everything
// after it.
func (r *Runner) ETL(ctx context.Context) error {
	if r.sync == nil {
		return fmt.Errorf("state sync is not configured")
	}
	if err := r.sync.Download(ctx); err != nil {
		return err
	}
	if err := r.jobs.Run(ctx, IngestJob(nil)); err != nil {
		return err
	}
	if err := r.jobs.Run(ctx, TransformJob(r.cfg)); err != nil {
		return err
	}
	return r.finishETL(ctx)
}

// finishETL is the upload decision taken after a successful transform.
// Skipping is an explicit outcome here, never an accident: dry runs and
// non-shared targets keep their state local.
func (r *Runner) finishETL(ctx context.Context) error {
	switch {
	case r.cfg.DryRun:
		r.log.Info("dry run, keeping state database local")
		return nil
	case !r.cfg.UploadAllowed():
		r.log.Warn("state upload is restricted to prod and qa targets, keeping state database local",
			zap.String("target", r.cfg.Target))
		return nil
	default:
		return r.sync.Upload(ctx)
	}
}

// Promote copies landing and staging data from the dev environment to
// prod.
func (r *Runner) Promote(ctx context.Context) error {
	if r.promoter == nil {
		return fmt.Errorf("promotion is not configured")
	}
	_, err := r.promoter.Run(ctx)
	return err
}

// ConfigTest prints the resolved run configuration, defaults applied and
// secrets masked, then validates it. Printing happens first so operators
// see the resolved values even when validation rejects them.
func (r *Runner) ConfigTest(format string) error {
	switch format {
	case ConfigFormatTable:
		w := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
		for _, item := range r.cfg.Items() {
			fmt.Fprintf(w, "%s\t%s\n", item.Name, item.Value)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	case ConfigFormatYAML:
		data, err := yaml.Marshal(r.cfg.Masked())
		if err != nil {
			return err
		}
		if _, err := r.out.Write(data); err != nil {
			return err
		}
	default:
		return errs.Usagef("unknown config format %q", format)
	}
	return r.cfg.Validate()
}

// EnvTest verifies the cloud credentials by listing visible buckets.
func (r *Runner) EnvTest(ctx context.Context) error {
	if r.buckets == nil {
		return fmt.Errorf("object store is not configured")
	}
	names, err := r.buckets.ListBuckets(ctx)
	if err != nil {
		return &errs.RemoteUnavailable{Op: "list buckets", Err: err}
	}
	fmt.Fprintf(r.out, "credentials accepted, %d bucket(s) visible\n", len(names))
	for _, name := range names {
		fmt.Fprintf(r.out, "  %s\n", name)
	}
	return nil
}

// DebugAWS prints the recognized cloud-credential variables, masked.
func (r *Runner) DebugAWS() error {
	w := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	for _, item := range r.cfg.CredentialItems() {
		fmt.Fprintf(w, "%s\t%s\n", item.Name, item.Value)
	}
	return w.Flush()
}

func (r *Runner) notifyFailure(run *domain.Run) {
	n := notify.Notification{
		Title:   fmt.Sprintf("%s failed on %s", run.Command, run.Target),
		Message: run.Error,
		Type:    notify.NotifyError,
		Command: string(run.Command),
		Target:  run.Target,
	}
	if err := r.notifier.Send(n); err != nil {
		r.log.Warn("sending failure notification failed", zap.Error(err))
	}
}
