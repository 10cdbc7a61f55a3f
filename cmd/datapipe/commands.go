package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unosaa/datapipe/internal/batch"
	"github.com/unosaa/datapipe/internal/config"
	"github.com/unosaa/datapipe/internal/domain"
	"github.com/unosaa/datapipe/internal/executor"
	"github.com/unosaa/datapipe/internal/logging"
	"github.com/unosaa/datapipe/internal/metrics"
	"github.com/unosaa/datapipe/internal/notify"
	"github.com/unosaa/datapipe/internal/objectstore"
	"github.com/unosaa/datapipe/internal/observer"
	"github.com/unosaa/datapipe/internal/pipeline"
	"github.com/unosaa/datapipe/internal/promote"
	"github.com/unosaa/datapipe/internal/runstore"
	"github.com/unosaa/datapipe/internal/statesync"
	"github.com/unosaa/datapipe/tui"
	"github.com/unosaa/datapipe/web/api"
)

var (
	configFormat   string
	watchRawData   bool
	schedulePath   string
	scheduleListen string
	historyLimit   int
	historyCommand string
	dashLimit      int
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "ingest",
		Short: "Run the external data ingestion job",
		Args:  cobra.NoArgs,
		RunE:  runPipeline(domain.CommandIngest),
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "transform",
		Short: "Run the SQLMesh transform job",
		Args:  cobra.NoArgs,
		RunE:  runPipeline(domain.CommandTransform),
	})

	dryRunCmd := &cobra.Command{
		Use:   "transform_dry_run",
		Short: "Run ingest then transform against local state only",
		Args:  cobra.NoArgs,
		RunE:  runTransformDryRun,
	}
	dryRunCmd.Flags().BoolVar(&watchRawData, "watch", false, "rerun the dry run when raw data files change")
	rootCmd.AddCommand(dryRunCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "ui",
		Short: "Serve the SQLMesh browser UI",
		Args:  cobra.NoArgs,
		RunE:  runPipeline(domain.CommandUI),
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "etl",
		Short: "Download state, run ingest and transform, upload state",
		Args:  cobra.NoArgs,
		RunE:  runPipeline(domain.CommandETL),
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "promote",
		Short: "Copy pipeline artifacts from the current environment to prod",
		Args:  cobra.NoArgs,
		RunE:  runPipeline(domain.CommandPromote),
	})

	configTestCmd := &cobra.Command{
		Use:   "config_test",
		Short: "Print the resolved run configuration and validate it",
		Args:  cobra.NoArgs,
		RunE:  runConfigTest,
	}
	configTestCmd.Flags().StringVar(&configFormat, "format", pipeline.ConfigFormatTable, "output format: table or yaml")
	rootCmd.AddCommand(configTestCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "env-test",
		Short: "Check object storage connectivity and list buckets",
		Args:  cobra.NoArgs,
		RunE:  runPipeline(domain.CommandEnvTest),
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "debug-aws",
		Short: "Print masked AWS credential values",
		Args:  cobra.NoArgs,
		RunE:  runPipeline(domain.CommandDebugAWS),
	})

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run pipeline commands on cron schedules with a status endpoint",
		Args:  cobra.NoArgs,
		RunE:  runSchedule,
	}
	scheduleCmd.Flags().StringVar(&schedulePath, "config", "/app/schedule.toml", "schedule definition file (TOML)")
	scheduleCmd.Flags().StringVar(&scheduleListen, "listen", "", "status endpoint address, overrides the config file")
	rootCmd.AddCommand(scheduleCmd)

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the run ledger",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs to list")
	historyCmd.Flags().StringVar(&historyCommand, "command", "", "only list runs of this command")
	rootCmd.AddCommand(historyCmd)

	dashCmd := &cobra.Command{
		Use:   "dash",
		Short: "Interactive dashboard over the run ledger",
		Args:  cobra.NoArgs,
		RunE:  runDash,
	}
	dashCmd.Flags().IntVar(&dashLimit, "limit", 50, "maximum number of runs to load per refresh")
	rootCmd.AddCommand(dashCmd)
}

// runPipeline adapts a pipeline command to a cobra handler.
func runPipeline(command domain.Command) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		opts, closeOpts, err := buildOptions(cfg, log, command)
		if err != nil {
			return err
		}
		defer closeOpts()

		ctx, stop := signalContext()
		defer stop()

		return pipeline.New(cfg, opts, log).Execute(ctx, command)
	}
}

func runTransformDryRun(cmd *cobra.Command, args []string) error {
	if !watchRawData {
		return runPipeline(domain.CommandTransformDryRun)(cmd, args)
	}

	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	opts, closeOpts, err := buildOptions(cfg, log, domain.CommandTransformDryRun)
	if err != nil {
		return err
	}
	defer closeOpts()

	runner := pipeline.New(cfg, opts, log)

	ctx, stop := signalContext()
	defer stop()

	// A burst of file writes collapses into a single pending rerun.
	changes := make(chan struct{}, 1)
	watcher, err := observer.New(func(files []string) {
		log.Info("raw data changed", zap.Int("files", len(files)))
		select {
		case changes <- struct{}{}:
		default:
		}
	}, log)
	if err != nil {
		return err
	}
	defer watcher.Stop()

	dir := cfg.DryRunRawDataDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create raw data dir: %w", err)
	}
	if err := watcher.AddDir(dir); err != nil {
		return err
	}
	watcher.Start(ctx)

	// In watch mode a failed pass is logged and retried on the next
	// change instead of ending the process.
	if err := runner.Execute(ctx, domain.CommandTransformDryRun); err != nil {
		log.Error("dry run failed", zap.Error(err))
	}
	log.Info("watching for raw data changes", zap.String("dir", dir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			if err := runner.Execute(ctx, domain.CommandTransformDryRun); err != nil {
				log.Error("dry run failed", zap.Error(err))
			}
		}
	}
}

func runConfigTest(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	return pipeline.New(cfg, pipeline.Options{}, log).ConfigTest(configFormat)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	schedCfg, err := batch.LoadScheduleConfig(schedulePath)
	if err != nil {
		return err
	}
	if len(schedCfg.Jobs) == 0 {
		return fmt.Errorf("schedule config %s declares no jobs", schedulePath)
	}

	// The status endpoint and the dashboard both read the ledger, so
	// schedule mode refuses to run without one.
	if cfg.RunDBPath == "" {
		return fmt.Errorf("schedule mode needs the run ledger, set RUN_DB_PATH")
	}
	store, err := runstore.New(cfg.RunDBPath)
	if err != nil {
		return fmt.Errorf("open run ledger: %w", err)
	}
	defer store.Close()

	sched, err := batch.NewScheduler(schedCfg.Jobs, log)
	if err != nil {
		return err
	}
	if err := seedScheduler(sched, store, schedCfg.Jobs); err != nil {
		return err
	}

	// Schedules may name any schedulable command, so the runner gets the
	// full set of collaborators up front. A bad object store config is a
	// startup error here, not a midnight surprise.
	objStore, err := objectstore.New(cfg)
	if err != nil {
		return err
	}
	m := metrics.New(cfg.PushgatewayURL)
	opts := pipeline.Options{
		Jobs:     executor.New(log),
		Sync:     statesync.New(objStore, cfg.StateKey(), cfg.DBPath, log),
		Promoter: promote.New(objStore, cfg.S3Env(), "prod", cfg.DryRun, log),
		Buckets:  objStore,
		Recorder: store,
		Metrics:  m,
		Notifier: notify.NewMultiNotifier(
			notify.NewLogNotifier(log),
			notify.NewSlackNotifier(schedCfg.SlackWebhookURL),
		),
	}
	runner := pipeline.New(cfg, opts, log)

	ctx, stop := signalContext()
	defer stop()

	addr := schedCfg.ListenAddr
	if scheduleListen != "" {
		addr = scheduleListen
	}
	server := api.NewServer(store, sched, m.Handler(), addr)
	go func() {
		if err := server.Start(); err != nil {
			log.Error("status endpoint failed", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		sched.Stop()
	}()

	log.Info("schedule mode started",
		zap.String("config", schedulePath),
		zap.String("listen", addr),
		zap.Int("jobs", len(schedCfg.Jobs)))

	sched.Start(func(job batch.JobConfig) error {
		command, err := domain.ParseCommand(job.Command)
		if err != nil {
			return err
		}
		return runner.Execute(ctx, command)
	})
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.RunDBPath == "" {
		return fmt.Errorf("run ledger is disabled, set RUN_DB_PATH")
	}

	store, err := runstore.New(cfg.RunDBPath)
	if err != nil {
		return fmt.Errorf("open run ledger: %w", err)
	}
	defer store.Close()

	listOpts := runstore.ListOptions{Limit: historyLimit}
	if historyCommand != "" {
		command, err := domain.ParseCommand(historyCommand)
		if err != nil {
			return err
		}
		listOpts.Command = command
	}

	runs, err := store.ListRuns(listOpts)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCOMMAND\tTARGET\tSTATUS\tEXIT\tSTARTED\tDURATION")
	for _, run := range runs {
		duration := "-"
		if run.FinishedAt != nil {
			duration = run.Duration().Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			shortID(run.ID), run.Command, run.Target, run.Status, run.ExitCode,
			run.StartedAt.Format(time.RFC3339), duration)
	}
	return w.Flush()
}

func runDash(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.RunDBPath == "" {
		return fmt.Errorf("run ledger is disabled, set RUN_DB_PATH")
	}

	store, err := runstore.New(cfg.RunDBPath)
	if err != nil {
		return fmt.Errorf("open run ledger: %w", err)
	}
	defer store.Close()

	runs, err := store.ListRuns(runstore.ListOptions{Limit: dashLimit})
	if err != nil {
		return err
	}

	model := tui.NewModel(tui.ModelConfig{Store: store, Limit: dashLimit, Runs: runs})
	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}

// setup loads the run configuration and builds the process logger.
func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

// buildOptions assembles the runner collaborators one command needs.
// The returned closer releases the run ledger handle.
func buildOptions(cfg config.Config, log *zap.Logger, command domain.Command) (pipeline.Options, func(), error) {
	opts := pipeline.Options{
		Jobs:    executor.New(log),
		Metrics: metrics.New(cfg.PushgatewayURL),
	}
	closer := func() {}

	if command.Recorded() && cfg.RunDBPath != "" {
		store, err := runstore.New(cfg.RunDBPath)
		if err != nil {
			// A broken ledger must not take the pipeline down with it.
			log.Warn("run ledger unavailable",
				zap.String("path", cfg.RunDBPath), zap.Error(err))
		} else {
			opts.Recorder = store
			closer = func() { store.Close() }
		}
	}

	if needsObjectStore(command) {
		objStore, err := objectstore.New(cfg)
		if err != nil {
			closer()
			return pipeline.Options{}, nil, err
		}
		opts.Sync = statesync.New(objStore, cfg.StateKey(), cfg.DBPath, log)
		opts.Promoter = promote.New(objStore, cfg.S3Env(), "prod", cfg.DryRun, log)
		opts.Buckets = objStore
	}

	return opts, closer, nil
}

// needsObjectStore reports whether a command talks to object storage.
// Building the client only when needed keeps a malformed endpoint from
// failing local-only commands like plain ingest.
func needsObjectStore(command domain.Command) bool {
	switch command {
	case domain.CommandETL, domain.CommandPromote, domain.CommandEnvTest:
		return true
	}
	return false
}

// seedScheduler primes last-run times from the ledger so a restart does
// not immediately refire jobs that already ran.
func seedScheduler(sched *batch.Scheduler, store *runstore.Store, jobs []batch.JobConfig) error {
	for _, job := range jobs {
		command, err := domain.ParseCommand(job.Command)
		if err != nil {
			return err
		}
		last, err := store.LastRun(command)
		if err != nil {
			return fmt.Errorf("read last run of %s: %w", job.Name, err)
		}
		if last == nil {
			continue
		}
		seed := last.StartedAt
		if last.FinishedAt != nil {
			seed = *last.FinishedAt
		}
		sched.SeedLastRun(job.Name, seed)
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
