package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"omnichannel/internal/config"
	apperrors "omnichannel/internal/errors"
	"omnichannel/internal/infrastructure"
	"omnichannel/internal/pipeline"
	"omnichannel/internal/storage"
	httptransport "omnichannel/internal/transport/http"
	"omnichannel/pkg/contracts"
)

// options are the persistent flags; set values override the config file
type options struct {
	configPath  string
	area        string
	cohortAreas []string
	source      string
	localDir    string
	logLevel    string
	statusAddr  string
	runID       string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "omnichannel",
		Short: "Measure how store openings change online ordering",
		Long: `omnichannel turns raw web orders and store metadata into the panels used
to estimate the effect of opening a physical store on online demand.

Each stage can run on its own, reading its inputs from the configured
storage, or all stages can run together with "run".`,
		Version:       contracts.GetFullVersionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML configuration")
	flags.StringVar(&opts.area, "area", "", "treatment area for matching and analysis")
	flags.StringSliceVar(&opts.cohortAreas, "cohort-areas", nil, "areas of the staggered cohort export")
	flags.StringVar(&opts.source, "source", "", "storage backend: local or bigquery")
	flags.StringVar(&opts.localDir, "data-dir", "", "base directory of local tables")
	flags.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	flags.StringVar(&opts.statusAddr, "status-addr", "", "serve /healthz, /status and /metrics on this address")
	flags.StringVar(&opts.runID, "run-id", "", "identifier of the run; generated when empty")

	root.AddCommand(
		newStepCmd(opts, pipeline.StepClean, "clean", "Drop cancelled, test, duplicate and malformed orders"),
		newStepCmd(opts, pipeline.StepEnrich, "enrich", "Geocode shipping postal codes and measure store distances"),
		newStepCmd(opts, pipeline.StepTreat, "treat", "Assign each order to a treatment group"),
		newStepCmd(opts, pipeline.StepAggregate, "aggregate", "Build the quarterly postal-code panel"),
		newStepCmd(opts, pipeline.StepMatch, "match", "Select the event window and match control units"),
		newStepCmd(opts, pipeline.StepDiD, "did", "Write the difference-in-differences regression frame"),
		newStepCmd(opts, pipeline.StepSCM, "scm", "Write the synthetic-control panel"),
		newStepCmd(opts, pipeline.StepAltControl, "altcontrol", "Write the alternative-control series"),
		newRunCmd(opts),
		newStepsCmd(),
	)
	return root
}

func newStepCmd(opts *options, id, use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd.Context(), opts, []string{id})
		},
	}
}

func newRunCmd(opts *options) *cobra.Command {
	var only []string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every stage in order",
		Long: `Run executes the stages in pipeline order. --steps restricts the run
to a subset; the remaining inputs are loaded from storage.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd.Context(), opts, only)
		},
	}
	cmd.Flags().StringSliceVar(&only, "steps", nil, "comma separated step ids, default all")
	return cmd
}

func newStepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List the pipeline steps in execution order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := pipeline.Build(pipeline.Deps{Config: config.Default(), Store: storage.NewLocal(".", "", nil)})
			if err != nil {
				return err
			}
			for _, s := range reg.List() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-11s %s\n", s.ID(), s.Name())
			}
			return nil
		},
	}
}

// loadConfig reads the configuration and applies flag overrides
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, apperrors.NewConfigError("load configuration", err)
	}

	if opts.area != "" {
		cfg.Pipeline.Area = opts.area
	}
	if len(opts.cohortAreas) > 0 {
		cfg.Pipeline.CohortAreas = opts.cohortAreas
	}
	if opts.source != "" {
		cfg.Storage.Source = strings.ToLower(opts.source)
	}
	if opts.localDir != "" {
		cfg.Storage.LocalDir = opts.localDir
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = strings.ToLower(opts.logLevel)
	}
	if opts.statusAddr != "" {
		cfg.Telemetry.StatusAddr = opts.statusAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, apperrors.NewConfigError("invalid flag override", err)
	}
	return cfg, nil
}

// execute runs the selected steps, all of them when ids is empty
func execute(ctx context.Context, opts *options, ids []string) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return apperrors.NewConfigError("initialize logger", err)
	}
	defer infrastructure.CloseLogFile()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := opts.runID
	if runID == "" {
		runID = infrastructure.GenerateTraceID()
	}
	ctx = infrastructure.WithTraceID(ctx, runID)

	providers, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger)
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			infrastructure.WithError(logger, err).Warn("telemetry shutdown failed")
		}
	}()

	metrics, err := infrastructure.CreatePipelineMetrics(providers.Meter)
	if err != nil {
		return fmt.Errorf("create pipeline metrics: %w", err)
	}

	paths, err := config.GetPaths(cfg.Paths, "")
	if err != nil {
		return apperrors.NewConfigError("resolve paths", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return apperrors.NewStorageError("create working directories", err)
	}
	paths.LogPathResolution(logger)

	store, err := storage.New(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	deps := pipeline.Deps{Config: cfg, Store: store, Metrics: metrics, Logger: logger}
	if needsGeocoding(ids) && len(cfg.Geocoding.Providers) > 0 {
		chain, err := newGeocoders(cfg.Geocoding, metrics, logger)
		if err != nil {
			return err
		}
		defer chain.Close()
		deps.Geocoders = chain.resolvers
	}

	reg, err := pipeline.Build(deps)
	if err != nil {
		return err
	}
	steps := reg.List()
	if len(ids) > 0 {
		if steps, err = reg.Select(ids...); err != nil {
			return apperrors.NewConfigError("select steps", err)
		}
	}

	state := pipeline.NewRunState(runID)

	if cfg.Telemetry.StatusAddr != "" {
		srv := httptransport.NewServer(cfg.Telemetry.StatusAddr, cfg.Telemetry.ServiceName, providers.PrometheusHTTP, logger)
		srv.Status.Track(state)
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := srv.Shutdown(context.Background()); err != nil {
				infrastructure.WithError(logger, err).Warn("status server shutdown failed")
			}
		}()
	}

	runErr := pipeline.NewRunner(metrics, logger).Run(ctx, state, steps)

	if providers.Registry != nil {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := infrastructure.PushMetrics(pushCtx, cfg.Telemetry.PushgatewayURL, cfg.Telemetry.ServiceName, runID, providers.Registry, logger); err != nil {
			infrastructure.WithError(logger, err).Warn("metrics push failed")
		}
	}

	if runErr != nil {
		return runErr
	}
	logSummary(ctx, logger, state)
	return nil
}

func needsGeocoding(ids []string) bool {
	if len(ids) == 0 {
		return true
	}
	for _, id := range ids {
		if id == pipeline.StepEnrich {
			return true
		}
	}
	return false
}

func logSummary(ctx context.Context, logger *slog.Logger, state *pipeline.RunState) {
	snap := state.Snapshot()
	for _, st := range snap.Steps {
		logger.InfoContext(ctx, "step summary",
			slog.String("step", st.ID),
			slog.Int("rows_in", st.RowsIn),
			slog.Int("rows_out", st.RowsOut),
			slog.String("duration", st.Duration),
			slog.String("message", st.Message))
	}
}

// exitCode separates usage and configuration mistakes from data failures
func exitCode(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return 130
	case apperrors.IsConfig(err):
		return 2
	default:
		return 1
	}
}
