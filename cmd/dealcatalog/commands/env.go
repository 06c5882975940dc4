package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dealcatalog/internal/catalog"
	"dealcatalog/internal/chrono"
	"dealcatalog/internal/config"
	"dealcatalog/internal/output"
	"dealcatalog/internal/pipeline"
	"dealcatalog/lib/telemetry"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const serviceName = "dealcatalog"

// env is everything a command needs, it is set up once before any command runs.
type env struct {
	runId     string
	cfg       config.Config
	tel       telemetry.API
	runner    pipeline.Runner
	telemetry telemetry.Telemetry
	started   time.Time
}

var current env

func (e env) summary(platform catalog.Platform) *pipeline.Summary {
	return pipeline.NewSummary(e.runId, platform)
}

func setup(cmd *cobra.Command, _ []string) error {
	telemetry.InitSlog(flags.verbose)

	runId := uuid.NewString()
	slog.SetDefault(slog.Default().With("run_id", runId))

	cfg, err := config.Load(flags.config)
	if err != nil {
		return err
	}
	if flags.dir != "" {
		cfg.Dir = flags.dir
	}
	if flags.concurrency > 0 {
		cfg.Enrich.Concurrency = flags.concurrency
	}
	if flags.timeout > 0 {
		cfg.Enrich.TimeoutMs = int(flags.timeout / time.Millisecond)
	}

	ctx := cmd.Context()
	otel, err := telemetry.Setup(ctx, serviceName, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}

	tel := telemetry.SlogAPI{}
	if interval := cfg.PerfStatsInterval(); interval > 0 {
		telemetry.InstrumentPerfStats(ctx, tel, interval)
	}

	date, err := runDate(cfg.Timezone)
	if err != nil {
		return err
	}

	current = env{
		runId: runId,
		cfg:   cfg,
		tel:   tel,
		runner: pipeline.Runner{
			Dir:  cfg.Dir,
			Date: date,
			Tel:  tel,
		},
		telemetry: otel,
		started:   time.Now(),
	}
	slog.Debug("starting", "dir", cfg.Dir, "date", output.FileDate(date))
	return nil
}

// teardown flushes exporters, it runs after the command's context is gone.
func teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := current.telemetry.Shutdown(ctx); err != nil {
		slog.Warn("shutdown telemetry", "err", err)
	}
}

// runDate is the --date flag when given, otherwise today in the configured timezone.
func runDate(timezone string) (time.Time, error) {
	if flags.date != "" {
		date, err := output.ParseFileDate(flags.date)
		if err != nil {
			return time.Time{}, fmt.Errorf("--date: %w", err)
		}
		return date, nil
	}
	location, err := chrono.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, err
	}
	return chrono.NewStandardTime(location).Now(), nil
}

func platformFlag(cmd *cobra.Command) (catalog.Platform, error) {
	value, err := cmd.Flags().GetString("platform")
	if err != nil {
		return "", err
	}
	return catalog.ParsePlatform(value)
}
