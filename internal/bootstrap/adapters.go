package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/opertusmundi/normalize/config"
	"github.com/opertusmundi/normalize/internal/adapters/reaper"
	"github.com/opertusmundi/normalize/internal/adapters/worker"
	"github.com/opertusmundi/normalize/internal/core"
	"github.com/opertusmundi/normalize/internal/observability/statsd"
	"github.com/opertusmundi/normalize/internal/service/failurenotifier"
)

// WorkerConfig contains configuration for the normalization worker.
type WorkerConfig struct {
	DB              *sql.DB
	Logger          *slog.Logger
	Config          config.WorkerConfig
	Metrics         statsd.Sink
	StatusCache     *core.StatusCacheService
	FailureNotifier *failurenotifier.Service
}

// RunWorker starts the normalization worker service.
func RunWorker(ctx context.Context, cfg WorkerConfig) error {
	runner, err := worker.NewRunner(worker.RunnerOptions{
		DB:              cfg.DB,
		Logger:          cfg.Logger,
		Config:          cfg.Config,
		Metrics:         cfg.Metrics,
		StatusCache:     cfg.StatusCache,
		FailureNotifier: cfg.FailureNotifier,
	})
	if err != nil {
		return fmt.Errorf("create worker runner: %w", err)
	}

	if runErr := runner.Run(ctx); runErr != nil {
		return fmt.Errorf("run worker runner: %w", runErr)
	}
	return nil
}

// ReaperConfig contains configuration for reaper.
type ReaperConfig struct {
	DB      *sql.DB
	Logger  *slog.Logger
	Config  config.ReaperConfig
	Metrics statsd.Sink
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:      cfg.DB,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}
