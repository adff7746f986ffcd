// Package worker provides the background processing adapter that drains
// pending tickets and runs them through a Normalizer.
package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/opertusmundi/normalize/config"
	"github.com/opertusmundi/normalize/internal/adapters/csvnorm"
	"github.com/opertusmundi/normalize/internal/core"
	"github.com/opertusmundi/normalize/internal/data"
	"github.com/opertusmundi/normalize/internal/domain/model"
	oerrors "github.com/opertusmundi/normalize/internal/observability/errors"
	"github.com/opertusmundi/normalize/internal/observability/notify"
	"github.com/opertusmundi/normalize/internal/observability/statsd"
	"github.com/opertusmundi/normalize/internal/ports"
	"github.com/opertusmundi/normalize/internal/service"
	"github.com/opertusmundi/normalize/internal/service/failurenotifier"
)

// outputDateLayout groups ticket output directories by request date (yymmdd).
const outputDateLayout = "060102"

// RunnerOptions configures the ticket worker adapter.
type RunnerOptions struct {
	DB     *sql.DB
	Logger *slog.Logger
	Config config.WorkerConfig

	// Normalizer processes staged files; defaults to the built-in CSV
	// normalizer.
	Normalizer ports.Normalizer

	// Optional dependency injections (useful for tests/decoupling)
	TicketsRepo     core.TicketRepository
	Metrics         statsd.Sink
	StatusCache     *core.StatusCacheService
	FailureNotifier *failurenotifier.Service
}

// Runner claims pending tickets and executes them with the configured
// Normalizer.
type Runner struct {
	tickets         *service.TicketService
	normalizer      ports.Normalizer
	logger          *slog.Logger
	workers         int
	outputDir       string
	timeout         time.Duration
	failureNotifier *failurenotifier.Service
}

// NewRunner wires the ticket service and constructs a worker runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil && opts.TicketsRepo == nil {
		return nil, errors.New("either DB or TicketsRepo must be provided")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	workers := opts.Config.Concurrency
	if workers <= 0 {
		workers = 1
	}
	outputDir := opts.Config.OutputDir
	if outputDir == "" {
		return nil, errors.New("output directory is required")
	}

	normalizer := opts.Normalizer
	if normalizer == nil {
		normalizer = csvnorm.New(csvnorm.Options{Logger: logger})
	}

	repo := opts.TicketsRepo
	if repo == nil {
		repo = data.NewTicketRepo(opts.DB, data.RepoConfig{})
	}
	tickets, err := service.NewTicketService(service.TicketServiceOptions{
		Repo:        repo,
		Logger:      logger,
		StatusCache: opts.StatusCache,
		Metrics:     opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire ticket service: %w", err)
	}

	return &Runner{
		tickets:         tickets,
		normalizer:      normalizer,
		logger:          logger,
		workers:         workers,
		outputDir:       outputDir,
		timeout:         opts.Config.ProcessTimeout,
		failureNotifier: opts.FailureNotifier,
	}, nil
}

// Run starts worker goroutines and processes tickets until the context
// is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting ticket worker",
		"workers", r.workers, "output_dir", r.outputDir, "timeout", r.timeout)

	// Derive a cancellable context that we can signal on first fatal error
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsub, ch := r.tickets.Subscribe()
	defer unsub()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	for range r.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.workerLoop(ctx, ch); err != nil {
				// first error wins, cancels all workers
				select {
				case errCh <- err:
					cancel()
				default:
				}
			}
		}()
	}

	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return ctx.Err()
	}
}

func (r *Runner) workerLoop(ctx context.Context, notify <-chan struct{}) error {
	for ctx.Err() == nil {
		ticket, err := r.tickets.ClaimNext(ctx)
		switch {
		case err == nil:
			if ticket != nil {
				r.processTicket(ctx, ticket)
			}
		case errors.Is(err, model.ErrNoTicketsAvailable):
			if !r.waitForNotify(ctx, notify) {
				return nil
			}
		default:
			return fmt.Errorf("claim next: %w", err)
		}
	}
	return ctx.Err()
}

func (r *Runner) waitForNotify(ctx context.Context, notify <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case <-notify:
		return true
	}
}

// processTicket runs a claimed ticket through the Normalizer and records
// the terminal outcome. Processing failures complete the ticket as
// unsuccessful; only recording errors are logged and left to the reaper.
func (r *Runner) processTicket(ctx context.Context, ticket *model.Ticket) {
	result, err := r.executeTicket(ctx, ticket)
	if err != nil {
		r.completeFailure(ctx, ticket, err)
		return
	}
	r.completeSuccess(ctx, ticket, result)
}

func (r *Runner) executeTicket(ctx context.Context, ticket *model.Ticket) (ports.NormalizeResult, error) {
	payload, err := model.ParseNormalizePayload(ticket.Payload)
	if err != nil {
		return ports.NormalizeResult{}, err
	}
	if payload == nil {
		return ports.NormalizeResult{}, errors.New("ticket has no payload")
	}

	outDir, err := r.ticketOutputDir(ticket)
	if err != nil {
		return ports.NormalizeResult{}, err
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	result, err := r.normalizer.Normalize(ctx, ports.NormalizeRequest{
		Token:     ticket.Token,
		Payload:   payload,
		OutputDir: outDir,
	})
	if err != nil {
		return ports.NormalizeResult{}, err
	}

	r.cleanupStagedSource(ctx, payload.SourcePath)
	return result, nil
}

// ticketOutputDir creates OUTPUT_DIR/<yymmdd>/<token> for the ticket.
func (r *Runner) ticketOutputDir(ticket *model.Ticket) (string, error) {
	dir := filepath.Join(r.outputDir, ticket.RequestedTime.Format(outputDateLayout), ticket.Token)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	return dir, nil
}

func (r *Runner) completeSuccess(ctx context.Context, ticket *model.Ticket, result ports.NormalizeResult) {
	if _, err := r.tickets.MarkCompleted(ctx, ticket.Token, &model.CompleteTicketRequest{
		Success:  true,
		Result:   &result.OutputPath,
		Filesize: &result.Filesize,
	}); err != nil {
		r.logger.ErrorContext(ctx, "complete ticket error", "ticket", ticket.Token, "error", err)
	}
}

func (r *Runner) completeFailure(ctx context.Context, ticket *model.Ticket, procErr error) {
	comment := procErr.Error()
	if _, err := r.tickets.MarkCompleted(ctx, ticket.Token, &model.CompleteTicketRequest{
		Success: false,
		Comment: &comment,
	}); err != nil {
		r.logger.ErrorContext(ctx, "fail ticket error",
			"ticket", ticket.Token, "error", err, "original_error", procErr)
	}
	r.notifyFailure(ctx, ticket, procErr)
}

// notifyFailure fans the failure out to configured notification sinks.
// Payload parsing is best effort here; the ticket may have failed because
// its payload never parsed in the first place.
func (r *Runner) notifyFailure(ctx context.Context, ticket *model.Ticket, procErr error) {
	if r.failureNotifier == nil || !r.failureNotifier.Enabled() {
		return
	}

	resourceType := ""
	sourceFile := ""
	if payload, err := model.ParseNormalizePayload(ticket.Payload); err == nil && payload != nil {
		resourceType = string(payload.ResourceType)
		sourceFile = payload.Filename
		if sourceFile == "" {
			sourceFile = filepath.Base(payload.SourcePath)
		}
	}

	r.failureNotifier.NotifyTicketFailure(ctx, notify.TicketFailurePayload{
		Ticket:       ticket.Token,
		ResourceType: resourceType,
		SourceFile:   sourceFile,
		Error:        procErr.Error(),
		ErrorClass:   oerrors.Classify(procErr),
		OccurredAt:   time.Now(),
	})
}

// cleanupStagedSource removes the uploaded file once its output exists.
// The staged copy lives under the temp dir and is of no further use.
func (r *Runner) cleanupStagedSource(ctx context.Context, sourcePath string) {
	if sourcePath == "" {
		return
	}
	if err := os.Remove(sourcePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.WarnContext(ctx, "remove staged source", "path", sourcePath, "error", err)
	}
}
