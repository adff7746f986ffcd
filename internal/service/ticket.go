package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opertusmundi/normalize/internal/core"
	"github.com/opertusmundi/normalize/internal/domain/model"
	domainticket "github.com/opertusmundi/normalize/internal/domain/ticket"
	"github.com/opertusmundi/normalize/internal/observability/metrics"
	"github.com/opertusmundi/normalize/internal/observability/statsd"
)

// TicketServiceOptions groups dependencies for TicketService.
type TicketServiceOptions struct {
	Repo            core.TicketRepository        // Required: ticket repository
	Logger          *slog.Logger                 // Optional: structured logger
	StatusCache     *core.StatusCacheService     // Optional: read-through cache for completed statuses
	Metrics         statsd.Sink                  // Optional: metrics sink (StatsD-compatible)
	Notifier        domainticket.Notifier        // Optional: custom ticket availability notifier
	NotifierOptions domainticket.NotifierOptions // Optional: configure default notifier behaviour
}

// TicketService provides business logic for ticket operations including pub/sub notifications.
//
// This service manages:
// - Ticket creation and lifecycle transitions
// - Status polling with a read-through cache for terminal tickets
// - Pub/sub notification system for ticket availability
// - Graceful shutdown of notification listeners.
type TicketService struct {
	repo        core.TicketRepository
	notifier    domainticket.Notifier
	statusCache *core.StatusCacheService
	logger      *slog.Logger
	metrics     statsd.Sink
}

// NewTicketService constructs a new TicketService.
func NewTicketService(opts TicketServiceOptions) (*TicketService, error) {
	if opts.Repo == nil {
		return nil, errors.New("TicketRepository is required")
	}

	notifier := opts.Notifier
	if notifier == nil {
		options := opts.NotifierOptions
		if options.Waiter == nil {
			options.Waiter = opts.Repo
		}
		var err error
		notifier, err = domainticket.NewNotifier(options)
		if err != nil {
			return nil, fmt.Errorf("create ticket notifier: %w", err)
		}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "ticket_service")
		logger.Debug("TicketService initialized",
			"status_cache", opts.StatusCache != nil,
		)
	}

	return &TicketService{
		repo:        opts.Repo,
		notifier:    notifier,
		statusCache: opts.StatusCache,
		logger:      logger,
		metrics:     opts.Metrics,
	}, nil
}

// MustNewTicketService constructs a new TicketService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewTicketService(opts TicketServiceOptions) *TicketService {
	svc, err := NewTicketService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create TicketService: %v", err))
	}
	return svc
}

// Create creates a new ticket with the given request parameters.
func (s *TicketService) Create(ctx context.Context, req *model.CreateTicketRequest) (*model.Ticket, error) {
	ticket, err := s.repo.Create(ctx, req)
	s.emitTransition("create", err, 0, ticket)
	if err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	if s.logger != nil {
		s.logger.DebugContext(
			ctx,
			"ticket created",
			"ticket",
			ticket.Token,
			"status",
			ticket.Status,
		)
	}

	return ticket, nil
}

// ClaimNext atomically claims the oldest pending ticket for processing.
// Returns model.ErrNoTicketsAvailable when the queue is empty.
func (s *TicketService) ClaimNext(ctx context.Context) (*model.Ticket, error) {
	ticket, err := s.repo.ClaimNext(ctx)
	if err != nil {
		if errors.Is(err, model.ErrNoTicketsAvailable) {
			return nil, err
		}
		return nil, fmt.Errorf("claim next ticket: %w", err)
	}

	s.emitTransition("claim", nil, 0, ticket)

	if s.logger != nil {
		s.logger.DebugContext(ctx, "ticket claimed", "ticket", ticket.Token)
	}

	return ticket, nil
}

// MarkRunning transitions a pending ticket to running.
func (s *TicketService) MarkRunning(ctx context.Context, token string) (*model.Ticket, error) {
	ticket, err := s.repo.MarkRunning(ctx, token)
	s.emitTransition("start", err, 0, ticket)
	if err != nil {
		return nil, fmt.Errorf("mark ticket %s running: %w", token, err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "ticket running", "ticket", token)
	}

	return ticket, nil
}

// MarkCompleted transitions a running ticket to completed, recording the
// terminal outcome. On success the terminal status is written through to
// the status cache and an accounting entry is logged.
func (s *TicketService) MarkCompleted(
	ctx context.Context,
	token string,
	req *model.CompleteTicketRequest,
) (*model.Ticket, error) {
	ticket, err := s.repo.MarkCompleted(ctx, token, req)
	s.emitTransition("complete", err, executionDuration(ticket), ticket)
	if err != nil {
		return nil, fmt.Errorf("complete ticket %s: %w", token, err)
	}

	s.cacheTerminalStatus(ctx, ticket)
	s.logAccounting(ctx, ticket)

	return ticket, nil
}

// GetByToken returns a ticket by its token.
func (s *TicketService) GetByToken(ctx context.Context, token string) (*model.Ticket, error) {
	ticket, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("get ticket %s: %w", token, err)
	}
	return ticket, nil
}

// GetStatus returns the status information for a ticket.
// Completed-ticket responses are served from the status cache when present;
// the terminal fields never change once written, so cached entries are
// always accurate.
func (s *TicketService) GetStatus(ctx context.Context, token string) (*model.TicketStatusResponse, error) {
	if s.statusCache != nil {
		cached, err := s.statusCache.GetCachedStatus(ctx, token)
		if err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "status cache lookup failed", "ticket", token, "error", err)
		}
		if cached != nil {
			return cached, nil
		}
	}

	ticket, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("get ticket %s: %w", token, err)
	}

	s.cacheTerminalStatus(ctx, ticket)

	resp := model.StatusOf(ticket)
	return &resp, nil
}

// List returns tickets ordered by request time with optional status filtering.
// Pagination defaults are normalized here to avoid drift across layers.
func (s *TicketService) List(ctx context.Context, opts model.TicketListOptions) ([]*model.Ticket, error) {
	p := normalizePagination(opts.Limit, opts.Offset)
	opts.Limit = p.Limit
	opts.Offset = p.Offset

	tickets, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return tickets, nil
}

// Stats returns statistics about tickets in different states.
func (s *TicketService) Stats(ctx context.Context) (*model.TicketStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("get ticket stats: %w", err)
	}
	return stats, nil
}

// Subscribe creates a subscription for ticket availability notifications.
// Returns an unsubscribe function and a channel that receives notifications.
func (s *TicketService) Subscribe() (func(), <-chan struct{}) {
	if s.notifier == nil {
		ch := make(chan struct{})
		close(ch)
		return func() {}, ch
	}
	return s.notifier.Subscribe()
}

// WaitForNotification waits for a notification indicating new tickets are available.
func (s *TicketService) WaitForNotification(ctx context.Context) error {
	return s.repo.WaitForNotification(ctx)
}

// StopAllListeners stops all active ticket notification listeners.
// This should be called during graceful shutdown to clean up goroutines.
func (s *TicketService) StopAllListeners() {
	if s.logger != nil {
		s.logger.Info("stopping all ticket listeners")
	}

	if s.notifier != nil {
		s.notifier.StopAll()
	}
}

func (s *TicketService) cacheTerminalStatus(ctx context.Context, ticket *model.Ticket) {
	if s.statusCache == nil || ticket == nil || !ticket.Status.Terminal() {
		return
	}
	if err := s.statusCache.CacheStatus(ctx, ticket); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "status cache write failed", "ticket", ticket.Token, "error", err)
	}
}

// logAccounting records the terminal outcome of a ticket in a single
// structured entry, mirroring the per-request accounting log of earlier
// deployments of this service.
func (s *TicketService) logAccounting(ctx context.Context, ticket *model.Ticket) {
	if s.logger == nil || ticket == nil {
		return
	}

	attrs := []any{
		"ticket", ticket.Token,
		"success", ticket.Success != nil && *ticket.Success,
	}
	if ticket.ExecutionTime != nil {
		attrs = append(attrs, "execution_time", *ticket.ExecutionTime)
	}
	if ticket.Filesize != nil {
		attrs = append(attrs, "filesize", *ticket.Filesize)
	}
	if ticket.Comment != nil {
		attrs = append(attrs, "comment", *ticket.Comment)
	}

	s.logger.InfoContext(ctx, "ticket completed", attrs...)
}

func (s *TicketService) emitTransition(
	transition string,
	err error,
	duration time.Duration,
	ticket *model.Ticket,
) {
	if s.metrics == nil {
		return
	}

	in := metrics.TicketMetric{
		Transition: transition,
		Result:     metrics.ResultSuccess,
		Duration:   duration,
		Err:        err,
	}
	if err != nil {
		in.Result = metrics.ResultError
	}
	if ticket != nil {
		in.ResourceType = resourceTypeOf(ticket)
	}

	metrics.EmitTicketLifecycle(s.metrics, in)
}

func resourceTypeOf(ticket *model.Ticket) string {
	payload, err := model.ParseNormalizePayload(ticket.Payload)
	if err != nil || payload == nil {
		return ""
	}
	return string(payload.ResourceType)
}

func executionDuration(ticket *model.Ticket) time.Duration {
	if ticket == nil || ticket.ExecutionTime == nil {
		return 0
	}
	return time.Duration(*ticket.ExecutionTime * float64(time.Second))
}

// paginationParams holds normalized pagination parameters.
type paginationParams struct {
	Limit  int
	Offset int
}

// normalizePagination clamps pagination parameters to safe defaults.
// Default limit: 50, max limit: 1000, min offset: 0.
func normalizePagination(limit, offset int) paginationParams {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}
	return paginationParams{Limit: limit, Offset: offset}
}
