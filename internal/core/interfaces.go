package core

import (
	"context"
	"time"

	"github.com/opertusmundi/normalize/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// TicketRepository defines the interface for ticket data operations.
type TicketRepository interface {
	Create(ctx context.Context, req *model.CreateTicketRequest) (*model.Ticket, error)
	GetByToken(ctx context.Context, token string) (*model.Ticket, error)
	MarkRunning(ctx context.Context, token string) (*model.Ticket, error)
	MarkCompleted(ctx context.Context, token string, req *model.CompleteTicketRequest) (*model.Ticket, error)
	ClaimNext(ctx context.Context) (*model.Ticket, error)
	WaitForNotification(ctx context.Context) error
	List(ctx context.Context, opts model.TicketListOptions) ([]*model.Ticket, error)
	Stats(ctx context.Context) (*model.TicketStats, error)
}

// FailStuckRunningParams groups parameters for FailStuckRunningTickets.
type FailStuckRunningParams struct {
	MaxAge    time.Duration
	BatchSize int
}

// DeleteOldCompletedParams groups parameters for DeleteOldCompletedTickets.
type DeleteOldCompletedParams struct {
	MaxAge    time.Duration
	BatchSize int
}

// ReaperRepository defines the interface for ticket retention operations.
type ReaperRepository interface {
	// FailStuckRunningTickets completes running tickets whose processing started
	// longer than MaxAge ago, recording a failure outcome. Processes up to
	// BatchSize tickets per call to prevent long locks.
	// Returns the number of tickets failed.
	FailStuckRunningTickets(ctx context.Context, params FailStuckRunningParams) (int64, error)

	// DeleteOldCompletedTickets deletes completed tickets older than MaxAge.
	// Processes up to BatchSize tickets per call to prevent long locks.
	// Returns the number of tickets deleted.
	DeleteOldCompletedTickets(ctx context.Context, params DeleteOldCompletedParams) (int64, error)
}
