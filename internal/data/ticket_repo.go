package data

import (
	"database/sql"
	"log/slog"
)

// notifyChannel is the Postgres NOTIFY channel announcing newly created tickets.
const notifyChannel = "ticket_added"

// RepoConfig holds configuration options for the ticket repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// TicketRepo provides database operations for ticket lifecycle management.
type TicketRepo struct {
	DB           *sql.DB
	cfg          RepoConfig
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewTicketRepo creates a new TicketRepo instance with the given database connection and configuration.
func NewTicketRepo(db *sql.DB, cfg RepoConfig) *TicketRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &TicketRepo{
		DB:           db,
		cfg:          cfg,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const ticketColumns = `
  id,
  ticket,
  status,
  success,
  payload,
  requested_time,
  started_time,
  completed_time,
  execution_time,
  result,
  filesize,
  comment
`
