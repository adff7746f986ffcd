// Package core provides the business logic and service layer for the normalize ticket system.
package core

import (
	"github.com/opertusmundi/normalize/internal/domain/model"
)

// TicketStatus represents the lifecycle state of a ticket (re-exported from the model package).
// This is re-exported here for use in HTTP handlers to avoid direct coupling to the model package.
type TicketStatus = model.TicketStatus

// CreateTicketRequest represents a request to open a new ticket (re-exported from the model package).
// This is re-exported here for use in HTTP handlers to avoid direct coupling to the model package.
type CreateTicketRequest = model.CreateTicketRequest
