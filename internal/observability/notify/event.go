package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
)

// TicketFailurePayload captures the canonical data we emit when a
// normalization ticket fails.
type TicketFailurePayload struct {
	Ticket       string
	ResourceType string
	SourceFile   string
	Error        string
	ErrorClass   string
	Severity     string
	OccurredAt   time.Time
	Metadata     map[string]string
}

// Sink describes a destination capable of consuming ticket failure notifications.
type Sink interface {
	SendTicketFailure(ctx context.Context, payload TicketFailurePayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload TicketFailurePayload) error

// SendTicketFailure implements the Sink interface.
func (f SinkFunc) SendTicketFailure(ctx context.Context, payload TicketFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
