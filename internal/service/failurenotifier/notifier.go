package failurenotifier

import (
	"context"
	"log/slog"
	"sync"

	"github.com/opertusmundi/normalize/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
}

// Service dispatches ticket failure events to all registered sinks.
type Service struct {
	logger *slog.Logger
	sinks  []SinkRegistration
}

// NewService constructs a failure notifier. Registrations without a sink are
// dropped; unnamed ones get a placeholder name for logging.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "failure_notifier")
	}
	return &Service{
		logger: logger,
		sinks:  normalizeSinks(opts.Sinks),
	}
}

func normalizeSinks(regs []SinkRegistration) []SinkRegistration {
	out := make([]SinkRegistration, 0, len(regs))
	for _, reg := range regs {
		if reg.Sink == nil {
			continue
		}
		if reg.Name == "" {
			reg.Name = "sink"
		}
		out = append(out, reg)
	}
	return out
}

// NotifyTicketFailure fans the ticket failure payload out to every sink in
// parallel and waits for all deliveries. Delivery errors are logged, never
// returned; a notification failure must not affect ticket processing.
func (s *Service) NotifyTicketFailure(ctx context.Context, payload notify.TicketFailurePayload) {
	if len(s.sinks) == 0 {
		return
	}
	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}

	var wg sync.WaitGroup
	for _, reg := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.deliver(ctx, reg, payload)
		}()
	}
	wg.Wait()
}

func (s *Service) deliver(ctx context.Context, reg SinkRegistration, payload notify.TicketFailurePayload) {
	if err := reg.Sink.SendTicketFailure(ctx, payload); err != nil {
		s.logger.Error("failure notifier delivery error",
			"sink", reg.Name,
			"ticket", payload.Ticket,
			"resource_type", payload.ResourceType,
			"error", err,
		)
	}
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}
