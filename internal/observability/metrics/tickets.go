package metrics

import (
	"time"

	obserrors "github.com/opertusmundi/normalize/internal/observability/errors"
	"github.com/opertusmundi/normalize/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// TicketMetric captures details about a ticket lifecycle event for metric emission.
type TicketMetric struct {
	ResourceType string
	Transition   string
	Result       string
	Duration     time.Duration
	Err          error
}

// EmitTicketLifecycle emits standardised ticket lifecycle metrics.
func EmitTicketLifecycle(sink statsd.Sink, in TicketMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.ResourceType != "" {
		tags["resource_type"] = in.ResourceType
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("ticket.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("ticket.duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
