package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeWorker runs the normalization worker.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeReaper runs the ticket reaper for retention cleanup.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeWorker,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeWorker, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, worker, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// WorkerConfig contains normalization worker configuration.
type WorkerConfig struct {
	// Concurrency is the number of worker goroutines claiming tickets.
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"2"`

	// OutputDir is the root directory for normalized output files.
	// Results land under OUTPUT_DIR/yymmdd/<ticket>/.
	OutputDir string `env:"OUTPUT_DIR" envDefault:"./output"`

	// TempDir holds uploaded source files awaiting processing.
	// Empty means the system temp directory.
	TempDir string `env:"TEMP_DIR" envDefault:""`

	// ProcessTimeout bounds the processing of a single ticket.
	ProcessTimeout time.Duration `env:"WORKER_PROCESS_TIMEOUT" envDefault:"30m"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.ProcessTimeout < time.Minute {
		w.ProcessTimeout = time.Minute
	}
	w.OutputDir = strings.TrimSpace(w.OutputDir)
	if w.OutputDir == "" {
		w.OutputDir = "./output"
	}
	w.TempDir = strings.TrimSpace(w.TempDir)
}

// ReaperConfig contains ticket reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// RunningMaxAge is the maximum age for running tickets before they are
	// failed. Tickets stuck in running status longer than this lost their
	// worker and will never complete on their own.
	RunningMaxAge time.Duration `env:"REAPER_RUNNING_MAX_AGE" envDefault:"1h"`

	// CompletedMaxAge is the maximum age for completed tickets before deletion.
	CompletedMaxAge time.Duration `env:"REAPER_COMPLETED_MAX_AGE" envDefault:"168h"` // 7 days

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.RunningMaxAge < 5*time.Minute {
		r.RunningMaxAge = 5 * time.Minute
	}
	if r.CompletedMaxAge < 1*time.Hour {
		r.CompletedMaxAge = 1 * time.Hour
	}

	// Enforce batch size bounds to prevent excessive locks or inefficiency
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
