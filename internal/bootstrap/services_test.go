package bootstrap

import (
	"testing"

	"github.com/opertusmundi/normalize/config"
)

func TestErrorChannelCapacity(t *testing.T) {
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  int
	}{
		{
			name: "no services enabled",
			want: 0,
		},
		{
			name:  "http only",
			modes: []config.ServiceMode{config.ServiceModeHTTP},
			want:  1,
		},
		{
			name:  "http and worker",
			modes: []config.ServiceMode{config.ServiceModeHTTP, config.ServiceModeWorker},
			want:  2,
		},
		{
			name: "all services enabled",
			modes: []config.ServiceMode{
				config.ServiceModeHTTP,
				config.ServiceModeWorker,
				config.ServiceModeReaper,
			},
			want: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, mode := range tt.modes {
				enabled[mode] = true
			}

			if got := errorChannelCapacity(enabled); got != tt.want {
				t.Fatalf("errorChannelCapacity(%v) = %d, want %d", tt.modes, got, tt.want)
			}
		})
	}
}

func TestErrorChannelBufferSize(t *testing.T) {
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  int
	}{
		{
			name: "no services enabled",
			want: 1,
		},
		{
			name:  "http only",
			modes: []config.ServiceMode{config.ServiceModeHTTP},
			want:  2,
		},
		{
			name: "all services enabled",
			modes: []config.ServiceMode{
				config.ServiceModeHTTP,
				config.ServiceModeWorker,
				config.ServiceModeReaper,
			},
			want: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, mode := range tt.modes {
				enabled[mode] = true
			}

			if got := errorChannelBufferSize(enabled); got != tt.want {
				t.Fatalf("errorChannelBufferSize(%v) = %d, want %d", tt.modes, got, tt.want)
			}
		})
	}
}

func TestNewServicesWithoutDependencies(t *testing.T) {
	services := NewServices(nil)
	if services.Tickets != nil {
		t.Fatal("expected no ticket service without dependencies")
	}

	services = NewServices(&ServiceDeps{})
	if services.Tickets != nil {
		t.Fatal("expected no ticket service without a database")
	}
	if services.StatusCache != nil {
		t.Fatal("expected no status cache without redis")
	}
	if services.Observability.FailureNotifier == nil {
		t.Fatal("expected a failure notifier even when notifications are disabled")
	}
	if services.Observability.FailureNotifier.Enabled() {
		t.Fatal("expected failure notifier to have no sinks by default")
	}
}

func TestGetEnabledServiceNames(t *testing.T) {
	cfg := &config.AppConfig{Services: "http,worker"}

	names := GetEnabledServices(cfg)
	if len(names) != 2 {
		t.Fatalf("expected 2 enabled services, got %v", names)
	}

	seen := make(map[string]bool, len(names))
	for _, name := range names {
		seen[name] = true
	}
	if !seen["http"] || !seen["worker"] {
		t.Fatalf("expected http and worker, got %v", names)
	}

	if got := GetEnabledServices(nil); len(got) != 0 {
		t.Fatalf("expected empty list for nil config, got %v", got)
	}
}
