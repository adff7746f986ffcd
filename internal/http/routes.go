package httpx

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/opertusmundi/normalize/internal/ports"
	"github.com/opertusmundi/normalize/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Tickets    *service.TicketService
	Normalizer ports.Normalizer

	// DB backs the deep health check.
	DB *sql.DB

	// TempDir is where uploads are staged; OutputDir is where the
	// worker writes results.
	TempDir   string
	OutputDir string

	MaxUploadBytes int64
	Logger         *slog.Logger
}

// NewRouter creates and configures a new HTTP router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	normalizeHandlers := &NormalizeHandlers{
		Tickets:        services.Tickets,
		Normalizer:     services.Normalizer,
		TempDir:        services.TempDir,
		MaxUploadBytes: services.MaxUploadBytes,
		Logger:         services.Logger,
	}
	ticketHandlers := &TicketHandlers{
		Svc:       services.Tickets,
		OutputDir: services.OutputDir,
	}
	healthHandlers := &HealthHandlers{
		DB:      services.DB,
		TempDir: services.TempDir,
	}

	registerNormalizeRoutes(mux, normalizeHandlers, ticketHandlers)
	registerTicketRoutes(mux, ticketHandlers)

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	mux.HandleFunc("GET /_health", healthHandlers.Check)

	return mux
}

func registerNormalizeRoutes(mux *http.ServeMux, h *NormalizeHandlers, t *TicketHandlers) {
	mux.HandleFunc("POST /normalize", h.Create)
	mux.HandleFunc("GET /status/{ticket}", t.Status)
	mux.HandleFunc("GET /resource/{ticket}", t.Resource)
}

func registerTicketRoutes(mux *http.ServeMux, h *TicketHandlers) {
	mux.HandleFunc("GET /api/tickets", h.List)
	mux.HandleFunc("GET /api/tickets/stats", h.Stats)
}
