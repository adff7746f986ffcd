package bootstrap

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/opertusmundi/normalize/config"
	"github.com/opertusmundi/normalize/internal/adapters/csvnorm"
	httpx "github.com/opertusmundi/normalize/internal/http"
	"github.com/opertusmundi/normalize/internal/service"
)

const (
	httpReadTimeout     = 30 * time.Second
	httpWriteTimeout    = 30 * time.Second
	httpIdleTimeout     = 120 * time.Second
	httpShutdownTimeout = 10 * time.Second
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	DB       *sql.DB
	Logger   *slog.Logger
}

// StartHTTPServer wires the router, wraps it in middleware, and starts
// listening in a background goroutine. The returned server is used for
// graceful shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	services := httpx.RouterServices{
		Tickets:        cfg.Services.Tickets,
		Normalizer:     csvnorm.New(csvnorm.Options{Logger: logger}),
		DB:             cfg.DB,
		TempDir:        appCfg.Worker.TempDir,
		OutputDir:      appCfg.Worker.OutputDir,
		MaxUploadBytes: appCfg.HTTP.MaxUploadBytes,
		Logger:         logger,
	}

	handler := wrapMiddleware(logger, httpx.NewRouter(services), appCfg.HTTP)

	addr := appCfg.HTTP.Addr
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  httpReadTimeout,
		WriteTimeout: httpWriteTimeout,
		IdleTimeout:  httpIdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
		}
	}()

	return server
}

// wrapMiddleware layers Recover -> Logging -> Compression -> router, so the
// access log records compressed response sizes and panics are caught outermost.
func wrapMiddleware(logger *slog.Logger, router http.Handler, cfg config.HTTPConfig) http.Handler {
	h := router
	if cfg.CompressionEnabled {
		logger.Info("HTTP compression enabled", "level", cfg.CompressionLevel)
		h = httpx.Compression(httpx.CompressionConfig{Level: cfg.CompressionLevel})(h)
	}
	h = httpx.Logging(logger)(h)
	h = httpx.Recover(logger)(h)
	return h
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Tickets *service.TicketService
	Logger  *slog.Logger
}

// ShutdownHTTPServer stops the ticket status listeners and then drains the
// HTTP server with a bounded timeout.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}
	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	if cfg.Tickets != nil {
		cfg.Tickets.StopAllListeners()
	}

	shutdownCtx, cancel := context.WithTimeout(cfg.Context, httpShutdownTimeout)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}
	return nil
}
