package httpx

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/opertusmundi/normalize/internal/data"
	"github.com/opertusmundi/normalize/internal/domain/model"
	"github.com/opertusmundi/normalize/internal/service"
)

const (
	defaultTicketPageSize = 50
	maxTicketPageSize     = 1000
)

// TicketHandlers provides HTTP handlers for ticket polling and listing.
type TicketHandlers struct {
	Svc *service.TicketService

	// OutputDir resolves relative result paths recorded on tickets.
	OutputDir string
}

// Status handles GET /status/{ticket}.
func (h *TicketHandlers) Status(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("ticket")
	if token == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("ticket is required")})
		return
	}

	status, err := h.Svc.GetStatus(r.Context(), token)
	if err != nil {
		if errors.Is(err, data.ErrUnknownTicket) {
			WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "ticket_not_found", Err: errors.New("ticket not found")})
			return
		}
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

// Resource handles GET /resource/{ticket}: it streams the normalized
// file recorded on a successfully completed ticket. A ticket whose
// recorded file has since vanished from storage yields 507.
func (h *TicketHandlers) Resource(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("ticket")
	if token == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("ticket is required")})
		return
	}

	ticket, err := h.Svc.GetByToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, data.ErrUnknownTicket) {
			WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "ticket_not_found", Err: errors.New("ticket not found")})
			return
		}
		WriteAppError(w, err)
		return
	}
	if ticket.Result == nil || *ticket.Result == "" {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "resource_not_ready", Err: errors.New("no resource is associated with this ticket")})
		return
	}

	path := *ticket.Result
	if !filepath.IsAbs(path) {
		path = filepath.Join(h.OutputDir, path)
	}
	if _, statErr := os.Stat(path); statErr != nil {
		WriteError(w, ErrorParams{Code: http.StatusInsufficientStorage, ErrCode: "resource_missing", Err: errors.New("resource does not exist")})
		return
	}
	serveAttachment(w, r, path)
}

// List handles GET /api/tickets with optional status filtering and
// pagination.
func (h *TicketHandlers) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := ParseLimitOffset(r, defaultTicketPageSize, maxTicketPageSize)
	opts := model.TicketListOptions{Limit: limit, Offset: offset}

	if raw := r.URL.Query().Get("status"); raw != "" {
		var status model.TicketStatus
		if err := status.UnmarshalText([]byte(raw)); err != nil {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_status", Err: err})
			return
		}
		opts.Status = &status
	}

	tickets, err := h.Svc.List(r.Context(), opts)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, tickets)
}

// Stats handles GET /api/tickets/stats.
func (h *TicketHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.Stats(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}
