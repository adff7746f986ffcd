package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/opertusmundi/normalize/internal/data"
	"github.com/opertusmundi/normalize/internal/domain/model"
	"github.com/opertusmundi/normalize/internal/mocks"
	"github.com/opertusmundi/normalize/internal/service"
)

func newTicketHandlers(t *testing.T) (*TicketHandlers, *mocks.MockTicketRepository) {
	t.Helper()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockTicketRepository(ctrl)
	svc := service.MustNewTicketService(service.TicketServiceOptions{Repo: repo})
	return &TicketHandlers{Svc: svc, OutputDir: t.TempDir()}, repo
}

func completedTicketFixture(token string) *model.Ticket {
	success := true
	execTime := 1.25
	comment := ""
	completed := time.Date(2021, 3, 15, 10, 0, 5, 0, time.UTC)
	return &model.Ticket{
		ID:            7,
		Token:         token,
		Status:        model.TicketStatusCompleted,
		Success:       &success,
		RequestedTime: time.Date(2021, 3, 15, 10, 0, 0, 0, time.UTC),
		CompletedTime: &completed,
		ExecutionTime: &execTime,
		Comment:       &comment,
	}
}

func TestTicketHandlers_Status(t *testing.T) {
	t.Run("completed ticket", func(t *testing.T) {
		h, repo := newTicketHandlers(t)
		repo.EXPECT().GetByToken(gomock.Any(), "tok-1").Return(completedTicketFixture("tok-1"), nil)

		r := httptest.NewRequest(http.MethodGet, "/status/tok-1", nil)
		r.SetPathValue("ticket", "tok-1")
		w := httptest.NewRecorder()
		h.Status(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		var resp model.TicketStatusResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Completed)
		require.NotNil(t, resp.Success)
		assert.True(t, *resp.Success)
		require.NotNil(t, resp.ExecutionTime)
		assert.InDelta(t, 1.25, *resp.ExecutionTime, 0.0001)
	})

	t.Run("unknown ticket", func(t *testing.T) {
		h, repo := newTicketHandlers(t)
		repo.EXPECT().GetByToken(gomock.Any(), "missing").Return(nil, data.ErrUnknownTicket)

		r := httptest.NewRequest(http.MethodGet, "/status/missing", nil)
		r.SetPathValue("ticket", "missing")
		w := httptest.NewRecorder()
		h.Status(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("missing path value", func(t *testing.T) {
		h, _ := newTicketHandlers(t)
		r := httptest.NewRequest(http.MethodGet, "/status/", nil)
		w := httptest.NewRecorder()
		h.Status(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("repository failure", func(t *testing.T) {
		h, repo := newTicketHandlers(t)
		repo.EXPECT().GetByToken(gomock.Any(), "tok-err").Return(nil, errors.New("connection refused"))

		r := httptest.NewRequest(http.MethodGet, "/status/tok-err", nil)
		r.SetPathValue("ticket", "tok-err")
		w := httptest.NewRecorder()
		h.Status(w, r)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "connection refused")
	})
}

func TestTicketHandlers_Resource(t *testing.T) {
	t.Run("streams recorded file", func(t *testing.T) {
		h, repo := newTicketHandlers(t)

		path := filepath.Join(h.OutputDir, "in_normalized.csv")
		require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o600))
		ticket := completedTicketFixture("tok-file")
		ticket.Result = &path

		repo.EXPECT().GetByToken(gomock.Any(), "tok-file").Return(ticket, nil)

		r := httptest.NewRequest(http.MethodGet, "/resource/tok-file", nil)
		r.SetPathValue("ticket", "tok-file")
		w := httptest.NewRecorder()
		h.Resource(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Disposition"), "in_normalized.csv")
		assert.Equal(t, "a,b\n1,2\n", w.Body.String())
	})

	t.Run("relative result resolved against output dir", func(t *testing.T) {
		h, repo := newTicketHandlers(t)

		rel := filepath.Join("210315", "tok-rel", "in_normalized.csv")
		require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(h.OutputDir, rel)), 0o750))
		require.NoError(t, os.WriteFile(filepath.Join(h.OutputDir, rel), []byte("x\n"), 0o600))
		ticket := completedTicketFixture("tok-rel")
		ticket.Result = &rel

		repo.EXPECT().GetByToken(gomock.Any(), "tok-rel").Return(ticket, nil)

		r := httptest.NewRequest(http.MethodGet, "/resource/tok-rel", nil)
		r.SetPathValue("ticket", "tok-rel")
		w := httptest.NewRecorder()
		h.Resource(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unknown ticket", func(t *testing.T) {
		h, repo := newTicketHandlers(t)
		repo.EXPECT().GetByToken(gomock.Any(), "missing").Return(nil, data.ErrUnknownTicket)

		r := httptest.NewRequest(http.MethodGet, "/resource/missing", nil)
		r.SetPathValue("ticket", "missing")
		w := httptest.NewRecorder()
		h.Resource(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("no result recorded", func(t *testing.T) {
		h, repo := newTicketHandlers(t)
		ticket := completedTicketFixture("tok-pending")
		ticket.Result = nil
		repo.EXPECT().GetByToken(gomock.Any(), "tok-pending").Return(ticket, nil)

		r := httptest.NewRequest(http.MethodGet, "/resource/tok-pending", nil)
		r.SetPathValue("ticket", "tok-pending")
		w := httptest.NewRecorder()
		h.Resource(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("recorded file vanished", func(t *testing.T) {
		h, repo := newTicketHandlers(t)
		gone := filepath.Join(h.OutputDir, "gone.csv")
		ticket := completedTicketFixture("tok-gone")
		ticket.Result = &gone
		repo.EXPECT().GetByToken(gomock.Any(), "tok-gone").Return(ticket, nil)

		r := httptest.NewRequest(http.MethodGet, "/resource/tok-gone", nil)
		r.SetPathValue("ticket", "tok-gone")
		w := httptest.NewRecorder()
		h.Resource(w, r)

		assert.Equal(t, http.StatusInsufficientStorage, w.Code)
	})
}

func TestTicketHandlers_List(t *testing.T) {
	t.Run("passes pagination and filter", func(t *testing.T) {
		h, repo := newTicketHandlers(t)
		repo.EXPECT().
			List(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ any, opts model.TicketListOptions) ([]*model.Ticket, error) {
				assert.Equal(t, 10, opts.Limit)
				assert.Equal(t, 20, opts.Offset)
				require.NotNil(t, opts.Status)
				assert.Equal(t, model.TicketStatusCompleted, *opts.Status)
				return []*model.Ticket{completedTicketFixture("tok-1")}, nil
			})

		r := httptest.NewRequest(http.MethodGet, "/api/tickets?limit=10&offset=20&status=completed", nil)
		w := httptest.NewRecorder()
		h.List(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		var tickets []*model.Ticket
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tickets))
		assert.Len(t, tickets, 1)
	})

	t.Run("invalid status filter", func(t *testing.T) {
		h, _ := newTicketHandlers(t)
		r := httptest.NewRequest(http.MethodGet, "/api/tickets?status=bogus", nil)
		w := httptest.NewRecorder()
		h.List(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTicketHandlers_Stats(t *testing.T) {
	h, repo := newTicketHandlers(t)
	repo.EXPECT().Stats(gomock.Any()).Return(&model.TicketStats{Pending: 2, Completed: 5, Succeeded: 4, Failed: 1}, nil)

	r := httptest.NewRequest(http.MethodGet, "/api/tickets/stats", nil)
	w := httptest.NewRecorder()
	h.Stats(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var stats model.TicketStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Pending)
	assert.Equal(t, 5, stats.Completed)
}
