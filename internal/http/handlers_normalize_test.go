package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/opertusmundi/normalize/internal/domain/model"
	"github.com/opertusmundi/normalize/internal/mocks"
	"github.com/opertusmundi/normalize/internal/ports"
	"github.com/opertusmundi/normalize/internal/service"
)

// passthroughNormalizer copies the staged source into the output dir so
// prompt-mode responses have a real file to stream.
type passthroughNormalizer struct {
	requests []ports.NormalizeRequest
}

func (p *passthroughNormalizer) Normalize(_ context.Context, req ports.NormalizeRequest) (ports.NormalizeResult, error) {
	p.requests = append(p.requests, req)

	content, err := os.ReadFile(req.Payload.SourcePath)
	if err != nil {
		return ports.NormalizeResult{}, err
	}
	out := filepath.Join(req.OutputDir, "result_normalized.csv")
	if err := os.WriteFile(out, content, 0o600); err != nil {
		return ports.NormalizeResult{}, err
	}
	return ports.NormalizeResult{OutputPath: out, Filesize: int64(len(content))}, nil
}

type multipartField struct {
	key   string
	value string
}

func buildNormalizeRequest(t *testing.T, filename string, fields []multipartField) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if filename != "" {
		fw, err := mw.CreateFormFile("resource", filename)
		require.NoError(t, err)
		_, err = io.WriteString(fw, "a,b\n1,2\n")
		require.NoError(t, err)
	}
	for _, f := range fields {
		require.NoError(t, mw.WriteField(f.key, f.value))
	}
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/normalize", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return r
}

func newNormalizeHandlers(t *testing.T) (*NormalizeHandlers, *mocks.MockTicketRepository, *passthroughNormalizer) {
	t.Helper()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockTicketRepository(ctrl)
	svc := service.MustNewTicketService(service.TicketServiceOptions{Repo: repo})
	norm := &passthroughNormalizer{}
	h := &NormalizeHandlers{
		Tickets:    svc,
		Normalizer: norm,
		TempDir:    t.TempDir(),
	}
	return h, repo, norm
}

func TestNormalizeHandlers_Create_Prompt(t *testing.T) {
	h, _, norm := newNormalizeHandlers(t)

	r := buildNormalizeRequest(t, "input.csv", []multipartField{
		{"resource_type", "csv"},
		{"response", "prompt"},
		{"case_normalization", "a"},
	})
	w := httptest.NewRecorder()
	h.Create(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "result_normalized.csv")
	assert.Equal(t, "a,b\n1,2\n", w.Body.String())

	require.Len(t, norm.requests, 1)
	req := norm.requests[0]
	assert.Equal(t, model.ResourceTypeCSV, req.Payload.ResourceType)
	assert.Equal(t, []string{"a"}, req.Payload.Options.CaseColumns)
	assert.Equal(t, "input.csv", req.Payload.Filename)
	assert.FileExists(t, req.Payload.SourcePath)
}

func TestNormalizeHandlers_Create_PromptIsDefault(t *testing.T) {
	h, _, norm := newNormalizeHandlers(t)

	r := buildNormalizeRequest(t, "input.csv", []multipartField{
		{"resource_type", "csv"},
	})
	w := httptest.NewRecorder()
	h.Create(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, norm.requests, 1)
}

func TestNormalizeHandlers_Create_Deferred(t *testing.T) {
	h, repo, norm := newNormalizeHandlers(t)

	repo.EXPECT().
		Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *model.CreateTicketRequest) (*model.Ticket, error) {
			require.NotEmpty(t, req.Token)

			var payload model.NormalizePayload
			require.NoError(t, json.Unmarshal(req.Payload, &payload))
			assert.Equal(t, model.ResourceTypeCSV, payload.ResourceType)
			assert.Equal(t, []string{"b"}, payload.Options.DateColumns)
			assert.True(t, payload.Options.NormalizeColumnNames)
			assert.FileExists(t, payload.SourcePath)

			return &model.Ticket{Token: req.Token, Status: model.TicketStatusPending, Payload: req.Payload}, nil
		})

	r := buildNormalizeRequest(t, "input.csv", []multipartField{
		{"resource_type", "csv"},
		{"response", "deferred"},
		{"date_normalization", "b"},
		{"column_name_normalization", "true"},
	})
	w := httptest.NewRecorder()
	h.Create(w, r)

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	token := resp["ticket"]
	require.NotEmpty(t, token)
	assert.Equal(t, "/resource/"+token, resp["endpoint"])
	assert.Equal(t, "/status/"+token, resp["status"])

	// Deferred requests are processed by the worker, not inline.
	assert.Empty(t, norm.requests)
}

func TestNormalizeHandlers_Create_ValidationErrors(t *testing.T) {
	cases := []struct {
		name     string
		filename string
		fields   []multipartField
		wantBody string
	}{
		{
			name:     "missing resource file",
			filename: "",
			fields:   []multipartField{{"resource_type", "csv"}},
			wantBody: "resource file is required",
		},
		{
			name:     "missing resource type",
			filename: "input.csv",
			fields:   nil,
			wantBody: "resource_type is required",
		},
		{
			name:     "unsupported resource type",
			filename: "input.tif",
			fields:   []multipartField{{"resource_type", "geotiff"}},
			wantBody: "supported ones are csv and shp",
		},
		{
			name:     "invalid response mode",
			filename: "input.csv",
			fields:   []multipartField{{"resource_type", "csv"}, {"response", "later"}},
			wantBody: "prompt or deferred",
		},
		{
			name:     "transliteration without languages",
			filename: "input.csv",
			fields:   []multipartField{{"resource_type", "csv"}, {"transliteration", "name"}},
			wantBody: "source language",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, _, _ := newNormalizeHandlers(t)

			r := buildNormalizeRequest(t, tc.filename, tc.fields)
			w := httptest.NewRecorder()
			h.Create(w, r)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tc.wantBody)
		})
	}
}

func TestNormalizeHandlers_Create_NormalizeFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockTicketRepository(ctrl)
	svc := service.MustNewTicketService(service.TicketServiceOptions{Repo: repo})
	h := &NormalizeHandlers{
		Tickets:    svc,
		Normalizer: failingNormalizer{},
		TempDir:    t.TempDir(),
	}

	r := buildNormalizeRequest(t, "input.csv", []multipartField{
		{"resource_type", "csv"},
		{"response", "prompt"},
	})
	w := httptest.NewRecorder()
	h.Create(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "normalize_failed")
}

type failingNormalizer struct{}

func (failingNormalizer) Normalize(context.Context, ports.NormalizeRequest) (ports.NormalizeResult, error) {
	return ports.NormalizeResult{}, assert.AnError
}
