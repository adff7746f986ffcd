package httpx

import (
	"compress/gzip"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompression(t *testing.T) {
	payload := strings.Repeat(`{"k":"v"}`, 200)
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, payload)
	})

	mw := Compression(CompressionConfig{Level: gzip.DefaultCompression})(handler)

	t.Run("compresses when client accepts gzip", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/tickets", nil)
		r.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()
		mw.ServeHTTP(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

		gz, err := gzip.NewReader(w.Body)
		require.NoError(t, err)
		defer gz.Close()
		body, err := io.ReadAll(gz)
		require.NoError(t, err)
		assert.Equal(t, payload, string(body))
	})

	t.Run("passthrough without accept-encoding", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/tickets", nil)
		w := httptest.NewRecorder()
		mw.ServeHTTP(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Content-Encoding"))
		assert.Equal(t, payload, w.Body.String())
	})

	t.Run("passthrough when gzip disabled by q value", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/tickets", nil)
		r.Header.Set("Accept-Encoding", "gzip;q=0")
		w := httptest.NewRecorder()
		mw.ServeHTTP(w, r)

		assert.Empty(t, w.Header().Get("Content-Encoding"))
	})
}

func TestLogging(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	r := httptest.NewRequest(http.MethodGet, "/status/unknown", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	logLine := buf.String()
	assert.Contains(t, logLine, "method=GET")
	assert.Contains(t, logLine, "path=/status/unknown")
	assert.Contains(t, logLine, "status=404")
}

func TestRecover(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := Recover(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
