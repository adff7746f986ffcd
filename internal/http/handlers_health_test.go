package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	t.Run("get", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		w := httptest.NewRecorder()
		healthHandler(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	})

	t.Run("head has empty body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodHead, "/healthz", nil)
		w := httptest.NewRecorder()
		healthHandler(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Body.String())
	})
}

func TestHealthHandlers_Check(t *testing.T) {
	t.Run("ok without database", func(t *testing.T) {
		h := &HealthHandlers{TempDir: t.TempDir()}

		r := httptest.NewRequest(http.MethodGet, "/_health", nil)
		w := httptest.NewRecorder()
		h.Check(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		var report map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
		assert.Equal(t, "OK", report["status"])
		assert.Empty(t, report["reason"])
	})

	t.Run("temp dir not writable", func(t *testing.T) {
		h := &HealthHandlers{TempDir: filepath.Join(t.TempDir(), "does-not-exist")}

		r := httptest.NewRequest(http.MethodGet, "/_health", nil)
		w := httptest.NewRecorder()
		h.Check(w, r)

		// Failures are reported in the body, not the status code.
		require.Equal(t, http.StatusOK, w.Code)
		var report map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
		assert.Equal(t, "FAILED", report["status"])
		assert.Equal(t, "temp directory not writable", report["reason"])
		assert.NotEmpty(t, report["detail"])
	})
}
