package httpx

import (
	"database/sql"
	"io"
	"net/http"
	"os"
)

const healthResponse = `{"status":"ok"}`

// healthHandler returns a simple 200 OK status for readiness/liveness checks.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

// HealthHandlers provides the deep health check covering the service's
// runtime dependencies. Failures are reported in the body with a 200 so
// callers can read the reason.
type HealthHandlers struct {
	DB      *sql.DB
	TempDir string
}

type healthReport struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Check verifies the temp directory is writable and the database is
// reachable.
func (h *HealthHandlers) Check(w http.ResponseWriter, r *http.Request) {
	if err := checkDirectoryWritable(h.TempDir); err != nil {
		WriteJSON(w, http.StatusOK, healthReport{
			Status: "FAILED",
			Reason: "temp directory not writable",
			Detail: err.Error(),
		})
		return
	}

	if h.DB != nil {
		if err := h.DB.PingContext(r.Context()); err != nil {
			WriteJSON(w, http.StatusOK, healthReport{
				Status: "FAILED",
				Reason: "cannot connect to database backend",
				Detail: err.Error(),
			})
			return
		}
	}

	WriteJSON(w, http.StatusOK, healthReport{Status: "OK"})
}

// checkDirectoryWritable creates and removes a probe file in the directory.
func checkDirectoryWritable(dir string) error {
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "healthcheck-*")
	if err != nil {
		return err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return err
	}
	return os.Remove(name)
}
