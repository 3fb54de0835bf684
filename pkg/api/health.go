package api

import (
	"net/http"
	"time"

	"github.com/strongroomhq/strongroom/pkg/metrics"
)

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
	Uptime    string    `json:"uptime,omitempty"`
}

// ReadyResponse is the /readyz body.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// handleHealthz is the liveness probe: 200 whenever the process serves.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   s.cfg.Version,
		Uptime:    metrics.Uptime().Round(time.Second).String(),
	})
}

// handleReadyz is the readiness probe: 200 only when the store answers and
// every in-process component reports healthy.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status, code := "ready", http.StatusOK

	if err := s.store.Ping(r.Context()); err != nil {
		checks["database"] = err.Error()
		status, code = "not ready", http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	for name, state := range metrics.Components() {
		checks[name] = state
	}
	if !metrics.Healthy() {
		status, code = "not ready", http.StatusServiceUnavailable
	}

	writeJSON(w, code, ReadyResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	})
}
