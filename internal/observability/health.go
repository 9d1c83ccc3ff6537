package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"
)

type HealthChecker interface {
	Ping(ctx context.Context) error
}

// BacklogReporter exposes the number of webhook tasks still waiting for the
// worker. The readiness probe reports it so operators can see a backlog
// building up behind a slow store or messaging gateway.
type BacklogReporter interface {
	Len() int
}

// HealthHandler serves the liveness and readiness probes. Liveness is
// unconditional; readiness covers the booking store and, once SetReady is
// called after startup wiring, the process itself.
type HealthHandler struct {
	db    HealthChecker
	queue BacklogReporter
	ready atomic.Bool
}

func NewHealthHandler(db HealthChecker) *HealthHandler {
	h := &HealthHandler{db: db}
	h.ready.Store(false)
	return h
}

// WithQueue adds the task backlog to the readiness report.
func (h *HealthHandler) WithQueue(q BacklogReporter) *HealthHandler {
	h.queue = q
	return h
}

func (h *HealthHandler) SetReady(ready bool) {
	h.ready.Store(ready)
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	checks := make(map[string]string)
	allHealthy := true

	if !h.ready.Load() {
		checks["app"] = "not ready"
		allHealthy = false
	} else {
		checks["app"] = "ok"
	}

	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			checks["database"] = err.Error()
			allHealthy = false
		} else {
			checks["database"] = "ok"
		}
	}

	// Informational only: a backlog means slow processing, not an
	// unserviceable process, so it never flips readiness.
	if h.queue != nil {
		checks["queue_backlog"] = strconv.Itoa(h.queue.Len())
	}

	status := "ok"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ReadyResponse{
		Status: status,
		Checks: checks,
	})
}
