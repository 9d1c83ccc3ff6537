package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/TechLoui/Vagafogo-sub000/internal/domain"
	"github.com/TechLoui/Vagafogo-sub000/internal/observability"
)

// Enqueuer accepts an event for asynchronous processing.
type Enqueuer interface {
	Enqueue(event *domain.InboundEvent)
}

type Handler struct {
	queue       Enqueuer
	accessToken string
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewHandler creates the webhook HTTP handler. accessToken is the shared
// secret the gateway echoes in the asaas-access-token header; empty means
// no verification.
func NewHandler(queue Enqueuer, accessToken string, logger *slog.Logger) *Handler {
	return &Handler{
		queue:       queue,
		accessToken: accessToken,
		logger:      logger,
	}
}

// WithMetrics enables Prometheus metrics collection.
func (h *Handler) WithMetrics(m *observability.Metrics) *Handler {
	h.metrics = m
	return h
}

// ReceiveWebhook enqueues the event and acknowledges immediately. The
// gateway expects a fast 200 and retries delivery itself otherwise, so
// nothing about the eventual processing outcome leaks into the response.
func (h *Handler) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	if h.accessToken != "" && r.Header.Get("asaas-access-token") != h.accessToken {
		h.respondError(w, http.StatusUnauthorized, "invalid access token")
		return
	}

	var event domain.InboundEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.queue.Enqueue(&event)
	if h.metrics != nil {
		h.metrics.WebhooksReceived.Inc()
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: message}); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
