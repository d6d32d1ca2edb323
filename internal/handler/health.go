package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	natsclient "github.com/capitalize-ai/persona-relay/internal/nats"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	rdb        redis.UniversalClient
	natsClient *natsclient.Client
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(rdb redis.UniversalClient, natsClient *natsclient.Client) *HealthHandler {
	return &HealthHandler{rdb: rdb, natsClient: natsClient}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.rdb == nil || h.rdb.Ping(ctx).Err() != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "Redis not reachable",
		})
		return
	}
	if h.natsClient == nil || !h.natsClient.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
