package handler

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/persona-relay/internal/model"
	"github.com/capitalize-ai/persona-relay/internal/platform"
	"github.com/capitalize-ai/persona-relay/pkg/logger"
	"github.com/capitalize-ai/persona-relay/pkg/metrics"
)

// secretTokenHeader carries the webhook secret set at registration.
const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// maxWebhookBody bounds update payloads.
const maxWebhookBody = 1 << 20

// Engine consumes parsed updates.
type Engine interface {
	HandleUpdate(ctx context.Context, u *model.Update)
}

// WebhookHandler receives platform updates.
type WebhookHandler struct {
	secret string
	engine Engine
	log    *logger.Logger
}

// NewWebhookHandler creates a webhook handler. secret may be empty, in
// which case the header check is skipped.
func NewWebhookHandler(secret string, engine Engine, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{secret: secret, engine: engine, log: log}
}

// Receive handles POST /webhook. The platform only needs a 200; the
// update is processed on its own goroutine so slow generation never
// stalls webhook delivery.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" {
		got := r.Header.Get(secretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			metrics.UpdatesTotal.WithLabelValues("bad_secret").Inc()
			writeError(w, http.StatusUnauthorized, "invalid secret token")
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	u, err := platform.ParseUpdate(body)
	if err != nil {
		// Updates without a message (edits, member joins) are normal,
		// acknowledge and move on.
		h.log.Debug("ignoring update", zap.Error(err))
		metrics.UpdatesTotal.WithLabelValues("ignored").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	go h.engine.HandleUpdate(context.Background(), u)
	w.WriteHeader(http.StatusOK)
}
