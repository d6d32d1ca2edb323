package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/persona-relay/internal/middleware"
	"github.com/capitalize-ai/persona-relay/internal/store"
	"github.com/capitalize-ai/persona-relay/pkg/logger"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// HistoryHandler exposes stored conversation history for operators.
type HistoryHandler struct {
	history *store.HistoryStore
	log     *logger.Logger
}

// NewHistoryHandler creates a history handler.
func NewHistoryHandler(history *store.HistoryStore, log *logger.Logger) *HistoryHandler {
	return &HistoryHandler{history: history, log: log}
}

// Recent handles GET /api/v1/history/{chatID}/recent
func (h *HistoryHandler) Recent(w http.ResponseWriter, r *http.Request) {
	chatID, err := middleware.ParseChatID(chi.URLParam(r, "chatID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := middleware.ParseLimit(r.URL.Query().Get("limit"), defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.history.Recent(r.Context(), chatID, limit)
	if err != nil {
		h.log.Error("history read failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"chat_id": chatID,
		"entries": entries,
	})
}

// Thread handles GET /api/v1/history/{chatID}/thread/{messageID}
func (h *HistoryHandler) Thread(w http.ResponseWriter, r *http.Request) {
	chatID, err := middleware.ParseChatID(chi.URLParam(r, "chatID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	messageID, err := middleware.ParseMessageID(chi.URLParam(r, "messageID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.history.Thread(r.Context(), chatID, messageID)
	if err != nil {
		h.log.Error("thread read failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"chat_id":    chatID,
		"message_id": messageID,
		"entries":    entries,
	})
}
