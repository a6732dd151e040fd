// Package handler provides HTTP handlers for the chat API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/brightline-ai/agent-gateway/internal/middleware"
	"github.com/brightline-ai/agent-gateway/internal/model"
	"github.com/brightline-ai/agent-gateway/internal/registry"
	"github.com/brightline-ai/agent-gateway/internal/session"
	"github.com/brightline-ai/agent-gateway/pkg/logger"
)

// SessionHandler handles chat session lifecycle and message endpoints.
type SessionHandler struct {
	registry *registry.Registry
	logger   *logger.Logger
	warm     bool
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(reg *registry.Registry, log *logger.Logger, warm bool) *SessionHandler {
	return &SessionHandler{
		registry: reg,
		logger:   log,
		warm:     warm,
	}
}

// Start handles POST /api/v1/sessions/{id}
// Opens a new chat session or resumes an existing conversation thread.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "id")

	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s := h.registry.GetOrCreate(ctx, sessionID)
	if err := s.EnsureConnected(ctx); err != nil {
		h.logger.Error("session start failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, "failed to connect to agent service")
		return
	}

	if h.warm {
		// Absorb cold-start latency off the request path.
		go s.Warm(context.Background())
	}

	writeJSON(w, http.StatusOK, &model.StartSessionResponse{
		SessionID: sessionID,
		ThreadID:  s.ThreadID(),
	})
}

// End handles DELETE /api/v1/sessions/{id}
// Tears down live handles; the conversation thread is retained for
// resumption.
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.registry.OnSessionEnd(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// Send handles POST /api/v1/sessions/{id}/messages
func (h *SessionHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "id")

	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s := h.registry.GetOrCreate(ctx, sessionID)
	reply, err := s.SendMessage(ctx, req.Content)
	if err != nil {
		if errors.Is(err, session.ErrNotConnected) {
			writeError(w, http.StatusServiceUnavailable, "agent service unavailable")
			return
		}
		h.logger.Error("send failed", zap.String("session_id", sessionID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to send message")
		return
	}

	writeJSON(w, http.StatusOK, &model.SendMessageResponse{
		SessionID: sessionID,
		Reply:     reply,
	})
}
