package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/brightline-ai/agent-gateway/internal/middleware"
	"github.com/brightline-ai/agent-gateway/internal/model"
	"github.com/brightline-ai/agent-gateway/internal/registry"
	"github.com/brightline-ai/agent-gateway/internal/session"
	"github.com/brightline-ai/agent-gateway/pkg/logger"
	"github.com/brightline-ai/agent-gateway/pkg/metrics"
)

// StreamHandler handles SSE streaming endpoints.
type StreamHandler struct {
	registry *registry.Registry
	logger   *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(reg *registry.Registry, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		registry: reg,
		logger:   log,
	}
}

// Stream handles POST /api/v1/sessions/{id}/stream
// Accepts one user message and streams the agent's reply as SSE fragment
// events, each carrying the accumulated text so far.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
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

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	// Fragments and heartbeats come from different goroutines; writes to
	// the response must not interleave, and none may land after the
	// handler returns.
	var wmu sync.Mutex
	closed := false
	send := func(event string, data interface{}) {
		wmu.Lock()
		defer wmu.Unlock()
		if closed {
			return
		}
		sendSSEEvent(w, flusher, event, data)
	}

	done := make(chan struct{})
	defer func() {
		wmu.Lock()
		closed = true
		wmu.Unlock()
		close(done)
	}()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				send("heartbeat", &model.HeartbeatEvent{Timestamp: time.Now()})
			}
		}
	}()

	s := h.registry.GetOrCreate(ctx, sessionID)

	reply, err := s.SendMessageStreaming(ctx, req.Content, func(text string) {
		select {
		case <-ctx.Done():
			return
		default:
		}
		send("fragment", &model.FragmentEvent{Text: text})
	})

	if err != nil {
		code := "stream_error"
		if errors.Is(err, session.ErrNotConnected) {
			code = "not_connected"
		}
		h.logger.Error("streaming send failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		send("error", &model.ErrorEvent{
			Code:    code,
			Message: "failed to reach the agent service",
		})
		return
	}

	send("done", &model.DoneEvent{Reply: reply})
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}
