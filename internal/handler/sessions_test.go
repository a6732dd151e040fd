package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightline-ai/agent-gateway/internal/agent"
	"github.com/brightline-ai/agent-gateway/internal/llm"
	"github.com/brightline-ai/agent-gateway/internal/model"
	"github.com/brightline-ai/agent-gateway/internal/registry"
	"github.com/brightline-ai/agent-gateway/internal/session"
	"github.com/brightline-ai/agent-gateway/internal/transport/local"
	"github.com/brightline-ai/agent-gateway/pkg/logger"
)

type stubModel struct {
	text string
}

func (m stubModel) Generate(ctx context.Context, req *llm.Request) (*llm.Result, error) {
	return &llm.Result{Text: m.text}, nil
}

func (m stubModel) GenerateStream(ctx context.Context, req *llm.Request, onDelta llm.DeltaFunc) (*llm.Result, error) {
	if onDelta != nil {
		if err := onDelta(m.text); err != nil {
			return nil, err
		}
	}
	return &llm.Result{Text: m.text}, nil
}

func (m stubModel) Name() string { return "stub" }

func testRouter(dial agent.DialFunc, agentID string) http.Handler {
	log := logger.NewNop()
	reg := registry.New(dial, session.Config{
		AgentID:      agentID,
		PollInterval: time.Millisecond,
		MaxPolls:     100,
		StreamBudget: time.Second,
	}, registry.NewMemoryStore(), log)

	sessionHandler := NewSessionHandler(reg, log, false)
	streamHandler := NewStreamHandler(reg, log)

	r := chi.NewRouter()
	r.Route("/api/v1/sessions/{id}", func(r chi.Router) {
		r.Post("/", sessionHandler.Start)
		r.Delete("/", sessionHandler.End)
		r.Post("/messages", sessionHandler.Send)
		r.Post("/stream", streamHandler.Stream)
	})
	return r
}

func localRouter() http.Handler {
	backend := local.New(stubModel{text: "ok"}, "test-model", logger.NewNop())
	return testRouter(backend.Dial(), local.DefaultAgentID)
}

func TestStartSession(t *testing.T) {
	router := localRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/sess-1", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp model.StartSessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "sess-1", resp.SessionID)
	assert.NotEmpty(t, resp.ThreadID)
}

func TestStartSessionInvalidID(t *testing.T) {
	router := localRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/bad.id", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartSessionBackendUnreachable(t *testing.T) {
	dial := func(ctx context.Context) (agent.Transport, error) {
		return nil, errors.New("service unreachable")
	}
	router := testRouter(dial, "agent-1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/sess-1", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestSendMessage(t *testing.T) {
	router := localRouter()

	body := strings.NewReader(`{"content":"hello"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/sess-1/messages", body))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp model.SendMessageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "sess-1", resp.SessionID)
	assert.Equal(t, "ok", resp.Reply)
}

func TestSendMessageEmptyContent(t *testing.T) {
	router := localRouter()

	body := strings.NewReader(`{"content":""}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/sess-1/messages", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessageMalformedBody(t *testing.T) {
	router := localRouter()

	body := strings.NewReader(`{"content":`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/sess-1/messages", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessageBackendUnreachable(t *testing.T) {
	dial := func(ctx context.Context) (agent.Transport, error) {
		return nil, errors.New("service unreachable")
	}
	router := testRouter(dial, "agent-1")

	body := strings.NewReader(`{"content":"hello"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/sess-1/messages", body))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEndSession(t *testing.T) {
	router := localRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/sess-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/sess-1", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestStreamDeliversFragmentsAndDone(t *testing.T) {
	router := localRouter()

	body := strings.NewReader(`{"content":"hello"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/sess-1/stream", body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	out := rec.Body.String()
	assert.Contains(t, out, "event: fragment")
	assert.Contains(t, out, "event: done")
	assert.Contains(t, out, `"reply":"ok"`)
	assert.NotContains(t, out, "event: error")
}

func TestStreamInvalidSessionID(t *testing.T) {
	router := localRouter()

	body := strings.NewReader(`{"content":"hello"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/bad.id/stream", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamBackendUnreachable(t *testing.T) {
	dial := func(ctx context.Context) (agent.Transport, error) {
		return nil, errors.New("service unreachable")
	}
	router := testRouter(dial, "agent-1")

	body := strings.NewReader(`{"content":"hello"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/sess-1/stream", body))

	out := rec.Body.String()
	assert.Contains(t, out, "event: error")
	assert.Contains(t, out, "not_connected")
}
