package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightline-ai/agent-gateway/internal/llm"
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

func newTestRegistry(t *testing.T) (*Registry, *local.Backend, *MemoryStore) {
	t.Helper()

	backend := local.New(stubModel{text: "ok"}, "test-model", logger.NewNop())
	store := NewMemoryStore()
	cfg := session.Config{
		AgentID:      local.DefaultAgentID,
		PollInterval: time.Millisecond,
		MaxPolls:     100,
		StreamBudget: time.Second,
	}
	return New(backend.Dial(), cfg, store, logger.NewNop()), backend, store
}

func TestGetOrCreateReturnsSameInstance(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()

	a := r.GetOrCreate(ctx, "sess-a")
	b := r.GetOrCreate(ctx, "sess-a")
	other := r.GetOrCreate(ctx, "sess-b")

	assert.Same(t, a, b)
	assert.NotSame(t, a, other)
}

func TestThreadMappingSurvivesSessionEnd(t *testing.T) {
	r, _, store := newTestRegistry(t)
	ctx := context.Background()

	s := r.GetOrCreate(ctx, "sess-a")
	require.NoError(t, s.EnsureConnected(ctx))
	threadID := s.ThreadID()
	require.NotEmpty(t, threadID)

	r.OnSessionEnd("sess-a")
	assert.False(t, s.Initialized())

	stored, err := store.Get(ctx, "sess-a")
	require.NoError(t, err)
	assert.Equal(t, threadID, stored)

	// A brand new session object resumes the same conversation thread.
	resumed := r.GetOrCreate(ctx, "sess-a")
	require.NotSame(t, s, resumed)
	require.NoError(t, resumed.EnsureConnected(ctx))
	assert.Equal(t, threadID, resumed.ThreadID())
}

func TestGetOrCreateSeedsFromStore(t *testing.T) {
	r, backend, store := newTestRegistry(t)
	ctx := context.Background()

	thread, err := backend.CreateThread(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "sess-a", thread.ID))

	s := r.GetOrCreate(ctx, "sess-a")
	require.NoError(t, s.EnsureConnected(ctx))
	assert.Equal(t, thread.ID, s.ThreadID())
}

func TestOnSessionEndUnknownSession(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	r.OnSessionEnd("never-seen")
}

func TestSendMessageThroughLocalBackend(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()

	s := r.GetOrCreate(ctx, "sess-a")
	reply, err := s.SendMessage(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNoThread)

	require.NoError(t, store.Put(ctx, "sess-a", "thread-1"))
	got, err := store.Get(ctx, "sess-a")
	require.NoError(t, err)
	assert.Equal(t, "thread-1", got)
}
