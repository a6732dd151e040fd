package local

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightline-ai/agent-gateway/internal/agent"
	"github.com/brightline-ai/agent-gateway/internal/llm"
	"github.com/brightline-ai/agent-gateway/pkg/logger"
)

type scriptedModel struct {
	deltas []string
	err    error
}

func (m scriptedModel) Generate(ctx context.Context, req *llm.Request) (*llm.Result, error) {
	if m.err != nil {
		return nil, m.err
	}
	var text string
	for _, d := range m.deltas {
		text += d
	}
	return &llm.Result{Text: text}, nil
}

func (m scriptedModel) GenerateStream(ctx context.Context, req *llm.Request, onDelta llm.DeltaFunc) (*llm.Result, error) {
	if m.err != nil {
		return nil, m.err
	}
	var text string
	for _, d := range m.deltas {
		if err := onDelta(d); err != nil {
			return nil, err
		}
		text += d
	}
	return &llm.Result{Text: text}, nil
}

func (m scriptedModel) Name() string { return "scripted" }

func newTestBackend(model llm.Client) *Backend {
	return New(model, "test-model", logger.NewNop())
}

func TestThreadLifecycle(t *testing.T) {
	b := newTestBackend(scriptedModel{})
	ctx := context.Background()

	thread, err := b.CreateThread(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, thread.ID)

	got, err := b.GetThread(ctx, thread.ID)
	require.NoError(t, err)
	assert.Equal(t, thread.ID, got.ID)

	_, err = b.GetThread(ctx, "thread_nope")
	assert.ErrorIs(t, err, agent.ErrThreadNotFound)
}

func TestAppendMessageAssignsIncreasingOrdinals(t *testing.T) {
	b := newTestBackend(scriptedModel{})
	ctx := context.Background()

	thread, err := b.CreateThread(ctx)
	require.NoError(t, err)

	first, err := b.AppendMessage(ctx, thread.ID, agent.RoleUser, "one")
	require.NoError(t, err)
	second, err := b.AppendMessage(ctx, thread.ID, agent.RoleUser, "two")
	require.NoError(t, err)
	assert.Greater(t, second.Ordinal, first.Ordinal)

	msgs, err := b.ListMessages(ctx, thread.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", msgs[0].Text)
	assert.Equal(t, "two", msgs[1].Text)
}

func TestRunCompletesAndAppendsReply(t *testing.T) {
	b := newTestBackend(scriptedModel{deltas: []string{"hi ", "there"}})
	ctx := context.Background()

	thread, err := b.CreateThread(ctx)
	require.NoError(t, err)
	userMsg, err := b.AppendMessage(ctx, thread.ID, agent.RoleUser, "hello")
	require.NoError(t, err)

	run, err := b.CreateRun(ctx, thread.ID, DefaultAgentID)
	require.NoError(t, err)
	assert.False(t, run.Status.Terminal())

	require.Eventually(t, func() bool {
		r, err := b.GetRun(ctx, thread.ID, run.ID)
		return err == nil && r.Status == agent.StatusCompleted
	}, time.Second, time.Millisecond)

	msgs, err := b.ListMessages(ctx, thread.ID)
	require.NoError(t, err)
	last := msgs[len(msgs)-1]
	assert.Equal(t, agent.RoleAssistant, last.Role)
	assert.Equal(t, "hi there", last.Text)
	assert.Greater(t, last.Ordinal, userMsg.Ordinal)
}

func TestRunFailureCarriesLastError(t *testing.T) {
	b := newTestBackend(scriptedModel{err: errors.New("model unavailable")})
	ctx := context.Background()

	thread, err := b.CreateThread(ctx)
	require.NoError(t, err)

	run, err := b.CreateRun(ctx, thread.ID, DefaultAgentID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		r, err := b.GetRun(ctx, thread.ID, run.ID)
		return err == nil && r.Status == agent.StatusFailed
	}, time.Second, time.Millisecond)

	r, err := b.GetRun(ctx, thread.ID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "model unavailable", r.LastError)
}

func TestStreamRunEmitsDeltasThenDone(t *testing.T) {
	b := newTestBackend(scriptedModel{deltas: []string{"a", "b", "c"}})
	ctx := context.Background()

	thread, err := b.CreateThread(ctx)
	require.NoError(t, err)
	_, err = b.AppendMessage(ctx, thread.ID, agent.RoleUser, "go")
	require.NoError(t, err)

	stream, err := b.StreamRun(ctx, thread.ID, DefaultAgentID)
	require.NoError(t, err)
	defer stream.Close()

	var deltas []string
	var kinds []agent.EventKind
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		kinds = append(kinds, ev.Kind)
		if ev.Kind == agent.EventDelta {
			deltas = append(deltas, ev.Delta)
		}
	}

	assert.Equal(t, []string{"a", "b", "c"}, deltas)
	require.NotEmpty(t, kinds)
	assert.Equal(t, agent.EventDone, kinds[len(kinds)-1])

	// The assembled reply lands in the thread like any other message.
	msgs, err := b.ListMessages(ctx, thread.ID)
	require.NoError(t, err)
	last := msgs[len(msgs)-1]
	assert.Equal(t, agent.RoleAssistant, last.Role)
	assert.Equal(t, "abc", last.Text)
}

func TestStreamRunModelFailure(t *testing.T) {
	b := newTestBackend(scriptedModel{err: errors.New("model unavailable")})
	ctx := context.Background()

	thread, err := b.CreateThread(ctx)
	require.NoError(t, err)

	stream, err := b.StreamRun(ctx, thread.ID, DefaultAgentID)
	require.NoError(t, err)
	defer stream.Close()

	sawError := false
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		if ev.Kind == agent.EventError {
			sawError = true
			assert.Equal(t, "model unavailable", ev.Err)
		}
	}
	assert.True(t, sawError)
}

func TestAgentDirectory(t *testing.T) {
	b := newTestBackend(scriptedModel{})
	ctx := context.Background()

	agents, err := b.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, DefaultAgentID, agents[0].ID)

	got, err := b.GetAgent(ctx, DefaultAgentID)
	require.NoError(t, err)
	assert.Equal(t, agents[0], got)

	_, err = b.GetAgent(ctx, "other")
	assert.Error(t, err)
}

func TestCloseKeepsThreadState(t *testing.T) {
	b := newTestBackend(scriptedModel{})
	ctx := context.Background()

	thread, err := b.CreateThread(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Close())

	got, err := b.GetThread(ctx, thread.ID)
	require.NoError(t, err)
	assert.Equal(t, thread.ID, got.ID)
}
