package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightline-ai/agent-gateway/internal/agent"
	"github.com/brightline-ai/agent-gateway/pkg/logger"
)

func testConfig() Config {
	return Config{
		AgentID:      "agent-1",
		PollInterval: time.Millisecond,
		MaxPolls:     5,
		WakePolls:    5,
		StreamBudget: time.Second,
	}
}

func TestInitializeCreatesThread(t *testing.T) {
	ft := newFakeTransport()
	s := New("sess-1", ft.dial, testConfig(), logger.NewNop())

	require.NoError(t, s.Initialize(context.Background(), ""))

	assert.True(t, s.Initialized())
	assert.NotEmpty(t, s.ThreadID())
}

func TestInitializeResumesRememberedThread(t *testing.T) {
	ft := newFakeTransport()
	ft.threads["thread-old"] = true

	s := New("sess-1", ft.dial, testConfig(), logger.NewNop(),
		WithRememberedThread("thread-old"))

	require.NoError(t, s.EnsureConnected(context.Background()))
	assert.Equal(t, "thread-old", s.ThreadID())
}

func TestInitializeReplacesUnfetchableThread(t *testing.T) {
	ft := newFakeTransport()

	s := New("sess-1", ft.dial, testConfig(), logger.NewNop(),
		WithRememberedThread("thread-gone"))

	require.NoError(t, s.EnsureConnected(context.Background()))
	assert.True(t, s.Initialized())
	assert.NotEqual(t, "thread-gone", s.ThreadID())
	assert.NotEmpty(t, s.ThreadID())
}

func TestInitializeInvokesThreadHook(t *testing.T) {
	ft := newFakeTransport()

	var recorded string
	s := New("sess-1", ft.dial, testConfig(), logger.NewNop(),
		WithThreadHook(func(threadID string) { recorded = threadID }))

	require.NoError(t, s.Initialize(context.Background(), ""))
	assert.Equal(t, s.ThreadID(), recorded)
}

func TestInitializeResolvesFirstAgentWhenUnconfigured(t *testing.T) {
	ft := newFakeTransport()
	cfg := testConfig()
	cfg.AgentID = ""

	s := New("sess-1", ft.dial, cfg, logger.NewNop())

	require.NoError(t, s.Initialize(context.Background(), ""))
	assert.True(t, s.Initialized())
}

func TestEnsureConnectedIsIdempotent(t *testing.T) {
	ft := newFakeTransport()
	s := New("sess-1", ft.dial, testConfig(), logger.NewNop())

	ctx := context.Background()
	require.NoError(t, s.EnsureConnected(ctx))
	require.NoError(t, s.EnsureConnected(ctx))

	assert.Equal(t, 1, ft.dials)
}

func TestSendMessageNotConnected(t *testing.T) {
	dial := func(ctx context.Context) (agent.Transport, error) {
		return nil, errors.New("service unreachable")
	}
	s := New("sess-1", dial, testConfig(), logger.NewNop())

	_, err := s.SendMessage(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSendMessageReturnsReply(t *testing.T) {
	ft := newFakeTransport()
	ft.replyText = "hello there"

	s := New("sess-1", ft.dial, testConfig(), logger.NewNop())

	reply, err := s.SendMessage(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello there", reply)
}

func TestSendMessageAppendFailureBecomesReplyText(t *testing.T) {
	ft := newFakeTransport()
	s := New("sess-1", ft.dial, testConfig(), logger.NewNop())
	require.NoError(t, s.EnsureConnected(context.Background()))

	ft.appendErr = errors.New("boom")

	reply, err := s.SendMessage(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Error: boom", reply)
}

func TestSendMessageStreamingDeliversPrefixes(t *testing.T) {
	ft := newFakeTransport()
	ft.streamEvents = []agent.StreamEvent{
		{Kind: agent.EventDelta, Delta: "Hel"},
		{Kind: agent.EventDelta, Delta: "lo "},
		{Kind: agent.EventDelta, Delta: "world"},
		{Kind: agent.EventDone},
	}

	s := New("sess-1", ft.dial, testConfig(), logger.NewNop())

	var seen []string
	reply, err := s.SendMessageStreaming(context.Background(), "hi", func(text string) {
		seen = append(seen, text)
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello world", reply)
	assert.Equal(t, []string{"Hel", "Hello ", "Hello world"}, seen)
	assert.True(t, s.Initialized())
}

func TestSendMessageStreamingFallsBackToPolling(t *testing.T) {
	ft := newFakeTransport()
	ft.streamErr = agent.ErrStreamingUnsupported
	ft.replyText = "polled reply"

	s := New("sess-1", ft.dial, testConfig(), logger.NewNop())

	sinkCalled := false
	reply, err := s.SendMessageStreaming(context.Background(), "hi", func(string) {
		sinkCalled = true
	})
	require.NoError(t, err)
	assert.Equal(t, "polled reply", reply)
	assert.False(t, sinkCalled)
	assert.True(t, s.Initialized())
}

func TestSendMessageStreamingFaultInvalidatesSession(t *testing.T) {
	ft := newFakeTransport()
	ft.recvErr = errors.New("connection reset")

	s := New("sess-1", ft.dial, testConfig(), logger.NewNop())

	reply, err := s.SendMessageStreaming(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "Error: connection reset", reply)
	assert.False(t, s.Initialized())
	assert.True(t, ft.lastStream.closed)

	// The next send reconnects transparently.
	ft.recvErr = nil
	ft.replyText = "recovered"
	reply, err = s.SendMessage(context.Background(), "again")
	require.NoError(t, err)
	assert.Equal(t, "recovered", reply)
	assert.Equal(t, 2, ft.dials)
}

func TestCleanupRetainsThreadForResumption(t *testing.T) {
	ft := newFakeTransport()
	s := New("sess-1", ft.dial, testConfig(), logger.NewNop())

	ctx := context.Background()
	require.NoError(t, s.EnsureConnected(ctx))
	threadID := s.ThreadID()
	require.NotEmpty(t, threadID)

	s.Cleanup()
	assert.False(t, s.Initialized())
	assert.Equal(t, threadID, s.ThreadID())
	assert.Equal(t, 1, ft.closes)

	require.NoError(t, s.EnsureConnected(ctx))
	assert.Equal(t, threadID, s.ThreadID())
	assert.Equal(t, 2, ft.dials)
}

func TestWarmAppendsWakeMessage(t *testing.T) {
	ft := newFakeTransport()
	ft.replyText = "good morning"

	s := New("sess-1", ft.dial, testConfig(), logger.NewNop())
	ctx := context.Background()
	require.NoError(t, s.EnsureConnected(ctx))

	s.Warm(ctx)

	msgs := ft.messages[s.ThreadID()]
	require.NotEmpty(t, msgs)
	var wake *agent.MessageRef
	for i := range msgs {
		if msgs[i].Role == agent.RoleSystem {
			wake = &msgs[i]
		}
	}
	require.NotNil(t, wake, "wake message not appended")
	assert.Equal(t, wakePrompt, wake.Text)
}

func TestWarmOnUninitializedSessionIsNoop(t *testing.T) {
	ft := newFakeTransport()
	s := New("sess-1", ft.dial, testConfig(), logger.NewNop())

	s.Warm(context.Background())
	assert.Zero(t, ft.dials)
}

func TestConfigDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	assert.Equal(t, time.Second, c.PollInterval)
	assert.Equal(t, 60, c.MaxPolls)
	assert.Equal(t, 30, c.WakePolls)
	assert.Equal(t, 5*time.Minute, c.StreamBudget)
}
