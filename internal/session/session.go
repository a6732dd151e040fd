// Package session implements the conversation session manager: one
// durable agent thread per external chat session, a run lifecycle state
// machine for each message, incremental output assembly, and
// reconnection against a remembered thread id after teardown.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/brightline-ai/agent-gateway/internal/agent"
	"github.com/brightline-ai/agent-gateway/pkg/logger"
	"github.com/brightline-ai/agent-gateway/pkg/metrics"
)

// ErrNotConnected is returned when a message is sent while the session
// cannot reach the agent service.
var ErrNotConnected = errors.New("session: agent connection unavailable")

const wakePrompt = "The chat session is starting. Reply with a short greeting."

// Config carries the run state machine budgets.
type Config struct {
	// AgentID selects the remote agent. Empty picks the first agent the
	// service lists.
	AgentID string
	// PollInterval is the sleep between run status checks.
	PollInterval time.Duration
	// MaxPolls bounds the polling loop for regular messages.
	MaxPolls int
	// WakePolls bounds the polling loop for the warm-up run.
	WakePolls int
	// StreamBudget bounds the total duration of one streaming run.
	StreamBudget time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.MaxPolls <= 0 {
		c.MaxPolls = 60
	}
	if c.WakePolls <= 0 {
		c.WakePolls = 30
	}
	if c.StreamBudget <= 0 {
		c.StreamBudget = 5 * time.Minute
	}
	return c
}

// Transcript receives a durable copy of conversation traffic. Failures
// are logged, never surfaced to the user.
type Transcript interface {
	RecordMessage(ctx context.Context, sessionID string, msg agent.MessageRef) error
	RecordOutcome(ctx context.Context, sessionID, kind, reply string) error
}

// Option configures a Session.
type Option func(*Session)

// WithRememberedThread seeds the session with a previously used thread id
// for rehydration.
func WithRememberedThread(threadID string) Option {
	return func(s *Session) { s.threadID = threadID }
}

// WithThreadHook registers a callback invoked with the resolved thread id
// after every successful initialization.
func WithThreadHook(hook func(threadID string)) Option {
	return func(s *Session) { s.onThread = hook }
}

// WithTranscript attaches a transcript sink.
func WithTranscript(t Transcript) Option {
	return func(s *Session) { s.transcript = t }
}

// Session owns one conversation with the remote agent service. All
// operations are serialized by an internal mutex; distinct sessions are
// fully independent.
type Session struct {
	id         string
	dial       agent.DialFunc
	cfg        Config
	log        *logger.Logger
	transcript Transcript
	onThread   func(threadID string)

	mu          sync.Mutex
	transport   agent.Transport
	agentRef    *agent.AgentRef
	thread      *agent.ThreadRef
	threadID    string // survives Cleanup; enables rehydration
	initialized bool
}

// New constructs an uninitialized session.
func New(id string, dial agent.DialFunc, cfg Config, log *logger.Logger, opts ...Option) *Session {
	s := &Session{
		id:   id,
		dial: dial,
		cfg:  cfg.withDefaults(),
		log:  log.WithSession(id),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the external session identifier.
func (s *Session) ID() string {
	return s.id
}

// ThreadID returns the remembered agent thread id, if any.
func (s *Session) ThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadID
}

// Initialized reports whether the session currently holds live handles.
func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Initialize dials the agent service, resolves the agent and resolves the
// thread. When existingThreadID is set the thread is fetched; on any
// failure a fresh thread is created instead — losing an old thread is not
// fatal. On unrecoverable failure the session is left cleanly
// uninitialized.
func (s *Session) Initialize(ctx context.Context, existingThreadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initializeLocked(ctx, existingThreadID)
}

func (s *Session) initializeLocked(ctx context.Context, existingThreadID string) error {
	transport, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial agent service: %w", err)
	}
	s.transport = transport

	ref, err := s.resolveAgent(ctx)
	if err != nil {
		s.cleanupLocked()
		return fmt.Errorf("resolve agent: %w", err)
	}
	s.agentRef = &ref

	thread, resumed, err := s.resolveThread(ctx, existingThreadID)
	if err != nil {
		s.cleanupLocked()
		return fmt.Errorf("resolve thread: %w", err)
	}
	s.thread = &thread
	s.threadID = thread.ID
	s.initialized = true

	if s.onThread != nil {
		s.onThread(thread.ID)
	}

	s.log.Info("session initialized",
		zap.String("agent_id", ref.ID),
		zap.String("thread_id", thread.ID),
		zap.Bool("resumed", resumed),
	)
	return nil
}

func (s *Session) resolveAgent(ctx context.Context) (agent.AgentRef, error) {
	if s.cfg.AgentID != "" {
		return s.transport.GetAgent(ctx, s.cfg.AgentID)
	}

	agents, err := s.transport.ListAgents(ctx)
	if err != nil {
		return agent.AgentRef{}, err
	}
	if len(agents) == 0 {
		return agent.AgentRef{}, errors.New("no agents available on the service")
	}
	return agents[0], nil
}

func (s *Session) resolveThread(ctx context.Context, existingThreadID string) (agent.ThreadRef, bool, error) {
	if existingThreadID != "" {
		thread, err := s.transport.GetThread(ctx, existingThreadID)
		if err == nil {
			metrics.ThreadRehydrationsTotal.WithLabelValues("resumed").Inc()
			return thread, true, nil
		}
		s.log.Warn("stored thread not retrievable, starting fresh",
			zap.String("thread_id", existingThreadID),
			zap.Error(err),
		)
		metrics.ThreadRehydrationsTotal.WithLabelValues("replaced").Inc()
	}

	thread, err := s.transport.CreateThread(ctx)
	return thread, false, err
}

// EnsureConnected re-initializes the session with the remembered thread
// id when needed. It is the sole reconnection entry point and a no-op on
// an already initialized session.
func (s *Session) EnsureConnected(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureConnectedLocked(ctx)
}

func (s *Session) ensureConnectedLocked(ctx context.Context) error {
	if s.initialized {
		return nil
	}
	return s.initializeLocked(ctx, s.threadID)
}

// SendMessage relays one user message and returns the agent's reply,
// driving the run by polling. Run-level failures come back as reply text;
// the error is non-nil only when the session cannot connect at all.
func (s *Session) SendMessage(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureConnectedLocked(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	userMsg, err := s.transport.AppendMessage(ctx, s.thread.ID, agent.RoleUser, text)
	if err != nil {
		out := transportOutcome(err)
		s.finishRun(ctx, "poll", out, time.Now())
		return out.Reply, nil
	}
	s.record(ctx, userMsg)

	start := time.Now()
	out := s.runnerLocked(s.cfg.MaxPolls).awaitReply(ctx, s.thread.ID, s.agentRef.ID, userMsg.Ordinal)
	s.finishRun(ctx, "poll", out, start)
	return out.Reply, nil
}

// SendMessageStreaming relays one user message and streams the reply
// through sink as monotonically growing prefixes before returning the
// final text. Backends without an event stream fall back to polling, in
// which case sink may never be invoked.
func (s *Session) SendMessageStreaming(ctx context.Context, text string, sink FragmentSink) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureConnectedLocked(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	userMsg, err := s.transport.AppendMessage(ctx, s.thread.ID, agent.RoleUser, text)
	if err != nil {
		out := transportOutcome(err)
		s.finishRun(ctx, "stream", out, time.Now())
		s.cleanupLocked()
		return out.Reply, nil
	}
	s.record(ctx, userMsg)

	start := time.Now()
	out := s.runnerLocked(s.cfg.MaxPolls).streamReply(ctx, s.thread.ID, s.agentRef.ID, sink)
	if out.Kind == OutcomeUnsupported {
		out = s.runnerLocked(s.cfg.MaxPolls).awaitReply(ctx, s.thread.ID, s.agentRef.ID, userMsg.Ordinal)
		s.finishRun(ctx, "poll", out, start)
		return out.Reply, nil
	}

	s.finishRun(ctx, "stream", out, start)
	if out.Kind == OutcomeTransport {
		// A broken stream leaves the connection in doubt; force
		// re-initialization on the next call.
		s.cleanupLocked()
	}
	return out.Reply, nil
}

// Warm issues a throwaway run to absorb the service's cold-start latency
// before the first real message. Its outcome is informational only.
func (s *Session) Warm(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return
	}

	msg, err := s.transport.AppendMessage(ctx, s.thread.ID, agent.RoleSystem, wakePrompt)
	if err != nil {
		s.log.Warn("wake message failed", zap.Error(err))
		metrics.WakeRunsTotal.WithLabelValues(OutcomeTransport.String()).Inc()
		return
	}

	out := s.runnerLocked(s.cfg.WakePolls).awaitReply(ctx, s.thread.ID, s.agentRef.ID, msg.Ordinal)
	metrics.WakeRunsTotal.WithLabelValues(out.Kind.String()).Inc()
	s.log.Info("wake run finished", zap.String("outcome", out.Kind.String()))
}

// Cleanup releases the transport and object handles. The remembered
// thread id is retained so a later EnsureConnected resumes the same
// conversation.
func (s *Session) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
}

func (s *Session) cleanupLocked() {
	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			s.log.Warn("transport close failed", zap.Error(err))
		}
	}
	s.transport = nil
	s.agentRef = nil
	s.thread = nil
	s.initialized = false
}

func (s *Session) runnerLocked(maxPolls int) *runner {
	return &runner{
		transport:    s.transport,
		log:          s.log,
		pollInterval: s.cfg.PollInterval,
		maxPolls:     maxPolls,
		streamBudget: s.cfg.StreamBudget,
	}
}

func (s *Session) finishRun(ctx context.Context, mode string, out Outcome, start time.Time) {
	metrics.RecordRun(mode, out.Kind.String(), time.Since(start).Seconds())

	if s.transcript != nil {
		if out.Kind == OutcomeCompleted {
			s.record(ctx, agent.MessageRef{Role: agent.RoleAssistant, Text: out.Reply})
		}
		if err := s.transcript.RecordOutcome(ctx, s.id, out.Kind.String(), out.Reply); err != nil {
			s.log.Warn("transcript outcome failed", zap.Error(err))
		}
	}

	if out.Kind != OutcomeCompleted {
		s.log.Info("run finished without reply", zap.String("outcome", out.Kind.String()))
	}
}

func (s *Session) record(ctx context.Context, msg agent.MessageRef) {
	if s.transcript == nil {
		return
	}
	if err := s.transcript.RecordMessage(ctx, s.id, msg); err != nil {
		s.log.Warn("transcript message failed", zap.Error(err))
	}
}
