// Package local implements an in-process agent backend for development
// and tests, backed by a chat model client. Threads and runs live in
// memory; run replies are generated by the configured model.
package local

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brightline-ai/agent-gateway/internal/agent"
	"github.com/brightline-ai/agent-gateway/internal/llm"
	"github.com/brightline-ai/agent-gateway/pkg/logger"
)

// DefaultAgentID is the id of the single built-in agent.
const DefaultAgentID = "local-agent"

// Backend is an in-process agent service. One Backend is shared by all
// sessions; thread state survives session teardown so rehydration works
// within the process lifetime.
type Backend struct {
	llm   llm.Client
	model string
	ref   agent.AgentRef
	log   *logger.Logger

	mu      sync.Mutex
	ordinal int64
	threads map[string]*thread
	runs    map[string]*agent.RunRef
}

type thread struct {
	id       string
	messages []agent.MessageRef
}

// New creates a local backend on top of a chat model client.
func New(client llm.Client, model string, log *logger.Logger) *Backend {
	return &Backend{
		llm:     client,
		model:   model,
		ref:     agent.AgentRef{ID: DefaultAgentID, Name: "Local " + client.Name() + " agent"},
		log:     log,
		threads: make(map[string]*thread),
		runs:    make(map[string]*agent.RunRef),
	}
}

// Dial returns a dialer handing every session the shared backend.
func (b *Backend) Dial() agent.DialFunc {
	return func(ctx context.Context) (agent.Transport, error) {
		return b, nil
	}
}

// CreateThread creates a new in-memory thread.
func (b *Backend) CreateThread(ctx context.Context) (agent.ThreadRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := newID("thread")
	b.threads[id] = &thread{id: id}
	return agent.ThreadRef{ID: id}, nil
}

// GetThread retrieves an existing thread by id.
func (b *Backend) GetThread(ctx context.Context, threadID string) (agent.ThreadRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.threads[threadID]; !ok {
		return agent.ThreadRef{}, agent.ErrThreadNotFound
	}
	return agent.ThreadRef{ID: threadID}, nil
}

// AppendMessage appends a message to a thread with the next creation
// ordinal.
func (b *Backend) AppendMessage(ctx context.Context, threadID string, role agent.Role, text string) (agent.MessageRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	th, ok := b.threads[threadID]
	if !ok {
		return agent.MessageRef{}, agent.ErrThreadNotFound
	}
	return b.appendLocked(th, role, text), nil
}

func (b *Backend) appendLocked(th *thread, role agent.Role, text string) agent.MessageRef {
	b.ordinal++
	msg := agent.MessageRef{
		ID:      newID("msg"),
		Role:    role,
		Text:    text,
		Ordinal: b.ordinal,
	}
	th.messages = append(th.messages, msg)
	return msg
}

// ListMessages returns a copy of the thread's messages in creation order.
func (b *Backend) ListMessages(ctx context.Context, threadID string) ([]agent.MessageRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	th, ok := b.threads[threadID]
	if !ok {
		return nil, agent.ErrThreadNotFound
	}

	out := make([]agent.MessageRef, len(th.messages))
	copy(out, th.messages)
	return out, nil
}

// CreateRun submits a run; the reply is generated asynchronously so the
// caller can observe queued and in_progress states while polling.
func (b *Backend) CreateRun(ctx context.Context, threadID, agentID string) (agent.RunRef, error) {
	b.mu.Lock()
	th, ok := b.threads[threadID]
	if !ok {
		b.mu.Unlock()
		return agent.RunRef{}, agent.ErrThreadNotFound
	}
	run := &agent.RunRef{
		ID:       newID("run"),
		ThreadID: threadID,
		Status:   agent.StatusQueued,
	}
	b.runs[run.ID] = run
	turns := modelTurns(th.messages)
	b.mu.Unlock()

	go b.execute(run.ID, threadID, turns)
	return *run, nil
}

// GetRun refreshes a run's status.
func (b *Backend) GetRun(ctx context.Context, threadID, runID string) (agent.RunRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	run, ok := b.runs[runID]
	if !ok {
		return agent.RunRef{}, fmt.Errorf("local: unknown run %s", runID)
	}
	return *run, nil
}

// execute drives one run to a terminal state. The run keeps going even if
// the submitting caller abandons it, matching remote service behavior.
func (b *Backend) execute(runID, threadID string, turns []llm.Turn) {
	b.setStatus(runID, agent.StatusInProgress, "")

	res, err := b.llm.Generate(context.Background(), &llm.Request{Model: b.model, Turns: turns})
	if err != nil {
		b.log.Warn("local run failed", zap.String("run_id", runID), zap.Error(err))
		b.setStatus(runID, agent.StatusFailed, err.Error())
		return
	}

	b.mu.Lock()
	if th, ok := b.threads[threadID]; ok {
		b.appendLocked(th, agent.RoleAssistant, res.Text)
	}
	b.mu.Unlock()
	b.setStatus(runID, agent.StatusCompleted, "")
}

// StreamRun submits a run and bridges the model's streaming callbacks into
// a run event stream.
func (b *Backend) StreamRun(ctx context.Context, threadID, agentID string) (agent.RunStream, error) {
	b.mu.Lock()
	th, ok := b.threads[threadID]
	if !ok {
		b.mu.Unlock()
		return nil, agent.ErrThreadNotFound
	}
	run := &agent.RunRef{
		ID:       newID("run"),
		ThreadID: threadID,
		Status:   agent.StatusInProgress,
	}
	b.runs[run.ID] = run
	turns := modelTurns(th.messages)
	b.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s := &stream{
		events: make(chan agent.StreamEvent, 16),
		cancel: cancel,
	}

	go func() {
		defer close(s.events)

		res, err := b.llm.GenerateStream(ctx, &llm.Request{Model: b.model, Turns: turns}, func(delta string) error {
			return s.emit(ctx, agent.StreamEvent{Kind: agent.EventDelta, Delta: delta})
		})
		if err != nil {
			b.setStatus(run.ID, agent.StatusFailed, err.Error())
			s.emit(ctx, agent.StreamEvent{Kind: agent.EventError, Err: err.Error()})
			return
		}

		b.mu.Lock()
		var msg agent.MessageRef
		if th, ok := b.threads[threadID]; ok {
			msg = b.appendLocked(th, agent.RoleAssistant, res.Text)
		}
		b.mu.Unlock()
		b.setStatus(run.ID, agent.StatusCompleted, "")

		done := *run
		done.Status = agent.StatusCompleted
		s.emit(ctx, agent.StreamEvent{Kind: agent.EventMessage, Message: &msg})
		s.emit(ctx, agent.StreamEvent{Kind: agent.EventRun, Run: &done})
		s.emit(ctx, agent.StreamEvent{Kind: agent.EventDone})
	}()

	return s, nil
}

// GetAgent retrieves the built-in agent.
func (b *Backend) GetAgent(ctx context.Context, agentID string) (agent.AgentRef, error) {
	if agentID != b.ref.ID {
		return agent.AgentRef{}, fmt.Errorf("local: unknown agent %s", agentID)
	}
	return b.ref, nil
}

// ListAgents lists the single built-in agent.
func (b *Backend) ListAgents(ctx context.Context) ([]agent.AgentRef, error) {
	return []agent.AgentRef{b.ref}, nil
}

// Close is a no-op: the backend is shared across sessions and thread
// state must outlive any one of them.
func (b *Backend) Close() error {
	return nil
}

func (b *Backend) setStatus(runID string, status agent.RunStatus, lastError string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if run, ok := b.runs[runID]; ok {
		run.Status = status
		run.LastError = lastError
	}
}

// modelTurns converts thread messages into model chat turns. The system
// role is sent as user; chat model APIs reject system turns mid-thread.
func modelTurns(messages []agent.MessageRef) []llm.Turn {
	turns := make([]llm.Turn, len(messages))
	for i, m := range messages {
		role := string(m.Role)
		if m.Role == agent.RoleSystem {
			role = string(agent.RoleUser)
		}
		turns[i] = llm.Turn{Role: role, Content: m.Text}
	}
	return turns
}

func newID(prefix string) string {
	return prefix + "_" + uuid.Must(uuid.NewV7()).String()
}

// stream is a channel-backed run event stream.
type stream struct {
	events chan agent.StreamEvent
	cancel context.CancelFunc
}

func (s *stream) emit(ctx context.Context, ev agent.StreamEvent) error {
	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv returns the next event, or io.EOF when the stream has ended.
func (s *stream) Recv() (agent.StreamEvent, error) {
	ev, ok := <-s.events
	if !ok {
		return agent.StreamEvent{}, io.EOF
	}
	return ev, nil
}

// Close abandons the stream; the producer goroutine observes the
// cancellation and exits.
func (s *stream) Close() error {
	s.cancel()
	return nil
}
