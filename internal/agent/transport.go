package agent

import (
	"context"
	"errors"
)

var (
	// ErrThreadNotFound is returned by GetThread when the thread id is no
	// longer retrievable on the service.
	ErrThreadNotFound = errors.New("agent: thread not found")

	// ErrStreamingUnsupported is returned by StreamRun when the backend has
	// no live event stream. Callers fall back to polling.
	ErrStreamingUnsupported = errors.New("agent: transport does not support run streaming")
)

// RunStream is a scoped handle on a run's live event stream. Recv returns
// events strictly in arrival order and io.EOF once the stream is
// exhausted. Close releases the underlying connection and must be called
// on every exit path; it is safe to call more than once.
type RunStream interface {
	Recv() (StreamEvent, error)
	Close() error
}

// Transport is the capability set the session manager requires from the
// remote agent service.
type Transport interface {
	CreateThread(ctx context.Context) (ThreadRef, error)
	GetThread(ctx context.Context, threadID string) (ThreadRef, error)

	AppendMessage(ctx context.Context, threadID string, role Role, text string) (MessageRef, error)
	ListMessages(ctx context.Context, threadID string) ([]MessageRef, error)

	CreateRun(ctx context.Context, threadID, agentID string) (RunRef, error)
	GetRun(ctx context.Context, threadID, runID string) (RunRef, error)

	// StreamRun submits a run and returns its live event stream.
	StreamRun(ctx context.Context, threadID, agentID string) (RunStream, error)

	GetAgent(ctx context.Context, agentID string) (AgentRef, error)
	ListAgents(ctx context.Context) ([]AgentRef, error)

	Close() error
}

// DialFunc acquires credentials and opens a transport. Each conversation
// session dials its own transport; handles are never shared between
// sessions.
type DialFunc func(ctx context.Context) (Transport, error)
