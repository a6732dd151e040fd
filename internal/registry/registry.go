// Package registry maps external chat session identifiers to
// conversation sessions and persists the session-to-thread mapping
// independently of the session objects, so a session discarded by worker
// recycling can be rebuilt against the same agent thread.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/brightline-ai/agent-gateway/internal/agent"
	"github.com/brightline-ai/agent-gateway/internal/session"
	"github.com/brightline-ai/agent-gateway/pkg/logger"
	"github.com/brightline-ai/agent-gateway/pkg/metrics"
)

// ErrNoThread is returned by ThreadStore.Get when no thread has been
// recorded for the session.
var ErrNoThread = errors.New("registry: no thread recorded for session")

// ThreadStore persists the (session id -> agent thread id) mapping. This
// is the only state that must survive session object destruction.
type ThreadStore interface {
	Put(ctx context.Context, sessionID, threadID string) error
	Get(ctx context.Context, sessionID string) (string, error)
}

// Option configures a Registry.
type Option func(*Registry)

// WithTranscript attaches a transcript sink to every session.
func WithTranscript(t session.Transcript) Option {
	return func(r *Registry) { r.transcript = t }
}

// Registry owns at most one conversation session per external session id.
type Registry struct {
	dial       agent.DialFunc
	cfg        session.Config
	store      ThreadStore
	log        *logger.Logger
	transcript session.Transcript

	mu       sync.Mutex
	sessions map[string]*session.Session
}

// New creates a registry.
func New(dial agent.DialFunc, cfg session.Config, store ThreadStore, log *logger.Logger, opts ...Option) *Registry {
	r := &Registry{
		dial:     dial,
		cfg:      cfg,
		store:    store,
		log:      log,
		sessions: make(map[string]*session.Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the session registered under sessionID, building a
// new one seeded with any remembered thread id when absent.
func (r *Registry) GetOrCreate(ctx context.Context, sessionID string) *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[sessionID]; ok {
		return s
	}

	remembered, err := r.store.Get(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrNoThread) {
		r.log.Warn("thread store lookup failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}

	opts := []session.Option{
		session.WithRememberedThread(remembered),
		session.WithThreadHook(func(threadID string) {
			r.recordThread(sessionID, threadID)
		}),
	}
	if r.transcript != nil {
		opts = append(opts, session.WithTranscript(r.transcript))
	}

	s := session.New(sessionID, r.dial, r.cfg, r.log, opts...)
	r.sessions[sessionID] = s
	metrics.SessionsActive.Inc()
	return s
}

// OnSessionEnd tears down the session's live handles and drops it from
// the registry. The thread mapping is deliberately retained so a later
// GetOrCreate can resume the conversation.
func (r *Registry) OnSessionEnd(sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	if !ok {
		return
	}
	s.Cleanup()
	metrics.SessionsActive.Dec()
}

// recordThread persists the mapping after every successful
// initialization. Persistence failures are logged; the session keeps
// working, it just loses continuity across a restart.
func (r *Registry) recordThread(sessionID, threadID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.store.Put(ctx, sessionID, threadID); err != nil {
		r.log.Error("thread store write failed",
			zap.String("session_id", sessionID),
			zap.String("thread_id", threadID),
			zap.Error(err),
		)
	}
}
