// Package assistants adapts the OpenAI Assistants API to the agent
// transport interface. A custom base URL supports Azure-style deployments
// of the same API surface.
package assistants

import (
	"context"
	"errors"
	"net/http"
	"sort"

	"github.com/sashabaranov/go-openai"

	"github.com/brightline-ai/agent-gateway/internal/agent"
)

// Config holds connection settings for the remote service.
type Config struct {
	APIKey  string
	BaseURL string
}

// Transport talks to an Assistants-style agent service.
type Transport struct {
	client *openai.Client
}

// New creates a transport against the remote service.
func New(cfg Config) (*Transport, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("assistants: API key is required")
	}

	cc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		cc.BaseURL = cfg.BaseURL
	}

	return &Transport{client: openai.NewClientWithConfig(cc)}, nil
}

// Dial returns a dialer that opens a fresh transport per session.
func Dial(cfg Config) agent.DialFunc {
	return func(ctx context.Context) (agent.Transport, error) {
		return New(cfg)
	}
}

// CreateThread creates a new durable thread.
func (t *Transport) CreateThread(ctx context.Context) (agent.ThreadRef, error) {
	thread, err := t.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return agent.ThreadRef{}, err
	}
	return agent.ThreadRef{ID: thread.ID}, nil
}

// GetThread retrieves an existing thread by id.
func (t *Transport) GetThread(ctx context.Context, threadID string) (agent.ThreadRef, error) {
	thread, err := t.client.RetrieveThread(ctx, threadID)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusNotFound {
			return agent.ThreadRef{}, agent.ErrThreadNotFound
		}
		return agent.ThreadRef{}, err
	}
	return agent.ThreadRef{ID: thread.ID}, nil
}

// AppendMessage appends a message to a thread. The assistants message API
// only accepts user and assistant roles; system is sent as user.
func (t *Transport) AppendMessage(ctx context.Context, threadID string, role agent.Role, text string) (agent.MessageRef, error) {
	apiRole := string(role)
	if role == agent.RoleSystem {
		apiRole = string(agent.RoleUser)
	}

	msg, err := t.client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    apiRole,
		Content: text,
	})
	if err != nil {
		return agent.MessageRef{}, err
	}

	return agent.MessageRef{
		ID:      msg.ID,
		Role:    role,
		Text:    text,
		Ordinal: int64(msg.CreatedAt),
	}, nil
}

// ListMessages returns the thread's messages ordered by creation.
func (t *Transport) ListMessages(ctx context.Context, threadID string) ([]agent.MessageRef, error) {
	list, err := t.client.ListMessage(ctx, threadID, nil, nil, nil, nil)
	if err != nil {
		return nil, err
	}

	refs := make([]agent.MessageRef, 0, len(list.Messages))
	for _, msg := range list.Messages {
		refs = append(refs, agent.MessageRef{
			ID:      msg.ID,
			Role:    agent.Role(msg.Role),
			Text:    messageText(msg),
			Ordinal: int64(msg.CreatedAt),
		})
	}

	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Ordinal < refs[j].Ordinal })
	return refs, nil
}

// CreateRun submits a new run against a thread.
func (t *Transport) CreateRun(ctx context.Context, threadID, agentID string) (agent.RunRef, error) {
	run, err := t.client.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: agentID})
	if err != nil {
		return agent.RunRef{}, err
	}
	return runRef(run), nil
}

// GetRun refreshes a run's status.
func (t *Transport) GetRun(ctx context.Context, threadID, runID string) (agent.RunRef, error) {
	run, err := t.client.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return agent.RunRef{}, err
	}
	return runRef(run), nil
}

// StreamRun is not available on this backend; the client library exposes
// no assistants event stream. Callers fall back to polling.
func (t *Transport) StreamRun(ctx context.Context, threadID, agentID string) (agent.RunStream, error) {
	return nil, agent.ErrStreamingUnsupported
}

// GetAgent retrieves an assistant by id.
func (t *Transport) GetAgent(ctx context.Context, agentID string) (agent.AgentRef, error) {
	a, err := t.client.RetrieveAssistant(ctx, agentID)
	if err != nil {
		return agent.AgentRef{}, err
	}
	return agentRef(a), nil
}

// ListAgents lists the assistants visible to the credential.
func (t *Transport) ListAgents(ctx context.Context) ([]agent.AgentRef, error) {
	list, err := t.client.ListAssistants(ctx, nil, nil, nil, nil)
	if err != nil {
		return nil, err
	}

	refs := make([]agent.AgentRef, 0, len(list.Assistants))
	for _, a := range list.Assistants {
		refs = append(refs, agentRef(a))
	}
	return refs, nil
}

// Close releases the transport. The underlying HTTP client holds no
// persistent connections that need explicit teardown.
func (t *Transport) Close() error {
	return nil
}

func runRef(run openai.Run) agent.RunRef {
	ref := agent.RunRef{
		ID:       run.ID,
		ThreadID: run.ThreadID,
		Status:   mapStatus(run.Status),
	}
	if run.LastError != nil {
		ref.LastError = run.LastError.Message
	}
	return ref
}

func agentRef(a openai.Assistant) agent.AgentRef {
	ref := agent.AgentRef{ID: a.ID}
	if a.Name != nil {
		ref.Name = *a.Name
	}
	return ref
}

func mapStatus(status openai.RunStatus) agent.RunStatus {
	switch status {
	case openai.RunStatusQueued:
		return agent.StatusQueued
	case openai.RunStatusInProgress:
		return agent.StatusInProgress
	case openai.RunStatusRequiresAction:
		return agent.StatusRequiresAction
	case openai.RunStatusCompleted:
		return agent.StatusCompleted
	case openai.RunStatusFailed:
		return agent.StatusFailed
	case openai.RunStatusExpired:
		return agent.StatusExpired
	default:
		return agent.StatusUnknown
	}
}

func messageText(msg openai.Message) string {
	var text string
	for _, content := range msg.Content {
		if content.Type == "text" && content.Text != nil {
			text += content.Text.Value
		}
	}
	return text
}
