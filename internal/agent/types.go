// Package agent models the remote conversational agent service as an
// abstract capability set: durable threads, append-only messages, runs and
// run event streams. The session manager depends on this package only,
// never on a concrete client library.
package agent

// Role identifies the author of a thread message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// RunStatus is the lifecycle state of a run as reported by the service.
type RunStatus string

const (
	StatusQueued         RunStatus = "queued"
	StatusInProgress     RunStatus = "in_progress"
	StatusRequiresAction RunStatus = "requires_action"
	StatusCompleted      RunStatus = "completed"
	StatusFailed         RunStatus = "failed"
	StatusCancelled      RunStatus = "cancelled"
	StatusExpired        RunStatus = "expired"
	StatusUnknown        RunStatus = "unknown"
)

// Terminal reports whether the run can no longer make progress.
// requires_action counts as non-terminal: the run is still awaited until
// the local attempt budget runs out.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusQueued, StatusInProgress, StatusRequiresAction:
		return false
	}
	return true
}

// ThreadRef identifies a durable server-side conversation thread. The
// service owns the thread; holders keep only the id.
type ThreadRef struct {
	ID string `json:"id"`
}

// AgentRef identifies a configured agent on the remote service.
type AgentRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// RunRef is one request/response execution against a thread, carrying the
// most recently observed status.
type RunRef struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Status    RunStatus `json:"status"`
	LastError string    `json:"last_error,omitempty"`
}

// MessageRef is one entry in a thread. Ordinal is the creation order
// assigned by the service and is the sole ordering signal used to locate
// the assistant's reply.
type MessageRef struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Text    string `json:"text"`
	Ordinal int64  `json:"ordinal"`
}
