package agent

// EventKind discriminates run stream events. The set is closed; consumers
// switch over it and ignore the kinds they do not handle.
type EventKind string

const (
	// EventDelta carries an incremental fragment of assistant output text.
	EventDelta EventKind = "delta"
	// EventRun is a run status change notification.
	EventRun EventKind = "run"
	// EventMessage is a message lifecycle notification.
	EventMessage EventKind = "message"
	// EventStep is a run step notification.
	EventStep EventKind = "step"
	// EventError is a stream-level fault reported by the service.
	EventError EventKind = "error"
	// EventDone marks the normal end of the stream.
	EventDone EventKind = "done"
)

// StreamEvent is one unit of a run's live event stream. Exactly the fields
// matching Kind are populated.
type StreamEvent struct {
	Kind    EventKind
	Delta   string      // EventDelta
	Run     *RunRef     // EventRun
	Message *MessageRef // EventMessage
	Err     string      // EventError
}
