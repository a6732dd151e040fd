package model

import "time"

// FragmentEvent carries the reply accumulated so far during streaming.
// Each event's text is a prefix of the next one.
type FragmentEvent struct {
	Text string `json:"text"`
}

// DoneEvent closes a streaming response with the final reply.
type DoneEvent struct {
	Reply string `json:"reply"`
}

// ErrorEvent reports a failure over the stream.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeartbeatEvent keeps idle SSE connections alive.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
