package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/brightline-ai/agent-gateway/internal/agent"
)

const (
	// StreamName is the name of the transcript stream.
	StreamName = "CHAT_TRANSCRIPT"

	// SubjectPrefix is the prefix for all transcript subjects.
	SubjectPrefix = "chat"
)

// Transcript mirrors conversation traffic into JetStream for audit and
// replay. It implements session.Transcript.
type Transcript struct {
	client *Client
}

// NewTranscript creates a transcript mirror.
func NewTranscript(client *Client) *Transcript {
	return &Transcript{client: client}
}

// EnsureStream ensures the transcript stream exists with proper
// configuration.
func (t *Transcript) EnsureStream(ctx context.Context) error {
	js := t.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024, // 10GB
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Chat session messages and run outcomes",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

func messageSubject(sessionID string, role agent.Role) string {
	return fmt.Sprintf("%s.%s.msg.%s", SubjectPrefix, sessionID, role)
}

func outcomeSubject(sessionID, kind string) string {
	return fmt.Sprintf("%s.%s.outcome.%s", SubjectPrefix, sessionID, kind)
}

// transcriptMessage is the wire form of a mirrored message.
type transcriptMessage struct {
	SessionID string     `json:"session_id"`
	Role      agent.Role `json:"role"`
	Text      string     `json:"text"`
	Ordinal   int64      `json:"ordinal,omitempty"`
	At        time.Time  `json:"at"`
}

// transcriptOutcome is the wire form of a mirrored run outcome.
type transcriptOutcome struct {
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	Reply     string    `json:"reply"`
	At        time.Time `json:"at"`
}

// RecordMessage publishes one conversation message.
func (t *Transcript) RecordMessage(ctx context.Context, sessionID string, msg agent.MessageRef) error {
	data, err := json.Marshal(transcriptMessage{
		SessionID: sessionID,
		Role:      msg.Role,
		Text:      msg.Text,
		Ordinal:   msg.Ordinal,
		At:        time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if _, err := t.client.JetStream().Publish(ctx, messageSubject(sessionID, msg.Role), data); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// RecordOutcome publishes one run outcome.
func (t *Transcript) RecordOutcome(ctx context.Context, sessionID, kind, reply string) error {
	data, err := json.Marshal(transcriptOutcome{
		SessionID: sessionID,
		Kind:      kind,
		Reply:     reply,
		At:        time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	if _, err := t.client.JetStream().Publish(ctx, outcomeSubject(sessionID, kind), data); err != nil {
		return fmt.Errorf("failed to publish outcome: %w", err)
	}
	return nil
}
