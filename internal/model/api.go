// Package model defines request and response shapes for the chat API.
package model

// StartSessionResponse is returned when a chat session is opened or
// resumed.
type StartSessionResponse struct {
	SessionID string `json:"session_id"`
	ThreadID  string `json:"thread_id,omitempty"`
}

// SendMessageRequest is the request to relay one user message.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessageResponse carries the agent's reply.
type SendMessageResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
}
