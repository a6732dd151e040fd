// Package llm provides chat model clients backing the local agent backend.
package llm

import (
	"context"
	"fmt"
)

// DeltaFunc is called for each incremental fragment during streaming.
type DeltaFunc func(delta string) error

// Turn is one chat turn passed to the model.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes one generation call.
type Request struct {
	Model       string
	Turns       []Turn
	MaxTokens   int
	Temperature float64
}

// Result is the outcome of a generation call.
type Result struct {
	Text       string
	Model      string
	StopReason string
	LatencyMs  int64
}

// Client is the interface for chat model providers.
type Client interface {
	// Generate produces a complete reply in one call.
	Generate(ctx context.Context, req *Request) (*Result, error)

	// GenerateStream produces a reply incrementally, invoking onDelta for
	// each fragment in order.
	GenerateStream(ctx context.Context, req *Request, onDelta DeltaFunc) (*Result, error)

	// Name returns the provider name.
	Name() string
}

// Provider is the type of chat model provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// New creates a chat model client for the given provider.
func New(provider Provider, apiKey string) (Client, error) {
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey)
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey)
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}
