package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// Client abstracts chat-completion providers that return JSON-shaped output.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (json.RawMessage, error)
}

// CompletionRequest carries one prompt invocation.
type CompletionRequest struct {
	System      string
	Prompt      string
	Temperature float32
}

// ErrNotImplemented is returned by the placeholder client.
var ErrNotImplemented = errors.New("LLM not implemented")

// PlaceholderClient is a stub implementation until provider wiring is added.
type PlaceholderClient struct{}

// Complete returns ErrNotImplemented.
func (PlaceholderClient) Complete(ctx context.Context, req CompletionRequest) (json.RawMessage, error) {
	_ = ctx
	_ = req
	return nil, ErrNotImplemented
}
