package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// Client abstracts multimodal providers for leaf disease diagnosis.
type Client interface {
	Diagnose(ctx context.Context, input DiagnoseInput) (json.RawMessage, error)
}

// DiagnoseInput captures the inputs needed for a diagnosis request.
type DiagnoseInput struct {
	MimeType   string
	Base64Data string
	Language   string
}

// ErrNotImplemented is returned by the placeholder client.
var ErrNotImplemented = errors.New("LLM not implemented")

// PlaceholderClient is a stub implementation used when no provider is configured.
type PlaceholderClient struct{}

// Diagnose returns ErrNotImplemented.
func (PlaceholderClient) Diagnose(ctx context.Context, input DiagnoseInput) (json.RawMessage, error) {
	_ = ctx
	_ = input
	return nil, ErrNotImplemented
}
