package aiclient

import "context"

// Usage tracks token consumption for one completion, used for cost attribution.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Provider is a single LLM backend. Complete sends one system+user prompt
// pair and returns the raw response text.
type Provider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, system, prompt string) (string, Usage, error)
}
