// Package llm provides a client for OpenAI-compatible chat-completion APIs
// with bounded retry on transient failures.
package llm

import "context"

// Completer is the interface the generation pipeline consumes.
// Implementations must be safe for concurrent use.
type Completer interface {
	// Complete sends a single-turn completion request and returns the raw
	// model output. Implementations retry transient provider failures
	// internally; a returned error means the request is not recoverable.
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)
}

// CompletionRequest describes one completion call.
type CompletionRequest struct {
	// Prompt is the full user-turn instruction text.
	Prompt string

	// Temperature is the sampling temperature (0 uses the provider default).
	Temperature float64

	// MaxTokens is the completion token budget (0 uses the client default).
	MaxTokens int

	// JSONResponse requests constrained JSON output ("json_object" response
	// format) where the provider supports it. This reduces but does not
	// eliminate parse failures downstream.
	JSONResponse bool
}

// Completion is the raw result of a completion call.
type Completion struct {
	// Text is choices[0].message.content verbatim.
	Text string

	// Model is the model identifier reported by the provider.
	Model string

	// Usage contains provider-reported token counts. Used for telemetry
	// only; credit cost is a fixed per-feature constant.
	Usage TokenUsage
}

// TokenUsage holds provider-reported token counts for one call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
