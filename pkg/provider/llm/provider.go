// Package llm defines the Generator interface for language model backends.
//
// A Generator wraps a remote or local model API (e.g. a local Ollama
// instance, or any hosted provider behind an OpenAI-compatible endpoint) and
// exposes a uniform interface for producing assistant replies without
// coupling to any specific SDK.
//
// Implementations must be safe for concurrent use and must honor ctx
// cancellation and deadlines on every call.
package llm

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the model backend could not be reached or refused
// the request. Callers may fall back to a canned response.
var ErrUnavailable = errors.New("llm: backend unavailable")

// Request carries everything the model needs to produce a reply.
type Request struct {
	// SystemPrompt is a high-priority instruction injected before the prompt.
	// Backends without a dedicated system slot prepend it to Prompt.
	SystemPrompt string

	// Prompt is the fully composed input: retrieved knowledge, conversation
	// window, and the user's latest utterance. Must be non-empty.
	Prompt string

	// Temperature controls output randomness in [0.0, 2.0]. Zero requests
	// greedy decoding on backends that support it.
	Temperature float64

	// MaxTokens caps the reply length. Zero means the backend default.
	MaxTokens int
}

// Usage holds token accounting reported by the backend. Zero values mean the
// backend did not report usage.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Response is a completed generation.
type Response struct {
	// Text is the assistant's reply.
	Text string

	Usage Usage
}

// Generator is the abstraction over any language model backend.
type Generator interface {
	// Generate sends req to the model and waits for the complete reply.
	// Connectivity and backend failures wrap ErrUnavailable so callers can
	// distinguish them from bad requests.
	Generate(ctx context.Context, req Request) (*Response, error)

	// CountTokens estimates how many tokens text would consume in the
	// model's context window. The estimate need not be exact but should not
	// undercount.
	CountTokens(text string) (int, error)

	// ModelID identifies the model in use, for logging and diagnostics.
	ModelID() string
}
