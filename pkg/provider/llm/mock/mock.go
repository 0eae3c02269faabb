// Package mock provides a test double for the llm.Generator interface.
package mock

import (
	"context"
	"sync"

	"github.com/barbourakais/Ai-audio-chatbot/pkg/provider/llm"
)

// GenerateCall records a single invocation of Generate.
type GenerateCall struct {
	Ctx context.Context
	Req llm.Request
}

// Generator is a mock implementation of llm.Generator.
type Generator struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Response is returned by Generate. Nil with a nil Err yields an empty
	// response.
	Response *llm.Response

	// Err, if non-nil, is returned as the error from Generate.
	Err error

	// GenerateFunc, if set, overrides Response/Err entirely. Useful for
	// blocking until ctx cancellation or varying replies per call.
	GenerateFunc func(ctx context.Context, req llm.Request) (*llm.Response, error)

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// --- Call records ---

	GenerateCalls []GenerateCall
}

// Generate records the call and returns the configured result.
func (g *Generator) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	g.mu.Lock()
	g.GenerateCalls = append(g.GenerateCalls, GenerateCall{Ctx: ctx, Req: req})
	fn, resp, err := g.GenerateFunc, g.Response, g.Err
	g.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return &llm.Response{}, nil
	}
	return resp, nil
}

// CountTokens approximates at 4 chars per token, matching the real backends.
func (g *Generator) CountTokens(text string) (int, error) {
	return (len(text) + 3) / 4, nil
}

// ModelID returns ModelIDValue.
func (g *Generator) ModelID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ModelIDValue
}

// Reset clears all recorded calls. Thread-safe.
func (g *Generator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.GenerateCalls = nil
}

// Ensure Generator implements llm.Generator at compile time.
var _ llm.Generator = (*Generator)(nil)
