// Package ollama provides a llm.Generator backed by a local Ollama server
// using its native /api/generate endpoint.
//
// The endpoint takes a single prompt string and, with streaming disabled,
// returns the complete reply in one JSON document along with token counts.
//
// Example:
//
//	g, err := ollama.New("", "llama3.2") // http://localhost:11434
//	resp, err := g.Generate(ctx, llm.Request{Prompt: "Say hello."})
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/barbourakais/Ai-audio-chatbot/pkg/provider/llm"
)

// DefaultBaseURL is the default address of a locally running Ollama instance.
const DefaultBaseURL = "http://localhost:11434"

// Compile-time interface assertion.
var _ llm.Generator = (*Generator)(nil)

// Generator implements llm.Generator against Ollama's /api/generate endpoint.
// It is safe for concurrent use.
type Generator struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// Option is a functional option for [New].
type Option func(*Generator)

// WithTimeout sets a per-request HTTP timeout. Defaults to 60 s; local
// models on modest hardware can take a while.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.httpClient.Timeout = d
		}
	}
}

// New constructs a Generator connecting to the Ollama server at baseURL
// (DefaultBaseURL when empty) using the given model name.
func New(baseURL, model string, opts ...Option) (*Generator, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama llm: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	g := &Generator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

type generateRequest struct {
	Model   string           `json:"model"`
	Prompt  string           `json:"prompt"`
	System  string           `json:"system,omitempty"`
	Stream  bool             `json:"stream"`
	Options *generateOptions `json:"options,omitempty"`
}

type generateOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
}

type generateResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Generate implements llm.Generator. Connectivity failures and non-2xx
// responses wrap llm.ErrUnavailable.
func (g *Generator) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("ollama llm: prompt must not be empty")
	}

	gr := generateRequest{
		Model:  g.model,
		Prompt: req.Prompt,
		System: req.SystemPrompt,
		Stream: false,
	}
	if req.Temperature != 0 || req.MaxTokens > 0 {
		opts := &generateOptions{NumPredict: req.MaxTokens}
		if req.Temperature != 0 {
			t := req.Temperature
			opts.Temperature = &t
		}
		gr.Options = opts
	}

	body, err := json.Marshal(gr)
	if err != nil {
		return nil, fmt.Errorf("ollama llm: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama llm: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama llm: http: %w: %w", llm.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama llm: unexpected status %d: %w", resp.StatusCode, llm.ErrUnavailable)
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama llm: decode response: %w", err)
	}

	return &llm.Response{
		Text: strings.TrimSpace(result.Response),
		Usage: llm.Usage{
			PromptTokens:     result.PromptEvalCount,
			CompletionTokens: result.EvalCount,
		},
	}, nil
}

// CountTokens implements llm.Generator with a ~4 chars/token approximation.
func (g *Generator) CountTokens(text string) (int, error) {
	return (len(text) + 3) / 4, nil
}

// ModelID implements llm.Generator.
func (g *Generator) ModelID() string { return g.model }
