package ollama_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/barbourakais/Ai-audio-chatbot/pkg/provider/llm"
	"github.com/barbourakais/Ai-audio-chatbot/pkg/provider/llm/ollama"
)

type generateReq struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	System  string `json:"system"`
	Stream  bool   `json:"stream"`
	Options *struct {
		Temperature *float64 `json:"temperature"`
		NumPredict  int      `json:"num_predict"`
	} `json:"options"`
}

func TestGenerateSendsPromptAndParsesReply(t *testing.T) {
	t.Parallel()

	var last generateReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&last); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"response":          "  We offer AI consulting.  ",
			"prompt_eval_count": 42,
			"eval_count":        7,
		})
	}))
	defer srv.Close()

	g, err := ollama.New(srv.URL, "llama3.2")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := g.Generate(context.Background(), llm.Request{
		SystemPrompt: "You are a helpful assistant.",
		Prompt:       "What services do you offer?",
		Temperature:  0.7,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text != "We offer AI consulting." {
		t.Errorf("Text = %q, want trimmed reply", resp.Text)
	}
	if resp.Usage.PromptTokens != 42 || resp.Usage.CompletionTokens != 7 {
		t.Errorf("Usage = %+v, want 42/7", resp.Usage)
	}

	if last.Model != "llama3.2" {
		t.Errorf("model = %q", last.Model)
	}
	if last.Stream {
		t.Error("stream should be false")
	}
	if last.System != "You are a helpful assistant." {
		t.Errorf("system = %q", last.System)
	}
	if last.Options == nil || last.Options.Temperature == nil || *last.Options.Temperature != 0.7 {
		t.Errorf("options = %+v, want temperature 0.7", last.Options)
	}
}

func TestGenerateServerErrorWrapsUnavailable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "loading model", http.StatusInternalServerError)
	}))
	defer srv.Close()

	g, err := ollama.New(srv.URL, "llama3.2")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = g.Generate(context.Background(), llm.Request{Prompt: "hi"})
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestGenerateConnectionRefusedWrapsUnavailable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse all connections

	g, err := ollama.New(srv.URL, "llama3.2")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = g.Generate(context.Background(), llm.Request{Prompt: "hi"})
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestGenerateRejectsEmptyPrompt(t *testing.T) {
	t.Parallel()

	g, err := ollama.New("http://unused:11434", "llama3.2")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := g.Generate(context.Background(), llm.Request{}); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestCountTokensApproximation(t *testing.T) {
	t.Parallel()

	g, err := ollama.New("", "llama3.2")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n, err := g.CountTokens("abcdefgh") // 8 chars -> 2 tokens
	if err != nil {
		t.Fatalf("CountTokens: %v", err)
	}
	if n != 2 {
		t.Errorf("CountTokens = %d, want 2", n)
	}
}
