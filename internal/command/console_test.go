package command_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/barbourakais/Ai-audio-chatbot/internal/command"
	"github.com/barbourakais/Ai-audio-chatbot/internal/convo"
	"github.com/barbourakais/Ai-audio-chatbot/internal/index"
	"github.com/barbourakais/Ai-audio-chatbot/internal/knowledge"
	"github.com/barbourakais/Ai-audio-chatbot/internal/orchestrator"
	"github.com/barbourakais/Ai-audio-chatbot/internal/retrieval"
	embmock "github.com/barbourakais/Ai-audio-chatbot/pkg/provider/embeddings/mock"
)

// fakeListener records pause/resume calls.
type fakeListener struct {
	mu     sync.Mutex
	paused bool
}

func (l *fakeListener) Pause()  { l.mu.Lock(); l.paused = true; l.mu.Unlock() }
func (l *fakeListener) Resume() { l.mu.Lock(); l.paused = false; l.mu.Unlock() }
func (l *fakeListener) Paused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.paused
}

type fakePipeline struct{ state orchestrator.State }

func (p *fakePipeline) State() orchestrator.State { return p.state }

func newRetrieval(t *testing.T) *retrieval.Service {
	t.Helper()
	chunker, err := knowledge.NewChunker(512, 50)
	if err != nil {
		t.Fatalf("NewChunker: %v", err)
	}
	embedder := &embmock.Provider{Deterministic: true, DimensionsValue: 32}
	svc := retrieval.New(embedder, index.NewMemory(32), chunker)
	_, err = svc.Rebuild(context.Background(), &knowledge.Document{
		Company: knowledge.Company{Name: "Ox4Labs", Description: "Applied machine learning consultancy."},
	})
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	return svc
}

func run(t *testing.T, deps command.Deps, input string) string {
	t.Helper()
	var out bytes.Buffer
	c := command.New(strings.NewReader(input), &out, nil, deps)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out.String()
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	l := &fakeListener{}
	out := run(t, command.Deps{Listener: l}, "stop\n")
	if !strings.Contains(out, "listening paused") {
		t.Errorf("output = %q", out)
	}
	if !l.Paused() {
		t.Error("listener not paused")
	}

	out = run(t, command.Deps{Listener: l}, "start\n")
	if !strings.Contains(out, "listening resumed") {
		t.Errorf("output = %q", out)
	}
	if l.Paused() {
		t.Error("listener still paused")
	}
}

func TestQuery(t *testing.T) {
	t.Parallel()

	out := run(t, command.Deps{Retrieval: newRetrieval(t)}, "query machine learning\n")
	if !strings.Contains(out, "company") || !strings.Contains(out, "machine learning") {
		t.Errorf("query output = %q", out)
	}
}

func TestQueryWithoutArgs(t *testing.T) {
	t.Parallel()

	out := run(t, command.Deps{Retrieval: newRetrieval(t)}, "query\n")
	if !strings.Contains(out, "usage: query") {
		t.Errorf("output = %q", out)
	}
}

func TestRebuild(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "knowledge.yaml")
	doc := "company:\n  name: Ox4Labs\n  description: Consulting.\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write knowledge file: %v", err)
	}

	out := run(t, command.Deps{Retrieval: newRetrieval(t), KnowledgePath: path}, "rebuild\n")
	if !strings.Contains(out, "index rebuilt: 1 chunks") {
		t.Errorf("output = %q", out)
	}
}

func TestClearAndExport(t *testing.T) {
	t.Parallel()

	mem, err := convo.New()
	if err != nil {
		t.Fatalf("convo.New: %v", err)
	}
	if err := mem.Append(context.Background(), "hi", "hello"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	path := filepath.Join(t.TempDir(), "export.json")
	out := run(t, command.Deps{Memory: mem}, "export "+path+"\nclear\n")
	if !strings.Contains(out, "exported to") || !strings.Contains(out, "conversation cleared") {
		t.Errorf("output = %q", out)
	}
	if mem.Len() != 0 {
		t.Errorf("memory len = %d after clear", mem.Len())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var history []convo.Exchange
	if err := json.Unmarshal(data, &history); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if len(history) != 1 || history[0].User != "hi" {
		t.Errorf("exported history = %+v", history)
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	mem, err := convo.New()
	if err != nil {
		t.Fatalf("convo.New: %v", err)
	}
	deps := command.Deps{
		Listener:  &fakeListener{paused: true},
		Pipeline:  &fakePipeline{state: orchestrator.StateListening},
		Retrieval: newRetrieval(t),
		Memory:    mem,
	}
	out := run(t, deps, "status\n")
	for _, want := range []string{"state: listening", "paused: true", "indexed chunks: 1", "conversation turns: 0"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q: %q", want, out)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	t.Parallel()

	out := run(t, command.Deps{}, "frobnicate\n")
	if !strings.Contains(out, `unknown command "frobnicate"`) {
		t.Errorf("output = %q", out)
	}
}

func TestHelpListsCommands(t *testing.T) {
	t.Parallel()

	out := run(t, command.Deps{Listener: &fakeListener{}}, "help\n")
	for _, want := range []string{"start", "stop", "status", "quit"} {
		if !strings.Contains(out, want) {
			t.Errorf("help missing %q: %q", want, out)
		}
	}
}

func TestQuitInvokesCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	out := run(t, command.Deps{Quit: cancel}, "quit\nignored after quit\n")
	if !strings.Contains(out, "shutting down") {
		t.Errorf("output = %q", out)
	}
	select {
	case <-ctx.Done():
	default:
		t.Error("quit did not cancel the session context")
	}
	if strings.Contains(out, "unknown command") {
		t.Error("console kept reading after quit")
	}
}
