package convo_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/barbourakais/Ai-audio-chatbot/internal/convo"
)

func TestAppendAndLen(t *testing.T) {
	t.Parallel()

	m, err := convo.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := m.Append(ctx, "hello", "hi there"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := m.Append(ctx, "how are you", "fine"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if m.Len() != 2 {
		t.Errorf("Len = %d, want 2", m.Len())
	}
	ex := m.Exchanges()
	if ex[0].User != "hello" || ex[1].Assistant != "fine" {
		t.Errorf("unexpected history: %+v", ex)
	}
}

func TestFIFOEviction(t *testing.T) {
	t.Parallel()

	m, err := convo.New(convo.WithMaxTurns(3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	for i := range 5 {
		if err := m.Append(ctx, fmt.Sprintf("question %d", i), "answer"); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if m.Len() != 3 {
		t.Fatalf("Len = %d, want 3", m.Len())
	}
	ex := m.Exchanges()
	if ex[0].User != "question 2" || ex[2].User != "question 4" {
		t.Errorf("kept wrong exchanges: %+v", ex)
	}
}

func TestWindowDropsOldestWholeExchanges(t *testing.T) {
	t.Parallel()

	m, err := convo.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := m.Append(ctx, strings.Repeat("a", 100), strings.Repeat("b", 100)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := m.Append(ctx, "short question", "short answer"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	window := m.Window(60)
	if strings.Contains(window, "aaa") {
		t.Error("window still contains the oversized first exchange")
	}
	if !strings.Contains(window, "User: short question") {
		t.Errorf("window missing latest exchange: %q", window)
	}
	if !strings.Contains(window, "Assistant: short answer") {
		t.Errorf("window missing assistant line: %q", window)
	}
}

func TestWindowOmitsEmptyAssistant(t *testing.T) {
	t.Parallel()

	m, err := convo.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Append(context.Background(), "anyone there", ""); err != nil {
		t.Fatalf("Append: %v", err)
	}
	window := m.Window(0)
	if window != "User: anyone there" {
		t.Errorf("window = %q, want user line only", window)
	}
}

func TestClear(t *testing.T) {
	t.Parallel()

	m, err := convo.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := m.Append(ctx, "hello", "hi"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := m.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d after Clear, want 0", m.Len())
	}
	if m.Window(0) != "" {
		t.Errorf("Window = %q after Clear, want empty", m.Window(0))
	}
}

func TestExport(t *testing.T) {
	t.Parallel()

	m, err := convo.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Append(context.Background(), "hello", "hi"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var buf bytes.Buffer
	if err := m.Export(&buf); err != nil {
		t.Fatalf("Export: %v", err)
	}
	var history []convo.Exchange
	if err := json.Unmarshal(buf.Bytes(), &history); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if len(history) != 1 || history[0].User != "hello" || history[0].Assistant != "hi" {
		t.Errorf("exported history = %+v", history)
	}
	if history[0].At.IsZero() {
		t.Error("exported exchange has zero timestamp")
	}
}

func TestPersistReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.json")
	ctx := context.Background()

	m, err := convo.New(convo.WithPersistPath(path))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Append(ctx, "remember me", "will do"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	reloaded, err := convo.New(convo.WithPersistPath(path))
	if err != nil {
		t.Fatalf("New (reload): %v", err)
	}
	if reloaded.Len() != 1 {
		t.Fatalf("reloaded Len = %d, want 1", reloaded.Len())
	}
	if ex := reloaded.Exchanges(); ex[0].User != "remember me" {
		t.Errorf("reloaded exchange = %+v", ex[0])
	}
}

func TestPersistReloadRespectsCap(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.json")
	ctx := context.Background()

	m, err := convo.New(convo.WithPersistPath(path))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := range 5 {
		if err := m.Append(ctx, fmt.Sprintf("q%d", i), "a"); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	reloaded, err := convo.New(convo.WithPersistPath(path), convo.WithMaxTurns(2))
	if err != nil {
		t.Fatalf("New (reload): %v", err)
	}
	if reloaded.Len() != 2 {
		t.Fatalf("reloaded Len = %d, want 2", reloaded.Len())
	}
	if ex := reloaded.Exchanges(); ex[0].User != "q3" || ex[1].User != "q4" {
		t.Errorf("kept wrong tail: %+v", ex)
	}
}
