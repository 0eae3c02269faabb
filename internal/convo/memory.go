// Package convo keeps the short-term conversation history: a FIFO-capped list
// of user/assistant exchanges and a character-bounded window of it for prompt
// assembly.
package convo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/barbourakais/Ai-audio-chatbot/internal/observe"
)

// DefaultMaxTurns caps how many exchanges are retained before the oldest is
// dropped.
const DefaultMaxTurns = 20

// DefaultWindowChars bounds the rendered history included in prompts.
const DefaultWindowChars = 2000

// Exchange is one completed turn: what the user said and what the assistant
// answered. Assistant may be empty when generation failed and the fallback
// path was taken without a reply text.
type Exchange struct {
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
	At        time.Time `json:"at"`
}

// Memory is the in-process conversation store. All methods are safe for
// concurrent use.
type Memory struct {
	mu        sync.Mutex
	maxTurns  int
	exchanges []Exchange
	metrics   *observe.Metrics

	// persistPath, when set, rewrites the full history as JSON after every
	// mutation.
	persistPath string
}

// Option configures a Memory.
type Option func(*Memory)

// WithMaxTurns overrides the FIFO cap.
func WithMaxTurns(n int) Option {
	return func(m *Memory) {
		if n > 0 {
			m.maxTurns = n
		}
	}
}

// WithPersistPath saves the history to path after each change and loads any
// existing history from it at construction.
func WithPersistPath(path string) Option {
	return func(m *Memory) { m.persistPath = path }
}

// WithMetrics overrides the default metrics instruments.
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Memory) { m.metrics = met }
}

// New returns a Memory with the default cap, applying any options. When a
// persist path is configured and the file exists, the stored history is
// loaded; a corrupt file is an error.
func New(opts ...Option) (*Memory, error) {
	m := &Memory{
		maxTurns: DefaultMaxTurns,
		metrics:  observe.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.persistPath != "" {
		if err := m.load(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Append records a completed exchange, evicting the oldest when over the cap.
func (m *Memory) Append(ctx context.Context, user, assistant string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.exchanges = append(m.exchanges, Exchange{
		User:      user,
		Assistant: assistant,
		At:        time.Now().UTC(),
	})
	delta := int64(1)
	if len(m.exchanges) > m.maxTurns {
		m.exchanges = m.exchanges[1:]
		delta = 0
	}
	m.metrics.ConversationTurns.Add(ctx, delta)
	return m.persistLocked()
}

// Len reports the number of retained exchanges.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.exchanges)
}

// Exchanges returns a copy of the retained history, oldest first.
func (m *Memory) Exchanges() []Exchange {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Exchange, len(m.exchanges))
	copy(out, m.exchanges)
	return out
}

// Clear drops the whole history.
func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics.ConversationTurns.Add(ctx, -int64(len(m.exchanges)))
	m.exchanges = nil
	return m.persistLocked()
}

// Window renders the most recent history as alternating "User:"/"Assistant:"
// lines, oldest first, keeping the rendered text within maxChars by dropping
// whole exchanges from the front. maxChars <= 0 uses DefaultWindowChars.
func (m *Memory) Window(maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultWindowChars
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rendered := make([]string, len(m.exchanges))
	total := 0
	for i, e := range m.exchanges {
		s := renderExchange(e)
		rendered[i] = s
		total += len(s) + 1
	}
	start := 0
	for start < len(rendered) && total-1 > maxChars {
		total -= len(rendered[start]) + 1
		start++
	}
	return strings.TrimSuffix(strings.Join(rendered[start:], "\n"), "\n")
}

func renderExchange(e Exchange) string {
	var b strings.Builder
	b.WriteString("User: " + e.User)
	if e.Assistant != "" {
		b.WriteString("\nAssistant: " + e.Assistant)
	}
	return b.String()
}

// Export writes the full history as indented JSON to w.
func (m *Memory) Export(w io.Writer) error {
	m.mu.Lock()
	history := make([]Exchange, len(m.exchanges))
	copy(history, m.exchanges)
	m.mu.Unlock()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(history); err != nil {
		return fmt.Errorf("convo: export: %w", err)
	}
	return nil
}

// ExportFile writes the full history as JSON to path.
func (m *Memory) ExportFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("convo: export %q: %w", path, err)
	}
	if err := m.Export(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("convo: export %q: %w", path, err)
	}
	return nil
}

func (m *Memory) load() error {
	data, err := os.ReadFile(m.persistPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("convo: load %q: %w", m.persistPath, err)
	}
	var history []Exchange
	if err := json.Unmarshal(data, &history); err != nil {
		return fmt.Errorf("convo: load %q: %w", m.persistPath, err)
	}
	if len(history) > m.maxTurns {
		history = history[len(history)-m.maxTurns:]
	}
	m.exchanges = history
	return nil
}

func (m *Memory) persistLocked() error {
	if m.persistPath == "" {
		return nil
	}
	data, err := json.Marshal(m.exchanges)
	if err != nil {
		return fmt.Errorf("convo: persist: %w", err)
	}
	if err := os.WriteFile(m.persistPath, data, 0o644); err != nil {
		return fmt.Errorf("convo: persist %q: %w", m.persistPath, err)
	}
	return nil
}
