// Package mock provides a test double for the stt.Transcriber interface.
package mock

import (
	"context"
	"sync"

	"github.com/barbourakais/Ai-audio-chatbot/pkg/audio"
	"github.com/barbourakais/Ai-audio-chatbot/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	Ctx       context.Context
	Utterance *audio.Utterance
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Result is returned by Transcribe.
	Result stt.Result

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Delay, if set, blocks Transcribe until the delay elapses or ctx is
	// cancelled (returning ctx.Err wrapped in a TranscriptionError).
	Delay func(ctx context.Context) error

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// --- Call records ---

	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns Result, Err.
func (t *Transcriber) Transcribe(ctx context.Context, u *audio.Utterance) (stt.Result, error) {
	t.mu.Lock()
	t.TranscribeCalls = append(t.TranscribeCalls, TranscribeCall{Ctx: ctx, Utterance: u})
	delay := t.Delay
	res, err := t.Result, t.Err
	t.mu.Unlock()

	if delay != nil {
		if derr := delay(ctx); derr != nil {
			return stt.Result{}, &stt.TranscriptionError{Engine: "mock", Err: derr}
		}
	}
	return res, err
}

// ModelID returns ModelIDValue.
func (t *Transcriber) ModelID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ModelIDValue
}

// Reset clears all recorded calls. Thread-safe.
func (t *Transcriber) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.TranscribeCalls = nil
}

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)
