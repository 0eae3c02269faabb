// Package tts defines the text-to-speech synthesizer interface.
package tts

import (
	"context"
	"fmt"
)

// Audio is synthesized speech as 16-bit mono PCM.
type Audio struct {
	Samples    []int16
	SampleRate int
}

// SynthesisError wraps engine failures. The orchestrator treats a failed
// synthesis as non-fatal: the reply text is still recorded even when it was
// never spoken.
type SynthesisError struct {
	// Engine identifies the synthesizer implementation.
	Engine string
	Err    error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("tts: %s: %v", e.Engine, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Synthesizer converts reply text to speech audio.
//
// Implementations must be safe for concurrent use and must respect ctx
// cancellation and deadlines on every call.
type Synthesizer interface {
	// Synthesize renders text in the given voice. voice may be empty for
	// single-voice engines. Failures yield a *SynthesisError.
	Synthesize(ctx context.Context, text, voice string) (*Audio, error)
}
