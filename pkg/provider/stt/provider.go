// Package stt defines the speech-to-text provider interface.
//
// Transcribers operate on complete utterances. Turn segmentation (deciding
// where an utterance starts and ends) happens upstream in the voice activity
// detector; by the time audio reaches a Transcriber it is a finished recording.
package stt

import (
	"context"
	"errors"
	"fmt"

	"github.com/barbourakais/Ai-audio-chatbot/pkg/audio"
)

// ErrEmptyUtterance is returned when an utterance contains no samples.
var ErrEmptyUtterance = errors.New("stt: utterance contains no audio")

// Result is the outcome of transcribing one utterance.
type Result struct {
	// Text is the transcribed text. It may be empty when the utterance
	// contained no recognizable speech; an empty Text with a nil error is a
	// valid, non-exceptional outcome.
	Text string

	// Confidence is the engine's confidence in Text, in [0, 1]. Engines that
	// do not report confidence set it to 0.
	Confidence float64
}

// TranscriptionError wraps engine failures so callers can distinguish a
// failed transcription from an empty one.
type TranscriptionError struct {
	// Engine identifies the transcriber implementation.
	Engine string
	Err    error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("stt: %s: %v", e.Engine, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// Transcriber converts a recorded utterance to text.
//
// Implementations must be safe for concurrent use and must respect ctx
// cancellation and deadlines on every call.
type Transcriber interface {
	// Transcribe converts the utterance audio to text. An utterance with no
	// recognizable speech yields Result{Text: ""} and a nil error; engine
	// failures yield a *TranscriptionError.
	Transcribe(ctx context.Context, u *audio.Utterance) (Result, error)

	// ModelID identifies the model in use, for logging and diagnostics.
	ModelID() string
}
