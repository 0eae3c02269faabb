// This file contains the Native transcriber backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/barbourakais/Ai-audio-chatbot/pkg/audio"
	"github.com/barbourakais/Ai-audio-chatbot/pkg/provider/stt"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Compile-time assertion that Native satisfies stt.Transcriber.
var _ stt.Transcriber = (*Native)(nil)

// Native implements stt.Transcriber using the whisper.cpp Go bindings (CGO),
// eliminating HTTP overhead entirely. The model is loaded once and shared
// across all calls; each Transcribe creates its own whisper context, so
// concurrent calls do not interfere.
type Native struct {
	modelPath string
	language  string

	mu    sync.Mutex
	model whisperlib.Model
}

// NativeOption is a functional option for configuring a Native transcriber.
type NativeOption func(*Native)

// WithNativeLanguage sets the BCP-47 language code for transcription
// (e.g. "en", "de"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(n *Native) { n.language = lang }
}

// NewNative creates a Native transcriber that loads the whisper.cpp model
// from the given file path. The caller must call Close when the transcriber
// is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*Native, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	n := &Native{
		modelPath: modelPath,
		language:  defaultLanguage,
		model:     model,
	}
	for _, o := range opts {
		o(n)
	}
	return n, nil
}

// Close releases the whisper model. Transcribe calls after Close fail.
func (n *Native) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.model == nil {
		return nil
	}
	err := n.model.Close()
	n.model = nil
	return err
}

// Transcribe implements stt.Transcriber. The utterance samples are converted
// to float32 mono and run through a fresh whisper context.
func (n *Native) Transcribe(ctx context.Context, u *audio.Utterance) (stt.Result, error) {
	if u == nil || len(u.Samples) == 0 {
		return stt.Result{}, &stt.TranscriptionError{Engine: "whisper-native", Err: stt.ErrEmptyUtterance}
	}
	if err := ctx.Err(); err != nil {
		return stt.Result{}, &stt.TranscriptionError{Engine: "whisper-native", Err: err}
	}

	n.mu.Lock()
	model := n.model
	n.mu.Unlock()
	if model == nil {
		return stt.Result{}, &stt.TranscriptionError{Engine: "whisper-native", Err: errors.New("model is closed")}
	}

	samples := audio.SamplesToFloat32(u.Samples)

	// Contexts are not thread-safe, but the model can be shared; one fresh
	// context per call.
	wctx, err := model.NewContext()
	if err != nil {
		return stt.Result{}, &stt.TranscriptionError{Engine: "whisper-native", Err: fmt.Errorf("create context: %w", err)}
	}
	if err := wctx.SetLanguage(n.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", n.language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Result{}, &stt.TranscriptionError{Engine: "whisper-native", Err: fmt.Errorf("process audio: %w", err)}
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Result{}, &stt.TranscriptionError{Engine: "whisper-native", Err: fmt.Errorf("read segment: %w", err)}
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	return stt.Result{Text: strings.Join(parts, " ")}, nil
}

// ModelID implements stt.Transcriber.
func (n *Native) ModelID() string { return n.modelPath }
