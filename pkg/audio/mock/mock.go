// Package mock provides in-memory mock implementations of the
// [audio.Platform], [audio.CaptureStream], and [audio.PlaybackStream]
// interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields that the test can set to control return values.
//
// Typical usage:
//
//	cap := mock.NewCaptureStream(frames...)
//	platform := &mock.Platform{CaptureResult: cap}
//	stream, err := platform.OpenCapture(ctx, audio.Format{SampleRate: 16000, Channels: 1})
package mock

import (
	"context"
	"sync"

	"github.com/barbourakais/Ai-audio-chatbot/pkg/audio"
)

// ─── Platform ────────────────────────────────────────────────────────────────

// Platform is a mock implementation of [audio.Platform].
type Platform struct {
	mu sync.Mutex

	// CaptureResult is returned by OpenCapture. Defaults to an empty,
	// already-closed capture stream when nil.
	CaptureResult audio.CaptureStream

	// CaptureError is returned by OpenCapture instead of CaptureResult.
	CaptureError error

	// PlaybackResult is returned by OpenPlayback. Defaults to a new
	// [PlaybackStream] when nil.
	PlaybackResult audio.PlaybackStream

	// PlaybackError is returned by OpenPlayback instead of PlaybackResult.
	PlaybackError error

	// CallCountOpenCapture records how many times OpenCapture was called.
	CallCountOpenCapture int

	// CallCountOpenPlayback records how many times OpenPlayback was called.
	CallCountOpenPlayback int
}

var _ audio.Platform = (*Platform)(nil)

// OpenCapture implements [audio.Platform].
func (p *Platform) OpenCapture(_ context.Context, _ audio.Format) (audio.CaptureStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountOpenCapture++
	if p.CaptureError != nil {
		return nil, p.CaptureError
	}
	if p.CaptureResult == nil {
		p.CaptureResult = NewCaptureStream()
	}
	return p.CaptureResult, nil
}

// OpenPlayback implements [audio.Platform].
func (p *Platform) OpenPlayback(_ context.Context, _ audio.Format) (audio.PlaybackStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountOpenPlayback++
	if p.PlaybackError != nil {
		return nil, p.PlaybackError
	}
	if p.PlaybackResult == nil {
		p.PlaybackResult = &PlaybackStream{}
	}
	return p.PlaybackResult, nil
}

// ─── CaptureStream ───────────────────────────────────────────────────────────

// CaptureStream is a scripted implementation of [audio.CaptureStream].
// Frames passed to [NewCaptureStream] are delivered in order; additional
// frames can be pushed with [CaptureStream.Push] and the stream finished
// with [CaptureStream.Finish].
type CaptureStream struct {
	frames chan audio.AudioFrame

	mu        sync.Mutex
	streamErr error
	finished  bool
	closed    bool
}

var _ audio.CaptureStream = (*CaptureStream)(nil)

// NewCaptureStream creates a stream pre-loaded with the given frames.
// The stream stays open for further Push calls until Finish or Close.
func NewCaptureStream(frames ...audio.AudioFrame) *CaptureStream {
	s := &CaptureStream{frames: make(chan audio.AudioFrame, len(frames)+64)}
	for _, f := range frames {
		s.frames <- f
	}
	return s
}

// Push delivers another frame. Push after Finish or Close panics, matching
// the misuse it would be in production code.
func (s *CaptureStream) Push(f audio.AudioFrame) {
	s.frames <- f
}

// Finish closes the frame channel with err recorded as the stream error.
// Pass nil for a clean end-of-stream.
func (s *CaptureStream) Finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.finished = true
	s.streamErr = err
	close(s.frames)
}

// Frames implements [audio.CaptureStream].
func (s *CaptureStream) Frames() <-chan audio.AudioFrame { return s.frames }

// Err implements [audio.CaptureStream].
func (s *CaptureStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamErr
}

// Close implements [audio.CaptureStream].
func (s *CaptureStream) Close() error {
	s.mu.Lock()
	closed := s.closed
	s.closed = true
	s.mu.Unlock()
	if !closed {
		s.Finish(nil)
	}
	return nil
}

// ─── PlaybackStream ──────────────────────────────────────────────────────────

// PlaybackStream is a recording implementation of [audio.PlaybackStream].
type PlaybackStream struct {
	mu sync.Mutex

	// PlayError is returned by every Play call when non-nil.
	PlayError error

	// Played holds a copy of every sample slice passed to Play, in order.
	Played [][]int16

	// CallCountPlay records how many times Play was called.
	CallCountPlay int
}

var _ audio.PlaybackStream = (*PlaybackStream)(nil)

// Play implements [audio.PlaybackStream]. It records the samples and returns
// PlayError (nil by default).
func (s *PlaybackStream) Play(ctx context.Context, samples []int16) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountPlay++
	cp := make([]int16, len(samples))
	copy(cp, samples)
	s.Played = append(s.Played, cp)
	return s.PlayError
}

// Close implements [audio.PlaybackStream].
func (s *PlaybackStream) Close() error { return nil }
