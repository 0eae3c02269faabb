// Package audio defines the types and interfaces for audio capture, buffering,
// and playback within the voice pipeline.
//
// The two primary abstractions are:
//
//   - [Platform] — opens capture and playback streams on an audio device.
//   - [RingBuffer] — the lock-protected sample buffer between the capture
//     goroutine and the turn detector.
//
// Implementations of [Platform] are provided by adapter packages (a scripted
// mock for tests, a PCM file/pipe adapter for offline runs). The interfaces
// are intentionally narrow so the supervisor stays decoupled from device
// details.
//
// This package lives under pkg/ because external code (alternative device
// adapters) is expected to implement [Platform].
package audio

import (
	"context"
	"errors"
)

// ErrDeviceUnavailable is returned by [Platform.OpenCapture] when no input
// device can be opened. The supervisor treats this as fatal to the whole
// pipeline — without a microphone there is nothing to do.
var ErrDeviceUnavailable = errors.New("audio: capture device unavailable")

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// CaptureStream is an open audio input stream.
//
// A CaptureStream is obtained from [Platform.OpenCapture] and delivers frames
// until Close is called or the opening context is cancelled. The frames
// channel is closed by the implementation when the stream ends; a premature
// close with a non-nil Err signals a device failure.
type CaptureStream interface {
	// Frames returns the read-only channel delivering captured frames.
	// The channel is closed when the stream ends.
	Frames() <-chan AudioFrame

	// Err returns the error that terminated the stream, or nil after a clean
	// Close. Valid only after the Frames channel is closed.
	Err() error

	// Close stops capture and releases the device. Safe to call more than
	// once; subsequent calls return nil.
	Close() error
}

// PlaybackStream is an open audio output stream.
type PlaybackStream interface {
	// Play writes the samples to the output device and blocks until playback
	// completes or ctx is cancelled. Playback blocking the caller is by
	// contract: the orchestrator treats speaking as a synchronous state while
	// the capture goroutine keeps running independently.
	Play(ctx context.Context, samples []int16) error

	// Close releases the output device. Safe to call more than once.
	Close() error
}

// Platform opens capture and playback streams on an audio device.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// OpenCapture starts delivering input frames in the given format.
	// The stream keeps running after ctx is cancelled only until its internal
	// buffers drain; callers should also call Close.
	//
	// Returns [ErrDeviceUnavailable] (possibly wrapped) when no input device
	// exists.
	OpenCapture(ctx context.Context, format Format) (CaptureStream, error)

	// OpenPlayback opens the output device in the given format.
	OpenPlayback(ctx context.Context, format Format) (PlaybackStream, error)
}

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to prevent goroutine leaks when the data from a streaming channel
// is not needed.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
