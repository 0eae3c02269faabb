package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// PipePlatform implements [Platform] over raw 16-bit little-endian PCM
// streams, typically wired to a capture process such as
//
//	arecord -f S16_LE -r 16000 -c 1 -t raw | audiochat --stdin-audio
//
// or to files during offline testing. It reads frames of FrameSize samples
// from Input and writes playback PCM to Output.
type PipePlatform struct {
	// Input supplies captured PCM. When nil, OpenCapture returns
	// [ErrDeviceUnavailable].
	Input io.Reader

	// Output receives synthesised PCM. When nil, playback is discarded.
	Output io.Writer

	// FrameSize is the number of samples per emitted frame. Defaults to 1024.
	FrameSize int

	// Realtime paces frame delivery at the wall-clock rate implied by the
	// stream format. Disabled by default so tests run at full speed.
	Realtime bool
}

// Compile-time interface assertion.
var _ Platform = (*PipePlatform)(nil)

// OpenCapture starts a goroutine that slices Input into frames and delivers
// them until EOF, a read error, or ctx cancellation.
func (p *PipePlatform) OpenCapture(ctx context.Context, format Format) (CaptureStream, error) {
	if p.Input == nil {
		return nil, fmt.Errorf("pipe platform: no input stream: %w", ErrDeviceUnavailable)
	}
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, fmt.Errorf("pipe platform: invalid format %+v", format)
	}

	frameSize := p.FrameSize
	if frameSize <= 0 {
		frameSize = 1024
	}

	s := &pipeCapture{r: p.Input, frames: make(chan AudioFrame, 16)}
	s.wg.Add(1)
	go s.readLoop(ctx, p.Input, format, frameSize, p.Realtime)
	return s, nil
}

// OpenPlayback returns a stream writing PCM to Output. A nil Output yields a
// discarding stream, which keeps dry runs working without an audio device.
func (p *PipePlatform) OpenPlayback(_ context.Context, format Format) (PlaybackStream, error) {
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, fmt.Errorf("pipe platform: invalid format %+v", format)
	}
	return &pipePlayback{w: p.Output}, nil
}

// ─── capture ─────────────────────────────────────────────────────────────────

type pipeCapture struct {
	r      io.Reader
	frames chan AudioFrame
	wg     sync.WaitGroup

	mu     sync.Mutex
	err    error
	closed bool
}

func (s *pipeCapture) readLoop(ctx context.Context, r io.Reader, format Format, frameSize int, realtime bool) {
	defer s.wg.Done()
	defer close(s.frames)

	frameDur := time.Duration(frameSize/format.Channels) * time.Second / time.Duration(format.SampleRate)
	buf := make([]byte, frameSize*2)
	var elapsed time.Duration
	var ticker *time.Ticker
	if realtime {
		ticker = time.NewTicker(frameDur)
		defer ticker.Stop()
	}

	for {
		if err := ctx.Err(); err != nil {
			return
		}
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			frame := AudioFrame{
				Samples:    BytesToSamples(buf[:n]),
				SampleRate: format.SampleRate,
				Channels:   format.Channels,
				Timestamp:  elapsed,
			}
			elapsed += frame.Duration()
			select {
			case s.frames <- frame:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				s.setErr(fmt.Errorf("pipe platform: read: %w", err))
			}
			return
		}
		if realtime {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *pipeCapture) Frames() <-chan AudioFrame { return s.frames }

func (s *pipeCapture) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *pipeCapture) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil && !s.closed {
		s.err = err
	}
}

func (s *pipeCapture) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	// A FIFO or stdin can sit in a read with no data arriving; closing the
	// source is the only way to unblock the read loop so the frame channel
	// closes. The closed flag is set first so the resulting read error is
	// not misreported as a capture failure.
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ─── playback ────────────────────────────────────────────────────────────────

type pipePlayback struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *pipePlayback) Play(ctx context.Context, samples []int16) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return nil
	}
	if _, err := s.w.Write(SamplesToBytes(samples)); err != nil {
		return fmt.Errorf("pipe platform: write: %w", err)
	}
	return nil
}

func (s *pipePlayback) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = nil
	return nil
}
