// Package supervisor runs the capture side of the pipeline: it owns the
// capture stream, the ring buffer, and the turn detector, and feeds completed
// utterances into the orchestrator. It also recovers the pipeline after a
// failed turn so a single provider outage never ends the session.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/barbourakais/Ai-audio-chatbot/internal/observe"
	"github.com/barbourakais/Ai-audio-chatbot/internal/orchestrator"
	"github.com/barbourakais/Ai-audio-chatbot/pkg/audio"
	"github.com/barbourakais/Ai-audio-chatbot/pkg/vad"
)

// Config holds the supervisor's dependencies.
type Config struct {
	Platform     audio.Platform
	Orchestrator *orchestrator.Orchestrator
	Detector     *vad.Detector

	// Format is the capture format requested from the platform.
	Format audio.Format

	// RingSeconds sizes the ring buffer between capture and detection.
	// Default 10.
	RingSeconds int

	// PollInterval is the cadence at which buffered samples are drained into
	// the detector. Default 50ms.
	PollInterval time.Duration

	Logger  *slog.Logger
	Metrics *observe.Metrics
}

const (
	defaultRingSeconds  = 10
	defaultPollInterval = 50 * time.Millisecond
)

// Supervisor drives the capture loop. Create one per session with New and
// run it with Run; Run returns when ctx is cancelled, the capture device
// fails, or the capture stream ends cleanly.
type Supervisor struct {
	cfg     Config
	ring    *audio.RingBuffer
	log     *slog.Logger
	metrics *observe.Metrics

	paused atomic.Bool

	// lastDropped tracks the ring's dropped counter between polls so only
	// the delta is recorded.
	lastDropped int64
}

// New validates cfg and returns a Supervisor.
func New(cfg Config) (*Supervisor, error) {
	if cfg.Platform == nil {
		return nil, errors.New("supervisor: Platform must not be nil")
	}
	if cfg.Orchestrator == nil {
		return nil, errors.New("supervisor: Orchestrator must not be nil")
	}
	if cfg.Detector == nil {
		return nil, errors.New("supervisor: Detector must not be nil")
	}
	if cfg.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("supervisor: sample rate must be positive, got %d", cfg.Format.SampleRate)
	}
	if cfg.RingSeconds <= 0 {
		cfg.RingSeconds = defaultRingSeconds
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	return &Supervisor{
		cfg:     cfg,
		ring:    audio.NewRingBuffer(cfg.RingSeconds * cfg.Format.SampleRate * cfg.Format.Channels),
		log:     cfg.Logger,
		metrics: cfg.Metrics,
	}, nil
}

// Pause stops feeding audio into the detector. Buffered and in-progress
// audio is discarded so a half-captured utterance cannot fire on resume.
func (s *Supervisor) Pause() {
	if s.paused.CompareAndSwap(false, true) {
		s.log.Info("listening paused")
	}
}

// Resume restarts listening after a Pause.
func (s *Supervisor) Resume() {
	if s.paused.CompareAndSwap(true, false) {
		s.log.Info("listening resumed")
	}
}

// Paused reports whether listening is paused.
func (s *Supervisor) Paused() bool { return s.paused.Load() }

// Run opens the capture stream and processes audio until ctx is cancelled or
// the stream ends. A device that cannot be opened, or dies mid-session, is
// fatal: Run returns the error and the caller decides whether to restart.
func (s *Supervisor) Run(ctx context.Context) error {
	stream, err := s.cfg.Platform.OpenCapture(ctx, s.cfg.Format)
	if err != nil {
		return fmt.Errorf("supervisor: open capture: %w", err)
	}
	defer stream.Close()

	s.cfg.Orchestrator.SetListening()
	s.log.Info("capture started",
		"sample_rate", s.cfg.Format.SampleRate, "channels", s.cfg.Format.Channels)

	captureDone := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(captureDone)
		for {
			select {
			case <-gctx.Done():
				// Unblock the implementation's send side, then drain.
				stream.Close()
				audio.Drain(stream.Frames())
				return nil
			case frame, ok := <-stream.Frames():
				if !ok {
					if err := stream.Err(); err != nil {
						return fmt.Errorf("supervisor: capture stream: %w", err)
					}
					return nil
				}
				s.ring.Write(frame.Samples)
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(s.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-captureDone:
				// Final drain so a turn completed by end-of-stream silence
				// is not lost.
				s.drain(gctx)
				return nil
			case <-ticker.C:
				s.drain(gctx)
			}
		}
	})

	return g.Wait()
}

// drain moves buffered samples through the detector and dispatches completed
// turns.
func (s *Supervisor) drain(ctx context.Context) {
	samples := s.ring.ReadAvailable()

	if dropped := s.ring.Dropped(); dropped > s.lastDropped {
		s.metrics.DroppedSamples.Add(ctx, dropped-s.lastDropped)
		s.lastDropped = dropped
	}

	if s.paused.Load() {
		if s.cfg.Detector.SpeechStarted() {
			s.cfg.Detector.Reset()
			s.cfg.Orchestrator.SetListening()
		}
		return
	}
	if len(samples) == 0 {
		return
	}

	event := s.cfg.Detector.Process(samples)
	switch event.Type {
	case vad.EventNone:
		if s.cfg.Detector.SpeechStarted() {
			s.cfg.Orchestrator.SetSpeechDetected()
		}
	case vad.EventTurnComplete:
		s.log.Debug("turn complete", "duration", event.Utterance.Duration)
		s.dispatch(ctx, event.Utterance)
	case vad.EventTurnAbandoned:
		s.log.Debug("turn abandoned", "class", event.Class)
		s.metrics.RecordTurn(ctx, orchestrator.OutcomeAbandoned)
		s.cfg.Orchestrator.SetListening()
	}
}

// dispatch hands one utterance to the orchestrator and recovers the pipeline
// when the turn fails.
func (s *Supervisor) dispatch(ctx context.Context, u *audio.Utterance) {
	if _, err := s.cfg.Orchestrator.HandleUtterance(ctx, u); err != nil {
		s.log.Error("turn failed, resetting pipeline", "error", err)
		// Audio captured while the failed turn was in flight belongs to a
		// conversation that just broke; start clean.
		s.ring.ReadAvailable()
		s.cfg.Detector.Reset()
		s.cfg.Orchestrator.SetListening()
	}
}
