// Package vad implements energy-based voice activity detection and turn
// segmentation for the audio pipeline.
//
// The central type is [Detector], a stateful segmenter fed with PCM chunks
// drained from the capture ring buffer. Each chunk is classified as speech or
// silence from its short-time RMS energy against a threshold that may adapt
// to a running noise-floor estimate. Once speech has started, trailing
// silence is accumulated; when it crosses the configured window the detector
// emits a completed utterance covering speech onset through the silence
// boundary.
//
// A Detector is driven from a single goroutine — the pipeline's orchestration
// loop — and maintains per-stream state. It must not be shared across
// goroutines.
package vad

import (
	"fmt"
	"time"

	"github.com/barbourakais/Ai-audio-chatbot/pkg/audio"
)

// Classification is the per-chunk speech/silence decision.
type Classification int

const (
	// Silence indicates chunk energy at or below the active threshold.
	Silence Classification = iota

	// Speech indicates chunk energy above the active threshold.
	Speech
)

// String returns the human-readable name of the classification.
func (c Classification) String() string {
	if c == Speech {
		return "speech"
	}
	return "silence"
}

// EventType enumerates turn segmentation outcomes.
type EventType int

const (
	// EventNone means the chunk was consumed without completing a turn.
	EventNone EventType = iota

	// EventTurnComplete means a full utterance was segmented. The event
	// carries the utterance; ownership transfers to the caller.
	EventTurnComplete

	// EventTurnAbandoned means no speech started within the max-wait window.
	// No utterance is produced; the detector returns to waiting.
	EventTurnAbandoned
)

// Event is the result of feeding one chunk to [Detector.Process].
type Event struct {
	// Type is the segmentation outcome for this chunk.
	Type EventType

	// Utterance is non-nil only when Type is [EventTurnComplete].
	Utterance *audio.Utterance

	// Class is the speech/silence classification of the processed chunk,
	// exposed for level indicators and metrics.
	Class Classification
}

// Config holds the detector parameters. Zero values select the defaults
// noted on each field.
type Config struct {
	// SampleRate is the PCM sample rate in Hz. Required.
	SampleRate int

	// SpeechThreshold is the normalised RMS level above which a chunk is
	// classified as speech. Range (0, 1]. Default 0.01.
	SpeechThreshold float64

	// Adaptive enables the running noise-floor estimate. When enabled the
	// effective threshold is max(SpeechThreshold, NoiseFloorMargin × floor);
	// the floor is updated only during silence-classified chunks and decays
	// exponentially, so brief loud noise cannot poison it.
	Adaptive bool

	// NoiseFloorDecay is the exponential smoothing factor for the noise
	// floor, in (0, 1). Higher values adapt more slowly. Default 0.95.
	NoiseFloorDecay float64

	// NoiseFloorMargin is the multiple of the noise floor that speech must
	// exceed when Adaptive is set. Default 3.0.
	NoiseFloorMargin float64

	// TrailingSilence is the silence duration after speech that completes a
	// turn. Default 1500ms.
	TrailingSilence time.Duration

	// MaxUtterance bounds utterance length; a turn is forced complete once
	// the utterance reaches it, regardless of trailing silence. Guards
	// against a stuck-open microphone. Default 30s.
	MaxUtterance time.Duration

	// MaxWait bounds how long the detector waits for speech to start before
	// reporting an abandoned turn. Default 30s.
	MaxWait time.Duration

	// MinUtterance discards completed turns whose speech content is shorter
	// than this, reporting them as abandoned instead. Default 0 (disabled).
	MinUtterance time.Duration
}

// withDefaults returns cfg with zero fields replaced by defaults.
func (cfg Config) withDefaults() Config {
	if cfg.SpeechThreshold <= 0 {
		cfg.SpeechThreshold = 0.01
	}
	if cfg.NoiseFloorDecay <= 0 || cfg.NoiseFloorDecay >= 1 {
		cfg.NoiseFloorDecay = 0.95
	}
	if cfg.NoiseFloorMargin <= 0 {
		cfg.NoiseFloorMargin = 3.0
	}
	if cfg.TrailingSilence <= 0 {
		cfg.TrailingSilence = 1500 * time.Millisecond
	}
	if cfg.MaxUtterance <= 0 {
		cfg.MaxUtterance = 30 * time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 30 * time.Second
	}
	return cfg
}

// Detector segments a PCM stream into utterances. All durations are derived
// from consumed sample counts rather than wall-clock time, so segmentation is
// deterministic for a given input stream.
type Detector struct {
	cfg Config

	// stream position
	consumed time.Duration // total audio consumed since New/Reset

	// per-turn state
	speechStarted   bool
	utterance       []int16
	utteranceStart  time.Duration
	trailingSilence time.Duration
	waited          time.Duration // silence consumed while waiting for onset

	// adaptive noise floor; valid only when cfg.Adaptive
	noiseFloor float64
}

// New creates a Detector. Returns an error if SampleRate is not positive or
// SpeechThreshold is outside (0, 1].
func New(cfg Config) (*Detector, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("vad: sample rate must be positive, got %d", cfg.SampleRate)
	}
	cfg = cfg.withDefaults()
	if cfg.SpeechThreshold > 1 {
		return nil, fmt.Errorf("vad: speech threshold must be in (0, 1], got %v", cfg.SpeechThreshold)
	}
	return &Detector{cfg: cfg}, nil
}

// Classify reports whether chunk is speech or silence at the current
// threshold. It does not advance detector state.
func (d *Detector) Classify(chunk []int16) Classification {
	if audio.RMS(chunk) > d.threshold() {
		return Speech
	}
	return Silence
}

// threshold returns the active speech threshold, raised above the noise floor
// when adaptation is enabled.
func (d *Detector) threshold() float64 {
	t := d.cfg.SpeechThreshold
	if d.cfg.Adaptive {
		if adaptive := d.noiseFloor * d.cfg.NoiseFloorMargin; adaptive > t {
			t = adaptive
		}
	}
	return t
}

// Process consumes the next chunk of the stream and returns the segmentation
// outcome. Chunks must be delivered in capture order.
func (d *Detector) Process(chunk []int16) Event {
	if len(chunk) == 0 {
		return Event{Type: EventNone, Class: Silence}
	}

	chunkDur := time.Duration(len(chunk)) * time.Second / time.Duration(d.cfg.SampleRate)
	class := d.Classify(chunk)

	// The noise floor tracks only silence so speech energy never raises it.
	if d.cfg.Adaptive && class == Silence {
		dec := d.cfg.NoiseFloorDecay
		d.noiseFloor = dec*d.noiseFloor + (1-dec)*audio.RMS(chunk)
	}

	d.consumed += chunkDur

	if !d.speechStarted {
		if class == Speech {
			d.speechStarted = true
			d.utteranceStart = d.consumed - chunkDur
			d.utterance = append(d.utterance, chunk...)
			d.trailingSilence = 0
			d.waited = 0
			return Event{Type: EventNone, Class: class}
		}
		d.waited += chunkDur
		if d.waited >= d.cfg.MaxWait {
			d.waited = 0
			return Event{Type: EventTurnAbandoned, Class: class}
		}
		return Event{Type: EventNone, Class: class}
	}

	// Speech has started: everything up to the silence boundary belongs to
	// the utterance, including the silence itself.
	d.utterance = append(d.utterance, chunk...)
	if class == Speech {
		d.trailingSilence = 0
	} else {
		d.trailingSilence += chunkDur
	}

	utterDur := time.Duration(len(d.utterance)) * time.Second / time.Duration(d.cfg.SampleRate)
	if d.trailingSilence >= d.cfg.TrailingSilence || utterDur >= d.cfg.MaxUtterance {
		return d.completeTurn(utterDur, class)
	}
	return Event{Type: EventNone, Class: class}
}

// completeTurn finishes the current utterance and resets per-turn state.
// class is the classification of the chunk that triggered completion: Silence
// when the trailing-silence threshold closed the turn, Speech when the
// max-utterance bound cut a still-speaking stream.
func (d *Detector) completeTurn(utterDur time.Duration, class Classification) Event {
	samples := d.utterance
	start := d.utteranceStart
	trailing := d.trailingSilence

	d.speechStarted = false
	d.utterance = nil
	d.trailingSilence = 0
	d.waited = 0

	if d.cfg.MinUtterance > 0 && utterDur-trailing < d.cfg.MinUtterance {
		return Event{Type: EventTurnAbandoned, Class: class}
	}

	return Event{
		Type: EventTurnComplete,
		Utterance: &audio.Utterance{
			Samples:    samples,
			SampleRate: d.cfg.SampleRate,
			Channels:   1,
			Start:      start,
			Duration:   utterDur,
		},
		Class: class,
	}
}

// SpeechStarted reports whether the detector is currently inside an
// utterance. Exposed for the pipeline state gauge.
func (d *Detector) SpeechStarted() bool { return d.speechStarted }

// NoiseFloor returns the current noise-floor estimate (0 when adaptation is
// disabled or no silence has been observed yet).
func (d *Detector) NoiseFloor() float64 { return d.noiseFloor }

// Reset clears all accumulated state — in-progress utterance, silence
// counters, and noise floor — without changing configuration. Use this when
// the audio stream is interrupted or restarted.
func (d *Detector) Reset() {
	d.consumed = 0
	d.speechStarted = false
	d.utterance = nil
	d.utteranceStart = 0
	d.trailingSilence = 0
	d.waited = 0
	d.noiseFloor = 0
}
