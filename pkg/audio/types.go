package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// AudioFrame represents a single frame of audio flowing through the pipeline.
// Frames are the atomic unit of audio transport — captured from an input
// device, buffered by the ring buffer, and classified by the turn detector.
type AudioFrame struct {
	// Samples holds signed 16-bit PCM samples. For multi-channel audio the
	// samples are interleaved.
	Samples []int16

	// SampleRate in Hz (e.g., 16000 for STT-optimised capture).
	SampleRate int

	// Channels: 1 for mono (the pipeline default), 2 for stereo input devices.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback length of the frame.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	frames := len(f.Samples) / f.Channels
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// Utterance is a finite, immutable recording of one continuous speech segment,
// assembled by the turn detector between speech onset and turn completion.
// Ownership transfers to the orchestrator when the segment completes; the
// detector never touches the sample slice again.
type Utterance struct {
	// Samples holds the full signed 16-bit PCM content of the utterance.
	Samples []int16

	// SampleRate in Hz.
	SampleRate int

	// Channels is the channel count (1 for the standard pipeline).
	Channels int

	// Start marks when speech onset was detected, relative to stream start.
	Start time.Duration

	// Duration is the total length of the utterance.
	Duration time.Duration
}

// RMS computes the root-mean-square energy of the samples, normalised to
// [0.0, 1.0] where 1.0 corresponds to a full-scale 16-bit signal.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum/float64(len(samples))) / math.MaxInt16
}

// SamplesToBytes encodes int16 PCM samples as little-endian bytes, the wire
// format expected by whisper.cpp and most synthesis servers.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToSamples decodes little-endian 16-bit PCM bytes into samples.
// A trailing odd byte is dropped.
func BytesToSamples(data []byte) []int16 {
	n := len(data) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

// SamplesToFloat32 converts int16 PCM to float32 in [-1.0, 1.0], the input
// format of the whisper.cpp Go bindings.
func SamplesToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / math.MaxInt16
	}
	return out
}
