package vad_test

import (
	"testing"
	"time"

	"github.com/barbourakais/Ai-audio-chatbot/pkg/vad"
)

const sampleRate = 16000

// chunk produces 100ms of PCM at the given peak amplitude (a square-ish wave
// so the RMS is predictable: RMS ≈ amp/32767).
func chunk(amp int16) []int16 {
	out := make([]int16, sampleRate/10)
	for i := range out {
		if i%2 == 0 {
			out[i] = amp
		} else {
			out[i] = -amp
		}
	}
	return out
}

func newDetector(t *testing.T, cfg vad.Config) *vad.Detector {
	t.Helper()
	if cfg.SampleRate == 0 {
		cfg.SampleRate = sampleRate
	}
	d, err := vad.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestDetector_SilenceOnlyEmitsAbandoned(t *testing.T) {
	t.Parallel()
	d := newDetector(t, vad.Config{
		MaxWait:         time.Second,
		TrailingSilence: 500 * time.Millisecond,
	})

	var abandoned, completed int
	for i := 0; i < 30; i++ { // 3s of silence
		ev := d.Process(chunk(0))
		switch ev.Type {
		case vad.EventTurnComplete:
			completed++
		case vad.EventTurnAbandoned:
			abandoned++
		}
	}
	if completed != 0 {
		t.Errorf("completed = %d, want 0 for pure silence", completed)
	}
	if abandoned != 3 {
		t.Errorf("abandoned = %d, want 3 (one per second of waiting)", abandoned)
	}
}

func TestDetector_SpeechThenSilenceCompletesOnce(t *testing.T) {
	t.Parallel()
	d := newDetector(t, vad.Config{TrailingSilence: 500 * time.Millisecond})

	var events []vad.Event
	for i := 0; i < 10; i++ { // 1s of speech
		events = append(events, d.Process(chunk(8000)))
	}
	for i := 0; i < 10; i++ { // 1s of silence
		events = append(events, d.Process(chunk(0)))
	}

	var complete *vad.Event
	for i := range events {
		if events[i].Type == vad.EventTurnComplete {
			if complete != nil {
				t.Fatal("more than one TurnComplete emitted")
			}
			complete = &events[i]
		}
	}
	if complete == nil {
		t.Fatal("no TurnComplete emitted")
	}

	u := complete.Utterance
	if u == nil {
		t.Fatal("TurnComplete carried no utterance")
	}
	// 1s speech + 0.5s trailing silence.
	want := 1500 * time.Millisecond
	if u.Duration != want {
		t.Errorf("utterance duration = %v, want %v", u.Duration, want)
	}
	if u.Start != 0 {
		t.Errorf("utterance start = %v, want 0", u.Start)
	}
	if len(u.Samples) != sampleRate*3/2 {
		t.Errorf("utterance has %d samples, want %d", len(u.Samples), sampleRate*3/2)
	}
}

func TestDetector_SilenceBeforeOnsetExcluded(t *testing.T) {
	t.Parallel()
	d := newDetector(t, vad.Config{TrailingSilence: 500 * time.Millisecond})

	for i := 0; i < 5; i++ { // 0.5s leading silence
		d.Process(chunk(0))
	}
	for i := 0; i < 5; i++ { // 0.5s speech
		d.Process(chunk(8000))
	}
	var u *vad.Event
	for i := 0; i < 10; i++ {
		ev := d.Process(chunk(0))
		if ev.Type == vad.EventTurnComplete {
			u = &ev
			break
		}
	}
	if u == nil {
		t.Fatal("no TurnComplete emitted")
	}
	if u.Utterance.Start != 500*time.Millisecond {
		t.Errorf("utterance start = %v, want 500ms (leading silence excluded)", u.Utterance.Start)
	}
}

func TestDetector_SpeechResetsTrailingSilence(t *testing.T) {
	t.Parallel()
	d := newDetector(t, vad.Config{TrailingSilence: 500 * time.Millisecond})

	d.Process(chunk(8000))
	// 400ms silence — below the window.
	for i := 0; i < 4; i++ {
		if ev := d.Process(chunk(0)); ev.Type != vad.EventNone {
			t.Fatalf("unexpected event %v before window elapsed", ev.Type)
		}
	}
	// Speech resumes: the silence counter must restart.
	d.Process(chunk(8000))
	for i := 0; i < 4; i++ {
		if ev := d.Process(chunk(0)); ev.Type != vad.EventNone {
			t.Fatalf("trailing silence was not reset by resumed speech")
		}
	}
	if ev := d.Process(chunk(0)); ev.Type != vad.EventTurnComplete {
		t.Fatalf("expected TurnComplete at 500ms of fresh silence, got %v", ev.Type)
	} else if ev.Class != vad.Silence {
		t.Errorf("silence-closed completion class = %v, want Silence", ev.Class)
	}
}

func TestDetector_MaxUtteranceForcesCompletion(t *testing.T) {
	t.Parallel()
	d := newDetector(t, vad.Config{
		TrailingSilence: time.Second,
		MaxUtterance:    2 * time.Second,
	})

	var complete bool
	for i := 0; i < 40; i++ { // 4s of continuous speech
		if ev := d.Process(chunk(8000)); ev.Type == vad.EventTurnComplete {
			complete = true
			if got := ev.Utterance.Duration; got != 2*time.Second {
				t.Errorf("forced utterance duration = %v, want 2s", got)
			}
			// The cut happened mid-speech, not at a silence boundary.
			if ev.Class != vad.Speech {
				t.Errorf("forced completion class = %v, want Speech", ev.Class)
			}
			break
		}
	}
	if !complete {
		t.Fatal("stuck-open stream never forced a turn completion")
	}
}

func TestDetector_AdaptiveFloorRisesAboveHum(t *testing.T) {
	t.Parallel()
	d := newDetector(t, vad.Config{
		Adaptive:         true,
		NoiseFloorDecay:  0.5, // adapt fast for the test
		NoiseFloorMargin: 3.0,
		SpeechThreshold:  0.01,
		TrailingSilence:  500 * time.Millisecond,
	})

	// A steady hum below the static threshold raises the floor, which in
	// turn raises the effective speech threshold above the static value.
	hum := chunk(200) // RMS ≈ 0.006, classified silence
	for i := 0; i < 50; i++ {
		d.Process(hum)
	}
	if d.NoiseFloor() < 0.005 {
		t.Fatalf("noise floor did not adapt to hum: %v", d.NoiseFloor())
	}

	// This level exceeds the static threshold (~0.015 > 0.01) but not the
	// adapted one (3 × floor ≈ 0.018), so it must read as silence.
	borderline := chunk(500)
	if d.Classify(borderline) != vad.Silence {
		t.Errorf("borderline noise classified as speech; noise floor = %v", d.NoiseFloor())
	}
	// Loud speech must stay above the adapted threshold.
	if d.Classify(chunk(8000)) != vad.Speech {
		t.Error("loud speech misclassified after adaptation")
	}
}

func TestDetector_Reset(t *testing.T) {
	t.Parallel()
	d := newDetector(t, vad.Config{TrailingSilence: 500 * time.Millisecond})

	d.Process(chunk(8000))
	if !d.SpeechStarted() {
		t.Fatal("SpeechStarted = false after speech chunk")
	}
	d.Reset()
	if d.SpeechStarted() {
		t.Error("SpeechStarted = true after Reset")
	}
	// A fresh utterance after Reset starts at timestamp zero.
	d.Process(chunk(8000))
	var ev vad.Event
	for i := 0; i < 10; i++ {
		ev = d.Process(chunk(0))
		if ev.Type == vad.EventTurnComplete {
			break
		}
	}
	if ev.Type != vad.EventTurnComplete {
		t.Fatal("no TurnComplete after Reset")
	}
	if ev.Utterance.Start != 0 {
		t.Errorf("utterance start after Reset = %v, want 0", ev.Utterance.Start)
	}
}
