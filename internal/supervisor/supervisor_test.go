package supervisor_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/barbourakais/Ai-audio-chatbot/internal/convo"
	"github.com/barbourakais/Ai-audio-chatbot/internal/orchestrator"
	"github.com/barbourakais/Ai-audio-chatbot/internal/supervisor"
	"github.com/barbourakais/Ai-audio-chatbot/pkg/audio"
	audiomock "github.com/barbourakais/Ai-audio-chatbot/pkg/audio/mock"
	"github.com/barbourakais/Ai-audio-chatbot/pkg/provider/llm"
	llmmock "github.com/barbourakais/Ai-audio-chatbot/pkg/provider/llm/mock"
	"github.com/barbourakais/Ai-audio-chatbot/pkg/provider/stt"
	sttmock "github.com/barbourakais/Ai-audio-chatbot/pkg/provider/stt/mock"
	"github.com/barbourakais/Ai-audio-chatbot/pkg/vad"
)

const testRate = 16000

func speechFrame(ms int) audio.AudioFrame {
	n := testRate * ms / 1000
	samples := make([]int16, n)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 8000
		} else {
			samples[i] = -8000
		}
	}
	return audio.AudioFrame{Samples: samples, SampleRate: testRate, Channels: 1}
}

func silenceFrame(ms int) audio.AudioFrame {
	return audio.AudioFrame{Samples: make([]int16, testRate*ms/1000), SampleRate: testRate, Channels: 1}
}

type fixture struct {
	stream *audiomock.CaptureStream
	stt    *sttmock.Transcriber
	memory *convo.Memory
	orch   *orchestrator.Orchestrator
	sup    *supervisor.Supervisor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		stream: audiomock.NewCaptureStream(),
		stt:    &sttmock.Transcriber{Result: stt.Result{Text: "hello there"}, ModelIDValue: "mock-stt"},
	}
	var err error
	f.memory, err = convo.New()
	if err != nil {
		t.Fatalf("convo.New: %v", err)
	}
	f.orch, err = orchestrator.New(orchestrator.Config{
		Transcriber: f.stt,
		Generator:   &llmmock.Generator{Response: &llm.Response{Text: "hi"}, ModelIDValue: "mock-llm"},
		Memory:      f.memory,
	})
	if err != nil {
		t.Fatalf("orchestrator.New: %v", err)
	}

	detector, err := vad.New(vad.Config{
		SampleRate:      testRate,
		SpeechThreshold: 0.01,
		TrailingSilence: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("vad.New: %v", err)
	}

	f.sup, err = supervisor.New(supervisor.Config{
		Platform:     &audiomock.Platform{CaptureResult: f.stream},
		Orchestrator: f.orch,
		Detector:     detector,
		Format:       audio.Format{SampleRate: testRate, Channels: 1},
		PollInterval: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("supervisor.New: %v", err)
	}
	return f
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// pushTurn delivers a spoken utterance followed by enough silence to close
// the turn, pausing between frames so they reach the detector separately.
func pushTurn(f *fixture) {
	f.stream.Push(speechFrame(200))
	time.Sleep(30 * time.Millisecond)
	f.stream.Push(silenceFrame(200))
	time.Sleep(30 * time.Millisecond)
}

func TestRunProcessesTurn(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.sup.Run(ctx) }()

	pushTurn(f)
	waitFor(t, 2*time.Second, func() bool { return f.memory.Len() == 1 }, "turn never completed")

	ex := f.memory.Exchanges()[0]
	if ex.User != "hello there" || ex.Assistant != "hi" {
		t.Errorf("recorded exchange = %+v", ex)
	}

	f.stream.Finish(nil)
	if err := <-done; err != nil {
		t.Errorf("Run returned %v, want nil on clean stream end", err)
	}
}

func TestRunReportsSpeechOnset(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.sup.Run(ctx) }()

	// Speech without trailing silence: the turn is still open, but onset
	// must already be reflected in the pipeline state.
	f.stream.Push(speechFrame(200))
	waitFor(t, 2*time.Second, func() bool {
		return f.orch.State() == orchestrator.StateSpeechDetected
	}, "state never reached speech_detected while speaking")

	f.stream.Push(silenceFrame(200))
	waitFor(t, 2*time.Second, func() bool { return f.memory.Len() == 1 }, "turn never completed")
	waitFor(t, 2*time.Second, func() bool {
		return f.orch.State() == orchestrator.StateListening
	}, "state never returned to listening after the turn")

	f.stream.Finish(nil)
	if err := <-done; err != nil {
		t.Errorf("Run returned %v, want nil on clean stream end", err)
	}
}

func TestRunDeviceUnavailable(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	sup, err := supervisor.New(supervisor.Config{
		Platform:     &audiomock.Platform{CaptureError: audio.ErrDeviceUnavailable},
		Orchestrator: f.orch,
		Detector:     mustDetector(t),
		Format:       audio.Format{SampleRate: testRate, Channels: 1},
	})
	if err != nil {
		t.Fatalf("supervisor.New: %v", err)
	}

	err = sup.Run(context.Background())
	if !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Errorf("Run err = %v, want ErrDeviceUnavailable", err)
	}
}

func mustDetector(t *testing.T) *vad.Detector {
	t.Helper()
	d, err := vad.New(vad.Config{SampleRate: testRate})
	if err != nil {
		t.Fatalf("vad.New: %v", err)
	}
	return d
}

func TestRunStreamFailureIsFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	done := make(chan error, 1)
	go func() { done <- f.sup.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	f.stream.Finish(errors.New("device lost"))

	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "device lost") {
			t.Errorf("Run err = %v, want device failure", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after stream failure")
	}
}

func TestRunRecoversAfterFailedTurn(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.stt.Err = &stt.TranscriptionError{Engine: "mock", Err: errors.New("server gone")}
	attempted := make(chan struct{}, 4)
	f.stt.Delay = func(context.Context) error {
		select {
		case attempted <- struct{}{}:
		default:
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.sup.Run(ctx) }()

	pushTurn(f)
	select {
	case <-attempted:
	case <-time.After(3 * time.Second):
		t.Fatal("transcription was never attempted")
	}
	// The failed turn must put the pipeline back into listening, not leave
	// it stuck in the error state.
	waitFor(t, 3*time.Second, func() bool {
		return f.orch.State() == orchestrator.StateListening
	}, "pipeline did not recover after failed turn")

	if f.memory.Len() != 0 {
		t.Errorf("memory len = %d, want 0 after failed turn", f.memory.Len())
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v on cancel, want nil", err)
	}
}

func TestRunStopsOnCancelWithSilentInput(t *testing.T) {
	t.Parallel()

	// A live FIFO or stdin that never delivers data leaves the platform's
	// read blocked; cancellation must still unwind Run.
	r, w := io.Pipe()
	defer w.Close()

	f := newFixture(t)
	sup, err := supervisor.New(supervisor.Config{
		Platform:     &audio.PipePlatform{Input: r},
		Orchestrator: f.orch,
		Detector:     mustDetector(t),
		Format:       audio.Format{SampleRate: testRate, Channels: 1},
		PollInterval: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("supervisor.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v on cancel, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel with a silent input")
	}
}

func TestPauseDiscardsAudio(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.sup.Run(ctx) }()

	f.sup.Pause()
	if !f.sup.Paused() {
		t.Fatal("Paused = false after Pause")
	}
	pushTurn(f)
	time.Sleep(100 * time.Millisecond)
	if f.memory.Len() != 0 {
		t.Fatalf("memory len = %d while paused, want 0", f.memory.Len())
	}

	f.sup.Resume()
	pushTurn(f)
	waitFor(t, 2*time.Second, func() bool { return f.memory.Len() == 1 }, "turn after resume never completed")

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v on cancel, want nil", err)
	}
}
