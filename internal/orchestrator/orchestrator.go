// Package orchestrator runs the reply pipeline for completed utterances:
// transcription, command filtering, knowledge retrieval, generation, and
// synthesis, with one state transition per stage.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/barbourakais/Ai-audio-chatbot/internal/convo"
	"github.com/barbourakais/Ai-audio-chatbot/internal/observe"
	"github.com/barbourakais/Ai-audio-chatbot/internal/resilience"
	"github.com/barbourakais/Ai-audio-chatbot/internal/retrieval"
	"github.com/barbourakais/Ai-audio-chatbot/internal/voicecmd"
	"github.com/barbourakais/Ai-audio-chatbot/pkg/audio"
	"github.com/barbourakais/Ai-audio-chatbot/pkg/provider/llm"
	"github.com/barbourakais/Ai-audio-chatbot/pkg/provider/stt"
	"github.com/barbourakais/Ai-audio-chatbot/pkg/provider/tts"
)

// State is the pipeline position of the orchestrator.
type State int32

const (
	StateIdle State = iota
	StateListening
	StateSpeechDetected
	StateTranscribing
	StateRetrieving
	StateGenerating
	StateSpeaking
	StateError
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateSpeechDetected:
		return "speech_detected"
	case StateTranscribing:
		return "transcribing"
	case StateRetrieving:
		return "retrieving"
	case StateGenerating:
		return "generating"
	case StateSpeaking:
		return "speaking"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Turn outcomes recorded on the turns counter.
const (
	OutcomeCompleted = "completed"
	OutcomeAbandoned = "abandoned"
	OutcomeCommand   = "command"
	OutcomeFailed    = "failed"
)

// TurnResult summarises one processed utterance.
type TurnResult struct {
	// Transcript is the recognised user text. Empty when no speech was
	// recognised.
	Transcript string

	// Reply is the assistant text. Empty for abandoned turns and commands.
	Reply string

	// Command is set when the transcript matched a spoken command; the rest
	// of the pipeline was skipped.
	Command *voicecmd.Match

	// Spoke reports whether the reply was synthesised and played.
	Spoke bool

	Outcome string
}

// CommandHandler executes a recognised spoken command. The returned text, if
// any, is spoken as confirmation.
type CommandHandler func(ctx context.Context, match voicecmd.Match) (string, error)

// Config holds the orchestrator's dependencies and tuning.
//
// Transcriber, Generator, and Memory are required. Synthesizer, Playback,
// Retrieval, and Commands are optional: without a synthesizer replies are
// text-only, without retrieval prompts carry no knowledge context, and
// without a command filter every transcript goes to the generator.
type Config struct {
	Transcriber stt.Transcriber
	Generator   llm.Generator
	Synthesizer tts.Synthesizer
	Playback    audio.PlaybackStream
	Retrieval   *retrieval.Service
	Memory      *convo.Memory
	Commands    *voicecmd.Filter

	// OnCommand runs matched spoken commands. Ignored when Commands is nil.
	OnCommand CommandHandler

	SystemPrompt string
	Temperature  float64
	MaxTokens    int

	// TopK is how many knowledge chunks are retrieved per turn. Default 3.
	TopK int

	// ContextWindowChars bounds both the conversation window and the
	// knowledge block in the prompt. Default convo.DefaultWindowChars.
	ContextWindowChars int

	// MinConfidence drops transcripts whose reported confidence falls below
	// it, abandoning the turn without a response. Zero disables the gate;
	// transcribers that report no confidence (0) are never gated.
	MinConfidence float64

	// Voice is passed to the synthesizer.
	Voice string

	// FallbackMessage is spoken when generation fails.
	FallbackMessage string

	TranscribeTimeout time.Duration
	GenerateTimeout   time.Duration
	SynthesizeTimeout time.Duration

	Logger  *slog.Logger
	Metrics *observe.Metrics
}

const (
	defaultTopK             = 3
	defaultStageTimeout     = 30 * time.Second
	defaultGenerateAttempts = 2
)

// Orchestrator consumes completed utterances and produces spoken replies.
// HandleUtterance is serialised internally: the turn detector produces at
// most one utterance at a time, and a second caller would interleave
// conversation state.
type Orchestrator struct {
	cfg     Config
	breaker *resilience.Breaker
	log     *slog.Logger
	metrics *observe.Metrics

	mu    sync.Mutex
	state State
}

// New validates cfg and returns an Orchestrator in StateIdle.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Transcriber == nil {
		return nil, errors.New("orchestrator: Transcriber must not be nil")
	}
	if cfg.Generator == nil {
		return nil, errors.New("orchestrator: Generator must not be nil")
	}
	if cfg.Memory == nil {
		return nil, errors.New("orchestrator: Memory must not be nil")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.ContextWindowChars <= 0 {
		cfg.ContextWindowChars = convo.DefaultWindowChars
	}
	if cfg.TranscribeTimeout <= 0 {
		cfg.TranscribeTimeout = defaultStageTimeout
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = defaultStageTimeout
	}
	if cfg.SynthesizeTimeout <= 0 {
		cfg.SynthesizeTimeout = defaultStageTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	return &Orchestrator{
		cfg:     cfg,
		breaker: resilience.NewBreaker(resilience.BreakerConfig{}),
		log:     cfg.Logger,
		metrics: cfg.Metrics,
	}, nil
}

// State returns the current pipeline state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// SetListening marks the orchestrator ready for the next utterance. The
// supervisor calls this when capture starts and again after recovering from
// StateError.
func (o *Orchestrator) SetListening() {
	o.setState(StateListening)
}

// SetSpeechDetected marks speech onset inside the current capture window.
// It only applies while listening: once an utterance enters the pipeline the
// stage states take over, and late audio must not clobber them.
func (o *Orchestrator) SetSpeechDetected() {
	o.mu.Lock()
	applied := o.state == StateListening
	if applied {
		o.state = StateSpeechDetected
	}
	o.mu.Unlock()
	if applied {
		o.log.Debug("pipeline state", "from", StateListening.String(), "to", StateSpeechDetected.String())
	}
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	prev := o.state
	o.state = s
	o.mu.Unlock()
	if prev != s {
		o.log.Debug("pipeline state", "from", prev.String(), "to", s.String())
	}
}

// HandleUtterance runs one full turn. It returns the turn result and a
// non-nil error only when the turn failed; on failure the orchestrator stays
// in StateError until SetListening is called. Abandoned turns (no recognised
// speech) and spoken commands return a nil error.
func (o *Orchestrator) HandleUtterance(ctx context.Context, u *audio.Utterance) (*TurnResult, error) {
	turnStart := time.Now()

	transcript, err := o.transcribe(ctx, u)
	if err != nil {
		o.fail(ctx, "transcription failed", err)
		return nil, err
	}
	if transcript == "" {
		o.log.Debug("no speech recognised, turn abandoned")
		o.metrics.RecordTurn(ctx, OutcomeAbandoned)
		o.setState(StateListening)
		return &TurnResult{Outcome: OutcomeAbandoned}, nil
	}
	o.log.Info("user said", "text", transcript)

	if o.cfg.Commands != nil {
		if match, ok := o.cfg.Commands.Check(transcript); ok {
			return o.runCommand(ctx, transcript, match)
		}
	}

	knowledgeCtx := o.retrieve(ctx, transcript)

	reply, err := o.generate(ctx, transcript, knowledgeCtx)
	if err != nil {
		// Speak the fallback so the user is not left hanging. The user turn
		// is still remembered; the assistant side stays empty so the next
		// prompt window carries what was heard without inventing a reply.
		o.speak(ctx, o.cfg.FallbackMessage)
		if appendErr := o.cfg.Memory.Append(ctx, transcript, ""); appendErr != nil {
			o.log.Warn("conversation persist failed", "error", appendErr)
		}
		o.fail(ctx, "generation failed", err)
		return nil, err
	}
	o.log.Info("assistant replied", "text", reply)

	spoke := o.speak(ctx, reply)

	if err := o.cfg.Memory.Append(ctx, transcript, reply); err != nil {
		o.log.Warn("conversation persist failed", "error", err)
	}

	o.metrics.RecordTurn(ctx, OutcomeCompleted)
	o.metrics.TurnDuration.Record(ctx, time.Since(turnStart).Seconds())
	o.setState(StateListening)
	return &TurnResult{
		Transcript: transcript,
		Reply:      reply,
		Spoke:      spoke,
		Outcome:    OutcomeCompleted,
	}, nil
}

func (o *Orchestrator) fail(ctx context.Context, msg string, err error) {
	o.log.Error(msg, "error", err)
	o.metrics.RecordTurn(ctx, OutcomeFailed)
	o.setState(StateError)
}

func (o *Orchestrator) transcribe(ctx context.Context, u *audio.Utterance) (string, error) {
	o.setState(StateTranscribing)
	sctx, cancel := context.WithTimeout(ctx, o.cfg.TranscribeTimeout)
	defer cancel()

	start := time.Now()
	var result stt.Result
	err := resilience.Retry(sctx, resilience.RetryConfig{Attempts: 2}, func(ctx context.Context) error {
		var err error
		result, err = o.cfg.Transcriber.Transcribe(ctx, u)
		if errors.Is(err, stt.ErrEmptyUtterance) {
			return resilience.Permanent(err)
		}
		return err
	})
	o.metrics.TranscribeDuration.Record(ctx, time.Since(start).Seconds())

	model := o.cfg.Transcriber.ModelID()
	if err != nil {
		o.metrics.RecordProviderRequest(ctx, model, "stt", "error")
		o.metrics.RecordProviderError(ctx, model, "stt")
		return "", fmt.Errorf("orchestrator: transcribe: %w", err)
	}
	o.metrics.RecordProviderRequest(ctx, model, "stt", "ok")

	text := strings.TrimSpace(result.Text)
	if text != "" && result.Confidence > 0 && result.Confidence < o.cfg.MinConfidence {
		o.log.Debug("transcript below confidence threshold, dropping",
			"confidence", result.Confidence, "threshold", o.cfg.MinConfidence)
		return "", nil
	}
	return text, nil
}

func (o *Orchestrator) runCommand(ctx context.Context, transcript string, match voicecmd.Match) (*TurnResult, error) {
	o.log.Info("spoken command", "action", string(match.Action),
		"phrase", match.Phrase, "confidence", match.Confidence)

	var confirmation string
	if o.cfg.OnCommand != nil {
		var err error
		confirmation, err = o.cfg.OnCommand(ctx, match)
		if err != nil {
			o.log.Warn("spoken command failed", "action", string(match.Action), "error", err)
		}
	}
	if confirmation != "" {
		o.speak(ctx, confirmation)
	}

	o.metrics.RecordTurn(ctx, OutcomeCommand)
	o.setState(StateListening)
	return &TurnResult{
		Transcript: transcript,
		Command:    &match,
		Outcome:    OutcomeCommand,
	}, nil
}

// retrieve fetches knowledge context for the transcript. Retrieval failure
// degrades to an empty context, never to a failed turn.
func (o *Orchestrator) retrieve(ctx context.Context, transcript string) string {
	if o.cfg.Retrieval == nil {
		return ""
	}
	o.setState(StateRetrieving)

	results, err := o.cfg.Retrieval.Query(ctx, transcript, o.cfg.TopK)
	if err != nil {
		o.log.Warn("knowledge retrieval failed, continuing without context", "error", err)
		return ""
	}
	return retrieval.FormatContext(results, o.cfg.ContextWindowChars)
}

func (o *Orchestrator) generate(ctx context.Context, transcript, knowledgeCtx string) (string, error) {
	o.setState(StateGenerating)
	sctx, cancel := context.WithTimeout(ctx, o.cfg.GenerateTimeout)
	defer cancel()

	req := llm.Request{
		SystemPrompt: o.composeSystemPrompt(knowledgeCtx),
		Prompt:       o.composePrompt(transcript),
		Temperature:  o.cfg.Temperature,
		MaxTokens:    o.cfg.MaxTokens,
	}

	start := time.Now()
	var resp *llm.Response
	err := o.breaker.Execute(func() error {
		return resilience.Retry(sctx, resilience.RetryConfig{Attempts: defaultGenerateAttempts}, func(ctx context.Context) error {
			var err error
			resp, err = o.cfg.Generator.Generate(ctx, req)
			return err
		})
	})
	o.metrics.GenerateDuration.Record(ctx, time.Since(start).Seconds())

	model := o.cfg.Generator.ModelID()
	if err != nil {
		o.metrics.RecordProviderRequest(ctx, model, "llm", "error")
		o.metrics.RecordProviderError(ctx, model, "llm")
		return "", fmt.Errorf("orchestrator: generate: %w", err)
	}
	o.metrics.RecordProviderRequest(ctx, model, "llm", "ok")
	return cleanReply(resp.Text), nil
}

// cleanReply trims the generated text and strips an echoed role prefix; the
// completion-style prompt ends in "Assistant:" and some models repeat it.
func cleanReply(text string) string {
	text = strings.TrimSpace(text)
	for _, prefix := range []string{"Assistant:", "assistant:", "AI:"} {
		if rest, ok := strings.CutPrefix(text, prefix); ok {
			return strings.TrimSpace(rest)
		}
	}
	return text
}

// composeSystemPrompt appends the retrieved knowledge block to the configured
// system prompt.
func (o *Orchestrator) composeSystemPrompt(knowledgeCtx string) string {
	if knowledgeCtx == "" {
		return o.cfg.SystemPrompt
	}
	var b strings.Builder
	b.WriteString(o.cfg.SystemPrompt)
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	b.WriteString("Use the following information when it is relevant:\n")
	b.WriteString(knowledgeCtx)
	return b.String()
}

// composePrompt renders the recent conversation followed by the new user
// turn.
func (o *Orchestrator) composePrompt(transcript string) string {
	var b strings.Builder
	if window := o.cfg.Memory.Window(o.cfg.ContextWindowChars); window != "" {
		b.WriteString(window)
		b.WriteString("\n")
	}
	b.WriteString("User: ")
	b.WriteString(transcript)
	b.WriteString("\nAssistant:")
	return b.String()
}

// speak synthesises and plays text. Failures are logged and reported as
// false; a lost reply audio never fails the turn.
func (o *Orchestrator) speak(ctx context.Context, text string) bool {
	if o.cfg.Synthesizer == nil || text == "" {
		return false
	}
	o.setState(StateSpeaking)
	sctx, cancel := context.WithTimeout(ctx, o.cfg.SynthesizeTimeout)
	defer cancel()

	start := time.Now()
	reply, err := o.cfg.Synthesizer.Synthesize(sctx, text, o.cfg.Voice)
	o.metrics.SynthesizeDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		o.metrics.RecordProviderError(ctx, "tts", "tts")
		o.log.Warn("synthesis failed, reply stays text-only", "error", err)
		return false
	}

	if o.cfg.Playback == nil {
		return false
	}
	if err := o.cfg.Playback.Play(sctx, reply.Samples); err != nil {
		o.log.Warn("playback failed", "error", err)
		return false
	}
	return true
}
