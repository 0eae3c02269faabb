// Command audiochat is the main entry point for the voice chatbot: it wires
// audio capture, turn detection, the STT → retrieval → LLM → TTS pipeline,
// and the operator console into one session.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/barbourakais/Ai-audio-chatbot/internal/command"
	"github.com/barbourakais/Ai-audio-chatbot/internal/config"
	"github.com/barbourakais/Ai-audio-chatbot/internal/convo"
	"github.com/barbourakais/Ai-audio-chatbot/internal/index"
	pgindex "github.com/barbourakais/Ai-audio-chatbot/internal/index/postgres"
	"github.com/barbourakais/Ai-audio-chatbot/internal/knowledge"
	"github.com/barbourakais/Ai-audio-chatbot/internal/observe"
	"github.com/barbourakais/Ai-audio-chatbot/internal/orchestrator"
	"github.com/barbourakais/Ai-audio-chatbot/internal/retrieval"
	"github.com/barbourakais/Ai-audio-chatbot/internal/supervisor"
	"github.com/barbourakais/Ai-audio-chatbot/internal/voicecmd"
	"github.com/barbourakais/Ai-audio-chatbot/pkg/audio"
	"github.com/barbourakais/Ai-audio-chatbot/pkg/provider/embeddings"
	ollamaembed "github.com/barbourakais/Ai-audio-chatbot/pkg/provider/embeddings/ollama"
	oaembed "github.com/barbourakais/Ai-audio-chatbot/pkg/provider/embeddings/openai"
	"github.com/barbourakais/Ai-audio-chatbot/pkg/provider/llm"
	"github.com/barbourakais/Ai-audio-chatbot/pkg/provider/llm/anyllm"
	ollamallm "github.com/barbourakais/Ai-audio-chatbot/pkg/provider/llm/ollama"
	"github.com/barbourakais/Ai-audio-chatbot/pkg/provider/stt"
	"github.com/barbourakais/Ai-audio-chatbot/pkg/provider/stt/whisper"
	"github.com/barbourakais/Ai-audio-chatbot/pkg/provider/tts"
	"github.com/barbourakais/Ai-audio-chatbot/pkg/provider/tts/coqui"
	"github.com/barbourakais/Ai-audio-chatbot/pkg/vad"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	audioIn := flag.String("audio-in", "", "raw S16LE PCM input (file or FIFO, \"-\" for stdin)")
	audioOut := flag.String("audio-out", "", "raw S16LE PCM output (file or FIFO, \"-\" for stdout, empty discards)")
	realtime := flag.Bool("realtime", false, "pace file input at wall-clock rate")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "audiochat: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "audiochat: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Logging.Level)
	slog.SetDefault(logger)

	slog.Info("audiochat starting",
		"config", *configPath,
		"log_level", cfg.Logging.Level,
		"sample_rate", cfg.Audio.SampleRate,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// SessionCtx ends when a shutdown is requested from inside the session
	// (the quit console command or a spoken shutdown phrase).
	sessionCtx, quit := context.WithCancel(ctx)
	defer quit()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "audiochat"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	transcriber, err := buildSTT(cfg.Providers.STT)
	if err != nil {
		slog.Error("failed to create stt provider", "name", cfg.Providers.STT.Name, "err", err)
		return 1
	}
	generator, err := buildLLM(cfg.Providers.LLM)
	if err != nil {
		slog.Error("failed to create llm provider", "name", cfg.Providers.LLM.Name, "err", err)
		return 1
	}
	synthesizer, err := buildTTS(cfg.Providers.TTS)
	if err != nil {
		slog.Error("failed to create tts provider", "name", cfg.Providers.TTS.Name, "err", err)
		return 1
	}
	embedder, err := buildEmbeddings(cfg.Providers.Embeddings)
	if err != nil {
		slog.Error("failed to create embeddings provider", "name", cfg.Providers.Embeddings.Name, "err", err)
		return 1
	}

	// ── Knowledge retrieval ───────────────────────────────────────────────────
	var kb *retrieval.Service
	if embedder != nil && cfg.Retrieval.KnowledgePath != "" {
		kb, err = buildRetrieval(ctx, cfg.Retrieval, embedder, metrics, logger)
		if err != nil {
			slog.Error("failed to build knowledge index", "err", err)
			return 1
		}
	} else {
		slog.Info("knowledge retrieval disabled",
			"embeddings_configured", embedder != nil,
			"knowledge_path", cfg.Retrieval.KnowledgePath,
		)
	}

	// ── Conversation memory ───────────────────────────────────────────────────
	memOpts := []convo.Option{convo.WithMetrics(metrics)}
	if cfg.Memory.MaxTurns > 0 {
		memOpts = append(memOpts, convo.WithMaxTurns(cfg.Memory.MaxTurns))
	}
	if cfg.Memory.PersistPath != "" {
		memOpts = append(memOpts, convo.WithPersistPath(cfg.Memory.PersistPath))
	}
	mem, err := convo.New(memOpts...)
	if err != nil {
		slog.Error("failed to load conversation memory", "err", err)
		return 1
	}

	// ── Turn detection ────────────────────────────────────────────────────────
	detector, err := vad.New(vad.Config{
		SampleRate:      cfg.Audio.SampleRate,
		SpeechThreshold: cfg.Turn.SpeechThreshold,
		Adaptive:        cfg.Turn.Adaptive,
		TrailingSilence: time.Duration(cfg.Turn.TrailingSilenceMs) * time.Millisecond,
		MaxUtterance:    time.Duration(cfg.Turn.MaxUtteranceS) * time.Second,
		MaxWait:         time.Duration(cfg.Turn.MaxWaitS) * time.Second,
	})
	if err != nil {
		slog.Error("failed to create turn detector", "err", err)
		return 1
	}

	// ── Audio platform ────────────────────────────────────────────────────────
	platform, consoleInput, err := buildPlatform(cfg.Audio, *audioIn, *audioOut, *realtime)
	if err != nil {
		slog.Error("failed to open audio streams", "err", err)
		return 1
	}

	format := audio.Format{SampleRate: cfg.Audio.SampleRate, Channels: cfg.Audio.Channels}
	playback, err := platform.OpenPlayback(sessionCtx, format)
	if err != nil {
		slog.Error("failed to open playback", "err", err)
		return 1
	}
	defer playback.Close()

	// ── Pipeline ──────────────────────────────────────────────────────────────
	// The spoken-command handler needs the supervisor, which is built after
	// the orchestrator; the closure resolves it at call time.
	var sup *supervisor.Supervisor

	var filter *voicecmd.Filter
	var onCommand orchestrator.CommandHandler
	if cfg.Pipeline.VoiceCommands {
		filter = voicecmd.New()
		onCommand = func(ctx context.Context, match voicecmd.Match) (string, error) {
			switch match.Action {
			case voicecmd.ActionPause:
				sup.Pause()
				return "Pausing. Say resume listening when you want me back.", nil
			case voicecmd.ActionResume:
				sup.Resume()
				return "Listening again.", nil
			case voicecmd.ActionClearMemory:
				if err := mem.Clear(ctx); err != nil {
					return "", err
				}
				return "I have cleared our conversation.", nil
			case voicecmd.ActionRebuildIndex:
				if kb == nil {
					return "There is no knowledge base to rebuild.", nil
				}
				stats, err := kb.RebuildFromFile(ctx, cfg.Retrieval.KnowledgePath)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Knowledge base rebuilt with %d sections.", stats.Chunks), nil
			case voicecmd.ActionShutdown:
				// Let the confirmation play before the session tears down.
				time.AfterFunc(2*time.Second, quit)
				return "Goodbye.", nil
			default:
				return "", fmt.Errorf("audiochat: unhandled spoken command %q", match.Action)
			}
		}
	}

	pipeline, err := orchestrator.New(orchestrator.Config{
		Transcriber:        transcriber,
		Generator:          generator,
		Synthesizer:        synthesizer,
		Playback:           playback,
		Retrieval:          kb,
		Memory:             mem,
		Commands:           filter,
		OnCommand:          onCommand,
		SystemPrompt:       cfg.Pipeline.SystemPrompt,
		Temperature:        cfg.Pipeline.Temperature,
		MaxTokens:          cfg.Pipeline.MaxTokens,
		TopK:               cfg.Retrieval.TopK,
		ContextWindowChars: cfg.Memory.ContextWindowChars,
		MinConfidence:      cfg.Pipeline.MinConfidence,
		Voice:              cfg.Providers.TTS.Voice,
		FallbackMessage:    cfg.Pipeline.FallbackMessage,
		TranscribeTimeout:  time.Duration(cfg.Pipeline.TranscribeTimeoutS) * time.Second,
		GenerateTimeout:    time.Duration(cfg.Pipeline.GenerateTimeoutS) * time.Second,
		SynthesizeTimeout:  time.Duration(cfg.Pipeline.SynthesizeTimeoutS) * time.Second,
		Logger:             logger,
		Metrics:            metrics,
	})
	if err != nil {
		slog.Error("failed to build pipeline", "err", err)
		return 1
	}

	sup, err = supervisor.New(supervisor.Config{
		Platform:     platform,
		Orchestrator: pipeline,
		Detector:     detector,
		Format:       format,
		RingSeconds:  cfg.Audio.RingSeconds,
		Logger:       logger,
		Metrics:      metrics,
	})
	if err != nil {
		slog.Error("failed to build supervisor", "err", err)
		return 1
	}

	printStartupSummary(cfg, kb != nil)
	slog.Info("session ready — press Ctrl+C to shut down")

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(sessionCtx)

	g.Go(func() error {
		return sup.Run(gctx)
	})

	if consoleInput != nil {
		console := command.New(consoleInput, os.Stdout, logger, command.Deps{
			Listener:      sup,
			Pipeline:      pipeline,
			Retrieval:     kb,
			Memory:        mem,
			KnowledgePath: cfg.Retrieval.KnowledgePath,
			TopK:          cfg.Retrieval.TopK,
			Quit:          quit,
		})
		g.Go(func() error {
			return console.Run(gctx)
		})
	}

	if cfg.Metrics.ListenAddr != "" {
		g.Go(func() error {
			err := observe.ServeMetrics(gctx, cfg.Metrics.ListenAddr)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	}

	err = g.Wait()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("stopping…")
	if cfg.Memory.PersistPath != "" {
		if exportErr := mem.ExportFile(cfg.Memory.PersistPath); exportErr != nil {
			slog.Warn("conversation export error", "err", exportErr)
		}
	}
	if kb != nil {
		kb.Close()
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

func buildSTT(entry config.ProviderEntry) (stt.Transcriber, error) {
	switch entry.Name {
	case "":
		return nil, errors.New("audiochat: stt provider is required")
	case "whisper":
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		return whisper.New(entry.BaseURL, opts...)
	case "whisper-native":
		return whisper.NewNative(entry.Model)
	default:
		return nil, fmt.Errorf("audiochat: unknown stt provider %q; supported: whisper, whisper-native", entry.Name)
	}
}

func buildLLM(entry config.ProviderEntry) (llm.Generator, error) {
	switch entry.Name {
	case "":
		return nil, errors.New("audiochat: llm provider is required")
	case "ollama":
		// Native Ollama client; talks to the local /api/generate endpoint.
		return ollamallm.New(entry.BaseURL, entry.Model)
	case "openai", "anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp":
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(entry.Name, entry.Model, opts...)
	default:
		return nil, fmt.Errorf("audiochat: unknown llm provider %q; supported: ollama, openai, anthropic, gemini, deepseek, mistral, groq, llamacpp", entry.Name)
	}
}

func buildTTS(entry config.ProviderEntry) (tts.Synthesizer, error) {
	switch entry.Name {
	case "":
		// Optional: without a synthesizer replies are text-only.
		return nil, nil
	case "coqui":
		return coqui.New(entry.BaseURL)
	case "coqui-xtts":
		return coqui.New(entry.BaseURL, coqui.WithAPIMode(coqui.APIModeXTTS))
	default:
		return nil, fmt.Errorf("audiochat: unknown tts provider %q; supported: coqui, coqui-xtts", entry.Name)
	}
}

func buildEmbeddings(entry config.ProviderEntry) (embeddings.Provider, error) {
	switch entry.Name {
	case "":
		// Optional: without embeddings the knowledge base is disabled.
		return nil, nil
	case "ollama":
		return ollamaembed.New(entry.BaseURL, entry.Model)
	case "openai":
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	default:
		return nil, fmt.Errorf("audiochat: unknown embeddings provider %q; supported: ollama, openai", entry.Name)
	}
}

// buildRetrieval constructs the vector index and retrieval service, restores
// any on-disk snapshot, and embeds the knowledge document. Chunks whose text
// is unchanged since the snapshot are not re-embedded.
func buildRetrieval(ctx context.Context, cfg config.RetrievalConfig, embedder embeddings.Provider, metrics *observe.Metrics, logger *slog.Logger) (*retrieval.Service, error) {
	chunker, err := knowledge.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	var idx index.Index
	opts := []retrieval.Option{retrieval.WithLogger(logger), retrieval.WithMetrics(metrics)}
	switch cfg.Backend {
	case config.IndexPostgres:
		idx, err = pgindex.New(ctx, cfg.PostgresDSN, cfg.EmbeddingDimensions)
		if err != nil {
			return nil, fmt.Errorf("connect vector store: %w", err)
		}
	default:
		idx = index.NewMemory(cfg.EmbeddingDimensions)
		if cfg.SnapshotPath != "" {
			opts = append(opts, retrieval.WithSnapshotPath(cfg.SnapshotPath))
		}
	}

	svc := retrieval.New(embedder, idx, chunker, opts...)

	restored, err := svc.Restore(ctx)
	if err != nil {
		logger.Warn("index snapshot restore failed, re-embedding", "err", err)
	} else if restored {
		logger.Info("index snapshot restored", "path", cfg.SnapshotPath)
	}

	stats, err := svc.RebuildFromFile(ctx, cfg.KnowledgePath)
	if err != nil {
		return nil, fmt.Errorf("index knowledge base: %w", err)
	}
	logger.Info("knowledge base indexed",
		"chunks", stats.Chunks,
		"embedded", stats.Embedded,
		"reused", stats.Reused,
		"took", stats.Took,
	)
	return svc, nil
}

// ── Audio wiring ──────────────────────────────────────────────────────────────

// buildPlatform opens the PCM input and output streams named on the command
// line. The returned reader is the console's input, which is nil when stdin
// carries audio instead of operator commands.
func buildPlatform(cfg config.AudioConfig, in, out string, realtime bool) (audio.Platform, io.Reader, error) {
	var (
		input        io.Reader
		output       io.Writer
		consoleInput io.Reader = os.Stdin
	)

	switch in {
	case "":
		return nil, nil, errors.New("audiochat: -audio-in is required (a raw PCM file, a FIFO, or \"-\" for stdin)")
	case "-":
		input = os.Stdin
		consoleInput = nil
	default:
		f, err := os.Open(in)
		if err != nil {
			return nil, nil, fmt.Errorf("audiochat: open audio input: %w", err)
		}
		input = f
	}

	switch out {
	case "":
		// Playback is discarded.
	case "-":
		output = os.Stdout
	default:
		f, err := os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("audiochat: open audio output: %w", err)
		}
		output = f
	}

	frameSize := cfg.SampleRate * cfg.Channels * cfg.FrameMs / 1000
	return &audio.PipePlatform{
		Input:     input,
		Output:    output,
		FrameSize: frameSize,
		Realtime:  realtime,
	}, consoleInput, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, retrievalEnabled bool) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        audiochat — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	if retrievalEnabled {
		fmt.Printf("║  Knowledge base  : %-19s ║\n", string(cfg.Retrieval.Backend))
	} else {
		fmt.Printf("║  Knowledge base  : %-19s ║\n", "(disabled)")
	}
	if cfg.Pipeline.VoiceCommands {
		fmt.Printf("║  Voice commands  : %-19s ║\n", "enabled")
	} else {
		fmt.Printf("║  Voice commands  : %-19s ║\n", "(disabled)")
	}
	if cfg.Metrics.ListenAddr != "" {
		fmt.Printf("║  Metrics         : %-19s ║\n", cfg.Metrics.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
