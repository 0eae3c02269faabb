package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":        {"whisper", "whisper-native"},
	"llm":        {"ollama", "openai", "anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp"},
	"tts":        {"coqui", "coqui-xtts"},
	"embeddings": {"ollama", "openai"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogInfo
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels == 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.FrameMs == 0 {
		cfg.Audio.FrameMs = 100
	}
	if cfg.Audio.RingSeconds == 0 {
		cfg.Audio.RingSeconds = 60
	}
	if cfg.Turn.SpeechThreshold == 0 {
		cfg.Turn.SpeechThreshold = 0.01
	}
	if cfg.Turn.TrailingSilenceMs == 0 {
		cfg.Turn.TrailingSilenceMs = 1500
	}
	if cfg.Turn.MaxUtteranceS == 0 {
		cfg.Turn.MaxUtteranceS = 30
	}
	if cfg.Turn.MaxWaitS == 0 {
		cfg.Turn.MaxWaitS = 30
	}
	if cfg.Retrieval.ChunkSize == 0 {
		cfg.Retrieval.ChunkSize = 512
	}
	if cfg.Retrieval.ChunkOverlap == 0 {
		cfg.Retrieval.ChunkOverlap = 50
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Retrieval.Backend == "" {
		cfg.Retrieval.Backend = IndexMemory
	}
	if cfg.Memory.MaxTurns == 0 {
		cfg.Memory.MaxTurns = 50
	}
	if cfg.Memory.ContextWindowChars == 0 {
		cfg.Memory.ContextWindowChars = 2000
	}
	if cfg.Pipeline.TranscribeTimeoutS == 0 {
		cfg.Pipeline.TranscribeTimeoutS = 30
	}
	if cfg.Pipeline.GenerateTimeoutS == 0 {
		cfg.Pipeline.GenerateTimeoutS = 60
	}
	if cfg.Pipeline.SynthesizeTimeoutS == 0 {
		cfg.Pipeline.SynthesizeTimeoutS = 30
	}
	if cfg.Pipeline.FallbackMessage == "" {
		cfg.Pipeline.FallbackMessage = "I'm sorry, I couldn't process that. Could you try again?"
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Logging.Level != "" && !cfg.Logging.Level.IsValid() {
		errs = append(errs, fmt.Errorf("logging.level %q is invalid; valid values: debug, info, warn, error", cfg.Logging.Level))
	}

	if cfg.Audio.SampleRate < 8000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is too low; 16000 is expected by whisper models", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels != 1 {
		errs = append(errs, fmt.Errorf("audio.channels %d is unsupported; only mono capture is implemented", cfg.Audio.Channels))
	}
	if cfg.Audio.FrameMs < 10 || cfg.Audio.FrameMs > 1000 {
		errs = append(errs, fmt.Errorf("audio.frame_ms %d is out of range [10, 1000]", cfg.Audio.FrameMs))
	}

	if cfg.Turn.SpeechThreshold < 0 || cfg.Turn.SpeechThreshold > 1 {
		errs = append(errs, fmt.Errorf("turn.speech_threshold %.3f is out of range [0, 1]", cfg.Turn.SpeechThreshold))
	}
	if cfg.Turn.TrailingSilenceMs >= cfg.Turn.MaxUtteranceS*1000 {
		errs = append(errs, fmt.Errorf("turn.trailing_silence_ms %d must be shorter than turn.max_utterance_s", cfg.Turn.TrailingSilenceMs))
	}

	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("no TTS provider configured; replies will be text-only")
	}

	if cfg.Retrieval.ChunkOverlap >= cfg.Retrieval.ChunkSize {
		errs = append(errs, fmt.Errorf("retrieval.chunk_overlap %d must be smaller than retrieval.chunk_size %d", cfg.Retrieval.ChunkOverlap, cfg.Retrieval.ChunkSize))
	}
	if !cfg.Retrieval.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("retrieval.backend %q is invalid; valid values: memory, postgres", cfg.Retrieval.Backend))
	}
	if cfg.Retrieval.Backend == IndexPostgres {
		if cfg.Retrieval.PostgresDSN == "" {
			errs = append(errs, errors.New("retrieval.postgres_dsn is required for the postgres backend"))
		}
		if cfg.Retrieval.EmbeddingDimensions <= 0 {
			errs = append(errs, errors.New("retrieval.embedding_dimensions is required for the postgres backend"))
		}
	}
	if cfg.Retrieval.KnowledgePath != "" && cfg.Providers.Embeddings.Name == "" {
		errs = append(errs, errors.New("retrieval.knowledge_path is set but providers.embeddings is not configured"))
	}
	if cfg.Retrieval.KnowledgePath == "" {
		slog.Warn("retrieval.knowledge_path is empty; replies will not be grounded in a knowledge base")
	}

	if cfg.Memory.MaxTurns < 1 {
		errs = append(errs, fmt.Errorf("memory.max_turns %d must be at least 1", cfg.Memory.MaxTurns))
	}
	if cfg.Memory.ContextWindowChars < 0 {
		errs = append(errs, fmt.Errorf("memory.context_window_chars %d must not be negative", cfg.Memory.ContextWindowChars))
	}

	if cfg.Pipeline.MinConfidence < 0 || cfg.Pipeline.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("pipeline.min_confidence %.3f is out of range [0, 1]", cfg.Pipeline.MinConfidence))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
