// Package coqui provides a Coqui TTS-backed synthesizer that connects to
// either a standard Coqui TTS server or a Coqui XTTS v2 server via its REST
// API.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): targets the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is performed via GET /api/tts
//     with URL query parameters.
//
//   - APIModeXTTS: targets the Coqui XTTS v2 API server. Synthesis is
//     performed via POST /tts_to_audio/ with a JSON body.
//
// Long replies are split into sentences and synthesized one request per
// sentence; the resulting PCM is concatenated in order. This keeps individual
// requests fast and bounds server memory on long generations.
//
// Typical usage:
//
//	s, err := coqui.New("http://localhost:5002", coqui.WithLanguage("en"))
//	out, err := s.Synthesize(ctx, "Hello. How can I help?", "")
package coqui

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/barbourakais/Ai-audio-chatbot/pkg/audio"
	"github.com/barbourakais/Ai-audio-chatbot/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Synthesizer)(nil)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second

	apiTTSEndpoint = "/api/tts"
	xttsEndpoint   = "/tts_to_audio/"
)

// APIMode selects which Coqui server API the synthesizer will target.
type APIMode string

const (
	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	// This is the default mode.
	APIModeStandard APIMode = "standard"

	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	// XTTS requires a non-empty voice (speaker wav reference).
	APIModeXTTS APIMode = "xtts"
)

// Option is a functional option for configuring a Synthesizer.
type Option func(*Synthesizer)

// WithLanguage sets the BCP-47 language code sent to the server (e.g. "en",
// "de"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(s *Synthesizer) { s.language = lang }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) {
		if d > 0 {
			s.httpClient.Timeout = d
		}
	}
}

// WithAPIMode sets the server API mode. Use APIModeStandard (default) for the
// standard Coqui TTS Docker image or APIModeXTTS for the XTTS v2 API server.
func WithAPIMode(mode APIMode) Option {
	return func(s *Synthesizer) { s.apiMode = mode }
}

// WithOutputSampleRate resamples synthesized PCM to the given sample rate
// (e.g. 16000 to match the capture format). Zero (default) keeps the model's
// native rate.
func WithOutputSampleRate(rate int) Option {
	return func(s *Synthesizer) { s.outputRate = rate }
}

// Synthesizer implements tts.Synthesizer backed by a Coqui TTS server.
// It is safe for concurrent use.
type Synthesizer struct {
	serverURL  string
	language   string
	apiMode    APIMode
	outputRate int
	httpClient *http.Client
}

// New creates a Synthesizer targeting the Coqui server at serverURL
// (e.g. "http://localhost:5002"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Synthesizer, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	s := &Synthesizer{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// xttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type xttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// Synthesize implements tts.Synthesizer. Text is split into sentences, each
// synthesized in its own request, and the PCM concatenated in order.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voice string) (*tts.Audio, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &tts.SynthesisError{Engine: "coqui", Err: errors.New("text must not be empty")}
	}
	if s.apiMode == APIModeXTTS && voice == "" {
		return nil, &tts.SynthesisError{Engine: "coqui", Err: errors.New("voice must not be empty in XTTS mode")}
	}

	var (
		samples []int16
		rate    int
	)
	for _, sentence := range splitSentences(text) {
		pcm, srcRate, err := s.synthesizeOne(ctx, sentence, voice)
		if err != nil {
			return nil, &tts.SynthesisError{Engine: "coqui", Err: err}
		}
		if s.outputRate > 0 && srcRate != s.outputRate {
			pcm = resampleMono(pcm, srcRate, s.outputRate)
			srcRate = s.outputRate
		}
		if rate == 0 {
			rate = srcRate
		} else if rate != srcRate {
			return nil, &tts.SynthesisError{Engine: "coqui", Err: fmt.Errorf("inconsistent sample rates %d and %d across sentences", rate, srcRate)}
		}
		samples = append(samples, pcm...)
	}

	return &tts.Audio{Samples: samples, SampleRate: rate}, nil
}

func (s *Synthesizer) synthesizeOne(ctx context.Context, sentence, voice string) ([]int16, int, error) {
	var (
		req *http.Request
		err error
	)
	if s.apiMode == APIModeXTTS {
		body, merr := json.Marshal(xttsRequest{Text: sentence, SpeakerWav: voice, Language: s.language})
		if merr != nil {
			return nil, 0, fmt.Errorf("marshal request: %w", merr)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+xttsEndpoint, bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		params := url.Values{}
		params.Set("text", sentence)
		if voice != "" {
			params.Set("speaker_id", voice)
		}
		if s.language != "" {
			params.Set("language_id", s.language)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, s.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("server returned HTTP %d", resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read WAV response: %w", err)
	}

	info, err := parseWAV(wav)
	if err != nil {
		return nil, 0, err
	}
	if info.Channels != 1 {
		return nil, 0, fmt.Errorf("expected mono audio, got %d channels", info.Channels)
	}
	return audio.BytesToSamples(wav[info.DataOffset:]), info.SampleRate, nil
}

// splitSentences breaks text at '.', '!' or '?' followed by whitespace or end
// of string. Abbreviations like "Dr." and numbers like "3.14" followed by a
// non-space character are not treated as boundaries. A trailing fragment
// without terminal punctuation is kept as its own sentence.
func splitSentences(text string) []string {
	var out []string
	rest := text
	for {
		idx := -1
		for i := 0; i < len(rest); i++ {
			c := rest[i]
			if c == '.' || c == '!' || c == '?' {
				if i+1 >= len(rest) || unicode.IsSpace(rune(rest[i+1])) {
					idx = i
					break
				}
			}
		}
		if idx < 0 {
			if frag := strings.TrimSpace(rest); frag != "" {
				out = append(out, frag)
			}
			return out
		}
		if sentence := strings.TrimSpace(rest[:idx+1]); sentence != "" {
			out = append(out, sentence)
		}
		rest = rest[idx+1:]
	}
}

// resampleMono resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation.
func resampleMono(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}
	out := make([]int16, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

// wavInfo holds the format metadata extracted from a RIFF/WAVE header.
type wavInfo struct {
	DataOffset int
	SampleRate int
	Channels   int
}

// parseWAV scans the RIFF/WAVE container and returns the data offset and
// audio format from the "fmt " sub-chunk. The fmt chunk size may vary, so a
// fixed 44-byte offset cannot be assumed.
func parseWAV(wav []byte) (wavInfo, error) {
	if len(wav) < 12 {
		return wavInfo{}, errors.New("WAV response too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return wavInfo{}, errors.New("WAV response missing RIFF/WAVE header")
	}

	var info wavInfo
	foundFmt := false

	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				foundFmt = true
			}
		case "data":
			info.DataOffset = offset + 8
			if !foundFmt {
				info.SampleRate = 22050
				info.Channels = 1
			}
			return info, nil
		}

		// Chunks are word-aligned: pad by 1 if the size is odd.
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return wavInfo{}, errors.New("WAV response missing data chunk")
}
