// Package mock provides a test double for the embeddings.Provider interface.
//
// Provider can return pre-canned vectors, or, with Deterministic set, derive
// a stable vector from the text itself: identical texts map to identical
// vectors and texts sharing words get correlated vectors, which is enough for
// similarity-search tests without a live model.
//
// Example:
//
//	p := &mock.Provider{Deterministic: true, DimensionsValue: 32}
//	vec, _ := p.Embed(ctx, "hello world")
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"

	"github.com/barbourakais/Ai-audio-chatbot/pkg/provider/embeddings"
)

// EmbedCall records a single invocation of Embed.
type EmbedCall struct {
	Ctx  context.Context
	Text string
}

// EmbedBatchCall records a single invocation of EmbedBatch.
type EmbedBatchCall struct {
	Ctx   context.Context
	Texts []string
}

// Provider is a mock implementation of embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Deterministic derives vectors from the input text (bag-of-words hashed
	// into DimensionsValue buckets, L2-normalized). Ignored when EmbedResult
	// or EmbedBatchResult are set on the respective call.
	Deterministic bool

	// EmbedResult is returned by Embed when set.
	EmbedResult []float32

	// EmbedErr, if non-nil, is returned as the error from Embed.
	EmbedErr error

	// EmbedBatchResult is returned by EmbedBatch when set.
	EmbedBatchResult [][]float32

	// EmbedBatchErr, if non-nil, is returned as the error from EmbedBatch.
	EmbedBatchErr error

	// DimensionsValue is returned by Dimensions and sizes deterministic
	// vectors. Zero defaults to 32 in deterministic mode.
	DimensionsValue int

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// --- Call records ---

	EmbedCalls      []EmbedCall
	EmbedBatchCalls []EmbedBatchCall

	DimensionsCallCount int
	ModelIDCallCount    int
}

// Embed records the call and returns EmbedResult, EmbedErr, or a
// deterministic vector.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, EmbedCall{Ctx: ctx, Text: text})
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	if p.EmbedResult != nil {
		return p.EmbedResult, nil
	}
	if p.Deterministic {
		return p.hashVector(text), nil
	}
	return []float32{}, nil
}

// EmbedBatch records the call and returns EmbedBatchResult, EmbedBatchErr, or
// one deterministic vector per text.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]string, len(texts))
	copy(cp, texts)
	p.EmbedBatchCalls = append(p.EmbedBatchCalls, EmbedBatchCall{Ctx: ctx, Texts: cp})
	if p.EmbedBatchErr != nil {
		return nil, p.EmbedBatchErr
	}
	if p.EmbedBatchResult != nil {
		return p.EmbedBatchResult, nil
	}
	result := make([][]float32, len(texts))
	for i, t := range texts {
		if p.Deterministic {
			result[i] = p.hashVector(t)
		}
	}
	return result, nil
}

// Dimensions records the call and returns DimensionsValue.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DimensionsCallCount++
	return p.dims()
}

// ModelID records the call and returns ModelIDValue.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ModelIDCallCount++
	return p.ModelIDValue
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = nil
	p.EmbedBatchCalls = nil
	p.DimensionsCallCount = 0
	p.ModelIDCallCount = 0
}

func (p *Provider) dims() int {
	if p.DimensionsValue > 0 {
		return p.DimensionsValue
	}
	return 32
}

// hashVector buckets lowercase words by FNV hash and L2-normalizes the
// result, so shared vocabulary raises cosine similarity.
func (p *Provider) hashVector(text string) []float32 {
	vec := make([]float32, p.dims())
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(word, ".,!?;:\"'")))
		vec[h.Sum32()%uint32(len(vec))]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}

// Ensure Provider implements embeddings.Provider at compile time.
var _ embeddings.Provider = (*Provider)(nil)
