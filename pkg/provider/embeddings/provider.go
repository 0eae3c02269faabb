// Package embeddings defines the Provider interface for vector embedding
// backends.
//
// An embeddings provider wraps a service that maps text strings to dense
// float32 vectors (e.g., an Ollama embedding model or the OpenAI embeddings
// API). These vectors are used by the retrieval layer for similarity search
// over the knowledge base.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// All embedding vectors returned by a single Provider instance must share the
// same dimensionality (returned by Dimensions). Callers must not mix vectors
// from different Provider instances in the same similarity computation unless
// they have verified that both use the same model and space.
//
// Embeddings must be deterministic: identical input text yields an identical
// vector for the lifetime of the Provider. The retrieval layer relies on this
// to skip re-embedding unchanged knowledge chunks.
type Provider interface {
	// Embed computes the embedding vector for a single text string. Returns a
	// float32 slice of length Dimensions() or an error if the request fails
	// or ctx is cancelled.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes embedding vectors for a slice of text strings in a
	// single provider call. The returned slice has the same length as texts
	// and the i-th element corresponds to texts[i].
	//
	// Partial results are not returned — on error the entire slice is nil.
	// This all-or-nothing contract is what makes an atomic index rebuild
	// possible: a failed batch leaves the previous index untouched.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every embedding vector produced
	// by this provider. Constant for the lifetime of the Provider instance.
	Dimensions() int

	// ModelID returns the provider-specific model identifier used for
	// embeddings (e.g., "nomic-embed-text", "text-embedding-3-small").
	ModelID() string
}
