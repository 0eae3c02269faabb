// Package index stores embedded knowledge chunks and answers nearest-neighbour
// queries over them. Two backends exist: an in-process memory index and a
// PostgreSQL/pgvector index in the postgres subpackage.
package index

import (
	"context"
	"errors"
	"math"

	"github.com/barbourakais/Ai-audio-chatbot/internal/knowledge"
)

// ErrDimensionMismatch is returned when a query or replacement embedding does
// not match the dimensionality the index was built with.
var ErrDimensionMismatch = errors.New("index: embedding dimension mismatch")

// Entry pairs a knowledge chunk with its embedding vector.
type Entry struct {
	Chunk     knowledge.Chunk `json:"chunk"`
	Embedding []float32       `json:"embedding"`
}

// Result is one query hit. Score is cosine similarity in [-1, 1], higher is
// more similar.
type Result struct {
	Entry Entry
	Score float64
}

// Index answers similarity queries over a set of embedded chunks.
//
// Replace swaps the entire contents atomically: queries issued concurrently
// with a Replace see either the old set or the new set, never a mixture, and
// a failed Replace leaves the previous contents intact.
type Index interface {
	Replace(ctx context.Context, entries []Entry) error
	Search(ctx context.Context, embedding []float32, k int) ([]Result, error)

	// All returns every entry currently indexed. Rebuilds use the returned
	// chunk hashes to skip re-embedding unchanged text.
	All(ctx context.Context) ([]Entry, error)

	// Len reports the number of indexed chunks.
	Len(ctx context.Context) (int, error)

	Close()
}

// CosineSimilarity computes the cosine of the angle between a and b, clamped
// to [-1, 1]. A zero vector on either side yields 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(-1, math.Min(1, sim))
}
