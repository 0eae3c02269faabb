package index

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
)

var _ Index = (*Memory)(nil)

// Memory is an in-process linear-scan index. The entry set lives behind an
// atomic pointer: Replace builds the new set aside and swaps it in with a
// single store, so readers never block and never observe a partial set.
type Memory struct {
	dimensions int
	entries    atomic.Pointer[[]Entry]
}

// NewMemory returns an empty Memory index expecting embeddings of the given
// dimensionality. A dimensions of 0 means "adopt the dimension of the first
// Replace".
func NewMemory(dimensions int) *Memory {
	m := &Memory{dimensions: dimensions}
	empty := []Entry{}
	m.entries.Store(&empty)
	return m
}

// Replace swaps the full entry set. The slice is copied, so the caller may
// reuse it afterwards.
func (m *Memory) Replace(_ context.Context, entries []Entry) error {
	for i, e := range entries {
		if m.dimensions == 0 && len(e.Embedding) > 0 {
			m.dimensions = len(e.Embedding)
		}
		if len(e.Embedding) != m.dimensions {
			return fmt.Errorf("%w: entry %d has %d dims, index expects %d",
				ErrDimensionMismatch, i, len(e.Embedding), m.dimensions)
		}
	}
	next := make([]Entry, len(entries))
	copy(next, entries)
	m.entries.Store(&next)
	return nil
}

// Search scans every entry and returns the k most similar by cosine
// similarity. Ties keep insertion order. k larger than the entry count is
// clamped; an empty index returns an empty slice.
func (m *Memory) Search(_ context.Context, embedding []float32, k int) ([]Result, error) {
	entries := *m.entries.Load()
	if len(entries) == 0 || k <= 0 {
		return []Result{}, nil
	}
	if m.dimensions != 0 && len(embedding) != m.dimensions {
		return nil, fmt.Errorf("%w: query has %d dims, index expects %d",
			ErrDimensionMismatch, len(embedding), m.dimensions)
	}

	results := make([]Result, len(entries))
	for i, e := range entries {
		results[i] = Result{Entry: e, Score: CosineSimilarity(embedding, e.Embedding)}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// All returns a copy of the current entry set.
func (m *Memory) All(_ context.Context) ([]Entry, error) {
	entries := *m.entries.Load()
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out, nil
}

// Len reports the number of indexed entries.
func (m *Memory) Len(_ context.Context) (int, error) {
	return len(*m.entries.Load()), nil
}

// Close is a no-op for the memory backend.
func (m *Memory) Close() {}
