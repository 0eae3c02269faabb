// Package retrieval glues the knowledge chunker, the embeddings provider, and
// the chunk index into a semantic retrieval service for the voice pipeline.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/barbourakais/Ai-audio-chatbot/internal/index"
	"github.com/barbourakais/Ai-audio-chatbot/internal/knowledge"
	"github.com/barbourakais/Ai-audio-chatbot/internal/observe"
	"github.com/barbourakais/Ai-audio-chatbot/pkg/provider/embeddings"
)

// Stats summarises one index rebuild.
type Stats struct {
	// Chunks is the total number of chunks in the new index.
	Chunks int

	// Embedded is how many chunks were sent to the embeddings provider.
	Embedded int

	// Reused is how many chunks kept their previous embedding because the
	// text hash did not change.
	Reused int

	Took time.Duration
}

// Service builds the chunk index from a knowledge document and answers
// similarity queries against it. Rebuilds are serialised; queries may run
// concurrently with a rebuild and see a consistent index generation.
type Service struct {
	embedder embeddings.Provider
	idx      index.Index
	chunker  *knowledge.Chunker
	metrics  *observe.Metrics
	log      *slog.Logger

	// snapshotPath, when set, persists the index after each successful
	// rebuild so restarts can skip embedding entirely.
	snapshotPath string

	rebuildMu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithSnapshotPath persists the index to path after each successful rebuild.
func WithSnapshotPath(path string) Option {
	return func(s *Service) { s.snapshotPath = path }
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithMetrics overrides the default metrics instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a retrieval Service over the given embeddings provider and
// index backend.
func New(embedder embeddings.Provider, idx index.Index, chunker *knowledge.Chunker, opts ...Option) *Service {
	s := &Service{
		embedder: embedder,
		idx:      idx,
		chunker:  chunker,
		metrics:  observe.DefaultMetrics(),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore loads a previously saved snapshot into the index, if one exists.
// It returns true when the index was populated from disk.
func (s *Service) Restore(ctx context.Context) (bool, error) {
	if s.snapshotPath == "" {
		return false, nil
	}
	ok, err := index.LoadSnapshot(ctx, s.idx, s.snapshotPath)
	if err != nil {
		return false, fmt.Errorf("retrieval: restore: %w", err)
	}
	if ok {
		n, _ := s.idx.Len(ctx)
		s.metrics.IndexedChunks.Add(ctx, int64(n))
		s.log.Info("index restored from snapshot", "path", s.snapshotPath, "chunks", n)
	}
	return ok, nil
}

// Rebuild chunks the document, embeds every chunk whose text changed since
// the last build, and swaps the index contents in one step. On any failure
// the previous index generation keeps serving and the error is returned.
func (s *Service) Rebuild(ctx context.Context, doc *knowledge.Document) (Stats, error) {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	start := time.Now()
	chunks := s.chunker.Split(doc)

	previous, err := s.idx.All(ctx)
	if err != nil {
		s.metrics.RecordIndexRebuild(ctx, "failed")
		return Stats{}, fmt.Errorf("retrieval: rebuild: read previous index: %w", err)
	}
	prevByHash := make(map[string][]float32, len(previous))
	for _, e := range previous {
		prevByHash[e.Chunk.Hash] = e.Embedding
	}

	entries := make([]index.Entry, len(chunks))
	var missing []int
	var texts []string
	for i, c := range chunks {
		entries[i] = index.Entry{Chunk: c}
		if vec, ok := prevByHash[c.Hash]; ok {
			entries[i].Embedding = vec
			continue
		}
		missing = append(missing, i)
		texts = append(texts, c.Text)
	}

	if len(texts) > 0 {
		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			s.metrics.RecordIndexRebuild(ctx, "failed")
			return Stats{}, fmt.Errorf("retrieval: rebuild: embed %d chunks: %w", len(texts), err)
		}
		for j, i := range missing {
			entries[i].Embedding = vectors[j]
		}
	}

	if err := s.idx.Replace(ctx, entries); err != nil {
		s.metrics.RecordIndexRebuild(ctx, "failed")
		return Stats{}, fmt.Errorf("retrieval: rebuild: swap index: %w", err)
	}
	s.metrics.IndexedChunks.Add(ctx, int64(len(entries)-len(previous)))
	s.metrics.RecordIndexRebuild(ctx, "ok")

	if s.snapshotPath != "" {
		// Snapshot failure does not fail the rebuild: the serving index is
		// already swapped. It just means the next restart re-embeds.
		if err := index.SaveSnapshot(ctx, s.idx, s.snapshotPath); err != nil {
			s.log.Warn("index snapshot failed", "path", s.snapshotPath, "error", err)
		}
	}

	stats := Stats{
		Chunks:   len(entries),
		Embedded: len(texts),
		Reused:   len(entries) - len(texts),
		Took:     time.Since(start),
	}
	s.log.Info("index rebuilt",
		"chunks", stats.Chunks, "embedded", stats.Embedded,
		"reused", stats.Reused, "took", stats.Took)
	return stats, nil
}

// RebuildFromFile loads the knowledge document at path and rebuilds the index
// from it.
func (s *Service) RebuildFromFile(ctx context.Context, path string) (Stats, error) {
	doc, err := knowledge.Load(path)
	if err != nil {
		return Stats{}, fmt.Errorf("retrieval: rebuild: %w", err)
	}
	return s.Rebuild(ctx, doc)
}

// Query embeds the text and returns the k most similar chunks.
func (s *Service) Query(ctx context.Context, text string, k int) ([]index.Result, error) {
	start := time.Now()

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.metrics.RecordProviderError(ctx, s.embedder.ModelID(), "embeddings")
		return nil, fmt.Errorf("retrieval: query: embed: %w", err)
	}
	results, err := s.idx.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("retrieval: query: search: %w", err)
	}

	s.metrics.RetrieveDuration.Record(ctx, time.Since(start).Seconds())
	return results, nil
}

// Len reports the number of indexed chunks.
func (s *Service) Len(ctx context.Context) (int, error) {
	return s.idx.Len(ctx)
}

// Close releases the underlying index. For the postgres backend this closes
// the connection pool; for the memory backend it is a no-op.
func (s *Service) Close() {
	s.idx.Close()
}

// FormatContext renders retrieval results as a bulleted block for prompt
// assembly, truncated to maxChars. maxChars <= 0 means unlimited. Empty
// results yield an empty string.
func FormatContext(results []index.Result, maxChars int) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	for _, r := range results {
		line := "- " + strings.TrimSpace(r.Entry.Chunk.Text) + "\n"
		if maxChars > 0 && b.Len()+len(line) > maxChars {
			break
		}
		b.WriteString(line)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
