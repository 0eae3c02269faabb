// Package postgres implements the chunk index on PostgreSQL with the pgvector
// extension. Replace runs in a single transaction, so concurrent queries see
// either the previous index generation or the new one.
package postgres

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/barbourakais/Ai-audio-chatbot/internal/index"
	"github.com/barbourakais/Ai-audio-chatbot/internal/knowledge"
)

var _ index.Index = (*Index)(nil)

// Index stores embedded knowledge chunks in a knowledge_chunks table with an
// HNSW cosine index. All methods are safe for concurrent use.
type Index struct {
	pool       *pgxpool.Pool
	dimensions int
}

// ddl returns the schema with the embedding dimension baked into the vector
// column. Changing the dimension after the first migration requires a manual
// schema change.
func ddl(dimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS knowledge_chunks (
    id          TEXT        PRIMARY KEY,
    section_id  TEXT        NOT NULL,
    kind        TEXT        NOT NULL DEFAULT '',
    ordinal     INT         NOT NULL DEFAULT 0,
    content     TEXT        NOT NULL,
    hash        TEXT        NOT NULL,
    embedding   vector(%d),
    position    INT         NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_embedding
    ON knowledge_chunks USING hnsw (embedding vector_cosine_ops);
`, dimensions)
}

// New connects to the database at dsn, registers pgvector types on every
// connection, and ensures the schema exists. dimensions must match the
// embedding model in use.
func New(ctx context.Context, dsn string, dimensions int) (*Index, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("postgres index: dimensions must be positive, got %d", dimensions)
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres index: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres index: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres index: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddl(dimensions)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres index: migrate: %w", err)
	}
	return &Index{pool: pool, dimensions: dimensions}, nil
}

// Replace swaps the full chunk set inside one transaction. On any error the
// transaction rolls back and the previous contents stay in place.
func (p *Index) Replace(ctx context.Context, entries []index.Entry) error {
	for i, e := range entries {
		if len(e.Embedding) != p.dimensions {
			return fmt.Errorf("%w: entry %d has %d dims, index expects %d",
				index.ErrDimensionMismatch, i, len(e.Embedding), p.dimensions)
		}
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres index: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM knowledge_chunks`); err != nil {
		return fmt.Errorf("postgres index: clear: %w", err)
	}

	const q = `
		INSERT INTO knowledge_chunks
		    (id, section_id, kind, ordinal, content, hash, embedding, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for pos, e := range entries {
		_, err := tx.Exec(ctx, q,
			e.Chunk.ID,
			e.Chunk.SectionID,
			string(e.Chunk.Kind),
			e.Chunk.Ordinal,
			e.Chunk.Text,
			e.Chunk.Hash,
			pgvector.NewVector(e.Embedding),
			pos,
		)
		if err != nil {
			return fmt.Errorf("postgres index: insert chunk %s: %w", e.Chunk.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres index: commit: %w", err)
	}
	return nil
}

// Search returns the k nearest chunks by cosine distance. Ties between equal
// distances resolve by insertion position.
func (p *Index) Search(ctx context.Context, embedding []float32, k int) ([]index.Result, error) {
	if k <= 0 {
		return []index.Result{}, nil
	}
	if len(embedding) != p.dimensions {
		return nil, fmt.Errorf("%w: query has %d dims, index expects %d",
			index.ErrDimensionMismatch, len(embedding), p.dimensions)
	}

	const q = `
		SELECT id, section_id, kind, ordinal, content, hash, embedding,
		       embedding <=> $1 AS distance
		FROM   knowledge_chunks
		ORDER  BY distance, position
		LIMIT  $2`

	rows, err := p.pool.Query(ctx, q, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("postgres index: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (index.Result, error) {
		var (
			r        index.Result
			kind     string
			vec      pgvector.Vector
			distance float64
		)
		if err := row.Scan(
			&r.Entry.Chunk.ID,
			&r.Entry.Chunk.SectionID,
			&kind,
			&r.Entry.Chunk.Ordinal,
			&r.Entry.Chunk.Text,
			&r.Entry.Chunk.Hash,
			&vec,
			&distance,
		); err != nil {
			return index.Result{}, err
		}
		r.Entry.Chunk.Kind = knowledge.Kind(kind)
		r.Entry.Embedding = vec.Slice()
		r.Score = math.Max(-1, math.Min(1, 1-distance))
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres index: scan rows: %w", err)
	}
	if results == nil {
		results = []index.Result{}
	}
	return results, nil
}

// All returns every indexed chunk in insertion order.
func (p *Index) All(ctx context.Context) ([]index.Entry, error) {
	const q = `
		SELECT id, section_id, kind, ordinal, content, hash, embedding
		FROM   knowledge_chunks
		ORDER  BY position`

	rows, err := p.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres index: list: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (index.Entry, error) {
		var (
			e    index.Entry
			kind string
			vec  pgvector.Vector
		)
		if err := row.Scan(
			&e.Chunk.ID,
			&e.Chunk.SectionID,
			&kind,
			&e.Chunk.Ordinal,
			&e.Chunk.Text,
			&e.Chunk.Hash,
			&vec,
		); err != nil {
			return index.Entry{}, err
		}
		e.Chunk.Kind = knowledge.Kind(kind)
		e.Embedding = vec.Slice()
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres index: scan rows: %w", err)
	}
	if entries == nil {
		entries = []index.Entry{}
	}
	return entries, nil
}

// Len reports the number of indexed chunks.
func (p *Index) Len(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM knowledge_chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres index: count: %w", err)
	}
	return n, nil
}

// Close releases the connection pool.
func (p *Index) Close() {
	p.pool.Close()
}
