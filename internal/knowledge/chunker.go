package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

const (
	// DefaultChunkSize is the maximum chunk length in characters.
	DefaultChunkSize = 512

	// DefaultChunkOverlap is how many trailing characters of a chunk are
	// repeated at the start of the next chunk within the same section.
	DefaultChunkOverlap = 50
)

// Chunk is one embeddable slice of a knowledge section.
type Chunk struct {
	// ID is a random identifier assigned at chunking time.
	ID string `json:"id"`

	// SectionID names the section this chunk was cut from.
	SectionID string `json:"section_id"`

	Kind Kind `json:"kind"`

	// Ordinal is the chunk's position within its section, starting at 0.
	Ordinal int `json:"ordinal"`

	Text string `json:"text"`

	// Hash is the SHA-256 of Text, hex encoded. Rebuilds compare hashes to
	// skip re-embedding chunks whose text did not change.
	Hash string `json:"hash"`
}

// Chunker splits sections into fixed-size overlapping chunks. Chunks never
// span a section boundary, so the overlap resets at every new section.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker returns a Chunker with the given size and overlap. The overlap
// must be smaller than the size.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("knowledge: chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("knowledge: chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split chunks every section of the document in order. Chunking is
// deterministic apart from the generated IDs: the same document always
// produces the same texts, ordinals, and hashes.
func (c *Chunker) Split(doc *Document) []Chunk {
	var out []Chunk
	for _, sec := range doc.Sections() {
		out = append(out, c.splitSection(sec)...)
	}
	return out
}

func (c *Chunker) splitSection(sec Section) []Chunk {
	text := []rune(sec.Text)
	if len(text) == 0 {
		return nil
	}

	var chunks []Chunk
	step := c.size - c.overlap
	for start, ord := 0, 0; start < len(text); start, ord = start+step, ord+1 {
		end := min(start+c.size, len(text))
		chunkText := string(text[start:end])
		chunks = append(chunks, Chunk{
			ID:        uuid.NewString(),
			SectionID: sec.ID,
			Kind:      sec.Kind,
			Ordinal:   ord,
			Text:      chunkText,
			Hash:      HashText(chunkText),
		})
		if end == len(text) {
			break
		}
	}
	return chunks
}

// HashText returns the hex-encoded SHA-256 of text.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
