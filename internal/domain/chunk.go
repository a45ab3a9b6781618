package domain

import (
	"crypto/md5" //nolint:gosec // content fingerprint for record ids, not a security boundary
	"crypto/sha256"
	"encoding/hex"
	"slices"
)

// RecordIDPrefix prefixes every index record id.
const RecordIDPrefix = "chunk_"

// Page is the text extracted from one page of a source document.
// Text is empty when the page could not be extracted.
type Page struct {
	Index int
	Text  string
}

// Chunk is a bounded span of document text prepared as one embedding unit.
type Chunk struct {
	ID        int
	Text      string
	CharCount int
	Score     int
	Embedding []float32
}

// HasEmbedding reports whether the chunk carries a vector.
func (c *Chunk) HasEmbedding() bool { return len(c.Embedding) > 0 }

// Metadata is stored next to each vector in the index.
type Metadata struct {
	ChunkText string
	ChunkID   int
	CharCount int
	Source    string
}

// Record is one (id, vector, metadata) triple upserted into a vector index.
type Record struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// Match is a single hit of a similarity query.
type Match struct {
	Record
	Score float64
}

// QueryFilter narrows a similarity query. Empty fields match everything.
type QueryFilter struct {
	Source string
}

// RecordID derives the deterministic record id of a chunk text.
// Identical text always maps to the same id, so re-uploads overwrite.
func RecordID(text string) string {
	h := md5.Sum([]byte(text)) //nolint:gosec // see import
	return RecordIDPrefix + hex.EncodeToString(h[:])
}

// ContentHash returns the sha256 hex digest of text. Embedding caches key on it.
func ContentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// NewRecord builds the index record for an embedded chunk.
func NewRecord(c *Chunk, source string) Record {
	return Record{
		ID:     RecordID(c.Text),
		Vector: slices.Clone(c.Embedding),
		Metadata: Metadata{
			ChunkText: c.Text,
			ChunkID:   c.ID,
			CharCount: c.CharCount,
			Source:    source,
		},
	}
}
