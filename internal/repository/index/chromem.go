package index

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"

	"github.com/kailas-cloud/docingest/internal/domain"
)

// errNoEmbedding is returned when chromem is asked to embed text itself.
// Records always arrive with vectors.
var errNoEmbedding = errors.New("chromem: records must carry precomputed vectors")

// Chromem is an embedded vector index backed by chromem-go.
// An empty path keeps everything in memory.
type Chromem struct {
	db          *chromem.DB
	collection  *chromem.Collection
	concurrency int
}

// NewChromem opens (or creates) the collection name in the database at path.
func NewChromem(path, name string) (*Chromem, error) {
	var (
		cdb *chromem.DB
		err error
	)
	if path == "" {
		cdb = chromem.NewDB()
	} else {
		cdb, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db %s: %w", path, err)
		}
	}

	col, err := cdb.GetOrCreateCollection(name, nil, refuseEmbedding)
	if err != nil {
		return nil, fmt.Errorf("get or create collection %s: %w", name, err)
	}
	return &Chromem{db: cdb, collection: col, concurrency: runtime.NumCPU()}, nil
}

func refuseEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedding
}

// Ping always succeeds: the database lives in process.
func (c *Chromem) Ping(context.Context) error { return nil }

// Count returns the number of stored records.
func (c *Chromem) Count() int { return c.collection.Count() }

// Upsert adds records; an existing id is overwritten.
func (c *Chromem) Upsert(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(records))
	for i := range records {
		rec := &records[i]
		if len(rec.Vector) == 0 {
			return fmt.Errorf("record %s: %w", rec.ID, errNoEmbedding)
		}
		docs[i] = chromem.Document{
			ID:        rec.ID,
			Content:   rec.Metadata.ChunkText,
			Metadata:  toChromemMetadata(&rec.Metadata),
			Embedding: rec.Vector,
		}
	}
	if err := c.collection.AddDocuments(ctx, docs, c.concurrency); err != nil {
		return fmt.Errorf("add %d documents: %w", len(docs), err)
	}
	return nil
}

// Fetch returns a stored record by id.
func (c *Chromem) Fetch(ctx context.Context, id string) (domain.Record, error) {
	doc, err := c.collection.GetByID(ctx, id)
	if err != nil {
		return domain.Record{}, fmt.Errorf("%w: %s: %w", domain.ErrRecordNotFound, id, err)
	}
	return fromChromemDocument(doc.ID, doc.Content, doc.Metadata, doc.Embedding), nil
}

// Query returns up to topK records most similar to vector, best first.
func (c *Chromem) Query(ctx context.Context, vector []float32, topK int, filter domain.QueryFilter) ([]domain.Match, error) {
	n := min(topK, c.collection.Count())
	if n <= 0 {
		return nil, nil
	}

	var where map[string]string
	if filter.Source != "" {
		where = map[string]string{fieldSource: filter.Source}
	}

	results, err := c.collection.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", c.collection.Name, err)
	}

	matches := make([]domain.Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, domain.Match{
			Record: fromChromemDocument(r.ID, r.Content, r.Metadata, r.Embedding),
			Score:  float64(r.Similarity),
		})
	}
	return matches, nil
}

func toChromemMetadata(m *domain.Metadata) map[string]string {
	return map[string]string{
		fieldChunkID:   strconv.Itoa(m.ChunkID),
		fieldCharCount: strconv.Itoa(m.CharCount),
		fieldSource:    m.Source,
	}
}

func fromChromemDocument(id, content string, meta map[string]string, vec []float32) domain.Record {
	chunkID, _ := strconv.Atoi(meta[fieldChunkID])
	charCount, _ := strconv.Atoi(meta[fieldCharCount])
	return domain.Record{
		ID:     id,
		Vector: vec,
		Metadata: domain.Metadata{
			ChunkText: content,
			ChunkID:   chunkID,
			CharCount: charCount,
			Source:    meta[fieldSource],
		},
	}
}
