// Package index implements the vector index backends records are uploaded to.
package index

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/docingest/internal/db"
	"github.com/kailas-cloud/docingest/internal/domain"
)

// DefaultKeyPrefix namespaces every Redis key the pipeline writes.
const DefaultKeyPrefix = "docingest:"

// Hash field names of a stored record.
const (
	fieldText      = "chunk_text"
	fieldChunkID   = "chunk_id"
	fieldCharCount = "char_count"
	fieldSource    = "source"
	fieldVector    = "__vector"

	// KNN queries address the vector field by this alias.
	vectorAlias = "vector"
)

var returnFields = []string{fieldText, fieldChunkID, fieldCharCount, fieldSource, fieldVector}

// store is the consumer interface for the Redis backend (ISP).
type store interface {
	db.Pinger
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// HNSWConfig HNSW index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Redis stores records as hashes under <prefix><name>:<id> and searches them with FT.SEARCH KNN.
type Redis struct {
	store  store
	name   string
	prefix string
	dim    int
	hnsw   HNSWConfig
}

// NewRedis creates a Redis index backend. dim is the vector dimension of every record.
func NewRedis(s store, name, keyPrefix string, dim int) *Redis {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Redis{
		store:  s,
		name:   name,
		prefix: keyPrefix,
		dim:    dim,
		hnsw:   HNSWConfig{M: db.DefaultHNSWM, EFConstruct: db.DefaultHNSWEFConstruct},
	}
}

// WithHNSW configures HNSW index parameters.
func (r *Redis) WithHNSW(cfg HNSWConfig) *Redis {
	if cfg.M > 0 {
		r.hnsw.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		r.hnsw.EFConstruct = cfg.EFConstruct
	}
	return r
}

// EnsureIndex creates the FT index unless it already exists.
func (r *Redis) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.indexName())
	if err != nil {
		return fmt.Errorf("check index %s: %w", r.name, err)
	}
	if exists {
		return nil
	}

	def, err := r.buildIndex()
	if err != nil {
		return err
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", r.name, err)
	}
	return nil
}

// Ping checks the backing store.
func (r *Redis) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

// Upsert writes all records in one pipelined round-trip.
func (r *Redis) Upsert(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	items := make([]db.HashSetItem, len(records))
	for i := range records {
		rec := &records[i]
		if r.dim > 0 && len(rec.Vector) != r.dim {
			return fmt.Errorf("record %s: %w", rec.ID, &domain.DimMismatchError{Expected: r.dim, Actual: len(rec.Vector)})
		}
		items[i] = db.HashSetItem{Key: r.recordKey(rec.ID), Fields: buildHashFields(rec)}
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("upsert %d records: %w", len(records), err)
	}
	return nil
}

// Fetch returns a stored record by id.
func (r *Redis) Fetch(ctx context.Context, id string) (domain.Record, error) {
	m, err := r.store.HGetAll(ctx, r.recordKey(id))
	if err != nil {
		return domain.Record{}, fmt.Errorf("fetch %s: %w", id, err)
	}
	if len(m) == 0 {
		return domain.Record{}, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, id)
	}
	return parseHashFields(id, m), nil
}

// Query returns the topK records most similar to vector, best first.
func (r *Redis) Query(ctx context.Context, vector []float32, topK int, filter domain.QueryFilter) ([]domain.Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	q := &db.KNNQuery{
		IndexName:    r.indexName(),
		VectorField:  vectorAlias,
		Vector:       vector,
		K:            topK,
		ReturnFields: returnFields,
	}
	if filter.Source != "" {
		q.Filters = []db.TagFilter{{Field: fieldSource, Value: filter.Source}}
	}

	res, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", r.name, err)
	}

	matches := make([]domain.Match, 0, len(res.Entries))
	for _, e := range res.Entries {
		id := strings.TrimPrefix(e.Key, r.recordPrefix())
		matches = append(matches, domain.Match{Record: parseHashFields(id, e.Fields), Score: e.Score})
	}
	return matches, nil
}

func (r *Redis) buildIndex() (*db.IndexDefinition, error) {
	def, err := db.NewIndex(r.indexName()).
		Prefix(r.recordPrefix()).
		Tag(fieldSource).
		SortableNumeric(fieldChunkID).
		Numeric(fieldCharCount).
		Vector(fieldVector, vectorAlias, r.dim, db.DistanceCosine, r.hnsw.M, r.hnsw.EFConstruct).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build index %s: %w", r.name, err)
	}
	return def, nil
}

// Key patterns: docingest:{name}:idx, docingest:{name}:{id}

func (r *Redis) indexName() string {
	return fmt.Sprintf("%s%s:idx", r.prefix, r.name)
}

func (r *Redis) recordPrefix() string {
	return fmt.Sprintf("%s%s:", r.prefix, r.name)
}

func (r *Redis) recordKey(id string) string {
	return r.recordPrefix() + id
}
