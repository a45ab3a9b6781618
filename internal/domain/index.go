package domain

import "context"

// VectorIndex is the contract of an external vector index.
// Upsert overwrites records with the same id.
type VectorIndex interface {
	Upsert(ctx context.Context, records []Record) error
	Fetch(ctx context.Context, id string) (Record, error)
	Query(ctx context.Context, vector []float32, topK int, filter QueryFilter) ([]Match, error)
}
