// Package db defines the storage primitives the chunk index and the embedding cache are built on.
package db

import "context"

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashSetItem is one key and its fields for a pipelined HSET.
type HashSetItem struct {
	Key    string
	Fields map[string]string
}

// RecordStore writes and reads chunk records stored as hashes.
type RecordStore interface {
	HSetMulti(ctx context.Context, items []HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// BlobStore holds write-once values such as cached embeddings.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetNX(ctx context.Context, key string, value []byte) (bool, error)
}

// VectorIndex creates and queries an FT index over stored records.
type VectorIndex interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
}

// Store is the full surface of a backend. Consumers declare the narrow subset they use.
type Store interface {
	Pinger
	RecordStore
	BlobStore
	VectorIndex
	Close()
}
