package embedding

import (
	"context"

	"github.com/kailas-cloud/docingest/internal/domain"
)

// ModelLoader instantiates the embedding model. It runs on the first cache miss.
type ModelLoader func(ctx context.Context) (domain.BatchEmbedder, error)

// Cache is the consumer interface of the embedding cache (ISP).
// Put returns the vector the cache holds for key after the write.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Put(ctx context.Context, key string, vec []float32) []float32
	Len() int
}
