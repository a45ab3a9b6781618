package health

import "context"

// Pinger checks availability of a backing store (vector index, embedding cache).
type Pinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
