package upload

import (
	"context"

	"github.com/kailas-cloud/docingest/internal/domain"
)

// Index is the consumer interface of a vector index backend (ISP).
type Index interface {
	Upsert(ctx context.Context, records []domain.Record) error
}
