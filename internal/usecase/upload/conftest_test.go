package upload

import (
	"context"
	"fmt"
	"sync"

	"github.com/kailas-cloud/docingest/internal/domain"
)

// mockIndex records every upsert call.
type mockIndex struct {
	mu       sync.Mutex
	calls    int
	sizes    []int
	records  []domain.Record
	upsertFn func(ctx context.Context, call int, records []domain.Record) error
}

func (m *mockIndex) Upsert(ctx context.Context, records []domain.Record) error {
	m.mu.Lock()
	call := m.calls
	m.calls++
	m.sizes = append(m.sizes, len(records))
	m.mu.Unlock()

	if m.upsertFn != nil {
		if err := m.upsertFn(ctx, call, records); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.records = append(m.records, records...)
	m.mu.Unlock()
	return nil
}

func embeddedChunks(n int) []domain.Chunk {
	chunks := make([]domain.Chunk, n)
	for i := range chunks {
		text := fmt.Sprintf("Clause %d of %d", i+1, n)
		chunks[i] = domain.Chunk{ID: i, Text: text, CharCount: len(text), Embedding: []float32{1, 0, float32(i)}}
	}
	return chunks
}
