package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/kailas-cloud/docingest/internal/chunker"
	"github.com/kailas-cloud/docingest/internal/domain"
	dompipeline "github.com/kailas-cloud/docingest/internal/domain/pipeline"
	"github.com/kailas-cloud/docingest/internal/parser"
	"github.com/kailas-cloud/docingest/internal/repository/embcache"
	"github.com/kailas-cloud/docingest/internal/selector"
	"github.com/kailas-cloud/docingest/internal/usecase/embedding"
	"github.com/kailas-cloud/docingest/internal/usecase/upload"
)

const filler = "The parties agree to the terms and conditions herein. "

// --- Mocks ---

// mockModel derives a deterministic 3-dim vector per text and counts texts sent.
type mockModel struct {
	mu      sync.Mutex
	calls   int
	texts   []string
	batchFn func(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

func (m *mockModel) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.mu.Lock()
	m.calls++
	m.texts = append(m.texts, texts...)
	m.mu.Unlock()

	if m.batchFn != nil {
		return m.batchFn(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, float32(strings.Count(t, " ") + 1)}
	}
	return domain.BatchEmbeddingResult{Embeddings: out}, nil
}

func (m *mockModel) sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

type mockIndex struct {
	mu       sync.Mutex
	calls    int
	records  []domain.Record
	upsertFn func(call int, records []domain.Record) error
}

func (m *mockIndex) Upsert(_ context.Context, records []domain.Record) error {
	m.mu.Lock()
	call := m.calls
	m.calls++
	m.mu.Unlock()
	if m.upsertFn != nil {
		if err := m.upsertFn(call, records); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.records = append(m.records, records...)
	m.mu.Unlock()
	return nil
}

type panicSelector struct{}

func (panicSelector) Choose([]domain.Chunk, string) selector.Result {
	panic("selector exploded")
}

// blockingPipeline records peak concurrency of Run calls.
type blockingPipeline struct {
	mu       sync.Mutex
	inFlight int
	peak     int
	release  chan struct{}
}

func (b *blockingPipeline) Run(_ context.Context, req Request) *dompipeline.Stats {
	b.mu.Lock()
	b.inFlight++
	b.peak = max(b.peak, b.inFlight)
	b.mu.Unlock()

	<-b.release

	b.mu.Lock()
	b.inFlight--
	b.mu.Unlock()
	return &dompipeline.Stats{Source: req.Source.String(), Status: dompipeline.StatusCompleted}
}

// --- Helpers ---

type testEnv struct {
	svc   *Service
	model *mockModel
	index *mockIndex
	cache *embcache.Memory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{model: &mockModel{}, index: &mockIndex{}, cache: embcache.NewMemory()}
	loader := func(context.Context) (domain.BatchEmbedder, error) { return env.model, nil }
	env.svc = New(
		parser.New(parser.DefaultBatchSize),
		chunker.New(chunker.DefaultMaxChars),
		selector.New(selector.DefaultTopK),
		embedding.New(loader, env.cache, nil, embedding.WithDimensions(3)),
		upload.New(env.index, nil),
		nil,
	)
	return env
}

// contractOf builds a form-feed paginated document, one clause per page, each page
// just over half the chunk budget.
func contractOf(pages int) []byte {
	texts := make([]string, pages)
	for i := range texts {
		texts[i] = fmt.Sprintf("Clause %d of %d. %s", i+1, pages, strings.Repeat(filler, 20))
	}
	return []byte(strings.Join(texts, "\f"))
}
