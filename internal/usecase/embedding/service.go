// Package embedding turns chunk texts into L2-normalized vectors through a content-hash cache.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/docingest/internal/domain"
)

// Defaults.
const (
	DefaultBatchSize   = 32
	DefaultConcurrency = 4
)

// Report describes how one call was served.
type Report struct {
	Hits          int // texts served without a model call, including repeats within the call
	Misses        int // unique texts sent to the model
	Requests      int // model calls
	CachedEntries int
}

// Option configures the Service.
type Option func(*Service)

// WithBatchSize sets the sub-batch size of model calls.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithConcurrency bounds the number of sub-batches in flight.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithDimensions enforces the vector dimensionality. Zero disables the check.
func WithDimensions(d int) Option {
	return func(s *Service) { s.dimensions = d }
}

// WithCacheNamespace scopes cache keys to a model fingerprint, typically provider, model,
// dimensions and document instruction. Vectors cached under another fingerprint are never served.
func WithCacheNamespace(parts ...string) Option {
	return func(s *Service) { s.namespace = strings.Join(parts, "\x00") }
}

// WithCacheCounter reports hits and misses to a counter vec with label "result".
func WithCacheCounter(cv *prometheus.CounterVec) Option {
	return func(s *Service) { s.cacheTotal = cv }
}

// WithCacheGauges reports the cache size and the model load time.
func WithCacheGauges(entries, modelLoad prometheus.Gauge) Option {
	return func(s *Service) {
		s.cacheEntries = entries
		s.modelLoad = modelLoad
	}
}

// Service is the batch embedder. One instance owns its cache and model for its lifetime
// and is safe for concurrent use.
type Service struct {
	loader      ModelLoader
	cache       Cache
	logger      *zap.Logger
	batchSize   int
	concurrency int
	dimensions  int
	namespace   string
	cacheTotal  *prometheus.CounterVec

	cacheEntries prometheus.Gauge
	modelLoad    prometheus.Gauge

	mu    sync.Mutex
	model domain.BatchEmbedder
}

// New creates the embedding service.
func New(loader ModelLoader, cache Cache, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		loader:      loader,
		cache:       cache,
		logger:      logger,
		batchSize:   DefaultBatchSize,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CacheLen returns the number of cached entries.
func (s *Service) CacheLen() int { return s.cache.Len() }

// Embed returns one vector per text, in input order.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, _, err := s.embed(ctx, texts)
	return vecs, err
}

// EmbedChunks returns copies of chunks with their Embedding set.
func (s *Service) EmbedChunks(ctx context.Context, chunks []domain.Chunk) ([]domain.Chunk, Report, error) {
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}

	vecs, report, err := s.embed(ctx, texts)
	if err != nil {
		return nil, report, err
	}

	out := slices.Clone(chunks)
	for i := range out {
		out[i].Embedding = vecs[i]
	}
	return out, report, nil
}

func (s *Service) embed(ctx context.Context, texts []string) ([][]float32, Report, error) {
	out := make([][]float32, len(texts))
	var report Report

	// key -> positions waiting for it; misses keeps first-seen order
	pending := make(map[string][]int)
	var misses []string

	for i, text := range texts {
		key := s.cacheKey(text)
		if pos, ok := pending[key]; ok {
			pending[key] = append(pos, i)
			report.Hits++
			continue
		}
		if vec, ok := s.cache.Get(ctx, key); ok && s.usable(vec) {
			out[i] = vec
			report.Hits++
			continue
		}
		pending[key] = []int{i}
		misses = append(misses, key)
	}
	report.Misses = len(misses)
	s.countCache(report)

	if len(misses) > 0 {
		requests, err := s.embedMisses(ctx, texts, misses, pending, out)
		report.Requests = requests
		if err != nil {
			report.CachedEntries = s.cache.Len()
			return nil, report, fmt.Errorf("%w: %w", domain.ErrEmbedding, err)
		}
	}

	report.CachedEntries = s.cache.Len()
	if s.cacheEntries != nil {
		s.cacheEntries.Set(float64(report.CachedEntries))
	}
	s.logger.Debug("Embedded texts",
		zap.Int("texts", len(texts)),
		zap.Int("cache_hits", report.Hits),
		zap.Int("cache_misses", report.Misses),
		zap.Int("requests", report.Requests),
	)
	return out, report, nil
}

// embedMisses runs the misses through the model in sub-batches. Every finished sub-batch
// is cached immediately, so work done before a failure or cancellation is kept.
func (s *Service) embedMisses(
	ctx context.Context, texts, misses []string, pending map[string][]int, out [][]float32,
) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	model, err := s.loadModel(ctx)
	if err != nil {
		return 0, fmt.Errorf("load model: %w", err)
	}

	var requests atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for offset := 0; offset < len(misses); offset += s.batchSize {
		keys := misses[offset:min(offset+s.batchSize, len(misses))]

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			batch := make([]string, len(keys))
			for i, key := range keys {
				batch[i] = texts[pending[key][0]]
			}

			start := time.Now()
			res, err := model.BatchEmbed(gctx, batch)
			requests.Add(1)
			if err != nil {
				return fmt.Errorf("sub-batch at %d: %w", offset, err)
			}
			if len(res.Embeddings) != len(keys) {
				return fmt.Errorf("sub-batch at %d: %d embeddings for %d texts: %w",
					offset, len(res.Embeddings), len(keys), domain.ErrEmbeddingProviderError)
			}

			for i, key := range keys {
				vec, err := s.prepare(res.Embeddings[i])
				if err != nil {
					return fmt.Errorf("sub-batch at %d, text %d: %w", offset, i, err)
				}
				if stored := s.cache.Put(ctx, key, vec); s.usable(stored) {
					vec = stored
				}
				for _, pos := range pending[key] {
					out[pos] = slices.Clone(vec)
				}
			}

			s.logger.Debug("Embedded sub-batch",
				zap.Int("offset", offset),
				zap.Int("size", len(keys)),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		})
	}

	err = g.Wait()
	return int(requests.Load()), err
}

func (s *Service) cacheKey(text string) string {
	if s.namespace == "" {
		return domain.ContentHash(text)
	}
	return domain.ContentHash(s.namespace + "\x00" + text)
}

// usable rejects cached vectors left behind by a model with another dimensionality.
func (s *Service) usable(vec []float32) bool {
	if len(vec) == 0 {
		return false
	}
	return s.dimensions <= 0 || len(vec) == s.dimensions
}

func (s *Service) prepare(raw []float32) ([]float32, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty embedding")
	}
	if s.dimensions > 0 && len(raw) != s.dimensions {
		return nil, &domain.DimMismatchError{Expected: s.dimensions, Actual: len(raw)}
	}
	return domain.NormalizeL2(slices.Clone(raw)), nil
}

// loadModel returns the model, loading it on first use. A failed load is retried on the next call.
func (s *Service) loadModel(ctx context.Context) (domain.BatchEmbedder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.model != nil {
		return s.model, nil
	}
	start := time.Now()
	m, err := s.loader(ctx)
	if err != nil {
		return nil, err
	}
	s.model = m
	elapsed := time.Since(start)
	if s.modelLoad != nil {
		s.modelLoad.Set(elapsed.Seconds())
	}
	s.logger.Info("Embedding model loaded", zap.Duration("duration", elapsed))
	return m, nil
}

// HealthCheck checks the model when it is loaded and supports health checks.
// A model that was never loaded is not probed.
func (s *Service) HealthCheck(ctx context.Context) error {
	s.mu.Lock()
	model := s.model
	s.mu.Unlock()

	if hc, ok := model.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

func (s *Service) countCache(r Report) {
	if s.cacheTotal == nil {
		return
	}
	if r.Hits > 0 {
		s.cacheTotal.WithLabelValues("hit").Add(float64(r.Hits))
	}
	if r.Misses > 0 {
		s.cacheTotal.WithLabelValues("miss").Add(float64(r.Misses))
	}
}
