// Package upload writes embedded chunks to a vector index in bounded batches.
package upload

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/docingest/internal/domain"
	dombatch "github.com/kailas-cloud/docingest/internal/domain/batch"
	"github.com/kailas-cloud/docingest/internal/domain/pipeline"
	"github.com/kailas-cloud/docingest/internal/metrics"
)

// Defaults.
const (
	DefaultBatchSize   = 100
	DefaultConcurrency = 1
)

// Summary is the outcome of one Upload call.
// Status is success iff every chunk was uploaded.
type Summary struct {
	Total         int
	Uploaded      int
	Skipped       int
	FailedBatches int
	Status        pipeline.UploadStatus
	Batches       []dombatch.Result
	Warnings      []string
}

// Option configures the Service.
type Option func(*Service)

// WithBatchSize sets the maximum number of records per upsert.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithConcurrency bounds the number of upserts in flight.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// Service uploads chunk records with per-batch error reporting.
type Service struct {
	index       Index
	logger      *zap.Logger
	batchSize   int
	concurrency int
}

// New creates an upload service.
func New(index Index, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		index:       index,
		logger:      logger,
		batchSize:   DefaultBatchSize,
		concurrency: DefaultConcurrency,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// BatchSize returns the configured batch size.
func (s *Service) BatchSize() int { return s.batchSize }

// Upload builds one record per embedded chunk and upserts them in batches.
// A failed batch is logged and recorded; later batches still run.
func (s *Service) Upload(ctx context.Context, source string, chunks []domain.Chunk) Summary {
	sum := Summary{Total: len(chunks)}

	records := make([]domain.Record, 0, len(chunks))
	for i := range chunks {
		if !chunks[i].HasEmbedding() {
			sum.Skipped++
			continue
		}
		records = append(records, domain.NewRecord(&chunks[i], source))
	}
	if sum.Skipped > 0 {
		sum.Warnings = append(sum.Warnings, fmt.Sprintf("%d chunks skipped: no embedding", sum.Skipped))
	}

	nBatches := (len(records) + s.batchSize - 1) / s.batchSize
	results := make([]dombatch.Result, nBatches)

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for b := range nBatches {
		start := b * s.batchSize
		end := min(start+s.batchSize, len(records))
		batch := records[start:end]

		g.Go(func() error {
			results[b] = s.upsertBatch(ctx, b, batch)
			return nil
		})
	}
	_ = g.Wait()

	sum.Batches = results
	sum.Uploaded, sum.FailedBatches = dombatch.Tally(results)
	for _, r := range results {
		if !r.OK() {
			sum.Warnings = append(sum.Warnings, fmt.Sprintf("batch %d (%d records): %v", r.Index(), r.Size(), r.Err()))
		}
	}

	sum.Status = pipeline.UploadSuccess
	if sum.Uploaded != sum.Total {
		sum.Status = pipeline.UploadPartial
	}
	return sum
}

func (s *Service) upsertBatch(ctx context.Context, idx int, batch []domain.Record) dombatch.Result {
	if err := ctx.Err(); err != nil {
		metrics.UploadBatchesTotal.WithLabelValues(string(dombatch.StatusCanceled)).Inc()
		return dombatch.NewCanceled(idx, len(batch), fmt.Errorf("%w: %w", domain.ErrUpload, err))
	}

	start := time.Now()
	if err := s.index.Upsert(ctx, batch); err != nil {
		took := time.Since(start)
		metrics.UploadBatchesTotal.WithLabelValues(string(dombatch.StatusError)).Inc()
		s.logger.Warn("upload batch failed",
			zap.Int("batch", idx),
			zap.Int("size", len(batch)),
			zap.Duration("duration", took),
			zap.Error(err),
		)
		return dombatch.NewError(idx, len(batch), fmt.Errorf("%w: %w", domain.ErrUpload, err), took)
	}

	took := time.Since(start)
	metrics.UploadBatchesTotal.WithLabelValues(string(dombatch.StatusOK)).Inc()
	s.logger.Debug("upload batch done", zap.Int("batch", idx), zap.Int("size", len(batch)), zap.Duration("duration", took))
	return dombatch.NewOK(idx, len(batch), took)
}
