// Package pipeline drives one document through parsing, chunking, selection, embedding and upload.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docingest/internal/domain"
	dompipeline "github.com/kailas-cloud/docingest/internal/domain/pipeline"
	"github.com/kailas-cloud/docingest/internal/logger"
	"github.com/kailas-cloud/docingest/internal/metrics"
	"github.com/kailas-cloud/docingest/internal/parser"
)

// Request names the document to ingest. An empty Query selects by sampling.
type Request struct {
	Source parser.Source
	Query  string
}

// Service is the pipeline orchestrator. It is safe for concurrent use when its
// dependencies are.
type Service struct {
	parser   Parser
	chunker  Chunker
	selector Selector
	embedder Embedder
	uploader Uploader
	logger   *zap.Logger
	now      func() time.Time
}

// New creates the orchestrator.
func New(p Parser, c Chunker, s Selector, e Embedder, u Uploader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		parser:   p,
		chunker:  c,
		selector: s,
		embedder: e,
		uploader: u,
		logger:   logger,
		now:      time.Now,
	}
}

// Run ingests one document and returns its statistics. It never returns an error:
// failures end the run in StageError with the message recorded in the stats.
func (s *Service) Run(ctx context.Context, req Request) (stats *dompipeline.Stats) {
	runID := uuid.NewString()
	source := req.Source.String()
	ctx, log := logger.WithRun(ctx, s.logger, runID, source)

	stats = dompipeline.NewStats(runID, source, req.Query, s.now())

	metrics.PipelineInFlight.Inc()
	defer metrics.PipelineInFlight.Dec()

	defer func() {
		if r := recover(); r != nil {
			stats.Fail(fmt.Errorf("panic in %s stage: %v", stats.Stage, r), s.now())
			log.Error("pipeline panic", zap.Any("panic", r), zap.Stack("stack"))
		}
		metrics.PipelineRunsTotal.WithLabelValues(string(stats.Status)).Inc()
	}()

	log.Info("pipeline started", zap.String("query", req.Query))

	if err := s.run(ctx, req, stats, log); err != nil {
		stats.Fail(err, s.now())
		log.Error("pipeline failed", zap.String("stage", string(stats.Stage)), zap.Error(err))
		return stats
	}

	if !stats.Complete(s.now()) {
		stats.Warn(domain.ErrEmptyDocument.Error())
		log.Warn("document has no pages")
	}
	log.Info("pipeline finished",
		zap.String("status", string(stats.Status)),
		zap.Float64("total_time", stats.TotalTime),
		zap.Int("pages", stats.Metrics.TotalPages),
		zap.Int("uploaded", stats.Metrics.ChunksUploaded),
	)
	return stats
}

// run executes the stages in order. stats.Stage tracks the stage in progress.
func (s *Service) run(ctx context.Context, req Request, stats *dompipeline.Stats, log *zap.Logger) error {
	// parsing
	if err := s.enter(ctx, stats, dompipeline.StageParsing); err != nil {
		return err
	}
	start := s.now()
	pages, failed, err := s.parse(ctx, req.Source)
	if err != nil {
		return err
	}
	stats.Parsing = &dompipeline.ParsingStats{Time: s.since(dompipeline.StageParsing, start), Pages: len(pages)}
	metrics.PipelinePagesTotal.Add(float64(len(pages)))
	if failed > 0 {
		stats.Warn(fmt.Sprintf("%d pages could not be extracted", failed))
	}
	log.Debug("parsed", zap.Int("pages", len(pages)), zap.Int("failed_pages", failed))

	// chunking
	if err := s.enter(ctx, stats, dompipeline.StageChunking); err != nil {
		return err
	}
	start = s.now()
	chunks, err := s.chunker.Build(pages)
	if err != nil {
		return err
	}
	stats.Chunking = &dompipeline.ChunkingStats{Time: s.since(dompipeline.StageChunking, start), Chunks: len(chunks)}
	metrics.PipelineChunksTotal.WithLabelValues("created").Add(float64(len(chunks)))

	// selecting
	if err := s.enter(ctx, stats, dompipeline.StageSelecting); err != nil {
		return err
	}
	start = s.now()
	sel := s.selector.Choose(chunks, req.Query)
	stats.Selection = &dompipeline.SelectionStats{
		Time:      s.since(dompipeline.StageSelecting, start),
		Selected:  len(sel.Chunks),
		Strategy:  sel.Strategy,
		Reduction: dompipeline.Reduction(len(chunks), len(sel.Chunks)),
	}
	metrics.PipelineChunksTotal.WithLabelValues("selected").Add(float64(len(sel.Chunks)))
	log.Debug("selected",
		zap.Int("chunks", len(chunks)),
		zap.Int("selected", len(sel.Chunks)),
		zap.String("strategy", sel.Strategy),
	)

	// embedding
	if err := s.enter(ctx, stats, dompipeline.StageEmbedding); err != nil {
		return err
	}
	start = s.now()
	embedded, rep, err := s.embedder.EmbedChunks(ctx, sel.Chunks)
	if err != nil {
		return err
	}
	stats.Embedding = &dompipeline.EmbeddingStats{
		Time:          s.since(dompipeline.StageEmbedding, start),
		Embedded:      len(embedded),
		CacheHits:     rep.Hits,
		CacheMisses:   rep.Misses,
		Requests:      rep.Requests,
		CachedEntries: rep.CachedEntries,
	}
	metrics.PipelineChunksTotal.WithLabelValues("embedded").Add(float64(len(embedded)))

	// uploading
	if err := s.enter(ctx, stats, dompipeline.StageUploading); err != nil {
		return err
	}
	start = s.now()
	sum := s.uploader.Upload(ctx, stats.Source, embedded)
	stats.Upload = &dompipeline.UploadStats{
		Time:          s.since(dompipeline.StageUploading, start),
		Total:         sum.Total,
		Uploaded:      sum.Uploaded,
		Skipped:       sum.Skipped,
		FailedBatches: sum.FailedBatches,
		Status:        sum.Status,
	}
	for _, w := range sum.Warnings {
		stats.Warn(w)
	}
	metrics.PipelineChunksTotal.WithLabelValues("uploaded").Add(float64(sum.Uploaded))
	return nil
}

// enter checks for cancellation and moves the run to the next stage.
func (s *Service) enter(ctx context.Context, stats *dompipeline.Stats, stage dompipeline.Stage) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("canceled before %s: %w", stage, err)
	}
	stats.Stage = stage
	return nil
}

func (s *Service) since(stage dompipeline.Stage, start time.Time) float64 {
	d := s.now().Sub(start).Seconds()
	metrics.PipelineStageDuration.WithLabelValues(string(stage)).Observe(d)
	return d
}

// parse drains the page stream into memory and reports how many pages failed extraction.
func (s *Service) parse(ctx context.Context, src parser.Source) ([]domain.Page, int, error) {
	stream, err := s.parser.Open(ctx, src)
	if err != nil {
		return nil, 0, err
	}
	defer stream.Close()

	var pages []domain.Page
	for {
		batch, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return pages, stream.FailedPages(), nil
		}
		if err != nil {
			return nil, 0, err
		}
		pages = append(pages, batch...)
	}
}
