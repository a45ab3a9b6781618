package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docingest/internal/domain"
	"github.com/kailas-cloud/docingest/internal/metrics"
)

// DefaultMaxAPIBatchSize is the largest batch sent in one provider request.
const DefaultMaxAPIBatchSize = 256

// InstrumentedModel wraps a provider with logging, batch-size metrics and request splitting.
// Transport metrics (requests, duration, tokens) are recorded by the transports.
type InstrumentedModel struct {
	inner    domain.Embedder
	provider string
	model    string
	logger   *zap.Logger
}

// NewInstrumentedModel wraps an embedder with observability.
func NewInstrumentedModel(inner domain.Embedder, provider, model string, logger *zap.Logger) *InstrumentedModel {
	return &InstrumentedModel{
		inner:    inner,
		provider: provider,
		model:    model,
		logger:   logger,
	}
}

// Embed delegates a single text to the inner embedder.
func (p *InstrumentedModel) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	start := time.Now()
	result, err := p.inner.Embed(ctx, text)
	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Embedding request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

// BatchEmbed splits texts into provider-sized requests and delegates them in order.
func (p *InstrumentedModel) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	start := time.Now()

	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, 0, len(texts))}
	for offset := 0; offset < len(texts); offset += DefaultMaxAPIBatchSize {
		part := texts[offset:min(offset+DefaultMaxAPIBatchSize, len(texts))]
		metrics.EmbeddingBatchSize.WithLabelValues(p.provider, p.model).Observe(float64(len(part)))

		res, err := p.embedInner(ctx, part)
		if err != nil {
			p.logger.Error("Batch embedding request failed",
				zap.String("provider", p.provider),
				zap.String("model", p.model),
				zap.Int("chunk_offset", offset),
				zap.Int("chunk_size", len(part)),
				zap.Error(err),
			)
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
		}
		if len(res.Embeddings) != len(part) {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %d embeddings for %d texts: %w",
				len(res.Embeddings), len(part), domain.ErrEmbeddingProviderError)
		}

		out.Append(res)
	}

	p.logger.Debug("Batch embedding completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("batch_size", len(texts)),
		zap.Int("total_tokens", out.TotalTokens),
	)
	return out, nil
}

// HealthCheck delegates to the provider when it supports health checks.
func (p *InstrumentedModel) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (p *InstrumentedModel) embedInner(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if be, ok := p.inner.(domain.BatchEmbedder); ok {
		res, err := be.BatchEmbed(ctx, texts)
		if err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("inner batch embed: %w", err)
		}
		return res, nil
	}
	res, err := domain.BatchFallback(ctx, p.inner, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("inner batch fallback: %w", err)
	}
	return res, nil
}
