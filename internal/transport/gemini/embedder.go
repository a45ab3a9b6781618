// Package gemini embeds text with Google's Gemini embedding models.
package gemini

import (
	"context"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/kailas-cloud/docingest/internal/domain"
	"github.com/kailas-cloud/docingest/internal/metrics"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "text-embedding-004"

// maxBatch is the provider limit of contents per BatchEmbedContents request.
const maxBatch = 100

const provider = "gemini"

// Config holds the Gemini provider settings.
type Config struct {
	APIKey string
	Model  string
	Logger *zap.Logger
}

// batchFunc embeds at most maxBatch texts in one request.
type batchFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Embedder implements domain.Embedder and domain.BatchEmbedder over the Gemini API.
type Embedder struct {
	embed  batchFunc
	close  func() error
	model  string
	logger *zap.Logger
}

// NewEmbedder creates a Gemini client. Close releases it.
func NewEmbedder(ctx context.Context, cfg *Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required: %w", domain.ErrEmbeddingProviderError)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	em := client.EmbeddingModel(model)

	embed := func(ctx context.Context, texts []string) ([][]float32, error) {
		batch := em.NewBatch()
		for _, t := range texts {
			batch.AddContent(genai.Text(t))
		}
		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, err
		}
		out := make([][]float32, 0, len(resp.Embeddings))
		for _, e := range resp.Embeddings {
			out = append(out, e.Values)
		}
		return out, nil
	}

	return newEmbedder(embed, client.Close, model, cfg.Logger), nil
}

func newEmbedder(embed batchFunc, closeFn func() error, model string, logger *zap.Logger) *Embedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{embed: embed, close: closeFn, model: model, logger: logger}
}

// Embed implements domain.Embedder. Gemini does not report token usage for embeddings.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{Embedding: res.Embeddings[0]}, nil
}

// BatchEmbed implements domain.BatchEmbedder, splitting at the provider request limit.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	out := make([][]float32, 0, len(texts))
	for offset := 0; offset < len(texts); offset += maxBatch {
		part := texts[offset:min(offset+maxBatch, len(texts))]

		start := time.Now()
		vecs, err := e.embed(ctx, part)
		duration := time.Since(start)

		if err != nil {
			e.recordError("api_error")
			e.logger.Debug("Gemini batch embed failed",
				zap.String("model", e.model),
				zap.Int("offset", offset),
				zap.Error(err),
			)
			return domain.BatchEmbeddingResult{}, fmt.Errorf("gemini batch embed: %w: %w", err, domain.ErrEmbeddingProviderError)
		}
		if len(vecs) != len(part) {
			e.recordError("count_mismatch")
			return domain.BatchEmbeddingResult{}, fmt.Errorf("gemini returned %d embeddings for %d inputs: %w",
				len(vecs), len(part), domain.ErrEmbeddingProviderError)
		}

		metrics.EmbeddingRequestsTotal.WithLabelValues(provider, e.model, "success").Inc()
		metrics.EmbeddingRequestDuration.WithLabelValues(provider, e.model).Observe(duration.Seconds())
		out = append(out, vecs...)
	}

	return domain.BatchEmbeddingResult{Embeddings: out}, nil
}

// HealthCheck embeds a probe string.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.embed(ctx, []string{"ping"}); err != nil {
		return fmt.Errorf("gemini probe: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (e *Embedder) Close() error {
	if e.close == nil {
		return nil
	}
	return e.close()
}

func (e *Embedder) recordError(errType string) {
	metrics.EmbeddingRequestsTotal.WithLabelValues(provider, e.model, "error").Inc()
	metrics.EmbeddingErrorsTotal.WithLabelValues(provider, e.model, errType).Inc()
}
