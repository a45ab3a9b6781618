package domain

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Embedder vectorizes a single text.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes multiple texts in one provider call.
// Embeddings are returned in input order.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult is one vector with the tokens the provider billed for it.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult is a batch of vectors in input order plus aggregate token usage.
// Cache hits never reach a provider and carry no tokens.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// Append adds other's vectors after r's and sums the token usage.
func (r *BatchEmbeddingResult) Append(other BatchEmbeddingResult) {
	r.Embeddings = append(r.Embeddings, other.Embeddings...)
	r.PromptTokens += other.PromptTokens
	r.TotalTokens += other.TotalTokens
}

// BatchFallback embeds texts one by one, for providers without a native batch endpoint.
// It stops at the first error or when ctx is done.
func BatchFallback(ctx context.Context, e Embedder, texts []string) (BatchEmbeddingResult, error) {
	out := BatchEmbeddingResult{Embeddings: make([][]float32, 0, len(texts))}
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return BatchEmbeddingResult{}, fmt.Errorf("fallback embed [%d]: %w", i, err)
		}
		res, err := e.Embed(ctx, text)
		if err != nil {
			return BatchEmbeddingResult{}, fmt.Errorf("fallback embed [%d]: %w", i, err)
		}
		out.Append(BatchEmbeddingResult{
			Embeddings:   [][]float32{res.Embedding},
			PromptTokens: res.PromptTokens,
			TotalTokens:  res.TotalTokens,
		})
	}
	return out, nil
}

// InstructionEmbedder prepends a fixed instruction to every text, as BGE-style models expect
// on the document side of a retrieval pair. Texts that already carry it are sent unchanged.
type InstructionEmbedder struct {
	inner       Embedder
	instruction string
}

// NewInstructionEmbedder wraps inner with instruction.
func NewInstructionEmbedder(inner Embedder, instruction string) *InstructionEmbedder {
	return &InstructionEmbedder{inner: inner, instruction: instruction}
}

func (e *InstructionEmbedder) prefix(text string) string {
	if strings.HasPrefix(text, e.instruction) {
		return text
	}
	return e.instruction + text
}

// Embed prefixes text and delegates to inner.
func (e *InstructionEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	result, err := e.inner.Embed(ctx, e.prefix(text))
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("instruction embed: %w", err)
	}
	return result, nil
}

// BatchEmbed prefixes every text and delegates to inner, one call per text when inner has no batch support.
func (e *InstructionEmbedder) BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error) {
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		prefixed[i] = e.prefix(t)
	}

	var (
		res BatchEmbeddingResult
		err error
	)
	if be, ok := e.inner.(BatchEmbedder); ok {
		res, err = be.BatchEmbed(ctx, prefixed)
	} else {
		res, err = BatchFallback(ctx, e.inner, prefixed)
	}
	if err != nil {
		return BatchEmbeddingResult{}, fmt.Errorf("instruction batch embed: %w", err)
	}
	return res, nil
}

// HealthCheck delegates to inner when it supports health checks.
func (e *InstructionEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := e.inner.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// NormalizeL2 scales v to unit length in place and returns it. Zero vectors are left untouched.
func NormalizeL2(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i, f := range v {
		v[i] = float32(float64(f) * inv)
	}
	return v
}
