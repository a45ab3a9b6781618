// Package selector ranks chunks by a keyword heuristic and picks the subset worth embedding.
package selector

import (
	"slices"
	"strings"

	"github.com/kailas-cloud/docingest/internal/domain"
	"github.com/kailas-cloud/docingest/internal/domain/pipeline"
)

// DefaultTopK caps the relevance selection.
const DefaultTopK = 15

// Score weights.
const (
	FirstChunkBonus    = 100
	KeywordBonus       = 50
	ImportantTermBonus = 10
	TermsSectionBonus  = 20
)

// sampleDivisor spreads the no-query sample over roughly ten chunks.
const sampleDivisor = 10

// ImportantTerms are contract terms that raise a chunk's score on their own.
// Matching is by substring, so "indemnif" covers indemnify and indemnification.
var ImportantTerms = []string{
	"term", "liability", "payment", "confidential", "termination",
	"indemnif", "compliance", "risk", "breach", "obligation",
}

// Result is the chosen subset and the path that produced it.
type Result struct {
	Chunks   []domain.Chunk
	Strategy string
}

// Selector picks chunks for embedding.
type Selector struct {
	topK int
}

// New creates a Selector. Non-positive topK falls back to DefaultTopK.
func New(topK int) *Selector {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Selector{topK: topK}
}

// TopK returns the selection cap.
func (s *Selector) TopK() int { return s.topK }

// Keywords lowercases the query and splits it on whitespace.
func Keywords(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// Score computes the relevance heuristic of c. keywords must already be lowercase.
func Score(c *domain.Chunk, keywords []string) int {
	text := strings.ToLower(c.Text)
	score := 0

	if c.ID == 0 {
		score += FirstChunkBonus
	}
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			score += KeywordBonus
		}
	}
	for _, term := range ImportantTerms {
		if strings.Contains(text, term) {
			score += ImportantTermBonus
		}
	}
	if strings.Contains(text, "term") || strings.Contains(text, "condition") {
		score += TermsSectionBonus
	}
	return score
}

// Choose runs the relevance path when the query yields keywords and the sampled path otherwise.
func (s *Selector) Choose(chunks []domain.Chunk, query string) Result {
	if kws := Keywords(query); len(kws) > 0 {
		return Result{Chunks: s.Select(chunks, kws), Strategy: pipeline.StrategyRelevance}
	}
	return Result{Chunks: s.Sample(chunks), Strategy: pipeline.StrategySampled}
}

// Select returns at most topK chunks with a positive score, highest score first and
// ascending chunk id among equal scores. The input slice is not modified.
func (s *Selector) Select(chunks []domain.Chunk, keywords []string) []domain.Chunk {
	kws := make([]string, len(keywords))
	for i, kw := range keywords {
		kws[i] = strings.ToLower(kw)
	}

	scored := make([]domain.Chunk, 0, len(chunks))
	for i := range chunks {
		score := Score(&chunks[i], kws)
		if score <= 0 {
			continue
		}
		c := chunks[i]
		c.Score = score
		scored = append(scored, c)
	}

	slices.SortStableFunc(scored, func(a, b domain.Chunk) int {
		if a.Score != b.Score {
			return b.Score - a.Score
		}
		return a.ID - b.ID
	})

	if len(scored) > s.topK {
		scored = scored[:s.topK]
	}
	return scored
}

// Sample returns chunk 0 and every Nth chunk after it, N = max(1, len/10).
// It is deterministic and spans the whole document.
func (s *Selector) Sample(chunks []domain.Chunk) []domain.Chunk {
	if len(chunks) == 0 {
		return nil
	}
	step := max(1, len(chunks)/sampleDivisor)

	out := make([]domain.Chunk, 0, len(chunks)/step+1)
	for i := 0; i < len(chunks); i += step {
		out = append(out, chunks[i])
	}
	return out
}
