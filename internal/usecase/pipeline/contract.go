package pipeline

import (
	"context"

	"github.com/kailas-cloud/docingest/internal/domain"
	dompipeline "github.com/kailas-cloud/docingest/internal/domain/pipeline"
	"github.com/kailas-cloud/docingest/internal/parser"
	"github.com/kailas-cloud/docingest/internal/selector"
	"github.com/kailas-cloud/docingest/internal/usecase/embedding"
	"github.com/kailas-cloud/docingest/internal/usecase/upload"
)

// Parser opens a document as a stream of page batches.
type Parser interface {
	Open(ctx context.Context, src parser.Source) (*parser.Stream, error)
}

// Chunker merges pages into bounded chunks.
type Chunker interface {
	Build(pages []domain.Page) ([]domain.Chunk, error)
}

// Selector picks the chunks worth embedding.
type Selector interface {
	Choose(chunks []domain.Chunk, query string) selector.Result
}

// Embedder attaches vectors to chunks.
type Embedder interface {
	EmbedChunks(ctx context.Context, chunks []domain.Chunk) ([]domain.Chunk, embedding.Report, error)
}

// Uploader writes embedded chunks to the vector index.
type Uploader interface {
	Upload(ctx context.Context, source string, chunks []domain.Chunk) upload.Summary
}

// Pipeline processes one document.
type Pipeline interface {
	Run(ctx context.Context, req Request) *dompipeline.Stats
}
