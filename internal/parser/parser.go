// Package parser streams page text out of documents in fixed-size batches.
package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kailas-cloud/docingest/internal/domain"
)

// DefaultBatchSize is the number of pages per emitted batch.
const DefaultBatchSize = 5

var pdfMagic = []byte("%PDF-")

// Parser opens document sources as page streams.
type Parser struct {
	batchSize int
	fetchers  map[string]Fetcher
}

// Option configures a Parser.
type Option func(*Parser)

// WithFetcher registers a fetcher for URIs with the given scheme.
func WithFetcher(scheme string, f Fetcher) Option {
	return func(p *Parser) {
		p.fetchers[strings.ToLower(scheme)] = f
	}
}

// New creates a Parser. Non-positive batchSize falls back to DefaultBatchSize.
func New(batchSize int, opts ...Option) *Parser {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	p := &Parser{batchSize: batchSize, fetchers: make(map[string]Fetcher)}
	for _, o := range opts {
		o(p)
	}
	return p
}

// BatchSize returns the configured batch size.
func (p *Parser) BatchSize() int { return p.batchSize }

// Open prepares a lazy page stream over src.
// A source that cannot be opened or decoded fails with domain.ErrParse.
func (p *Parser) Open(ctx context.Context, src Source) (*Stream, error) {
	pages, err := p.open(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrParse, src, err)
	}
	return &Stream{pages: pages, batchSize: p.batchSize}, nil
}

// ReadPages drains the whole stream of src.
func (p *Parser) ReadPages(ctx context.Context, src Source) ([]domain.Page, error) {
	stream, err := p.Open(ctx, src)
	if err != nil {
		return nil, err
	}
	defer func() { _ = stream.Close() }()

	var all []domain.Page
	for {
		batch, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return all, nil
		}
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
	}
}

func (p *Parser) open(ctx context.Context, src Source) (pageReader, error) {
	switch {
	case src.Data != nil:
		return openBytes(src.Data, src.Name)
	case src.Path != "":
		return openFile(src.Path)
	case src.URI != "":
		f, ok := p.fetchers[scheme(src.URI)]
		if !ok {
			return nil, fmt.Errorf("no fetcher for scheme %q", scheme(src.URI))
		}
		data, err := f.Fetch(ctx, src.URI)
		if err != nil {
			return nil, fmt.Errorf("fetch: %w", err)
		}
		return openBytes(data, src.URI)
	default:
		return nil, domain.ErrInvalidSource
	}
}

func openFile(path string) (pageReader, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}

	head := make([]byte, sniffLen)
	n, _ := f.ReadAt(head, 0)
	if isPDF(head[:n], path) {
		r, err := openPDF(f, st.Size(), f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		return r, nil
	}
	if err := sniffText(head[:n]); err != nil {
		_ = f.Close()
		return nil, err
	}
	return newTextPages(f, f), nil
}

func openBytes(data []byte, name string) (pageReader, error) {
	if isPDF(data, name) {
		return openPDF(bytes.NewReader(data), int64(len(data)), nil)
	}
	if err := checkText(data); err != nil {
		return nil, err
	}
	return newTextPages(bytes.NewReader(data), nil), nil
}

func isPDF(head []byte, name string) bool {
	return bytes.HasPrefix(head, pdfMagic) || strings.EqualFold(filepath.Ext(name), ".pdf")
}

// Stream is a finite, non-restartable sequence of page batches.
type Stream struct {
	pages     pageReader
	batchSize int
	next      int
	done      bool
}

// Next returns the next batch of up to batch-size pages in page order.
// It returns io.EOF once the document is exhausted.
func (s *Stream) Next(ctx context.Context) ([]domain.Page, error) {
	if s.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("read pages: %w", err)
	}

	batch := make([]domain.Page, 0, s.batchSize)
	for len(batch) < s.batchSize {
		text, ok, err := s.pages.nextPage()
		if err != nil {
			s.finish()
			return nil, fmt.Errorf("%w: page %d: %w", domain.ErrParse, s.next, err)
		}
		if !ok {
			s.finish()
			break
		}
		batch = append(batch, domain.Page{Index: s.next, Text: text})
		s.next++
	}

	if len(batch) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

// PagesRead returns the number of pages emitted so far.
func (s *Stream) PagesRead() int { return s.next }

// FailedPages returns how many pages yielded no text because extraction failed.
func (s *Stream) FailedPages() int { return s.pages.failed() }

// Close releases the underlying source.
func (s *Stream) Close() error {
	s.done = true
	if err := s.pages.Close(); err != nil {
		return fmt.Errorf("close source: %w", err)
	}
	return nil
}

func (s *Stream) finish() {
	s.done = true
	_ = s.pages.Close()
}

// pageReader yields page texts one at a time.
type pageReader interface {
	nextPage() (text string, ok bool, err error)
	failed() int
	Close() error
}
