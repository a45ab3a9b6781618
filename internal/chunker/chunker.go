// Package chunker merges page text into chunks bounded by a character budget.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/docingest/internal/domain"
)

// DefaultMaxChars is the default chunk budget in characters.
const DefaultMaxChars = 2000

// sectionSep separates sections inside a page and inside a chunk.
const sectionSep = "\n\n"

var sepLen = utf8.RuneCountInString(sectionSep)

// Builder assembles chunks on blank-line section boundaries.
type Builder struct {
	maxChars int
}

// New creates a Builder with the given budget.
func New(maxChars int) *Builder {
	return &Builder{maxChars: maxChars}
}

// MaxChars returns the configured budget.
func (b *Builder) MaxChars() int { return b.maxChars }

// Build turns ordered page texts into ordered chunks with ids starting at 0.
//
// Sections are never split: a buffer is flushed when appending the next section
// (plus its separator) would exceed the budget, so a chunk only exceeds the budget
// when it consists of a single oversized section.
func (b *Builder) Build(pages []domain.Page) ([]domain.Chunk, error) {
	if b.maxChars <= 0 {
		return nil, fmt.Errorf("%w: max chunk chars must be positive, got %d", domain.ErrChunking, b.maxChars)
	}

	var (
		chunks []domain.Chunk
		buf    strings.Builder
		bufLen int // characters in buf
	)

	flush := func() error {
		text := strings.TrimSpace(buf.String())
		buf.Reset()
		bufLen = 0
		if text == "" {
			// Sections are non-blank, so a flushed buffer never is.
			return fmt.Errorf("%w: blank chunk %d", domain.ErrChunking, len(chunks))
		}
		chunks = append(chunks, domain.Chunk{
			ID:        len(chunks),
			Text:      text,
			CharCount: utf8.RuneCountInString(text),
		})
		return nil
	}

	for _, page := range pages {
		for section := range strings.SplitSeq(page.Text, sectionSep) {
			if strings.TrimSpace(section) == "" {
				continue
			}
			n := utf8.RuneCountInString(section)

			if bufLen > 0 && bufLen+sepLen+n > b.maxChars {
				if err := flush(); err != nil {
					return nil, err
				}
			}
			if bufLen > 0 {
				buf.WriteString(sectionSep)
				bufLen += sepLen
			}
			buf.WriteString(section)
			bufLen += n
		}
	}

	if bufLen > 0 {
		if err := flush(); err != nil {
			return nil, err
		}
	}
	return chunks, nil
}
