package parser

import (
	"errors"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// pdfPages extracts plain text page by page. Only the page being read is decoded.
type pdfPages struct {
	r      *pdf.Reader
	total  int
	cur    int
	bad    int
	closer io.Closer
}

func openPDF(ra io.ReaderAt, size int64, closer io.Closer) (doc pageReader, err error) {
	// The decoder panics on some malformed cross-reference tables.
	defer func() {
		if rec := recover(); rec != nil {
			doc, err = nil, fmt.Errorf("decode pdf: %v", rec)
		}
	}()

	r, err := pdf.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("decode pdf: %w", err)
	}
	total := r.NumPage()
	if total < 0 {
		return nil, errors.New("decode pdf: negative page count")
	}
	return &pdfPages{r: r, total: total, closer: closer}, nil
}

func (d *pdfPages) nextPage() (string, bool, error) {
	if d.cur >= d.total {
		return "", false, nil
	}
	d.cur++ // pdf pages are 1-based
	text, ok := extractPage(d.r, d.cur)
	if !ok {
		d.bad++
	}
	return text, true, nil
}

// extractPage never fails: a page the decoder chokes on becomes an empty string.
func extractPage(r *pdf.Reader, n int) (text string, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			text, ok = "", false
		}
	}()

	p := r.Page(n)
	if p.V.IsNull() {
		return "", false
	}
	text, err := p.GetPlainText(nil)
	if err != nil {
		return "", false
	}
	return text, true
}

func (d *pdfPages) failed() int { return d.bad }

func (d *pdfPages) Close() error {
	if d.closer == nil {
		return nil
	}
	c := d.closer
	d.closer = nil
	return c.Close()
}
