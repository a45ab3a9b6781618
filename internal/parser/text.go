package parser

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"unicode/utf8"
)

// maxPageBytes bounds a single text page.
const maxPageBytes = 16 << 20

// sniffLen is how much of a local file is inspected before opening it.
const sniffLen = 512

// textPages reads paginated plain text; pages are separated by form feeds.
type textPages struct {
	sc     *bufio.Scanner
	closer io.Closer
}

func newTextPages(r io.Reader, closer io.Closer) *textPages {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxPageBytes)
	sc.Split(scanPages)
	return &textPages{sc: sc, closer: closer}
}

// errNotText marks a non-PDF source that is not UTF-8 text (e.g. an office document).
var errNotText = errors.New("unsupported format: not a PDF or UTF-8 text")

func checkText(b []byte) error {
	if !utf8.Valid(b) || bytes.IndexByte(b, 0) >= 0 {
		return errNotText
	}
	return nil
}

// sniffText checks the leading bytes of a file. A rune cut off by the window is allowed.
func sniffText(head []byte) error {
	for i := 0; i < len(head); {
		r, size := utf8.DecodeRune(head[i:])
		if r == utf8.RuneError && size <= 1 {
			if !utf8.FullRune(head[i:]) {
				return nil
			}
			return errNotText
		}
		if r == 0 {
			return errNotText
		}
		i += size
	}
	return nil
}

func (t *textPages) nextPage() (string, bool, error) {
	if t.sc.Scan() {
		if err := checkText(t.sc.Bytes()); err != nil {
			return "", false, err
		}
		return t.sc.Text(), true, nil
	}
	if err := t.sc.Err(); err != nil {
		return "", false, err
	}
	return "", false, nil
}

func (t *textPages) failed() int { return 0 }

func (t *textPages) Close() error {
	if t.closer == nil {
		return nil
	}
	c := t.closer
	t.closer = nil
	return c.Close()
}

// scanPages is a bufio.SplitFunc splitting on '\f'.
func scanPages(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\f'); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
