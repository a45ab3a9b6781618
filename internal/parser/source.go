package parser

import (
	"context"
	"path/filepath"
	"strings"
)

// Fetcher downloads a remote document addressed by URI (e.g. s3://bucket/key).
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// Source addresses a document: a local path, a remote URI or an in-memory buffer.
// Exactly one of Path, URI or Data is expected to be set.
type Source struct {
	Path string
	URI  string
	Name string
	Data []byte
}

// FromPath addresses a local file. The name is the absolute path, so documents with the
// same base name in different directories stay distinct in the index.
func FromPath(path string) Source {
	name := filepath.Clean(path)
	if abs, err := filepath.Abs(name); err == nil {
		name = abs
	}
	return Source{Path: path, Name: name}
}

// FromBytes addresses an uploaded document held in memory.
func FromBytes(name string, data []byte) Source {
	return Source{Name: name, Data: data}
}

// FromURI addresses a remote document. file:// URIs are treated as local paths.
func FromURI(uri string) Source {
	if path, ok := strings.CutPrefix(uri, "file://"); ok {
		return FromPath(path)
	}
	return Source{URI: uri, Name: uri}
}

// Resolve picks FromURI for scheme-qualified strings and FromPath otherwise.
func Resolve(s string) Source {
	if strings.Contains(s, "://") {
		return FromURI(s)
	}
	return FromPath(s)
}

// String returns a display name for logs and stats.
func (s Source) String() string {
	switch {
	case s.Name != "":
		return s.Name
	case s.Path != "":
		return s.Path
	case s.URI != "":
		return s.URI
	default:
		return "<bytes>"
	}
}

func scheme(uri string) string {
	if i := strings.Index(uri, "://"); i > 0 {
		return strings.ToLower(uri[:i])
	}
	return ""
}
