package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrParse signals that a document source could not be opened or decoded.
	ErrParse = errors.New("parse error")
	// ErrChunking signals malformed chunker input or configuration.
	ErrChunking = errors.New("chunking error")
	// ErrSelection is reserved for selector failures. An empty selection is not an error.
	ErrSelection = errors.New("selection error")
	// ErrEmbedding signals a failed embed-batch call. Partial results are never returned with it.
	ErrEmbedding = errors.New("embedding error")
	// ErrUpload signals a failed upsert of one index batch.
	ErrUpload = errors.New("upload error")
	// ErrEmptyDocument signals a document with zero pages.
	ErrEmptyDocument = errors.New("empty document")

	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrRecordNotFound signals a missing index record.
	ErrRecordNotFound = errors.New("record not found")
	// ErrInvalidSource signals a source that names neither a path, a URI nor data.
	ErrInvalidSource = errors.New("invalid source")
)

// DimMismatchError wraps ErrVectorDimMismatch with the expected and actual sizes.
type DimMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %d, got %d", ErrVectorDimMismatch.Error(), e.Expected, e.Actual)
}

func (e *DimMismatchError) Unwrap() error { return ErrVectorDimMismatch }
