package rag

import (
	"errors"
	"fmt"
)

// ErrCorpusNotFound is returned when an operation targets a corpus id that
// does not exist or has been reaped. Callers surface it; the engine never
// retries it.
var ErrCorpusNotFound = errors.New("rag: corpus not found")

// ErrDimensionMismatch is returned when a fragment's embedding length differs
// from the embeddings already stored in the same corpus. Mixing dimensions
// would silently corrupt similarity scores, so the store fails loudly instead.
var ErrDimensionMismatch = errors.New("rag: embedding dimension mismatch")

// IngestionError reports the failure of a single file during a batch
// ingestion. Failures are isolated per file: other files in the same batch
// continue, and the failed file's fragments are never committed.
type IngestionError struct {
	// Filename is the upload filename of the file that failed.
	Filename string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *IngestionError) Error() string {
	return fmt.Sprintf("rag: ingestion failed for %q: %v", e.Filename, e.Err)
}

// Unwrap returns the underlying cause for errors.Is / errors.As.
func (e *IngestionError) Unwrap() error { return e.Err }

// ProviderError wraps a failure from an external embedding or completion
// provider. These are transient: callers may retry with backoff, but the
// engine itself does not retry internally to avoid amplifying rate-limit
// pressure on the provider.
type ProviderError struct {
	// Provider names the collaborator that failed: "embedding" or "completion".
	Provider string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("rag: %s provider: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying cause for errors.Is / errors.As.
func (e *ProviderError) Unwrap() error { return e.Err }
