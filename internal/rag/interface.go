// Package rag defines the core types and collaborator interfaces for the
// retrieval engine: corpora, documents, text fragments, and the embedding and
// completion providers the engine calls outward. Concrete provider
// implementations (OpenAI, Ollama, etc.) satisfy these interfaces so the
// engine never depends on a specific vendor.
package rag

import (
	"context"
	"time"
)

// Corpus is the unit of isolation for retrieval: a set of documents that are
// searched together. A corpus is created empty on first ingestion and reaped
// after a period of inactivity.
type Corpus struct {
	// ID is the unique identifier for this corpus.
	ID string

	// CreatedAt is when the corpus was created.
	CreatedAt time.Time

	// LastAccess is updated on every ingestion and query against this corpus.
	// The reaper evicts corpora whose LastAccess is older than the idle TTL.
	LastAccess time.Time

	// FragmentCount is the total number of fragments across all documents.
	// A corpus with zero fragments is never reported as queryable.
	FragmentCount int
}

// Document is one ingested file within a corpus. Documents are owned
// exclusively by their corpus and deleted only when the corpus is reaped.
type Document struct {
	// ID is the unique identifier for this document.
	ID string

	// CorpusID identifies the owning corpus.
	CorpusID string

	// Filename is the original upload filename, used for source attribution.
	Filename string

	// Preview is a short prefix of the document's content.
	Preview string

	// FragmentCount is the number of fragments produced from this document.
	FragmentCount int

	// CreatedAt is when the document was ingested.
	CreatedAt time.Time
}

// Fragment is a contiguous slice of a document's text plus its embedding.
// Fragments are immutable once stored.
type Fragment struct {
	// ID is the unique identifier for this fragment.
	ID string

	// DocumentID identifies the owning document.
	DocumentID string

	// CorpusID identifies the owning corpus. Denormalized from the document
	// so similarity search can scan fragments without a join.
	CorpusID string

	// Content is the raw text of the fragment.
	Content string

	// Embedding is the fragment's dense vector. Its length must match every
	// other embedding in the same corpus.
	Embedding []float32

	// Index is the 0-based position of this fragment within its document.
	Index int

	// WordCount is the approximate word count of Content.
	WordCount int

	// CreatedAt is when the fragment was stored.
	CreatedAt time.Time
}

// ScoredFragment pairs a fragment with its similarity to a query embedding.
type ScoredFragment struct {
	// Fragment is the matched fragment.
	Fragment Fragment

	// Similarity is the cosine similarity to the query embedding, in [-1, 1].
	Similarity float64

	// Filename is the owning document's filename, resolved at search time
	// for source attribution.
	Filename string
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer produces a text completion for a prompt. It is used only by the
// query expander; the engine must remain fully functional when it fails.
// Implementations must be safe to call from multiple goroutines.
type Completer interface {
	// Complete returns the model's completion for the given prompt.
	Complete(ctx context.Context, prompt string) (string, error)
}
