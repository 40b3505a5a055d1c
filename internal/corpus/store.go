// Package corpus implements the in-process chunk store: corpora, their
// documents, and the text fragments carrying embeddings, along with
// brute-force cosine similarity search and time-based eviction of idle
// corpora. The store lives for the process lifetime only — durability is an
// explicit non-goal of this engine.
package corpus

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/docuchat/ragengine/internal/logging"
	"github.com/docuchat/ragengine/internal/rag"
)

// SearchIndex is an optional external similarity index mirroring the store's
// fragment vectors (e.g. Qdrant). When attached, Search delegates to it and
// falls back to the in-memory brute-force scan on failure. The brute-force
// scan remains the correctness baseline; an index only changes speed.
// Implementations must be safe to call from multiple goroutines.
type SearchIndex interface {
	// Upsert mirrors a batch of fragments (with embeddings) into the index.
	Upsert(ctx context.Context, fragments []rag.Fragment) error

	// Search returns fragment ids and similarity scores for the corpus,
	// filtered to similarity >= threshold, best-first, at most maxResults.
	Search(ctx context.Context, corpusID string, queryEmbedding []float32, threshold float64, maxResults int) ([]string, []float64, error)

	// Remove deletes all of a corpus's vectors from the index.
	Remove(ctx context.Context, corpusID string) error

	// Close releases any resources held by the index.
	Close() error
}

// Store is the shared mutable state behind ingestion and query paths.
// It is an explicit object with its own lifecycle — construct with NewStore,
// release with Close — so tests can run multiple isolated instances.
// All methods are safe for concurrent use; the lock is read-heavy because
// queries vastly outnumber ingestions.
type Store struct {
	// mu guards every field below.
	mu sync.RWMutex

	// corpora maps corpus id to its metadata.
	corpora map[string]*rag.Corpus

	// documents maps document id to its metadata.
	documents map[string]*rag.Document

	// fragments is the flat fragment list scanned by Search. Each fragment
	// carries its corpus id so the scan needs no join.
	fragments []rag.Fragment

	// fragmentPos maps fragment id to its position in fragments, used to
	// resolve index search hits.
	fragmentPos map[string]int

	// dims records the embedding dimension per corpus. The first stored
	// fragment fixes it; later mismatches fail loudly.
	dims map[string]int

	// index is the optional external similarity index.
	index SearchIndex

	// closed marks the store as released.
	closed bool
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		corpora:     make(map[string]*rag.Corpus),
		documents:   make(map[string]*rag.Document),
		fragmentPos: make(map[string]int),
		dims:        make(map[string]int),
	}
}

// UseIndex attaches an external similarity index. Must be called before any
// fragments are stored so the index sees every vector.
func (s *Store) UseIndex(idx SearchIndex) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = idx
}

// Close releases the store and its attached index, if any.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.corpora = nil
	s.documents = nil
	s.fragments = nil
	s.fragmentPos = nil
	if s.index != nil {
		return s.index.Close()
	}
	return nil
}

// Ensure returns the corpus with the given id, creating it empty if absent.
// The second return reports whether the corpus was created by this call.
func (s *Store) Ensure(corpusID string) (rag.Corpus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.corpora[corpusID]; ok {
		return *c, false
	}
	now := time.Now()
	c := &rag.Corpus{
		ID:         corpusID,
		CreatedAt:  now,
		LastAccess: now,
	}
	s.corpora[corpusID] = c
	return *c, true
}

// Get returns a copy of the corpus metadata, or false if it does not exist.
func (s *Store) Get(corpusID string) (rag.Corpus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.corpora[corpusID]
	if !ok {
		return rag.Corpus{}, false
	}
	return *c, true
}

// Touch updates the corpus's last-access time, returning ErrCorpusNotFound
// if the corpus does not exist (e.g. just reaped by EvictExpired).
func (s *Store) Touch(corpusID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.corpora[corpusID]
	if !ok {
		return rag.ErrCorpusNotFound
	}
	c.LastAccess = time.Now()
	return nil
}

// HasContent reports whether the corpus exists and holds at least one
// fragment. A corpus with zero fragments is never reported as queryable.
func (s *Store) HasContent(corpusID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.corpora[corpusID]
	return ok && c.FragmentCount > 0
}

// AddDocument stores a document and its fragments and bumps the corpus and
// document fragment counters in one critical section: either everything is
// visible or nothing is. Fragment embeddings are validated against the
// corpus's dimension before anything is written, so a mismatch can never
// leave a partial write behind.
func (s *Store) AddDocument(ctx context.Context, doc rag.Document, fragments []rag.Fragment) error {
	s.mu.Lock()

	c, ok := s.corpora[doc.CorpusID]
	if !ok {
		s.mu.Unlock()
		return rag.ErrCorpusNotFound
	}

	// Validate dimensions before mutating anything.
	dim, fixed := s.dims[doc.CorpusID]
	for i := range fragments {
		n := len(fragments[i].Embedding)
		if !fixed {
			dim = n
			fixed = true
			continue
		}
		if n != dim {
			s.mu.Unlock()
			return rag.ErrDimensionMismatch
		}
	}

	doc.FragmentCount = len(fragments)
	s.documents[doc.ID] = &doc
	for i := range fragments {
		s.fragmentPos[fragments[i].ID] = len(s.fragments)
		s.fragments = append(s.fragments, fragments[i])
	}
	if len(fragments) > 0 {
		s.dims[doc.CorpusID] = dim
	}
	c.FragmentCount += len(fragments)
	c.LastAccess = time.Now()
	idx := s.index
	s.mu.Unlock()

	// Mirror to the external index outside the lock. A mirror failure does
	// not undo the in-memory write — search falls back to brute force.
	if idx != nil && len(fragments) > 0 {
		if err := idx.Upsert(ctx, fragments); err != nil {
			logging.FromContext(ctx).Warn("corpus: index upsert failed, brute-force search remains authoritative",
				slog.String("corpus_id", doc.CorpusID),
				slog.Any("error", err),
			)
		}
	}

	return nil
}

// Search computes cosine similarity between queryEmbedding and every fragment
// in the corpus, filters to similarity >= threshold, and returns the results
// best-first, at most maxResults. A corpus with no fragments yields an empty
// result with no error. The scan is deliberately brute-force and exact.
func (s *Store) Search(ctx context.Context, corpusID string, queryEmbedding []float32, threshold float64, maxResults int) ([]rag.ScoredFragment, error) {
	s.mu.RLock()
	c, ok := s.corpora[corpusID]
	if !ok {
		s.mu.RUnlock()
		return nil, rag.ErrCorpusNotFound
	}
	if c.FragmentCount == 0 {
		s.mu.RUnlock()
		return nil, nil
	}
	if dim, fixed := s.dims[corpusID]; fixed && len(queryEmbedding) != dim {
		s.mu.RUnlock()
		return nil, rag.ErrDimensionMismatch
	}
	idx := s.index
	s.mu.RUnlock()

	if idx != nil {
		results, err := s.searchIndexed(ctx, idx, corpusID, queryEmbedding, threshold, maxResults)
		if err == nil {
			return results, nil
		}
		logging.FromContext(ctx).Warn("corpus: index search failed, falling back to brute-force scan",
			slog.String("corpus_id", corpusID),
			slog.Any("error", err),
		)
	}

	return s.searchBruteForce(corpusID, queryEmbedding, threshold, maxResults), nil
}

// searchBruteForce is the exact linear scan over the corpus's fragments.
func (s *Store) searchBruteForce(corpusID string, queryEmbedding []float32, threshold float64, maxResults int) []rag.ScoredFragment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []rag.ScoredFragment
	for i := range s.fragments {
		f := &s.fragments[i]
		if f.CorpusID != corpusID {
			continue
		}
		sim := Cosine(queryEmbedding, f.Embedding)
		if sim < threshold {
			continue
		}
		sf := rag.ScoredFragment{Fragment: *f, Similarity: sim}
		if d, ok := s.documents[f.DocumentID]; ok {
			sf.Filename = d.Filename
		}
		results = append(results, sf)
	}

	// Stable sort keeps insertion order among equal similarities, so ranking
	// is deterministic for a fixed corpus.
	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Similarity > results[b].Similarity
	})

	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	return results
}

// searchIndexed resolves an external index's hits back to stored fragments.
func (s *Store) searchIndexed(ctx context.Context, idx SearchIndex, corpusID string, queryEmbedding []float32, threshold float64, maxResults int) ([]rag.ScoredFragment, error) {
	ids, scores, err := idx.Search(ctx, corpusID, queryEmbedding, threshold, maxResults)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]rag.ScoredFragment, 0, len(ids))
	for i, id := range ids {
		pos, ok := s.fragmentPos[id]
		if !ok {
			continue
		}
		f := s.fragments[pos]
		sf := rag.ScoredFragment{Fragment: f, Similarity: scores[i]}
		if d, ok := s.documents[f.DocumentID]; ok {
			sf.Filename = d.Filename
		}
		results = append(results, sf)
	}
	return results, nil
}

// Documents returns copies of the corpus's documents, unordered.
func (s *Store) Documents(corpusID string) []rag.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []rag.Document
	for _, d := range s.documents {
		if d.CorpusID == corpusID {
			docs = append(docs, *d)
		}
	}
	return docs
}

// Remove deletes the corpus together with all of its documents and fragments.
// Removing an unknown corpus is a no-op.
func (s *Store) Remove(ctx context.Context, corpusID string) {
	s.mu.Lock()

	if _, ok := s.corpora[corpusID]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.corpora, corpusID)
	delete(s.dims, corpusID)
	for id, d := range s.documents {
		if d.CorpusID == corpusID {
			delete(s.documents, id)
		}
	}

	kept := s.fragments[:0]
	for i := range s.fragments {
		if s.fragments[i].CorpusID != corpusID {
			kept = append(kept, s.fragments[i])
		}
	}
	s.fragments = kept
	s.fragmentPos = make(map[string]int, len(s.fragments))
	for i := range s.fragments {
		s.fragmentPos[s.fragments[i].ID] = i
	}
	idx := s.index
	s.mu.Unlock()

	if idx != nil {
		if err := idx.Remove(ctx, corpusID); err != nil {
			logging.FromContext(ctx).Warn("corpus: index remove failed",
				slog.String("corpus_id", corpusID),
				slog.Any("error", err),
			)
		}
	}
}

// EvictExpired removes every corpus whose last access is older than maxIdle
// and returns the number of corpora removed. It is safe to run concurrently
// with in-flight queries: a query racing a reap of its corpus surfaces
// ErrCorpusNotFound cleanly.
func (s *Store) EvictExpired(ctx context.Context, maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	s.mu.RLock()
	var expired []string
	for id, c := range s.corpora {
		if c.LastAccess.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range expired {
		s.Remove(ctx, id)
	}
	return len(expired)
}

// Cosine returns the cosine similarity dot(a,b) / (‖a‖·‖b‖) of two vectors.
// The similarity of any zero-norm vector is defined as 0 — never a division
// by zero. Vectors of unequal length compare over the shorter prefix; the
// store's dimension check makes that case unreachable in practice.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		av := float64(a[i])
		bv := float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
