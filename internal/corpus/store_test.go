package corpus

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/docuchat/ragengine/internal/rag"
)

// addDoc stores a document with one fragment per embedding, all owned by the
// given corpus.
func addDoc(t *testing.T, s *Store, corpusID, docID, filename string, embeddings ...[]float32) {
	t.Helper()
	s.Ensure(corpusID)

	doc := rag.Document{
		ID:        docID,
		CorpusID:  corpusID,
		Filename:  filename,
		CreatedAt: time.Now(),
	}
	fragments := make([]rag.Fragment, len(embeddings))
	for i, e := range embeddings {
		fragments[i] = rag.Fragment{
			ID:         docID + "-" + string(rune('a'+i)),
			DocumentID: docID,
			CorpusID:   corpusID,
			Content:    "fragment " + string(rune('a'+i)),
			Embedding:  e,
			Index:      i,
		}
	}
	if err := s.AddDocument(context.Background(), doc, fragments); err != nil {
		t.Fatalf("add document %s: %v", docID, err)
	}
}

func Test_Cosine(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"zero left", []float32{0, 0}, []float32{1, 2}, 0},
		{"zero right", []float32{1, 2}, []float32{0, 0}, 0},
		{"both zero", []float32{0, 0}, []float32{0, 0}, 0},
		{"scaled", []float32{1, 1}, []float32{5, 5}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func Test_Store_EnsureIdempotent(t *testing.T) {
	t.Parallel()
	s := NewStore()
	defer s.Close()

	_, created := s.Ensure("c1")
	if !created {
		t.Error("first Ensure should create the corpus")
	}
	_, created = s.Ensure("c1")
	if created {
		t.Error("second Ensure should not create")
	}
}

func Test_Store_Search_RankedAndThresholded(t *testing.T) {
	t.Parallel()
	s := NewStore()
	defer s.Close()

	addDoc(t, s, "c1", "d1", "policy.txt",
		[]float32{1, 0, 0},       // sim 1.0 to query
		[]float32{0.9, 0.1, 0},   // high
		[]float32{0.1, 0.9, 0.1}, // low
		[]float32{0, 1, 0},       // orthogonal, sim 0
	)

	query := []float32{1, 0, 0}
	results, err := s.Search(context.Background(), "c1", query, 0.3, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("want 2 results above 0.3, got %d", len(results))
	}
	if results[0].Similarity < results[1].Similarity {
		t.Error("results not sorted descending by similarity")
	}
	if results[0].Fragment.Index != 0 {
		t.Errorf("best match should be fragment 0, got %d", results[0].Fragment.Index)
	}
	for _, r := range results {
		if r.Filename != "policy.txt" {
			t.Errorf("filename not resolved: %q", r.Filename)
		}
	}
}

func Test_Store_Search_ThresholdMonotonicity(t *testing.T) {
	t.Parallel()
	s := NewStore()
	defer s.Close()

	addDoc(t, s, "c1", "d1", "a.txt",
		[]float32{1, 0, 0},
		[]float32{0.8, 0.6, 0},
		[]float32{0.5, 0.8, 0.3},
		[]float32{0.2, 0.9, 0.4},
	)

	query := []float32{1, 0, 0}
	prev := -1
	for _, threshold := range []float64{0.5, 0.4, 0.3, 0.25, 0.1, 0} {
		results, err := s.Search(context.Background(), "c1", query, threshold, 100)
		if err != nil {
			t.Fatalf("search at %v: %v", threshold, err)
		}
		if prev >= 0 && len(results) < prev {
			t.Errorf("lowering threshold to %v decreased results: %d -> %d", threshold, prev, len(results))
		}
		prev = len(results)
	}
}

func Test_Store_Search_MaxResults(t *testing.T) {
	t.Parallel()
	s := NewStore()
	defer s.Close()

	addDoc(t, s, "c1", "d1", "a.txt",
		[]float32{1, 0}, []float32{0.9, 0.1}, []float32{0.8, 0.2}, []float32{0.7, 0.3},
	)
	results, err := s.Search(context.Background(), "c1", []float32{1, 0}, 0, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("want 2 results, got %d", len(results))
	}
}

func Test_Store_Search_UnknownCorpus(t *testing.T) {
	t.Parallel()
	s := NewStore()
	defer s.Close()

	_, err := s.Search(context.Background(), "missing", []float32{1, 0}, 0.3, 5)
	if !errors.Is(err, rag.ErrCorpusNotFound) {
		t.Errorf("want ErrCorpusNotFound, got %v", err)
	}
}

func Test_Store_Search_EmptyCorpus(t *testing.T) {
	t.Parallel()
	s := NewStore()
	defer s.Close()

	s.Ensure("empty")
	results, err := s.Search(context.Background(), "empty", []float32{1, 0}, 0.3, 5)
	if err != nil {
		t.Fatalf("empty corpus must not error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("want no results, got %d", len(results))
	}
}

func Test_Store_Search_CorpusIsolation(t *testing.T) {
	t.Parallel()
	s := NewStore()
	defer s.Close()

	addDoc(t, s, "c1", "d1", "a.txt", []float32{1, 0, 0})
	addDoc(t, s, "c2", "d2", "b.txt", []float32{1, 0, 0})

	results, err := s.Search(context.Background(), "c1", []float32{1, 0, 0}, 0.5, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("want 1 result, got %d", len(results))
	}
	if results[0].Fragment.CorpusID != "c1" {
		t.Errorf("leaked fragment from corpus %s", results[0].Fragment.CorpusID)
	}
}

func Test_Store_DimensionMismatchFailsLoudly(t *testing.T) {
	t.Parallel()
	s := NewStore()
	defer s.Close()

	addDoc(t, s, "c1", "d1", "a.txt", []float32{1, 0, 0})

	// Storing a fragment with a different dimension must be rejected whole.
	doc := rag.Document{ID: "d2", CorpusID: "c1", Filename: "b.txt"}
	fragments := []rag.Fragment{
		{ID: "f1", DocumentID: "d2", CorpusID: "c1", Embedding: []float32{1, 0, 0}},
		{ID: "f2", DocumentID: "d2", CorpusID: "c1", Embedding: []float32{1, 0}},
	}
	err := s.AddDocument(context.Background(), doc, fragments)
	if !errors.Is(err, rag.ErrDimensionMismatch) {
		t.Fatalf("want ErrDimensionMismatch, got %v", err)
	}

	// Nothing from the rejected document may be visible.
	c, _ := s.Get("c1")
	if c.FragmentCount != 1 {
		t.Errorf("counter corrupted by failed write: %d", c.FragmentCount)
	}
	if len(s.Documents("c1")) != 1 {
		t.Errorf("rejected document partially stored")
	}

	// Searching with the wrong query dimension also fails loudly.
	if _, err := s.Search(context.Background(), "c1", []float32{1, 0}, 0, 5); !errors.Is(err, rag.ErrDimensionMismatch) {
		t.Errorf("want ErrDimensionMismatch for query, got %v", err)
	}
}

func Test_Store_CountersTransactional(t *testing.T) {
	t.Parallel()
	s := NewStore()
	defer s.Close()

	addDoc(t, s, "c1", "d1", "a.txt", []float32{1, 0}, []float32{0, 1})
	addDoc(t, s, "c1", "d2", "b.txt", []float32{1, 1})

	c, ok := s.Get("c1")
	if !ok {
		t.Fatal("corpus missing")
	}
	if c.FragmentCount != 3 {
		t.Errorf("corpus fragment count: want 3, got %d", c.FragmentCount)
	}
	docs := s.Documents("c1")
	total := 0
	for _, d := range docs {
		total += d.FragmentCount
	}
	if total != 3 {
		t.Errorf("document fragment counts: want 3, got %d", total)
	}
}

func Test_Store_RemoveCascades(t *testing.T) {
	t.Parallel()
	s := NewStore()
	defer s.Close()

	addDoc(t, s, "c1", "d1", "a.txt", []float32{1, 0})
	addDoc(t, s, "c2", "d2", "b.txt", []float32{0, 1})

	s.Remove(context.Background(), "c1")

	if _, ok := s.Get("c1"); ok {
		t.Error("corpus still present after Remove")
	}
	if len(s.Documents("c1")) != 0 {
		t.Error("documents survived corpus removal")
	}
	if _, err := s.Search(context.Background(), "c1", []float32{1, 0}, 0, 5); !errors.Is(err, rag.ErrCorpusNotFound) {
		t.Errorf("want ErrCorpusNotFound after removal, got %v", err)
	}

	// The other corpus is untouched.
	results, err := s.Search(context.Background(), "c2", []float32{0, 1}, 0.5, 5)
	if err != nil {
		t.Fatalf("search surviving corpus: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("surviving corpus lost fragments: %d", len(results))
	}
}

func Test_Store_EvictExpired(t *testing.T) {
	t.Parallel()
	s := NewStore()
	defer s.Close()

	addDoc(t, s, "old", "d1", "a.txt", []float32{1, 0})
	addDoc(t, s, "fresh", "d2", "b.txt", []float32{0, 1})

	// Age the idle corpus directly.
	s.mu.Lock()
	s.corpora["old"].LastAccess = time.Now().Add(-48 * time.Hour)
	s.mu.Unlock()

	n := s.EvictExpired(context.Background(), 24*time.Hour)
	if n != 1 {
		t.Fatalf("want 1 eviction, got %d", n)
	}
	if _, ok := s.Get("old"); ok {
		t.Error("expired corpus survived")
	}
	if _, ok := s.Get("fresh"); !ok {
		t.Error("fresh corpus was evicted")
	}
}

func Test_Store_TouchUnknownCorpus(t *testing.T) {
	t.Parallel()
	s := NewStore()
	defer s.Close()

	if err := s.Touch("nope"); !errors.Is(err, rag.ErrCorpusNotFound) {
		t.Errorf("want ErrCorpusNotFound, got %v", err)
	}
}

func Test_Store_HasContent(t *testing.T) {
	t.Parallel()
	s := NewStore()
	defer s.Close()

	if s.HasContent("c1") {
		t.Error("unknown corpus reported as having content")
	}
	s.Ensure("c1")
	if s.HasContent("c1") {
		t.Error("empty corpus must not be reported as queryable")
	}
	addDoc(t, s, "c1", "d1", "a.txt", []float32{1, 0})
	if !s.HasContent("c1") {
		t.Error("corpus with fragments not reported as queryable")
	}
}
