package store

import (
	"context"
	"fmt"
	"testing"
)

// openTestStore opens an in-memory SQLiteStore for use in tests.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_Store_RecordAndRecent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	e := Entry{
		CorpusID:   "c1",
		Query:      "what is the return window",
		Variant:    "how long do I have to return an item",
		Confidence: 72,
		Sources:    []string{"returns.txt", "faq.txt"},
	}
	if err := s.Record(ctx, e); err != nil {
		t.Fatalf("record: %v", err)
	}

	entries, err := s.Recent(ctx, "c1", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("want 1 entry, got %d", len(entries))
	}
	got := entries[0]
	if got.Query != e.Query || got.Variant != e.Variant || got.Confidence != e.Confidence {
		t.Errorf("entry mismatch: got %+v", got)
	}
	if len(got.Sources) != 2 || got.Sources[0] != "returns.txt" || got.Sources[1] != "faq.txt" {
		t.Errorf("sources mismatch: got %v", got.Sources)
	}
	if got.CreatedAt.IsZero() {
		t.Error("want CreatedAt populated")
	}
}

func Test_Store_RecentLimitRespected(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for i := range 6 {
		e := Entry{CorpusID: "c2", Query: fmt.Sprintf("q%d", i), Variant: "v", Confidence: 50, Sources: []string{}}
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	entries, err := s.Recent(ctx, "c2", 4)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 4 {
		t.Errorf("want 4 entries, got %d", len(entries))
	}
}

func Test_Store_NewestFirstOrdering(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	queries := []string{"first", "second", "third"}
	for _, q := range queries {
		if err := s.Record(ctx, Entry{CorpusID: "c3", Query: q, Variant: q, Confidence: 30, Sources: []string{}}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	entries, err := s.Recent(ctx, "c3", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	want := []string{"third", "second", "first"}
	for i, w := range want {
		if entries[i].Query != w {
			t.Errorf("entry[%d]: want %q, got %q", i, w, entries[i].Query)
		}
	}
}

func Test_Store_CorpusIsolation(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Record(ctx, Entry{CorpusID: "cx", Query: "from x", Variant: "from x", Confidence: 40, Sources: []string{}}); err != nil {
		t.Fatalf("record x: %v", err)
	}
	if err := s.Record(ctx, Entry{CorpusID: "cy", Query: "from y", Variant: "from y", Confidence: 40, Sources: []string{}}); err != nil {
		t.Fatalf("record y: %v", err)
	}

	entriesX, err := s.Recent(ctx, "cx", 10)
	if err != nil {
		t.Fatalf("recent x: %v", err)
	}
	entriesY, err := s.Recent(ctx, "cy", 10)
	if err != nil {
		t.Fatalf("recent y: %v", err)
	}

	if len(entriesX) != 1 || entriesX[0].Query != "from x" {
		t.Errorf("corpus x isolation failed: got %v", entriesX)
	}
	if len(entriesY) != 1 || entriesY[0].Query != "from y" {
		t.Errorf("corpus y isolation failed: got %v", entriesY)
	}
}

func Test_Store_EmptyCorpusReturnsNil(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	entries, err := s.Recent(ctx, "missing", 10)
	if err != nil {
		t.Fatalf("recent empty: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("want 0 entries, got %d", len(entries))
	}
}
