package chunker

import (
	"strings"
	"testing"
)

func Test_Split_EmptyInput(t *testing.T) {
	t.Parallel()
	if got := Split("", 500, 50); got != nil {
		t.Errorf("want nil for empty input, got %v", got)
	}
	if got := Split("   \n\t ", 500, 50); got != nil {
		t.Errorf("want nil for whitespace input, got %v", got)
	}
}

func Test_Split_SingleSentence(t *testing.T) {
	t.Parallel()
	chunks := Split("The quick brown fox jumps over the lazy dog.", 500, 50)
	if len(chunks) != 1 {
		t.Fatalf("want 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Index != 0 {
		t.Errorf("want index 0, got %d", chunks[0].Index)
	}
	if chunks[0].WordCount != 9 {
		t.Errorf("want 9 words, got %d", chunks[0].WordCount)
	}
}

func Test_Split_UnsplittableText(t *testing.T) {
	t.Parallel()
	// No sentence terminators at all — the full text must survive as one chunk.
	text := "no terminators here just words and more words"
	chunks := Split(text, 500, 50)
	if len(chunks) != 1 {
		t.Fatalf("want 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != text {
		t.Errorf("want full text preserved, got %q", chunks[0].Text)
	}
}

func Test_Split_GiantSentence(t *testing.T) {
	t.Parallel()
	// A single sentence larger than maxChunkSize must not be dropped or split.
	text := strings.Repeat("word ", 200) + "end."
	chunks := Split(text, 100, 50)
	if len(chunks) != 1 {
		t.Fatalf("want 1 chunk for a single giant sentence, got %d", len(chunks))
	}
	if !strings.HasSuffix(chunks[0].Text, "end.") {
		t.Errorf("tail of sentence lost: %q", chunks[0].Text[len(chunks[0].Text)-20:])
	}
}

func Test_Split_BoundedSize(t *testing.T) {
	t.Parallel()
	var b strings.Builder
	for range 40 {
		b.WriteString("This is a perfectly ordinary sentence about nothing much. ")
	}
	chunks := Split(b.String(), 400, 50)
	if len(chunks) < 2 {
		t.Fatalf("want multiple chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		// A chunk may exceed the limit only when a single sentence does;
		// these sentences are ~58 chars so every chunk must fit.
		if len(c.Text) > 400 {
			t.Errorf("chunk %d exceeds max size: %d chars", c.Index, len(c.Text))
		}
	}
}

func Test_Split_DenseIndices(t *testing.T) {
	t.Parallel()
	var b strings.Builder
	for i := range 30 {
		b.WriteString("Sentence number ")
		b.WriteString(strings.Repeat("x", i%7))
		b.WriteString(" goes here. ")
	}
	chunks := Split(b.String(), 120, 50)
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d, want %d", i, c.Index, i)
		}
	}
}

func Test_Split_TotalCoverage(t *testing.T) {
	t.Parallel()
	sentences := []string{
		"Returns are accepted within 30 days.",
		"Items must be in original packaging!",
		"Refunds are issued to the original payment method.",
		"Shipping costs are not refundable.",
		"Contact support for exchanges?",
		"Gift cards cannot be returned.",
	}
	text := strings.Join(sentences, " ")
	chunks := Split(text, 80, 50)

	// Every sentence must appear in at least one chunk — overlap may
	// duplicate sentences but none may be dropped.
	joined := ""
	for _, c := range chunks {
		joined += c.Text + " "
	}
	for _, s := range sentences {
		if !strings.Contains(joined, s) {
			t.Errorf("sentence dropped: %q", s)
		}
	}
}

func Test_Split_OverlapCarried(t *testing.T) {
	t.Parallel()
	text := "Alpha bravo charlie delta echo foxtrot. Golf hotel india juliet kilo lima. Mike november oscar papa quebec romeo."
	chunks := Split(text, 45, 50) // 50/10 = 5 trailing words of overlap
	if len(chunks) < 2 {
		t.Fatalf("want multiple chunks, got %d", len(chunks))
	}
	// The second chunk must start with trailing words of the first.
	firstWords := strings.Fields(chunks[0].Text)
	tail := strings.Join(firstWords[len(firstWords)-5:], " ")
	if !strings.HasPrefix(chunks[1].Text, tail) {
		t.Errorf("chunk 1 does not carry overlap %q: %q", tail, chunks[1].Text)
	}
}

func Test_Split_NoOverlapWhenHintSmall(t *testing.T) {
	t.Parallel()
	text := "First sentence here today. Second sentence here tomorrow. Third sentence here later."
	// overlapHint 5 → 5/10 = 0 words of overlap.
	chunks := Split(text, 30, 5)
	for i := 1; i < len(chunks); i++ {
		if strings.Contains(chunks[i].Text, chunks[i-1].Text) {
			t.Errorf("chunk %d unexpectedly contains chunk %d", i, i-1)
		}
	}
}

func Test_Split_Deterministic(t *testing.T) {
	t.Parallel()
	text := "One sentence. Two sentences! Three sentences? Four sentences. Five sentences."
	a := Split(text, 40, 50)
	b := Split(text, 40, 50)
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("chunk %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}
