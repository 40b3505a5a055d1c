// Package chunker splits raw document text into overlapping, bounded-size
// fragments along sentence boundaries. Chunking is a pure function of its
// inputs; fragment indices are 0-based and dense.
package chunker

import (
	"regexp"
	"strings"
)

// Default chunking parameters, used when the caller passes zero values.
const (
	// DefaultMaxChunkSize is the default maximum fragment size in characters.
	DefaultMaxChunkSize = 500

	// DefaultOverlapHint is the default overlap hint. The actual overlap
	// carried between adjacent fragments is overlapHint/10 trailing words,
	// a soft continuity rather than an exact character count.
	DefaultOverlapHint = 50
)

// sentenceSplitter matches one sentence terminated by '.', '!' or '?'.
var sentenceSplitter = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)

// Chunk is one fragment of a split document.
type Chunk struct {
	// Text is the fragment content.
	Text string

	// Index is the 0-based position of this fragment within the document.
	Index int

	// WordCount is the number of whitespace-separated words in Text.
	WordCount int
}

// Split divides text into overlapping fragments of at most maxChunkSize
// characters, accumulating whole sentences until the next one would overflow.
// Each new fragment is seeded with overlapHint/10 trailing words from the
// previous one. Degenerate inputs (empty buffer limits, unsplittable text, a
// single sentence larger than maxChunkSize) still yield a fragment holding
// the full text — input is never silently dropped.
func Split(text string, maxChunkSize, overlapHint int) []Chunk {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	if overlapHint < 0 {
		overlapHint = 0
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	sentences := splitSentences(trimmed)
	overlapWords := overlapHint / 10

	var chunks []Chunk
	emit := func(content string) {
		chunks = append(chunks, Chunk{
			Text:      content,
			Index:     len(chunks),
			WordCount: len(strings.Fields(content)),
		})
	}

	// buf always contains at least one whole sentence once set, so emitted
	// fragments are never overlap-only.
	buf := ""
	for _, sentence := range sentences {
		if buf == "" {
			buf = sentence
			continue
		}
		if len(buf)+1+len(sentence) > maxChunkSize {
			emit(buf)
			if seed := tailWords(buf, overlapWords); seed != "" {
				buf = seed + " " + sentence
			} else {
				buf = sentence
			}
			continue
		}
		buf = buf + " " + sentence
	}
	if buf != "" {
		emit(buf)
	}

	return chunks
}

// splitSentences breaks text into trimmed sentences on '.', '!' and '?'.
// Text with no terminator (or a trailing unterminated clause) is preserved
// as its own sentence, so no input is lost.
func splitSentences(text string) []string {
	matches := sentenceSplitter.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return []string{text}
	}

	var sentences []string
	for _, m := range matches {
		s := strings.TrimSpace(text[m[0]:m[1]])
		if s != "" {
			sentences = append(sentences, s)
		}
	}

	// Keep any trailing text after the last terminator.
	last := matches[len(matches)-1][1]
	if rest := strings.TrimSpace(text[last:]); rest != "" {
		sentences = append(sentences, rest)
	}

	return sentences
}

// tailWords returns the last n whitespace-separated words of s, joined by
// single spaces. Returns "" when n is zero.
func tailWords(s string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[len(words)-n:], " ")
}
