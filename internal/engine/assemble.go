package engine

import (
	"strings"
	"unicode/utf8"

	"github.com/docuchat/ragengine/internal/rag"
)

// AssembleContext concatenates fragment contents in ranked order into a
// prompt context of at most maxChars characters, each fragment followed by a
// blank line. When the next fragment would overflow but the remaining budget
// is at least minPartialChars, a truncated slice of it is appended with an
// ellipsis — partial evidence beats none. The returned source list holds the
// distinct filenames of the fragments actually included, in inclusion order.
// Empty input yields an empty context, not an error.
func AssembleContext(results []rag.ScoredFragment, maxChars, minPartialChars int) (string, []string) {
	sources := []string{}
	if len(results) == 0 {
		return "", sources
	}

	var b strings.Builder
	seen := make(map[string]bool, len(results))

	include := func(filename string) {
		if filename != "" && !seen[filename] {
			seen[filename] = true
			sources = append(sources, filename)
		}
	}

	for _, r := range results {
		content := r.Fragment.Content

		sep := 0
		if b.Len() > 0 {
			sep = 2 // "\n\n"
		}

		if b.Len()+sep+len(content) > maxChars {
			remaining := maxChars - b.Len() - sep
			if remaining >= minPartialChars {
				if sep > 0 {
					b.WriteString("\n\n")
				}
				b.WriteString(truncateAtRune(content, remaining))
				b.WriteString("...")
				include(r.Filename)
			}
			break
		}

		if sep > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(content)
		include(r.Filename)
	}

	return b.String(), sources
}

// truncateAtRune cuts s to at most n bytes without splitting a multi-byte
// rune, backing up to the nearest rune boundary.
func truncateAtRune(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
