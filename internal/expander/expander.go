// Package expander widens retrieval recall by producing paraphrased variants
// of a user query through a text-completion provider. The provider is treated
// as a pure (if unreliable) function from query to variant list: results are
// cached by normalized query text, and any provider failure degrades to a
// deterministic heuristic fallback — the engine stays fully functional, only
// less recall-effective, when the completion provider is unavailable.
package expander

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/docuchat/ragengine/internal/logging"
	"github.com/docuchat/ragengine/internal/rag"
)

const (
	// DefaultCacheCapacity is the number of variant lists retained before
	// oldest-inserted entries are evicted.
	DefaultCacheCapacity = 100

	// maxVariants caps the number of paraphrases requested from the
	// completion provider. The original query is always prepended, so a
	// full expansion is maxVariants+1 strings.
	maxVariants = 3
)

// expansionPrompt instructs the completion provider to paraphrase the query.
// One variant per line keeps parsing trivial and tolerant of chatty models.
const expansionPrompt = `Rephrase the following question in %d different ways to improve document search recall.
Use synonyms, and make some variants more specific and some more general.
Return only the rephrased questions, one per line, with no numbering or commentary.

Question: %s`

// Expander produces query variants via a rag.Completer, with a bounded FIFO
// cache keyed by normalized query text. Safe for concurrent use.
type Expander struct {
	// completer is the completion provider. May be nil, in which case only
	// the heuristic fallback is used.
	completer rag.Completer

	// capacity is the maximum number of cached variant lists.
	capacity int

	// mu guards cache and order.
	mu sync.Mutex

	// cache maps normalized query to its variant list (original first).
	cache map[string][]string

	// order records insertion order of keys for FIFO eviction.
	order []string
}

// New constructs an Expander. completer may be nil to disable LLM expansion
// entirely. A non-positive cacheCapacity falls back to DefaultCacheCapacity.
func New(completer rag.Completer, cacheCapacity int) *Expander {
	if cacheCapacity <= 0 {
		cacheCapacity = DefaultCacheCapacity
	}
	return &Expander{
		completer: completer,
		capacity:  cacheCapacity,
		cache:     make(map[string][]string, cacheCapacity),
	}
}

// Expand returns the query plus up to maxVariants paraphrases, original
// first, order-preserving, duplicates removed. On any provider failure the
// heuristic fallback is returned instead; expansion problems are logged, not
// raised.
func (e *Expander) Expand(ctx context.Context, query string) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	key := strings.ToLower(query)

	e.mu.Lock()
	if cached, ok := e.cache[key]; ok {
		e.mu.Unlock()
		return append([]string(nil), cached...)
	}
	e.mu.Unlock()

	variants := e.generate(ctx, query)

	e.mu.Lock()
	if _, ok := e.cache[key]; !ok {
		if len(e.cache) >= e.capacity && len(e.order) > 0 {
			oldest := e.order[0]
			e.order = e.order[1:]
			delete(e.cache, oldest)
		}
		e.cache[key] = variants
		e.order = append(e.order, key)
	}
	e.mu.Unlock()

	return append([]string(nil), variants...)
}

// Len returns the current number of cached variant lists.
func (e *Expander) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cache)
}

// generate asks the completion provider for paraphrases, falling back to
// heuristic rewrites when the provider is absent, errors, or returns nothing
// usable.
func (e *Expander) generate(ctx context.Context, query string) []string {
	if e.completer == nil {
		return heuristicVariants(query)
	}

	prompt := fmt.Sprintf(expansionPrompt, maxVariants, query)
	completion, err := e.completer.Complete(ctx, prompt)
	if err != nil {
		logging.FromContext(ctx).Warn("expander: completion provider unavailable, using heuristic fallback",
			slog.Any("error", err),
		)
		return heuristicVariants(query)
	}

	variants := parseVariants(query, completion)
	if len(variants) == 1 {
		// The model produced nothing beyond the original.
		return heuristicVariants(query)
	}
	return variants
}

// parseVariants extracts paraphrases from the completion, one per line,
// stripping list markers. The original query is always first; duplicates
// (case-insensitive) are removed; order is preserved.
func parseVariants(query, completion string) []string {
	variants := []string{query}
	seen := map[string]bool{strings.ToLower(query): true}

	for _, line := range strings.Split(completion, "\n") {
		v := strings.TrimSpace(line)
		v = strings.TrimLeft(v, "-*•0123456789.) ")
		v = strings.Trim(v, `"`)
		if v == "" {
			continue
		}
		lower := strings.ToLower(v)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		variants = append(variants, v)
		if len(variants) > maxVariants {
			break
		}
	}

	return variants
}

// heuristicVariants is the deterministic floor when no completion provider is
// usable: the original query plus cheap question-prefix rewrites.
func heuristicVariants(query string) []string {
	variants := []string{query}
	lower := strings.ToLower(query)

	if !strings.HasPrefix(lower, "what") {
		variants = append(variants, "what "+query)
	}
	if !strings.HasPrefix(lower, "how") {
		variants = append(variants, "how "+query)
	}
	return variants
}
