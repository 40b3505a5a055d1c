package embedder

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/docuchat/ragengine/internal/rag"
)

// DefaultCacheCapacity is the default number of embedding vectors retained
// by a Cache before oldest-inserted entries are evicted.
const DefaultCacheCapacity = 1000

// Cache memoizes embedding vectors by normalized source text, bounded to a
// fixed capacity with insertion-order (FIFO) eviction. It is purely a
// performance layer: a cache miss changes latency and provider cost, never
// output. Safe for concurrent use.
//
// Provider failures propagate to the caller and are never cached — caching a
// sentinel vector for a failed lookup would silently poison similarity
// scores for that text for as long as the entry lived.
type Cache struct {
	// provider is the wrapped embedding provider, called on cache misses.
	provider rag.Embedder

	// capacity is the maximum number of entries retained.
	capacity int

	// mu guards entries and order.
	mu sync.Mutex

	// entries maps normalized text to its embedding vector.
	entries map[string][]float32

	// order records insertion order of keys for FIFO eviction.
	order []string
}

// NewCache wraps provider with a bounded memoizing cache. A non-positive
// capacity falls back to DefaultCacheCapacity.
func NewCache(provider rag.Embedder, capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Cache{
		provider: provider,
		capacity: capacity,
		entries:  make(map[string][]float32, capacity),
	}
}

// normalizeKey is the cache key derivation: trimmed and lowercased text.
func normalizeKey(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Embed returns the embedding for each input text, serving from cache where
// possible and batching the remaining misses into a single provider call.
// The returned slice is parallel to the input. On provider failure the whole
// call fails and nothing is cached.
func (c *Cache) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))

	// First pass: satisfy what we can from cache and collect distinct misses.
	missKeys := make([]string, 0, len(texts))
	missTexts := make([]string, 0, len(texts))
	seen := make(map[string]bool, len(texts))

	c.mu.Lock()
	for i, text := range texts {
		key := normalizeKey(text)
		if vec, ok := c.entries[key]; ok {
			results[i] = vec
			continue
		}
		if !seen[key] {
			seen[key] = true
			missKeys = append(missKeys, key)
			missTexts = append(missTexts, text)
		}
	}
	c.mu.Unlock()

	if len(missTexts) == 0 {
		return results, nil
	}

	vectors, err := c.provider.Embed(ctx, missTexts)
	if err != nil {
		return nil, &rag.ProviderError{Provider: "embedding", Err: err}
	}
	if len(vectors) != len(missTexts) {
		return nil, &rag.ProviderError{
			Provider: "embedding",
			Err:      fmt.Errorf("expected %d vectors, got %d", len(missTexts), len(vectors)),
		}
	}

	c.mu.Lock()
	for i, key := range missKeys {
		c.insertLocked(key, vectors[i])
	}
	fresh := make(map[string][]float32, len(missKeys))
	for i, key := range missKeys {
		fresh[key] = vectors[i]
	}
	c.mu.Unlock()

	// Second pass: fill remaining slots from the fresh vectors.
	for i, text := range texts {
		if results[i] == nil {
			results[i] = fresh[normalizeKey(text)]
		}
	}

	return results, nil
}

// Len returns the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// insertLocked stores a vector under key, evicting the oldest entry when the
// cache is full. Caller must hold mu.
func (c *Cache) insertLocked(key string, vec []float32) {
	if _, ok := c.entries[key]; ok {
		return
	}
	if len(c.entries) >= c.capacity && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = vec
	c.order = append(c.order, key)
}
