package engine

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/docuchat/ragengine/internal/rag"
)

// minLadderResults is the result count at which the threshold ladder stops
// descending: a threshold that already yields this many hits is strict enough.
const minLadderResults = 2

// variantOutcome is one query variant's retrieval result after the threshold
// ladder and quality-gap filter.
type variantOutcome struct {
	// variant is the query phrasing that was searched.
	variant string

	// results is the filtered, ranked fragment set.
	results []rag.ScoredFragment

	// mean is the mean similarity of results; -1 when results is empty so
	// any variant with evidence outranks every variant without.
	mean float64

	// err is the variant's failure, if any. A failed variant is skipped
	// unless every variant failed.
	err error
}

// retrieve evaluates all query variants concurrently and returns the
// strongest outcome. The winner is selected by mean similarity of the
// filtered set — mean favors variants whose entire result set is strong, not
// just the top hit — with ties going to the earlier variant, so the original
// query has priority and the outcome is deterministic regardless of goroutine
// completion order.
func (e *Engine) retrieve(ctx context.Context, corpusID string, variants []string, maxResults int) (variantOutcome, error) {
	if len(variants) == 0 {
		return variantOutcome{}, nil
	}

	outcomes := make([]variantOutcome, len(variants))

	var g errgroup.Group
	for i, variant := range variants {
		g.Go(func() error {
			outcomes[i] = e.evaluateVariant(ctx, corpusID, variant, maxResults)
			return nil
		})
	}
	_ = g.Wait()

	// A corpus reaped mid-query surfaces immediately, whichever variant hit it.
	for i := range outcomes {
		if errors.Is(outcomes[i].err, rag.ErrCorpusNotFound) {
			return variantOutcome{}, outcomes[i].err
		}
	}

	best := -1
	failures := 0
	for i := range outcomes {
		if outcomes[i].err != nil {
			failures++
			continue
		}
		// Strict greater-than keeps the earlier variant on ties.
		if best < 0 || outcomes[i].mean > outcomes[best].mean {
			best = i
		}
	}
	if best < 0 {
		// Every variant failed; report the original query's error.
		if failures == len(outcomes) {
			return variantOutcome{}, outcomes[0].err
		}
		return variantOutcome{variant: variants[0]}, nil
	}

	return outcomes[best], nil
}

// evaluateVariant embeds one variant and runs the descending threshold
// ladder: the first threshold yielding at least minLadderResults hits wins;
// failing that, the lowest threshold's result is used regardless of count.
// The chosen set then passes through the quality-gap filter.
func (e *Engine) evaluateVariant(ctx context.Context, corpusID, variant string, maxResults int) variantOutcome {
	out := variantOutcome{variant: variant, mean: -1}

	vectors, err := e.embedder.Embed(ctx, []string{variant})
	if err != nil {
		out.err = err
		return out
	}
	if len(vectors) == 0 {
		out.err = &rag.ProviderError{Provider: "embedding", Err: errors.New("empty batch result")}
		return out
	}
	queryEmbedding := vectors[0]

	var results []rag.ScoredFragment
	for _, threshold := range e.opts.Thresholds {
		results, err = e.store.Search(ctx, corpusID, queryEmbedding, threshold, maxResults)
		if err != nil {
			out.err = err
			return out
		}
		if len(results) >= minLadderResults {
			break
		}
	}

	out.results = e.filterQualityGap(results)
	if len(out.results) > 0 {
		total := 0.0
		for _, r := range out.results {
			total += r.Similarity
		}
		out.mean = total / float64(len(out.results))
	}
	return out
}

// filterQualityGap drops fragments far weaker than the best hit in the same
// set: anything below max(floor, top−width) goes. This keeps a single strong
// hit from being diluted by marginally-related filler when the downstream
// context window has limited capacity.
func (e *Engine) filterQualityGap(results []rag.ScoredFragment) []rag.ScoredFragment {
	if len(results) == 0 {
		return results
	}

	cutoff := results[0].Similarity - e.opts.QualityGapWidth
	if cutoff < e.opts.QualityGapFloor {
		cutoff = e.opts.QualityGapFloor
	}

	filtered := results[:0:0]
	for _, r := range results {
		if r.Similarity >= cutoff {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
