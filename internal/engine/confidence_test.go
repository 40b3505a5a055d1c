package engine

import (
	"testing"

	"github.com/docuchat/ragengine/internal/rag"
)

// scored builds a result set from bare similarity values.
func scored(sims ...float64) []rag.ScoredFragment {
	results := make([]rag.ScoredFragment, len(sims))
	for i, s := range sims {
		results[i] = rag.ScoredFragment{Similarity: s}
	}
	return results
}

func Test_ScoreConfidence_EmptyIsBaseline(t *testing.T) {
	t.Parallel()
	if got := ScoreConfidence(nil); got != 30 {
		t.Errorf("empty results: want 30, got %d", got)
	}
	if got := ScoreConfidence([]rag.ScoredFragment{}); got != 30 {
		t.Errorf("empty slice: want 30, got %d", got)
	}
}

func Test_ScoreConfidence_Bounds(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		sims []float64
	}{
		{"single weak", []float64{0.05}},
		{"single strong", []float64{0.99}},
		{"many strong", []float64{0.95, 0.94, 0.93, 0.92}},
		{"many weak", []float64{0.1, 0.08, 0.05}},
		{"mixed", []float64{0.7, 0.3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreConfidence(scored(tt.sims...))
			if got < 40 || got > 95 {
				t.Errorf("score %d out of [40, 95] for %v", got, tt.sims)
			}
		})
	}
}

func Test_ScoreConfidence_TopHitBonusTiers(t *testing.T) {
	t.Parallel()
	// Single results isolate the top-hit bonus from spread and breadth.
	low := ScoreConfidence(scored(0.45))  // 45 + 5 = 50
	mid := ScoreConfidence(scored(0.55))  // 55 + 10 = 65
	high := ScoreConfidence(scored(0.65)) // 65 + 15 = 80
	if low != 50 || mid != 65 || high != 80 {
		t.Errorf("tier scores: want 50/65/80, got %d/%d/%d", low, mid, high)
	}
}

func Test_ScoreConfidence_CorroborationBonus(t *testing.T) {
	t.Parallel()
	tight := ScoreConfidence(scored(0.5, 0.45))  // spread 0.05 → +10
	loose := ScoreConfidence(scored(0.5, 0.25))  // spread 0.25 → no bonus
	if tight <= loose {
		t.Errorf("tight spread %d should beat loose spread %d", tight, loose)
	}
}

func Test_ScoreConfidence_MonotoneInCorroboration(t *testing.T) {
	t.Parallel()
	// Three identical results must not score below one of the same strength.
	one := ScoreConfidence(scored(0.5))
	three := ScoreConfidence(scored(0.5, 0.5, 0.5))
	if three < one {
		t.Errorf("three corroborating results scored %d below single %d", three, one)
	}
}

func Test_ScoreConfidence_ReferenceValues(t *testing.T) {
	t.Parallel()
	// mean 0.5 → 50, top 0.5 → +10, spread 0 → +10, three results → +5 = 75.
	if got := ScoreConfidence(scored(0.5, 0.5, 0.5)); got != 75 {
		t.Errorf("want 75, got %d", got)
	}
	// Single 0.3: base 30, no bonuses → clamped up to 40.
	if got := ScoreConfidence(scored(0.3)); got != 40 {
		t.Errorf("want clamp to 40, got %d", got)
	}
	// Very strong set clamps at 95: mean 0.9 → 90, +15 top, +10 spread, +5 breadth.
	if got := ScoreConfidence(scored(0.9, 0.9, 0.9)); got != 95 {
		t.Errorf("want clamp to 95, got %d", got)
	}
}
