package engine

import (
	"math"

	"github.com/docuchat/ragengine/internal/rag"
)

// Confidence scoring constants. The clamp keeps the engine from ever
// claiming perfect or negligible confidence while evidence exists.
const (
	// confidenceNoEvidence is the fixed score when retrieval found nothing.
	confidenceNoEvidence = 30

	// confidenceMin and confidenceMax clamp the score for non-empty results.
	confidenceMin = 40
	confidenceMax = 95
)

// ScoreConfidence converts a result set's similarity statistics into a
// bounded 0–100 score. The base is the mean similarity; bonuses reward one
// strong top hit, low spread between top and bottom (corroboration, not a
// single lucky match), and breadth.
func ScoreConfidence(results []rag.ScoredFragment) int {
	if len(results) == 0 {
		return confidenceNoEvidence
	}

	total := 0.0
	top := results[0].Similarity
	bottom := results[0].Similarity
	for _, r := range results {
		total += r.Similarity
		if r.Similarity > top {
			top = r.Similarity
		}
		if r.Similarity < bottom {
			bottom = r.Similarity
		}
	}
	mean := total / float64(len(results))

	score := int(math.Round(mean * 100))

	// A strong top result is worth something even when the mean is pulled
	// down by weaker supporting fragments.
	switch {
	case top >= 0.6:
		score += 15
	case top >= 0.5:
		score += 10
	case top >= 0.4:
		score += 5
	}

	// Corroboration bonus: several results agreeing closely beats one hit.
	if len(results) >= 2 {
		spread := top - bottom
		switch {
		case spread <= 0.10:
			score += 10
		case spread <= 0.15:
			score += 5
		}
	}

	// Breadth bonus.
	if len(results) >= 3 {
		score += 5
	}

	if score < confidenceMin {
		score = confidenceMin
	}
	if score > confidenceMax {
		score = confidenceMax
	}
	return score
}
