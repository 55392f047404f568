// Package scoring implements the Scorer (C5): a fixed-weight composite of
// the seven feature-vector scalars into a single 0-100 score.
//
// Weights are ported exactly from original_source/scalp_engine/scorer.py.
// ValidateScore and RankScores follow the teacher's
// internal/domain/scoring/composite.go (NaN/Inf guards, weight-sum
// tolerance check, descending rank), simplified since this engine has no
// regime-gated weight sets or factor orthogonalization to account for.
package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/sawpanic/shortsentinel/internal/model"
)

// Weights are the fixed per-feature contributions, summing to 100.
var Weights = map[string]float64{
	"oi_divergence":      20,
	"liquidity_pressure": 20,
	"orderflow_imbalance": 15,
	"sweep_rejection":    15,
	"short_momentum":     10,
	"funding_impulse":    10,
	"btc_alignment":      10,
}

const weightTolerance = 0.01

func totalWeight() float64 {
	var sum float64
	for _, w := range Weights {
		sum += w
	}
	return sum
}

// Score computes the weighted composite for fv. Each feature is clamped to
// [0,1] before weighting (matching scorer.py's clamp-then-weight order);
// negative values of signed features (oi_divergence, funding_impulse) clamp
// to 0 and contribute nothing, exactly as the Python implementation does —
// clamp(feats.get(k, 0.0), 0.0, 1.0) is applied uniformly regardless of a
// feature's natural range.
func Score(fv model.FeatureVector) model.Score {
	terms := map[string]float64{
		"oi_divergence":       clamp01(fv.OIDivergence),
		"liquidity_pressure":  clamp01(fv.LiquidityPressure),
		"orderflow_imbalance": clamp01(fv.OrderflowImbalance),
		"sweep_rejection":     clamp01(fv.SweepRejection),
		"short_momentum":      clamp01(fv.ShortMomentum),
		"funding_impulse":     clamp01(fv.FundingImpulse),
		"btc_alignment":       clamp01(fv.BTCAlignment),
	}

	var weighted float64
	for key, w := range Weights {
		weighted += terms[key] * w
	}
	value := clampRange(weighted/totalWeight()*100, 0, 100)

	return model.Score{
		Symbol:    fv.Symbol,
		Timestamp: fv.Timestamp,
		Value:     value,
		Features:  fv,
	}
}

func clamp01(v float64) float64 { return clampRange(v, 0, 1) }

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ValidateScore rejects a Score that is NaN/Inf or outside [0,100], and
// checks the configured weight set still sums to 100 within tolerance —
// grounded on internal/domain/scoring/composite.go's ValidateScore.
func ValidateScore(s model.Score) error {
	if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
		return fmt.Errorf("score for %s is NaN or Inf", s.Symbol)
	}
	if s.Value < 0 || s.Value > 100 {
		return fmt.Errorf("score for %s out of range: %f", s.Symbol, s.Value)
	}
	if math.Abs(totalWeight()-100) > weightTolerance {
		return fmt.Errorf("scorer weights sum to %f, expected 100", totalWeight())
	}
	return nil
}

// RankScores sorts scores descending by Value, matching
// internal/domain/scoring/composite.go's RankScores.
func RankScores(scores []model.Score) []model.Score {
	ranked := make([]model.Score, len(scores))
	copy(ranked, scores)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Value > ranked[j].Value
	})
	return ranked
}
