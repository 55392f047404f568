// Package trigger implements the Entry Trigger (C6): a seven-condition
// boolean gate (at least six of seven must hold) plus dedup-hash and
// per-symbol cooldown/daily-limit state that decides whether a scored
// symbol becomes a SHORT entry signal.
//
// Gate conditions and thresholds are ported exactly from
// original_source/scalp_engine/entry_trigger.py. The diagnostic-reason
// collection style is grounded on the teacher's
// internal/domain/gates/evaluate.go (GateReason/EvaluateAllGatesResult).
package trigger

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/shortsentinel/internal/config"
	"github.com/sawpanic/shortsentinel/internal/model"
)

const (
	requiredConditions = 6
	totalConditions    = 7
	dedupWindow        = 10 * time.Minute
)

// GateReason records one of the seven conditions' name, pass/fail, and the
// underlying metric value — grounded on internal/domain/gates/evaluate.go's
// GateReason.
type GateReason struct {
	Name   string
	Passed bool
	Value  float64
}

// Decision is the outcome of evaluating one symbol's entry gate.
type Decision struct {
	Symbol        string
	Proceed       bool
	Reasons       []GateReason
	ConditionsMet int
	DedupHash     string
	SkipReason    string // set when Proceed is false due to cooldown/dedup/daily-limit, not the gate itself
}

// Trigger holds the cooldown/dedup/daily-counter state, mutated only from
// the orchestrator's single consumer loop.
type Trigger struct {
	cfg config.Config

	lastEntryAt  map[string]time.Time
	recentHashes map[string]time.Time

	dailyCount int
	dailyDate  string
}

// New returns a Trigger configured from cfg.
func New(cfg config.Config) *Trigger {
	return &Trigger{
		cfg:          cfg,
		lastEntryAt:  make(map[string]time.Time),
		recentHashes: make(map[string]time.Time),
	}
}

// Evaluate runs the seven-condition gate for fv/score and, if it passes,
// checks cooldown, dedup, and the daily signal cap. Grounded on
// original_source/scalp_engine/entry_trigger.py's should_short plus
// original_source/orchestrator/engine.py's cooldown/dedup/_dedup_hash logic.
func (t *Trigger) Evaluate(fv model.FeatureVector, score model.Score, price float64, now time.Time) Decision {
	reasons := []GateReason{
		{"sweep_rejection", fv.SweepRejection >= 0.7, fv.SweepRejection},
		{"ask_dominance", fv.AskDominance > 0.6, fv.AskDominance},
		{"liquidity_gap_above", fv.LiquidityGapAbove > 0.005, fv.LiquidityGapAbove},
		{"spread_not_collapsing", fv.SpreadPct < 0.002, fv.SpreadPct},
		{"oi_divergence", fv.OIDivergence > 0.0, fv.OIDivergence},
		{"funding_impulse", fv.FundingImpulse < 0, fv.FundingImpulse},
		{"btc_alignment", fv.BTCAlignment < 0.5, fv.BTCAlignment},
	}

	met := 0
	for _, r := range reasons {
		if r.Passed {
			met++
		}
	}

	decision := Decision{Symbol: fv.Symbol, Reasons: reasons, ConditionsMet: met}

	if met < requiredConditions {
		if score.Value >= t.cfg.ScoreMin {
			log.Warn().
				Str("symbol", fv.Symbol).
				Float64("score", score.Value).
				Int("conditions_met", met).
				Int("conditions_required", requiredConditions).
				Interface("reasons", reasons).
				Msg("entry gate failed on a high-scoring symbol")
		}
		return decision
	}

	if last, ok := t.lastEntryAt[fv.Symbol]; ok && now.Sub(last) < t.cfg.EntryCooldown {
		decision.SkipReason = "cooldown"
		return decision
	}

	hash := dedupHash(fv, score, price)
	if seenAt, ok := t.recentHashes[hash]; ok && now.Sub(seenAt) < dedupWindow {
		decision.SkipReason = "duplicate"
		return decision
	}

	if t.cfg.MaxSignalsPerDay > 0 {
		day := now.UTC().Format("2006-01-02")
		if day != t.dailyDate {
			t.dailyDate = day
			t.dailyCount = 0
		}
		if t.dailyCount >= t.cfg.MaxSignalsPerDay {
			decision.SkipReason = "daily_limit"
			return decision
		}
	}

	decision.Proceed = true
	decision.DedupHash = hash
	return decision
}

// RecordEntry marks symbol as having just produced a signal, advancing the
// cooldown clock, dedup window, and daily counter.
func (t *Trigger) RecordEntry(symbol, hash string, now time.Time) {
	t.lastEntryAt[symbol] = now
	t.recentHashes[hash] = now
	t.dailyCount++
	t.pruneHashes(now)
}

func (t *Trigger) pruneHashes(now time.Time) {
	for h, ts := range t.recentHashes {
		if now.Sub(ts) >= dedupWindow {
			delete(t.recentHashes, h)
		}
	}
}

// btcNotPumpingThreshold mirrors spec.md §4.4's btc_not_pumping = pump < 0.4.
const btcNotPumpingThreshold = 0.4

// dedupHash fingerprints six diagnostic features (rounded to 4dp), the
// symbol, price (5dp), and the integer score, matching
// original_source/orchestrator/engine.py's _dedup_hash exactly (including
// its feature key set, which differs from the seven scored features).
func dedupHash(fv model.FeatureVector, score model.Score, price float64) string {
	btcNotPumping := 0.0
	if fv.BTCAlignment < btcNotPumpingThreshold {
		btcNotPumping = 1.0
	}

	snapshot := map[string]any{
		"sym":                 fv.Symbol,
		"price":               round(price, 5),
		"score":               int(score.Value),
		"sweep_rejection":     round(fv.SweepRejection, 4),
		"liquidity_gap_above": round(fv.LiquidityGapAbove, 4),
		"orderflow_imbalance": round(fv.OrderflowImbalance, 4),
		"volatility_burst":    round(fv.VolatilityBurst, 4),
		"short_momentum":      round(fv.ShortMomentum, 4),
		"btc_not_pumping":     round(btcNotPumping, 4),
	}

	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		ordered = append(ordered, k, snapshot[k])
	}
	canonical, _ := json.Marshal(ordered)

	sum := sha1.Sum(canonical)
	return hex.EncodeToString(sum[:])
}

func round(v float64, places int) float64 {
	scale := 1.0
	for i := 0; i < places; i++ {
		scale *= 10
	}
	return float64(int(v*scale+signOf(v)*0.5)) / scale
}

func signOf(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// ExplainGate formats Reasons as a single diagnostic line, matching the
// teacher's FormatGateExplanation (internal/domain/gates/evaluate.go).
func ExplainGate(d Decision) string {
	out := fmt.Sprintf("%s: %d/%d conditions met", d.Symbol, d.ConditionsMet, totalConditions)
	for _, r := range d.Reasons {
		status := "FAIL"
		if r.Passed {
			status = "PASS"
		}
		out += fmt.Sprintf(" | %s=%s(%.4f)", r.Name, status, r.Value)
	}
	return out
}
