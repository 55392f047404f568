// Package status implements the engine's operational status report: data
// freshness, row counts, and top-scoring symbols over a recent lookback
// window. Ported from original_source/scripts/status_check.py. The report is
// rendered as the same plain text whether or not the output is a terminal.
package status

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sawpanic/shortsentinel/internal/journal"
)

// Options configures a status Report, mirroring status_check.py's CLI flags.
type Options struct {
	Lookback time.Duration // default 600s
	RowLimit int           // default 5000
	TopN     int           // default 5
	ScoreMin float64       // entry threshold, for the summary line
}

// DefaultOptions matches status_check.py's argparse defaults.
func DefaultOptions() Options {
	return Options{
		Lookback: 600 * time.Second,
		RowLimit: 5000,
		TopN:     5,
		ScoreMin: 60,
	}
}

// Report is a point-in-time snapshot of the engine's journal state.
type Report struct {
	GeneratedAt time.Time
	TickAge     time.Duration
	FeatureAge  time.Duration
	Counts      journal.Counts
	TopSymbols  []journal.SymbolScore
	TopPrices   map[string]float64
	BestScore   float64
	ScoreMin    float64
}

// Build queries j and assembles a Report using opts.
func Build(ctx context.Context, j *journal.Journal, opts Options) (Report, error) {
	now := time.Now()
	r := Report{GeneratedAt: now, ScoreMin: opts.ScoreMin}

	latestTick, err := j.LatestTimestamp(ctx, "unified_ticks")
	if err != nil {
		return Report{}, fmt.Errorf("latest tick timestamp: %w", err)
	}
	r.TickAge = ageOf(now, latestTick)

	latestFeat, err := j.LatestTimestamp(ctx, "features")
	if err != nil {
		return Report{}, fmt.Errorf("latest feature timestamp: %w", err)
	}
	r.FeatureAge = ageOf(now, latestFeat)

	counts, err := j.Counts(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("counts: %w", err)
	}
	r.Counts = counts

	scores, err := j.RecentAverageScores(ctx, opts.Lookback, opts.RowLimit)
	if err != nil {
		return Report{}, fmt.Errorf("recent average scores: %w", err)
	}
	topN := opts.TopN
	if topN > len(scores) {
		topN = len(scores)
	}
	r.TopSymbols = scores[:topN]

	r.TopPrices = make(map[string]float64, topN)
	windowStart := now.Add(-opts.Lookback)
	for _, s := range r.TopSymbols {
		price, found, err := j.RecentUnifiedPrice(ctx, s.Symbol, windowStart)
		if err != nil {
			return Report{}, fmt.Errorf("recent price for %s: %w", s.Symbol, err)
		}
		if found {
			r.TopPrices[s.Symbol] = price
		}
	}

	if len(scores) > 0 {
		r.BestScore = scores[0].AvgScore
	}

	return r, nil
}

// ageOf returns how long ago ts was, treating the zero time as "never
// recorded" (a large sentinel age, matching status_check.py's 9999s default).
func ageOf(now, ts time.Time) time.Duration {
	if ts.IsZero() {
		return 9999 * time.Second
	}
	return now.Sub(ts)
}

// Write renders the report as a plain-text table, matching
// status_check.py's console output shape.
func (r Report) Write(w io.Writer) {
	fmt.Fprintln(w, "============================================================")
	fmt.Fprintln(w, "SYSTEM STATUS CHECK")
	fmt.Fprintln(w, "============================================================")
	fmt.Fprintf(w, "Generated: %s\n", r.GeneratedAt.Format(time.RFC3339))

	fmt.Fprintln(w, "\nData Freshness:")
	fmt.Fprintf(w, "  Latest tick:    %.1fs ago\n", r.TickAge.Seconds())
	fmt.Fprintf(w, "  Latest feature: %.1fs ago\n", r.FeatureAge.Seconds())

	fmt.Fprintln(w, "\nRecord Counts:")
	fmt.Fprintf(w, "  Unified:   %d\n", r.Counts.UnifiedTicks)
	fmt.Fprintf(w, "  Features:  %d\n", r.Counts.Features)
	fmt.Fprintf(w, "  Signals:   %d\n", r.Counts.Signals)
	fmt.Fprintf(w, "  Positions: %d\n", r.Counts.Positions)

	fmt.Fprintf(w, "\nTop %d Symbols (Avg Score | Unified Price):\n", len(r.TopSymbols))
	for _, s := range r.TopSymbols {
		priceStr := "n/a"
		if p, ok := r.TopPrices[s.Symbol]; ok {
			priceStr = fmt.Sprintf("$%.6f", p)
		}
		fmt.Fprintf(w, "  %-15s %5.2f (avg of %d samp) | %s\n", s.Symbol, s.AvgScore, s.Samples, priceStr)
	}

	fmt.Fprintf(w, "\nEntry Threshold: SCORE_MIN >= %d\n", int(r.ScoreMin))
	fmt.Fprintf(w, "Max Avg Score: %.2f\n", r.BestScore)
	status := "CHECK ENTRY LOGIC"
	if r.BestScore < r.ScoreMin {
		status = "WAITING FOR ENTRY CONDITIONS"
	}
	fmt.Fprintf(w, "Status: %s\n", status)
	fmt.Fprintln(w, "============================================================")
}
