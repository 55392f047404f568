package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/shortsentinel/internal/config"
	"github.com/sawpanic/shortsentinel/internal/journal"
	"github.com/sawpanic/shortsentinel/internal/model"
	"github.com/sawpanic/shortsentinel/internal/notifier"
	"github.com/sawpanic/shortsentinel/internal/symbols"
)

// fakeSource lets tests feed UnifiedTick values directly into the
// Orchestrator without a real hub.
type fakeSource struct {
	ch chan model.UnifiedTick
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan model.UnifiedTick, 16)}
}

func (f *fakeSource) Out() <-chan model.UnifiedTick { return f.ch }

func testOrchestrator(t *testing.T) (*Orchestrator, *fakeSource, *journal.Journal) {
	t.Helper()
	dir := t.TempDir()

	symPath := filepath.Join(dir, "symbols.txt")
	require.NoError(t, os.WriteFile(symPath, []byte("BTCUSDT\n"), 0o644))
	universe, err := symbols.Load(symPath)
	require.NoError(t, err)

	j, err := journal.Open(filepath.Join(dir, "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	src := newFakeSource()
	cfg := config.Default()
	cfg.EntryCooldown = 0 // tests that need sequential entries control timing explicitly
	o := New(cfg, src, universe, j, notifier.NewLogNotifier(), nil)
	return o, src, j
}

// primeHistory feeds one earlier tick straight into the feature pipeline so
// that the next tick for symbol has the rolling price/OI history that short
// momentum and OI divergence are computed against.
func primeHistory(o *Orchestrator, symbol string, now time.Time) {
	o.pipeline.Compute(model.UnifiedTick{
		Symbol: symbol, Timestamp: now.Add(-time.Second),
		Price: 1.00, BidTotal: 30, AskTotal: 70, Spread: 0.0005,
		Funding: 0.001, FundingSet: true, OI: 1000, OISet: true,
	}, 0.2)
}

func TestEntrySignalOnCleanShortSetup(t *testing.T) {
	o, src, j := testOrchestrator(t)
	ctx := context.Background()
	now := time.Now()

	primeHistory(o, "BTCUSDT", now)

	// Price has fallen (short momentum), OI rose sharply (full divergence),
	// funding negative (impulse), fully ask-dominant book, tight spread, BTC
	// not pumping. liquidity_gap_above and liquidity_pressure are always 0 in
	// unified mode (no orderbook ladder), so condition 3 structurally fails
	// and the other six conditions must all hold to clear the 6-of-7 gate;
	// the same dead weight also caps the achievable score, so the other
	// scored inputs are set to their maximum to clear ScoreMin.
	src.ch <- model.UnifiedTick{
		Symbol: "BTCUSDT", Timestamp: now,
		Price: 0.997, BidTotal: 0, AskTotal: 100, Imbalance: 1.0, Spread: 0.0005,
		// A positive funding rate yields a negative funding_impulse
		// (condition 6: funding_impulse < 0) per scorer.py/entry_trigger.py.
		Funding: 0.002, FundingSet: true, OI: 2500, OISet: true,
		SweepRejection: 0.9,
	}
	o.btcAlignment = 0.2

	tick := <-src.ch
	o.handleTick(ctx, tick)

	sig, open, err := j.GetOpenPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.True(t, open)
	assert.Equal(t, 0.997, sig.EntryPrice)

	counts, err := j.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Signals)
}

func TestEntryGateMissOnWeakOIAndFunding(t *testing.T) {
	o, src, j := testOrchestrator(t)
	ctx := context.Background()
	now := time.Now()

	primeHistory(o, "BTCUSDT", now)

	src.ch <- model.UnifiedTick{
		Symbol: "BTCUSDT", Timestamp: now,
		Price: 0.997, BidTotal: 20, AskTotal: 80, Spread: 0.0005,
		Funding: 0, FundingSet: false, OI: 1000, OISet: false, // no OI move, no funding
		SweepRejection: 0.9,
	}
	o.btcAlignment = 0.2

	tick := <-src.ch
	o.handleTick(ctx, tick)

	_, open, err := j.GetOpenPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.False(t, open)
}

func TestDedupSuppressesSecondIdenticalSignal(t *testing.T) {
	o, _, j := testOrchestrator(t)
	ctx := context.Background()
	now := time.Now()

	fv := model.FeatureVector{
		Symbol: "BTCUSDT", Timestamp: now,
		SweepRejection: 0.9, AskDominance: 0.8, LiquidityGapAbove: 0,
		SpreadPct: 0.0005, OIDivergence: 0.1, FundingImpulse: -0.2, BTCAlignment: 0.2,
		LiquidityPressure: 0.8, OrderflowImbalance: 0.8,
	}
	score := model.Score{Symbol: "BTCUSDT", Timestamp: now, Value: 70, Features: fv}

	// First entry evaluation opens a position and records the dedup hash.
	o.evaluateEntry(ctx, fv, score, 0.997)
	pos, open, err := j.GetOpenPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.True(t, open)

	// Close the position out-of-band so a second entry is structurally
	// possible, isolating dedup suppression from the open-position gate.
	pos.Status = model.PositionClosed
	pos.ExitTS = now
	pos.ExitPrice = pos.EntryPrice
	require.NoError(t, j.ClosePosition(ctx, pos))

	// Re-submitting the identical (symbol, rounded features, price, score)
	// within the 900s dedup window must not produce a second signal row.
	o.evaluateEntry(ctx, fv, score, 0.997)

	counts, err := j.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Signals, "second identical signal must be suppressed by dedup hash")
}

func TestHardStopExitClosesPositionAndWritesSignal(t *testing.T) {
	o, _, j := testOrchestrator(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, j.OpenPosition(ctx, model.Position{
		Symbol: "BTCUSDT", EntryTS: now, EntryPrice: 1.000, Status: model.PositionOpen, BestLow: 1.000,
	}))

	o.checkTrailing(ctx, "BTCUSDT", 1.013) // -1.3% for a short breaches the 1.2% hard stop

	_, open, err := j.GetOpenPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.False(t, open)

	counts, err := j.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Signals)
}

func TestTrailingGivebackExit(t *testing.T) {
	o, _, j := testOrchestrator(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, j.OpenPosition(ctx, model.Position{
		Symbol: "BTCUSDT", EntryTS: now, EntryPrice: 1.000, Status: model.PositionOpen, BestLow: 1.000,
	}))

	o.checkTrailing(ctx, "BTCUSDT", 0.989) // peak pnl +1.1%, activates trail
	o.checkTrailing(ctx, "BTCUSDT", 0.993) // pnl +0.7%, giveback 0.4% triggers exit

	_, open, err := j.GetOpenPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.False(t, open)
}

func TestSymbolOutsideAllowlistIsIgnored(t *testing.T) {
	o, src, j := testOrchestrator(t)
	ctx := context.Background()

	src.ch <- model.UnifiedTick{Symbol: "DOGEUSDT", Timestamp: time.Now(), Price: 1}
	o.handleTick(ctx, <-src.ch)

	counts, err := j.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.UnifiedTicks)
}
