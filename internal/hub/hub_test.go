package hub

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/shortsentinel/internal/config"
	"github.com/sawpanic/shortsentinel/internal/model"
	"github.com/sawpanic/shortsentinel/internal/symbols"
)

func testUniverse(t *testing.T, syms ...string) *symbols.Universe {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "symbols.txt")
	content := ""
	for _, s := range syms {
		content += s + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	u, err := symbols.Load(path)
	require.NoError(t, err)
	return u
}

func TestEmitUnifiedAveragesAcrossVenues(t *testing.T) {
	u := testUniverse(t, "BTCUSDT")
	cfg := config.Default()
	h := New(u, cfg)

	now := time.Now()
	h.process(model.VenueEvent{Venue: model.VenueBinance, Symbol: "BTCUSDT", Kind: model.EventOrderbook, Timestamp: now, BidPrice: 100, AskPrice: 101, BidSize: 10, AskSize: 5})
	h.process(model.VenueEvent{Venue: model.VenueBybit, Symbol: "BTCUSDT", Kind: model.EventOrderbook, Timestamp: now, BidPrice: 102, AskPrice: 103, BidSize: 6, AskSize: 6})

	<-h.out // the first event's tick carries only the Binance metric

	select {
	case tick := <-h.out:
		assert.InDelta(t, 101.5, tick.Price, 0.01) // avg(100.5, 102.5)
		assert.InDelta(t, 8, tick.BidTotal, 0.01)
	default:
		t.Fatal("expected a unified tick")
	}
}

func TestEmitUnifiedSkipsStaleVenue(t *testing.T) {
	u := testUniverse(t, "BTCUSDT")
	cfg := config.Default()
	h := New(u, cfg)

	stale := time.Now().Add(-200 * time.Second) // beyond the 180s price freshness window
	h.metricFor(model.VenueBinance, "BTCUSDT").Price = 50
	h.metricFor(model.VenueBinance, "BTCUSDT").PriceTS = stale

	fresh := time.Now()
	h.process(model.VenueEvent{Venue: model.VenueBybit, Symbol: "BTCUSDT", Kind: model.EventOrderbook, Timestamp: fresh, BidPrice: 100, AskPrice: 100, BidSize: 1, AskSize: 1})

	select {
	case tick := <-h.out:
		assert.Equal(t, 100.0, tick.Price)
	default:
		t.Fatal("expected a unified tick")
	}
}

func TestValidateTimestampRejectsFarFuture(t *testing.T) {
	u := testUniverse(t, "BTCUSDT")
	h := New(u, config.Default())
	assert.False(t, h.validateTimestamp(time.Now().Add(10*time.Minute)))
	assert.True(t, h.validateTimestamp(time.Now()))
}

func TestValidateSymbolRejectsUnknown(t *testing.T) {
	u := testUniverse(t, "BTCUSDT")
	h := New(u, config.Default())
	assert.True(t, h.validateSymbol("BTCUSDT"))
	assert.False(t, h.validateSymbol("DOGEUSDT"))
}

func TestEnqueueDropsOldestOnOverflow(t *testing.T) {
	u := testUniverse(t, "BTCUSDT")
	cfg := config.Default()
	cfg.QueueCapacity = 2
	h := New(u, cfg)

	h.enqueue(model.UnifiedTick{Symbol: "A"})
	h.enqueue(model.UnifiedTick{Symbol: "B"})
	h.enqueue(model.UnifiedTick{Symbol: "C"}) // queue full, "A" should be dropped

	first := <-h.out
	second := <-h.out
	assert.Equal(t, "B", first.Symbol)
	assert.Equal(t, "C", second.Symbol)
}

func TestSweepRejectionDominance(t *testing.T) {
	u := testUniverse(t, "BTCUSDT")
	h := New(u, config.Default())
	now := time.Now()

	h.recordTrade("BTCUSDT", now, "sell")
	h.recordTrade("BTCUSDT", now, "sell")
	h.recordTrade("BTCUSDT", now, "buy")

	got := h.sweepRejection("BTCUSDT", now)
	assert.InDelta(t, 2.0/3.0, got, 0.001)
}

func TestSweepRejectionNoTradesIsZero(t *testing.T) {
	u := testUniverse(t, "BTCUSDT")
	h := New(u, config.Default())
	assert.Equal(t, 0.0, h.sweepRejection("BTCUSDT", time.Now()))
}
