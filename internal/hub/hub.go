// Package hub implements the Data Hub (C3): it fans in normalized venue
// events from every adapter, maintains a per-venue metric cache, and emits
// cross-venue-averaged UnifiedTick values onto a bounded queue for the
// orchestrator's single consumer loop.
//
// Grounded on original_source/data_fetcher/hub.py (DataHub._emit_unified,
// _validate_symbol/_validate_timestamp, _emit, _funding_oi_loop,
// _staleness_check_loop) — a direct algorithmic port. The single-goroutine
// Run loop is the Go expression of spec.md §5's single-consumer concurrency
// model: because only Run mutates the metric cache, no per-symbol lock is
// needed.
package hub

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sawpanic/shortsentinel/internal/config"
	"github.com/sawpanic/shortsentinel/internal/model"
	"github.com/sawpanic/shortsentinel/internal/symbols"
)

const (
	priceFreshness   = 180 * time.Second
	fundingFreshness = 2 * time.Hour
	timestampSkew    = 300 * time.Second
	tradeBufferTTL   = 5 * time.Minute
	stalenessWindow  = 60 * time.Second
)

type tradeRecord struct {
	ts   time.Time
	side string
}

// Hub fans in venue events and emits unified ticks.
type Hub struct {
	universe *symbols.Universe
	cfg      config.Config

	intake chan model.VenueEvent
	out    chan model.UnifiedTick

	metrics map[model.Venue]map[string]*model.PerVenueMetric
	trades  map[string][]tradeRecord
	lastMsg map[string]time.Time // keyed "venue:symbol" for staleness monitor
	lastWarn map[string]time.Time
}

// New builds a Hub. cfg.QueueCapacity bounds the outbound unified-tick queue.
func New(universe *symbols.Universe, cfg config.Config) *Hub {
	return &Hub{
		universe: universe,
		cfg:      cfg,
		intake:   make(chan model.VenueEvent, cfg.QueueCapacity),
		out:      make(chan model.UnifiedTick, cfg.QueueCapacity),
		metrics:  make(map[model.Venue]map[string]*model.PerVenueMetric),
		trades:   make(map[string][]tradeRecord),
		lastMsg:  make(map[string]time.Time),
		lastWarn: make(map[string]time.Time),
	}
}

// Intake is the write side every venue adapter's goroutine publishes onto.
func (h *Hub) Intake() chan<- model.VenueEvent { return h.intake }

// Out is the read side the orchestrator's consumer loop drains.
func (h *Hub) Out() <-chan model.UnifiedTick { return h.out }

// Run drives the single-threaded fan-in loop until ctx is canceled.
func (h *Hub) Run(ctx context.Context) error {
	staleTicker := time.NewTicker(stalenessWindow)
	defer staleTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-h.intake:
			h.process(ev)
		case <-staleTicker.C:
			h.checkStaleness()
		}
	}
}

func (h *Hub) process(ev model.VenueEvent) {
	if !h.validateSymbol(ev.Symbol) {
		return
	}
	if !h.validateTimestamp(ev.Timestamp) {
		return
	}

	h.lastMsg[streamKey(ev.Venue, ev.Symbol)] = time.Now()

	m := h.metricFor(ev.Venue, ev.Symbol)
	switch ev.Kind {
	case model.EventOrderbook:
		m.Spread = spreadOf(ev.BidPrice, ev.AskPrice)
		m.SpreadTS = ev.Timestamp
		m.BidTotal = ev.BidSize
		m.AskTotal = ev.AskSize
		m.DepthTS = ev.Timestamp
		if ev.BidPrice > 0 && ev.AskPrice > 0 {
			m.Price = (ev.BidPrice + ev.AskPrice) / 2
			m.PriceTS = ev.Timestamp
		}
	case model.EventTrade:
		h.recordTrade(ev.Symbol, ev.Timestamp, ev.TakerSide)
	case model.EventMark:
		if ev.MarkPrice > 0 {
			m.Mark = ev.MarkPrice
			m.MarkTS = ev.Timestamp
			if m.Price == 0 {
				m.Price = ev.MarkPrice
				m.PriceTS = ev.Timestamp
			}
		}
	case model.EventFunding:
		m.Funding = ev.FundingRate
		m.FundingTS = ev.Timestamp
	case model.EventOpenInterest:
		m.OI = ev.OpenInterest
		m.OITS = ev.Timestamp
	}

	h.emitUnified(ev.Symbol)
}

func (h *Hub) metricFor(v model.Venue, symbol string) *model.PerVenueMetric {
	bySymbol, ok := h.metrics[v]
	if !ok {
		bySymbol = make(map[string]*model.PerVenueMetric)
		h.metrics[v] = bySymbol
	}
	m, ok := bySymbol[symbol]
	if !ok {
		m = &model.PerVenueMetric{Venue: v, Symbol: symbol}
		bySymbol[symbol] = m
	}
	return m
}

func (h *Hub) validateSymbol(symbol string) bool {
	return h.universe.Contains(symbol)
}

func (h *Hub) validateTimestamp(ts time.Time) bool {
	delta := time.Since(ts)
	if delta < 0 {
		delta = -delta
	}
	return delta < timestampSkew
}

func spreadOf(bid, ask float64) float64 {
	if bid <= 0 || ask <= 0 {
		return 0
	}
	return ask - bid
}

func (h *Hub) recordTrade(symbol string, ts time.Time, side string) {
	buf := append(h.trades[symbol], tradeRecord{ts: ts, side: side})
	cutoff := time.Now().Add(-tradeBufferTTL)
	trimmed := buf[:0]
	for _, r := range buf {
		if r.ts.After(cutoff) {
			trimmed = append(trimmed, r)
		}
	}
	h.trades[symbol] = trimmed
}

// emitUnified recomputes the cross-venue average for symbol and enqueues it.
// Grounded on original_source/data_fetcher/hub.py's _emit_unified.
func (h *Hub) emitUnified(symbol string) {
	now := time.Now()

	var prices, spreads, bidTotals, askTotals, imbalances, marks []float64
	var fundings, ois []float64

	for _, bySymbol := range h.metrics {
		m, ok := bySymbol[symbol]
		if !ok {
			continue
		}
		if m.PriceTS.IsZero() || now.Sub(m.PriceTS) > priceFreshness {
			continue
		}
		prices = append(prices, m.Price)
		if !m.MarkTS.IsZero() && now.Sub(m.MarkTS) <= priceFreshness {
			marks = append(marks, m.Mark)
		}
		if !m.SpreadTS.IsZero() && now.Sub(m.SpreadTS) <= priceFreshness {
			spreads = append(spreads, m.Spread)
		}
		if !m.DepthTS.IsZero() && now.Sub(m.DepthTS) <= priceFreshness {
			bidTotals = append(bidTotals, m.BidTotal)
			askTotals = append(askTotals, m.AskTotal)
			if denom := m.BidTotal + m.AskTotal; denom > 0 {
				imbalances = append(imbalances, (m.AskTotal-m.BidTotal)/denom)
			}
		}
		if !m.FundingTS.IsZero() && now.Sub(m.FundingTS) <= fundingFreshness {
			fundings = append(fundings, m.Funding)
		}
		if !m.OITS.IsZero() && now.Sub(m.OITS) <= fundingFreshness {
			ois = append(ois, m.OI)
		}
	}

	if len(prices) == 0 {
		return
	}

	tick := model.UnifiedTick{
		Symbol:         symbol,
		Timestamp:      now,
		Price:          avg(prices),
		Spread:         avg(spreads),
		BidTotal:       avg(bidTotals),
		AskTotal:       avg(askTotals),
		Imbalance:      avg(imbalances),
		SweepRejection: h.sweepRejection(symbol, now),
	}
	if len(marks) > 0 {
		tick.Mark = avg(marks)
	} else {
		tick.Mark = tick.Price
	}
	if len(fundings) > 0 {
		tick.Funding = avg(fundings)
		tick.FundingSet = true
	}
	if len(ois) > 0 {
		tick.OI = avg(ois)
		tick.OISet = true
	}

	h.enqueue(tick)
}

func avg(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// enqueue pushes tick onto the bounded output queue, dropping the oldest
// queued tick on overflow rather than blocking the fan-in loop (spec.md §5).
func (h *Hub) enqueue(tick model.UnifiedTick) {
	select {
	case h.out <- tick:
		return
	default:
	}
	select {
	case <-h.out:
	default:
	}
	select {
	case h.out <- tick:
	default:
	}
}

func streamKey(v model.Venue, symbol string) string {
	return fmt.Sprintf("%s:%s", v, symbol)
}

// checkStaleness warns, at most once per minute per stream, about venue
// streams that have gone quiet. Grounded on
// original_source/data_fetcher/hub.py's _staleness_check_loop.
func (h *Hub) checkStaleness() {
	now := time.Now()
	for key, last := range h.lastMsg {
		if now.Sub(last) <= stalenessWindow {
			continue
		}
		if warned, ok := h.lastWarn[key]; ok && now.Sub(warned) < stalenessWindow {
			continue
		}
		h.lastWarn[key] = now
		log.Warn().Str("stream", key).Dur("age", now.Sub(last)).Msg("venue stream stale")
	}
}
