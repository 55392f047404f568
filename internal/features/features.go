// Package features implements the Feature Pipeline (C4): it derives the
// seven scored features plus a handful of gate/diagnostic scalars from each
// UnifiedTick, using rolling per-symbol price and open-interest history.
//
// Grounded on original_source/features/{microstructure,volatility,funding,
// oi,liquidity}.py — each function here is a direct port of its Python
// counterpart's unified-mode variant. Called only from the orchestrator's
// single consumer loop, so the per-symbol state needs no locking.
package features

import (
	"math"
	"time"

	"github.com/sawpanic/shortsentinel/internal/model"
)

const (
	priceWindowLen = 120
	volWindowLen   = 600
	volWindow      = 60 * time.Second
	resistWindow   = 60 * time.Second
	momentumWindow = 30 * time.Second

	volNormalizer       = 0.002
	momentumNormalizer  = 0.003
	fundingNormalizer   = 0.01
	liquidityNormalizer = 0.002
)

type pricePoint struct {
	ts    time.Time
	price float64
}

type symbolState struct {
	priceWindow []pricePoint
	volWindow   []pricePoint
	lastOI      float64
	haveLastOI  bool
}

// Pipeline computes FeatureVector values for a stream of UnifiedTicks,
// keeping per-symbol rolling state.
type Pipeline struct {
	states map[string]*symbolState
}

// New returns an empty Pipeline.
func New() *Pipeline {
	return &Pipeline{states: make(map[string]*symbolState)}
}

func (p *Pipeline) state(symbol string) *symbolState {
	s, ok := p.states[symbol]
	if !ok {
		s = &symbolState{}
		p.states[symbol] = s
	}
	return s
}

// Compute ingests tick into the symbol's rolling state and returns the full
// feature vector. btcAlignment is computed externally by internal/btcregime
// and threaded in since it is shared across all symbols.
func (p *Pipeline) Compute(tick model.UnifiedTick, btcAlignment float64) model.FeatureVector {
	s := p.state(tick.Symbol)
	s.ingestPrice(tick.Timestamp, tick.Price)

	askDom := askDominance(tick.BidTotal, tick.AskTotal)
	spreadPct := guardedRatio(tick.Spread, tick.Price)

	fv := model.FeatureVector{
		Symbol:    tick.Symbol,
		Timestamp: tick.Timestamp,

		SweepRejection:     clampUnit(tick.SweepRejection),
		AskDominance:       askDom,
		LiquidityGapAbove:  0, // unified mode carries no orderbook ladder
		SpreadPct:          spreadPct,
		NearResistance:     s.nearResistance(tick.Timestamp, tick.Price),
		ShortMomentum:      s.shortMomentum(tick.Timestamp),
		VolatilityBurst:    s.volatilityBurst(tick.Timestamp),
		FundingImpulse:     fundingImpulse(tick.Funding, tick.FundingSet),
		BTCAlignment:       clampUnit(btcAlignment),
		LiquidityPressure:  clampUnit(0 / liquidityNormalizer), // gap_above is always 0 in unified mode
		OrderflowImbalance: clampUnit(tick.Imbalance),
	}
	fv.OIDivergence = s.oiDivergence(tick.OI, tick.OISet)
	fv.PriceFalling = s.priceFalling(tick.Timestamp)

	return fv
}

func (s *symbolState) ingestPrice(ts time.Time, price float64) {
	if price <= 0 {
		return
	}
	s.priceWindow = append(s.priceWindow, pricePoint{ts, price})
	if len(s.priceWindow) > priceWindowLen {
		s.priceWindow = s.priceWindow[len(s.priceWindow)-priceWindowLen:]
	}
	s.volWindow = append(s.volWindow, pricePoint{ts, price})
	if len(s.volWindow) > volWindowLen {
		s.volWindow = s.volWindow[len(s.volWindow)-volWindowLen:]
	}
}

// oiDivergence mirrors original_source/features/oi.py: OpenInterest.divergence.
func (s *symbolState) oiDivergence(now float64, set bool) float64 {
	if !set {
		return 0
	}
	prev := s.lastOI
	haveLast := s.haveLastOI
	s.lastOI = now
	s.haveLastOI = true
	if !haveLast || prev <= 0 || now <= 0 {
		return 0
	}
	return clampRange((now-prev)/prev, -1, 1)
}

// fundingImpulse mirrors original_source/features/funding.py.
func fundingImpulse(rate float64, set bool) float64 {
	if !set {
		return 0
	}
	return clampRange(-rate/fundingNormalizer, -1, 1)
}

// askDominance mirrors features_from_unified's ask_dom computation in
// original_source/features/microstructure.py.
func askDominance(bidTotal, askTotal float64) float64 {
	denom := bidTotal + askTotal
	if denom <= 0 {
		return 0.5
	}
	return clampRange(askTotal/denom, 0, 1)
}

func guardedRatio(numerator, denominator float64) float64 {
	if denominator <= 0 {
		return 0
	}
	return numerator / denominator
}

// shortMomentum measures the negative return over momentumWindow: falling
// prices produce a positive score, matching the short-biased signal shape of
// original_source/orchestrator/engine.py's _recent_return consumer.
func (s *symbolState) shortMomentum(now time.Time) float64 {
	ret, ok := s.returnOver(now, momentumWindow)
	if !ok {
		return 0
	}
	return clampRange(-ret/momentumNormalizer, 0, 1)
}

func (s *symbolState) priceFalling(now time.Time) bool {
	ret, ok := s.returnOver(now, momentumWindow)
	return ok && ret < 0
}

func (s *symbolState) returnOver(now time.Time, window time.Duration) (float64, bool) {
	if len(s.priceWindow) == 0 {
		return 0, false
	}
	latest := s.priceWindow[len(s.priceWindow)-1]
	cutoff := now.Add(-window)
	var prior *pricePoint
	for i := len(s.priceWindow) - 1; i >= 0; i-- {
		if s.priceWindow[i].ts.Before(cutoff) || s.priceWindow[i].ts.Equal(cutoff) {
			prior = &s.priceWindow[i]
			break
		}
	}
	if prior == nil {
		prior = &s.priceWindow[0]
	}
	if prior.price <= 0 {
		return 0, false
	}
	return (latest.price - prior.price) / prior.price, true
}

// nearResistance mirrors original_source/orchestrator/engine.py's
// _compute_near_resistance: the gap between the recent local high and the
// current price, as a fraction of current price.
func (s *symbolState) nearResistance(now time.Time, price float64) float64 {
	if price <= 0 {
		return 0
	}
	cutoff := now.Add(-resistWindow)
	high := price
	for _, pt := range s.priceWindow {
		if pt.ts.Before(cutoff) {
			continue
		}
		if pt.price > high {
			high = pt.price
		}
	}
	return (high - price) / price
}

// volatilityBurst mirrors original_source/features/volatility.py: sample
// stddev of consecutive returns within volWindow, normalized and clamped.
// Requires at least 5 samples, else returns 0 (insufficient signal).
func (s *symbolState) volatilityBurst(now time.Time) float64 {
	cutoff := now.Add(-volWindow)
	var windowed []float64
	for _, pt := range s.volWindow {
		if pt.ts.Before(cutoff) {
			continue
		}
		windowed = append(windowed, pt.price)
	}
	if len(windowed) < 5 {
		return 0
	}
	var returns []float64
	for i := 1; i < len(windowed); i++ {
		if windowed[i-1] <= 0 {
			continue
		}
		returns = append(returns, (windowed[i]-windowed[i-1])/windowed[i-1])
	}
	if len(returns) < 4 {
		return 0
	}
	sd := stddev(returns)
	return clampRange(sd/volNormalizer, 0, 1)
}

func stddev(vals []float64) float64 {
	var mean float64
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))

	var variance float64
	for _, v := range vals {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(vals) - 1)
	return math.Sqrt(variance)
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampUnit(v float64) float64 {
	return clampRange(v, 0, 1)
}
