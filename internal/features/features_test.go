package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/shortsentinel/internal/model"
)

func tick(symbol string, ts time.Time, price float64) model.UnifiedTick {
	return model.UnifiedTick{Symbol: symbol, Timestamp: ts, Price: price}
}

func TestFundingImpulseClampsAndNegates(t *testing.T) {
	assert.Equal(t, 0.0, fundingImpulse(0, false))
	assert.InDelta(t, -1.0, fundingImpulse(0.02, true), 0.001) // positive funding -> negative impulse
	assert.InDelta(t, 1.0, fundingImpulse(-0.02, true), 0.001)
	assert.InDelta(t, -0.5, fundingImpulse(0.005, true), 0.001)
}

func TestAskDominanceGuardsZeroDenominator(t *testing.T) {
	assert.Equal(t, 0.5, askDominance(0, 0))
	assert.InDelta(t, 0.75, askDominance(1, 3), 0.001)
}

func TestOIDivergenceNeedsPriorSample(t *testing.T) {
	p := New()
	s := p.state("BTCUSDT")

	// First sample: no prior, divergence must be 0.
	assert.Equal(t, 0.0, s.oiDivergence(1000, true))
	// Second sample: (1100-1000)/1000 = 0.1
	assert.InDelta(t, 0.1, s.oiDivergence(1100, true), 0.001)
}

func TestOIDivergenceGuardsNonPositive(t *testing.T) {
	p := New()
	s := p.state("BTCUSDT")
	s.oiDivergence(0, true)
	assert.Equal(t, 0.0, s.oiDivergence(100, true))
}

func TestShortMomentumPositiveOnFallingPrice(t *testing.T) {
	p := New()
	now := time.Now()
	p.Compute(tick("BTCUSDT", now.Add(-29*time.Second), 100), 0)
	fv := p.Compute(tick("BTCUSDT", now, 99), 0)
	assert.Greater(t, fv.ShortMomentum, 0.0)
	assert.True(t, fv.PriceFalling)
}

func TestShortMomentumZeroOnRisingPrice(t *testing.T) {
	p := New()
	now := time.Now()
	p.Compute(tick("BTCUSDT", now.Add(-29*time.Second), 100), 0)
	fv := p.Compute(tick("BTCUSDT", now, 101), 0)
	assert.Equal(t, 0.0, fv.ShortMomentum)
	assert.False(t, fv.PriceFalling)
}

func TestVolatilityBurstRequiresMinimumSamples(t *testing.T) {
	p := New()
	now := time.Now()
	fv := p.Compute(tick("BTCUSDT", now, 100), 0)
	assert.Equal(t, 0.0, fv.VolatilityBurst)
}

func TestComputeClampsBTCAlignment(t *testing.T) {
	p := New()
	fv := p.Compute(tick("BTCUSDT", time.Now(), 100), 1.5)
	assert.Equal(t, 1.0, fv.BTCAlignment)
}
