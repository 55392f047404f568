package exit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/shortsentinel/internal/config"
)

func TestTrailingForShortHardStop(t *testing.T) {
	m := New(config.Default()) // hard stop at -1.2%
	result := m.TrailingForShort(100, 101.5, 100)
	assert.True(t, result.ShouldExit)
	assert.Equal(t, ReasonHardStop, result.Reason)
}

func TestTrailingForShortNoExitBeforeActivation(t *testing.T) {
	m := New(config.Default())
	result := m.TrailingForShort(100, 99.8, 99.8) // +0.2% favorable, below 0.6% activation
	assert.False(t, result.ShouldExit)
	assert.False(t, result.TrailActive)
}

func TestTrailingForShortGivesBackAfterActivation(t *testing.T) {
	m := New(config.Default())
	// Price fell to 98.5 (peak pnl 1.5%), activating the trail (>=0.6%), then
	// bounced back to 99.2 (pnl still 0.8%, itself above the 0.6% floor),
	// giving back 0.7% >= the 0.4% threshold.
	bestLow := 98.5
	result := m.TrailingForShort(100, 99.2, bestLow)
	assert.True(t, result.TrailActive)
	assert.True(t, result.ShouldExit)
	assert.Equal(t, ReasonTrailingStop, result.Reason)
}

func TestTrailingForShortHoldsWhenCurrentPnLRetracesBelowActivation(t *testing.T) {
	m := New(config.Default())
	// Price fell to 99.2 (peak pnl 0.8%, past activation), then recovered to
	// 99.7 (current pnl 0.3%, back below the 0.6% activation floor). The
	// trail must not be considered active on stale peak pnl alone.
	bestLow := 99.2
	result := m.TrailingForShort(100, 99.7, bestLow)
	assert.False(t, result.TrailActive)
	assert.False(t, result.ShouldExit)
}

func TestTrailingForShortUpdatesBestLowOnNewLow(t *testing.T) {
	m := New(config.Default())
	result := m.TrailingForShort(100, 98.5, 99.0)
	assert.Equal(t, 98.5, result.UpdatedBestLow)
}

func TestTrailingForShortKeepsBestLowWhenPriceRises(t *testing.T) {
	m := New(config.Default())
	result := m.TrailingForShort(100, 99.2, 98.5)
	assert.Equal(t, 98.5, result.UpdatedBestLow)
}

func TestOpenAndClose(t *testing.T) {
	now := time.Now()
	pos := Open("BTCUSDT", 100, now)
	assert.Equal(t, 100.0, pos.BestLow)

	m := New(config.Default())
	result := m.TrailingForShort(100, 101.5, pos.BestLow)
	closed := Close(pos, result, 101.5, now.Add(time.Minute))
	assert.Equal(t, "hard_stop", closed.ExitReason)
	assert.Equal(t, 101.5, closed.ExitPrice)
}
