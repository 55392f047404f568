package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/shortsentinel/internal/config"
	"github.com/sawpanic/shortsentinel/internal/model"
)

func passingFeatures(symbol string) model.FeatureVector {
	return model.FeatureVector{
		Symbol:            symbol,
		SweepRejection:    0.8,
		AskDominance:      0.7,
		LiquidityGapAbove: 0.01,
		SpreadPct:         0.001,
		OIDivergence:      0.2,
		FundingImpulse:    -0.1,
		BTCAlignment:      0.2,
	}
}

func TestEvaluateProceedsWhenAllSevenHold(t *testing.T) {
	tr := New(config.Default())
	fv := passingFeatures("BTCUSDT")
	d := tr.Evaluate(fv, model.Score{Value: 70}, 100, time.Now())
	require.True(t, d.Proceed)
	assert.Equal(t, 7, d.ConditionsMet)
	assert.NotEmpty(t, d.DedupHash)
}

func TestEvaluateFailsWhenOnlyFiveHold(t *testing.T) {
	tr := New(config.Default())
	fv := passingFeatures("BTCUSDT")
	fv.BTCAlignment = 0.9  // fails condition 7
	fv.SpreadPct = 0.01    // fails condition 4
	d := tr.Evaluate(fv, model.Score{Value: 70}, 100, time.Now())
	assert.False(t, d.Proceed)
	assert.Equal(t, 5, d.ConditionsMet)
}

func TestEvaluateRespectsCooldown(t *testing.T) {
	tr := New(config.Default())
	now := time.Now()
	fv := passingFeatures("BTCUSDT")

	first := tr.Evaluate(fv, model.Score{Value: 70}, 100, now)
	require.True(t, first.Proceed)
	tr.RecordEntry(fv.Symbol, first.DedupHash, now)

	second := tr.Evaluate(fv, model.Score{Value: 70}, 100, now.Add(10*time.Second))
	assert.False(t, second.Proceed)
	assert.Equal(t, "cooldown", second.SkipReason)
}

func TestEvaluateAllowsReentryAfterCooldown(t *testing.T) {
	cfg := config.Default()
	cfg.EntryCooldown = 1 * time.Second
	tr := New(cfg)
	now := time.Now()
	fv := passingFeatures("BTCUSDT")

	first := tr.Evaluate(fv, model.Score{Value: 70}, 100, now)
	tr.RecordEntry(fv.Symbol, first.DedupHash, now)

	later := now.Add(2 * time.Second)
	second := tr.Evaluate(fv, model.Score{Value: 70}, 101, later)
	assert.True(t, second.Proceed)
}

func TestEvaluateDedupSkipsIdenticalSnapshot(t *testing.T) {
	cfg := config.Default()
	cfg.EntryCooldown = 0
	tr := New(cfg)
	now := time.Now()
	fv := passingFeatures("BTCUSDT")

	first := tr.Evaluate(fv, model.Score{Value: 70}, 100, now)
	tr.RecordEntry(fv.Symbol, first.DedupHash, now)
	delete(tr.lastEntryAt, fv.Symbol) // isolate dedup behavior from cooldown

	second := tr.Evaluate(fv, model.Score{Value: 70}, 100, now.Add(time.Second))
	assert.False(t, second.Proceed)
	assert.Equal(t, "duplicate", second.SkipReason)
}

func TestEvaluateDailyLimit(t *testing.T) {
	cfg := config.Default()
	cfg.EntryCooldown = 0
	cfg.MaxSignalsPerDay = 1
	tr := New(cfg)
	now := time.Now()

	first := tr.Evaluate(passingFeatures("BTCUSDT"), model.Score{Value: 70}, 100, now)
	tr.RecordEntry("BTCUSDT", first.DedupHash, now)

	second := tr.Evaluate(passingFeatures("ETHUSDT"), model.Score{Value: 70}, 200, now.Add(time.Second))
	assert.False(t, second.Proceed)
	assert.Equal(t, "daily_limit", second.SkipReason)
}

func TestDedupHashStableForSameInputs(t *testing.T) {
	fv := passingFeatures("BTCUSDT")
	score := model.Score{Value: 70}
	h1 := dedupHash(fv, score, 100.12345)
	h2 := dedupHash(fv, score, 100.12345)
	assert.Equal(t, h1, h2)
}

func TestDedupHashChangesWithPrice(t *testing.T) {
	fv := passingFeatures("BTCUSDT")
	score := model.Score{Value: 70}
	h1 := dedupHash(fv, score, 100)
	h2 := dedupHash(fv, score, 105)
	assert.NotEqual(t, h1, h2)
}
