package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/shortsentinel/internal/model"
)

func TestScoreAllZeroFeaturesIsZero(t *testing.T) {
	s := Score(model.FeatureVector{Symbol: "BTCUSDT"})
	assert.Equal(t, 0.0, s.Value)
}

func TestScoreAllMaxFeaturesIsHundred(t *testing.T) {
	fv := model.FeatureVector{
		Symbol:             "BTCUSDT",
		OIDivergence:       1,
		LiquidityPressure:  1,
		OrderflowImbalance: 1,
		SweepRejection:     1,
		ShortMomentum:      1,
		FundingImpulse:     1,
		BTCAlignment:       1,
	}
	s := Score(fv)
	assert.InDelta(t, 100.0, s.Value, 0.001)
}

func TestScoreClampsNegativeFeaturesToZero(t *testing.T) {
	fv := model.FeatureVector{Symbol: "BTCUSDT", OIDivergence: -1, FundingImpulse: -1}
	s := Score(fv)
	assert.Equal(t, 0.0, s.Value)
}

func TestScoreWeightsMatchSpecProportions(t *testing.T) {
	onlyOI := Score(model.FeatureVector{Symbol: "X", OIDivergence: 1}).Value
	onlySweep := Score(model.FeatureVector{Symbol: "X", SweepRejection: 1}).Value
	assert.Greater(t, onlyOI, onlySweep) // oi_divergence weight 20 > sweep_rejection weight 15
}

func TestValidateScoreRejectsOutOfRange(t *testing.T) {
	require.NoError(t, ValidateScore(model.Score{Value: 50}))
	require.Error(t, ValidateScore(model.Score{Value: 150}))
	require.Error(t, ValidateScore(model.Score{Value: -1}))
}

func TestRankScoresDescending(t *testing.T) {
	scores := []model.Score{
		{Symbol: "A", Value: 40},
		{Symbol: "B", Value: 90},
		{Symbol: "C", Value: 60},
	}
	ranked := RankScores(scores)
	require.Len(t, ranked, 3)
	assert.Equal(t, "B", ranked[0].Symbol)
	assert.Equal(t, "C", ranked[1].Symbol)
	assert.Equal(t, "A", ranked[2].Symbol)
}
