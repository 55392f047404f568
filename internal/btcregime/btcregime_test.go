package btcregime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/shortsentinel/internal/model"
)

func kline(minutesAgo int, close float64) model.BTCKline {
	return model.BTCKline{Timestamp: time.Now().Add(-time.Duration(minutesAgo) * time.Minute), Close: close}
}

func TestAlignmentOfNoPump(t *testing.T) {
	var klines []model.BTCKline
	for i := 60; i >= 0; i-- {
		klines = append(klines, kline(i, 50000))
	}
	assert.Equal(t, 0.0, alignmentOf(klines))
}

func TestAlignmentOfStrongPumpClampsToOne(t *testing.T) {
	var klines []model.BTCKline
	for i := 60; i >= 0; i-- {
		klines = append(klines, kline(i, 50000))
	}
	klines[len(klines)-1].Close = 55000 // +10% over the 5m lookback, way past the 3% normalizer
	assert.Equal(t, 1.0, alignmentOf(klines))
}

func TestAlignmentOfInsufficientHistory(t *testing.T) {
	assert.Equal(t, 0.0, alignmentOf(nil))
	assert.Equal(t, 0.0, alignmentOf([]model.BTCKline{kline(0, 50000)}))
}

func TestRegimeIngestIgnoresOutOfOrderCandles(t *testing.T) {
	r := New()
	r.ingest(model.BTCKline{Timestamp: time.Now(), Close: 100})
	r.ingest(model.BTCKline{Timestamp: time.Now().Add(-time.Minute), Close: 200})
	assert.Len(t, r.klines, 1)
	assert.Equal(t, 100.0, r.klines[0].Close)
}
