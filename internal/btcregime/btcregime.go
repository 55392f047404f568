// Package btcregime tracks BTC's own short-term momentum and exposes an
// "alignment" scalar the Feature Pipeline blends into every symbol's score:
// a strong BTC pump makes short entries on altcoins less attractive.
//
// Grounded on original_source/features/btc_regime.py (a direct port) and
// styled after the teacher's internal/domain/regime/detector.go (rolling
// window + majority-style blend, though this is simpler than the teacher's
// three-indicator regime vote since the spec needs only a single scalar).
package btcregime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sawpanic/shortsentinel/internal/model"
	"github.com/sawpanic/shortsentinel/internal/venue"
)

const (
	klineWindow  = 360 // 6 hours of 1m candles
	pollInterval = 30 * time.Second
	klineFetch   = 60
	pumpNormalizer = 0.03
)

// Regime tracks BTC's rolling 1-minute closes and derives an alignment
// scalar. It holds no lock, so its methods are safe to call from a single
// goroutine only; Poll calls Alignment itself and hands each value to the
// caller over the update channel.
type Regime struct {
	klines []model.BTCKline
	latest float64
}

// New returns an empty Regime tracker.
func New() *Regime {
	return &Regime{}
}

// Poll runs every pollInterval until ctx is canceled, fetching the latest
// BTCUSDT 1m klines from Binance's public REST API.
func (r *Regime) Poll(ctx context.Context, client *venue.RESTClient, update chan<- float64) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	if err := r.refresh(ctx, client); err != nil {
		log.Warn().Err(err).Msg("initial btc regime poll failed")
	} else {
		update <- r.Alignment()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.refresh(ctx, client); err != nil {
				log.Warn().Err(err).Msg("btc regime poll failed")
				continue
			}
			update <- r.Alignment()
		}
	}
}

type binanceKline []any // [openTime, open, high, low, close, volume, ...]

func (r *Regime) refresh(ctx context.Context, client *venue.RESTClient) error {
	url := fmt.Sprintf("https://fapi.binance.com/fapi/v1/klines?symbol=BTCUSDT&interval=1m&limit=%d", klineFetch)
	body, err := client.Get(ctx, url)
	if err != nil {
		return fmt.Errorf("fetch btc klines: %w", err)
	}

	var raw []binanceKline
	if err := json.Unmarshal(body, &raw); err != nil {
		return fmt.Errorf("decode btc klines: %w", err)
	}

	for _, k := range raw {
		if len(k) < 5 {
			continue
		}
		openTimeMs, ok := k[0].(float64)
		if !ok {
			continue
		}
		closeStr, ok := k[4].(string)
		if !ok {
			continue
		}
		var closePrice float64
		if _, err := fmt.Sscanf(closeStr, "%f", &closePrice); err != nil {
			continue
		}
		r.ingest(model.BTCKline{
			Timestamp: time.UnixMilli(int64(openTimeMs)),
			Close:     closePrice,
		})
	}
	return nil
}

func (r *Regime) ingest(k model.BTCKline) {
	if len(r.klines) > 0 && !r.klines[len(r.klines)-1].Timestamp.Before(k.Timestamp) {
		return // already have this (or a newer) candle
	}
	r.klines = append(r.klines, k)
	if len(r.klines) > klineWindow {
		r.klines = r.klines[len(r.klines)-klineWindow:]
	}
	r.latest = alignmentOf(r.klines)
}

// Alignment returns the most recently computed [0,1] pump-alignment scalar.
func (r *Regime) Alignment() float64 {
	return r.latest
}

// alignmentOf mirrors original_source/features/btc_regime.py's
// BTCRegime.alignment(): blend the 5-candle and 60-candle returns and
// normalize the stronger pump into [0,1].
func alignmentOf(klines []model.BTCKline) float64 {
	n := len(klines)
	if n < 2 {
		return 0
	}

	r5 := returnBack(klines, 5)
	r60 := returnBack(klines, 60)
	pump := r5
	if r60 > pump {
		pump = r60
	}
	return clampUnit(pump / pumpNormalizer)
}

func returnBack(klines []model.BTCKline, lag int) float64 {
	n := len(klines)
	idx := n - 1 - lag
	if idx < 0 {
		idx = 0
	}
	prior := klines[idx].Close
	latest := klines[n-1].Close
	if prior <= 0 {
		return 0
	}
	return (latest - prior) / prior
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
