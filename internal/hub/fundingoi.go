package hub

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sawpanic/shortsentinel/internal/model"
	"github.com/sawpanic/shortsentinel/internal/venue"
)

const (
	fundingOIPollInterval = 60 * time.Second
	fundingOIBatchSize    = 50
	fundingOIMaxFailures  = 5
)

// FundingOIFetcher is implemented by adapters whose WebSocket stream does not
// carry open interest (Binance futures, notably), requiring a REST fallback.
// Grounded on original_source/data_fetcher/hub.py's _funding_oi_loop.
type FundingOIFetcher interface {
	Venue() model.Venue
	FetchFundingOI(ctx context.Context, client *venue.RESTClient, symbol string) (funding, oi float64, err error)
}

// RunFundingOIPoll polls fetcher every fundingOIPollInterval for all symbols
// in windowed batches, skipping symbols that have failed repeatedly, and
// feeds results back through the hub's normal event-processing path.
func (h *Hub) RunFundingOIPoll(ctx context.Context, fetcher FundingOIFetcher, client *venue.RESTClient, allSymbols []string) error {
	ticker := time.NewTicker(fundingOIPollInterval)
	defer ticker.Stop()

	failures := make(map[string]int)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			active := make([]string, 0, len(allSymbols))
			for _, s := range allSymbols {
				if failures[s] < fundingOIMaxFailures {
					active = append(active, s)
				}
			}
			for start := 0; start < len(active); start += fundingOIBatchSize {
				end := start + fundingOIBatchSize
				if end > len(active) {
					end = len(active)
				}
				for _, sym := range active[start:end] {
					funding, oi, err := fetcher.FetchFundingOI(ctx, client, sym)
					if err != nil {
						failures[sym]++
						log.Debug().Str("symbol", sym).Err(err).Int("failures", failures[sym]).Msg("funding/oi poll failed")
						continue
					}
					failures[sym] = 0
					now := time.Now()
					h.intake <- model.VenueEvent{Venue: fetcher.Venue(), Symbol: sym, Kind: model.EventFunding, Timestamp: now, FundingRate: funding}
					h.intake <- model.VenueEvent{Venue: fetcher.Venue(), Symbol: sym, Kind: model.EventOpenInterest, Timestamp: now, OpenInterest: oi}
				}
			}
		}
	}
}
