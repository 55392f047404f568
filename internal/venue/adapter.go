// Package venue implements the per-exchange WebSocket and REST adapters that
// normalize Binance, Bybit, MEXC, and LBank perpetual futures streams into
// model.VenueEvent values on a shared channel.
//
// Grounded on original_source/data_fetcher/binance_ws.go (reconnect backoff,
// symbol chunking), original_source/data_fetcher/ws_client.py (generic
// client shape), and the teacher's internal/infrastructure/websocket
// normalizer dispatch plus internal/net/{circuit,ratelimit}.
package venue

import (
	"context"

	"github.com/sawpanic/shortsentinel/internal/model"
)

// MaxSymbolsPerConn bounds how many symbols share one WebSocket connection,
// matching original_source/data_fetcher/binance_ws.go's MAX_SYM_PER_CONN.
const MaxSymbolsPerConn = 30

// Adapter streams normalized venue events for a set of symbols until ctx is
// canceled. Implementations must not block the caller past ctx cancellation
// and must retry their own transport failures internally.
type Adapter interface {
	Venue() model.Venue
	Run(ctx context.Context, symbols []string, events chan<- model.VenueEvent) error
}

// chunk splits symbols into groups of at most size, preserving order.
func chunk(symbols []string, size int) [][]string {
	var out [][]string
	for i := 0; i < len(symbols); i += size {
		end := i + size
		if end > len(symbols) {
			end = len(symbols)
		}
		out = append(out, symbols[i:end])
	}
	return out
}
