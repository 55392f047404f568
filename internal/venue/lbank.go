package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sawpanic/shortsentinel/internal/model"
	"github.com/sawpanic/shortsentinel/internal/symbols"
)

// LBankAdapter streams LBank futures depth/trade/tick data. LBank's wire
// symbol spelling ("btc_usdt") differs from the canonical form used
// elsewhere, so every inbound message is translated via symbols.FromLBank,
// matching original_source/data_fetcher/hub.py's _canon special-case.
type LBankAdapter struct {
	WSURL string
}

func NewLBankAdapter() *LBankAdapter {
	return &LBankAdapter{WSURL: "wss://www.lbkex.net/ws/V2/"}
}

func (a *LBankAdapter) Venue() model.Venue { return model.VenueLBank }

func (a *LBankAdapter) Run(ctx context.Context, syms []string, events chan<- model.VenueEvent) error {
	groups := chunk(syms, MaxSymbolsPerConn)
	errc := make(chan error, len(groups))
	for _, group := range groups {
		group := group
		go func() { errc <- a.runGroup(ctx, group, events) }()
	}
	var firstErr error
	for range groups {
		if err := <-errc; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (a *LBankAdapter) runGroup(ctx context.Context, group []string, events chan<- model.VenueEvent) error {
	dial := func(ctx context.Context) (*websocket.Conn, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.WSURL, nil)
		if err != nil {
			return nil, err
		}
		for _, sym := range group {
			wireSym := symbols.ToLBank(sym)
			for _, subType := range []string{"depth", "trade", "tick"} {
				sub := map[string]any{
					"action":    "subscribe",
					"subscribe": subType,
					"pair":      wireSym,
					"depth":     "20",
				}
				payload, _ := json.Marshal(sub)
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					conn.Close()
					return nil, fmt.Errorf("subscribe %s %s: %w", subType, wireSym, err)
				}
			}
		}
		return conn, nil
	}
	onMessage := func(data []byte) error {
		return a.handleMessage(data, events)
	}
	return runWithReconnect(ctx, string(model.VenueLBank), dial, onMessage)
}

type lbankEnvelope struct {
	Type  string      `json:"type"`
	Pair  string      `json:"pair"`
	Depth *lbankDepth `json:"depth,omitempty"`
	Trade *lbankTrade `json:"trade,omitempty"`
	Tick  *lbankTick  `json:"tick,omitempty"`
}

type lbankDepth struct {
	Bids [][]float64 `json:"bids"`
	Asks [][]float64 `json:"asks"`
}

type lbankTrade struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
	Dir    string  `json:"direction"` // "buy" or "sell"
}

type lbankTick struct {
	Latest       float64 `json:"latest"`
	FundingRate  float64 `json:"fundingRate"`
	OpenInterest float64 `json:"openInterest"`
}

func (a *LBankAdapter) handleMessage(data []byte, events chan<- model.VenueEvent) error {
	var env lbankEnvelope
	if err := json.Unmarshal(data, &env); err != nil || env.Pair == "" {
		return nil // pings/acks carry no pair
	}
	symbol := symbols.FromLBank(env.Pair)
	now := time.Now()

	switch env.Type {
	case "depth":
		if env.Depth == nil {
			return fmt.Errorf("missing depth payload")
		}
		bidTotal, bidTop := sumFloatLevels(env.Depth.Bids)
		askTotal, askTop := sumFloatLevels(env.Depth.Asks)
		events <- model.VenueEvent{
			Venue: model.VenueLBank, Symbol: symbol, Kind: model.EventOrderbook, Timestamp: now,
			BidPrice: bidTop, AskPrice: askTop, BidSize: bidTotal, AskSize: askTotal,
		}
	case "trade":
		if env.Trade == nil {
			return fmt.Errorf("missing trade payload")
		}
		events <- model.VenueEvent{
			Venue: model.VenueLBank, Symbol: symbol, Kind: model.EventTrade, Timestamp: now,
			TradePrice: env.Trade.Price, TradeSize: env.Trade.Amount, TakerSide: env.Trade.Dir,
		}
	case "tick":
		if env.Tick == nil {
			return fmt.Errorf("missing tick payload")
		}
		events <- model.VenueEvent{Venue: model.VenueLBank, Symbol: symbol, Kind: model.EventMark, Timestamp: now, MarkPrice: env.Tick.Latest}
		events <- model.VenueEvent{Venue: model.VenueLBank, Symbol: symbol, Kind: model.EventFunding, Timestamp: now, FundingRate: env.Tick.FundingRate}
		events <- model.VenueEvent{Venue: model.VenueLBank, Symbol: symbol, Kind: model.EventOpenInterest, Timestamp: now, OpenInterest: env.Tick.OpenInterest}
	}
	return nil
}
