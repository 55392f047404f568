package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sawpanic/shortsentinel/internal/model"
)

// MEXCAdapter streams MEXC futures (contract) depth, deals, and ticker data.
type MEXCAdapter struct {
	WSURL string
}

func NewMEXCAdapter() *MEXCAdapter {
	return &MEXCAdapter{WSURL: "wss://contract.mexc.com/edge"}
}

func (a *MEXCAdapter) Venue() model.Venue { return model.VenueMEXC }

func (a *MEXCAdapter) Run(ctx context.Context, symbols []string, events chan<- model.VenueEvent) error {
	groups := chunk(symbols, MaxSymbolsPerConn)
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

func (a *MEXCAdapter) runGroup(ctx context.Context, group []string, events chan<- model.VenueEvent) error {
	dial := func(ctx context.Context) (*websocket.Conn, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.WSURL, nil)
		if err != nil {
			return nil, err
		}
		for _, sym := range group {
			for _, method := range []string{"sub.depth", "sub.deal", "sub.ticker"} {
				sub := map[string]any{"method": method, "param": map[string]string{"symbol": sym}}
				payload, _ := json.Marshal(sub)
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					conn.Close()
					return nil, fmt.Errorf("subscribe %s %s: %w", method, sym, err)
				}
			}
		}
		return conn, nil
	}
	onMessage := func(data []byte) error {
		return a.handleMessage(data, events)
	}
	return runWithReconnect(ctx, string(model.VenueMEXC), dial, onMessage)
}

type mexcEnvelope struct {
	Channel string          `json:"channel"`
	Symbol  string          `json:"symbol"`
	Data    json.RawMessage `json:"data"`
}

type mexcDepth struct {
	Bids [][]float64 `json:"bids"` // [price, qty, orderCount]
	Asks [][]float64 `json:"asks"`
}

type mexcDeal struct {
	Price float64 `json:"p"`
	Qty   float64 `json:"v"`
	Side  int     `json:"T"` // 1 = buy, 2 = sell
}

type mexcTicker struct {
	FairPrice    float64 `json:"fairPrice"`
	FundingRate  float64 `json:"fundingRate"`
	HoldVol      float64 `json:"holdVol"`
}

func (a *MEXCAdapter) handleMessage(data []byte, events chan<- model.VenueEvent) error {
	var env mexcEnvelope
	if err := json.Unmarshal(data, &env); err != nil || env.Channel == "" {
		return nil
	}
	symbol := strings.ToUpper(strings.ReplaceAll(env.Symbol, "_", ""))
	now := time.Now()

	switch env.Channel {
	case "push.depth":
		var d mexcDepth
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return fmt.Errorf("decode depth: %w", err)
		}
		bidTotal, bidTop := sumFloatLevels(d.Bids)
		askTotal, askTop := sumFloatLevels(d.Asks)
		events <- model.VenueEvent{
			Venue: model.VenueMEXC, Symbol: symbol, Kind: model.EventOrderbook, Timestamp: now,
			BidPrice: bidTop, AskPrice: askTop, BidSize: bidTotal, AskSize: askTotal,
		}
	case "push.deal":
		var deals []mexcDeal
		if err := json.Unmarshal(env.Data, &deals); err != nil {
			return fmt.Errorf("decode deals: %w", err)
		}
		for _, d := range deals {
			side := "buy"
			if d.Side == 2 {
				side = "sell"
			}
			events <- model.VenueEvent{
				Venue: model.VenueMEXC, Symbol: symbol, Kind: model.EventTrade, Timestamp: now,
				TradePrice: d.Price, TradeSize: d.Qty, TakerSide: side,
			}
		}
	case "push.ticker":
		var t mexcTicker
		if err := json.Unmarshal(env.Data, &t); err != nil {
			return fmt.Errorf("decode ticker: %w", err)
		}
		events <- model.VenueEvent{Venue: model.VenueMEXC, Symbol: symbol, Kind: model.EventMark, Timestamp: now, MarkPrice: t.FairPrice}
		events <- model.VenueEvent{Venue: model.VenueMEXC, Symbol: symbol, Kind: model.EventFunding, Timestamp: now, FundingRate: t.FundingRate}
		events <- model.VenueEvent{Venue: model.VenueMEXC, Symbol: symbol, Kind: model.EventOpenInterest, Timestamp: now, OpenInterest: t.HoldVol}
	}
	return nil
}

func sumFloatLevels(levels [][]float64) (total, top float64) {
	for i, row := range levels {
		if len(row) < 2 {
			continue
		}
		total += row[0] * row[1]
		if i == 0 {
			top = row[0]
		}
	}
	return total, top
}
