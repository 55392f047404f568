package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sawpanic/shortsentinel/internal/model"
)

// BybitAdapter streams Bybit linear-perpetual orderbook/trade/ticker data.
type BybitAdapter struct {
	WSURL string
}

func NewBybitAdapter() *BybitAdapter {
	return &BybitAdapter{WSURL: "wss://stream.bybit.com/v5/public/linear"}
}

func (a *BybitAdapter) Venue() model.Venue { return model.VenueBybit }

func (a *BybitAdapter) Run(ctx context.Context, symbols []string, events chan<- model.VenueEvent) error {
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

func (a *BybitAdapter) runGroup(ctx context.Context, group []string, events chan<- model.VenueEvent) error {
	args := make([]string, 0, len(group)*2)
	for _, sym := range group {
		args = append(args, "orderbook.50."+sym, "publicTrade."+sym, "tickers."+sym)
	}

	dial := func(ctx context.Context) (*websocket.Conn, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.WSURL, nil)
		if err != nil {
			return nil, err
		}
		sub := map[string]any{"op": "subscribe", "args": args}
		payload, _ := json.Marshal(sub)
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			return nil, fmt.Errorf("subscribe: %w", err)
		}
		return conn, nil
	}
	onMessage := func(data []byte) error {
		return a.handleMessage(data, events)
	}
	return runWithReconnect(ctx, string(model.VenueBybit), dial, onMessage)
}

type bybitEnvelope struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

type bybitOrderbook struct {
	Bids [][]string `json:"b"`
	Asks [][]string `json:"a"`
}

type bybitTrade struct {
	Price string `json:"p"`
	Size  string `json:"v"`
	Side  string `json:"S"` // "Buy" or "Sell"
}

type bybitTicker struct {
	Symbol          string `json:"symbol"`
	MarkPrice       string `json:"markPrice"`
	FundingRate     string `json:"fundingRate"`
	OpenInterest    string `json:"openInterest"`
}

func (a *BybitAdapter) handleMessage(data []byte, events chan<- model.VenueEvent) error {
	var env bybitEnvelope
	if err := json.Unmarshal(data, &env); err != nil || env.Topic == "" {
		return nil // heartbeats/acks carry no topic
	}
	parts := strings.SplitN(env.Topic, ".", 3)
	now := time.Now()

	switch parts[0] {
	case "orderbook":
		if len(parts) < 3 {
			return fmt.Errorf("bad orderbook topic %q", env.Topic)
		}
		symbol := parts[2]
		var ob bybitOrderbook
		if err := json.Unmarshal(env.Data, &ob); err != nil {
			return fmt.Errorf("decode orderbook: %w", err)
		}
		bidTotal, bidTop, bidOK := sumLevels(ob.Bids)
		askTotal, askTop, askOK := sumLevels(ob.Asks)
		if !bidOK && !askOK {
			return nil
		}
		events <- model.VenueEvent{
			Venue: model.VenueBybit, Symbol: symbol, Kind: model.EventOrderbook, Timestamp: now,
			BidPrice: bidTop, AskPrice: askTop, BidSize: bidTotal, AskSize: askTotal,
		}
	case "publicTrade":
		var trades []bybitTrade
		if err := json.Unmarshal(env.Data, &trades); err != nil {
			return fmt.Errorf("decode trades: %w", err)
		}
		symbol := ""
		if len(parts) >= 2 {
			symbol = parts[1]
		}
		for _, t := range trades {
			price, err1 := strconv.ParseFloat(t.Price, 64)
			size, err2 := strconv.ParseFloat(t.Size, 64)
			if err1 != nil || err2 != nil {
				continue
			}
			side := "buy"
			if strings.EqualFold(t.Side, "Sell") {
				side = "sell"
			}
			events <- model.VenueEvent{
				Venue: model.VenueBybit, Symbol: symbol, Kind: model.EventTrade, Timestamp: now,
				TradePrice: price, TradeSize: size, TakerSide: side,
			}
		}
	case "tickers":
		var t bybitTicker
		if err := json.Unmarshal(env.Data, &t); err != nil {
			return fmt.Errorf("decode ticker: %w", err)
		}
		if t.Symbol == "" {
			return nil
		}
		if mark, err := strconv.ParseFloat(t.MarkPrice, 64); err == nil {
			events <- model.VenueEvent{Venue: model.VenueBybit, Symbol: t.Symbol, Kind: model.EventMark, Timestamp: now, MarkPrice: mark}
		}
		if rate, err := strconv.ParseFloat(t.FundingRate, 64); err == nil {
			events <- model.VenueEvent{Venue: model.VenueBybit, Symbol: t.Symbol, Kind: model.EventFunding, Timestamp: now, FundingRate: rate}
		}
		if oi, err := strconv.ParseFloat(t.OpenInterest, 64); err == nil {
			events <- model.VenueEvent{Venue: model.VenueBybit, Symbol: t.Symbol, Kind: model.EventOpenInterest, Timestamp: now, OpenInterest: oi}
		}
	}
	return nil
}
