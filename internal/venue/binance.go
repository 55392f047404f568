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

// BinanceAdapter streams combined depth20/aggTrade/markPrice futures streams,
// grounded on original_source/data_fetcher/binance_ws.go.
type BinanceAdapter struct {
	WSBase string // default: wss://fstream.binance.com
}

func NewBinanceAdapter() *BinanceAdapter {
	return &BinanceAdapter{WSBase: "wss://fstream.binance.com"}
}

func (a *BinanceAdapter) Venue() model.Venue { return model.VenueBinance }

func (a *BinanceAdapter) Run(ctx context.Context, symbols []string, events chan<- model.VenueEvent) error {
	groups := chunk(symbols, MaxSymbolsPerConn)
	errc := make(chan error, len(groups))
	for _, group := range groups {
		group := group
		go func() {
			errc <- a.runGroup(ctx, group, events)
		}()
	}
	var firstErr error
	for range groups {
		if err := <-errc; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (a *BinanceAdapter) runGroup(ctx context.Context, group []string, events chan<- model.VenueEvent) error {
	streams := make([]string, 0, len(group)*3)
	for _, sym := range group {
		lower := strings.ToLower(sym)
		streams = append(streams,
			lower+"@depth20@100ms",
			lower+"@aggTrade",
			lower+"@markPrice@1s",
		)
	}
	url := a.WSBase + "/stream?streams=" + strings.Join(streams, "/")

	dial := func(ctx context.Context) (*websocket.Conn, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		return conn, err
	}
	onMessage := func(data []byte) error {
		return a.handleMessage(data, events)
	}
	return runWithReconnect(ctx, string(model.VenueBinance), dial, onMessage)
}

type binanceEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type binanceDepthMsg struct {
	Bids [][]string `json:"b"`
	Asks [][]string `json:"a"`
}

type binanceAggTradeMsg struct {
	Price string `json:"p"`
	Qty   string `json:"q"`
	Maker bool   `json:"m"` // true if buyer is the maker => taker side is sell
}

type binanceMarkPriceMsg struct {
	Symbol      string `json:"s"`
	MarkPrice   string `json:"p"`
	FundingRate string `json:"r"`
}

func (a *BinanceAdapter) handleMessage(data []byte, events chan<- model.VenueEvent) error {
	var env binanceEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	parts := strings.SplitN(env.Stream, "@", 2)
	if len(parts) != 2 {
		return fmt.Errorf("unrecognized stream %q", env.Stream)
	}
	symbol := strings.ToUpper(parts[0])
	now := time.Now()

	switch {
	case strings.HasPrefix(parts[1], "depth"):
		var d binanceDepthMsg
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return fmt.Errorf("decode depth: %w", err)
		}
		bidTotal, bidTop, bidOK := sumLevels(d.Bids)
		askTotal, askTop, askOK := sumLevels(d.Asks)
		if !bidOK && !askOK {
			return nil
		}
		events <- model.VenueEvent{
			Venue: model.VenueBinance, Symbol: symbol, Kind: model.EventOrderbook, Timestamp: now,
			BidPrice: bidTop, AskPrice: askTop, BidSize: bidTotal, AskSize: askTotal,
		}
	case parts[1] == "aggTrade":
		var t binanceAggTradeMsg
		if err := json.Unmarshal(env.Data, &t); err != nil {
			return fmt.Errorf("decode trade: %w", err)
		}
		price, err1 := strconv.ParseFloat(t.Price, 64)
		qty, err2 := strconv.ParseFloat(t.Qty, 64)
		if err1 != nil || err2 != nil {
			return fmt.Errorf("parse trade fields")
		}
		side := "buy"
		if t.Maker {
			side = "sell"
		}
		events <- model.VenueEvent{
			Venue: model.VenueBinance, Symbol: symbol, Kind: model.EventTrade, Timestamp: now,
			TradePrice: price, TradeSize: qty, TakerSide: side,
		}
	case strings.HasPrefix(parts[1], "markPrice"):
		var m binanceMarkPriceMsg
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return fmt.Errorf("decode mark price: %w", err)
		}
		mark, err1 := strconv.ParseFloat(m.MarkPrice, 64)
		rate, err2 := strconv.ParseFloat(m.FundingRate, 64)
		if err1 != nil {
			return fmt.Errorf("parse mark price")
		}
		events <- model.VenueEvent{
			Venue: model.VenueBinance, Symbol: symbol, Kind: model.EventMark, Timestamp: now, MarkPrice: mark,
		}
		if err2 == nil {
			events <- model.VenueEvent{
				Venue: model.VenueBinance, Symbol: symbol, Kind: model.EventFunding, Timestamp: now, FundingRate: rate,
			}
		}
	}
	return nil
}

// sumLevels totals price*qty across depth levels and returns the total
// notional, the top-of-book price, and whether any valid level was parsed.
func sumLevels(levels [][]string) (total float64, top float64, ok bool) {
	for i, row := range levels {
		if len(row) < 2 {
			continue
		}
		price, err1 := strconv.ParseFloat(row[0], 64)
		qty, err2 := strconv.ParseFloat(row[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		total += price * qty
		if i == 0 {
			top = price
		}
		ok = true
	}
	return total, top, ok
}

// FetchFundingOI polls REST funding rate + open interest for one symbol,
// matching original_source/data_fetcher/hub.py's _funding_oi_loop.
func (a *BinanceAdapter) FetchFundingOI(ctx context.Context, client *RESTClient, symbol string) (funding, oi float64, err error) {
	body, err := client.Get(ctx, "https://fapi.binance.com/fapi/v1/premiumIndex?symbol="+symbol)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch premium index: %w", err)
	}
	var pi struct {
		LastFundingRate string `json:"lastFundingRate"`
	}
	if err := json.Unmarshal(body, &pi); err != nil {
		return 0, 0, fmt.Errorf("decode premium index: %w", err)
	}
	funding, _ = strconv.ParseFloat(pi.LastFundingRate, 64)

	body, err = client.Get(ctx, "https://fapi.binance.com/fapi/v1/openInterest?symbol="+symbol)
	if err != nil {
		return funding, 0, fmt.Errorf("fetch open interest: %w", err)
	}
	var oiResp struct {
		OpenInterest string `json:"openInterest"`
	}
	if err := json.Unmarshal(body, &oiResp); err != nil {
		return funding, 0, fmt.Errorf("decode open interest: %w", err)
	}
	oi, _ = strconv.ParseFloat(oiResp.OpenInterest, 64)
	return funding, oi, nil
}
