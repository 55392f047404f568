// Package model holds the core data types shared across the engine: venue
// events as they arrive off the wire, the cross-venue unified tick the hub
// produces, the feature vector the scorer consumes, and the signal/position
// records the journal persists.
package model

import "time"

// Venue identifies one of the four supported perpetual futures exchanges.
type Venue string

const (
	VenueBinance Venue = "binance"
	VenueBybit   Venue = "bybit"
	VenueMEXC    Venue = "mexc"
	VenueLBank   Venue = "lbank"
)

// EventKind discriminates the payload carried by a VenueEvent.
type EventKind int

const (
	EventOrderbook EventKind = iota
	EventTrade
	EventMark
	EventFunding
	EventOpenInterest
)

// VenueEvent is the normalized shape every per-venue adapter emits onto the
// hub's intake channel, regardless of wire format.
type VenueEvent struct {
	Venue     Venue
	Symbol    string // canonical symbol, e.g. "BTCUSDT"
	Kind      EventKind
	Timestamp time.Time

	// Orderbook fields (EventOrderbook)
	BidPrice float64
	AskPrice float64
	BidSize  float64
	AskSize  float64

	// Trade fields (EventTrade)
	TradePrice float64
	TradeSize  float64
	TakerSide  string // "buy" or "sell"

	// Mark price fields (EventMark)
	MarkPrice float64

	// Funding fields (EventFunding)
	FundingRate float64

	// Open interest fields (EventOpenInterest)
	OpenInterest float64
}

// PerVenueMetric is the hub's rolling per-venue, per-symbol cache entry used
// to compute cross-venue averages. Each field carries its own last-update
// timestamp so freshness windows can be evaluated independently.
type PerVenueMetric struct {
	Venue  Venue
	Symbol string

	Price     float64
	PriceTS   time.Time
	Spread    float64
	SpreadTS  time.Time
	BidTotal  float64
	AskTotal  float64
	DepthTS   time.Time
	Mark      float64
	MarkTS    time.Time
	Funding   float64
	FundingTS time.Time
	OI        float64
	OITS      time.Time
}

// UnifiedTick is the cross-venue-averaged snapshot the hub emits for one
// symbol, consumed by the orchestrator's single consumer loop.
type UnifiedTick struct {
	Symbol    string
	Timestamp time.Time

	Price     float64
	Mark      float64
	Spread    float64
	BidTotal  float64
	AskTotal  float64
	Imbalance float64 // averaged per-venue (ask-bid)/(bid+ask), signed [-1,1]

	Funding    float64
	FundingSet bool
	OI         float64
	OISet      bool

	// SweepRejection is an optional venue-trade-derived taker-dominance
	// aggregate (see SPEC_FULL.md §6); zero when no venue has recent trades.
	SweepRejection float64
}

// FeatureVector holds the seven scalar inputs to the scorer, each clamped to
// its documented range before scoring.
type FeatureVector struct {
	Symbol    string
	Timestamp time.Time

	OIDivergence       float64 // [-1, 1]
	LiquidityPressure  float64 // [0, 1]
	OrderflowImbalance float64 // [0, 1]
	SweepRejection     float64 // [0, 1]
	ShortMomentum      float64 // [0, 1]
	FundingImpulse     float64 // [-1, 1]
	BTCAlignment       float64 // [0, 1]

	// Diagnostic-only fields, not scored directly. AskDominance,
	// LiquidityGapAbove and SpreadPct feed the entry trigger gate;
	// VolatilityBurst feeds only its dedup hash.
	AskDominance       float64
	LiquidityGapAbove  float64
	SpreadPct          float64
	NearResistance     float64
	PriceFalling       bool
	VolatilityBurst    float64
}

// Score is the scorer's output: a 0-100 composite plus the feature snapshot
// it was computed from, so the journal can store both together.
type Score struct {
	Symbol    string
	Timestamp time.Time
	Value     float64
	Features  FeatureVector
}

// SignalType distinguishes entry and exit journal rows.
type SignalType string

const (
	SignalEntry SignalType = "entry"
	SignalExit  SignalType = "exit"
)

// Signal is a journalled entry or exit event.
type Signal struct {
	Timestamp  time.Time
	Symbol     string
	Type       SignalType
	Score      float64
	EntryPrice float64
	Reason     string
	DedupHash  string
}

// PositionStatus tracks the lifecycle of an open short position.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// Position is a single-symbol short position under trailing-stop management.
type Position struct {
	Symbol     string
	EntryTS    time.Time
	EntryPrice float64
	Status     PositionStatus
	BestLow    float64
	ExitTS     time.Time
	ExitPrice  float64
	ExitReason string
	PnLPct     float64

	// TrailActive mirrors the exit manager's trailing-activation flag from
	// the evaluation that closed the position (set by exit.Close); it is not
	// persisted, and positions read back from the journal leave it false.
	TrailActive bool
}

// BTCKline is one closed 1-minute candle from the BTC regime poller.
type BTCKline struct {
	Timestamp time.Time
	Close     float64
}
