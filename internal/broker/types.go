package broker

import "time"

// Timeframe represents a broker chart timeframe label
type Timeframe string

const (
	TFM1  Timeframe = "M1"
	TFM5  Timeframe = "M5"
	TFM15 Timeframe = "M15"
	TFM30 Timeframe = "M30"
	TFH1  Timeframe = "H1"
	TFH4  Timeframe = "H4"
	TFD1  Timeframe = "D1"
)

// Duration returns the bar duration of the timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TFM1:
		return time.Minute
	case TFM5:
		return 5 * time.Minute
	case TFM15:
		return 15 * time.Minute
	case TFM30:
		return 30 * time.Minute
	case TFH1:
		return time.Hour
	case TFH4:
		return 4 * time.Hour
	case TFD1:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// Side represents the direction of an order or position
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the opposing side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// AssetClass groups instruments that share detector and risk parameters
type AssetClass string

const (
	ForexMajor AssetClass = "forex_major"
	Crypto     AssetClass = "crypto"
	Commodity  AssetClass = "commodity"
	Indices    AssetClass = "indices"
)

// Candle represents a single OHLC bar. Sequences are ordered oldest
// first and contiguous per (symbol, timeframe).
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Body returns the absolute candle body size.
func (c Candle) Body() float64 {
	if c.Close >= c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Range returns high minus low.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// Bullish reports whether the candle closed above its open.
func (c Candle) Bullish() bool {
	return c.Close > c.Open
}

// Bearish reports whether the candle closed below its open.
func (c Candle) Bearish() bool {
	return c.Close < c.Open
}

// UpperWick returns the size of the upper wick.
func (c Candle) UpperWick() float64 {
	if c.Close >= c.Open {
		return c.High - c.Close
	}
	return c.High - c.Open
}

// LowerWick returns the size of the lower wick.
func (c Candle) LowerWick() float64 {
	if c.Close >= c.Open {
		return c.Open - c.Low
	}
	return c.Close - c.Low
}

// Instrument holds broker contract metadata for a symbol. Read-only
// during a cycle.
type Instrument struct {
	Name           string
	Class          AssetClass
	PipSize        float64
	PointSize      float64
	Digits         int
	ContractSize   float64
	PipValuePerLot float64
	VolumeMin      float64
	VolumeMax      float64
	VolumeStep     float64
	StopsLevel     float64 // broker minimum stop distance, in points
	Bid            float64
	Ask            float64
}

// Tick is the current top-of-book quote for a symbol
type Tick struct {
	Bid        float64
	Ask        float64
	SpreadPips float64
	Point      float64
	Time       time.Time
}

// AccountInfo describes the trading account state
type AccountInfo struct {
	Login            int64
	Balance          float64
	Equity           float64
	FreeMargin       float64
	Leverage         int
	TradeAllowed     bool
	TradeAlgoAllowed bool
	Currency         string
}

// Position is an open market position as reported by the broker
type Position struct {
	Ticket      int64
	Symbol      string
	Side        Side
	OpenPrice   float64
	Volume      float64
	StopLoss    float64
	TakeProfit  float64
	OpenTime    time.Time
	MagicNumber int64
	Comment     string
	Profit      float64
}

// Deal is a single historical fill, used to reconstruct exits
type Deal struct {
	Ticket     int64
	PositionID int64
	Symbol     string
	Side       Side
	Price      float64
	Volume     float64
	Profit     float64
	Swap       float64
	Commission float64
	Time       time.Time
	Reason     DealReason
}

// DealReason classifies why a deal was executed
type DealReason string

const (
	ReasonClient   DealReason = "client"
	ReasonExpert   DealReason = "expert"
	ReasonTP       DealReason = "tp"
	ReasonSL       DealReason = "sl"
	ReasonStopOut  DealReason = "stop_out"
	ReasonNewsExit DealReason = "news"
)

// FillMode is the order filling policy requested from the broker
type FillMode string

const (
	FillFOK    FillMode = "FOK"
	FillIOC    FillMode = "IOC"
	FillReturn FillMode = "RETURN"
)

// OrderResult is returned on a successful market order
type OrderResult struct {
	Ticket    int64
	FillPrice float64
	FillMode  FillMode
}
