package broker

import "context"

// Client defines the interface every broker adapter must provide to the
// core. Live, bridge and paper implementations all satisfy it; the
// analysis pipeline is identical across them.
type Client interface {
	// OHLC returns the most recent count candles for the symbol and
	// timeframe, oldest first. Fails with KindDataUnavailable when no
	// candles come back after retry.
	OHLC(ctx context.Context, symbol string, tf Timeframe, count int) ([]Candle, error)

	// CurrentTick returns the freshest top-of-book quote.
	CurrentTick(ctx context.Context, symbol string) (Tick, error)

	// SymbolInfo returns contract metadata for the symbol.
	SymbolInfo(ctx context.Context, symbol string) (Instrument, error)

	// AccountInfo returns balance, equity and permission flags.
	AccountInfo(ctx context.Context) (AccountInfo, error)

	// OpenMarket submits a market order. Implementations must try fill
	// modes FOK, IOC then RETURN, and retry transient retcodes with a
	// fresh quote per attempt.
	OpenMarket(ctx context.Context, req OrderRequest) (OrderResult, error)

	// ModifySLTP updates the stop loss and take profit of an open
	// position. A no-change result counts as success.
	ModifySLTP(ctx context.Context, ticket int64, sl, tp float64) error

	// Close closes the full position.
	Close(ctx context.Context, ticket int64) error

	// PartialClose closes percent (0..100) of the position volume.
	PartialClose(ctx context.Context, ticket int64, percent float64) error

	// Positions lists open positions, optionally filtered by symbol
	// (empty string means all).
	Positions(ctx context.Context, symbol string) ([]Position, error)

	// History returns the deals belonging to a closed position ticket,
	// most recent last.
	History(ctx context.Context, ticket int64) ([]Deal, error)
}

// OrderRequest describes a market order submission
type OrderRequest struct {
	Symbol      string
	Side        Side
	Volume      float64
	StopLoss    float64
	TakeProfit  float64
	Comment     string
	MagicNumber int64
	Deviation   int // max deviation in points accepted by the broker
}
