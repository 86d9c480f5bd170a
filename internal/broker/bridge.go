package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// BridgeClient talks to the terminal gateway over a websocket with a
// JSON request/response protocol. Calls are serialized; the gateway
// answers in order. A failed read or write drops the connection and the
// next call redials.
type BridgeClient struct {
	url    string
	login  int64
	server string
	logger zerolog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID int64
}

// NewBridgeClient creates a gateway client; the connection is dialed
// lazily on first use.
func NewBridgeClient(url string, login int64, server string, logger zerolog.Logger) *BridgeClient {
	return &BridgeClient{
		url:    url,
		login:  login,
		server: server,
		logger: logger.With().Str("component", "bridge").Logger(),
	}
}

type bridgeRequest struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type bridgeError struct {
	Kind    string `json:"kind"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type bridgeResponse struct {
	ID     int64           `json:"id"`
	Error  *bridgeError    `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

func (b *BridgeClient) dialLocked(ctx context.Context) error {
	if b.conn != nil {
		return nil
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.url, nil)
	if err != nil {
		return NewTransient(TransientConnection, "", "dialing gateway %s: %v", b.url, err)
	}
	b.conn = conn

	// authenticate before anything else
	auth, _ := json.Marshal(map[string]interface{}{"login": b.login, "server": b.server})
	if _, err := b.roundTripLocked(ctx, "auth", auth); err != nil {
		conn.Close()
		b.conn = nil
		return err
	}
	b.logger.Info().Str("url", b.url).Msg("gateway connected")
	return nil
}

func (b *BridgeClient) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding %s params: %w", method, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.dialLocked(ctx); err != nil {
		return err
	}
	res, err := b.roundTripLocked(ctx, method, raw)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(res, result); err != nil {
		return fmt.Errorf("decoding %s result: %w", method, err)
	}
	return nil
}

func (b *BridgeClient) roundTripLocked(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	b.nextID++
	req := bridgeRequest{ID: b.nextID, Method: method, Params: params}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(10 * time.Second)
	}
	b.conn.SetWriteDeadline(deadline)
	b.conn.SetReadDeadline(deadline)

	if err := b.conn.WriteJSON(req); err != nil {
		b.dropLocked()
		return nil, NewTransient(TransientConnection, "", "gateway write: %v", err)
	}

	var resp bridgeResponse
	if err := b.conn.ReadJSON(&resp); err != nil {
		b.dropLocked()
		return nil, NewTransient(TransientTimeout, "", "gateway read: %v", err)
	}
	if resp.ID != req.ID {
		b.dropLocked()
		return nil, NewTransient(TransientConnection, "", "gateway answered id %d for request %d", resp.ID, req.ID)
	}
	if resp.Error != nil {
		return nil, &Error{
			Kind:    FailureKind(resp.Error.Kind),
			Code:    TransientCode(resp.Error.Code),
			Message: resp.Error.Message,
		}
	}
	return resp.Result, nil
}

func (b *BridgeClient) dropLocked() {
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}

// Shutdown closes the gateway connection.
func (b *BridgeClient) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropLocked()
}

type ohlcParams struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Count     int    `json:"count"`
}

func (b *BridgeClient) OHLC(ctx context.Context, symbol string, tf Timeframe, count int) ([]Candle, error) {
	var candles []Candle
	err := b.call(ctx, "ohlc", ohlcParams{Symbol: symbol, Timeframe: string(tf), Count: count}, &candles)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, NewError(KindDataUnavailable, symbol, "gateway returned no candles for %s %s", symbol, tf)
	}
	return candles, nil
}

func (b *BridgeClient) CurrentTick(ctx context.Context, symbol string) (Tick, error) {
	var tick Tick
	err := b.call(ctx, "tick", map[string]string{"symbol": symbol}, &tick)
	return tick, err
}

func (b *BridgeClient) SymbolInfo(ctx context.Context, symbol string) (Instrument, error) {
	var instr Instrument
	err := b.call(ctx, "symbol_info", map[string]string{"symbol": symbol}, &instr)
	return instr, err
}

func (b *BridgeClient) AccountInfo(ctx context.Context) (AccountInfo, error) {
	var acct AccountInfo
	err := b.call(ctx, "account_info", nil, &acct)
	return acct, err
}

type openParams struct {
	OrderRequest
	FillMode FillMode `json:"fill_mode"`
}

// OpenMarket submits with fill-mode fallback: FOK first, then IOC, then
// RETURN when the gateway reports the mode unsupported.
func (b *BridgeClient) OpenMarket(ctx context.Context, req OrderRequest) (OrderResult, error) {
	var lastErr error
	for _, mode := range []FillMode{FillFOK, FillIOC, FillReturn} {
		var res OrderResult
		err := b.call(ctx, "open_market", openParams{OrderRequest: req, FillMode: mode}, &res)
		if err == nil {
			res.FillMode = mode
			return res, nil
		}
		lastErr = err
		if KindOf(err) == KindUnsupportedFilling {
			continue
		}
		return OrderResult{}, err
	}
	return OrderResult{}, lastErr
}

type modifyParams struct {
	Ticket int64   `json:"ticket"`
	SL     float64 `json:"sl"`
	TP     float64 `json:"tp"`
}

func (b *BridgeClient) ModifySLTP(ctx context.Context, ticket int64, sl, tp float64) error {
	return b.call(ctx, "modify_sltp", modifyParams{Ticket: ticket, SL: sl, TP: tp}, nil)
}

func (b *BridgeClient) Close(ctx context.Context, ticket int64) error {
	return b.call(ctx, "close", map[string]int64{"ticket": ticket}, nil)
}

type partialParams struct {
	Ticket  int64   `json:"ticket"`
	Percent float64 `json:"percent"`
}

func (b *BridgeClient) PartialClose(ctx context.Context, ticket int64, percent float64) error {
	return b.call(ctx, "partial_close", partialParams{Ticket: ticket, Percent: percent}, nil)
}

func (b *BridgeClient) Positions(ctx context.Context, symbol string) ([]Position, error) {
	var positions []Position
	err := b.call(ctx, "positions", map[string]string{"symbol": symbol}, &positions)
	return positions, err
}

func (b *BridgeClient) History(ctx context.Context, ticket int64) ([]Deal, error) {
	var deals []Deal
	err := b.call(ctx, "history", map[string]int64{"ticket": ticket}, &deals)
	return deals, err
}
