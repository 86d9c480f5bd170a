package broker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// GuardedClient wraps a Client with a per-call deadline and a circuit
// breaker. A tripped breaker fails fast with a transient connection
// error instead of hammering a dead gateway.
type GuardedClient struct {
	inner   Client
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
}

// NewGuardedClient wraps a client. timeout bounds every call; zero
// means the default 10 seconds.
func NewGuardedClient(inner Client, timeout time.Duration, logger zerolog.Logger) *GuardedClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	log := logger.With().Str("component", "broker_guard").Logger()

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "broker",
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("broker breaker state change")
		},
		IsSuccessful: func(err error) bool {
			// broker-tagged rejections are answers, not outages
			if err == nil {
				return true
			}
			kind := KindOf(err)
			return kind != KindTransient && kind != KindDataUnavailable
		},
	})

	return &GuardedClient{inner: inner, breaker: breaker, timeout: timeout}
}

// execute runs fn under the breaker with the per-call deadline. A
// deadline overrun surfaces as a transient timeout for the retry loop.
func (g *GuardedClient) execute(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	res, err := g.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		out, err := fn(callCtx)
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, NewTransient(TransientTimeout, "", "broker call exceeded %s", g.timeout)
		}
		return out, err
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, NewTransient(TransientConnection, "", "broker circuit open")
	}
	return res, err
}

func (g *GuardedClient) OHLC(ctx context.Context, symbol string, tf Timeframe, count int) ([]Candle, error) {
	res, err := g.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return g.inner.OHLC(ctx, symbol, tf, count)
	})
	if err != nil {
		return nil, err
	}
	return res.([]Candle), nil
}

func (g *GuardedClient) CurrentTick(ctx context.Context, symbol string) (Tick, error) {
	res, err := g.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return g.inner.CurrentTick(ctx, symbol)
	})
	if err != nil {
		return Tick{}, err
	}
	return res.(Tick), nil
}

func (g *GuardedClient) SymbolInfo(ctx context.Context, symbol string) (Instrument, error) {
	res, err := g.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return g.inner.SymbolInfo(ctx, symbol)
	})
	if err != nil {
		return Instrument{}, err
	}
	return res.(Instrument), nil
}

func (g *GuardedClient) AccountInfo(ctx context.Context) (AccountInfo, error) {
	res, err := g.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return g.inner.AccountInfo(ctx)
	})
	if err != nil {
		return AccountInfo{}, err
	}
	return res.(AccountInfo), nil
}

func (g *GuardedClient) OpenMarket(ctx context.Context, req OrderRequest) (OrderResult, error) {
	res, err := g.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return g.inner.OpenMarket(ctx, req)
	})
	if err != nil {
		return OrderResult{}, err
	}
	return res.(OrderResult), nil
}

func (g *GuardedClient) ModifySLTP(ctx context.Context, ticket int64, sl, tp float64) error {
	_, err := g.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, g.inner.ModifySLTP(ctx, ticket, sl, tp)
	})
	return err
}

func (g *GuardedClient) Close(ctx context.Context, ticket int64) error {
	_, err := g.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, g.inner.Close(ctx, ticket)
	})
	return err
}

func (g *GuardedClient) PartialClose(ctx context.Context, ticket int64, percent float64) error {
	_, err := g.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, g.inner.PartialClose(ctx, ticket, percent)
	})
	return err
}

func (g *GuardedClient) Positions(ctx context.Context, symbol string) ([]Position, error) {
	res, err := g.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return g.inner.Positions(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return res.([]Position), nil
}

func (g *GuardedClient) History(ctx context.Context, ticket int64) ([]Deal, error) {
	res, err := g.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return g.inner.History(ctx, ticket)
	})
	if err != nil {
		return nil, err
	}
	return res.([]Deal), nil
}
