// Package executor owns the signal-to-order path: fresh re-quote,
// slippage budget, stop sanity correction and the transient retry loop.
package executor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"smc-engine/internal/broker"
	"smc-engine/internal/scoring"
)

const (
	maxRetries   = 3
	retryBackoff = 500 * time.Millisecond
)

// Order is one submission request assembled from a signal
type Order struct {
	Symbol          string
	Side            broker.Side
	SignalEntry     float64
	StopLoss        float64
	TakeProfit      float64
	Volume          float64
	MaxSlippagePips float64
	Comment         string
	MagicNumber     int64
	Instrument      broker.Instrument
}

// Result reports a successful submission
type Result struct {
	Ticket           int64
	FillPrice        float64
	RequestedPrice   float64
	RealisedSlipPips float64
	Attempts         int
}

// Executor submits orders through the broker port
type Executor struct {
	client broker.Client
	logger zerolog.Logger
}

// New creates an executor over a broker client.
func New(client broker.Client, logger zerolog.Logger) *Executor {
	return &Executor{client: client, logger: logger.With().Str("component", "executor").Logger()}
}

// Place runs the full submission flow. Transient broker failures are
// retried up to three times with a constant backoff and a fresh quote
// per attempt; final failures are returned tagged.
func (e *Executor) Place(ctx context.Context, order Order) (*Result, error) {
	pip := order.Instrument.PipSize
	if pip <= 0 {
		pip = 0.0001
	}

	var result *Result
	attempts := 0
	requoted := false

	operation := func() error {
		attempts++

		tick, err := e.client.CurrentTick(ctx, order.Symbol)
		if err != nil {
			if broker.IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		entry := tick.Ask
		if order.Side == broker.Sell {
			entry = tick.Bid
		}

		// slippage budget against the price the signal was scored at;
		// one re-quote is tolerated before giving up
		slipPips := math.Abs(entry-order.SignalEntry) / pip
		if order.MaxSlippagePips > 0 && slipPips > order.MaxSlippagePips {
			if !requoted {
				requoted = true
				return broker.NewTransient(broker.TransientRequote, order.Symbol,
					"slippage %.1f pips over budget %.1f, requoting", slipPips, order.MaxSlippagePips)
			}
			return backoff.Permanent(broker.NewError(broker.KindSlippage, order.Symbol,
				"slippage %.1f pips over budget %.1f", slipPips, order.MaxSlippagePips))
		}

		sl, tp, err := sanitiseStops(order, entry, tick)
		if err != nil {
			return backoff.Permanent(err)
		}

		volume := reclampVolume(order.Volume, order.Instrument)
		if volume <= 0 {
			return backoff.Permanent(broker.NewError(broker.KindInvalidStops, order.Symbol,
				"volume %.2f collapsed on step re-clamp", order.Volume))
		}

		res, err := e.client.OpenMarket(ctx, broker.OrderRequest{
			Symbol:      order.Symbol,
			Side:        order.Side,
			Volume:      volume,
			StopLoss:    sl,
			TakeProfit:  tp,
			Comment:     order.Comment,
			MagicNumber: order.MagicNumber,
			Deviation:   int(order.MaxSlippagePips * pip / pointSize(order.Instrument)),
		})
		if err != nil {
			if broker.IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		result = &Result{
			Ticket:           res.Ticket,
			FillPrice:        res.FillPrice,
			RequestedPrice:   entry,
			RealisedSlipPips: math.Abs(res.FillPrice-order.SignalEntry) / pip,
			Attempts:         attempts,
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(retryBackoff), maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		e.logger.Error().Err(err).Str("symbol", order.Symbol).Int("attempts", attempts).Msg("order failed")
		return nil, err
	}

	e.logger.Info().
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Int64("ticket", result.Ticket).
		Float64("fill", result.FillPrice).
		Float64("slippage_pips", result.RealisedSlipPips).
		Int("attempts", result.Attempts).
		Msg("order filled")
	return result, nil
}

// ModifySLTP forwards a stop modification with the same transient retry
// policy. A no-change response from the broker counts as success.
func (e *Executor) ModifySLTP(ctx context.Context, symbol string, ticket int64, sl, tp float64) error {
	operation := func() error {
		err := e.client.ModifySLTP(ctx, ticket, sl, tp)
		if err != nil && !broker.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(retryBackoff), maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return fmt.Errorf("modify %d on %s: %w", ticket, symbol, err)
	}
	return nil
}

// sanitiseStops validates SL and TP against the fresh quote and the
// broker stops-level, auto-correcting small violations by shifting to
// the minimum legal distance.
func sanitiseStops(order Order, entry float64, tick broker.Tick) (sl, tp float64, err error) {
	sl, tp = order.StopLoss, order.TakeProfit
	minDist := scoring.MinStopDistance(order.Instrument)
	digits := order.Instrument.Digits

	if order.Side == broker.Buy {
		if sl >= entry {
			return 0, 0, broker.NewError(broker.KindInvalidStops, order.Symbol,
				"BUY stop %.5f at or above entry %.5f", sl, entry)
		}
		if entry-sl < minDist {
			sl = entry - minDist
		}
		if tp-entry < minDist {
			tp = entry + minDist
		}
	} else {
		if sl <= entry {
			return 0, 0, broker.NewError(broker.KindInvalidStops, order.Symbol,
				"SELL stop %.5f at or below entry %.5f", sl, entry)
		}
		if sl-entry < minDist {
			sl = entry + minDist
		}
		if entry-tp < minDist {
			tp = entry - minDist
		}
	}

	sl = scoring.RoundToDigits(sl, digits)
	tp = scoring.RoundToDigits(tp, digits)

	// side validity re-asserted after rounding
	if order.Side == broker.Buy && !(sl < entry && entry < tp) {
		return 0, 0, broker.NewError(broker.KindInvalidStops, order.Symbol,
			"BUY stops invalid after correction: sl %.5f entry %.5f tp %.5f", sl, entry, tp)
	}
	if order.Side == broker.Sell && !(tp < entry && entry < sl) {
		return 0, 0, broker.NewError(broker.KindInvalidStops, order.Symbol,
			"SELL stops invalid after correction: sl %.5f entry %.5f tp %.5f", sl, entry, tp)
	}
	return sl, tp, nil
}

func reclampVolume(volume float64, instr broker.Instrument) float64 {
	step := instr.VolumeStep
	if step <= 0 {
		step = 0.01
	}
	v := math.Floor(volume/step) * step
	v = math.Round(v*1e8) / 1e8
	if instr.VolumeMin > 0 && v < instr.VolumeMin {
		return 0
	}
	return v
}

func pointSize(instr broker.Instrument) float64 {
	if instr.PointSize > 0 {
		return instr.PointSize
	}
	if instr.PipSize > 0 {
		return instr.PipSize / 10
	}
	return 0.00001
}
