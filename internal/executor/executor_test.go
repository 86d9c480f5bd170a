package executor

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"

	"smc-engine/internal/broker"
)

// stubClient scripts quotes and submission outcomes for one test
type stubClient struct {
	ticks    []broker.Tick
	tickIdx  int
	openErrs []error
	opened   []broker.OrderRequest
	fill     float64
}

func (s *stubClient) CurrentTick(ctx context.Context, symbol string) (broker.Tick, error) {
	t := s.ticks[s.tickIdx]
	if s.tickIdx < len(s.ticks)-1 {
		s.tickIdx++
	}
	return t, nil
}

func (s *stubClient) OpenMarket(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	if len(s.openErrs) > 0 {
		err := s.openErrs[0]
		s.openErrs = s.openErrs[1:]
		if err != nil {
			return broker.OrderResult{}, err
		}
	}
	s.opened = append(s.opened, req)
	return broker.OrderResult{Ticket: 7, FillPrice: s.fill, FillMode: broker.FillFOK}, nil
}

func (s *stubClient) OHLC(ctx context.Context, symbol string, tf broker.Timeframe, count int) ([]broker.Candle, error) {
	return nil, nil
}
func (s *stubClient) SymbolInfo(ctx context.Context, symbol string) (broker.Instrument, error) {
	return broker.Instrument{}, nil
}
func (s *stubClient) AccountInfo(ctx context.Context) (broker.AccountInfo, error) {
	return broker.AccountInfo{}, nil
}
func (s *stubClient) ModifySLTP(ctx context.Context, ticket int64, sl, tp float64) error { return nil }
func (s *stubClient) Close(ctx context.Context, ticket int64) error                      { return nil }
func (s *stubClient) PartialClose(ctx context.Context, ticket int64, percent float64) error {
	return nil
}
func (s *stubClient) Positions(ctx context.Context, symbol string) ([]broker.Position, error) {
	return nil, nil
}
func (s *stubClient) History(ctx context.Context, ticket int64) ([]broker.Deal, error) {
	return nil, nil
}

func testInstrument() broker.Instrument {
	return broker.Instrument{
		Name: "EURUSD", PipSize: 0.0001, PointSize: 0.00001,
		Digits: 5, StopsLevel: 10,
		VolumeMin: 0.01, VolumeMax: 100, VolumeStep: 0.01,
	}
}

func buyOrder() Order {
	return Order{
		Symbol:          "EURUSD",
		Side:            broker.Buy,
		SignalEntry:     1.1000,
		StopLoss:        1.0950,
		TakeProfit:      1.1100,
		Volume:          0.10,
		MaxSlippagePips: 5,
		Comment:         "smc A+ pdh_pdl",
		MagicNumber:     240601,
		Instrument:      testInstrument(),
	}
}

func TestPlaceFills(t *testing.T) {
	client := &stubClient{
		ticks: []broker.Tick{{Bid: 1.0999, Ask: 1.1000}},
		fill:  1.1000,
	}
	exec := New(client, zerolog.Nop())

	res, err := exec.Place(context.Background(), buyOrder())
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if res.Ticket != 7 || res.Attempts != 1 {
		t.Errorf("result = %+v, want ticket 7 on attempt 1", res)
	}
	if res.RealisedSlipPips > 1e-6 {
		t.Errorf("slippage = %v pips, want 0", res.RealisedSlipPips)
	}
	if len(client.opened) != 1 {
		t.Fatalf("orders submitted = %d, want 1", len(client.opened))
	}
	req := client.opened[0]
	if req.Volume != 0.10 || req.MagicNumber != 240601 {
		t.Errorf("request = %+v", req)
	}
}

func TestPlaceRetriesTransient(t *testing.T) {
	client := &stubClient{
		ticks: []broker.Tick{{Bid: 1.0999, Ask: 1.1000}},
		fill:  1.1001,
		openErrs: []error{
			broker.NewTransient(broker.TransientRequote, "EURUSD", "requote"),
		},
	}
	exec := New(client, zerolog.Nop())

	res, err := exec.Place(context.Background(), buyOrder())
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if res.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", res.Attempts)
	}
	if math.Abs(res.RealisedSlipPips-1.0) > 1e-6 {
		t.Errorf("slippage = %v pips, want 1.0", res.RealisedSlipPips)
	}
}

func TestPlaceSlippageBudget(t *testing.T) {
	// quote 10 pips away from the scored entry on both attempts: one
	// re-quote is tolerated, then the order is abandoned
	client := &stubClient{
		ticks: []broker.Tick{{Bid: 1.1009, Ask: 1.1010}},
	}
	exec := New(client, zerolog.Nop())

	_, err := exec.Place(context.Background(), buyOrder())
	if err == nil {
		t.Fatal("expected a slippage rejection")
	}
	var be *broker.Error
	if !errors.As(err, &be) || be.Kind != broker.KindSlippage {
		t.Errorf("err = %v, want kind slippage", err)
	}
	if len(client.opened) != 0 {
		t.Errorf("orders submitted = %d, want 0", len(client.opened))
	}
}

func TestPlaceSanitisesStops(t *testing.T) {
	client := &stubClient{
		ticks: []broker.Tick{{Bid: 1.0999, Ask: 1.1000}},
		fill:  1.1000,
	}
	exec := New(client, zerolog.Nop())

	order := buyOrder()
	order.StopLoss = 1.09995   // half a pip, under the stops level
	order.TakeProfit = 1.10005

	if _, err := exec.Place(context.Background(), order); err != nil {
		t.Fatalf("Place: %v", err)
	}
	req := client.opened[0]
	if math.Abs(req.StopLoss-1.09988) > 1e-9 {
		t.Errorf("SL = %v, want shifted to 1.09988", req.StopLoss)
	}
	if math.Abs(req.TakeProfit-1.10012) > 1e-9 {
		t.Errorf("TP = %v, want shifted to 1.10012", req.TakeProfit)
	}
}

func TestPlaceRejectsInvertedStops(t *testing.T) {
	client := &stubClient{
		ticks: []broker.Tick{{Bid: 1.0999, Ask: 1.1000}},
	}
	exec := New(client, zerolog.Nop())

	order := buyOrder()
	order.StopLoss = 1.1050 // above the BUY entry

	_, err := exec.Place(context.Background(), order)
	if err == nil {
		t.Fatal("expected an invalid-stops rejection")
	}
	var be *broker.Error
	if !errors.As(err, &be) || be.Kind != broker.KindInvalidStops {
		t.Errorf("err = %v, want kind invalid_stops", err)
	}
	if len(client.opened) != 0 {
		t.Errorf("orders submitted = %d, want 0", len(client.opened))
	}
}
