package broker

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// PaperClient simulates the account and order side of the port while
// delegating market data to a feed. Fills are instant at the current
// quote; SL and TP are evaluated against every fresh tick.
type PaperClient struct {
	feed    Client
	mu      sync.Mutex
	balance float64
	nextID  int64

	positions map[int64]*Position
	deals     map[int64][]Deal
}

// NewPaperClient creates a paper broker over a market-data feed.
func NewPaperClient(feed Client, startBalance float64) *PaperClient {
	if startBalance <= 0 {
		startBalance = 10000
	}
	return &PaperClient{
		feed:      feed,
		balance:   startBalance,
		nextID:    1000,
		positions: make(map[int64]*Position),
		deals:     make(map[int64][]Deal),
	}
}

func (p *PaperClient) OHLC(ctx context.Context, symbol string, tf Timeframe, count int) ([]Candle, error) {
	return p.feed.OHLC(ctx, symbol, tf, count)
}

func (p *PaperClient) CurrentTick(ctx context.Context, symbol string) (Tick, error) {
	tick, err := p.feed.CurrentTick(ctx, symbol)
	if err != nil {
		return tick, err
	}
	p.settle(symbol, tick)
	return tick, nil
}

func (p *PaperClient) SymbolInfo(ctx context.Context, symbol string) (Instrument, error) {
	return p.feed.SymbolInfo(ctx, symbol)
}

func (p *PaperClient) AccountInfo(ctx context.Context) (AccountInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	equity := p.balance
	for _, pos := range p.positions {
		equity += pos.Profit
	}
	return AccountInfo{
		Login:            0,
		Balance:          p.balance,
		Equity:           equity,
		FreeMargin:       equity,
		Leverage:         100,
		TradeAllowed:     true,
		TradeAlgoAllowed: true,
		Currency:         "USD",
	}, nil
}

func (p *PaperClient) OpenMarket(ctx context.Context, req OrderRequest) (OrderResult, error) {
	tick, err := p.feed.CurrentTick(ctx, req.Symbol)
	if err != nil {
		return OrderResult{}, err
	}
	fill := tick.Ask
	if req.Side == Sell {
		fill = tick.Bid
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	ticket := p.nextID
	p.positions[ticket] = &Position{
		Ticket:      ticket,
		Symbol:      req.Symbol,
		Side:        req.Side,
		OpenPrice:   fill,
		Volume:      req.Volume,
		StopLoss:    req.StopLoss,
		TakeProfit:  req.TakeProfit,
		OpenTime:    time.Now().UTC(),
		MagicNumber: req.MagicNumber,
		Comment:     req.Comment,
	}
	return OrderResult{Ticket: ticket, FillPrice: fill, FillMode: FillFOK}, nil
}

func (p *PaperClient) ModifySLTP(ctx context.Context, ticket int64, sl, tp float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[ticket]
	if !ok {
		return NewError(KindInvalidStops, "", "paper ticket %d not found", ticket)
	}
	pos.StopLoss = sl
	pos.TakeProfit = tp
	return nil
}

func (p *PaperClient) Close(ctx context.Context, ticket int64) error {
	p.mu.Lock()
	pos, ok := p.positions[ticket]
	p.mu.Unlock()
	if !ok {
		return NewError(KindInvalidStops, "", "paper ticket %d not found", ticket)
	}
	tick, err := p.feed.CurrentTick(ctx, pos.Symbol)
	if err != nil {
		return err
	}
	price := tick.Bid
	if pos.Side == Sell {
		price = tick.Ask
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked(pos, price, ReasonExpert)
	return nil
}

func (p *PaperClient) PartialClose(ctx context.Context, ticket int64, percent float64) error {
	if percent <= 0 || percent >= 100 {
		return NewError(KindInvalidStops, "", "paper partial close percent %.1f out of range", percent)
	}
	p.mu.Lock()
	pos, ok := p.positions[ticket]
	p.mu.Unlock()
	if !ok {
		return NewError(KindInvalidStops, "", "paper ticket %d not found", ticket)
	}
	tick, err := p.feed.CurrentTick(ctx, pos.Symbol)
	if err != nil {
		return err
	}
	price := tick.Bid
	if pos.Side == Sell {
		price = tick.Ask
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	closedVolume := pos.Volume * percent / 100
	profit := p.pnl(pos, price) * percent / 100
	p.balance += profit
	p.deals[pos.Ticket] = append(p.deals[pos.Ticket], Deal{
		Ticket:     pos.Ticket,
		PositionID: pos.Ticket,
		Symbol:     pos.Symbol,
		Side:       pos.Side.Opposite(),
		Price:      price,
		Volume:     closedVolume,
		Profit:     profit,
		Time:       time.Now().UTC(),
		Reason:     ReasonExpert,
	})
	pos.Volume -= closedVolume
	return nil
}

func (p *PaperClient) Positions(ctx context.Context, symbol string) ([]Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Position
	for _, pos := range p.positions {
		if symbol != "" && !strings.EqualFold(pos.Symbol, symbol) {
			continue
		}
		out = append(out, *pos)
	}
	return out, nil
}

func (p *PaperClient) History(ctx context.Context, ticket int64) ([]Deal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	deals := p.deals[ticket]
	if len(deals) == 0 {
		return nil, NewError(KindDataUnavailable, "", "paper ticket %d has no deals", ticket)
	}
	out := make([]Deal, len(deals))
	copy(out, deals)
	return out, nil
}

// settle marks positions against a fresh quote and triggers SL/TP fills.
func (p *PaperClient) settle(symbol string, tick Tick) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pos := range p.positions {
		if !strings.EqualFold(pos.Symbol, symbol) {
			continue
		}
		price := tick.Bid
		if pos.Side == Sell {
			price = tick.Ask
		}
		pos.Profit = p.pnl(pos, price)

		if pos.Side == Buy {
			if pos.StopLoss > 0 && price <= pos.StopLoss {
				p.closeLocked(pos, pos.StopLoss, ReasonSL)
				continue
			}
			if pos.TakeProfit > 0 && price >= pos.TakeProfit {
				p.closeLocked(pos, pos.TakeProfit, ReasonTP)
			}
		} else {
			if pos.StopLoss > 0 && price >= pos.StopLoss {
				p.closeLocked(pos, pos.StopLoss, ReasonSL)
				continue
			}
			if pos.TakeProfit > 0 && price <= pos.TakeProfit {
				p.closeLocked(pos, pos.TakeProfit, ReasonTP)
			}
		}
	}
}

// pnl approximates position profit with the standard contract size.
func (p *PaperClient) pnl(pos *Position, price float64) float64 {
	move := price - pos.OpenPrice
	if pos.Side == Sell {
		move = pos.OpenPrice - price
	}
	return move * pos.Volume * contractValue(pos.Symbol)
}

func contractValue(symbol string) float64 {
	s := strings.ToUpper(symbol)
	switch {
	case strings.HasPrefix(s, "BTC"), strings.HasPrefix(s, "ETH"):
		return 1
	case strings.HasPrefix(s, "XAU"):
		return 100
	case strings.HasSuffix(s, "JPY"):
		return 1000
	default:
		return 100000
	}
}

func (p *PaperClient) closeLocked(pos *Position, price float64, reason DealReason) {
	profit := p.pnl(pos, price)
	p.balance += profit
	p.deals[pos.Ticket] = append(p.deals[pos.Ticket], Deal{
		Ticket:     pos.Ticket,
		PositionID: pos.Ticket,
		Symbol:     pos.Symbol,
		Side:       pos.Side.Opposite(),
		Price:      price,
		Volume:     pos.Volume,
		Profit:     profit,
		Time:       time.Now().UTC(),
		Reason:     reason,
	})
	delete(p.positions, pos.Ticket)
}

// SyntheticFeed is an offline random-walk data source for paper runs
// without a gateway. Deterministic per seed.
type SyntheticFeed struct {
	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]float64
	start  time.Time
}

// NewSyntheticFeed creates a feed seeded for reproducible walks.
func NewSyntheticFeed(seed int64) *SyntheticFeed {
	return &SyntheticFeed{
		rng:    rand.New(rand.NewSource(seed)),
		prices: make(map[string]float64),
		start:  time.Now().UTC().Add(-40 * 24 * time.Hour),
	}
}

func (f *SyntheticFeed) basePrice(symbol string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.prices[symbol]; ok {
		return p
	}
	p := 1.1000
	s := strings.ToUpper(symbol)
	switch {
	case strings.HasPrefix(s, "BTC"):
		p = 60000
	case strings.HasPrefix(s, "ETH"):
		p = 3000
	case strings.HasPrefix(s, "XAU"):
		p = 2300
	case strings.HasSuffix(s, "JPY"):
		p = 150
	}
	f.prices[symbol] = p
	return p
}

func (f *SyntheticFeed) OHLC(ctx context.Context, symbol string, tf Timeframe, count int) ([]Candle, error) {
	base := f.basePrice(symbol)
	step := base * 0.0004
	dur := tf.Duration()

	f.mu.Lock()
	defer f.mu.Unlock()
	end := time.Now().UTC().Truncate(dur)
	candles := make([]Candle, 0, count)
	price := base
	for i := count; i > 0; i-- {
		open := price
		drift := (f.rng.Float64() - 0.5) * 2 * step
		close := open + drift
		high := math.Max(open, close) + f.rng.Float64()*step/2
		low := math.Min(open, close) - f.rng.Float64()*step/2
		candles = append(candles, Candle{
			Time:   end.Add(-time.Duration(i) * dur),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  close,
			Volume: 500 + f.rng.Float64()*1000,
		})
		price = close
	}
	f.prices[symbol] = price
	return candles, nil
}

func (f *SyntheticFeed) CurrentTick(ctx context.Context, symbol string) (Tick, error) {
	base := f.basePrice(symbol)
	spread := base * 0.00012
	return Tick{
		Bid:        base,
		Ask:        base + spread,
		SpreadPips: spread / pipFor(symbol),
		Point:      pipFor(symbol) / 10,
		Time:       time.Now().UTC(),
	}, nil
}

func (f *SyntheticFeed) SymbolInfo(ctx context.Context, symbol string) (Instrument, error) {
	pip := pipFor(symbol)
	class := classFor(symbol)
	return Instrument{
		Name:         symbol,
		Class:        class,
		PipSize:      pip,
		PointSize:    pip / 10,
		Digits:       digitsFor(pip),
		ContractSize: contractValue(symbol),
		VolumeMin:    0.01,
		VolumeMax:    100,
		VolumeStep:   0.01,
		StopsLevel:   10,
	}, nil
}

func (f *SyntheticFeed) AccountInfo(ctx context.Context) (AccountInfo, error) {
	return AccountInfo{}, NewError(KindDataUnavailable, "", "synthetic feed has no account")
}

func (f *SyntheticFeed) OpenMarket(ctx context.Context, req OrderRequest) (OrderResult, error) {
	return OrderResult{}, NewError(KindMarketClosed, req.Symbol, "synthetic feed cannot trade")
}

func (f *SyntheticFeed) ModifySLTP(ctx context.Context, ticket int64, sl, tp float64) error {
	return NewError(KindMarketClosed, "", "synthetic feed cannot trade")
}

func (f *SyntheticFeed) Close(ctx context.Context, ticket int64) error {
	return NewError(KindMarketClosed, "", "synthetic feed cannot trade")
}

func (f *SyntheticFeed) PartialClose(ctx context.Context, ticket int64, percent float64) error {
	return NewError(KindMarketClosed, "", "synthetic feed cannot trade")
}

func (f *SyntheticFeed) Positions(ctx context.Context, symbol string) ([]Position, error) {
	return nil, nil
}

func (f *SyntheticFeed) History(ctx context.Context, ticket int64) ([]Deal, error) {
	return nil, NewError(KindDataUnavailable, "", "synthetic feed has no history")
}

func pipFor(symbol string) float64 {
	s := strings.ToUpper(symbol)
	switch {
	case strings.HasPrefix(s, "BTC"), strings.HasPrefix(s, "ETH"):
		return 1.0
	case strings.HasPrefix(s, "XAU"):
		return 0.01
	case strings.HasSuffix(s, "JPY"):
		return 0.01
	default:
		return 0.0001
	}
}

func classFor(symbol string) AssetClass {
	s := strings.ToUpper(symbol)
	switch {
	case strings.HasPrefix(s, "BTC"), strings.HasPrefix(s, "ETH"):
		return Crypto
	case strings.HasPrefix(s, "XAU"), strings.HasPrefix(s, "XAG"):
		return Commodity
	case strings.HasPrefix(s, "US30"), strings.HasPrefix(s, "NAS"), strings.HasPrefix(s, "SPX"), strings.HasPrefix(s, "GER"):
		return Indices
	default:
		return ForexMajor
	}
}

func digitsFor(pip float64) int {
	switch {
	case pip >= 1:
		return 2
	case pip >= 0.01:
		return 3
	default:
		return 5
	}
}
