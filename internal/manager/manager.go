// Package manager runs the open-position loop: break-even, partial
// close, trailing, emergency news exit and closed-ticket cleanup. It
// runs on its own cadence, independent of the analysis cycle.
package manager

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"smc-engine/config"
	"smc-engine/internal/broker"
	"smc-engine/internal/executor"
	"smc-engine/internal/news"
	"smc-engine/internal/scoring"
	"smc-engine/internal/smc"
)

const (
	trailingSwingStrength = 5
	trailingBufferPips    = 2.0
	structureFrameBars    = 100
)

// ClosedTrade is the reconstructed exit of a managed position
type ClosedTrade struct {
	Ticket         int64
	Symbol         string
	Side           broker.Side
	OpenPrice      float64
	OpenTime       time.Time
	ExitPrice      float64
	ExitTime       time.Time
	Volume         float64
	DurationMin    float64
	ProfitUSD      float64 // profit + swap + commission
	ProfitPips     float64
	ProfitPercent  float64
	ExitReason     string
}

// managed is the per-ticket management state. The initial risk distance
// is captured when the position is first seen so a break-even move does
// not collapse the R:R base.
type managed struct {
	position          broker.Position
	initialRisk       float64
	breakEvenApplied  bool
	partialApplied    bool
	highestProfitPips float64
	trailSL           float64
}

// Manager monitors and adjusts open positions
type Manager struct {
	client   broker.Client
	exec     *executor.Executor
	cfg      *config.Config
	profiles config.AssetProfiles
	news     news.Filter
	logger   zerolog.Logger

	managed     map[int64]*managed
	instruments map[string]broker.Instrument
	ltfFrames   map[string][]broker.Candle

	// OnClose receives every reconstructed exit; wired by the engine.
	OnClose func(ClosedTrade)
}

// New creates a position manager.
func New(client broker.Client, exec *executor.Executor, cfg *config.Config,
	profiles config.AssetProfiles, nf news.Filter, logger zerolog.Logger) *Manager {
	if nf == nil {
		nf = news.NoopFilter{}
	}
	return &Manager{
		client:      client,
		exec:        exec,
		cfg:         cfg,
		profiles:    profiles,
		news:        nf,
		logger:      logger.With().Str("component", "manager").Logger(),
		managed:     make(map[int64]*managed),
		instruments: make(map[string]broker.Instrument),
		ltfFrames:   make(map[string][]broker.Candle),
	}
}

// Tick runs one management pass: adopt new positions, manage open ones,
// reconstruct exits for tickets that disappeared.
func (m *Manager) Tick(ctx context.Context, now time.Time) {
	positions, err := m.client.Positions(ctx, "")
	if err != nil {
		m.logger.Warn().Err(err).Msg("positions fetch failed")
		return
	}

	open := make(map[int64]broker.Position)
	for _, p := range positions {
		if p.MagicNumber != m.cfg.Broker.MagicNumber {
			continue
		}
		open[p.Ticket] = p
	}

	// closed tickets: in the managed set but gone from the broker
	for ticket, st := range m.managed {
		if _, alive := open[ticket]; !alive {
			m.reconstructExit(ctx, ticket, st, now)
			delete(m.managed, ticket)
		}
	}

	for ticket, p := range open {
		st, ok := m.managed[ticket]
		if !ok {
			st = &managed{position: p, initialRisk: math.Abs(p.OpenPrice - p.StopLoss)}
			if st.initialRisk == 0 {
				st.initialRisk = math.Abs(p.OpenPrice) * 0.005
			}
			m.managed[ticket] = st
			m.logger.Info().Int64("ticket", ticket).Str("symbol", p.Symbol).Msg("position adopted")
		}
		st.position = p
		m.manage(ctx, st, now)
	}
}

// ManagedCount reports how many positions are under management.
func (m *Manager) ManagedCount() int {
	return len(m.managed)
}

func (m *Manager) manage(ctx context.Context, st *managed, now time.Time) {
	p := st.position
	instr, ok := m.instrument(ctx, p.Symbol)
	if !ok {
		return
	}
	pip := instr.PipSize
	if pip <= 0 {
		pip = 0.0001
	}

	tick, err := m.client.CurrentTick(ctx, p.Symbol)
	if err != nil {
		m.logger.Debug().Err(err).Str("symbol", p.Symbol).Msg("tick fetch failed")
		return
	}
	// a long exits on the bid, a short on the ask
	current := tick.Bid
	if p.Side == broker.Sell {
		current = tick.Ask
	}

	profit := current - p.OpenPrice
	if p.Side == broker.Sell {
		profit = p.OpenPrice - current
	}
	profitPips := profit / pip
	if profitPips > st.highestProfitPips {
		st.highestProfitPips = profitPips
	}

	rr := 0.0
	if st.initialRisk > 0 {
		rr = profit / st.initialRisk
	}

	// emergency news exit comes before anything else
	if m.cfg.Filters.News.Enabled && m.cfg.Filters.News.EmergencyExit {
		horizon := time.Duration(m.cfg.Filters.News.ExitMinutesBefore) * time.Minute
		if exit, why := m.news.EmergencyExit(p.Symbol, now, horizon); exit {
			m.logger.Warn().Int64("ticket", p.Ticket).Str("reason", why).Msg("emergency news exit")
			if err := m.client.Close(ctx, p.Ticket); err != nil {
				m.logger.Error().Err(err).Int64("ticket", p.Ticket).Msg("news exit close failed")
			}
			return
		}
	}

	// weekend force-close, crypto excluded
	if m.cfg.Risk.WeekendForceClose && instr.Class != broker.Crypto {
		t := now.UTC()
		if t.Weekday() == time.Friday && t.Hour() >= 20 {
			m.logger.Info().Int64("ticket", p.Ticket).Msg("weekend force close")
			if err := m.client.Close(ctx, p.Ticket); err != nil {
				m.logger.Error().Err(err).Int64("ticket", p.Ticket).Msg("weekend close failed")
			}
			return
		}
	}

	profile := m.profiles.ForClass(string(instr.Class))
	beTrigger := profile.BreakEvenRR
	if beTrigger <= 0 {
		beTrigger = m.cfg.Advanced.BreakEvenTriggerRR
	}

	// break-even
	if !st.breakEvenApplied && rr >= beTrigger {
		offset := m.cfg.Advanced.BreakEvenOffsetPips * pip
		newSL := p.OpenPrice + offset
		if p.Side == broker.Sell {
			newSL = p.OpenPrice - offset
		}
		if slImproves(p.Side, p.StopLoss, newSL) {
			if err := m.exec.ModifySLTP(ctx, p.Symbol, p.Ticket, scoring.RoundToDigits(newSL, instr.Digits), p.TakeProfit); err != nil {
				m.logger.Error().Err(err).Int64("ticket", p.Ticket).Msg("break-even failed")
				return
			}
			m.logger.Info().Int64("ticket", p.Ticket).Float64("sl", newSL).Msg("break-even applied")
		}
		st.breakEvenApplied = true
	}

	// partial close
	if !st.partialApplied && rr >= m.cfg.Advanced.PartialTargetRR {
		pct := m.cfg.Advanced.PartialClosePct
		if err := m.client.PartialClose(ctx, p.Ticket, pct); err != nil {
			m.logger.Error().Err(err).Int64("ticket", p.Ticket).Msg("partial close failed")
			return
		}
		st.partialApplied = true
		m.logger.Info().Int64("ticket", p.Ticket).Float64("percent", pct).Msg("partial close applied")
	}

	// trailing
	if rr >= m.cfg.Advanced.TrailingTriggerRR {
		m.trail(ctx, st, instr, current, pip)
	}
}

// trail moves the stop monotonically in the profit direction, either at
// a fixed distance or behind the latest confirmed structure swing.
func (m *Manager) trail(ctx context.Context, st *managed, instr broker.Instrument, current, pip float64) {
	p := st.position

	var candidate float64
	if m.cfg.Advanced.TrailingMode == "structure" {
		sw := m.structureStop(ctx, p, pip)
		if sw == 0 {
			return
		}
		candidate = sw
	} else {
		dist := m.cfg.Advanced.TrailingDistPips * pip
		if p.Side == broker.Buy {
			candidate = current - dist
		} else {
			candidate = current + dist
		}
	}

	// never reverse
	if st.trailSL != 0 && !slImproves(p.Side, st.trailSL, candidate) {
		return
	}
	if !slImproves(p.Side, p.StopLoss, candidate) {
		return
	}

	candidate = scoring.RoundToDigits(candidate, instr.Digits)
	if err := m.exec.ModifySLTP(ctx, p.Symbol, p.Ticket, candidate, p.TakeProfit); err != nil {
		m.logger.Error().Err(err).Int64("ticket", p.Ticket).Msg("trailing modify failed")
		return
	}
	st.trailSL = candidate
	m.logger.Debug().Int64("ticket", p.Ticket).Float64("sl", candidate).Msg("trailing stop moved")
}

// structureStop returns the latest confirmed fractal swing behind the
// position, buffered by two pips. Zero means no usable swing.
func (m *Manager) structureStop(ctx context.Context, p broker.Position, pip float64) float64 {
	candles, err := m.client.OHLC(ctx, p.Symbol, broker.Timeframe(m.cfg.Timeframes.LTF), structureFrameBars)
	if err != nil {
		return 0
	}
	m.ltfFrames[p.Symbol] = candles

	swings := smc.DetectSwings(candles, trailingSwingStrength)
	buffer := trailingBufferPips * pip
	if p.Side == broker.Buy {
		if sw := smc.LastSwingLow(swings, len(candles)-1); sw != nil {
			return sw.Price - buffer
		}
	} else {
		if sw := smc.LastSwingHigh(swings, len(candles)-1); sw != nil {
			return sw.Price + buffer
		}
	}
	return 0
}

// reconstructExit pulls the exit deal for a vanished ticket and emits
// the close event.
func (m *Manager) reconstructExit(ctx context.Context, ticket int64, st *managed, now time.Time) {
	p := st.position
	instr, _ := m.instrument(ctx, p.Symbol)
	pip := instr.PipSize
	if pip <= 0 {
		pip = 0.0001
	}

	trade := ClosedTrade{
		Ticket:    ticket,
		Symbol:    p.Symbol,
		Side:      p.Side,
		OpenPrice: p.OpenPrice,
		OpenTime:  p.OpenTime,
		Volume:    p.Volume,
		ExitTime:  now,
	}

	deals, err := m.client.History(ctx, ticket)
	if err != nil || len(deals) == 0 {
		m.logger.Warn().Err(err).Int64("ticket", ticket).Msg("exit deal unavailable")
		trade.ExitReason = "unknown"
	} else {
		last := deals[len(deals)-1]
		trade.ExitPrice = last.Price
		trade.ExitTime = last.Time
		trade.ProfitUSD = 0
		for _, d := range deals {
			trade.ProfitUSD += d.Profit + d.Swap + d.Commission
		}
		trade.ExitReason = exitReason(last.Reason)
	}

	trade.DurationMin = trade.ExitTime.Sub(p.OpenTime).Minutes()
	if trade.ExitPrice > 0 {
		move := trade.ExitPrice - p.OpenPrice
		if p.Side == broker.Sell {
			move = p.OpenPrice - trade.ExitPrice
		}
		trade.ProfitPips = move / pip
	}

	m.logger.Info().
		Int64("ticket", ticket).
		Str("symbol", p.Symbol).
		Float64("profit", trade.ProfitUSD).
		Str("reason", trade.ExitReason).
		Msg("position closed")

	if m.OnClose != nil {
		m.OnClose(trade)
	}
}

func (m *Manager) instrument(ctx context.Context, symbol string) (broker.Instrument, bool) {
	if instr, ok := m.instruments[symbol]; ok {
		return instr, true
	}
	instr, err := m.client.SymbolInfo(ctx, symbol)
	if err != nil {
		m.logger.Warn().Err(err).Str("symbol", symbol).Msg("symbol info failed")
		return broker.Instrument{}, false
	}
	m.instruments[symbol] = instr
	return instr, true
}

// slImproves reports whether candidate is strictly tighter than current
// in the profit direction.
func slImproves(side broker.Side, current, candidate float64) bool {
	if candidate == 0 {
		return false
	}
	if current == 0 {
		return true
	}
	if side == broker.Buy {
		return candidate > current
	}
	return candidate < current
}

// exitReason maps a deal reason onto the journal vocabulary.
func exitReason(r broker.DealReason) string {
	switch r {
	case broker.ReasonTP:
		return "TP"
	case broker.ReasonSL:
		return "SL/trailing"
	case broker.ReasonClient:
		return "manual"
	case broker.ReasonExpert:
		return "expert"
	case broker.ReasonStopOut:
		return "stop-out"
	case broker.ReasonNewsExit:
		return "news"
	default:
		return string(r)
	}
}
