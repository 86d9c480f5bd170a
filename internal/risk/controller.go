// Package risk gates every order behind the kill switches, cooldowns,
// session windows, news blackout and the correlation guard.
package risk

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"smc-engine/config"
	"smc-engine/internal/broker"
	"smc-engine/internal/news"
)

// blackoutWindow suspends symbols matching a substring for a fixed
// date-hour range. Used for known event days no calendar feed covers.
type blackoutWindow struct {
	From        time.Time
	To          time.Time
	SymbolMatch string
	Reason      string
}

// Controller is consulted before every order. Closed-trade results are
// fed back through RecordClose to drive the kill switches.
type Controller struct {
	cfg      *config.Config
	store    CooldownStore
	guard    *CorrelationGuard
	news     news.Filter
	logger   zerolog.Logger
	blackout []blackoutWindow

	mu               sync.Mutex
	day              time.Time
	dailyPnL         float64
	tradesToday      int
	consecutiveLoss  map[string]int
	symbolHaltedDay  map[string]time.Time
	halted           bool
	haltReason       string
}

// NewController wires the risk gates.
func NewController(cfg *config.Config, store CooldownStore, nf news.Filter, logger zerolog.Logger) *Controller {
	if nf == nil {
		nf = news.NoopFilter{}
	}
	return &Controller{
		cfg:             cfg,
		store:           store,
		guard:           NewCorrelationGuard(cfg.Risk.Correlation),
		news:            nf,
		logger:          logger.With().Str("component", "risk").Logger(),
		consecutiveLoss: make(map[string]int),
		symbolHaltedDay: make(map[string]time.Time),
	}
}

// AddBlackout registers a manual blackout window.
func (c *Controller) AddBlackout(from, to time.Time, symbolMatch, reason string) {
	c.blackout = append(c.blackout, blackoutWindow{From: from, To: to, SymbolMatch: strings.ToUpper(symbolMatch), Reason: reason})
}

// Halted reports the process-wide kill switch, checked at the top of
// every cycle.
func (c *Controller) Halted() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.halted, c.haltReason
}

// CheckEntry runs every pre-order gate in order and returns the first
// rejection. positions is the broker snapshot fetched for this call.
func (c *Controller) CheckEntry(symbol string, side broker.Side, entry, volume, confidence float64,
	class broker.AssetClass, pip float64, positions []broker.Position, account broker.AccountInfo, now time.Time) (bool, string) {

	c.rollDay(now)

	// daily loss kill switch
	if account.Balance > 0 {
		c.mu.Lock()
		lossPct := -c.dailyPnL / account.Balance * 100
		c.mu.Unlock()
		if lossPct >= c.cfg.Risk.MaxDailyLoss {
			reason := fmt.Sprintf("daily loss %.2f%% at cap %.2f%%", lossPct, c.cfg.Risk.MaxDailyLoss)
			c.setHalt(reason)
			return false, reason
		}
	}

	// consecutive-loss kill switch per symbol, lifted next day
	c.mu.Lock()
	losses := c.consecutiveLoss[symbol]
	haltedDay, symbolHalted := c.symbolHaltedDay[symbol]
	c.mu.Unlock()
	if symbolHalted && haltedDay.Equal(c.today(now)) {
		return false, fmt.Sprintf("%s halted after %d consecutive losses", symbol, losses)
	}

	// session and weekend gates apply to everything but crypto
	if class != broker.Crypto {
		if blocked, why := weekendBlocked(now); blocked {
			return false, why
		}
	}
	if c.cfg.Risk.LunchBreakFilter {
		h := now.UTC().Hour()
		if h == 12 {
			return false, "lunch-break filter 12:00-13:00 UTC"
		}
	}

	// manual blackout calendar
	up := strings.ToUpper(symbol)
	for _, bw := range c.blackout {
		if strings.Contains(up, bw.SymbolMatch) && !now.Before(bw.From) && now.Before(bw.To) {
			return false, fmt.Sprintf("manual blackout: %s", bw.Reason)
		}
	}

	// cooldown: an interval of exactly the configured seconds unblocks
	if last, ok := c.store.LastTrade(symbol); ok {
		cooldown := time.Duration(c.cfg.Risk.CooldownSameSymbolSec) * time.Second
		if elapsed := now.Sub(last); elapsed < cooldown {
			return false, fmt.Sprintf("cooldown: %s since last order, need %s", elapsed.Round(time.Second), cooldown)
		}
	}

	// trade count caps
	c.mu.Lock()
	trades := c.tradesToday
	c.mu.Unlock()
	if c.cfg.Risk.MaxTradesPerDay > 0 && trades >= c.cfg.Risk.MaxTradesPerDay {
		return false, fmt.Sprintf("daily trade cap %d reached", c.cfg.Risk.MaxTradesPerDay)
	}
	if c.cfg.Risk.MaxOpenTrades > 0 && len(positions) >= c.cfg.Risk.MaxOpenTrades {
		return false, fmt.Sprintf("open-trade cap %d reached", c.cfg.Risk.MaxOpenTrades)
	}

	// duplicate and stacking against existing positions on the symbol
	if blocked, why := c.stackingBlocked(symbol, side, entry, pip, positions, now); blocked {
		return false, why
	}

	// news blackout
	if c.cfg.Filters.News.Enabled {
		horizon := time.Duration(c.cfg.Filters.News.PauseBeforeMin) * time.Minute
		if ok, why := c.news.Allowed(symbol, now, horizon); !ok {
			return false, fmt.Sprintf("news blackout: %s", why)
		}
	}

	// correlation and exposure
	if ok, why := c.guard.CanOpen(symbol, side, volume, confidence, positions); !ok {
		return false, why
	}

	return true, ""
}

// stackingBlocked enforces the duplicate and proximity rules against
// positions already open on the symbol.
func (c *Controller) stackingBlocked(symbol string, side broker.Side, entry, pip float64,
	positions []broker.Position, now time.Time) (bool, string) {
	if pip <= 0 {
		pip = 0.0001
	}
	minDist := c.cfg.Risk.MinStackingDistPips * pip
	minAge := time.Duration(c.cfg.Risk.MinStackingTimeSec) * time.Second

	for _, p := range positions {
		if !strings.EqualFold(p.Symbol, symbol) {
			continue
		}
		dist := math.Abs(p.OpenPrice - entry)
		if p.Side == side && dist <= 5*pip {
			return true, fmt.Sprintf("duplicate: %s position %.1f pips away", p.Side, dist/pip)
		}
		if dist < minDist {
			return true, fmt.Sprintf("stacking: position %.1f pips away, need %.0f", dist/pip, c.cfg.Risk.MinStackingDistPips)
		}
		if age := now.Sub(p.OpenTime); age < minAge {
			return true, fmt.Sprintf("stacking: position only %s old, need %s", age.Round(time.Second), minAge)
		}
	}
	return false, ""
}

// MarkTrade records a successful order for the cooldown ledger and the
// daily counter.
func (c *Controller) MarkTrade(symbol string, now time.Time) {
	if err := c.store.MarkTrade(symbol, now); err != nil {
		c.logger.Error().Err(err).Str("symbol", symbol).Msg("cooldown ledger write failed")
	}
	c.mu.Lock()
	c.tradesToday++
	c.mu.Unlock()
}

// RecordClose feeds a closed trade back into the kill switches.
func (c *Controller) RecordClose(symbol string, profit float64, when time.Time) {
	c.rollDay(when)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dailyPnL += profit
	if profit < 0 {
		c.consecutiveLoss[symbol]++
		if c.consecutiveLoss[symbol] >= c.cfg.Risk.MaxConsecutiveLosses {
			c.symbolHaltedDay[symbol] = c.today(when)
			c.logger.Warn().Str("symbol", symbol).Int("losses", c.consecutiveLoss[symbol]).Msg("symbol halted on consecutive losses")
		}
	} else {
		c.consecutiveLoss[symbol] = 0
	}
}

// DailyPnL returns today's realised result.
func (c *Controller) DailyPnL() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dailyPnL
}

// News exposes the filter for the position manager's emergency exit.
func (c *Controller) News() news.Filter {
	return c.news
}

func (c *Controller) setHalt(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.halted {
		c.logger.Warn().Str("reason", reason).Msg("kill switch engaged")
	}
	c.halted = true
	c.haltReason = reason
}

func (c *Controller) today(now time.Time) time.Time {
	return now.UTC().Truncate(24 * time.Hour)
}

// rollDay resets the daily counters and lifts the halt at midnight UTC.
func (c *Controller) rollDay(now time.Time) {
	day := c.today(now)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.day.Equal(day) {
		return
	}
	c.day = day
	c.dailyPnL = 0
	c.tradesToday = 0
	c.halted = false
	c.haltReason = ""
	for s := range c.consecutiveLoss {
		c.consecutiveLoss[s] = 0
	}
}

// weekendBlocked closes the forex window from Friday 21:00 UTC through
// the Sunday session open.
func weekendBlocked(now time.Time) (bool, string) {
	t := now.UTC()
	switch t.Weekday() {
	case time.Saturday:
		return true, "market closed: Saturday"
	case time.Sunday:
		if t.Hour() < 21 {
			return true, "market closed: Sunday before session open"
		}
	case time.Friday:
		if t.Hour() >= 21 {
			return true, "market closed: Friday after session close"
		}
	}
	return false, ""
}
