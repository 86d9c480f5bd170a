package risk

import (
	"fmt"
	"math"
	"strings"

	"smc-engine/config"
	"smc-engine/internal/broker"
)

// CorrelationGroup ties symbols whose exposures compound
type CorrelationGroup struct {
	Name     string
	Symbols  map[string]bool
	Positive bool // members move together; opposing entries need conviction
}

// defaultGroups are the static correlation groups; configuration may
// override or extend them.
func defaultGroups() []CorrelationGroup {
	mk := func(name string, positive bool, symbols ...string) CorrelationGroup {
		g := CorrelationGroup{Name: name, Positive: positive, Symbols: make(map[string]bool, len(symbols))}
		for _, s := range symbols {
			g.Symbols[s] = true
		}
		return g
	}
	return []CorrelationGroup{
		mk("USD_MAJORS", false, "EURUSD", "GBPUSD", "AUDUSD", "NZDUSD", "USDCAD", "USDCHF", "USDJPY"),
		mk("JPY_PAIRS", true, "USDJPY", "EURJPY", "GBPJPY", "AUDJPY"),
		mk("EUR_CROSSES", true, "EURUSD", "EURGBP", "EURJPY", "EURCHF", "EURAUD"),
		mk("GBP_CROSSES", false, "GBPUSD", "EURGBP", "GBPJPY", "GBPCHF"),
		mk("GOLD_RELATED", true, "XAUUSD", "XAGUSD", "AUDUSD"),
		mk("CRYPTO", true, "BTCUSD", "ETHUSD"),
	}
}

var knownCurrencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "CHF": true,
	"AUD": true, "NZD": true, "CAD": true,
	"XAU": true, "XAG": true, "BTC": true, "ETH": true,
}

// currencyLegs splits a symbol into its base and quote currencies.
// Index symbols and anything unrecognised carry no currency exposure.
func currencyLegs(symbol string) (base, quote string, ok bool) {
	s := strings.ToUpper(symbol)
	if len(s) != 6 {
		return "", "", false
	}
	b, q := s[:3], s[3:]
	if knownCurrencies[b] && knownCurrencies[q] {
		return b, q, true
	}
	return "", "", false
}

// CorrelationGuard enforces per-currency exposure and correlation-group
// limits over a consistent positions snapshot. It holds no mutable
// state; every decision recomputes the aggregates from the positions
// passed in.
type CorrelationGuard struct {
	maxExposurePerCurrency float64
	maxPositionsPerGroup   int
	groups                 []CorrelationGroup
}

// NewCorrelationGuard builds the guard from configuration, merging the
// static groups with any configured overrides.
func NewCorrelationGuard(cfg config.CorrelationConfig) *CorrelationGuard {
	groups := defaultGroups()
	for _, gc := range cfg.Groups {
		replaced := false
		override := CorrelationGroup{Name: gc.Name, Positive: gc.Positive, Symbols: make(map[string]bool)}
		for _, s := range gc.Symbols {
			override.Symbols[strings.ToUpper(s)] = true
		}
		for i := range groups {
			if groups[i].Name == gc.Name {
				groups[i] = override
				replaced = true
				break
			}
		}
		if !replaced {
			groups = append(groups, override)
		}
	}
	return &CorrelationGuard{
		maxExposurePerCurrency: cfg.MaxExposurePerCurrency,
		maxPositionsPerGroup:   cfg.MaxPositionsPerGroup,
		groups:                 groups,
	}
}

// netExposure aggregates signed lots per currency: a BUY on BASE/QUOTE
// counts +volume for the base and -volume for the quote.
func netExposure(positions []broker.Position) map[string]float64 {
	net := make(map[string]float64)
	for _, p := range positions {
		base, quote, ok := currencyLegs(p.Symbol)
		if !ok {
			continue
		}
		v := p.Volume
		if p.Side == broker.Sell {
			v = -v
		}
		net[base] += v
		net[quote] -= v
	}
	return net
}

const exposureEpsilon = 1e-9

// CanOpen decides whether a new trade passes the correlation and
// exposure rules against the given positions snapshot. Returns the
// human-readable rejection reason when blocked.
func (g *CorrelationGuard) CanOpen(symbol string, side broker.Side, volume, confidence float64, positions []broker.Position) (bool, string) {
	symbol = strings.ToUpper(symbol)

	// no internal hedging
	for _, p := range positions {
		if strings.ToUpper(p.Symbol) == symbol && p.Side == side.Opposite() {
			return false, fmt.Sprintf("opposite %s position already open on %s", p.Side, symbol)
		}
	}

	// per-currency net exposure cap; sitting exactly at the cap is
	// allowed but any increment beyond it is refused
	if base, quote, ok := currencyLegs(symbol); ok && g.maxExposurePerCurrency > 0 {
		net := netExposure(positions)
		delta := volume
		if side == broker.Sell {
			delta = -delta
		}
		for _, leg := range []struct {
			ccy string
			d   float64
		}{{base, delta}, {quote, -delta}} {
			after := net[leg.ccy] + leg.d
			if math.Abs(after) > g.maxExposurePerCurrency+exposureEpsilon &&
				math.Abs(after) > math.Abs(net[leg.ccy]) {
				return false, fmt.Sprintf("%s net exposure %.2f would exceed cap %.2f",
					leg.ccy, math.Abs(after), g.maxExposurePerCurrency)
			}
		}

		// directional congestion: two positions already pushing a
		// currency the same way demand high conviction
		if confidence < 85 {
			for _, leg := range []struct {
				ccy string
				d   float64
			}{{base, delta}, {quote, -delta}} {
				count := 0
				for _, p := range positions {
					pb, pq, pok := currencyLegs(p.Symbol)
					if !pok {
						continue
					}
					pv := p.Volume
					if p.Side == broker.Sell {
						pv = -pv
					}
					contrib := 0.0
					if pb == leg.ccy {
						contrib = pv
					} else if pq == leg.ccy {
						contrib = -pv
					}
					if contrib != 0 && (contrib > 0) == (leg.d > 0) {
						count++
					}
				}
				if count >= 2 {
					return false, fmt.Sprintf("%s already loaded %d positions in direction, confidence %.0f below 85",
						leg.ccy, count, confidence)
				}
			}
		}
	}

	// group limits
	for _, grp := range g.groups {
		if !grp.Symbols[symbol] {
			continue
		}
		var members []broker.Position
		for _, p := range positions {
			if grp.Symbols[strings.ToUpper(p.Symbol)] {
				members = append(members, p)
			}
		}
		if g.maxPositionsPerGroup > 0 && len(members) >= g.maxPositionsPerGroup {
			return false, fmt.Sprintf("group %s at position cap %d", grp.Name, g.maxPositionsPerGroup)
		}
		if grp.Positive && confidence < 90 {
			for _, p := range members {
				if p.Side != side {
					return false, fmt.Sprintf("group %s holds %s positions against new %s, confidence %.0f below 90",
						grp.Name, p.Side, side, confidence)
				}
			}
		}
	}

	return true, ""
}
