// Package sizing converts a signal and account balance into an
// executable lot size respecting the symbol volume constraints.
package sizing

import (
	"errors"
	"math"
	"strings"

	"smc-engine/internal/broker"
)

// ErrLotTooSmall is returned when the computed volume falls under the
// broker minimum.
var ErrLotTooSmall = errors.New("lot below broker minimum")

// unitValuePerLot returns the account-currency value of a 1.0 price
// move for one lot. The broker-reported pip value is preferred; this
// table only backs symbols whose metadata is missing it.
func unitValuePerLot(symbol string) float64 {
	s := strings.ToUpper(symbol)
	switch {
	case strings.HasPrefix(s, "BTC"), strings.HasPrefix(s, "ETH"):
		return 1.0
	case strings.HasPrefix(s, "XAU"):
		return 100.0
	case strings.HasSuffix(s, "JPY"):
		return 1000.0
	case strings.HasPrefix(s, "US30"), strings.HasPrefix(s, "NAS"), strings.HasPrefix(s, "SPX"), strings.HasPrefix(s, "GER"):
		return 1.0
	default:
		return 100000.0
	}
}

// Request carries the inputs of one sizing decision
type Request struct {
	Symbol        string
	Balance       float64
	RiskPercent   float64
	Entry         float64
	StopLoss      float64
	LotMultiplier float64
	MaxLot        float64 // per-symbol cap, 0 = broker max
	FixedLot      float64 // bypasses risk computation when > 0
	Instrument    broker.Instrument
}

// Compute returns the executable lot size for the request.
func Compute(req Request) (float64, error) {
	instr := req.Instrument

	if req.FixedLot > 0 {
		return clamp(req.FixedLot*multiplier(req), instr, req.MaxLot)
	}

	slDistance := math.Abs(req.Entry - req.StopLoss)
	if slDistance <= 0 || req.Balance <= 0 || req.RiskPercent <= 0 {
		return 0, ErrLotTooSmall
	}

	riskAmount := req.Balance * req.RiskPercent / 100

	// per-lot risk: broker pip value when reported, contract-size table
	// otherwise
	var perLotRisk float64
	if instr.PipValuePerLot > 0 && instr.PipSize > 0 {
		perLotRisk = slDistance / instr.PipSize * instr.PipValuePerLot
	} else {
		perLotRisk = slDistance * unitValuePerLot(req.Symbol)
	}
	if perLotRisk <= 0 {
		return 0, ErrLotTooSmall
	}

	raw := riskAmount / perLotRisk * multiplier(req)
	return clamp(raw, instr, req.MaxLot)
}

// RiskAmount returns the account currency at risk for a filled volume,
// using the broker pip value when reported.
func RiskAmount(symbol string, instr broker.Instrument, entry, stopLoss, lots float64) float64 {
	slDistance := math.Abs(entry - stopLoss)
	if slDistance <= 0 || lots <= 0 {
		return 0
	}
	if instr.PipValuePerLot > 0 && instr.PipSize > 0 {
		return slDistance / instr.PipSize * instr.PipValuePerLot * lots
	}
	return slDistance * unitValuePerLot(symbol) * lots
}

func multiplier(req Request) float64 {
	if req.LotMultiplier <= 0 {
		return 1.0
	}
	return req.LotMultiplier
}

// clamp bounds the volume to [min, cap] and rounds down to the volume
// step so the broker never rejects on granularity.
func clamp(lots float64, instr broker.Instrument, maxLot float64) (float64, error) {
	vmin := instr.VolumeMin
	if vmin <= 0 {
		vmin = 0.01
	}
	vmax := instr.VolumeMax
	if vmax <= 0 {
		vmax = 100
	}
	if maxLot > 0 && maxLot < vmax {
		vmax = maxLot
	}
	step := instr.VolumeStep
	if step <= 0 {
		step = 0.01
	}

	if lots > vmax {
		lots = vmax
	}
	lots = math.Floor(lots/step) * step
	// fix float drift from the step division
	lots = math.Round(lots*1e8) / 1e8

	if lots < vmin {
		return 0, ErrLotTooSmall
	}
	return lots, nil
}
