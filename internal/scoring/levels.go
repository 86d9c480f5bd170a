package scoring

import (
	"math"

	"smc-engine/internal/analyzer"
	"smc-engine/internal/broker"
	"smc-engine/internal/smc"
)

const (
	slFallbackPips = 40.0
	tpFallbackPips = 50.0
	slBufferPips   = 5.0
)

// Levels is the stop and target construction for a candidate entry
type Levels struct {
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	Risk       float64 // |entry - sl| in price units
	Reward     float64 // |tp - entry|
	RR         float64
	Structural bool // SL anchored on a swing rather than the fallback
}

// BuildLevels constructs SL and TP for a direction. The stop anchors on
// the last protecting swing plus a buffer of max(5 pips, 10% of ATR);
// the target seeks the nearest in-direction liquidity level. Both are
// clamped to the broker stops-level and rounded to the symbol digits.
func BuildLevels(snap *analyzer.Snapshot, side broker.Side, entry, slMultiplier float64) (Levels, bool) {
	pip := snap.PipSize()
	if slMultiplier <= 0 {
		slMultiplier = 1.0
	}

	buffer := slBufferPips * pip
	if atrBuf := snap.ATR * 0.10; atrBuf > buffer {
		buffer = atrBuf
	}

	lv := Levels{Entry: entry}
	swings := snap.Structure.Swings

	if side == broker.Buy {
		if sw := smc.LastSwingLowBelow(swings, entry); sw != nil {
			lv.StopLoss = sw.Price - buffer
			lv.Structural = true
		} else {
			lv.StopLoss = entry - slFallbackPips*pip
		}
		dist := (entry - lv.StopLoss) * slMultiplier
		lv.StopLoss = entry - dist

		lv.TakeProfit = buyTarget(snap, entry)
	} else {
		if sw := smc.LastSwingHighAbove(swings, entry); sw != nil {
			lv.StopLoss = sw.Price + buffer
			lv.Structural = true
		} else {
			lv.StopLoss = entry + slFallbackPips*pip
		}
		dist := (lv.StopLoss - entry) * slMultiplier
		lv.StopLoss = entry + dist

		lv.TakeProfit = sellTarget(snap, entry)
	}

	lv.Risk = math.Abs(entry - lv.StopLoss)
	lv.Reward = math.Abs(lv.TakeProfit - entry)

	// a target closer than the risk is re-projected to 2R
	if lv.Reward < lv.Risk {
		if side == broker.Buy {
			lv.TakeProfit = entry + 2*lv.Risk
		} else {
			lv.TakeProfit = entry - 2*lv.Risk
		}
		lv.Reward = math.Abs(lv.TakeProfit - entry)
	}

	clampToStopsLevel(&lv, snap.Instrument, side)

	lv.Risk = math.Abs(entry - lv.StopLoss)
	lv.Reward = math.Abs(lv.TakeProfit - entry)
	if lv.Risk > 0 {
		lv.RR = lv.Reward / lv.Risk
	}

	// side validity re-asserted after every adjustment
	if side == broker.Buy {
		if !(lv.StopLoss < entry && entry < lv.TakeProfit) {
			return lv, false
		}
	} else {
		if !(lv.TakeProfit < entry && entry < lv.StopLoss) {
			return lv, false
		}
	}
	return lv, true
}

// buyTarget picks the nearest buy-side liquidity above entry: PDH first,
// then the nearest swing high, then the fixed fallback.
func buyTarget(snap *analyzer.Snapshot, entry float64) float64 {
	if snap.PrevDay.Valid && snap.PrevDay.High > entry {
		return snap.PrevDay.High
	}
	if sw := smc.NearestSwingHighAbove(snap.Structure.Swings, entry); sw != nil {
		return sw.Price
	}
	return entry + tpFallbackPips*snap.PipSize()
}

// sellTarget is symmetric on the downside: PDL, nearest swing low, then
// the fallback.
func sellTarget(snap *analyzer.Snapshot, entry float64) float64 {
	if snap.PrevDay.Valid && snap.PrevDay.Low > 0 && snap.PrevDay.Low < entry {
		return snap.PrevDay.Low
	}
	if sw := smc.NearestSwingLowBelow(snap.Structure.Swings, entry); sw != nil {
		return sw.Price
	}
	return entry - tpFallbackPips*snap.PipSize()
}

// clampToStopsLevel widens the stop and target to the broker minimum
// distance and rounds both to the symbol digits.
func clampToStopsLevel(lv *Levels, instr broker.Instrument, side broker.Side) {
	point := instr.PointSize
	if point <= 0 {
		point = instr.PipSize / 10
	}
	minDist := instr.StopsLevel*point + 2*point

	if side == broker.Buy {
		if lv.Entry-lv.StopLoss < minDist {
			lv.StopLoss = lv.Entry - minDist
		}
		if lv.TakeProfit-lv.Entry < minDist {
			lv.TakeProfit = lv.Entry + minDist
		}
	} else {
		if lv.StopLoss-lv.Entry < minDist {
			lv.StopLoss = lv.Entry + minDist
		}
		if lv.Entry-lv.TakeProfit < minDist {
			lv.TakeProfit = lv.Entry - minDist
		}
	}

	lv.StopLoss = RoundToDigits(lv.StopLoss, instr.Digits)
	lv.TakeProfit = RoundToDigits(lv.TakeProfit, instr.Digits)
}

// RoundToDigits rounds a price to the symbol's quote precision.
func RoundToDigits(price float64, digits int) float64 {
	if digits <= 0 {
		return price
	}
	scale := math.Pow10(digits)
	return math.Round(price*scale) / scale
}

// MinStopDistance returns the minimum broker-legal stop distance for an
// instrument, in price units.
func MinStopDistance(instr broker.Instrument) float64 {
	point := instr.PointSize
	if point <= 0 {
		point = instr.PipSize / 10
	}
	return instr.StopsLevel*point + 2*point
}
