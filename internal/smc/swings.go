// Package smc implements the Smart Money Concepts primitive detectors.
// Every detector is a pure function over an OHLC frame; callers own all
// state and pass parameters per cycle.
package smc

import "smc-engine/internal/broker"

// SwingKind marks a swing point as a high or a low
type SwingKind string

const (
	SwingHigh SwingKind = "HIGH"
	SwingLow  SwingKind = "LOW"
)

// SwingPoint is a confirmed fractal extreme in the frame
type SwingPoint struct {
	Index    int
	Price    float64
	Kind     SwingKind
	Strength int
}

// DetectSwings returns the swing highs and lows of the frame using a
// fractal test of width strength: a bar is a swing high when its high
// strictly exceeds the highs of the strength bars on each side (ties at
// the window boundary are tolerated). The last strength bars cannot
// confirm and are never reported.
func DetectSwings(candles []broker.Candle, strength int) []SwingPoint {
	if strength < 1 {
		strength = 5
	}
	if len(candles) < 2*strength+1 {
		return nil
	}

	var swings []SwingPoint
	for i := strength; i < len(candles)-strength; i++ {
		if isSwingHigh(candles, i, strength) {
			swings = append(swings, SwingPoint{Index: i, Price: candles[i].High, Kind: SwingHigh, Strength: strength})
		}
		if isSwingLow(candles, i, strength) {
			swings = append(swings, SwingPoint{Index: i, Price: candles[i].Low, Kind: SwingLow, Strength: strength})
		}
	}
	return swings
}

func isSwingHigh(candles []broker.Candle, i, strength int) bool {
	h := candles[i].High
	for j := 1; j <= strength; j++ {
		if j < strength {
			if candles[i-j].High >= h || candles[i+j].High >= h {
				return false
			}
		} else {
			// boundary bars may tie
			if candles[i-j].High > h || candles[i+j].High > h {
				return false
			}
		}
	}
	return true
}

func isSwingLow(candles []broker.Candle, i, strength int) bool {
	l := candles[i].Low
	for j := 1; j <= strength; j++ {
		if j < strength {
			if candles[i-j].Low <= l || candles[i+j].Low <= l {
				return false
			}
		} else {
			if candles[i-j].Low < l || candles[i+j].Low < l {
				return false
			}
		}
	}
	return true
}

// LastSwingHigh returns the most recent swing high at or before index
// maxIdx, or nil.
func LastSwingHigh(swings []SwingPoint, maxIdx int) *SwingPoint {
	for i := len(swings) - 1; i >= 0; i-- {
		if swings[i].Kind == SwingHigh && swings[i].Index <= maxIdx {
			s := swings[i]
			return &s
		}
	}
	return nil
}

// LastSwingLow returns the most recent swing low at or before index
// maxIdx, or nil.
func LastSwingLow(swings []SwingPoint, maxIdx int) *SwingPoint {
	for i := len(swings) - 1; i >= 0; i-- {
		if swings[i].Kind == SwingLow && swings[i].Index <= maxIdx {
			s := swings[i]
			return &s
		}
	}
	return nil
}

// LastSwingLowBelow returns the most recent swing low strictly below
// price, used for structural stop placement.
func LastSwingLowBelow(swings []SwingPoint, price float64) *SwingPoint {
	for i := len(swings) - 1; i >= 0; i-- {
		if swings[i].Kind == SwingLow && swings[i].Price < price {
			s := swings[i]
			return &s
		}
	}
	return nil
}

// LastSwingHighAbove returns the most recent swing high strictly above
// price.
func LastSwingHighAbove(swings []SwingPoint, price float64) *SwingPoint {
	for i := len(swings) - 1; i >= 0; i-- {
		if swings[i].Kind == SwingHigh && swings[i].Price > price {
			s := swings[i]
			return &s
		}
	}
	return nil
}

// NearestSwingHighAbove returns the swing high with the lowest price
// strictly above price, used as an in-direction liquidity target.
func NearestSwingHighAbove(swings []SwingPoint, price float64) *SwingPoint {
	var best *SwingPoint
	for i := range swings {
		if swings[i].Kind != SwingHigh || swings[i].Price <= price {
			continue
		}
		if best == nil || swings[i].Price < best.Price {
			s := swings[i]
			best = &s
		}
	}
	return best
}

// NearestSwingLowBelow returns the swing low with the highest price
// strictly below price.
func NearestSwingLowBelow(swings []SwingPoint, price float64) *SwingPoint {
	var best *SwingPoint
	for i := range swings {
		if swings[i].Kind != SwingLow || swings[i].Price >= price {
			continue
		}
		if best == nil || swings[i].Price > best.Price {
			s := swings[i]
			best = &s
		}
	}
	return best
}
