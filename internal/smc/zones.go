package smc

import "smc-engine/internal/broker"

// Zone classifies where price sits within the reference swing range
type Zone string

const (
	Discount    Zone = "DISCOUNT"
	Equilibrium Zone = "EQUILIBRIUM"
	Premium     Zone = "PREMIUM"
)

// PDZone is the premium/discount read of a frame
type PDZone struct {
	RangeLow  float64
	RangeHigh float64
	Midpoint  float64
	Zone      Zone
	// Percent is the position of price within the range, 0 at the low
	// and 100 at the high.
	Percent float64
}

// ComputePDZone derives the premium/discount zone from the most recent
// confirmed swing high and low, falling back to a rolling 50-bar window
// when the frame has no usable swing pair. buffer is the equilibrium
// half-width as a fraction of the range.
func ComputePDZone(candles []broker.Candle, swings []SwingPoint, price, buffer float64) PDZone {
	var high, low float64
	sh := LastSwingHigh(swings, len(candles)-1)
	sl := LastSwingLow(swings, len(candles)-1)

	if sh != nil && sl != nil && sh.Price > sl.Price {
		high, low = sh.Price, sl.Price
	} else {
		start := len(candles) - 50
		if start < 0 {
			start = 0
		}
		if start >= len(candles) {
			return PDZone{Zone: Equilibrium, Percent: 50}
		}
		high, low = candles[start].High, candles[start].Low
		for _, c := range candles[start:] {
			if c.High > high {
				high = c.High
			}
			if c.Low < low {
				low = c.Low
			}
		}
	}

	if high <= low {
		return PDZone{RangeLow: low, RangeHigh: high, Zone: Equilibrium, Percent: 50}
	}

	mid := (high + low) / 2
	buf := (high - low) * buffer
	zone := Equilibrium
	switch {
	case price < mid-buf:
		zone = Discount
	case price > mid+buf:
		zone = Premium
	}

	return PDZone{
		RangeLow:  low,
		RangeHigh: high,
		Midpoint:  mid,
		Zone:      zone,
		Percent:   (price - low) / (high - low) * 100,
	}
}

// Allows reports whether the zone permits an entry in the direction:
// BUY outside PREMIUM, SELL outside DISCOUNT.
func (z PDZone) Allows(side broker.Side) bool {
	if side == broker.Buy {
		return z.Zone != Premium
	}
	return z.Zone != Discount
}

// OTEBand is the optimal trade entry retracement band of a swing range
type OTEBand struct {
	Low      float64 // 0.618 retracement
	High     float64 // 0.786 retracement
	Midpoint float64 // 0.705
}

// ComputeOTE returns the Fibonacci retracement band inside the swing
// range for the given direction. For a BUY the band hangs below the
// high; for a SELL it sits above the low.
func ComputeOTE(rangeLow, rangeHigh float64, side broker.Side, fibLow, fibHigh float64) OTEBand {
	if fibLow == 0 {
		fibLow = 0.618
	}
	if fibHigh == 0 {
		fibHigh = 0.786
	}
	size := rangeHigh - rangeLow
	fibMid := (fibLow + fibHigh) / 2

	if side == broker.Buy {
		return OTEBand{
			Low:      rangeHigh - size*fibHigh,
			High:     rangeHigh - size*fibLow,
			Midpoint: rangeHigh - size*fibMid,
		}
	}
	return OTEBand{
		Low:      rangeLow + size*fibLow,
		High:     rangeLow + size*fibHigh,
		Midpoint: rangeLow + size*fibMid,
	}
}

// Contains reports whether price sits inside the band.
func (b OTEBand) Contains(price float64) bool {
	return price >= b.Low && price <= b.High
}
