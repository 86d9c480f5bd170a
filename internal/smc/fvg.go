package smc

import "smc-engine/internal/broker"

// FVGType is the polarity of a fair value gap
type FVGType string

const (
	BullishFVG FVGType = "BULLISH"
	BearishFVG FVGType = "BEARISH"
)

// FVG is a three-candle price imbalance where the first and third bars
// do not overlap.
type FVG struct {
	Type              FVGType
	Index             int // index of the middle (gap creator) candle
	Top               float64
	Bottom            float64
	AgeBars           int
	MitigatedFraction float64 // 0..1, overlap of later bars with the gap
	Inverted          bool
}

// Midpoint returns the consequent encroachment level of the gap.
func (f FVG) Midpoint() float64 {
	return (f.Top + f.Bottom) / 2
}

// Size returns the gap height in price units.
func (f FVG) Size() float64 {
	return f.Top - f.Bottom
}

// Contains reports whether price sits inside the gap.
func (f FVG) Contains(price float64) bool {
	return price >= f.Bottom && price <= f.Top
}

// InvertedFVG is an FVG that price has closed fully through in the
// opposing direction; it acts as support or resistance with flipped
// polarity.
type InvertedFVG struct {
	FVG
	InversionIndex int
	// Confidence grades how decisive the inversion was, 0..100.
	Confidence float64
}

// FVGResult holds the active gaps and inversions of a frame
type FVGResult struct {
	Active   []FVG
	Inverted []InvertedFVG
}

// DetectFVGs scans the frame for three-bar imbalances at least
// minGapPrice high (min_gap_pips converted to price by the caller). A
// gap fully traded through (mitigated fraction >= invalidateAt, default
// 1.0) is dropped; a gap closed through against its polarity becomes an
// inverted FVG.
func DetectFVGs(candles []broker.Candle, minGapPrice, invalidateAt float64, maxAgeBars int) FVGResult {
	var result FVGResult
	if len(candles) < 3 {
		return result
	}
	if invalidateAt <= 0 {
		invalidateAt = 1.0
	}

	n := len(candles)
	for i := 2; i < n; i++ {
		first := candles[i-2]
		third := candles[i]

		if maxAgeBars > 0 && n-1-(i-1) > maxAgeBars {
			continue
		}

		// bullish: gap between first.High and third.Low
		if third.Low > first.High && third.Low-first.High >= minGapPrice {
			gap := FVG{Type: BullishFVG, Index: i - 1, Top: third.Low, Bottom: first.High, AgeBars: n - i}
			classifyGap(&gap, candles, i+1, invalidateAt, &result)
		}
		// bearish: gap between first.Low and third.High
		if third.High < first.Low && first.Low-third.High >= minGapPrice {
			gap := FVG{Type: BearishFVG, Index: i - 1, Top: first.Low, Bottom: third.High, AgeBars: n - i}
			classifyGap(&gap, candles, i+1, invalidateAt, &result)
		}
	}
	return result
}

// classifyGap walks the bars after the gap, tracking mitigation and
// testing for an inversion close.
func classifyGap(gap *FVG, candles []broker.Candle, from int, invalidateAt float64, result *FVGResult) {
	size := gap.Size()
	if size <= 0 {
		return
	}

	for i := from; i < len(candles); i++ {
		c := candles[i]

		overlap := overlapFraction(gap.Bottom, gap.Top, c.Low, c.High)
		if overlap > gap.MitigatedFraction {
			gap.MitigatedFraction = overlap
		}

		if gap.Type == BullishFVG && c.Close < gap.Bottom {
			gap.Inverted = true
			result.Inverted = append(result.Inverted, InvertedFVG{
				FVG:            flip(*gap),
				InversionIndex: i,
				Confidence:     inversionConfidence(candles, i, *gap),
			})
			return
		}
		if gap.Type == BearishFVG && c.Close > gap.Top {
			gap.Inverted = true
			result.Inverted = append(result.Inverted, InvertedFVG{
				FVG:            flip(*gap),
				InversionIndex: i,
				Confidence:     inversionConfidence(candles, i, *gap),
			})
			return
		}
	}

	if gap.MitigatedFraction < invalidateAt {
		result.Active = append(result.Active, *gap)
	}
}

func flip(gap FVG) FVG {
	if gap.Type == BullishFVG {
		gap.Type = BearishFVG
	} else {
		gap.Type = BullishFVG
	}
	gap.Inverted = true
	return gap
}

// inversionConfidence grades an inversion: a displacement close through
// a barely-mitigated gap is a strong signal, a drift through a spent
// gap is not.
func inversionConfidence(candles []broker.Candle, i int, gap FVG) float64 {
	conf := 50.0
	if hasDisplacement(candles, i) {
		conf += 25
	}
	// decisive close: the bar closed beyond the far side by more than
	// half the gap height
	c := candles[i]
	if gap.Type == BullishFVG && gap.Bottom-c.Close > gap.Size()/2 {
		conf += 15
	}
	if gap.Type == BearishFVG && c.Close-gap.Top > gap.Size()/2 {
		conf += 15
	}
	if gap.MitigatedFraction < 0.5 {
		conf += 10
	}
	if conf > 100 {
		conf = 100
	}
	return conf
}

// overlapFraction returns how much of [lo, hi] the bar range covers.
func overlapFraction(lo, hi, barLo, barHi float64) float64 {
	if hi <= lo {
		return 0
	}
	top := hi
	if barHi < top {
		top = barHi
	}
	bottom := lo
	if barLo > bottom {
		bottom = barLo
	}
	if top <= bottom {
		return 0
	}
	return (top - bottom) / (hi - lo)
}

// BestInDirection returns the highest-confidence inverted FVG matching
// the wanted polarity, or nil.
func BestInDirection(inverted []InvertedFVG, want FVGType) *InvertedFVG {
	var best *InvertedFVG
	for i := range inverted {
		if inverted[i].Type != want {
			continue
		}
		if best == nil || inverted[i].Confidence > best.Confidence {
			f := inverted[i]
			best = &f
		}
	}
	return best
}
