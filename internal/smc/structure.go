package smc

import (
	"time"

	"smc-engine/internal/broker"
)

// Direction is the directional polarity of a structure event
type Direction string

const (
	Bullish Direction = "BULLISH"
	Bearish Direction = "BEARISH"
	Ranging Direction = "RANGING"
	Neutral Direction = "NEUTRAL"
)

// BreakKind distinguishes continuation from reversal breaks
type BreakKind string

const (
	BOS   BreakKind = "BOS"   // break in the existing trend direction
	CHOCH BreakKind = "CHOCH" // break against the existing trend
)

// StructureBreak is a close beyond a prior swing extreme
type StructureBreak struct {
	Index        int
	Time         time.Time
	BreakPrice   float64 // closing price of the breaking bar
	SwingPrice   float64 // the swing extreme that was broken
	Direction    Direction
	Kind         BreakKind
	Displacement bool // breaking bar body >= 1.5x avg body of last 20
}

// StructureAnalysis is the full structural read of a frame
type StructureAnalysis struct {
	Swings []SwingPoint
	Breaks []StructureBreak
	Trend  Direction
}

// AnalyzeStructure derives the ordered structure-break list and the
// current trend from the frame. The trend flips on CHOCH, continues on
// BOS, and decays to RANGING when the latest break is older than
// maxStructureAge bars.
func AnalyzeStructure(candles []broker.Candle, swingStrength, maxStructureAge int) StructureAnalysis {
	swings := DetectSwings(candles, swingStrength)
	analysis := StructureAnalysis{Swings: swings, Trend: Ranging}
	if len(swings) == 0 {
		return analysis
	}

	trend := Ranging
	var lastHigh, lastLow *SwingPoint

	for i := 0; i < len(candles); i++ {
		// swings confirm with a lag of swingStrength bars
		for j := range swings {
			if swings[j].Index+swings[j].Strength == i {
				s := swings[j]
				if s.Kind == SwingHigh {
					lastHigh = &s
				} else {
					lastLow = &s
				}
			}
		}

		close := candles[i].Close
		if lastHigh != nil && close > lastHigh.Price {
			kind := BOS
			if trend == Bearish {
				kind = CHOCH
			}
			analysis.Breaks = append(analysis.Breaks, StructureBreak{
				Index:        i,
				Time:         candles[i].Time,
				BreakPrice:   close,
				SwingPrice:   lastHigh.Price,
				Direction:    Bullish,
				Kind:         kind,
				Displacement: hasDisplacement(candles, i),
			})
			trend = Bullish
			lastHigh = nil
		}
		if lastLow != nil && close < lastLow.Price {
			kind := BOS
			if trend == Bullish {
				kind = CHOCH
			}
			analysis.Breaks = append(analysis.Breaks, StructureBreak{
				Index:        i,
				Time:         candles[i].Time,
				BreakPrice:   close,
				SwingPrice:   lastLow.Price,
				Direction:    Bearish,
				Kind:         kind,
				Displacement: hasDisplacement(candles, i),
			})
			trend = Bearish
			lastLow = nil
		}
	}

	if len(analysis.Breaks) > 0 {
		last := analysis.Breaks[len(analysis.Breaks)-1]
		if maxStructureAge > 0 && len(candles)-1-last.Index > maxStructureAge {
			trend = Ranging
		}
	}
	analysis.Trend = trend
	return analysis
}

// hasDisplacement tags a bar whose body is at least 1.5x the average
// body over the preceding 20 bars.
func hasDisplacement(candles []broker.Candle, i int) bool {
	start := i - 20
	if start < 0 {
		start = 0
	}
	if i-start < 5 {
		return false
	}
	sum := 0.0
	for j := start; j < i; j++ {
		sum += candles[j].Body()
	}
	avg := sum / float64(i-start)
	if avg == 0 {
		return false
	}
	return candles[i].Body() >= 1.5*avg
}

// LastBreak returns the most recent structure break, or nil.
func (sa StructureAnalysis) LastBreak() *StructureBreak {
	if len(sa.Breaks) == 0 {
		return nil
	}
	b := sa.Breaks[len(sa.Breaks)-1]
	return &b
}

// LastCHOCH returns the most recent change of character, or nil.
func (sa StructureAnalysis) LastCHOCH() *StructureBreak {
	for i := len(sa.Breaks) - 1; i >= 0; i-- {
		if sa.Breaks[i].Kind == CHOCH {
			b := sa.Breaks[i]
			return &b
		}
	}
	return nil
}

// RecentDisplacement reports whether any of the last n bars carries the
// displacement tag.
func (sa StructureAnalysis) RecentDisplacement(frameLen, n int) bool {
	for _, b := range sa.Breaks {
		if b.Displacement && b.Index >= frameLen-n {
			return true
		}
	}
	return false
}
