package smc

import (
	"testing"
	"time"

	"smc-engine/internal/broker"
)

func fvgBar(i int, open, high, low, close float64) broker.Candle {
	return broker.Candle{
		Time:  time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC).Add(time.Duration(i) * 15 * time.Minute),
		Open:  open,
		High:  high,
		Low:   low,
		Close: close,
	}
}

// gapFrame leaves a 0.25 bullish imbalance between bar 0 and bar 2.
func gapFrame() []broker.Candle {
	return []broker.Candle{
		fvgBar(0, 99.9, 100.0, 99.5, 99.9),
		fvgBar(1, 99.95, 101.5, 99.8, 101.4),
		fvgBar(2, 100.7, 101.0, 100.25, 100.8),
	}
}

func TestDetectFVGsBullish(t *testing.T) {
	result := DetectFVGs(gapFrame(), 0.25, 1.0, 100)
	if len(result.Active) != 1 {
		t.Fatalf("active gaps = %d, want 1", len(result.Active))
	}
	gap := result.Active[0]
	if gap.Type != BullishFVG {
		t.Errorf("type = %s, want BULLISH", gap.Type)
	}
	if gap.Top != 100.25 || gap.Bottom != 100.0 {
		t.Errorf("gap = [%v, %v], want [100, 100.25]", gap.Bottom, gap.Top)
	}
	if len(result.Inverted) != 0 {
		t.Errorf("inverted = %d, want 0", len(result.Inverted))
	}
}

// a gap of exactly the minimum size qualifies
func TestDetectFVGsAtMinimumGap(t *testing.T) {
	if got := DetectFVGs(gapFrame(), 0.25, 1.0, 100); len(got.Active) != 1 {
		t.Errorf("gap equal to the minimum rejected, active = %d", len(got.Active))
	}
	if got := DetectFVGs(gapFrame(), 0.3, 1.0, 100); len(got.Active) != 0 {
		t.Errorf("gap below the minimum accepted, active = %d", len(got.Active))
	}
}

func TestDetectFVGsInversion(t *testing.T) {
	candles := append(gapFrame(),
		fvgBar(3, 100.2, 100.3, 99.8, 99.875)) // closes through the gap

	result := DetectFVGs(candles, 0.25, 1.0, 100)
	if len(result.Active) != 0 {
		t.Fatalf("active gaps after inversion = %d, want 0", len(result.Active))
	}
	if len(result.Inverted) != 1 {
		t.Fatalf("inverted gaps = %d, want 1", len(result.Inverted))
	}
	inv := result.Inverted[0]
	if inv.Type != BearishFVG {
		t.Errorf("inverted polarity = %s, want BEARISH", inv.Type)
	}
	if inv.InversionIndex != 3 {
		t.Errorf("inversion index = %d, want 3", inv.InversionIndex)
	}
	if inv.Confidence < 50 || inv.Confidence > 100 {
		t.Errorf("confidence = %v, want within [50, 100]", inv.Confidence)
	}
}

func TestDetectFVGsPartialMitigation(t *testing.T) {
	candles := append(gapFrame(),
		fvgBar(3, 100.45, 100.5, 100.125, 100.4)) // dips halfway into the gap

	result := DetectFVGs(candles, 0.25, 1.0, 100)
	if len(result.Active) != 1 {
		t.Fatalf("active gaps = %d, want 1", len(result.Active))
	}
	if got := result.Active[0].MitigatedFraction; got != 0.5 {
		t.Errorf("mitigated fraction = %v, want 0.5", got)
	}
}

func TestBestInDirection(t *testing.T) {
	inverted := []InvertedFVG{
		{FVG: FVG{Type: BullishFVG}, Confidence: 60},
		{FVG: FVG{Type: BullishFVG}, Confidence: 85},
		{FVG: FVG{Type: BearishFVG}, Confidence: 95},
	}
	best := BestInDirection(inverted, BullishFVG)
	if best == nil || best.Confidence != 85 {
		t.Errorf("best bullish = %+v, want confidence 85", best)
	}
	if got := BestInDirection(inverted, BearishFVG); got == nil || got.Confidence != 95 {
		t.Errorf("best bearish = %+v, want confidence 95", got)
	}
	if got := BestInDirection(nil, BullishFVG); got != nil {
		t.Errorf("best of empty = %+v, want nil", got)
	}
}
