package smc

import (
	"testing"
	"time"

	"smc-engine/internal/broker"
)

var testBase = time.Date(2026, 8, 24, 8, 0, 0, 0, time.UTC)

func ohlc(i int, open, high, low, close float64) broker.Candle {
	return broker.Candle{
		Time:  testBase.Add(time.Duration(i) * 15 * time.Minute),
		Open:  open,
		High:  high,
		Low:   low,
		Close: close,
	}
}

// trendFrame describes a down-up-down sequence: a swing high at 12, a
// swing low at 8.5, a bullish displacement break at bar 10 and a
// bearish reversal at bar 13.
func trendFrame() []broker.Candle {
	rows := [][4]float64{
		{9.7, 10, 9, 9.5},
		{10.3, 11, 10, 10.5},
		{11.3, 12, 11, 11.5},
		{10.7, 11, 10, 10.5},
		{10.2, 10.5, 9.5, 10},
		{9.7, 10, 9, 9.5},
		{9.2, 9.5, 8.5, 9},
		{9.6, 10, 9, 9.8},
		{10, 10.5, 9.5, 10.2},
		{10.6, 11, 10, 10.8},
		{11.2, 12.5, 11, 12.2},
		{11.7, 12, 11, 11.5},
		{11.2, 11.5, 10.5, 11},
		{10.8, 11, 8, 8.2},
		{8.7, 9, 8, 8.5},
		{8.6, 9, 8.2, 8.4},
	}
	candles := make([]broker.Candle, len(rows))
	for i, r := range rows {
		candles[i] = ohlc(i, r[0], r[1], r[2], r[3])
	}
	return candles
}

func TestDetectSwings(t *testing.T) {
	swings := DetectSwings(trendFrame(), 2)

	var highs, lows []float64
	for _, s := range swings {
		if s.Kind == SwingHigh {
			highs = append(highs, s.Price)
		} else {
			lows = append(lows, s.Price)
		}
	}

	wantHighs := []float64{12, 12.5}
	wantLows := []float64{8.5}
	if len(highs) != len(wantHighs) {
		t.Fatalf("swing highs = %v, want %v", highs, wantHighs)
	}
	for i := range wantHighs {
		if highs[i] != wantHighs[i] {
			t.Errorf("swing high %d = %v, want %v", i, highs[i], wantHighs[i])
		}
	}
	if len(lows) != 1 || lows[0] != wantLows[0] {
		t.Errorf("swing lows = %v, want %v", lows, wantLows)
	}
}

func TestDetectSwingsShortFrame(t *testing.T) {
	if got := DetectSwings(trendFrame()[:4], 2); got != nil {
		t.Fatalf("expected no swings on a short frame, got %v", got)
	}
}

func TestAnalyzeStructureBreaks(t *testing.T) {
	analysis := AnalyzeStructure(trendFrame(), 2, 50)

	if len(analysis.Breaks) != 2 {
		t.Fatalf("breaks = %d, want 2 (%+v)", len(analysis.Breaks), analysis.Breaks)
	}

	first := analysis.Breaks[0]
	if first.Direction != Bullish || first.Kind != BOS {
		t.Errorf("first break = %s %s, want BULLISH BOS", first.Direction, first.Kind)
	}
	if first.SwingPrice != 12 {
		t.Errorf("first break swing price = %v, want 12", first.SwingPrice)
	}

	second := analysis.Breaks[1]
	if second.Direction != Bearish || second.Kind != CHOCH {
		t.Errorf("second break = %s %s, want BEARISH CHOCH", second.Direction, second.Kind)
	}
	if second.SwingPrice != 8.5 {
		t.Errorf("second break swing price = %v, want 8.5", second.SwingPrice)
	}

	if analysis.Trend != Bearish {
		t.Errorf("trend = %s, want BEARISH", analysis.Trend)
	}

	choch := analysis.LastCHOCH()
	if choch == nil || choch.Index != second.Index {
		t.Errorf("LastCHOCH = %+v, want the bearish break", choch)
	}
}

func TestAnalyzeStructureRangingDecay(t *testing.T) {
	analysis := AnalyzeStructure(trendFrame(), 2, 1)
	if analysis.Trend != Ranging {
		t.Errorf("trend with stale structure = %s, want RANGING", analysis.Trend)
	}
}

func TestAnalyzeStructureEmptyFrame(t *testing.T) {
	analysis := AnalyzeStructure(nil, 2, 50)
	if analysis.Trend != Ranging || len(analysis.Breaks) != 0 {
		t.Errorf("empty frame analysis = %+v, want ranging with no breaks", analysis)
	}
}

func TestRecentDisplacement(t *testing.T) {
	candles := trendFrame()
	analysis := AnalyzeStructure(candles, 2, 50)

	// the bar-13 reversal has a 2.6 body against a ~0.26 average
	if !analysis.RecentDisplacement(len(candles), 3) {
		t.Error("expected displacement within the last 3 bars")
	}
	if analysis.RecentDisplacement(len(candles), 1) {
		t.Error("no displacement break expected on the final bar")
	}
}
