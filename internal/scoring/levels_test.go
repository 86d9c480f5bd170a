package scoring

import (
	"math"
	"testing"

	"smc-engine/internal/analyzer"
	"smc-engine/internal/broker"
	"smc-engine/internal/smc"
)

func levelSnapshot() *analyzer.Snapshot {
	return &analyzer.Snapshot{
		Symbol: "EURUSD",
		Instrument: broker.Instrument{
			Name:       "EURUSD",
			PipSize:    0.0001,
			PointSize:  0.00001,
			Digits:     5,
			StopsLevel: 10,
		},
		ATR: 0.002,
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestBuildLevelsStructuralBuy(t *testing.T) {
	snap := levelSnapshot()
	snap.Structure.Swings = []smc.SwingPoint{
		{Index: 5, Price: 1.0960, Kind: smc.SwingLow},
		{Index: 9, Price: 1.1080, Kind: smc.SwingHigh},
	}
	snap.PrevDay = smc.PrevDayLevels{Valid: true, High: 1.1100, Low: 1.0900}

	lv, ok := BuildLevels(snap, broker.Buy, 1.1000, 1.0)
	if !ok {
		t.Fatalf("levels rejected: %+v", lv)
	}
	if !lv.Structural {
		t.Error("stop should anchor on the swing low")
	}
	// swing low minus the 5 pip buffer
	if !approx(lv.StopLoss, 1.0955) {
		t.Errorf("SL = %v, want 1.0955", lv.StopLoss)
	}
	if !approx(lv.TakeProfit, 1.1100) {
		t.Errorf("TP = %v, want the previous day high", lv.TakeProfit)
	}
	if math.Abs(lv.RR-2.2222) > 0.001 {
		t.Errorf("RR = %v, want ~2.22", lv.RR)
	}
}

func TestBuildLevelsFallback(t *testing.T) {
	snap := levelSnapshot()

	lv, ok := BuildLevels(snap, broker.Buy, 1.1000, 1.0)
	if !ok {
		t.Fatalf("levels rejected: %+v", lv)
	}
	if lv.Structural {
		t.Error("no swings, stop should be the fixed fallback")
	}
	if !approx(lv.StopLoss, 1.0960) {
		t.Errorf("SL = %v, want 40 pips below entry", lv.StopLoss)
	}
	if !approx(lv.TakeProfit, 1.1050) {
		t.Errorf("TP = %v, want 50 pips above entry", lv.TakeProfit)
	}
	if math.Abs(lv.RR-1.25) > 0.001 {
		t.Errorf("RR = %v, want 1.25", lv.RR)
	}
}

func TestBuildLevelsReprojectsNearTarget(t *testing.T) {
	snap := levelSnapshot()
	snap.Structure.Swings = []smc.SwingPoint{
		{Index: 5, Price: 1.0950, Kind: smc.SwingLow},
	}
	// PDH only 20 pips away against a 55 pip risk
	snap.PrevDay = smc.PrevDayLevels{Valid: true, High: 1.1020, Low: 1.0900}

	lv, ok := BuildLevels(snap, broker.Buy, 1.1000, 1.0)
	if !ok {
		t.Fatalf("levels rejected: %+v", lv)
	}
	if !approx(lv.TakeProfit, 1.1110) {
		t.Errorf("TP = %v, want the 2R projection 1.1110", lv.TakeProfit)
	}
	if math.Abs(lv.RR-2.0) > 0.001 {
		t.Errorf("RR = %v, want 2.0", lv.RR)
	}
}

func TestBuildLevelsSell(t *testing.T) {
	snap := levelSnapshot()
	snap.Structure.Swings = []smc.SwingPoint{
		{Index: 7, Price: 1.1040, Kind: smc.SwingHigh},
	}
	snap.PrevDay = smc.PrevDayLevels{Valid: true, High: 1.1100, Low: 1.0900}

	lv, ok := BuildLevels(snap, broker.Sell, 1.1000, 1.0)
	if !ok {
		t.Fatalf("levels rejected: %+v", lv)
	}
	if !approx(lv.StopLoss, 1.1045) {
		t.Errorf("SL = %v, want 1.1045", lv.StopLoss)
	}
	if !approx(lv.TakeProfit, 1.0900) {
		t.Errorf("TP = %v, want the previous day low", lv.TakeProfit)
	}
	if !(lv.TakeProfit < 1.1000 && 1.1000 < lv.StopLoss) {
		t.Errorf("sell levels out of order: %+v", lv)
	}
}

func TestBuildLevelsSLMultiplier(t *testing.T) {
	snap := levelSnapshot()
	snap.Structure.Swings = []smc.SwingPoint{
		{Index: 5, Price: 1.0960, Kind: smc.SwingLow},
	}
	snap.PrevDay = smc.PrevDayLevels{Valid: true, High: 1.1100, Low: 1.0900}

	lv, ok := BuildLevels(snap, broker.Buy, 1.1000, 1.5)
	if !ok {
		t.Fatalf("levels rejected: %+v", lv)
	}
	// 45 pip structural distance widened by 1.5
	if !approx(lv.StopLoss, 1.09325) {
		t.Errorf("SL = %v, want 1.09325", lv.StopLoss)
	}
}

func TestRoundToDigits(t *testing.T) {
	tests := []struct {
		price  float64
		digits int
		want   float64
	}{
		{1.23456789, 5, 1.23457},
		{1.23454, 4, 1.2345},
		{1912.3456, 2, 1912.35},
		{1.5, 0, 1.5},
	}
	for _, tt := range tests {
		if got := RoundToDigits(tt.price, tt.digits); !approx(got, tt.want) {
			t.Errorf("RoundToDigits(%v, %d) = %v, want %v", tt.price, tt.digits, got, tt.want)
		}
	}
}

func TestMinStopDistance(t *testing.T) {
	instr := broker.Instrument{PipSize: 0.0001, PointSize: 0.00001, StopsLevel: 10}
	if got := MinStopDistance(instr); !approx(got, 0.00012) {
		t.Errorf("min distance = %v, want 0.00012", got)
	}
	// point size derived from the pip when the broker omits it
	instr.PointSize = 0
	if got := MinStopDistance(instr); !approx(got, 0.00012) {
		t.Errorf("derived min distance = %v, want 0.00012", got)
	}
}
