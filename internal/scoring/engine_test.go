package scoring

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"smc-engine/config"
	"smc-engine/internal/analyzer"
	"smc-engine/internal/broker"
	"smc-engine/internal/indicators"
	"smc-engine/internal/sequence"
	"smc-engine/internal/smc"
)

func testConfig() *config.Config {
	return &config.Config{
		Risk: config.RiskConfig{
			MinRR:                 2.0,
			ImpulsiveRegimeFilter: true,
		},
		Advanced: config.AdvancedConfig{
			ADXFilterEnabled:   true,
			MinADX:             25,
			HTFAlignmentWeight: 40,
			MTFAlignmentWeight: 30,
			LTFAlignmentWeight: 15,
			RSIExtremeLow:      25,
			RSIExtremeHigh:     75,
		},
		Filters: config.FiltersConfig{
			Killzones: config.KillzonesConfig{Enabled: true},
		},
		Symbols: []config.SymbolConfig{
			{Name: "EURUSD", Enabled: true, MinConfidence: 70, SLMultiplier: 1.0},
		},
	}
}

func newTestEngine() *Engine {
	return NewEngine(testConfig(), zerolog.Nop())
}

// buySetupSnapshot is a fully aligned long: London open, discount zone,
// confirmed sell-side sweep, every timeframe bullish.
func buySetupSnapshot() *analyzer.Snapshot {
	now := time.Date(2026, 8, 24, 8, 30, 0, 0, time.UTC)
	return &analyzer.Snapshot{
		Symbol: "EURUSD",
		Time:   now,
		Price:  1.1000,
		Tick:   broker.Tick{Bid: 1.0999, Ask: 1.1000, SpreadPips: 1},
		Instrument: broker.Instrument{
			Name: "EURUSD", Class: broker.ForexMajor,
			PipSize: 0.0001, PointSize: 0.00001, Digits: 5, StopsLevel: 10,
		},
		Profile: config.AssetProfile{
			MinConfidence:    70,
			MinBreakPips:     0.5,
			InvalidationPips: 15,
			MaxSpreadAbs:     5,
			SLMultiplier:     1.0,
		},
		LTFTrend:      smc.Bullish,
		MTFBias:       smc.Bullish,
		HTFTrend:      smc.Bullish,
		CombinedBias:  smc.Bullish,
		TripleAligned: true,
		Intermarket:   smc.Neutral,
		Structure: smc.StructureAnalysis{
			Swings: []smc.SwingPoint{
				{Index: 5, Price: 1.0960, Kind: smc.SwingLow},
				{Index: 9, Price: 1.1080, Kind: smc.SwingHigh},
			},
			Trend: smc.Bullish,
		},
		Sweep: analyzer.SweepContext{
			Confirmed: &smc.ConfirmedSweep{
				Kind: smc.LevelPDL, Level: 1.0970, Direction: broker.Buy,
				PiercedAt: now.Add(-30 * time.Minute), ConfirmedAt: now.Add(-15 * time.Minute),
				Path: smc.ConfirmReclaim, WickExtreme: 1.0965,
			},
			Strategy:  analyzer.SweepPDHPDL,
			Direction: broker.Buy,
		},
		PDZone:   smc.PDZone{Zone: smc.Discount, Percent: 35},
		PrevDay:  smc.PrevDayLevels{Valid: true, High: 1.1100, Low: 1.0900},
		Killzone: smc.KillzoneInfo{Active: true, Zone: smc.KZLondonOpen, HourUTC: 8},
		RSI:      45,
		Volume:   indicators.VolumePressure{IsSafe: true, Reason: "normal"},
		ATR:      0.002,
		HTFADX:   indicators.ADXResult{ADX: 30, PlusDI: 25, MinusDI: 10},
	}
}

func entryReadyState() *sequence.State {
	return &sequence.State{
		Symbol:         "EURUSD",
		Stage:          sequence.StageEntryReady,
		SweepType:      analyzer.SweepPDHPDL,
		SweepDirection: broker.Buy,
		SweepPrice:     1.0965,
		ValidEntryZone: true,
	}
}

func TestEvaluateAlignedBuy(t *testing.T) {
	sig := newTestEngine().Evaluate(buySetupSnapshot(), entryReadyState())
	if !sig.Tradable() {
		t.Fatalf("signal rejected: %s", sig.Rejection)
	}
	if sig.Kind != SignalBuy {
		t.Errorf("kind = %s, want BUY", sig.Kind)
	}
	if sig.Quality != QualityAPlus {
		t.Errorf("quality = %s, want A+", sig.Quality)
	}
	if sig.Confidence != 100 {
		t.Errorf("confidence = %v, want the capped 100", sig.Confidence)
	}
	if sig.LotMultiplier != 1.0 {
		t.Errorf("lot multiplier = %v, want 1.0", sig.LotMultiplier)
	}
	if sig.RR < 2.0 {
		t.Errorf("RR = %v, want >= 2.0", sig.RR)
	}
	if sig.StopLoss >= sig.EntryPrice || sig.TakeProfit <= sig.EntryPrice {
		t.Errorf("levels out of order: %+v", sig)
	}
}

func TestEvaluateOutsideKillzone(t *testing.T) {
	snap := buySetupSnapshot()
	snap.Killzone = smc.KillzoneInfo{Active: false, HourUTC: 22}
	sig := newTestEngine().Evaluate(snap, entryReadyState())
	if sig.Tradable() || sig.Rejection != "outside killzone" {
		t.Errorf("rejection = %q, want outside killzone", sig.Rejection)
	}
}

func TestEvaluateAsianOverlapVeto(t *testing.T) {
	// 07:00 is both the London open and the Asian tail; the session
	// veto wins
	snap := buySetupSnapshot()
	snap.Killzone = smc.KillzoneInfo{Active: true, Zone: smc.KZLondonOpen, HourUTC: 7, IsAsian: true}
	sig := newTestEngine().Evaluate(snap, entryReadyState())
	if sig.Tradable() || sig.Rejection != "Asian session" {
		t.Errorf("rejection = %q, want Asian session", sig.Rejection)
	}
}

func TestEvaluateZoneConflict(t *testing.T) {
	snap := buySetupSnapshot()
	snap.PDZone = smc.PDZone{Zone: smc.Premium, Percent: 85}
	snap.Sweep = analyzer.SweepContext{}
	sig := newTestEngine().Evaluate(snap, entryReadyState())
	if sig.Tradable() || !strings.Contains(sig.Rejection, "zone conflict") {
		t.Errorf("rejection = %q, want a zone conflict", sig.Rejection)
	}
}

func TestEvaluateZoneConflictSweepException(t *testing.T) {
	// a confirmed sweep in the entry direction overrides the zone veto
	snap := buySetupSnapshot()
	snap.PDZone = smc.PDZone{Zone: smc.Premium, Percent: 60}
	sig := newTestEngine().Evaluate(snap, entryReadyState())
	if strings.Contains(sig.Rejection, "zone conflict") {
		t.Errorf("sweep exception not applied: %q", sig.Rejection)
	}
}

func TestEvaluateHTFConflictDowngrade(t *testing.T) {
	snap := buySetupSnapshot()
	snap.HTFTrend = smc.Bearish
	snap.MTFBias = smc.Ranging
	snap.TripleAligned = false
	snap.Profile.AllowCounterTrend = true
	snap.Divergence = indicators.BullishDivergence
	snap.RSI = 38

	sig := newTestEngine().Evaluate(snap, entryReadyState())
	if !sig.Tradable() {
		t.Fatalf("signal rejected: %s", sig.Rejection)
	}
	if sig.LotMultiplier != 0.5 {
		t.Errorf("lot multiplier = %v, want the halved 0.5", sig.LotMultiplier)
	}
	found := false
	for _, r := range sig.Reasons {
		if r == "HTF Conflict (VETO)" {
			found = true
		}
	}
	if !found {
		t.Errorf("reasons %v missing the HTF conflict tag", sig.Reasons)
	}
}

func TestEvaluateStrictTrendProfileBlocks(t *testing.T) {
	snap := buySetupSnapshot()
	snap.HTFTrend = smc.Bearish
	snap.MTFBias = smc.Ranging
	snap.Profile.AllowCounterTrend = false
	snap.Sweep = analyzer.SweepContext{}

	sig := newTestEngine().Evaluate(snap, entryReadyState())
	if sig.Tradable() || sig.Rejection != "counter-trend blocked by profile" {
		t.Errorf("rejection = %q, want the strict-trend block", sig.Rejection)
	}
}

func TestEvaluateEliteOrNothing(t *testing.T) {
	// a halved lot on a mediocre confidence is refused outright
	snap := buySetupSnapshot()
	snap.HTFTrend = smc.Bearish
	snap.MTFBias = smc.Ranging
	snap.TripleAligned = false
	snap.Profile.AllowCounterTrend = true
	snap.Sweep = analyzer.SweepContext{}

	sig := newTestEngine().Evaluate(snap, entryReadyState())
	if sig.Tradable() {
		t.Fatalf("signal accepted at confidence %v lot %v", sig.Confidence, sig.LotMultiplier)
	}
	if !strings.Contains(sig.Rejection, "elite-or-nothing") {
		t.Errorf("rejection = %q, want elite-or-nothing", sig.Rejection)
	}
}

func TestEvaluateSpreadAgainstOrderBlock(t *testing.T) {
	snap := buySetupSnapshot()
	snap.Tick = broker.Tick{Bid: 1.0995, Ask: 1.1000, SpreadPips: 5}
	snap.OrderBlocks.Bullish = []smc.OrderBlock{{
		Type: smc.BullishOB, Status: smc.OBFresh, Index: 50,
		Low: 1.0995, High: 1.1003,
	}}

	sig := newTestEngine().Evaluate(snap, entryReadyState())
	if sig.Tradable() || sig.Rejection != "Spread trop large vs OB" {
		t.Errorf("rejection = %q, want the OB spread sentinel", sig.Rejection)
	}
}

func TestEvaluateSpreadOverClassCap(t *testing.T) {
	snap := buySetupSnapshot()
	snap.Tick = broker.Tick{Bid: 1.0994, Ask: 1.1000, SpreadPips: 6}
	sig := newTestEngine().Evaluate(snap, entryReadyState())
	if sig.Tradable() || !strings.Contains(sig.Rejection, "over cap") {
		t.Errorf("rejection = %q, want the absolute spread cap", sig.Rejection)
	}
}

func TestEvaluateADXBoundary(t *testing.T) {
	snap := buySetupSnapshot()
	snap.HTFADX.ADX = 25.0
	if sig := newTestEngine().Evaluate(snap, entryReadyState()); !sig.Tradable() {
		t.Errorf("ADX exactly at the floor rejected: %s", sig.Rejection)
	}

	snap = buySetupSnapshot()
	snap.HTFADX.ADX = 24.9
	if sig := newTestEngine().Evaluate(snap, entryReadyState()); sig.Tradable() || !strings.Contains(sig.Rejection, "ADX") {
		t.Errorf("rejection = %q, want the ADX floor", sig.Rejection)
	}
}

func TestEvaluateNoBias(t *testing.T) {
	snap := buySetupSnapshot()
	snap.CombinedBias = smc.Neutral
	sig := newTestEngine().Evaluate(snap, nil)
	if sig.Tradable() || sig.Rejection != "no directional bias" {
		t.Errorf("rejection = %q, want no directional bias", sig.Rejection)
	}
}

func TestEvaluateEntryReadyOverridesNeutralBias(t *testing.T) {
	snap := buySetupSnapshot()
	snap.CombinedBias = smc.Neutral
	sig := newTestEngine().Evaluate(snap, entryReadyState())
	if !sig.Tradable() {
		t.Fatalf("signal rejected: %s", sig.Rejection)
	}
	if !sig.IsSecondarySource {
		t.Error("secondary-source flag not set")
	}
	if sig.Kind != SignalBuy {
		t.Errorf("kind = %s, want BUY from the sweep direction", sig.Kind)
	}
}

func TestBandQuality(t *testing.T) {
	tests := []struct {
		confidence float64
		quality    Quality
		lot        float64
	}{
		{85, QualityAPlus, 1.0},
		{84.9, QualityA, 0.8},
		{70, QualityA, 0.8},
		{55, QualityB, 0.5},
		{40, QualityC, 0.3},
		{39.9, QualityReject, 0},
	}
	for _, tt := range tests {
		q, lot := bandQuality(tt.confidence)
		if q != tt.quality || lot != tt.lot {
			t.Errorf("bandQuality(%v) = %s %v, want %s %v", tt.confidence, q, lot, tt.quality, tt.lot)
		}
	}
}
