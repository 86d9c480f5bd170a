package sequence

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"smc-engine/config"
	"smc-engine/internal/analyzer"
	"smc-engine/internal/broker"
	"smc-engine/internal/smc"
)

var seqT0 = time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)

func newTestMachine() *Machine {
	return New(60, zerolog.Nop())
}

// baseSnapshot is a neutral EURUSD read with one closed bar.
func baseSnapshot(barIdx int, close float64) *analyzer.Snapshot {
	barTime := seqT0.Add(time.Duration(barIdx) * 15 * time.Minute)
	return &analyzer.Snapshot{
		Symbol:     "EURUSD",
		Time:       barTime,
		Price:      close,
		Instrument: broker.Instrument{Name: "EURUSD", PipSize: 0.0001},
		Profile: config.AssetProfile{
			InvalidationPips: 15,
			MinBreakPips:     0.5,
		},
		RSI: 50,
		LTF: []broker.Candle{{
			Time: barTime, Open: close, High: close + 0.0005, Low: close - 0.0005, Close: close,
		}},
	}
}

func withConfirmedSweep(snap *analyzer.Snapshot, piercedAt time.Time) *analyzer.Snapshot {
	snap.Sweep = analyzer.SweepContext{
		Confirmed: &smc.ConfirmedSweep{
			Kind:        smc.LevelPDL,
			Level:       1.1000,
			Direction:   broker.Buy,
			PiercedAt:   piercedAt,
			ConfirmedAt: piercedAt,
			Path:        smc.ConfirmReclaim,
			WickExtreme: 1.0990,
		},
		Strategy:  analyzer.SweepPDHPDL,
		Direction: broker.Buy,
	}
	return snap
}

func withCHOCH(snap *analyzer.Snapshot, at time.Time) *analyzer.Snapshot {
	snap.Structure = smc.StructureAnalysis{
		Breaks: []smc.StructureBreak{{
			Index:      10,
			Time:       at,
			BreakPrice: 1.1030,
			SwingPrice: 1.1020,
			Direction:  smc.Bullish,
			Kind:       smc.CHOCH,
		}},
	}
	return snap
}

func TestAdvanceFullSequence(t *testing.T) {
	m := newTestMachine()

	st := m.Advance(withConfirmedSweep(baseSnapshot(0, 1.1005), seqT0))
	if st.Stage != StageLiquiditySweep {
		t.Fatalf("stage after sweep = %s, want LIQUIDITY_SWEEP", st.Stage)
	}
	if st.SweepPrice != 1.0990 || st.SweepLevel != 1.1000 {
		t.Errorf("sweep price/level = %v/%v, want 1.0990/1.1000", st.SweepPrice, st.SweepLevel)
	}
	if st.SweepType != analyzer.SweepPDHPDL {
		t.Errorf("sweep type = %s, want pdh_pdl", st.SweepType)
	}

	// bullish CHOCH after the sweep with magnitude 10 pips
	st = m.Advance(withCHOCH(baseSnapshot(1, 1.1030), seqT0.Add(20*time.Minute)))
	if st.Stage != StageStructureShift {
		t.Fatalf("stage after choch = %s, want STRUCTURE_SHIFT", st.Stage)
	}
	if !st.CHOCHDetected || st.CHOCHPrice != 1.1030 {
		t.Errorf("choch = %v at %v, want detected at 1.1030", st.CHOCHDetected, st.CHOCHPrice)
	}

	// discount zone completes the sequence
	snap := baseSnapshot(2, 1.1010)
	snap.PDZone = smc.PDZone{Zone: smc.Discount}
	st = m.Advance(snap)
	if st.Stage != StageEntryReady {
		t.Fatalf("stage in discount = %s, want ENTRY_READY", st.Stage)
	}
	if !st.ValidEntryZone {
		t.Error("entry zone flag not set")
	}
}

func TestAdvanceCHOCHNeedsMagnitude(t *testing.T) {
	m := newTestMachine()
	m.Advance(withConfirmedSweep(baseSnapshot(0, 1.1005), seqT0))

	snap := withCHOCH(baseSnapshot(1, 1.1021), seqT0.Add(20*time.Minute))
	// 0.3 pips of break against a 0.5 pip floor
	snap.Structure.Breaks[0].BreakPrice = 1.102003
	snap.Structure.Breaks[0].SwingPrice = 1.102
	st := m.Advance(snap)
	if st.Stage != StageLiquiditySweep {
		t.Errorf("stage = %s, want still LIQUIDITY_SWEEP", st.Stage)
	}
}

func TestAdvanceCHOCHBeforeSweepIgnored(t *testing.T) {
	m := newTestMachine()
	m.Advance(withConfirmedSweep(baseSnapshot(0, 1.1005), seqT0))

	// structural break stamped before the sweep must not advance
	st := m.Advance(withCHOCH(baseSnapshot(1, 1.1030), seqT0.Add(-time.Hour)))
	if st.Stage != StageLiquiditySweep {
		t.Errorf("stage = %s, want LIQUIDITY_SWEEP", st.Stage)
	}
}

func TestAdvanceSweepInvalidation(t *testing.T) {
	m := newTestMachine()
	m.Advance(withConfirmedSweep(baseSnapshot(0, 1.1005), seqT0))

	// continuation 20 pips below the wick extreme, past the 15 pip buffer
	st := m.Advance(baseSnapshot(1, 1.0970))
	if st.Stage != StageNeutral {
		t.Errorf("stage after continuation = %s, want NEUTRAL", st.Stage)
	}
}

func TestAdvanceReadyInvalidatedByClose(t *testing.T) {
	m := newTestMachine()
	m.Advance(withConfirmedSweep(baseSnapshot(0, 1.1005), seqT0))
	m.Advance(withCHOCH(baseSnapshot(1, 1.1030), seqT0.Add(20*time.Minute)))

	// a close back through the swept wick voids the setup
	st := m.Advance(baseSnapshot(2, 1.0985))
	if st.Stage != StageNeutral {
		t.Errorf("stage after close-through = %s, want NEUTRAL", st.Stage)
	}
}

func TestAdvanceStageTimeout(t *testing.T) {
	m := New(2, zerolog.Nop())
	m.Advance(withConfirmedSweep(baseSnapshot(0, 1.1005), seqT0))

	for i := 1; i <= 3; i++ {
		m.Advance(baseSnapshot(i, 1.1005))
	}
	st := m.State("EURUSD")
	if st.Stage != StageNeutral {
		t.Errorf("stage after timeout = %s, want NEUTRAL", st.Stage)
	}
}

func TestAdvanceMomentumClimax(t *testing.T) {
	m := newTestMachine()
	snap := baseSnapshot(0, 1.1005)
	snap.RSI = 25

	st := m.Advance(snap)
	if st.Stage != StageLiquiditySweep {
		t.Fatalf("stage = %s, want LIQUIDITY_SWEEP", st.Stage)
	}
	if st.SweepDirection != broker.Buy {
		t.Errorf("direction = %s, want BUY", st.SweepDirection)
	}
	if st.SweepType != analyzer.SweepGeneric {
		t.Errorf("sweep type = %s, want generic", st.SweepType)
	}
	if st.SweepPrice != snap.LTF[0].Low {
		t.Errorf("sweep price = %v, want the bar low", st.SweepPrice)
	}
}

func TestAdvanceForwardOnly(t *testing.T) {
	m := newTestMachine()
	m.Advance(withConfirmedSweep(baseSnapshot(0, 1.1005), seqT0))
	m.Advance(withCHOCH(baseSnapshot(1, 1.1030), seqT0.Add(20*time.Minute)))

	snap := baseSnapshot(2, 1.1010)
	snap.PDZone = smc.PDZone{Zone: smc.Discount}
	m.Advance(snap)

	// a fresh sweep while ENTRY_READY must not restart the sequence
	st := m.Advance(withConfirmedSweep(baseSnapshot(3, 1.1012), seqT0.Add(45*time.Minute)))
	if st.Stage != StageEntryReady {
		t.Errorf("stage = %s, want ENTRY_READY", st.Stage)
	}
}
