// Package sequence implements the per-symbol institutional sequencing
// state machine: liquidity sweep, structure shift, entry readiness.
package sequence

import (
	"time"

	"github.com/rs/zerolog"

	"smc-engine/internal/analyzer"
	"smc-engine/internal/broker"
	"smc-engine/internal/smc"
)

// Stage is the position in the institutional sequence. Stages only
// advance forward or reset to NEUTRAL.
type Stage int

const (
	StageNeutral Stage = iota
	StageLiquiditySweep
	StageStructureShift
	StageEntryReady
)

func (s Stage) String() string {
	switch s {
	case StageLiquiditySweep:
		return "LIQUIDITY_SWEEP"
	case StageStructureShift:
		return "STRUCTURE_SHIFT"
	case StageEntryReady:
		return "ENTRY_READY"
	default:
		return "NEUTRAL"
	}
}

// State is the per-symbol sequencing state. Created on first analysis,
// reset on invalidation or timeout.
type State struct {
	Symbol              string
	Stage               Stage
	SweepType           analyzer.SweepStrategy
	SweepDirection      broker.Side
	SweepPrice          float64 // the swept wick extreme
	SweepLevel          float64 // the reference level that was swept
	SweepTime           time.Time
	CHOCHDetected       bool
	CHOCHPrice          float64
	CHOCHTime           time.Time
	ValidEntryZone      bool
	BarsSinceTransition int

	lastBarTime time.Time
}

// Machine advances the per-symbol states on each snapshot
type Machine struct {
	states         map[string]*State
	expirationBars int
	logger         zerolog.Logger
}

// New creates a state machine with the configured stage timeout.
func New(expirationBars int, logger zerolog.Logger) *Machine {
	if expirationBars <= 0 {
		expirationBars = 60
	}
	return &Machine{
		states:         make(map[string]*State),
		expirationBars: expirationBars,
		logger:         logger.With().Str("component", "sequence").Logger(),
	}
}

// State returns the current state for a symbol, creating it if needed.
func (m *Machine) State(symbol string) *State {
	st, ok := m.states[symbol]
	if !ok {
		st = &State{Symbol: symbol, Stage: StageNeutral}
		m.states[symbol] = st
	}
	return st
}

// Reset returns a symbol to NEUTRAL, clearing all sweep context.
func (m *Machine) Reset(symbol string, reason string) {
	st := m.State(symbol)
	if st.Stage != StageNeutral {
		m.logger.Debug().Str("symbol", symbol).Str("from", st.Stage.String()).Str("reason", reason).Msg("sequence reset")
	}
	last := st.lastBarTime
	*st = State{Symbol: symbol, Stage: StageNeutral, lastBarTime: last}
}

// Advance applies one snapshot to the symbol's state and returns it.
func (m *Machine) Advance(snap *analyzer.Snapshot) *State {
	st := m.State(snap.Symbol)

	// bar counting: one increment per new completed bar
	if len(snap.LTF) > 0 {
		barTime := snap.LTF[len(snap.LTF)-1].Time
		if !barTime.Equal(st.lastBarTime) {
			if st.Stage != StageNeutral {
				st.BarsSinceTransition++
			}
			st.lastBarTime = barTime
		}
	}

	if st.Stage != StageNeutral && st.BarsSinceTransition > m.expirationBars {
		m.Reset(snap.Symbol, "stage timeout")
		return st
	}

	switch st.Stage {
	case StageNeutral:
		m.tryEnterSweep(st, snap)
	case StageLiquiditySweep:
		if m.sweepInvalidated(st, snap) {
			m.Reset(snap.Symbol, "sweep invalidated")
			return st
		}
		m.tryStructureShift(st, snap)
	case StageStructureShift:
		if m.readyInvalidated(st, snap) {
			m.Reset(snap.Symbol, "close through sweep price")
			return st
		}
		m.tryEntryReady(st, snap)
	case StageEntryReady:
		if m.readyInvalidated(st, snap) {
			m.Reset(snap.Symbol, "close through sweep price")
			return st
		}
	}
	return st
}

// tryEnterSweep moves NEUTRAL to LIQUIDITY_SWEEP on a sweep event or a
// momentum climax with extreme RSI.
func (m *Machine) tryEnterSweep(st *State, snap *analyzer.Snapshot) {
	if snap.Sweep.Detected() {
		st.Stage = StageLiquiditySweep
		st.SweepType = snap.Sweep.Strategy
		st.SweepDirection = snap.Sweep.Direction
		st.BarsSinceTransition = 0
		if c := snap.Sweep.Confirmed; c != nil {
			st.SweepPrice = c.WickExtreme
			st.SweepLevel = c.Level
			st.SweepTime = c.PiercedAt
		} else if g := snap.Sweep.Generic; g != nil {
			st.SweepPrice = g.WickPrice
			st.SweepLevel = g.Zone.Level
			if g.Index < len(snap.LTF) {
				st.SweepTime = snap.LTF[g.Index].Time
			} else {
				st.SweepTime = snap.Time
			}
		}
		m.transitionLog(st, "sweep")
		return
	}

	// momentum climax: an exhaustion extreme acts as a synthetic sweep
	if len(snap.LTF) == 0 {
		return
	}
	last := snap.LTF[len(snap.LTF)-1]
	if snap.RSI < 30 {
		st.Stage = StageLiquiditySweep
		st.SweepType = analyzer.SweepGeneric
		st.SweepDirection = broker.Buy
		st.SweepPrice = last.Low
		st.SweepLevel = last.Low
		st.SweepTime = last.Time
		st.BarsSinceTransition = 0
		m.transitionLog(st, "momentum climax")
	} else if snap.RSI > 70 {
		st.Stage = StageLiquiditySweep
		st.SweepType = analyzer.SweepGeneric
		st.SweepDirection = broker.Sell
		st.SweepPrice = last.High
		st.SweepLevel = last.High
		st.SweepTime = last.Time
		st.BarsSinceTransition = 0
		m.transitionLog(st, "momentum climax")
	}
}

// sweepInvalidated checks continuation past the swept extreme plus the
// asset-class buffer, in the sweep's original direction.
func (m *Machine) sweepInvalidated(st *State, snap *analyzer.Snapshot) bool {
	buffer := snap.Profile.InvalidationPips * snap.PipSize()
	if st.SweepDirection == broker.Buy {
		// sell-side sweep: continuation is further downside
		return snap.Price < st.SweepPrice-buffer
	}
	return snap.Price > st.SweepPrice+buffer
}

// tryStructureShift advances on a CHOCH after the sweep, in the
// reversal direction, with sufficient magnitude.
func (m *Machine) tryStructureShift(st *State, snap *analyzer.Snapshot) {
	choch := snap.Structure.LastCHOCH()
	if choch == nil || !choch.Time.After(st.SweepTime) {
		return
	}

	wantDir := smc.Bullish
	if st.SweepDirection == broker.Sell {
		wantDir = smc.Bearish
	}
	if choch.Direction != wantDir {
		return
	}

	minBreak := snap.Profile.MinBreakPips * snap.PipSize()
	magnitude := choch.BreakPrice - choch.SwingPrice
	if magnitude < 0 {
		magnitude = -magnitude
	}
	if magnitude < minBreak {
		return
	}

	st.Stage = StageStructureShift
	st.CHOCHDetected = true
	st.CHOCHPrice = choch.BreakPrice
	st.CHOCHTime = choch.Time
	st.BarsSinceTransition = 0
	m.transitionLog(st, "choch")
}

// tryEntryReady advances when the premium/discount zone fits the sweep
// direction.
func (m *Machine) tryEntryReady(st *State, snap *analyzer.Snapshot) {
	zone := snap.PDZone.Zone
	ok := false
	if st.SweepDirection == broker.Buy {
		ok = zone == smc.Discount || zone == smc.Equilibrium
	} else {
		ok = zone == smc.Premium || zone == smc.Equilibrium
	}
	if !ok {
		return
	}
	st.Stage = StageEntryReady
	st.ValidEntryZone = true
	st.BarsSinceTransition = 0
	m.transitionLog(st, "entry zone")
}

// readyInvalidated resets when a close crosses back through the swept
// extreme against the setup.
func (m *Machine) readyInvalidated(st *State, snap *analyzer.Snapshot) bool {
	if len(snap.LTF) == 0 {
		return false
	}
	close := snap.LTF[len(snap.LTF)-1].Close
	if st.SweepDirection == broker.Buy {
		return close < st.SweepPrice
	}
	return close > st.SweepPrice
}

func (m *Machine) transitionLog(st *State, trigger string) {
	m.logger.Info().
		Str("symbol", st.Symbol).
		Str("stage", st.Stage.String()).
		Str("trigger", trigger).
		Str("direction", string(st.SweepDirection)).
		Float64("sweep_price", st.SweepPrice).
		Msg("sequence advanced")
}
