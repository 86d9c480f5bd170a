package smc

import (
	"time"

	"smc-engine/internal/broker"
)

// LevelKind names the reference level a sweep targets
type LevelKind string

const (
	LevelAsianHigh LevelKind = "ASIAN_HIGH"
	LevelAsianLow  LevelKind = "ASIAN_LOW"
	LevelPDH       LevelKind = "PDH"
	LevelPDL       LevelKind = "PDL"
	LevelSwing     LevelKind = "SWING"
)

// ConfirmPath records which predicate confirmed a sweep
type ConfirmPath string

const (
	ConfirmReclaim   ConfirmPath = "reclaim"   // bar closed back across the level
	ConfirmStabilise ConfirmPath = "stabilise" // price held within 0.05% for 5 minutes
	ConfirmTimeout   ConfirmPath = "timeout"   // 45-minute fallback within 0.1%
)

const (
	stabiliseTolerance = 0.0005 // 0.05% of the level
	timeoutTolerance   = 0.001  // 0.1%
	stabiliseHold      = 5 * time.Minute
	confirmDeadline    = 45 * time.Minute
)

// PendingSweep is a pierce of a level awaiting confirmation
type PendingSweep struct {
	Kind        LevelKind
	Level       float64
	Direction   broker.Side // expected reversal direction
	PiercedAt   time.Time
	WickExtreme float64
	stableSince *time.Time
}

// ConfirmedSweep is a sweep that passed one of the confirmation paths
type ConfirmedSweep struct {
	Kind        LevelKind
	Level       float64
	Direction   broker.Side
	PiercedAt   time.Time
	ConfirmedAt time.Time
	Path        ConfirmPath
	WickExtreme float64
}

// SweepTracker holds the pending and confirmed sweeps of one symbol.
// It is owned by the symbol's scheduler slot and reset between symbols.
type SweepTracker struct {
	pending   []PendingSweep
	confirmed []ConfirmedSweep
}

// NewSweepTracker creates an empty tracker.
func NewSweepTracker() *SweepTracker {
	return &SweepTracker{}
}

// Reset drops all state.
func (st *SweepTracker) Reset() {
	st.pending = nil
	st.confirmed = nil
}

// ObserveBar checks the latest bar against a reference level. A wick
// beyond the level with a close reclaiming it confirms in one bar; a
// wick beyond without reclaim records a pending sweep. buffer widens
// the level before a pierce counts.
func (st *SweepTracker) ObserveBar(kind LevelKind, level, buffer float64, bar broker.Candle) {
	if level <= 0 {
		return
	}

	// sell-side levels (lows): pierce below, expect BUY reversal
	sellSide := kind == LevelAsianLow || kind == LevelPDL

	if sellSide {
		if bar.Low >= level-buffer {
			return
		}
		if bar.Close > level {
			st.confirm(ConfirmedSweep{
				Kind: kind, Level: level, Direction: broker.Buy,
				PiercedAt: bar.Time, ConfirmedAt: bar.Time,
				Path: ConfirmReclaim, WickExtreme: bar.Low,
			})
			return
		}
		st.addPending(PendingSweep{Kind: kind, Level: level, Direction: broker.Buy, PiercedAt: bar.Time, WickExtreme: bar.Low})
		return
	}

	// buy-side levels (highs): pierce above, expect SELL reversal
	if bar.High <= level+buffer {
		return
	}
	if bar.Close < level {
		st.confirm(ConfirmedSweep{
			Kind: kind, Level: level, Direction: broker.Sell,
			PiercedAt: bar.Time, ConfirmedAt: bar.Time,
			Path: ConfirmReclaim, WickExtreme: bar.High,
		})
		return
	}
	st.addPending(PendingSweep{Kind: kind, Level: level, Direction: broker.Sell, PiercedAt: bar.Time, WickExtreme: bar.High})
}

// Update runs the confirmation predicate over all pending sweeps with
// the current price and the last completed bar close. Pendings past the
// 45-minute deadline without qualifying are dropped.
func (st *SweepTracker) Update(now time.Time, price, lastClose float64) {
	kept := st.pending[:0]
	for i := range st.pending {
		p := st.pending[i]
		age := now.Sub(p.PiercedAt)

		// path 1: a later bar closes back across the level
		reclaimed := (p.Direction == broker.Buy && lastClose > p.Level) ||
			(p.Direction == broker.Sell && lastClose < p.Level)
		if reclaimed {
			st.confirm(ConfirmedSweep{Kind: p.Kind, Level: p.Level, Direction: p.Direction,
				PiercedAt: p.PiercedAt, ConfirmedAt: now, Path: ConfirmReclaim, WickExtreme: p.WickExtreme})
			continue
		}

		// path 2: price stabilises within 0.05% for 5 minutes
		if relDist(price, p.Level) < stabiliseTolerance {
			if p.stableSince == nil {
				t := now
				p.stableSince = &t
			} else if now.Sub(*p.stableSince) >= stabiliseHold {
				st.confirm(ConfirmedSweep{Kind: p.Kind, Level: p.Level, Direction: p.Direction,
					PiercedAt: p.PiercedAt, ConfirmedAt: now, Path: ConfirmStabilise, WickExtreme: p.WickExtreme})
				continue
			}
		} else {
			p.stableSince = nil
		}

		// path 3: 45-minute fallback within 0.1%
		if age >= confirmDeadline {
			if relDist(price, p.Level) < timeoutTolerance {
				st.confirm(ConfirmedSweep{Kind: p.Kind, Level: p.Level, Direction: p.Direction,
					PiercedAt: p.PiercedAt, ConfirmedAt: now, Path: ConfirmTimeout, WickExtreme: p.WickExtreme})
			}
			continue // confirmed or expired either way
		}

		kept = append(kept, p)
	}
	st.pending = kept
}

// Confirmed returns confirmed sweeps not older than maxAge.
func (st *SweepTracker) Confirmed(now time.Time, maxAge time.Duration) []ConfirmedSweep {
	var out []ConfirmedSweep
	for _, c := range st.confirmed {
		if now.Sub(c.ConfirmedAt) <= maxAge {
			out = append(out, c)
		}
	}
	return out
}

// LatestConfirmed returns the most recent confirmed sweep within maxAge,
// or nil.
func (st *SweepTracker) LatestConfirmed(now time.Time, maxAge time.Duration) *ConfirmedSweep {
	var best *ConfirmedSweep
	for i := range st.confirmed {
		c := st.confirmed[i]
		if now.Sub(c.ConfirmedAt) > maxAge {
			continue
		}
		if best == nil || c.ConfirmedAt.After(best.ConfirmedAt) {
			best = &c
		}
	}
	return best
}

// PendingCount reports outstanding unconfirmed pierces.
func (st *SweepTracker) PendingCount() int {
	return len(st.pending)
}

func (st *SweepTracker) addPending(p PendingSweep) {
	for _, existing := range st.pending {
		if existing.Kind == p.Kind && existing.Level == p.Level {
			return
		}
	}
	st.pending = append(st.pending, p)
}

func (st *SweepTracker) confirm(c ConfirmedSweep) {
	for _, existing := range st.confirmed {
		if existing.Kind == c.Kind && existing.Level == c.Level && existing.PiercedAt.Equal(c.PiercedAt) {
			return
		}
	}
	st.confirmed = append(st.confirmed, c)
	// keep the tail bounded
	if len(st.confirmed) > 32 {
		st.confirmed = st.confirmed[len(st.confirmed)-32:]
	}
}

func relDist(price, level float64) float64 {
	if level == 0 {
		return 1
	}
	return diff(price, level) / level
}
