package analyzer

import (
	"time"

	"smc-engine/config"
	"smc-engine/internal/broker"
	"smc-engine/internal/indicators"
	"smc-engine/internal/smc"
)

// SweepStrategy names which setup family produced a confirmed sweep
type SweepStrategy string

const (
	SweepNone         SweepStrategy = ""
	SweepPDHPDL       SweepStrategy = "pdh_pdl"
	SweepAsian        SweepStrategy = "asian"
	SweepSilverBullet SweepStrategy = "silver_bullet"
	SweepAMD          SweepStrategy = "amd"
	SweepGeneric      SweepStrategy = "generic"
)

// SweepContext is the liquidity-sweep read of a cycle
type SweepContext struct {
	Confirmed *smc.ConfirmedSweep
	Generic   *smc.Sweep // raw in-killzone bar sweep, unconfirmed family
	Strategy  SweepStrategy
	Direction broker.Side
}

// Detected reports whether any sweep is present.
func (sc SweepContext) Detected() bool {
	return sc.Confirmed != nil || sc.Generic != nil
}

// IsConfirmed reports whether a fully-confirmed sweep is present.
func (sc SweepContext) IsConfirmed() bool {
	return sc.Confirmed != nil
}

// Snapshot is the complete per-cycle market read for one symbol. It is
// a value record: running the analyzer twice over the same frames
// yields the same snapshot.
type Snapshot struct {
	Symbol     string
	Time       time.Time
	Price      float64
	Tick       broker.Tick
	Instrument broker.Instrument
	Profile    config.AssetProfile

	LTFTrend smc.Direction
	MTFBias  smc.Direction
	HTFTrend smc.Direction

	Structure   smc.StructureAnalysis // LTF
	OrderBlocks smc.OrderBlocks
	Breakers    []smc.BreakerBlock
	FVGs        smc.FVGResult
	Liquidity   []smc.LiquidityZone
	BarSweeps   []smc.Sweep
	Sweep       SweepContext

	PDZone       smc.PDZone
	AsianRange   smc.AsianRange
	PrevDay      smc.PrevDayLevels
	SilverBullet smc.SilverBulletPhase
	AMDPhase     smc.AMDPhase
	Killzone     smc.KillzoneInfo

	SMT        smc.SMTSignal
	RSI        float64
	MACD       indicators.MACDResult
	Divergence indicators.Divergence
	Volume     indicators.VolumePressure
	ATR        float64
	HTFADX     indicators.ADXResult
	ADRPercent float64

	// CombinedBias is the precedence-resolved directional read.
	CombinedBias smc.Direction
	// TripleAligned is set when HTF, MTF and LTF all point one way.
	TripleAligned bool
	// CounterSetupFlag marks a setup fighting an impulsive regime; it
	// draws extra scrutiny in scoring but is not a rejection here.
	CounterSetupFlag bool
	// Intermarket is the directional read of the configured reference
	// symbol (DXY-type), Neutral when unavailable.
	Intermarket smc.Direction

	// LTF is the low-timeframe frame the snapshot was computed from;
	// scoring re-reads the last bars for momentum confirmation.
	LTF []broker.Candle
}

// PipSize returns the instrument pip size, guarding zero metadata.
func (s *Snapshot) PipSize() float64 {
	if s.Instrument.PipSize > 0 {
		return s.Instrument.PipSize
	}
	return 0.0001
}

// ActiveOrderBlocks returns the blocks matching the side: bullish for
// BUY, bearish for SELL.
func (s *Snapshot) ActiveOrderBlocks(side broker.Side) []smc.OrderBlock {
	if side == broker.Buy {
		return s.OrderBlocks.Bullish
	}
	return s.OrderBlocks.Bearish
}
