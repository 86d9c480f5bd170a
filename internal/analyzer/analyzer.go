// Package analyzer runs the SMC detectors across the three configured
// timeframes and composes the per-cycle MarketSnapshot.
package analyzer

import (
	"time"

	"github.com/rs/zerolog"

	"smc-engine/config"
	"smc-engine/internal/broker"
	"smc-engine/internal/indicators"
	"smc-engine/internal/smc"
)

// sweepRecallWindow bounds how long a confirmed sweep keeps driving
// bias and scoring.
const sweepRecallWindow = 90 * time.Minute

// Frames bundles the candle data one analysis cycle consumes
type Frames struct {
	LTF        []broker.Candle
	MTF        []broker.Candle
	HTF        []broker.Candle
	Daily      []broker.Candle // for previous-day levels and ADR
	Correlated []broker.Candle // SMT pair, may be nil
	Reference  []broker.Candle // intermarket reference, may be nil
}

// Analyzer owns the per-symbol detector caches. State for a symbol is
// owned by that symbol's scheduler slot; callers must not run two
// concurrent cycles for the same symbol.
type Analyzer struct {
	cfg      *config.Config
	profiles config.AssetProfiles
	logger   zerolog.Logger
	trackers map[string]*smc.SweepTracker
}

// New creates an analyzer.
func New(cfg *config.Config, profiles config.AssetProfiles, logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		cfg:      cfg,
		profiles: profiles,
		logger:   logger.With().Str("component", "analyzer").Logger(),
		trackers: make(map[string]*smc.SweepTracker),
	}
}

// ResetSymbol drops all cached state for a symbol.
func (a *Analyzer) ResetSymbol(symbol string) {
	delete(a.trackers, symbol)
}

// Analyze runs the full detector suite for one symbol and returns the
// snapshot. Pure over its inputs apart from the sweep tracker, which
// accumulates pierce state across cycles.
func (a *Analyzer) Analyze(symbol string, frames Frames, tick broker.Tick, instr broker.Instrument, now time.Time) *Snapshot {
	symCfg := a.cfg.Symbol(symbol)
	profile := a.profiles.ForClass(string(instr.Class))
	pip := instr.PipSize
	if pip <= 0 {
		pip = 0.0001
	}

	price := (tick.Bid + tick.Ask) / 2

	snap := &Snapshot{
		Symbol:     symbol,
		Time:       now,
		Price:      price,
		Tick:       tick,
		Instrument: instr,
		Profile:    profile,
		LTF:        frames.LTF,
	}

	// structure on all three timeframes
	snap.Structure = smc.AnalyzeStructure(frames.LTF, a.cfg.SMC.SwingStrength, a.cfg.SMC.MaxStructureAge)
	snap.LTFTrend = snap.Structure.Trend
	snap.MTFBias = smc.AnalyzeStructure(frames.MTF, a.cfg.SMC.SwingStrength, a.cfg.SMC.MaxStructureAge).Trend
	snap.HTFTrend = smc.AnalyzeStructure(frames.HTF, a.cfg.SMC.SwingStrength, a.cfg.SMC.MaxStructureAge).Trend
	snap.TripleAligned = snap.LTFTrend != smc.Ranging && snap.LTFTrend == snap.MTFBias && snap.MTFBias == snap.HTFTrend

	// LTF primitives
	snap.OrderBlocks = smc.DetectOrderBlocks(frames.LTF, a.cfg.SMC.MinImbalanceRatio, a.cfg.SMC.MaxAgeBars)
	snap.Breakers = smc.DetectBreakerBlocks(snap.OrderBlocks.Invalidated, frames.LTF)

	minGap := profile.MinFVGPips
	if minGap == 0 {
		minGap = a.cfg.SMC.MinGapPips
	}
	snap.FVGs = smc.DetectFVGs(frames.LTF, minGap*pip, 1.0, a.cfg.SMC.MaxAgeBars)

	snap.Liquidity, snap.BarSweeps = smc.DetectLiquidity(frames.LTF, snap.Structure.Swings, a.cfg.SMC.EqualLevelPips*pip)
	snap.PDZone = smc.ComputePDZone(frames.LTF, snap.Structure.Swings, price, a.cfg.SMC.EquilibriumBuffer)

	// sessions and reference levels
	snap.AsianRange = smc.ComputeAsianRange(frames.LTF, a.cfg.SMC.AsianStartHour, a.cfg.SMC.AsianEndHour)
	snap.PrevDay = smc.ComputePrevDayLevels(frames.Daily)
	snap.Killzone = smc.CurrentKillzone(now, a.cfg.Filters.Killzones.TimezoneOffset)
	snap.SilverBullet = smc.CurrentSilverBullet(now)
	snap.AMDPhase = smc.CurrentAMDPhase(now)

	// momentum and volume
	snap.RSI = indicators.CalculateRSI(frames.LTF, 14)
	snap.MACD = indicators.CalculateMACD(frames.LTF, 12, 26, 9)
	snap.Divergence = indicators.DetectDivergence(frames.LTF, snap.MACD, 3)
	snap.Volume = indicators.AnalyzeVolumePressure(frames.LTF)
	snap.ATR = indicators.CalculateATR(frames.LTF, 14)
	snap.HTFADX = indicators.CalculateADX(frames.HTF, 14)
	snap.ADRPercent = indicators.CalculateADRPercent(frames.Daily, 10)

	// SMT against the configured pair
	if symCfg != nil && symCfg.Strategies.SMT && len(frames.Correlated) > 0 {
		snap.SMT = smc.DetectSMT(frames.LTF, frames.Correlated, a.cfg.SMC.SwingStrength)
	}
	snap.Intermarket = a.referenceBias(frames.Reference)

	// level sweeps: feed the tracker, then resolve the cycle's sweep
	a.trackSweeps(symbol, snap, frames.LTF, now, price)
	snap.Sweep = a.resolveSweep(symbol, snap, now)

	snap.CombinedBias = a.combinedBias(snap)

	a.logger.Debug().
		Str("symbol", symbol).
		Str("ltf", string(snap.LTFTrend)).
		Str("mtf", string(snap.MTFBias)).
		Str("htf", string(snap.HTFTrend)).
		Str("zone", string(snap.PDZone.Zone)).
		Str("bias", string(snap.CombinedBias)).
		Float64("rsi", snap.RSI).
		Msg("snapshot")
	return snap
}

// trackSweeps feeds the latest completed bar and current price into the
// symbol's pending-sweep tracker for the Asian and previous-day levels.
func (a *Analyzer) trackSweeps(symbol string, snap *Snapshot, ltf []broker.Candle, now time.Time, price float64) {
	tracker, ok := a.trackers[symbol]
	if !ok {
		tracker = smc.NewSweepTracker()
		a.trackers[symbol] = tracker
	}
	if len(ltf) == 0 {
		return
	}
	last := ltf[len(ltf)-1]
	pip := snap.PipSize()

	if snap.AsianRange.Valid {
		buf := a.cfg.SMC.AsianBufferPips * pip
		tracker.ObserveBar(smc.LevelAsianLow, snap.AsianRange.Low, buf, last)
		tracker.ObserveBar(smc.LevelAsianHigh, snap.AsianRange.High, buf, last)
	}
	if snap.PrevDay.Valid {
		buf := a.cfg.SMC.PrevDayBufferPips * pip
		tracker.ObserveBar(smc.LevelPDL, snap.PrevDay.Low, buf, last)
		tracker.ObserveBar(smc.LevelPDH, snap.PrevDay.High, buf, last)
	}

	tracker.Update(now, price, last.Close)
}

// resolveSweep picks the sweep context for the cycle: a confirmed
// level sweep first, then a raw in-killzone bar sweep.
func (a *Analyzer) resolveSweep(symbol string, snap *Snapshot, now time.Time) SweepContext {
	symCfg := a.cfg.Symbol(symbol)

	if tracker, ok := a.trackers[symbol]; ok {
		if c := tracker.LatestConfirmed(now, sweepRecallWindow); c != nil {
			strategy := SweepPDHPDL
			enabled := symCfg == nil || symCfg.Strategies.PDHPDLSweep
			if c.Kind == smc.LevelAsianHigh || c.Kind == smc.LevelAsianLow {
				strategy = SweepAsian
				enabled = symCfg == nil || symCfg.Strategies.AsianRangeSweep
			}
			if enabled {
				return SweepContext{Confirmed: c, Strategy: strategy, Direction: c.Direction}
			}
		}
	}

	// generic bar sweep only counts inside a killzone or a special
	// session phase
	if recent := smc.RecentSweep(snap.BarSweeps, len(snap.LTF), 3); recent != nil {
		switch {
		case snap.SilverBullet != smc.SBNone && (symCfg == nil || symCfg.Strategies.SilverBullet):
			return SweepContext{Generic: recent, Strategy: SweepSilverBullet, Direction: recent.Direction}
		case snap.AMDPhase == smc.AMDManipulation && (symCfg == nil || symCfg.Strategies.AMD):
			return SweepContext{Generic: recent, Strategy: SweepAMD, Direction: recent.Direction}
		case snap.Killzone.Active:
			return SweepContext{Generic: recent, Strategy: SweepGeneric, Direction: recent.Direction}
		}
	}
	return SweepContext{}
}

// combinedBias applies the bias precedence: regime scrutiny flag,
// golden iFVG, confirmed sweep with zone check, high-confidence iFVG,
// then trend plus zone.
func (a *Analyzer) combinedBias(snap *Snapshot) smc.Direction {
	// (a) market-regime flag only; rejection belongs to scoring
	if snap.HTFTrend == smc.Bearish && snap.LTFTrend == smc.Bearish && snap.RSI < 30 {
		snap.CounterSetupFlag = true
	}
	if snap.HTFTrend == smc.Bullish && snap.LTFTrend == smc.Bullish && snap.RSI > 70 {
		snap.CounterSetupFlag = true
	}

	// (b) golden iFVG
	if best := bestIFVG(snap.FVGs.Inverted); best != nil && best.Confidence >= 80 {
		return ifvgDirection(best)
	}

	// (c) confirmed sweep overrides, zone permitting
	if snap.Sweep.IsConfirmed() {
		dir := snap.Sweep.Direction
		if snap.PDZone.Allows(dir) {
			return sideToDirection(dir)
		}
	}

	// (d) high-confidence iFVG
	if best := bestIFVG(snap.FVGs.Inverted); best != nil && best.Confidence >= 70 {
		return ifvgDirection(best)
	}

	// (e) trend plus zone
	if snap.LTFTrend == smc.Bullish && (snap.PDZone.Zone == smc.Discount || snap.PDZone.Zone == smc.Equilibrium) {
		return smc.Bullish
	}
	if snap.LTFTrend == smc.Bearish && (snap.PDZone.Zone == smc.Premium || snap.PDZone.Zone == smc.Equilibrium) {
		return smc.Bearish
	}
	return smc.Neutral
}

// referenceBias reduces the intermarket reference frame to a direction.
func (a *Analyzer) referenceBias(reference []broker.Candle) smc.Direction {
	if len(reference) == 0 {
		return smc.Neutral
	}
	trend := smc.AnalyzeStructure(reference, a.cfg.SMC.SwingStrength, a.cfg.SMC.MaxStructureAge).Trend
	if trend == smc.Ranging {
		return smc.Neutral
	}
	return trend
}

func bestIFVG(inverted []smc.InvertedFVG) *smc.InvertedFVG {
	var best *smc.InvertedFVG
	for i := range inverted {
		if best == nil || inverted[i].Confidence > best.Confidence {
			f := inverted[i]
			best = &f
		}
	}
	return best
}

func ifvgDirection(f *smc.InvertedFVG) smc.Direction {
	if f.Type == smc.BullishFVG {
		return smc.Bullish
	}
	return smc.Bearish
}

func sideToDirection(s broker.Side) smc.Direction {
	if s == broker.Buy {
		return smc.Bullish
	}
	return smc.Bearish
}

// DirectionToSide converts an analysis direction into an order side;
// ok is false for neutral or ranging reads.
func DirectionToSide(d smc.Direction) (broker.Side, bool) {
	switch d {
	case smc.Bullish:
		return broker.Buy, true
	case smc.Bearish:
		return broker.Sell, true
	default:
		return "", false
	}
}
