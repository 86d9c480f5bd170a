// Package scoring turns a market snapshot and a sequencing state into a
// trade signal: hard vetoes first, then the additive confluence score,
// quality banding and the stop/target construction.
package scoring

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"smc-engine/config"
	"smc-engine/internal/analyzer"
	"smc-engine/internal/broker"
	"smc-engine/internal/indicators"
	"smc-engine/internal/sequence"
	"smc-engine/internal/smc"
)

// Quality is the signal grade derived from the final confidence
type Quality string

const (
	QualityAPlus  Quality = "A+"
	QualityA      Quality = "A"
	QualityB      Quality = "B"
	QualityC      Quality = "C"
	QualityReject Quality = "REJECT"
)

// SignalKind is the tradable direction of a signal, or NONE
type SignalKind string

const (
	SignalBuy  SignalKind = "BUY"
	SignalSell SignalKind = "SELL"
	SignalNone SignalKind = "NONE"
)

// Signal is the scored output of one evaluation. Kind NONE carries the
// rejection reason for the decision journal.
type Signal struct {
	Symbol        string
	Kind          SignalKind
	EntryPrice    float64
	StopLoss      float64
	TakeProfit    float64
	Confidence    float64
	Quality       Quality
	LotMultiplier float64
	RR            float64
	Reasons       []string
	Warnings      []string
	Rejection     string
	// IsSecondarySource marks a direction taken from the sequencing
	// state rather than the combined bias.
	IsSecondarySource bool
	SetupType         analyzer.SweepStrategy
}

// Side converts the signal kind into an order side.
func (s *Signal) Side() broker.Side {
	if s.Kind == SignalSell {
		return broker.Sell
	}
	return broker.Buy
}

// Tradable reports whether the signal should reach the risk gate.
func (s *Signal) Tradable() bool {
	return s != nil && s.Kind != SignalNone
}

// entryReadyBonus rewards a fully sequenced setup.
const entryReadyBonus = 40.0

// Engine scores snapshots into signals
type Engine struct {
	cfg    *config.Config
	logger zerolog.Logger
}

// NewEngine creates a scoring engine.
func NewEngine(cfg *config.Config, logger zerolog.Logger) *Engine {
	return &Engine{cfg: cfg, logger: logger.With().Str("component", "scoring").Logger()}
}

// Evaluate produces a signal for one snapshot and sequencing state. A
// nil-direction read or any hard veto yields Kind NONE with the reason
// recorded.
func (e *Engine) Evaluate(snap *analyzer.Snapshot, st *sequence.State) *Signal {
	sig := &Signal{Symbol: snap.Symbol, Kind: SignalNone, Quality: QualityReject}
	symCfg := e.cfg.Symbol(snap.Symbol)

	side, ok := analyzer.DirectionToSide(snap.CombinedBias)
	if !ok {
		// ENTRY_READY overrides a neutral bias to the sweep direction
		if st != nil && st.Stage == sequence.StageEntryReady {
			side = st.SweepDirection
			sig.IsSecondarySource = true
		} else {
			sig.Rejection = "no directional bias"
			return sig
		}
	}
	if st != nil {
		sig.SetupType = st.SweepType
	}
	isCrypto := snap.Instrument.Class == broker.Crypto

	// ---- hard vetoes ----

	if e.cfg.Filters.Killzones.Enabled && !isCrypto && !snap.Killzone.Active {
		return e.reject(sig, "outside killzone")
	}
	if !isCrypto && snap.Killzone.IsAsian {
		return e.reject(sig, "Asian session")
	}
	if !snap.PDZone.Allows(side) && !e.zoneException(snap, side) {
		return e.reject(sig, fmt.Sprintf("zone conflict: %s in %s", side, snap.PDZone.Zone))
	}
	if symCfg != nil && symCfg.ForceLongOnly && side == broker.Sell {
		return e.reject(sig, "force-long-only symbol")
	}
	if symCfg != nil && symCfg.ForceShortOnly && side == broker.Buy {
		return e.reject(sig, "force-short-only symbol")
	}
	if e.cfg.Risk.ImpulsiveRegimeFilter && e.impulsiveRegimeBlocks(snap, side) {
		return e.reject(sig, fmt.Sprintf("impulsive regime: RSI %.1f against %s", snap.RSI, side))
	}
	if !snap.Profile.AllowCounterTrend && e.againstHTF(snap, side) && snap.HTFTrend != smc.Ranging && !e.htfException(snap, side) {
		// strict-trend profiles never fight the higher timeframe
		return e.reject(sig, "counter-trend blocked by profile")
	}
	if symCfg != nil && symCfg.BlockMTFConflict && e.againstMTF(snap, side) && !e.mtfException(snap, side) {
		return e.reject(sig, "MTF bias conflict")
	}
	if blocked, why := e.momentumConfirmationBlocks(snap, side); blocked {
		return e.reject(sig, why)
	}
	if symCfg != nil && symCfg.GoldenSetupOnly && !snap.Sweep.IsConfirmed() {
		return e.reject(sig, "golden-setup-only: no confirmed sweep")
	}
	if e.cfg.Advanced.ADXFilterEnabled && snap.HTFADX.ADX < e.cfg.Advanced.MinADX {
		return e.reject(sig, fmt.Sprintf("HTF ADX %.1f below %.1f", snap.HTFADX.ADX, e.cfg.Advanced.MinADX))
	}

	// ---- levels before the spread and R:R sentinels ----

	entry := snap.Tick.Ask
	if side == broker.Sell {
		entry = snap.Tick.Bid
	}
	slMult := snap.Profile.SLMultiplier
	if symCfg != nil && symCfg.SLMultiplier > 0 {
		slMult = symCfg.SLMultiplier
	}
	lv, valid := BuildLevels(snap, side, entry, slMult)
	if !valid {
		return e.reject(sig, "invalid stop construction")
	}
	sig.EntryPrice = lv.Entry
	sig.StopLoss = lv.StopLoss
	sig.TakeProfit = lv.TakeProfit
	sig.RR = lv.RR

	if rejected, why := e.spreadSentinel(snap, side, lv); rejected {
		return e.reject(sig, why)
	}
	if lv.RR < 1.5 {
		return e.reject(sig, fmt.Sprintf("R:R %.2f below 1.5", lv.RR))
	}
	if lv.RR < e.cfg.Risk.MinRR {
		return e.reject(sig, fmt.Sprintf("R:R %.2f below configured %.1f", lv.RR, e.cfg.Risk.MinRR))
	}

	// ---- additive score ----

	score, htfMult := e.score(snap, st, side, sig)

	if st != nil && st.Stage == sequence.StageEntryReady {
		score += entryReadyBonus
		sig.Reasons = append(sig.Reasons, "full sequence ENTRY_READY")
	}
	if snap.CounterSetupFlag {
		sig.Warnings = append(sig.Warnings, "counter-setup in impulsive regime")
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	sig.Confidence = score

	minConf := snap.Profile.MinConfidence
	if symCfg != nil && symCfg.MinConfidence > 0 {
		minConf = symCfg.MinConfidence
	}
	if score < minConf {
		return e.reject(sig, fmt.Sprintf("confidence %.0f below floor %.0f", score, minConf))
	}

	sig.Quality, sig.LotMultiplier = bandQuality(score)
	sig.LotMultiplier *= htfMult
	if sig.Quality == QualityReject {
		return e.reject(sig, "quality REJECT")
	}

	// elite-or-nothing: a weakened lot on a mediocre score is not worth
	// the exposure
	if sig.LotMultiplier < 0.9 && sig.Confidence < 75 {
		return e.reject(sig, "elite-or-nothing: weak lot and confidence")
	}

	sig.Kind = SignalBuy
	if side == broker.Sell {
		sig.Kind = SignalSell
	}

	e.logger.Info().
		Str("symbol", snap.Symbol).
		Str("kind", string(sig.Kind)).
		Float64("confidence", sig.Confidence).
		Str("quality", string(sig.Quality)).
		Float64("rr", sig.RR).
		Float64("lot_mult", sig.LotMultiplier).
		Strs("reasons", sig.Reasons).
		Msg("signal")
	return sig
}

func (e *Engine) reject(sig *Signal, reason string) *Signal {
	sig.Kind = SignalNone
	sig.Quality = QualityReject
	sig.LotMultiplier = 0
	sig.Rejection = reason
	e.logger.Debug().Str("symbol", sig.Symbol).Str("reason", reason).Msg("rejected")
	return sig
}

// zoneException permits a counter-zone entry on a confirmed sweep or a
// strong inverted FVG.
func (e *Engine) zoneException(snap *analyzer.Snapshot, side broker.Side) bool {
	if snap.Sweep.IsConfirmed() && snap.Sweep.Direction == side {
		return true
	}
	if f := bestIFVGFor(snap, side); f != nil && f.Confidence >= 70 {
		return true
	}
	return false
}

// impulsiveRegimeBlocks bars entries against an extreme RSI unless a
// strong reversal confluence is present.
func (e *Engine) impulsiveRegimeBlocks(snap *analyzer.Snapshot, side broker.Side) bool {
	low, high := e.cfg.Advanced.RSIExtremeLow, e.cfg.Advanced.RSIExtremeHigh
	extreme := (side == broker.Buy && snap.RSI < low) || (side == broker.Sell && snap.RSI > high)
	if !extreme {
		return false
	}

	if snap.SMT.Detected && snap.SMT.Direction == side {
		return false
	}
	if snap.Sweep.IsConfirmed() && snap.Sweep.Direction == side &&
		snap.Profile.AllowCounterTrend && hasActiveFVGFor(snap, side) {
		return false
	}
	if f := bestIFVGFor(snap, side); f != nil && f.Confidence >= 80 && !e.againstHTF(snap, side) {
		return false
	}
	return true
}

func (e *Engine) againstHTF(snap *analyzer.Snapshot, side broker.Side) bool {
	return (side == broker.Buy && snap.HTFTrend == smc.Bearish) ||
		(side == broker.Sell && snap.HTFTrend == smc.Bullish)
}

func (e *Engine) againstMTF(snap *analyzer.Snapshot, side broker.Side) bool {
	return (side == broker.Buy && snap.MTFBias == smc.Bearish) ||
		(side == broker.Sell && snap.MTFBias == smc.Bullish)
}

func (e *Engine) mtfException(snap *analyzer.Snapshot, side broker.Side) bool {
	if snap.Sweep.IsConfirmed() && snap.Sweep.Direction == side {
		return true
	}
	if f := bestIFVGFor(snap, side); f != nil && f.Confidence >= 80 {
		return true
	}
	return false
}

// htfException lets a strict-trend profile trade against the higher
// timeframe on the same confluences that downgrade the lot instead of
// vetoing: SMT or an MTF flip backed by a confirmed sweep, or a strong
// inverted FVG.
func (e *Engine) htfException(snap *analyzer.Snapshot, side broker.Side) bool {
	if !snap.Sweep.IsConfirmed() || snap.Sweep.Direction != side {
		if f := bestIFVGFor(snap, side); f != nil && f.Confidence >= 85 {
			return true
		}
		return false
	}
	if snap.SMT.Detected && snap.SMT.Direction == side {
		return true
	}
	return e.mtfCHOCHInDirection(snap, side)
}

// momentumConfirmationBlocks demands a reversal footprint before buying
// the bottom or selling the top of the range.
func (e *Engine) momentumConfirmationBlocks(snap *analyzer.Snapshot, side broker.Side) (bool, string) {
	deepBuy := side == broker.Buy && snap.PDZone.Percent <= 20
	deepSell := side == broker.Sell && snap.PDZone.Percent >= 80
	if !deepBuy && !deepSell {
		return false, ""
	}

	if snap.Volume.RelativeVolume > 0 && snap.Volume.RelativeVolume < 0.7 {
		return true, fmt.Sprintf("extreme zone with RVOL %.2f", snap.Volume.RelativeVolume)
	}

	n := len(snap.LTF)
	if n < 3 || snap.ATR <= 0 {
		return false, ""
	}
	last := snap.LTF[n-1]

	// bounce candle: a dominant rejection wick against the extreme
	if deepBuy && last.LowerWick() > 2*last.Body() && last.LowerWick() > 0.3*snap.ATR {
		return false, ""
	}
	if deepSell && last.UpperWick() > 2*last.Body() && last.UpperWick() > 0.3*snap.ATR {
		return false, ""
	}

	// momentum pause: volatility compressed to under half the ATR
	avgRange := (snap.LTF[n-1].Range() + snap.LTF[n-2].Range() + snap.LTF[n-3].Range()) / 3
	if avgRange < snap.ATR/2 {
		return false, ""
	}

	// two consecutive closes in the direction
	if deepBuy && snap.LTF[n-1].Bullish() && snap.LTF[n-2].Bullish() {
		return false, ""
	}
	if deepSell && snap.LTF[n-1].Bearish() && snap.LTF[n-2].Bearish() {
		return false, ""
	}

	return true, "extreme zone without momentum confirmation"
}

// spreadSentinel rejects when the current spread would eat the setup:
// over the absolute class cap, over half the entry block, or over 30%
// of the stop distance.
func (e *Engine) spreadSentinel(snap *analyzer.Snapshot, side broker.Side, lv Levels) (bool, string) {
	pip := snap.PipSize()
	spread := snap.Tick.Ask - snap.Tick.Bid
	spreadPips := snap.Tick.SpreadPips
	if spreadPips == 0 && pip > 0 {
		spreadPips = spread / pip
	}

	if snap.Profile.MaxSpreadAbs > 0 && spreadPips > snap.Profile.MaxSpreadAbs {
		return true, fmt.Sprintf("spread %.1f over cap %.1f", spreadPips, snap.Profile.MaxSpreadAbs)
	}
	if ob := nearestActiveOB(snap, side); ob != nil && ob.Height() > 0 && spread > 0.5*ob.Height() {
		return true, "Spread trop large vs OB"
	}
	if lv.Risk > 0 && spread > 0.3*lv.Risk {
		return true, fmt.Sprintf("spread %.1f pips over 30%% of SL distance", spreadPips)
	}
	return false, ""
}

// score accumulates the additive confluence table. Returns the raw
// score and the lot multiplier from the HTF conflict sub-rule.
func (e *Engine) score(snap *analyzer.Snapshot, st *sequence.State, side broker.Side, sig *Signal) (float64, float64) {
	score := 0.0
	add := func(pts float64, reason string) {
		score += pts
		sig.Reasons = append(sig.Reasons, reason)
	}

	// zone alignment
	if (side == broker.Buy && snap.PDZone.Zone == smc.Discount) ||
		(side == broker.Sell && snap.PDZone.Zone == smc.Premium) {
		add(25, fmt.Sprintf("%s zone", snap.PDZone.Zone))
	}

	// LTF trend
	if (side == broker.Buy && snap.LTFTrend == smc.Bullish) ||
		(side == broker.Sell && snap.LTFTrend == smc.Bearish) {
		add(e.cfg.Advanced.LTFAlignmentWeight, "LTF trend aligned")
	}

	// liquidity sweep
	sweepBonus := 0.0
	if snap.Sweep.Detected() && snap.Sweep.Direction == side {
		if snap.Sweep.IsConfirmed() {
			sweepBonus = 25
			add(25, fmt.Sprintf("confirmed %s sweep", snap.Sweep.Strategy))
		} else {
			sweepBonus = 15
			add(15, "killzone sweep")
		}
	}

	// SMT divergence
	if snap.SMT.Detected && snap.SMT.Direction == side {
		add(30, "SMT divergence")
	}

	// inverted FVG
	ifvg := bestIFVGFor(snap, side)
	if ifvg != nil {
		pts := 10.0
		if ifvg.Confidence >= 85 && !e.againstHTF(snap, side) {
			pts = 15
		}
		add(pts, fmt.Sprintf("iFVG %.0f%%", ifvg.Confidence))
	}

	// entry zone: order block, breaker, FVG, or the sweep/iFVG bypass
	price := snap.Price
	inOB := false
	for _, ob := range snap.ActiveOrderBlocks(side) {
		if ob.Contains(price) {
			inOB = true
			break
		}
	}
	switch {
	case inOB:
		add(40, "price in order block")
	case snap.Sweep.IsConfirmed() && snap.Sweep.Direction == side:
		add(20, "sweep bypass, no OB")
	case ifvg != nil:
		add(15, "iFVG bypass, no OB")
	}

	if breakerContains(snap.Breakers, side, price) {
		add(30, "price in breaker block")
	}
	if fvgContains(snap.FVGs.Active, side, price) {
		add(20, "price in FVG")
	}

	// higher-timeframe alignment and the conflict sub-rule
	htfMult := 1.0
	switch {
	case (side == broker.Buy && snap.HTFTrend == smc.Bullish) ||
		(side == broker.Sell && snap.HTFTrend == smc.Bearish):
		add(e.cfg.Advanced.HTFAlignmentWeight, "HTF aligned")
	case e.againstHTF(snap, side):
		pts, mult, why := e.htfConflict(snap, side, sweepBonus)
		add(pts, why)
		htfMult = mult
	}

	// medium timeframe
	switch {
	case (side == broker.Buy && snap.MTFBias == smc.Bullish) ||
		(side == broker.Sell && snap.MTFBias == smc.Bearish):
		add(e.cfg.Advanced.MTFAlignmentWeight, "MTF aligned")
	case e.againstMTF(snap, side):
		add(-10, "MTF conflict")
	}

	// displacement on either of the last two bars
	if snap.Structure.RecentDisplacement(len(snap.LTF), 2) {
		add(10, "post-sweep displacement")
	}
	if snap.TripleAligned {
		add(20, "triple timeframe alignment")
	}

	// intermarket reference
	if snap.Intermarket != smc.Neutral {
		agrees := (side == broker.Buy && snap.Intermarket == smc.Bullish) ||
			(side == broker.Sell && snap.Intermarket == smc.Bearish)
		if agrees {
			pts := 10.0
			if snap.Sweep.IsConfirmed() {
				pts = 15
			}
			add(pts, "intermarket confluence")
		} else {
			add(-15, "intermarket conflict")
			sig.Warnings = append(sig.Warnings, "intermarket disagrees")
		}
	}

	// average daily range budget
	if snap.ADRPercent > 0 {
		if snap.ADRPercent < 30 {
			add(5, "ADR fresh")
		} else if snap.ADRPercent > 85 {
			add(-15, fmt.Sprintf("ADR exhausted %.0f%%", snap.ADRPercent))
			sig.Warnings = append(sig.Warnings, "daily range nearly spent")
		}
	}

	if nearRoundNumber(price, snap.PipSize()) {
		add(5, "round-number confluence")
	}

	// volume
	if snap.Volume.IsSafe {
		add(15, "volume ok")
	} else {
		add(-10, fmt.Sprintf("volume %s", snap.Volume.Reason))
		sig.Warnings = append(sig.Warnings, "volume "+snap.Volume.Reason)
	}

	// momentum
	score += e.momentumScore(snap, side, sig)

	return score, htfMult
}

// htfConflict applies the three downgrade exceptions; with none the
// signal takes the full penalty and a halved lot.
func (e *Engine) htfConflict(snap *analyzer.Snapshot, side broker.Side, sweepBonus float64) (pts, lotMult float64, why string) {
	if snap.SMT.Detected && snap.SMT.Direction == side && sweepBonus >= 30 {
		return -10, 0.8, "HTF conflict, SMT exception"
	}
	if e.mtfCHOCHInDirection(snap, side) && snap.Sweep.IsConfirmed() {
		return -10, 0.7, "HTF conflict, MTF CHOCH exception"
	}
	if snap.HTFTrend == smc.Ranging {
		if f := bestIFVGFor(snap, side); f != nil && f.Confidence >= 85 {
			return -10, 0.8, "HTF conflict, ranging iFVG exception"
		}
	}
	return -30, 0.5, "HTF Conflict (VETO)"
}

// mtfCHOCHInDirection checks a recent change of character on the medium
// timeframe agreeing with the signal. The MTF frame is not retained on
// the snapshot, so the MTF bias flip is used as the proxy.
func (e *Engine) mtfCHOCHInDirection(snap *analyzer.Snapshot, side broker.Side) bool {
	return (side == broker.Buy && snap.MTFBias == smc.Bullish) ||
		(side == broker.Sell && snap.MTFBias == smc.Bearish)
}

// momentumScore grants up to 25 points for RSI positioning and MACD
// divergence agreeing with the entry.
func (e *Engine) momentumScore(snap *analyzer.Snapshot, side broker.Side, sig *Signal) float64 {
	pts := 0.0
	if side == broker.Buy && snap.Divergence == indicators.BullishDivergence {
		pts += 15
		sig.Reasons = append(sig.Reasons, "bullish divergence")
	}
	if side == broker.Sell && snap.Divergence == indicators.BearishDivergence {
		pts += 15
		sig.Reasons = append(sig.Reasons, "bearish divergence")
	}
	if (side == broker.Buy && snap.RSI < 40) || (side == broker.Sell && snap.RSI > 60) {
		pts += 10
		sig.Reasons = append(sig.Reasons, fmt.Sprintf("RSI %.1f favourable", snap.RSI))
	}
	if pts > 25 {
		pts = 25
	}
	return pts
}

// bandQuality maps a confidence onto the quality grade and base lot
// multiplier.
func bandQuality(confidence float64) (Quality, float64) {
	switch {
	case confidence >= 85:
		return QualityAPlus, 1.0
	case confidence >= 70:
		return QualityA, 0.8
	case confidence >= 55:
		return QualityB, 0.5
	case confidence >= 40:
		return QualityC, 0.3
	default:
		return QualityReject, 0
	}
}

func bestIFVGFor(snap *analyzer.Snapshot, side broker.Side) *smc.InvertedFVG {
	want := smc.BullishFVG
	if side == broker.Sell {
		want = smc.BearishFVG
	}
	return smc.BestInDirection(snap.FVGs.Inverted, want)
}

func hasActiveFVGFor(snap *analyzer.Snapshot, side broker.Side) bool {
	want := smc.BullishFVG
	if side == broker.Sell {
		want = smc.BearishFVG
	}
	for _, f := range snap.FVGs.Active {
		if f.Type == want {
			return true
		}
	}
	return false
}

func nearestActiveOB(snap *analyzer.Snapshot, side broker.Side) *smc.OrderBlock {
	blocks := snap.ActiveOrderBlocks(side)
	var best *smc.OrderBlock
	for i := range blocks {
		if best == nil || blocks[i].Index > best.Index {
			b := blocks[i]
			best = &b
		}
	}
	return best
}

func breakerContains(breakers []smc.BreakerBlock, side broker.Side, price float64) bool {
	want := smc.BullishOB
	if side == broker.Sell {
		want = smc.BearishOB
	}
	for _, b := range breakers {
		if b.BreakerType == want && b.Contains(price) {
			return true
		}
	}
	return false
}

func fvgContains(active []smc.FVG, side broker.Side, price float64) bool {
	want := smc.BullishFVG
	if side == broker.Sell {
		want = smc.BearishFVG
	}
	for _, f := range active {
		if f.Type == want && f.Contains(price) {
			return true
		}
	}
	return false
}

// nearRoundNumber reports whether price sits within 5 pips of a
// half-figure institutional level (multiples of 50 pips).
func nearRoundNumber(price, pip float64) bool {
	if pip <= 0 {
		return false
	}
	step := 50 * pip
	rem := math.Mod(price, step)
	return rem < 5*pip || step-rem < 5*pip
}
