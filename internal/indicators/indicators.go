// Package indicators implements the momentum, volatility and volume
// calculations the analyzer feeds into scoring. All functions are pure
// over an OHLC frame, oldest candle first.
package indicators

import (
	"math"

	"smc-engine/internal/broker"
)

// ============================================================================
// RSI
// ============================================================================

// CalculateRSI returns the Wilder-smoothed Relative Strength Index for
// the last bar of the frame. Returns 50 when the frame is too short.
func CalculateRSI(candles []broker.Candle, period int) float64 {
	if period <= 0 {
		period = 14
	}
	if len(candles) < period+1 {
		return 50.0
	}

	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ============================================================================
// MACD
// ============================================================================

// MACDResult holds the MACD line, signal line and histogram for the
// last bar, plus the MACD series for divergence analysis.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
	Series    []float64 // MACD line per bar, aligned to the frame tail
}

// CalculateMACD computes MACD(fast, slow, signal) with a full EMA
// history so the signal line is a real EMA of the MACD series.
func CalculateMACD(candles []broker.Candle, fastPeriod, slowPeriod, signalPeriod int) MACDResult {
	if fastPeriod <= 0 {
		fastPeriod = 12
	}
	if slowPeriod <= 0 {
		slowPeriod = 26
	}
	if signalPeriod <= 0 {
		signalPeriod = 9
	}
	if len(candles) < slowPeriod+signalPeriod {
		return MACDResult{}
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	fast := emaSeries(closes, fastPeriod)
	slow := emaSeries(closes, slowPeriod)

	macd := make([]float64, 0, len(closes)-slowPeriod+1)
	for i := slowPeriod - 1; i < len(closes); i++ {
		macd = append(macd, fast[i]-slow[i])
	}

	signal := emaSeries(macd, signalPeriod)
	last := len(macd) - 1
	return MACDResult{
		MACD:      macd[last],
		Signal:    signal[last],
		Histogram: macd[last] - signal[last],
		Series:    macd,
	}
}

// emaSeries returns the EMA of values for every index; indices before
// the first full period carry the running SMA seed.
func emaSeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	if period >= len(values) {
		period = len(values)
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
		out[i] = sum / float64(i+1)
	}
	mult := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		out[i] = values[i]*mult + out[i-1]*(1-mult)
	}
	return out
}

// Divergence classifies a price/MACD divergence
type Divergence string

const (
	NoDivergence      Divergence = ""
	BullishDivergence Divergence = "BULLISH" // LL price, HL MACD
	BearishDivergence Divergence = "BEARISH" // HH price, LH MACD
)

// DetectDivergence compares the last two price swing extremes against
// the MACD values at the same bars.
func DetectDivergence(candles []broker.Candle, macd MACDResult, swingWidth int) Divergence {
	if len(macd.Series) == 0 || len(candles) < 2*swingWidth+1 {
		return NoDivergence
	}
	offset := len(candles) - len(macd.Series)

	lows := swingIndices(candles, swingWidth, false)
	if len(lows) >= 2 {
		a, b := lows[len(lows)-2], lows[len(lows)-1]
		if ma, mb := macdAt(macd.Series, offset, a), macdAt(macd.Series, offset, b); !math.IsNaN(ma) && !math.IsNaN(mb) {
			if candles[b].Low < candles[a].Low && mb > ma {
				return BullishDivergence
			}
		}
	}

	highs := swingIndices(candles, swingWidth, true)
	if len(highs) >= 2 {
		a, b := highs[len(highs)-2], highs[len(highs)-1]
		if ma, mb := macdAt(macd.Series, offset, a), macdAt(macd.Series, offset, b); !math.IsNaN(ma) && !math.IsNaN(mb) {
			if candles[b].High > candles[a].High && mb < ma {
				return BearishDivergence
			}
		}
	}
	return NoDivergence
}

func macdAt(series []float64, offset, barIdx int) float64 {
	i := barIdx - offset
	if i < 0 || i >= len(series) {
		return math.NaN()
	}
	return series[i]
}

func swingIndices(candles []broker.Candle, width int, highs bool) []int {
	var out []int
	for i := width; i < len(candles)-width; i++ {
		ok := true
		for j := 1; j <= width && ok; j++ {
			if highs {
				ok = candles[i].High > candles[i-j].High && candles[i].High > candles[i+j].High
			} else {
				ok = candles[i].Low < candles[i-j].Low && candles[i].Low < candles[i+j].Low
			}
		}
		if ok {
			out = append(out, i)
		}
	}
	return out
}

// ============================================================================
// ATR / ADX
// ============================================================================

// CalculateATR returns the Wilder-smoothed Average True Range.
func CalculateATR(candles []broker.Candle, period int) float64 {
	if period <= 0 {
		period = 14
	}
	if len(candles) < period+1 {
		return 0
	}

	atr := 0.0
	for i := 1; i <= period; i++ {
		atr += trueRange(candles[i], candles[i-1])
	}
	atr /= float64(period)

	for i := period + 1; i < len(candles); i++ {
		atr = (atr*float64(period-1) + trueRange(candles[i], candles[i-1])) / float64(period)
	}
	return atr
}

func trueRange(c, prev broker.Candle) float64 {
	return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prev.Close), math.Abs(c.Low-prev.Close)))
}

// TrendStrength classifies an ADX reading
type TrendStrength string

const (
	NoTrend         TrendStrength = "NO_TREND"    // < 20
	WeakTrend       TrendStrength = "WEAK"        // 20..25
	StrongTrend     TrendStrength = "STRONG"      // 25..50
	VeryStrongTrend TrendStrength = "VERY_STRONG" // >= 50
)

// ADXResult holds the directional index values for the last bar
type ADXResult struct {
	ADX      float64
	PlusDI   float64
	MinusDI  float64
	Strength TrendStrength
}

// CalculateADX computes the full Wilder ADX with +DI/-DI.
func CalculateADX(candles []broker.Candle, period int) ADXResult {
	if period <= 0 {
		period = 14
	}
	if len(candles) < 2*period+1 {
		return ADXResult{Strength: NoTrend}
	}

	var smTR, smPlusDM, smMinusDM float64
	for i := 1; i <= period; i++ {
		tr, pdm, mdm := dmComponents(candles[i], candles[i-1])
		smTR += tr
		smPlusDM += pdm
		smMinusDM += mdm
	}

	var dxSum float64
	var dxCount int
	var adx, plusDI, minusDI float64

	for i := period + 1; i < len(candles); i++ {
		tr, pdm, mdm := dmComponents(candles[i], candles[i-1])
		smTR = smTR - smTR/float64(period) + tr
		smPlusDM = smPlusDM - smPlusDM/float64(period) + pdm
		smMinusDM = smMinusDM - smMinusDM/float64(period) + mdm

		if smTR == 0 {
			continue
		}
		plusDI = 100 * smPlusDM / smTR
		minusDI = 100 * smMinusDM / smTR

		sum := plusDI + minusDI
		if sum == 0 {
			continue
		}
		dx := 100 * math.Abs(plusDI-minusDI) / sum

		if dxCount < period {
			dxSum += dx
			dxCount++
			adx = dxSum / float64(dxCount)
		} else {
			adx = (adx*float64(period-1) + dx) / float64(period)
		}
	}

	return ADXResult{ADX: adx, PlusDI: plusDI, MinusDI: minusDI, Strength: ClassifyADX(adx)}
}

// ClassifyADX maps an ADX value onto its trend-strength band.
func ClassifyADX(adx float64) TrendStrength {
	switch {
	case adx < 20:
		return NoTrend
	case adx < 25:
		return WeakTrend
	case adx < 50:
		return StrongTrend
	default:
		return VeryStrongTrend
	}
}

func dmComponents(c, prev broker.Candle) (tr, plusDM, minusDM float64) {
	upMove := c.High - prev.High
	downMove := prev.Low - c.Low
	if upMove > downMove && upMove > 0 {
		plusDM = upMove
	}
	if downMove > upMove && downMove > 0 {
		minusDM = downMove
	}
	return trueRange(c, prev), plusDM, minusDM
}

// ============================================================================
// Volume
// ============================================================================

// CalculateCMF returns the Chaikin Money Flow over the period.
func CalculateCMF(candles []broker.Candle, period int) float64 {
	if period <= 0 {
		period = 20
	}
	if len(candles) < period {
		return 0
	}

	var mfvSum, volSum float64
	for _, c := range candles[len(candles)-period:] {
		if c.Range() == 0 || c.Volume == 0 {
			continue
		}
		multiplier := ((c.Close - c.Low) - (c.High - c.Close)) / c.Range()
		mfvSum += multiplier * c.Volume
		volSum += c.Volume
	}
	if volSum == 0 {
		return 0
	}
	return mfvSum / volSum
}

// CalculateRelativeVolume compares the last bar's volume with the mean
// volume of the same hour of day over the previous sessions in frame.
// Falls back to a simple rolling mean when hourly history is thin.
func CalculateRelativeVolume(candles []broker.Candle) float64 {
	if len(candles) < 2 {
		return 1.0
	}
	last := candles[len(candles)-1]
	hour := last.Time.UTC().Hour()

	var sameHour []float64
	for _, c := range candles[:len(candles)-1] {
		if c.Time.UTC().Hour() == hour {
			sameHour = append(sameHour, c.Volume)
		}
	}
	if len(sameHour) > 10 {
		sameHour = sameHour[len(sameHour)-10:]
	}
	var sum float64
	count := len(sameHour)
	for _, v := range sameHour {
		sum += v
	}
	if count < 3 {
		start := len(candles) - 21
		if start < 0 {
			start = 0
		}
		sum, count = 0, 0
		for _, c := range candles[start : len(candles)-1] {
			sum += c.Volume
			count++
		}
	}
	if count == 0 || sum == 0 {
		return 1.0
	}
	return last.Volume / (sum / float64(count))
}

// VolumePressure is the volume-spread read used as a veto input
type VolumePressure struct {
	IsSafe            bool
	PressureDirection broker.Side
	RelativeVolume    float64
	CMF               float64
	Reason            string
}

// AnalyzeVolumePressure combines CMF and relative volume with the VSA
// tags: churning (high volume, narrow range), ignition (high volume,
// wide range) and absent (no participation).
func AnalyzeVolumePressure(candles []broker.Candle) VolumePressure {
	vp := VolumePressure{IsSafe: true, Reason: "normal"}
	if len(candles) < 21 {
		return vp
	}

	vp.CMF = CalculateCMF(candles, 20)
	vp.RelativeVolume = CalculateRelativeVolume(candles)
	if vp.CMF >= 0 {
		vp.PressureDirection = broker.Buy
	} else {
		vp.PressureDirection = broker.Sell
	}

	last := candles[len(candles)-1]
	var avgRange float64
	for _, c := range candles[len(candles)-21 : len(candles)-1] {
		avgRange += c.Range()
	}
	avgRange /= 20

	switch {
	case vp.RelativeVolume > 1.5 && avgRange > 0 && last.Range() < 0.8*avgRange:
		vp.IsSafe = false
		vp.Reason = "churning"
	case vp.RelativeVolume < 0.5:
		vp.IsSafe = false
		vp.Reason = "absent"
	case vp.RelativeVolume > 1.2 && avgRange > 0 && last.Range() > 1.1*avgRange:
		vp.Reason = "ignition"
	}
	return vp
}

// ============================================================================
// ADR
// ============================================================================

// CalculateADRPercent returns today's range as a percentage of the
// average daily range over the previous lookback days. Values above
// 100 mean the day has already exceeded its average travel.
func CalculateADRPercent(daily []broker.Candle, lookback int) float64 {
	if lookback <= 0 {
		lookback = 10
	}
	if len(daily) < lookback+1 {
		return 0
	}

	var sum float64
	prev := daily[len(daily)-lookback-1 : len(daily)-1]
	for _, c := range prev {
		sum += c.Range()
	}
	adr := sum / float64(lookback)
	if adr == 0 {
		return 0
	}
	today := daily[len(daily)-1]
	return today.Range() / adr * 100
}
