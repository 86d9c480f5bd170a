package smc

import "smc-engine/internal/broker"

// OrderBlockType is the polarity of an order block
type OrderBlockType string

const (
	BullishOB OrderBlockType = "BULLISH"
	BearishOB OrderBlockType = "BEARISH"
)

// OrderBlockStatus is the lifecycle state of an order block
type OrderBlockStatus string

const (
	OBFresh       OrderBlockStatus = "FRESH"
	OBTested      OrderBlockStatus = "TESTED"
	OBMitigated   OrderBlockStatus = "MITIGATED"
	OBInvalidated OrderBlockStatus = "INVALIDATED"
)

// OrderBlock is the last opposing-colour candle before an impulsive
// displacement. Active while status is FRESH or TESTED.
type OrderBlock struct {
	Type            OrderBlockType
	Status          OrderBlockStatus
	Index           int
	High            float64
	Low             float64
	Open            float64
	Close           float64
	ImpulseStrength float64 // impulse body / OB body
	TestsCount      int
	Volume          float64
}

// Contains reports whether price sits inside the block.
func (ob OrderBlock) Contains(price float64) bool {
	return price >= ob.Low && price <= ob.High
}

// Height returns the block range in price units.
func (ob OrderBlock) Height() float64 {
	return ob.High - ob.Low
}

// Active reports whether the block may still act as a zone.
func (ob OrderBlock) Active() bool {
	return ob.Status == OBFresh || ob.Status == OBTested
}

// OrderBlocks is the detection result split by polarity
type OrderBlocks struct {
	Bullish     []OrderBlock
	Bearish     []OrderBlock
	Invalidated []OrderBlock
}

// DetectOrderBlocks scans the frame for order blocks: the last candle
// of opposite colour before an impulse candle whose body is at least
// minImbalanceRatio times the prior body and whose close penetrates the
// prior candle's opposite extreme. Blocks older than maxAgeBars are
// purged; status is updated by sweeping later candles over each block.
func DetectOrderBlocks(candles []broker.Candle, minImbalanceRatio float64, maxAgeBars int) OrderBlocks {
	var result OrderBlocks
	if len(candles) < 4 {
		return result
	}
	if minImbalanceRatio <= 0 {
		minImbalanceRatio = 1.5
	}

	n := len(candles)
	for i := 3; i < n-1; i++ {
		prior := candles[i-1]
		impulse := candles[i]

		if maxAgeBars > 0 && n-1-i > maxAgeBars {
			continue
		}
		if prior.Body() == 0 {
			continue
		}
		ratio := impulse.Body() / prior.Body()
		if ratio < minImbalanceRatio {
			continue
		}

		// bullish OB: bearish candle followed by a bullish impulse that
		// closes above the prior high
		if prior.Bearish() && impulse.Bullish() && impulse.Close > prior.High {
			ob := OrderBlock{
				Type:            BullishOB,
				Status:          OBFresh,
				Index:           i - 1,
				High:            prior.High,
				Low:             prior.Low,
				Open:            prior.Open,
				Close:           prior.Close,
				ImpulseStrength: ratio,
				Volume:          prior.Volume,
			}
			updateOrderBlockStatus(&ob, candles, i+1)
			if ob.Status == OBInvalidated {
				result.Invalidated = append(result.Invalidated, ob)
			} else if ob.Active() {
				result.Bullish = append(result.Bullish, ob)
			}
		}

		// bearish OB: bullish candle followed by a bearish impulse that
		// closes below the prior low
		if prior.Bullish() && impulse.Bearish() && impulse.Close < prior.Low {
			ob := OrderBlock{
				Type:            BearishOB,
				Status:          OBFresh,
				Index:           i - 1,
				High:            prior.High,
				Low:             prior.Low,
				Open:            prior.Open,
				Close:           prior.Close,
				ImpulseStrength: ratio,
				Volume:          prior.Volume,
			}
			updateOrderBlockStatus(&ob, candles, i+1)
			if ob.Status == OBInvalidated {
				result.Invalidated = append(result.Invalidated, ob)
			} else if ob.Active() {
				result.Bearish = append(result.Bearish, ob)
			}
		}
	}
	return result
}

// updateOrderBlockStatus sweeps candles from index from to the end of
// the frame: a wick entering the block without a close through marks it
// TESTED; a close through the far side marks it INVALIDATED.
func updateOrderBlockStatus(ob *OrderBlock, candles []broker.Candle, from int) {
	for i := from; i < len(candles); i++ {
		c := candles[i]
		if ob.Type == BullishOB {
			if c.Close < ob.Low {
				ob.Status = OBInvalidated
				return
			}
			if c.Low <= ob.High && c.Low >= ob.Low {
				ob.TestsCount++
				ob.Status = OBTested
			}
		} else {
			if c.Close > ob.High {
				ob.Status = OBInvalidated
				return
			}
			if c.High >= ob.Low && c.High <= ob.High {
				ob.TestsCount++
				ob.Status = OBTested
			}
		}
	}
}

// BreakerBlock is an invalidated order block acting with flipped
// polarity; a bullish OB that failed becomes a bearish breaker.
type BreakerBlock struct {
	OrderBlock
	BreakerType OrderBlockType
}

// DetectBreakerBlocks converts the invalidated set into breaker blocks
// and applies the same lifecycle predicates to the flipped role.
func DetectBreakerBlocks(invalidated []OrderBlock, candles []broker.Candle) []BreakerBlock {
	var breakers []BreakerBlock
	for _, ob := range invalidated {
		flipped := BullishOB
		if ob.Type == BullishOB {
			flipped = BearishOB
		}
		bb := BreakerBlock{OrderBlock: ob, BreakerType: flipped}
		bb.OrderBlock.Type = flipped
		bb.Status = OBFresh
		bb.TestsCount = 0
		updateOrderBlockStatus(&bb.OrderBlock, candles, ob.Index+2)
		if bb.OrderBlock.Active() {
			breakers = append(breakers, bb)
		}
	}
	return breakers
}
