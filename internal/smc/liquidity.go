package smc

import "smc-engine/internal/broker"

// LiquidityType marks which side of the book a pool rests on
type LiquidityType string

const (
	BuySideLiquidity  LiquidityType = "BUY_SIDE"  // above equal highs
	SellSideLiquidity LiquidityType = "SELL_SIDE" // below equal lows
)

// LiquidityStatus is the lifecycle of a pool
type LiquidityStatus string

const (
	LiquidityUntouched LiquidityStatus = "UNTOUCHED"
	LiquiditySwept     LiquidityStatus = "SWEPT"
)

// LiquidityZone is a resting liquidity pool derived from clustered
// swing extremes.
type LiquidityZone struct {
	Type         LiquidityType
	Level        float64
	TouchCount   int
	IsEqualLevel bool
	Status       LiquidityStatus
	SweptIndex   int // bar that swept the level, -1 if untouched
}

// Sweep is a single-bar wick through a liquidity level with the close
// reclaiming it.
type Sweep struct {
	Zone      LiquidityZone
	Index     int
	WickPrice float64 // the extreme of the sweeping wick
	Direction broker.Side
}

// DetectLiquidity clusters swing highs and lows within tolerance into
// liquidity zones over the frame and classifies sweeps: a bar whose
// wick pierces a level and whose close reclaims it in the same bar.
func DetectLiquidity(candles []broker.Candle, swings []SwingPoint, tolerance float64) ([]LiquidityZone, []Sweep) {
	if tolerance <= 0 || len(swings) == 0 {
		return nil, nil
	}

	zones := clusterLevels(swings, tolerance)
	var sweeps []Sweep

	for zi := range zones {
		zone := &zones[zi]
		zone.SweptIndex = -1
		for i := 0; i < len(candles); i++ {
			c := candles[i]
			if zone.Type == BuySideLiquidity {
				// buy stops above equal highs: wick above, close back under
				if c.High > zone.Level && c.Close < zone.Level {
					zone.Status = LiquiditySwept
					zone.SweptIndex = i
					sweeps = append(sweeps, Sweep{Zone: *zone, Index: i, WickPrice: c.High, Direction: broker.Sell})
				}
			} else {
				// sell stops below equal lows: wick below, close back over
				if c.Low < zone.Level && c.Close > zone.Level {
					zone.Status = LiquiditySwept
					zone.SweptIndex = i
					sweeps = append(sweeps, Sweep{Zone: *zone, Index: i, WickPrice: c.Low, Direction: broker.Buy})
				}
			}
		}
	}
	return zones, sweeps
}

// clusterLevels groups swing extremes of the same kind lying within
// tolerance of each other; two or more members make an equal level.
func clusterLevels(swings []SwingPoint, tolerance float64) []LiquidityZone {
	var zones []LiquidityZone

	for _, kind := range []SwingKind{SwingHigh, SwingLow} {
		var levels []SwingPoint
		for _, s := range swings {
			if s.Kind == kind {
				levels = append(levels, s)
			}
		}

		used := make([]bool, len(levels))
		for i := range levels {
			if used[i] {
				continue
			}
			cluster := []SwingPoint{levels[i]}
			used[i] = true
			for j := i + 1; j < len(levels); j++ {
				if used[j] {
					continue
				}
				if diff(levels[j].Price, levels[i].Price) <= tolerance {
					cluster = append(cluster, levels[j])
					used[j] = true
				}
			}

			sum := 0.0
			for _, s := range cluster {
				sum += s.Price
			}
			zt := BuySideLiquidity
			if kind == SwingLow {
				zt = SellSideLiquidity
			}
			zones = append(zones, LiquidityZone{
				Type:         zt,
				Level:        sum / float64(len(cluster)),
				TouchCount:   len(cluster),
				IsEqualLevel: len(cluster) >= 2,
				Status:       LiquidityUntouched,
			})
		}
	}
	return zones
}

func diff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}

// RecentSweep returns the most recent sweep within the last n bars of
// the frame, or nil.
func RecentSweep(sweeps []Sweep, frameLen, n int) *Sweep {
	var best *Sweep
	for i := range sweeps {
		if sweeps[i].Index < frameLen-n {
			continue
		}
		if best == nil || sweeps[i].Index > best.Index {
			s := sweeps[i]
			best = &s
		}
	}
	return best
}
