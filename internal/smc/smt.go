package smc

import "smc-engine/internal/broker"

// SMTSignal is a smart-money-technique divergence between two
// correlated instruments: one makes a new extreme the other refuses to
// confirm.
type SMTSignal struct {
	Detected  bool
	Direction broker.Side // direction the divergence favours
	Detail    string
}

// DetectSMT compares the last two swing lows and highs of the primary
// frame against the correlated frame. A bullish SMT fires when the
// primary prints a lower low while the pair holds a higher low; bearish
// is symmetric on the highs.
func DetectSMT(primary, correlated []broker.Candle, swingStrength int) SMTSignal {
	ps := DetectSwings(primary, swingStrength)
	cs := DetectSwings(correlated, swingStrength)

	pl := lastTwo(ps, SwingLow)
	cl := lastTwo(cs, SwingLow)
	if pl != nil && cl != nil {
		primaryLL := pl[1].Price < pl[0].Price
		pairHL := cl[1].Price > cl[0].Price
		if primaryLL && pairHL {
			return SMTSignal{Detected: true, Direction: broker.Buy, Detail: "primary LL vs pair HL"}
		}
	}

	ph := lastTwo(ps, SwingHigh)
	ch := lastTwo(cs, SwingHigh)
	if ph != nil && ch != nil {
		primaryHH := ph[1].Price > ph[0].Price
		pairLH := ch[1].Price < ch[0].Price
		if primaryHH && pairLH {
			return SMTSignal{Detected: true, Direction: broker.Sell, Detail: "primary HH vs pair LH"}
		}
	}

	return SMTSignal{}
}

// lastTwo returns the last two swings of the kind in frame order, or
// nil when fewer exist.
func lastTwo(swings []SwingPoint, kind SwingKind) []SwingPoint {
	var filtered []SwingPoint
	for _, s := range swings {
		if s.Kind == kind {
			filtered = append(filtered, s)
		}
	}
	if len(filtered) < 2 {
		return nil
	}
	return filtered[len(filtered)-2:]
}
