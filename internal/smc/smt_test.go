package smc

import (
	"testing"

	"smc-engine/internal/broker"
)

// frameFromLows builds a frame from explicit lows, with highs
// a fixed band above so the swing geometry stays on the lows
func frameFromLows(lows []float64) []broker.Candle {
	candles := make([]broker.Candle, len(lows))
	for i, l := range lows {
		candles[i] = broker.Candle{
			Open:  l + 0.0002,
			High:  l + 0.0004,
			Low:   l,
			Close: l + 0.0002,
		}
	}
	return candles
}

func frameFromHighs(highs []float64) []broker.Candle {
	candles := make([]broker.Candle, len(highs))
	for i, h := range highs {
		candles[i] = broker.Candle{
			Open:  h - 0.0002,
			High:  h,
			Low:   h - 0.0004,
			Close: h - 0.0002,
		}
	}
	return candles
}

func TestDetectSMTBullish(t *testing.T) {
	// the primary runs the sell stops while the pair holds a higher low
	primary := frameFromLows([]float64{
		1.1010, 1.1008, 1.1000, 1.1008, 1.1010, 1.1009, 1.1012,
		1.1010, 1.0990, 1.1008, 1.1010, 1.1009, 1.1011,
	})
	pair := frameFromLows([]float64{
		1.1010, 1.1008, 1.0990, 1.1008, 1.1010, 1.1009, 1.1012,
		1.1010, 1.1000, 1.1008, 1.1010, 1.1009, 1.1011,
	})

	sig := DetectSMT(primary, pair, 2)
	if !sig.Detected || sig.Direction != broker.Buy {
		t.Fatalf("signal = %+v, want a bullish divergence", sig)
	}
}

func TestDetectSMTBearish(t *testing.T) {
	primary := frameFromHighs([]float64{
		1.0990, 1.0992, 1.1000, 1.0992, 1.0990, 1.0991, 1.0988,
		1.0990, 1.1010, 1.0992, 1.0990, 1.0991, 1.0989,
	})
	pair := frameFromHighs([]float64{
		1.0990, 1.0992, 1.1010, 1.0992, 1.0990, 1.0991, 1.0988,
		1.0990, 1.1000, 1.0992, 1.0990, 1.0991, 1.0989,
	})

	sig := DetectSMT(primary, pair, 2)
	if !sig.Detected || sig.Direction != broker.Sell {
		t.Fatalf("signal = %+v, want a bearish divergence", sig)
	}
}

func TestDetectSMTAgreementIsSilent(t *testing.T) {
	frame := frameFromLows([]float64{
		1.1010, 1.1008, 1.1000, 1.1008, 1.1010, 1.1009, 1.1012,
		1.1010, 1.0990, 1.1008, 1.1010, 1.1009, 1.1011,
	})
	if sig := DetectSMT(frame, frame, 2); sig.Detected {
		t.Errorf("signal = %+v, want none when both legs agree", sig)
	}
}

func TestDetectSMTShortFrames(t *testing.T) {
	short := frameFromLows([]float64{1.1000, 1.1001, 1.1002})
	if sig := DetectSMT(short, short, 2); sig.Detected {
		t.Errorf("signal = %+v on frames too short to confirm swings", sig)
	}
}
