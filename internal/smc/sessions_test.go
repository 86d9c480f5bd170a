package smc

import (
	"testing"
	"time"

	"smc-engine/internal/broker"
)

func atHour(h int) time.Time {
	return time.Date(2026, 8, 24, h, 30, 0, 0, time.UTC)
}

func TestCurrentKillzone(t *testing.T) {
	tests := []struct {
		hour    int
		zone    Killzone
		active  bool
		isAsian bool
		isLunch bool
	}{
		{3, KZNone, false, true, false},
		{7, KZLondonOpen, true, true, false},
		{9, KZLondonOpen, true, false, false},
		{10, KZLondon, true, false, false},
		{12, KZNYOpen, true, false, true},
		{14, KZNYOpen, true, false, false},
		{16, KZLondonClose, true, false, false},
		{18, KZNewYork, true, false, false},
		{22, KZNone, false, false, false},
	}
	for _, tt := range tests {
		info := CurrentKillzone(atHour(tt.hour), 0)
		if info.Zone != tt.zone || info.Active != tt.active {
			t.Errorf("hour %d: zone = %q active = %v, want %q %v", tt.hour, info.Zone, info.Active, tt.zone, tt.active)
		}
		if info.IsAsian != tt.isAsian {
			t.Errorf("hour %d: IsAsian = %v, want %v", tt.hour, info.IsAsian, tt.isAsian)
		}
		if info.IsLunch != tt.isLunch {
			t.Errorf("hour %d: IsLunch = %v, want %v", tt.hour, info.IsLunch, tt.isLunch)
		}
	}
}

func TestCurrentKillzoneOffset(t *testing.T) {
	// broker clock two hours ahead of UTC: 05:30 UTC reads as 07:30
	info := CurrentKillzone(atHour(5), 2)
	if info.Zone != KZLondonOpen {
		t.Errorf("zone with offset 2 = %q, want LONDON_OPEN", info.Zone)
	}
	if info.HourUTC != 7 {
		t.Errorf("adjusted hour = %d, want 7", info.HourUTC)
	}
}

func TestCurrentSilverBullet(t *testing.T) {
	if got := CurrentSilverBullet(atHour(10)); got != SBLondon {
		t.Errorf("10:30 = %q, want LONDON", got)
	}
	if got := CurrentSilverBullet(atHour(14)); got != SBNY {
		t.Errorf("14:30 = %q, want NY", got)
	}
	if got := CurrentSilverBullet(atHour(9)); got != SBNone {
		t.Errorf("09:30 = %q, want none", got)
	}
}

func TestCurrentAMDPhase(t *testing.T) {
	if got := CurrentAMDPhase(atHour(3)); got != AMDAccumulation {
		t.Errorf("03:30 = %q, want ACCUMULATION", got)
	}
	if got := CurrentAMDPhase(atHour(9)); got != AMDManipulation {
		t.Errorf("09:30 = %q, want MANIPULATION", got)
	}
	if got := CurrentAMDPhase(atHour(13)); got != AMDDistribution {
		t.Errorf("13:30 = %q, want DISTRIBUTION", got)
	}
}

func hourlyBar(day time.Time, h int, high, low float64) broker.Candle {
	return broker.Candle{
		Time: day.Add(time.Duration(h) * time.Hour),
		Open: (high + low) / 2, High: high, Low: low, Close: (high + low) / 2,
	}
}

func TestComputeAsianRange(t *testing.T) {
	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	var candles []broker.Candle
	for h := 0; h < 7; h++ {
		high := 1.1010
		if h == 3 {
			high = 1.1016 // session extreme mid-window
		}
		candles = append(candles, hourlyBar(day, h, high, 1.0990))
	}
	// a London bar outside the window must not widen the range
	candles = append(candles, hourlyBar(day, 8, 1.1100, 1.0900))

	ar := ComputeAsianRange(candles, 0, 7)
	if !ar.Valid {
		t.Fatal("expected a valid Asian range")
	}
	if ar.High != 1.1016 || ar.Low != 1.0990 {
		t.Errorf("range = [%v, %v], want [1.0990, 1.1016]", ar.Low, ar.High)
	}
	if ar.CandleCount != 7 {
		t.Errorf("candle count = %d, want 7", ar.CandleCount)
	}
}

func TestComputeAsianRangeTooFewBars(t *testing.T) {
	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	candles := []broker.Candle{
		hourlyBar(day, 0, 1.1010, 1.0990),
		hourlyBar(day, 1, 1.1012, 1.0992),
		hourlyBar(day, 2, 1.1011, 1.0991),
	}
	if ar := ComputeAsianRange(candles, 0, 7); ar.Valid {
		t.Errorf("range valid with %d bars, want invalid", ar.CandleCount)
	}
}

func TestComputePrevDayLevelsSkipsWeekend(t *testing.T) {
	daily := func(day time.Time, o, h, l, c float64) broker.Candle {
		return broker.Candle{Time: day, Open: o, High: h, Low: l, Close: c}
	}
	thursday := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	friday := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)
	monday := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	candles := []broker.Candle{
		daily(thursday, 1.0900, 1.0950, 1.0850, 1.0920),
		daily(friday, 1.0920, 1.1000, 1.0880, 1.0960),
		daily(monday, 1.0960, 1.0990, 1.0940, 1.0970),
	}

	pdl := ComputePrevDayLevels(candles)
	if !pdl.Valid {
		t.Fatal("expected valid previous-day levels")
	}
	// Monday's previous trading day is Friday
	if pdl.High != 1.1000 || pdl.Low != 1.0880 {
		t.Errorf("PDH/PDL = %v/%v, want 1.1000/1.0880", pdl.High, pdl.Low)
	}
	if pdl.Open != 1.0920 || pdl.Close != 1.0960 {
		t.Errorf("PDO/PDC = %v/%v, want 1.0920/1.0960", pdl.Open, pdl.Close)
	}
	if pdl.Midpoint != (1.1000+1.0880)/2 {
		t.Errorf("midpoint = %v", pdl.Midpoint)
	}
}

func TestComputePrevDayLevelsEmpty(t *testing.T) {
	if pdl := ComputePrevDayLevels(nil); pdl.Valid {
		t.Error("empty frame produced valid levels")
	}
}
