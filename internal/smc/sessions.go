package smc

import (
	"time"

	"smc-engine/internal/broker"
)

// AsianRange is the consolidation range of the Asian session
type AsianRange struct {
	SessionDate time.Time
	High        float64
	Low         float64
	Midpoint    float64
	RangeSize   float64
	CandleCount int
	Valid       bool
}

// ComputeAsianRange derives the Asian-session range for the session day
// of the last candle. The window is [startHour, endHour) UTC and at
// least 5 candles are required for a valid range.
func ComputeAsianRange(candles []broker.Candle, startHour, endHour int) AsianRange {
	if len(candles) == 0 {
		return AsianRange{}
	}
	day := candles[len(candles)-1].Time.UTC().Truncate(24 * time.Hour)

	ar := AsianRange{SessionDate: day}
	for _, c := range candles {
		t := c.Time.UTC()
		if !t.Truncate(24 * time.Hour).Equal(day) {
			continue
		}
		h := t.Hour()
		if h < startHour || h >= endHour {
			continue
		}
		if ar.CandleCount == 0 {
			ar.High, ar.Low = c.High, c.Low
		} else {
			if c.High > ar.High {
				ar.High = c.High
			}
			if c.Low < ar.Low {
				ar.Low = c.Low
			}
		}
		ar.CandleCount++
	}

	if ar.CandleCount >= 5 {
		ar.Valid = true
		ar.Midpoint = (ar.High + ar.Low) / 2
		ar.RangeSize = ar.High - ar.Low
	}
	return ar
}

// PrevDayLevels are the previous trading day's reference levels
type PrevDayLevels struct {
	Date     time.Time
	High     float64 // PDH
	Low      float64 // PDL
	Open     float64 // PDO
	Close    float64 // PDC
	Midpoint float64
	Valid    bool
}

// ComputePrevDayLevels derives PDH/PDL/PDO/PDC from the candles of the
// previous trading day, skipping the weekend back to Friday.
func ComputePrevDayLevels(candles []broker.Candle) PrevDayLevels {
	if len(candles) == 0 {
		return PrevDayLevels{}
	}
	today := candles[len(candles)-1].Time.UTC().Truncate(24 * time.Hour)

	prev := today.AddDate(0, 0, -1)
	for prev.Weekday() == time.Saturday || prev.Weekday() == time.Sunday {
		prev = prev.AddDate(0, 0, -1)
	}

	pdl := PrevDayLevels{Date: prev}
	count := 0
	for _, c := range candles {
		if !c.Time.UTC().Truncate(24 * time.Hour).Equal(prev) {
			continue
		}
		if count == 0 {
			pdl.Open = c.Open
			pdl.High, pdl.Low = c.High, c.Low
		} else {
			if c.High > pdl.High {
				pdl.High = c.High
			}
			if c.Low < pdl.Low {
				pdl.Low = c.Low
			}
		}
		pdl.Close = c.Close
		count++
	}

	if count > 0 {
		pdl.Valid = true
		pdl.Midpoint = (pdl.High + pdl.Low) / 2
	}
	return pdl
}

// Killzone is a session window with elevated institutional activity
type Killzone string

const (
	KZNone        Killzone = ""
	KZLondonOpen  Killzone = "LONDON_OPEN"  // 07-10 UTC
	KZLondon      Killzone = "LONDON"       // 10-16 UTC
	KZNYOpen      Killzone = "NY_OPEN"      // 12-15 UTC
	KZNewYork     Killzone = "NEW_YORK"     // 15-21 UTC
	KZLondonClose Killzone = "LONDON_CLOSE" // 15-17 UTC
)

// KillzoneInfo is the session read for a point in time
type KillzoneInfo struct {
	Active   bool
	Zone     Killzone
	HourUTC  int
	IsAsian  bool // 0-8 UTC
	IsLunch  bool // 12-13 UTC
}

// CurrentKillzone classifies the UTC hour into a killzone. Overlapping
// windows resolve to the opening session: NY Open wins over London, the
// London Close tag applies within 15-17 when NY Open has passed.
func CurrentKillzone(t time.Time, offset int) KillzoneInfo {
	h := (t.UTC().Hour() + offset + 24) % 24
	info := KillzoneInfo{HourUTC: h, IsAsian: h >= 0 && h < 8, IsLunch: h == 12}

	switch {
	case h >= 7 && h < 10:
		info.Zone = KZLondonOpen
	case h >= 12 && h < 15:
		info.Zone = KZNYOpen
	case h >= 15 && h < 17:
		info.Zone = KZLondonClose
	case h >= 10 && h < 16:
		info.Zone = KZLondon
	case h >= 17 && h < 21:
		info.Zone = KZNewYork
	}
	info.Active = info.Zone != KZNone
	return info
}

// SilverBulletPhase marks the one-hour ICT silver bullet windows
type SilverBulletPhase string

const (
	SBNone   SilverBulletPhase = ""
	SBLondon SilverBulletPhase = "LONDON" // 10-11 UTC
	SBNY     SilverBulletPhase = "NY"     // 14-15 UTC
)

// CurrentSilverBullet returns the active silver bullet window, if any.
func CurrentSilverBullet(t time.Time) SilverBulletPhase {
	switch t.UTC().Hour() {
	case 10:
		return SBLondon
	case 14:
		return SBNY
	default:
		return SBNone
	}
}

// AMDPhase is the intraday accumulation/manipulation/distribution cycle
type AMDPhase string

const (
	AMDAccumulation AMDPhase = "ACCUMULATION" // Asian consolidation
	AMDManipulation AMDPhase = "MANIPULATION" // London-open sweep window
	AMDDistribution AMDPhase = "DISTRIBUTION" // NY expansion
)

// CurrentAMDPhase maps the UTC hour onto the AMD cycle.
func CurrentAMDPhase(t time.Time) AMDPhase {
	h := t.UTC().Hour()
	switch {
	case h < 7:
		return AMDAccumulation
	case h < 12:
		return AMDManipulation
	default:
		return AMDDistribution
	}
}
