// Package news defines the narrow calendar interface the engine
// consults before entries and the static calendar implementation. The
// engine never fetches calendars itself.
package news

import (
	"fmt"
	"strings"
	"time"
)

// Impact grades a calendar event
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// Event is a scheduled economic release
type Event struct {
	Time       time.Time
	Currencies []string
	Impact     Impact
	Title      string
}

// Filter is what the risk gate and position manager consult
type Filter interface {
	// Allowed reports whether a symbol may open a new position given
	// the blackout horizon before upcoming events.
	Allowed(symbol string, now time.Time, horizon time.Duration) (bool, string)
	// EmergencyExit reports whether open positions on the symbol should
	// be closed ahead of an imminent high-impact event.
	EmergencyExit(symbol string, now time.Time, horizon time.Duration) (bool, string)
}

// StaticCalendar is a fixed in-memory event list
type StaticCalendar struct {
	events []Event
}

// NewStaticCalendar creates a calendar over a fixed event list.
func NewStaticCalendar(events []Event) *StaticCalendar {
	return &StaticCalendar{events: events}
}

// Allowed blocks entries when any medium or high impact event touching
// the symbol's currencies falls within the horizon.
func (c *StaticCalendar) Allowed(symbol string, now time.Time, horizon time.Duration) (bool, string) {
	for _, ev := range c.events {
		if ev.Impact == ImpactLow {
			continue
		}
		if !touches(ev, symbol) {
			continue
		}
		until := ev.Time.Sub(now)
		if until >= 0 && until <= horizon {
			return false, fmt.Sprintf("%s in %s", ev.Title, until.Round(time.Minute))
		}
	}
	return true, ""
}

// EmergencyExit fires only for high-impact events inside the exit
// horizon.
func (c *StaticCalendar) EmergencyExit(symbol string, now time.Time, horizon time.Duration) (bool, string) {
	for _, ev := range c.events {
		if ev.Impact != ImpactHigh {
			continue
		}
		if !touches(ev, symbol) {
			continue
		}
		until := ev.Time.Sub(now)
		if until >= 0 && until <= horizon {
			return true, fmt.Sprintf("high impact %s in %s", ev.Title, until.Round(time.Minute))
		}
	}
	return false, ""
}

// touches matches an event currency against the symbol name.
func touches(ev Event, symbol string) bool {
	s := strings.ToUpper(symbol)
	for _, ccy := range ev.Currencies {
		if strings.Contains(s, strings.ToUpper(ccy)) {
			return true
		}
	}
	return false
}

// NoopFilter allows everything; used when the news filter is disabled.
type NoopFilter struct{}

func (NoopFilter) Allowed(string, time.Time, time.Duration) (bool, string) { return true, "" }
func (NoopFilter) EmergencyExit(string, time.Time, time.Duration) (bool, string) {
	return false, ""
}
