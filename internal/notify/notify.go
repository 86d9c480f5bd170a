// Package notify defines the outbound notification surface. Sinks must
// be safe for concurrent use; the engine fires and forgets.
package notify

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Notifier receives the engine's human-facing events
type Notifier interface {
	SignalTaken(symbol, side string, confidence float64, ticket int64)
	PositionClosed(symbol string, ticket int64, profit float64, reason string)
	KillSwitch(reason string)
}

// LogNotifier writes notifications into the structured log. The default
// sink when no external channel is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) SignalTaken(symbol, side string, confidence float64, ticket int64) {
	n.logger.Info().
		Str("symbol", symbol).
		Str("side", side).
		Float64("confidence", confidence).
		Int64("ticket", ticket).
		Msg("trade opened")
}

func (n *LogNotifier) PositionClosed(symbol string, ticket int64, profit float64, reason string) {
	event := n.logger.Info()
	if profit < 0 {
		event = n.logger.Warn()
	}
	event.
		Str("symbol", symbol).
		Int64("ticket", ticket).
		Str("profit", fmt.Sprintf("%.2f", profit)).
		Str("reason", reason).
		Msg("trade closed")
}

func (n *LogNotifier) KillSwitch(reason string) {
	n.logger.Error().Str("reason", reason).Msg("kill switch")
}

// NopNotifier drops everything.
type NopNotifier struct{}

func (NopNotifier) SignalTaken(string, string, float64, int64)    {}
func (NopNotifier) PositionClosed(string, int64, float64, string) {}
func (NopNotifier) KillSwitch(string)                             {}
