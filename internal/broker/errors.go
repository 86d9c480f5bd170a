package broker

import (
	"errors"
	"fmt"
)

// FailureKind tags every well-defined broker failure so the core can
// decide between retry, skip and abort without string matching.
type FailureKind string

const (
	KindDataUnavailable    FailureKind = "data_unavailable"
	KindSymbolUnknown      FailureKind = "symbol_unknown"
	KindInsufficientMargin FailureKind = "insufficient_margin"
	KindInvalidStops       FailureKind = "invalid_stops"
	KindSpreadTooWide      FailureKind = "spread_too_wide"
	KindSlippage           FailureKind = "slippage"
	KindMarketClosed       FailureKind = "market_closed"
	KindUnsupportedFilling FailureKind = "unsupported_filling"
	KindTransient          FailureKind = "transient"
)

// TransientCode refines KindTransient failures
type TransientCode string

const (
	TransientRequote      TransientCode = "requote"
	TransientConnection   TransientCode = "connection"
	TransientTimeout      TransientCode = "timeout"
	TransientPriceOff     TransientCode = "price_off"
	TransientPriceChanged TransientCode = "price_changed"
)

// Error is the tagged failure value every port method returns instead
// of an opaque error.
type Error struct {
	Kind    FailureKind
	Code    TransientCode
	Symbol  string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("broker: %s/%s %s: %s", e.Kind, e.Code, e.Symbol, e.Message)
	}
	return fmt.Sprintf("broker: %s %s: %s", e.Kind, e.Symbol, e.Message)
}

// Retryable reports whether the executor retry loop may resubmit.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransient
}

// NewError builds a tagged broker error.
func NewError(kind FailureKind, symbol, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Symbol: symbol, Message: fmt.Sprintf(format, args...)}
}

// NewTransient builds a transient broker error with a subcode.
func NewTransient(code TransientCode, symbol, format string, args ...interface{}) *Error {
	return &Error{Kind: KindTransient, Code: code, Symbol: symbol, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the failure kind from any error chain. Unknown errors
// map to KindTransient with a connection subcode so callers err on the
// side of retrying rather than dropping a live order path.
func KindOf(err error) FailureKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindTransient
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Retryable()
	}
	return false
}
