// Package journal persists the two append-only telemetry streams: one
// decision record per analysis cycle and one trade record per order
// open and close. The engine only writes; readers aggregate offline.
package journal

import (
	"time"

	"github.com/google/uuid"
)

// Decision classifies the outcome of one analysis cycle
type Decision string

const (
	DecisionTaken    Decision = "TAKEN"
	DecisionRejected Decision = "REJECTED"
	DecisionNone     Decision = "NONE"
)

// DecisionRecord is one row of the decision stream
type DecisionRecord struct {
	ID              string    `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	Symbol          string    `json:"symbol"`
	Decision        Decision  `json:"decision"`
	Direction       string    `json:"direction"`
	Score           float64   `json:"score"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	RSI             float64   `json:"rsi"`
	PDZone          string    `json:"pd_zone"`
	HTFTrend        string    `json:"htf_trend"`
	LTFTrend        string    `json:"ltf_trend"`
	SweepDetected   bool      `json:"sweep_detected"`
	SMTSignal       bool      `json:"smt_signal"`
	Session         string    `json:"session"`
	Confluences     []string  `json:"confluences,omitempty"`
}

// TradeOpenRecord is one row of the trade stream at order open
type TradeOpenRecord struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Ticket       int64     `json:"ticket"`
	Symbol       string    `json:"symbol"`
	Direction    string    `json:"direction"`
	Entry        float64   `json:"entry"`
	StopLoss     float64   `json:"sl"`
	TakeProfit   float64   `json:"tp"`
	Lots         float64   `json:"lots"`
	RiskUSD      float64   `json:"risk_usd"`
	RR           float64   `json:"rr"`
	RSI          float64   `json:"rsi"`
	PDZone       string    `json:"pd_zone"`
	PDPercent    float64   `json:"pd_percent"`
	HTFTrend     string    `json:"htf_trend"`
	LTFTrend     string    `json:"ltf_trend"`
	MTFBias      string    `json:"mtf_bias"`
	SetupType    string    `json:"setup_type"`
	Confluences  []string  `json:"confluences,omitempty"`
	Confidence   float64   `json:"confidence"`
	SweepPDHPDL  bool      `json:"sweep_pdh_pdl"`
	SweepAsian   bool      `json:"sweep_asian"`
	SweepSB      bool      `json:"sweep_silver_bullet"`
	SweepAMD     bool      `json:"sweep_amd"`
	Session      string    `json:"session"`
	IsKillzone   bool      `json:"is_killzone"`
	SlippagePips float64   `json:"slippage_pips"`
}

// TradeCloseRecord is one row of the trade stream at position close
type TradeCloseRecord struct {
	ID            string    `json:"id"`
	Ticket        int64     `json:"ticket"`
	Symbol        string    `json:"symbol"`
	ExitPrice     float64   `json:"exit_price"`
	ExitTime      time.Time `json:"exit_time"`
	DurationMin   float64   `json:"duration_minutes"`
	ProfitUSD     float64   `json:"profit_usd"`
	ProfitPips    float64   `json:"profit_pips"`
	ProfitPercent float64   `json:"profit_percent"`
	ExitReason    string    `json:"exit_reason"`
}

// Sink receives the journal streams. Implementations serialize their
// own I/O; the engine never reads back.
type Sink interface {
	Decision(rec DecisionRecord) error
	TradeOpen(rec TradeOpenRecord) error
	TradeClose(rec TradeCloseRecord) error
	Close() error
}

// NewID returns a fresh record identifier.
func NewID() string {
	return uuid.NewString()
}

// MultiSink fans every record out to several sinks; the first error is
// returned but all sinks are attempted.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Decision(rec DecisionRecord) error {
	var first error
	for _, s := range m.sinks {
		if err := s.Decision(rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *MultiSink) TradeOpen(rec TradeOpenRecord) error {
	var first error
	for _, s := range m.sinks {
		if err := s.TradeOpen(rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *MultiSink) TradeClose(rec TradeCloseRecord) error {
	var first error
	for _, s := range m.sinks {
		if err := s.TradeClose(rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *MultiSink) Close() error {
	var first error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
