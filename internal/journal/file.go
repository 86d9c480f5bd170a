package journal

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FileSink appends the decision and trade streams to files in a
// directory, either as CSV with headers or as JSON lines.
type FileSink struct {
	mu     sync.Mutex
	dir    string
	format string // "csv" or "jsonl"

	decisions *os.File
	trades    *os.File
	closes    *os.File
}

// NewFileSink opens (or creates) the three stream files.
func NewFileSink(dir, format string) (*FileSink, error) {
	if format != "csv" && format != "jsonl" {
		return nil, fmt.Errorf("journal format %q not supported", format)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating journal dir: %w", err)
	}

	s := &FileSink{dir: dir, format: format}
	var err error
	if s.decisions, err = s.open("decisions", decisionHeader); err != nil {
		return nil, err
	}
	if s.trades, err = s.open("trades_open", tradeOpenHeader); err != nil {
		s.decisions.Close()
		return nil, err
	}
	if s.closes, err = s.open("trades_close", tradeCloseHeader); err != nil {
		s.decisions.Close()
		s.trades.Close()
		return nil, err
	}
	return s, nil
}

var decisionHeader = []string{
	"id", "timestamp", "symbol", "decision", "direction", "score",
	"rejection_reason", "rsi", "pd_zone", "htf_trend", "ltf_trend",
	"sweep_detected", "smt_signal", "session", "confluences",
}

var tradeOpenHeader = []string{
	"id", "timestamp", "ticket", "symbol", "direction", "entry", "sl", "tp",
	"lots", "risk_usd", "rr", "rsi", "pd_zone", "pd_percent", "htf_trend",
	"ltf_trend", "mtf_bias", "setup_type", "confluences", "confidence",
	"sweep_pdh_pdl", "sweep_asian", "sweep_silver_bullet", "sweep_amd",
	"session", "is_killzone", "slippage_pips",
}

var tradeCloseHeader = []string{
	"id", "ticket", "symbol", "exit_price", "exit_time", "duration_minutes",
	"profit_usd", "profit_pips", "profit_percent", "exit_reason",
}

func (s *FileSink) open(name string, header []string) (*os.File, error) {
	path := filepath.Join(s.dir, name+"."+s.format)
	info, statErr := os.Stat(path)
	fresh := statErr != nil || info.Size() == 0

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening journal stream %s: %w", path, err)
	}
	if s.format == "csv" && fresh {
		w := csv.NewWriter(f)
		if err := w.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing journal header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// Decision appends one decision record.
func (s *FileSink) Decision(rec DecisionRecord) error {
	if rec.ID == "" {
		rec.ID = NewID()
	}
	if s.format == "jsonl" {
		return s.writeJSON(s.decisions, rec)
	}
	return s.writeCSV(s.decisions, []string{
		rec.ID, rec.Timestamp.UTC().Format(time.RFC3339), rec.Symbol,
		string(rec.Decision), rec.Direction, f(rec.Score),
		rec.RejectionReason, f(rec.RSI), rec.PDZone, rec.HTFTrend,
		rec.LTFTrend, b(rec.SweepDetected), b(rec.SMTSignal), rec.Session,
		strings.Join(rec.Confluences, "|"),
	})
}

// TradeOpen appends one order-open record.
func (s *FileSink) TradeOpen(rec TradeOpenRecord) error {
	if rec.ID == "" {
		rec.ID = NewID()
	}
	if s.format == "jsonl" {
		return s.writeJSON(s.trades, rec)
	}
	return s.writeCSV(s.trades, []string{
		rec.ID, rec.Timestamp.UTC().Format(time.RFC3339),
		strconv.FormatInt(rec.Ticket, 10), rec.Symbol, rec.Direction,
		f(rec.Entry), f(rec.StopLoss), f(rec.TakeProfit), f(rec.Lots),
		f(rec.RiskUSD), f(rec.RR), f(rec.RSI), rec.PDZone, f(rec.PDPercent),
		rec.HTFTrend, rec.LTFTrend, rec.MTFBias, rec.SetupType,
		strings.Join(rec.Confluences, "|"), f(rec.Confidence),
		b(rec.SweepPDHPDL), b(rec.SweepAsian), b(rec.SweepSB), b(rec.SweepAMD),
		rec.Session, b(rec.IsKillzone), f(rec.SlippagePips),
	})
}

// TradeClose appends one position-close record.
func (s *FileSink) TradeClose(rec TradeCloseRecord) error {
	if rec.ID == "" {
		rec.ID = NewID()
	}
	if s.format == "jsonl" {
		return s.writeJSON(s.closes, rec)
	}
	return s.writeCSV(s.closes, []string{
		rec.ID, strconv.FormatInt(rec.Ticket, 10), rec.Symbol,
		f(rec.ExitPrice), rec.ExitTime.UTC().Format(time.RFC3339),
		f(rec.DurationMin), f(rec.ProfitUSD), f(rec.ProfitPips),
		f(rec.ProfitPercent), rec.ExitReason,
	})
}

// Close flushes and closes all streams.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for _, file := range []*os.File{s.decisions, s.trades, s.closes} {
		if file == nil {
			continue
		}
		if err := file.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s *FileSink) writeCSV(file *os.File, row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := csv.NewWriter(file)
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (s *FileSink) writeJSON(file *os.File, rec interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	_, err = file.Write(raw)
	return err
}

func f(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func b(v bool) string {
	return strconv.FormatBool(v)
}
