package journal

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var recTime = time.Date(2026, 8, 24, 9, 15, 0, 0, time.UTC)

func sampleDecision() DecisionRecord {
	return DecisionRecord{
		Symbol:        "EURUSD",
		Timestamp:     recTime,
		Decision:      DecisionRejected,
		Direction:     "BUY",
		Score:         62,
		RejectionReason: "confidence 62 below floor 70",
		RSI:           45,
		PDZone:        "DISCOUNT",
		HTFTrend:      "BULLISH",
		LTFTrend:      "BULLISH",
		SweepDetected: true,
		Session:       "LONDON_OPEN",
		Confluences:   []string{"DISCOUNT zone", "LTF trend aligned"},
	}
}

func TestFileSinkCSV(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, "csv")
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}

	if err := sink.Decision(sampleDecision()); err != nil {
		t.Fatalf("Decision: %v", err)
	}
	if err := sink.TradeOpen(TradeOpenRecord{
		Timestamp: recTime, Ticket: 42, Symbol: "EURUSD", Direction: "BUY",
		Entry: 1.1000, StopLoss: 1.0955, TakeProfit: 1.1100,
		Lots: 0.5, RR: 2.22, Confidence: 92, SetupType: "pdh_pdl",
		SweepPDHPDL: true, IsKillzone: true,
	}); err != nil {
		t.Fatalf("TradeOpen: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	raw, err := os.Open(filepath.Join(dir, "decisions.csv"))
	if err != nil {
		t.Fatalf("open decisions: %v", err)
	}
	defer raw.Close()
	rows, err := csv.NewReader(raw).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header + 1 record", len(rows))
	}
	if rows[0][0] != "id" || rows[0][3] != "decision" {
		t.Errorf("header = %v", rows[0])
	}
	rec := rows[1]
	if rec[2] != "EURUSD" || rec[3] != "REJECTED" {
		t.Errorf("record = %v", rec)
	}
	if rec[0] == "" {
		t.Error("record id not generated")
	}
	if !strings.Contains(rec[14], "|") {
		t.Errorf("confluences = %q, want pipe-joined", rec[14])
	}

	trades, err := os.ReadFile(filepath.Join(dir, "trades_open.csv"))
	if err != nil {
		t.Fatalf("read trades: %v", err)
	}
	if !strings.Contains(string(trades), "pdh_pdl") {
		t.Errorf("trade row missing the setup type: %s", trades)
	}
}

func TestFileSinkJSONL(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, "jsonl")
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	if err := sink.Decision(sampleDecision()); err != nil {
		t.Fatalf("Decision: %v", err)
	}
	if err := sink.TradeClose(TradeCloseRecord{
		Ticket: 42, Symbol: "EURUSD", ExitPrice: 1.1100, ExitTime: recTime,
		DurationMin: 95, ProfitUSD: 50, ProfitPips: 100, ExitReason: "tp",
	}); err != nil {
		t.Fatalf("TradeClose: %v", err)
	}
	sink.Close()

	raw, err := os.ReadFile(filepath.Join(dir, "decisions.jsonl"))
	if err != nil {
		t.Fatalf("read decisions: %v", err)
	}
	var rec DecisionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.Symbol != "EURUSD" || rec.Decision != DecisionRejected {
		t.Errorf("record = %+v", rec)
	}
	if rec.ID == "" {
		t.Error("record id not generated")
	}

	closes, err := os.ReadFile(filepath.Join(dir, "trades_close.jsonl"))
	if err != nil {
		t.Fatalf("read closes: %v", err)
	}
	var cl TradeCloseRecord
	if err := json.Unmarshal(closes, &cl); err != nil {
		t.Fatalf("unmarshal close: %v", err)
	}
	if cl.Ticket != 42 || cl.ExitReason != "tp" {
		t.Errorf("close record = %+v", cl)
	}
}

func TestFileSinkAppendKeepsSingleHeader(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		sink, err := NewFileSink(dir, "csv")
		if err != nil {
			t.Fatalf("NewFileSink: %v", err)
		}
		if err := sink.Decision(sampleDecision()); err != nil {
			t.Fatalf("Decision: %v", err)
		}
		sink.Close()
	}

	raw, _ := os.ReadFile(filepath.Join(dir, "decisions.csv"))
	if got := strings.Count(string(raw), "rejection_reason"); got != 1 {
		t.Errorf("header written %d times, want 1", got)
	}
	if got := strings.Count(string(raw), "EURUSD"); got != 2 {
		t.Errorf("records = %d, want 2", got)
	}
}

func TestFileSinkRejectsUnknownFormat(t *testing.T) {
	if _, err := NewFileSink(t.TempDir(), "xml"); err == nil {
		t.Error("unknown format accepted")
	}
}

type failingSink struct{ calls int }

func (fs *failingSink) Decision(DecisionRecord) error    { fs.calls++; return os.ErrClosed }
func (fs *failingSink) TradeOpen(TradeOpenRecord) error  { fs.calls++; return os.ErrClosed }
func (fs *failingSink) TradeClose(TradeCloseRecord) error { fs.calls++; return os.ErrClosed }
func (fs *failingSink) Close() error                     { return nil }

func TestMultiSinkAttemptsAll(t *testing.T) {
	dir := t.TempDir()
	file, err := NewFileSink(dir, "jsonl")
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	bad := &failingSink{}
	multi := NewMultiSink(bad, file)

	if err := multi.Decision(sampleDecision()); err == nil {
		t.Error("first sink error swallowed")
	}
	multi.Close()

	raw, err := os.ReadFile(filepath.Join(dir, "decisions.jsonl"))
	if err != nil || len(raw) == 0 {
		t.Errorf("second sink skipped after the first failed: %v", err)
	}
}
