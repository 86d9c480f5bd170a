package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink persists the journal streams in Postgres for shared
// offline analysis. Optional; enabled by SMC_JOURNAL_DSN.
type PostgresSink struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id               TEXT PRIMARY KEY,
	ts               TIMESTAMPTZ NOT NULL,
	symbol           TEXT NOT NULL,
	decision         TEXT NOT NULL,
	direction        TEXT,
	score            DOUBLE PRECISION,
	rejection_reason TEXT,
	rsi              DOUBLE PRECISION,
	pd_zone          TEXT,
	htf_trend        TEXT,
	ltf_trend        TEXT,
	sweep_detected   BOOLEAN,
	smt_signal       BOOLEAN,
	session          TEXT,
	confluences      TEXT[]
);
CREATE TABLE IF NOT EXISTS trade_opens (
	id          TEXT PRIMARY KEY,
	ts          TIMESTAMPTZ NOT NULL,
	ticket      BIGINT NOT NULL,
	symbol      TEXT NOT NULL,
	direction   TEXT NOT NULL,
	entry       DOUBLE PRECISION,
	sl          DOUBLE PRECISION,
	tp          DOUBLE PRECISION,
	lots        DOUBLE PRECISION,
	risk_usd    DOUBLE PRECISION,
	rr          DOUBLE PRECISION,
	rsi         DOUBLE PRECISION,
	pd_zone     TEXT,
	pd_percent  DOUBLE PRECISION,
	htf_trend   TEXT,
	ltf_trend   TEXT,
	mtf_bias    TEXT,
	setup_type  TEXT,
	confluences TEXT[],
	confidence  DOUBLE PRECISION,
	sweep_pdh_pdl       BOOLEAN,
	sweep_asian         BOOLEAN,
	sweep_silver_bullet BOOLEAN,
	sweep_amd           BOOLEAN,
	session     TEXT,
	is_killzone BOOLEAN,
	slippage_pips DOUBLE PRECISION
);
CREATE TABLE IF NOT EXISTS trade_closes (
	id               TEXT PRIMARY KEY,
	ticket           BIGINT NOT NULL,
	symbol           TEXT NOT NULL,
	exit_price       DOUBLE PRECISION,
	exit_time        TIMESTAMPTZ,
	duration_minutes DOUBLE PRECISION,
	profit_usd       DOUBLE PRECISION,
	profit_pips      DOUBLE PRECISION,
	profit_percent   DOUBLE PRECISION,
	exit_reason      TEXT
);
CREATE INDEX IF NOT EXISTS decisions_symbol_ts ON decisions (symbol, ts);
CREATE INDEX IF NOT EXISTS trade_opens_ticket ON trade_opens (ticket);
`

// NewPostgresSink connects, pings and ensures the schema.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to journal database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging journal database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring journal schema: %w", err)
	}
	return &PostgresSink{pool: pool, timeout: 5 * time.Second}, nil
}

func (s *PostgresSink) Decision(rec DecisionRecord) error {
	if rec.ID == "" {
		rec.ID = NewID()
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO decisions (id, ts, symbol, decision, direction, score,
			rejection_reason, rsi, pd_zone, htf_trend, ltf_trend,
			sweep_detected, smt_signal, session, confluences)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		rec.ID, rec.Timestamp, rec.Symbol, rec.Decision, rec.Direction,
		rec.Score, rec.RejectionReason, rec.RSI, rec.PDZone, rec.HTFTrend,
		rec.LTFTrend, rec.SweepDetected, rec.SMTSignal, rec.Session,
		rec.Confluences)
	return err
}

func (s *PostgresSink) TradeOpen(rec TradeOpenRecord) error {
	if rec.ID == "" {
		rec.ID = NewID()
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trade_opens (id, ts, ticket, symbol, direction, entry,
			sl, tp, lots, risk_usd, rr, rsi, pd_zone, pd_percent, htf_trend,
			ltf_trend, mtf_bias, setup_type, confluences, confidence,
			sweep_pdh_pdl, sweep_asian, sweep_silver_bullet, sweep_amd,
			session, is_killzone, slippage_pips)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,
			$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27)`,
		rec.ID, rec.Timestamp, rec.Ticket, rec.Symbol, rec.Direction,
		rec.Entry, rec.StopLoss, rec.TakeProfit, rec.Lots, rec.RiskUSD,
		rec.RR, rec.RSI, rec.PDZone, rec.PDPercent, rec.HTFTrend,
		rec.LTFTrend, rec.MTFBias, rec.SetupType, rec.Confluences,
		rec.Confidence, rec.SweepPDHPDL, rec.SweepAsian, rec.SweepSB,
		rec.SweepAMD, rec.Session, rec.IsKillzone, rec.SlippagePips)
	return err
}

func (s *PostgresSink) TradeClose(rec TradeCloseRecord) error {
	if rec.ID == "" {
		rec.ID = NewID()
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trade_closes (id, ticket, symbol, exit_price, exit_time,
			duration_minutes, profit_usd, profit_pips, profit_percent, exit_reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		rec.ID, rec.Ticket, rec.Symbol, rec.ExitPrice, rec.ExitTime,
		rec.DurationMin, rec.ProfitUSD, rec.ProfitPips, rec.ProfitPercent,
		rec.ExitReason)
	return err
}

// Close releases the connection pool.
func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
