// Package engine runs the supervisor loop: one analysis cycle per
// symbol per cadence, the position manager on its own cadence, and the
// journaling of every decision.
package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"smc-engine/config"
	"smc-engine/internal/analyzer"
	"smc-engine/internal/broker"
	"smc-engine/internal/executor"
	"smc-engine/internal/journal"
	"smc-engine/internal/manager"
	"smc-engine/internal/metrics"
	"smc-engine/internal/notify"
	"smc-engine/internal/risk"
	"smc-engine/internal/scoring"
	"smc-engine/internal/sequence"
	"smc-engine/internal/sizing"
)

// frame depths per timeframe; the LTF depth comes from the asset
// profile lookback.
const (
	mtfBars   = 120
	htfBars   = 120
	dailyBars = 15
)

// Supervisor owns the per-symbol schedulers and wires the pipeline end
// to end. Per-symbol analysis state is confined to that symbol's
// scheduler slot; shared components guard themselves.
type Supervisor struct {
	cfg      *config.Config
	profiles config.AssetProfiles
	client   broker.Client
	analyzer *analyzer.Analyzer
	scorer   *scoring.Engine
	riskCtl  *risk.Controller
	exec     *executor.Executor
	mgr      *manager.Manager
	sink     journal.Sink
	notifier notify.Notifier
	met      *metrics.Metrics
	logger   zerolog.Logger

	mu       sync.Mutex
	machines map[string]*sequence.Machine
	stages   map[string]string

	instrMu     sync.Mutex
	instruments map[string]broker.Instrument
}

// New wires the supervisor. The manager's close callback is attached
// here so every reconstructed exit reaches the journal and the risk
// controller.
func New(cfg *config.Config, profiles config.AssetProfiles, client broker.Client,
	an *analyzer.Analyzer, scorer *scoring.Engine, riskCtl *risk.Controller,
	exec *executor.Executor, mgr *manager.Manager, sink journal.Sink,
	notifier notify.Notifier, met *metrics.Metrics, logger zerolog.Logger) *Supervisor {

	s := &Supervisor{
		cfg:         cfg,
		profiles:    profiles,
		client:      client,
		analyzer:    an,
		scorer:      scorer,
		riskCtl:     riskCtl,
		exec:        exec,
		mgr:         mgr,
		sink:        sink,
		notifier:    notifier,
		met:         met,
		logger:      logger.With().Str("component", "engine").Logger(),
		machines:    make(map[string]*sequence.Machine),
		stages:      make(map[string]string),
		instruments: make(map[string]broker.Instrument),
	}
	mgr.OnClose = s.onClose
	return s
}

// Stages returns a copy of the per-symbol sequencing stages for the
// status API.
func (s *Supervisor) Stages() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.stages))
	for k, v := range s.stages {
		out[k] = v
	}
	return out
}

// Run drives the schedulers until the context is cancelled. One worker
// per symbol when configured, otherwise a single serial loop.
func (s *Supervisor) Run(ctx context.Context) error {
	symbols := s.cfg.EnabledSymbols()
	if len(symbols) == 0 {
		return fmt.Errorf("no enabled symbols")
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.managerLoop(ctx)
	})

	cycle := time.Duration(s.cfg.General.CycleSeconds) * time.Second
	if s.cfg.General.WorkerPerSymbol {
		for _, symbol := range symbols {
			symbol := symbol
			g.Go(func() error {
				return s.symbolLoop(ctx, symbol, cycle)
			})
		}
	} else {
		g.Go(func() error {
			ticker := time.NewTicker(cycle)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case now := <-ticker.C:
					for _, symbol := range symbols {
						s.cycle(ctx, symbol, now.UTC())
					}
				}
			}
		})
	}

	s.logger.Info().
		Strs("symbols", symbols).
		Bool("worker_per_symbol", s.cfg.General.WorkerPerSymbol).
		Dur("cycle", cycle).
		Msg("supervisor started")

	err := g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

func (s *Supervisor) symbolLoop(ctx context.Context, symbol string, cycle time.Duration) error {
	ticker := time.NewTicker(cycle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.cycle(ctx, symbol, now.UTC())
		}
	}
}

func (s *Supervisor) managerLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(s.cfg.General.ManagerSeconds) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.mgr.Tick(ctx, now.UTC())
			s.met.OpenPositions.Set(float64(s.mgr.ManagedCount()))
			s.met.DailyPnL.Set(s.riskCtl.DailyPnL())
		}
	}
}

// cycle runs one full analysis pass for a symbol: fetch, analyze,
// sequence, score, gate, size, execute, journal.
func (s *Supervisor) cycle(ctx context.Context, symbol string, now time.Time) {
	s.met.Cycles.WithLabelValues(symbol).Inc()

	if halted, reason := s.riskCtl.Halted(); halted {
		s.met.Halted.Set(1)
		s.logger.Debug().Str("symbol", symbol).Str("reason", reason).Msg("cycle skipped, engine halted")
		return
	}
	s.met.Halted.Set(0)

	instr, err := s.instrument(ctx, symbol)
	if err != nil {
		s.met.CycleErrors.WithLabelValues(symbol).Inc()
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("instrument fetch failed")
		return
	}
	tick, err := s.client.CurrentTick(ctx, symbol)
	if err != nil {
		s.met.CycleErrors.WithLabelValues(symbol).Inc()
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("tick fetch failed")
		return
	}
	frames, err := s.fetchFrames(ctx, symbol, instr)
	if err != nil {
		s.met.CycleErrors.WithLabelValues(symbol).Inc()
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("frame fetch failed")
		return
	}

	snap := s.analyzer.Analyze(symbol, frames, tick, instr, now)
	st := s.machine(symbol).Advance(snap)
	s.recordStage(symbol, st.Stage.String())

	sig := s.scorer.Evaluate(snap, st)
	s.journalDecision(snap, sig, now)

	if !sig.Tradable() {
		if sig.Rejection != "" && sig.Rejection != "no directional bias" {
			s.met.Rejections.WithLabelValues(symbol, "scoring").Inc()
		}
		return
	}
	s.met.Signals.WithLabelValues(symbol, string(sig.Quality)).Inc()
	s.met.Confidence.WithLabelValues(symbol).Observe(sig.Confidence)

	s.execute(ctx, snap, st, sig, instr, now)
}

// execute runs the signal through the risk gate, sizing and the order
// path.
func (s *Supervisor) execute(ctx context.Context, snap *analyzer.Snapshot, st *sequence.State,
	sig *scoring.Signal, instr broker.Instrument, now time.Time) {
	symbol := sig.Symbol

	account, err := s.client.AccountInfo(ctx)
	if err != nil {
		s.met.CycleErrors.WithLabelValues(symbol).Inc()
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("account fetch failed")
		return
	}
	positions, err := s.client.Positions(ctx, "")
	if err != nil {
		s.met.CycleErrors.WithLabelValues(symbol).Inc()
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("positions fetch failed")
		return
	}
	mine := positions[:0:0]
	for _, p := range positions {
		if p.MagicNumber == s.cfg.Broker.MagicNumber {
			mine = append(mine, p)
		}
	}

	symCfg := s.cfg.Symbol(symbol)
	riskPct := s.cfg.Risk.RiskPerTrade
	maxLot := 0.0
	if symCfg != nil {
		if symCfg.RiskPercent > 0 {
			riskPct = symCfg.RiskPercent
		}
		maxLot = symCfg.MaxLot
	}

	fixedLot := 0.0
	if s.cfg.Risk.UseFixedLot {
		fixedLot = s.cfg.Risk.FixedLotSize
	}
	lots, err := sizing.Compute(sizing.Request{
		Symbol:        symbol,
		Balance:       account.Balance,
		RiskPercent:   riskPct,
		Entry:         sig.EntryPrice,
		StopLoss:      sig.StopLoss,
		LotMultiplier: sig.LotMultiplier,
		MaxLot:        maxLot,
		FixedLot:      fixedLot,
		Instrument:    instr,
	})
	if err != nil {
		s.met.Rejections.WithLabelValues(symbol, "sizing").Inc()
		s.logger.Info().Err(err).Str("symbol", symbol).Msg("signal dropped at sizing")
		return
	}

	ok, why := s.riskCtl.CheckEntry(symbol, sig.Side(), sig.EntryPrice, lots, sig.Confidence,
		instr.Class, snap.PipSize(), mine, account, now)
	if !ok {
		s.met.Rejections.WithLabelValues(symbol, "risk").Inc()
		s.journalRiskRejection(snap, sig, why, now)
		s.logger.Info().Str("symbol", symbol).Str("reason", why).Msg("signal blocked by risk gate")
		if halted, reason := s.riskCtl.Halted(); halted {
			s.notifier.KillSwitch(reason)
		}
		return
	}

	res, err := s.exec.Place(ctx, executor.Order{
		Symbol:          symbol,
		Side:            sig.Side(),
		SignalEntry:     sig.EntryPrice,
		StopLoss:        sig.StopLoss,
		TakeProfit:      sig.TakeProfit,
		Volume:          lots,
		MaxSlippagePips: snap.Profile.MaxSlippagePips,
		Comment:         fmt.Sprintf("smc %s %s", sig.Quality, st.SweepType),
		MagicNumber:     s.cfg.Broker.MagicNumber,
		Instrument:      instr,
	})
	if err != nil {
		s.met.OrderFailures.WithLabelValues(symbol, string(broker.KindOf(err))).Inc()
		s.logger.Error().Err(err).Str("symbol", symbol).Msg("order failed")
		return
	}

	s.met.Orders.WithLabelValues(symbol).Inc()
	s.riskCtl.MarkTrade(symbol, now)
	s.machine(symbol).Reset(symbol, "trade opened")
	s.recordStage(symbol, sequence.StageNeutral.String())
	s.notifier.SignalTaken(symbol, string(sig.Side()), sig.Confidence, res.Ticket)
	s.journalTradeOpen(snap, st, sig, instr, res, lots, now)
}

// fetchFrames pulls the candle frames one cycle needs, including the
// SMT pair and the intermarket reference when configured.
func (s *Supervisor) fetchFrames(ctx context.Context, symbol string, instr broker.Instrument) (analyzer.Frames, error) {
	profile := s.profiles.ForClass(string(instr.Class))
	lookback := profile.Lookback
	if lookback <= 0 {
		lookback = 200
	}

	var frames analyzer.Frames
	var err error
	frames.LTF, err = s.client.OHLC(ctx, symbol, broker.Timeframe(s.cfg.Timeframes.LTF), lookback)
	if err != nil {
		return frames, fmt.Errorf("ltf: %w", err)
	}
	frames.MTF, err = s.client.OHLC(ctx, symbol, broker.Timeframe(s.cfg.Timeframes.MTF), mtfBars)
	if err != nil {
		return frames, fmt.Errorf("mtf: %w", err)
	}
	frames.HTF, err = s.client.OHLC(ctx, symbol, broker.Timeframe(s.cfg.Timeframes.HTF), htfBars)
	if err != nil {
		return frames, fmt.Errorf("htf: %w", err)
	}
	frames.Daily, err = s.client.OHLC(ctx, symbol, broker.TFD1, dailyBars)
	if err != nil {
		return frames, fmt.Errorf("daily: %w", err)
	}

	// auxiliary frames are best-effort; analysis degrades without them
	if symCfg := s.cfg.Symbol(symbol); symCfg != nil {
		if symCfg.SMTPair != "" {
			frames.Correlated, err = s.client.OHLC(ctx, symCfg.SMTPair, broker.Timeframe(s.cfg.Timeframes.LTF), lookback)
			if err != nil {
				s.logger.Debug().Err(err).Str("symbol", symbol).Str("pair", symCfg.SMTPair).Msg("smt pair unavailable")
				frames.Correlated = nil
			}
		}
		if symCfg.Intermarket != "" {
			frames.Reference, err = s.client.OHLC(ctx, symCfg.Intermarket, broker.Timeframe(s.cfg.Timeframes.MTF), mtfBars)
			if err != nil {
				s.logger.Debug().Err(err).Str("symbol", symbol).Str("reference", symCfg.Intermarket).Msg("intermarket reference unavailable")
				frames.Reference = nil
			}
		}
	}
	return frames, nil
}

func (s *Supervisor) machine(symbol string) *sequence.Machine {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.machines[symbol]
	if !ok {
		m = sequence.New(s.cfg.SMC.ExpirationBars, s.logger)
		s.machines[symbol] = m
	}
	return m
}

func (s *Supervisor) recordStage(symbol, stage string) {
	s.mu.Lock()
	s.stages[symbol] = stage
	s.mu.Unlock()
}

func (s *Supervisor) instrument(ctx context.Context, symbol string) (broker.Instrument, error) {
	s.instrMu.Lock()
	instr, ok := s.instruments[symbol]
	s.instrMu.Unlock()
	if ok {
		return instr, nil
	}
	instr, err := s.client.SymbolInfo(ctx, symbol)
	if err != nil {
		return broker.Instrument{}, err
	}
	s.instrMu.Lock()
	s.instruments[symbol] = instr
	s.instrMu.Unlock()
	return instr, nil
}

// journalDecision writes the per-cycle decision record. A tradable
// signal is provisionally TAKEN; a later risk rejection writes its own
// REJECTED row.
func (s *Supervisor) journalDecision(snap *analyzer.Snapshot, sig *scoring.Signal, now time.Time) {
	decision := journal.DecisionNone
	switch {
	case sig.Tradable():
		decision = journal.DecisionTaken
	case sig.Rejection != "" && sig.Rejection != "no directional bias":
		decision = journal.DecisionRejected
	}

	rec := journal.DecisionRecord{
		ID:              journal.NewID(),
		Timestamp:       now,
		Symbol:          snap.Symbol,
		Decision:        decision,
		Direction:       string(snap.CombinedBias),
		Score:           sig.Confidence,
		RejectionReason: sig.Rejection,
		RSI:             snap.RSI,
		PDZone:          string(snap.PDZone.Zone),
		HTFTrend:        string(snap.HTFTrend),
		LTFTrend:        string(snap.LTFTrend),
		SweepDetected:   snap.Sweep.Detected(),
		SMTSignal:       snap.SMT.Detected,
		Session:         string(snap.Killzone.Zone),
		Confluences:     sig.Reasons,
	}
	if err := s.sink.Decision(rec); err != nil {
		s.logger.Error().Err(err).Str("symbol", snap.Symbol).Msg("decision journal write failed")
	}
}

func (s *Supervisor) journalRiskRejection(snap *analyzer.Snapshot, sig *scoring.Signal, why string, now time.Time) {
	rec := journal.DecisionRecord{
		ID:              journal.NewID(),
		Timestamp:       now,
		Symbol:          snap.Symbol,
		Decision:        journal.DecisionRejected,
		Direction:       string(sig.Kind),
		Score:           sig.Confidence,
		RejectionReason: why,
		RSI:             snap.RSI,
		PDZone:          string(snap.PDZone.Zone),
		HTFTrend:        string(snap.HTFTrend),
		LTFTrend:        string(snap.LTFTrend),
		SweepDetected:   snap.Sweep.Detected(),
		SMTSignal:       snap.SMT.Detected,
		Session:         string(snap.Killzone.Zone),
	}
	if err := s.sink.Decision(rec); err != nil {
		s.logger.Error().Err(err).Str("symbol", snap.Symbol).Msg("decision journal write failed")
	}
}

func (s *Supervisor) journalTradeOpen(snap *analyzer.Snapshot, st *sequence.State, sig *scoring.Signal,
	instr broker.Instrument, res *executor.Result, lots float64, now time.Time) {

	rec := journal.TradeOpenRecord{
		ID:           journal.NewID(),
		Timestamp:    now,
		Ticket:       res.Ticket,
		Symbol:       snap.Symbol,
		Direction:    string(sig.Kind),
		Entry:        res.FillPrice,
		StopLoss:     sig.StopLoss,
		TakeProfit:   sig.TakeProfit,
		Lots:         lots,
		RiskUSD:      sizing.RiskAmount(snap.Symbol, instr, res.FillPrice, sig.StopLoss, lots),
		RR:           sig.RR,
		RSI:          snap.RSI,
		PDZone:       string(snap.PDZone.Zone),
		PDPercent:    snap.PDZone.Percent,
		HTFTrend:     string(snap.HTFTrend),
		LTFTrend:     string(snap.LTFTrend),
		MTFBias:      string(snap.MTFBias),
		SetupType:    string(sig.SetupType),
		Confluences:  sig.Reasons,
		Confidence:   sig.Confidence,
		SweepPDHPDL:  st.SweepType == analyzer.SweepPDHPDL,
		SweepAsian:   st.SweepType == analyzer.SweepAsian,
		SweepSB:      st.SweepType == analyzer.SweepSilverBullet,
		SweepAMD:     st.SweepType == analyzer.SweepAMD,
		Session:      string(snap.Killzone.Zone),
		IsKillzone:   snap.Killzone.Active,
		SlippagePips: math.Abs(res.RealisedSlipPips),
	}
	if err := s.sink.TradeOpen(rec); err != nil {
		s.logger.Error().Err(err).Str("symbol", snap.Symbol).Msg("trade journal write failed")
	}
}

// onClose receives reconstructed exits from the position manager.
func (s *Supervisor) onClose(trade manager.ClosedTrade) {
	s.riskCtl.RecordClose(trade.Symbol, trade.ProfitUSD, trade.ExitTime)
	s.notifier.PositionClosed(trade.Symbol, trade.Ticket, trade.ProfitUSD, trade.ExitReason)
	s.met.DailyPnL.Set(s.riskCtl.DailyPnL())

	rec := journal.TradeCloseRecord{
		ID:            journal.NewID(),
		Ticket:        trade.Ticket,
		Symbol:        trade.Symbol,
		ExitPrice:     trade.ExitPrice,
		ExitTime:      trade.ExitTime,
		DurationMin:   trade.DurationMin,
		ProfitUSD:     trade.ProfitUSD,
		ProfitPips:    trade.ProfitPips,
		ProfitPercent: trade.ProfitPercent,
		ExitReason:    trade.ExitReason,
	}
	if err := s.sink.TradeClose(rec); err != nil {
		s.logger.Error().Err(err).Str("symbol", trade.Symbol).Msg("close journal write failed")
	}
}
