// Package api serves the read-only status endpoints. The engine is
// never driven through HTTP; everything here is observation.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"smc-engine/config"
	"smc-engine/internal/broker"
	"smc-engine/internal/risk"
)

// Server exposes the engine state over HTTP
type Server struct {
	cfg     *config.Config
	ctl     *risk.Controller
	client  broker.Client
	stages  func() map[string]string
	managed func() int
	logger  zerolog.Logger
	srv     *http.Server
}

// New builds the status server. stages and managed are snapshot
// callbacks supplied by the engine.
func New(cfg *config.Config, ctl *risk.Controller, client broker.Client,
	stages func() map[string]string, managed func() int, logger zerolog.Logger) *Server {

	s := &Server{
		cfg:     cfg,
		ctl:     ctl,
		client:  client,
		stages:  stages,
		managed: managed,
		logger:  logger.With().Str("component", "api").Logger(),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	router.GET("/healthz", s.health)
	router.GET("/api/status", s.status)
	router.GET("/api/positions", s.positions)
	router.GET("/api/sequence", s.sequence)
	router.GET("/api/config", s.configSummary)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.srv = &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until the context is cancelled, then drains.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.srv.Addr).Msg("status server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) status(c *gin.Context) {
	halted, reason := s.ctl.Halted()
	c.JSON(http.StatusOK, gin.H{
		"mode":        s.cfg.General.Mode,
		"halted":      halted,
		"halt_reason": reason,
		"daily_pnl":   s.ctl.DailyPnL(),
		"managed":     s.managed(),
		"symbols":     s.cfg.EnabledSymbols(),
	})
}

func (s *Server) positions(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	positions, err := s.client.Positions(ctx, "")
	if err != nil {
		s.logger.Warn().Err(err).Msg("positions fetch failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "broker unavailable"})
		return
	}
	c.JSON(http.StatusOK, positions)
}

func (s *Server) sequence(c *gin.Context) {
	c.JSON(http.StatusOK, s.stages())
}

// configSummary exposes the non-sensitive configuration. Credentials
// never appear here; they are not even held on the config struct fields
// that serialize.
func (s *Server) configSummary(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"mode":           s.cfg.General.Mode,
		"cycle_seconds":  s.cfg.General.CycleSeconds,
		"timeframes":     s.cfg.Timeframes,
		"risk_per_trade": s.cfg.Risk.RiskPerTrade,
		"max_daily_loss": s.cfg.Risk.MaxDailyLoss,
		"min_rr":         s.cfg.Risk.MinRR,
		"max_open":       s.cfg.Risk.MaxOpenTrades,
		"symbols":        s.cfg.Symbols,
	})
}
