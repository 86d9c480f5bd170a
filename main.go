package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"smc-engine/config"
	"smc-engine/internal/analyzer"
	"smc-engine/internal/api"
	"smc-engine/internal/broker"
	"smc-engine/internal/engine"
	"smc-engine/internal/executor"
	"smc-engine/internal/journal"
	"smc-engine/internal/logging"
	"smc-engine/internal/manager"
	"smc-engine/internal/metrics"
	"smc-engine/internal/news"
	"smc-engine/internal/notify"
	"smc-engine/internal/risk"
	"smc-engine/internal/scoring"
)

const (
	exitOK   = 0
	exitFail = 1 // configuration or safety failure
	exitKill = 2 // terminated while the kill switch was engaged
)

func main() {
	var (
		configPath   string
		profilesPath string
		modeOverride string
		onlySymbols  []string
	)

	exitCode := exitOK

	root := &cobra.Command{
		Use:           "smc-engine",
		Short:         "Automated SMC trading engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := run(configPath, profilesPath, modeOverride, onlySymbols)
			exitCode = code
			return err
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the configuration file")
	root.Flags().StringVar(&profilesPath, "profiles", "", "path to the asset profiles file (built-in defaults when empty)")
	root.Flags().StringVarP(&modeOverride, "mode", "m", "", "override the run mode: live, paper, backtest, visual")
	root.Flags().StringSliceVarP(&onlySymbols, "symbol", "s", nil, "restrict trading to these symbols")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "smc-engine: %v\n", err)
		if exitCode == exitOK {
			exitCode = exitFail
		}
	}
	os.Exit(exitCode)
}

func run(configPath, profilesPath, modeOverride string, onlySymbols []string) (int, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return exitFail, err
	}
	if modeOverride != "" {
		cfg.General.Mode = config.Mode(modeOverride)
		if err := cfg.Validate(); err != nil {
			return exitFail, err
		}
	}
	if len(onlySymbols) > 0 {
		restrictSymbols(cfg, onlySymbols)
		if len(cfg.EnabledSymbols()) == 0 {
			return exitFail, fmt.Errorf("no configured symbol matches %v", onlySymbols)
		}
	}

	profiles := config.DefaultAssetProfiles()
	if profilesPath != "" {
		profiles, err = config.LoadAssetProfiles(profilesPath)
		if err != nil {
			return exitFail, err
		}
	}

	logger := logging.New(logging.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		Output:  cfg.Logging.Output,
	})
	logger.Info().
		Str("mode", string(cfg.General.Mode)).
		Strs("symbols", cfg.EnabledSymbols()).
		Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, cleanup, err := buildClient(ctx, cfg, logger)
	if err != nil {
		return exitFail, err
	}
	defer cleanup()

	store, err := buildCooldownStore(cfg)
	if err != nil {
		return exitFail, err
	}

	sink, err := buildJournal(ctx, cfg)
	if err != nil {
		return exitFail, err
	}
	defer sink.Close()

	var nf news.Filter = news.NoopFilter{}
	if cfg.Filters.News.Enabled {
		nf = news.NewStaticCalendar(nil)
	}

	met := metrics.New()
	notifier := notify.NewLogNotifier(logger)
	riskCtl := risk.NewController(cfg, store, nf, logger)
	an := analyzer.New(cfg, profiles, logger)
	scorer := scoring.NewEngine(cfg, logger)
	exec := executor.New(client, logger)
	mgr := manager.New(client, exec, cfg, profiles, nf, logger)
	sup := engine.New(cfg, profiles, client, an, scorer, riskCtl, exec, mgr, sink, notifier, met, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sup.Run(ctx)
	})
	if cfg.API.Enabled {
		srv := api.New(cfg, riskCtl, client, sup.Stages, mgr.ManagedCount, logger)
		g.Go(func() error {
			return srv.Run(ctx)
		})
	}

	err = g.Wait()
	if err != nil && err != context.Canceled {
		return exitFail, err
	}

	if halted, reason := riskCtl.Halted(); halted {
		logger.Warn().Str("reason", reason).Msg("stopped with kill switch engaged")
		return exitKill, nil
	}
	logger.Info().Msg("stopped")
	return exitOK, nil
}

// buildClient selects the broker backend for the run mode. Live mode
// demands the explicit confirmation variable and a trade-enabled
// account before a single order can leave the process.
func buildClient(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (broker.Client, func(), error) {
	noop := func() {}

	switch cfg.General.Mode {
	case config.ModeLive:
		if !config.LiveConfirmed() {
			return nil, noop, fmt.Errorf("live mode requires CONFIRM_LIVE_MODE=true")
		}
		if cfg.Broker.Login == 0 || cfg.Broker.Password == "" {
			return nil, noop, fmt.Errorf("live mode requires SMC_BROKER_LOGIN and SMC_BROKER_PASSWORD")
		}
		bridge := broker.NewBridgeClient(cfg.Broker.BridgeURL, cfg.Broker.Login, cfg.Broker.Server, logger)
		client := broker.NewGuardedClient(bridge, cfg.BrokerTimeout(), logger)

		checkCtx, cancel := context.WithTimeout(ctx, cfg.BrokerTimeout())
		defer cancel()
		account, err := client.AccountInfo(checkCtx)
		if err != nil {
			bridge.Shutdown()
			return nil, noop, fmt.Errorf("verifying live account: %w", err)
		}
		if !account.TradeAllowed || !account.TradeAlgoAllowed {
			bridge.Shutdown()
			return nil, noop, fmt.Errorf("account %d does not permit algorithmic trading", account.Login)
		}
		logger.Info().Int64("login", account.Login).Float64("balance", account.Balance).Msg("live account verified")
		return client, bridge.Shutdown, nil

	default:
		// paper, backtest and visual all trade against the simulator;
		// market data comes from the gateway when one is configured.
		var feed broker.Client
		cleanup := noop
		if cfg.Broker.BridgeURL != "" {
			bridge := broker.NewBridgeClient(cfg.Broker.BridgeURL, cfg.Broker.Login, cfg.Broker.Server, logger)
			feed = broker.NewGuardedClient(bridge, cfg.BrokerTimeout(), logger)
			cleanup = bridge.Shutdown
		} else {
			feed = broker.NewSyntheticFeed(time.Now().UnixNano())
			logger.Warn().Msg("no gateway configured, trading on synthetic data")
		}
		return broker.NewPaperClient(feed, cfg.Broker.PaperBalance), cleanup, nil
	}
}

func buildCooldownStore(cfg *config.Config) (risk.CooldownStore, error) {
	if cfg.Redis.Enabled {
		return risk.NewRedisCooldownStore(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	}
	return risk.NewFileCooldownStore(cfg.Risk.CooldownFile)
}

func buildJournal(ctx context.Context, cfg *config.Config) (journal.Sink, error) {
	file, err := journal.NewFileSink(cfg.Journal.Dir, cfg.Journal.Format)
	if err != nil {
		return nil, err
	}
	if cfg.Journal.PostgresDSN == "" {
		return file, nil
	}
	pg, err := journal.NewPostgresSink(ctx, cfg.Journal.PostgresDSN)
	if err != nil {
		file.Close()
		return nil, err
	}
	return journal.NewMultiSink(file, pg), nil
}

func restrictSymbols(cfg *config.Config, only []string) {
	want := make(map[string]bool, len(only))
	for _, s := range only {
		want[s] = true
	}
	for i := range cfg.Symbols {
		if !want[cfg.Symbols[i].Name] {
			cfg.Symbols[i].Enabled = false
		}
	}
}
