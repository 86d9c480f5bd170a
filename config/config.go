// Package config loads and validates the engine configuration from a
// YAML file with environment overrides for credentials and mode flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode selects who drives the cycle cadence and which broker backs it
type Mode string

const (
	ModeLive     Mode = "live"
	ModePaper    Mode = "paper"
	ModeBacktest Mode = "backtest"
	ModeVisual   Mode = "visual"
)

// Config is the full configuration surface consumed at startup
type Config struct {
	General    GeneralConfig    `yaml:"general"`
	Broker     BrokerConfig     `yaml:"broker"`
	Timeframes TimeframesConfig `yaml:"timeframes"`
	Symbols    []SymbolConfig   `yaml:"symbols"`
	SMC        SMCConfig        `yaml:"smc"`
	Risk       RiskConfig       `yaml:"risk"`
	Filters    FiltersConfig    `yaml:"filters"`
	Advanced   AdvancedConfig   `yaml:"advanced_filters"`
	Journal    JournalConfig    `yaml:"journal"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Redis      RedisConfig      `yaml:"redis"`
}

// GeneralConfig holds the run mode and cadence
type GeneralConfig struct {
	Mode            Mode `yaml:"mode"`
	CycleSeconds    int  `yaml:"cycle_seconds"`     // analysis cadence per symbol
	ManagerSeconds  int  `yaml:"manager_seconds"`   // position manager cadence
	WorkerPerSymbol bool `yaml:"worker_per_symbol"` // one goroutine per symbol vs serial loop
}

// BrokerConfig holds connection settings. Credentials are opaque to the
// core and come from the environment.
type BrokerConfig struct {
	BridgeURL      string  `yaml:"bridge_url"` // websocket gateway for live mode
	Login          int64   `yaml:"-"`
	Password       string  `yaml:"-"`
	Server         string  `yaml:"server"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	MagicNumber    int64   `yaml:"magic_number"`
	PaperBalance   float64 `yaml:"paper_balance"`
}

// TimeframesConfig names the three analysis timeframes
type TimeframesConfig struct {
	LTF string `yaml:"ltf"`
	MTF string `yaml:"mtf"`
	HTF string `yaml:"htf"`
}

// StrategiesConfig toggles the per-symbol setup detectors
type StrategiesConfig struct {
	PDHPDLSweep    bool `yaml:"pdh_pdl_sweep"`
	AsianRangeSweep bool `yaml:"asian_range_sweep"`
	FVGEntry       bool `yaml:"fvg_entry"`
	SilverBullet   bool `yaml:"silver_bullet"`
	AMD            bool `yaml:"amd"`
	SMT            bool `yaml:"smt"`
}

// SymbolConfig is the per-symbol trading configuration
type SymbolConfig struct {
	Name               string           `yaml:"name"`
	Enabled            bool             `yaml:"enabled"`
	Strategies         StrategiesConfig `yaml:"strategies"`
	ConfluenceRequired int              `yaml:"confluence_required"`
	MinConfidence      float64          `yaml:"min_confidence"`
	RiskPercent        float64          `yaml:"risk_percent"`     // override, 0 = global
	MaxLot             float64          `yaml:"max_lot"`          // 0 = broker max
	SLMultiplier       float64          `yaml:"sl_multiplier"`    // widens structural SL, 0 = 1.0
	ForceLongOnly      bool             `yaml:"force_long_only"`
	ForceShortOnly     bool             `yaml:"force_short_only"`
	BlockMTFConflict   bool             `yaml:"block_mtf_conflict"`
	GoldenSetupOnly    bool             `yaml:"golden_setup_only"`
	SMTPair            string           `yaml:"smt_pair"`         // correlated symbol for SMT
	Intermarket        string           `yaml:"intermarket"`      // DXY-type reference symbol
}

// SMCConfig holds the detector parameters
type SMCConfig struct {
	SwingStrength     int     `yaml:"swing_strength"`
	MinImpulsePips    float64 `yaml:"min_impulse_pips"`
	MinImbalanceRatio float64 `yaml:"min_imbalance_ratio"`
	MinGapPips        float64 `yaml:"min_gap_pips"`
	MaxAgeBars        int     `yaml:"max_age_bars"`
	MaxStructureAge   int     `yaml:"max_structure_age"`
	EqualLevelPips    float64 `yaml:"equal_level_pips"`
	EquilibriumBuffer float64 `yaml:"equilibrium_buffer"` // fraction of range
	OTEFibLow         float64 `yaml:"ote_fib_low"`
	OTEFibHigh        float64 `yaml:"ote_fib_high"`
	AsianStartHour    int     `yaml:"asian_start_hour"` // UTC
	AsianEndHour      int     `yaml:"asian_end_hour"`
	AsianBufferPips   float64 `yaml:"asian_buffer_pips"`
	PrevDayBufferPips float64 `yaml:"prev_day_buffer_pips"`
	SweepPendingBars  int     `yaml:"sweep_pending_bars"` // Asian pending-sweep window
	ExpirationBars    int     `yaml:"expiration_bars"`    // state machine timeout
}

// CorrelationGroupConfig overrides a static correlation group
type CorrelationGroupConfig struct {
	Name     string   `yaml:"name"`
	Symbols  []string `yaml:"symbols"`
	Positive bool     `yaml:"positive"`
}

// CorrelationConfig configures the correlation guard
type CorrelationConfig struct {
	MaxExposurePerCurrency float64                  `yaml:"max_exposure_per_currency"`
	MaxPositionsPerGroup   int                      `yaml:"max_positions_per_group"`
	Groups                 []CorrelationGroupConfig `yaml:"correlation_groups"`
}

// RiskConfig holds the risk and exposure limits
type RiskConfig struct {
	RiskPerTrade          float64           `yaml:"risk_per_trade"` // percent
	UseFixedLot           bool              `yaml:"use_fixed_lot"`
	FixedLotSize          float64           `yaml:"fixed_lot_size"`
	MaxDailyLoss          float64           `yaml:"max_daily_loss"` // percent
	MaxConsecutiveLosses  int               `yaml:"max_consecutive_losses"`
	MaxTradesPerDay       int               `yaml:"max_trades_per_day"`
	MaxOpenTrades         int               `yaml:"max_open_trades"`
	MinRR                 float64           `yaml:"min_rr"`
	CooldownSameSymbolSec int               `yaml:"cooldown_same_symbol_seconds"`
	MinStackingTimeSec    int               `yaml:"min_stacking_time_seconds"`
	MinStackingDistPips   float64           `yaml:"min_stacking_distance_pips"`
	LunchBreakFilter      bool              `yaml:"lunch_break_filter"`
	ImpulsiveRegimeFilter bool              `yaml:"impulsive_regime_filter"`
	WeekendForceClose     bool              `yaml:"weekend_force_close"`
	CooldownFile          string            `yaml:"cooldown_file"`
	Correlation           CorrelationConfig `yaml:"correlation_guard"`
}

// KillzonesConfig toggles the session windows
type KillzonesConfig struct {
	Enabled        bool `yaml:"enabled"`
	TimezoneOffset int  `yaml:"timezone_offset"`
}

// NewsConfig configures the news blackout filter
type NewsConfig struct {
	Enabled          bool `yaml:"enabled"`
	PauseBeforeMin   int  `yaml:"pause_before"`
	EmergencyExit    bool `yaml:"emergency_exit"`
	ExitMinutesBefore int `yaml:"exit_minutes_before"`
}

// FiltersConfig groups session and news filters
type FiltersConfig struct {
	Killzones KillzonesConfig `yaml:"killzones"`
	News      NewsConfig      `yaml:"news"`
}

// AdvancedConfig holds the secondary filters
type AdvancedConfig struct {
	ADXFilterEnabled   bool    `yaml:"adx_filter_enabled"`
	MinADX             float64 `yaml:"min_adx"`
	AllowCounterTrend  bool    `yaml:"allow_counter_trend"`
	HTFAlignmentWeight float64 `yaml:"htf_alignment_weight"`
	LTFAlignmentWeight float64 `yaml:"ltf_alignment_weight"`
	MTFAlignmentWeight float64 `yaml:"mtf_alignment_weight"`
	RSIExtremeLow      float64 `yaml:"rsi_extreme_low"`
	RSIExtremeHigh     float64 `yaml:"rsi_extreme_high"`
	BreakEvenTriggerRR float64 `yaml:"break_even_trigger_rr"`
	BreakEvenOffsetPips float64 `yaml:"break_even_offset_pips"`
	PartialTargetRR    float64 `yaml:"partial_first_target_rr"`
	PartialClosePct    float64 `yaml:"partial_close_percent"`
	TrailingMode       string  `yaml:"trailing_mode"` // "fixed" or "structure"
	TrailingTriggerRR  float64 `yaml:"trailing_trigger_rr"`
	TrailingDistPips   float64 `yaml:"trailing_distance_pips"`
}

// JournalConfig configures the decision and trade sinks
type JournalConfig struct {
	Dir         string `yaml:"dir"`
	Format      string `yaml:"format"` // "csv" or "jsonl"
	PostgresDSN string `yaml:"-"`      // from SMC_JOURNAL_DSN
}

// LoggingConfig mirrors the logging package config
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
	Output  string `yaml:"output"`
}

// APIConfig configures the read-only status HTTP server
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// RedisConfig enables the shared cooldown store
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"-"`
	DB       int    `yaml:"db"`
}

// Load reads the YAML config file, applies defaults and environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.General.Mode == "" {
		c.General.Mode = ModePaper
	}
	if c.General.CycleSeconds == 0 {
		c.General.CycleSeconds = 1
	}
	if c.General.ManagerSeconds == 0 {
		c.General.ManagerSeconds = 1
	}
	if c.Broker.TimeoutSeconds == 0 {
		c.Broker.TimeoutSeconds = 10
	}
	if c.Broker.MagicNumber == 0 {
		c.Broker.MagicNumber = 240601
	}
	if c.Broker.PaperBalance == 0 {
		c.Broker.PaperBalance = 10000
	}
	if c.Timeframes.LTF == "" {
		c.Timeframes.LTF = "M15"
	}
	if c.Timeframes.MTF == "" {
		c.Timeframes.MTF = "H1"
	}
	if c.Timeframes.HTF == "" {
		c.Timeframes.HTF = "H4"
	}

	s := &c.SMC
	if s.SwingStrength == 0 {
		s.SwingStrength = 5
	}
	if s.MinImbalanceRatio == 0 {
		s.MinImbalanceRatio = 1.5
	}
	if s.MinGapPips == 0 {
		s.MinGapPips = 2.0
	}
	if s.MaxAgeBars == 0 {
		s.MaxAgeBars = 100
	}
	if s.MaxStructureAge == 0 {
		s.MaxStructureAge = 50
	}
	if s.EqualLevelPips == 0 {
		s.EqualLevelPips = 3.0
	}
	if s.EquilibriumBuffer == 0 {
		s.EquilibriumBuffer = 0.05
	}
	if s.OTEFibLow == 0 {
		s.OTEFibLow = 0.618
	}
	if s.OTEFibHigh == 0 {
		s.OTEFibHigh = 0.786
	}
	if s.AsianEndHour == 0 {
		s.AsianEndHour = 7
	}
	if s.AsianBufferPips == 0 {
		s.AsianBufferPips = 2.0
	}
	if s.PrevDayBufferPips == 0 {
		s.PrevDayBufferPips = 3.0
	}
	if s.SweepPendingBars == 0 {
		s.SweepPendingBars = 12
	}
	if s.ExpirationBars == 0 {
		s.ExpirationBars = 60
	}

	r := &c.Risk
	if r.RiskPerTrade == 0 {
		r.RiskPerTrade = 1.0
	}
	if r.MaxDailyLoss == 0 {
		r.MaxDailyLoss = 2.0
	}
	if r.MaxConsecutiveLosses == 0 {
		r.MaxConsecutiveLosses = 3
	}
	if r.MaxTradesPerDay == 0 {
		r.MaxTradesPerDay = 10
	}
	if r.MaxOpenTrades == 0 {
		r.MaxOpenTrades = 5
	}
	if r.MinRR == 0 {
		r.MinRR = 2.0
	}
	if r.CooldownSameSymbolSec == 0 {
		r.CooldownSameSymbolSec = 60
	}
	if r.MinStackingTimeSec == 0 {
		r.MinStackingTimeSec = 300
	}
	if r.MinStackingDistPips == 0 {
		r.MinStackingDistPips = 15
	}
	if r.CooldownFile == "" {
		r.CooldownFile = "last_trades.json"
	}
	if r.Correlation.MaxExposurePerCurrency == 0 {
		r.Correlation.MaxExposurePerCurrency = 0.15
	}
	if r.Correlation.MaxPositionsPerGroup == 0 {
		r.Correlation.MaxPositionsPerGroup = 2
	}

	a := &c.Advanced
	if a.MinADX == 0 {
		a.MinADX = 25
	}
	if a.HTFAlignmentWeight == 0 {
		a.HTFAlignmentWeight = 40
	}
	if a.MTFAlignmentWeight == 0 {
		a.MTFAlignmentWeight = 30
	}
	if a.LTFAlignmentWeight == 0 {
		a.LTFAlignmentWeight = 15
	}
	if a.RSIExtremeLow == 0 {
		a.RSIExtremeLow = 25
	}
	if a.RSIExtremeHigh == 0 {
		a.RSIExtremeHigh = 75
	}
	if a.BreakEvenTriggerRR == 0 {
		a.BreakEvenTriggerRR = 1.5
	}
	if a.BreakEvenOffsetPips == 0 {
		a.BreakEvenOffsetPips = 1.0
	}
	if a.PartialTargetRR == 0 {
		a.PartialTargetRR = 2.0
	}
	if a.PartialClosePct == 0 {
		a.PartialClosePct = 50
	}
	if a.TrailingMode == "" {
		a.TrailingMode = "fixed"
	}
	if a.TrailingTriggerRR == 0 {
		a.TrailingTriggerRR = 2.0
	}
	if a.TrailingDistPips == 0 {
		a.TrailingDistPips = 15
	}

	if c.Filters.News.ExitMinutesBefore == 0 {
		c.Filters.News.ExitMinutesBefore = 15
	}
	if c.Filters.News.PauseBeforeMin == 0 {
		c.Filters.News.PauseBeforeMin = 30
	}
	if c.Journal.Dir == "" {
		c.Journal.Dir = "journal"
	}
	if c.Journal.Format == "" {
		c.Journal.Format = "csv"
	}
	if c.API.Addr == "" {
		c.API.Addr = "127.0.0.1:8742"
	}

	for i := range c.Symbols {
		sym := &c.Symbols[i]
		if sym.MinConfidence == 0 {
			sym.MinConfidence = 70
		}
		if sym.SLMultiplier == 0 {
			sym.SLMultiplier = 1.0
		}
	}
}

// applyEnvOverrides applies environment variables; credentials are only
// ever read from the environment, never from the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SMC_MODE"); v != "" {
		c.General.Mode = Mode(v)
	}
	if v := os.Getenv("SMC_BROKER_LOGIN"); v != "" {
		if login, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Broker.Login = login
		}
	}
	c.Broker.Password = os.Getenv("SMC_BROKER_PASSWORD")
	if v := os.Getenv("SMC_BROKER_SERVER"); v != "" {
		c.Broker.Server = v
	}
	if v := os.Getenv("SMC_BRIDGE_URL"); v != "" {
		c.Broker.BridgeURL = v
	}
	c.Journal.PostgresDSN = os.Getenv("SMC_JOURNAL_DSN")
	c.Redis.Password = os.Getenv("SMC_REDIS_PASSWORD")
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// LiveConfirmed reports whether live trading has been explicitly
// confirmed through the environment.
func LiveConfirmed() bool {
	return os.Getenv("CONFIRM_LIVE_MODE") == "true"
}

// Validate returns a ConfigurationError-style failure for invalid or
// missing settings. Fatal at startup.
func (c *Config) Validate() error {
	switch c.General.Mode {
	case ModeLive, ModePaper, ModeBacktest, ModeVisual:
	default:
		return fmt.Errorf("configuration: invalid mode %q", c.General.Mode)
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("configuration: no symbols configured")
	}
	seen := make(map[string]bool, len(c.Symbols))
	for _, s := range c.Symbols {
		if s.Name == "" {
			return fmt.Errorf("configuration: symbol with empty name")
		}
		if seen[s.Name] {
			return fmt.Errorf("configuration: duplicate symbol %s", s.Name)
		}
		seen[s.Name] = true
		if s.ForceLongOnly && s.ForceShortOnly {
			return fmt.Errorf("configuration: %s is both force-long-only and force-short-only", s.Name)
		}
	}
	if c.Risk.RiskPerTrade <= 0 || c.Risk.RiskPerTrade > 5 {
		return fmt.Errorf("configuration: risk_per_trade %.2f outside (0, 5]", c.Risk.RiskPerTrade)
	}
	if c.Risk.MinRR < 1 {
		return fmt.Errorf("configuration: min_rr %.2f below 1.0", c.Risk.MinRR)
	}
	if c.General.Mode == ModeLive && c.Broker.BridgeURL == "" {
		return fmt.Errorf("configuration: live mode requires broker.bridge_url")
	}
	return nil
}

// Symbol returns the configuration for a symbol name, or nil.
func (c *Config) Symbol(name string) *SymbolConfig {
	for i := range c.Symbols {
		if c.Symbols[i].Name == name {
			return &c.Symbols[i]
		}
	}
	return nil
}

// EnabledSymbols returns the names of all enabled symbols.
func (c *Config) EnabledSymbols() []string {
	var names []string
	for _, s := range c.Symbols {
		if s.Enabled {
			names = append(names, s.Name)
		}
	}
	return names
}

// BrokerTimeout returns the per-call broker deadline.
func (c *Config) BrokerTimeout() time.Duration {
	return time.Duration(c.Broker.TimeoutSeconds) * time.Second
}
