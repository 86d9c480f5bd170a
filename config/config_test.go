package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalYAML = `
general:
  mode: paper
symbols:
  - name: EURUSD
    enabled: true
  - name: GBPUSD
    enabled: false
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 2.0, cfg.Risk.MinRR)
	assert.Equal(t, 1.0, cfg.Risk.RiskPerTrade)
	assert.Equal(t, 60, cfg.Risk.CooldownSameSymbolSec)
	assert.Equal(t, 40.0, cfg.Advanced.HTFAlignmentWeight)
	assert.Equal(t, 30.0, cfg.Advanced.MTFAlignmentWeight)
	assert.Equal(t, 15.0, cfg.Advanced.LTFAlignmentWeight)
	assert.Equal(t, "M15", cfg.Timeframes.LTF)
	assert.Equal(t, "H1", cfg.Timeframes.MTF)
	assert.Equal(t, "H4", cfg.Timeframes.HTF)
	assert.Equal(t, int64(240601), cfg.Broker.MagicNumber)
	assert.Equal(t, 0.15, cfg.Risk.Correlation.MaxExposurePerCurrency)

	eur := cfg.Symbol("EURUSD")
	require.NotNil(t, eur)
	assert.Equal(t, 70.0, eur.MinConfidence)
	assert.Equal(t, 1.0, eur.SLMultiplier)
}

func TestLoadKeepsExplicitValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
general:
  mode: backtest
  cycle_seconds: 30
risk:
  min_rr: 1.5
  max_daily_loss: 3.0
symbols:
  - name: XAUUSD
    enabled: true
    min_confidence: 80
    sl_multiplier: 1.5
`))
	require.NoError(t, err)

	assert.Equal(t, ModeBacktest, cfg.General.Mode)
	assert.Equal(t, 30, cfg.General.CycleSeconds)
	assert.Equal(t, 1.5, cfg.Risk.MinRR)
	assert.Equal(t, 3.0, cfg.Risk.MaxDailyLoss)

	gold := cfg.Symbol("XAUUSD")
	require.NotNil(t, gold)
	assert.Equal(t, 80.0, gold.MinConfidence)
	assert.Equal(t, 1.5, gold.SLMultiplier)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SMC_BROKER_LOGIN", "123456")
	t.Setenv("SMC_BROKER_PASSWORD", "secret")
	t.Setenv("SMC_BROKER_SERVER", "Broker-Demo")
	t.Setenv("SMC_BRIDGE_URL", "ws://127.0.0.1:9900/stream")
	t.Setenv("SMC_JOURNAL_DSN", "postgres://journal")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, int64(123456), cfg.Broker.Login)
	assert.Equal(t, "secret", cfg.Broker.Password)
	assert.Equal(t, "Broker-Demo", cfg.Broker.Server)
	assert.Equal(t, "ws://127.0.0.1:9900/stream", cfg.Broker.BridgeURL)
	assert.Equal(t, "postgres://journal", cfg.Journal.PostgresDSN)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad mode", `
general:
  mode: turbo
symbols:
  - name: EURUSD
    enabled: true
`, "invalid mode"},
		{"no symbols", `
general:
  mode: paper
`, "no symbols"},
		{"duplicate symbol", `
symbols:
  - name: EURUSD
  - name: EURUSD
`, "duplicate"},
		{"force both directions", `
symbols:
  - name: EURUSD
    force_long_only: true
    force_short_only: true
`, "force-long-only"},
		{"min_rr below one", `
risk:
  min_rr: 0.5
symbols:
  - name: EURUSD
`, "min_rr"},
		{"live without bridge", `
general:
  mode: live
symbols:
  - name: EURUSD
`, "bridge_url"},
	}
	t.Setenv("SMC_MODE", "")
	t.Setenv("SMC_BRIDGE_URL", "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestEnabledSymbols(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"EURUSD"}, cfg.EnabledSymbols())
	assert.Nil(t, cfg.Symbol("USDJPY"))
}

func TestLiveConfirmed(t *testing.T) {
	t.Setenv("CONFIRM_LIVE_MODE", "")
	assert.False(t, LiveConfirmed())
	t.Setenv("CONFIRM_LIVE_MODE", "true")
	assert.True(t, LiveConfirmed())
}
