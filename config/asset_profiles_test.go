package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultAssetProfiles(t *testing.T) {
	profiles := DefaultAssetProfiles()

	for _, class := range []string{"forex_major", "crypto", "commodity", "indices"} {
		assert.Contains(t, profiles, class)
	}
	fx := profiles["forex_major"]
	assert.Equal(t, 70.0, fx.MinConfidence)
	assert.Equal(t, 1.0, fx.SLMultiplier)
	assert.False(t, fx.AllowCounterTrend)
	assert.True(t, profiles["crypto"].AllowCounterTrend)
}

func TestLoadAssetProfilesMissingFileUsesDefaults(t *testing.T) {
	profiles, err := LoadAssetProfiles(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultAssetProfiles(), profiles)

	profiles, err = LoadAssetProfiles("")
	require.NoError(t, err)
	assert.Equal(t, DefaultAssetProfiles(), profiles)
}

func TestLoadAssetProfilesMergesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
crypto:
  min_confidence_score: 80
  allow_counter_trend: true
exotic:
  lookback: 150
  min_confidence_score: 90
`), 0o644))

	profiles, err := LoadAssetProfiles(path)
	require.NoError(t, err)

	crypto := profiles["crypto"]
	assert.Equal(t, 80.0, crypto.MinConfidence)
	assert.True(t, crypto.AllowCounterTrend)
	// untouched fields keep their defaults
	assert.Equal(t, 300, crypto.Lookback)
	assert.Equal(t, 1.5, crypto.SLMultiplier)

	// unknown classes are added as given
	exotic := profiles["exotic"]
	assert.Equal(t, 150, exotic.Lookback)
	assert.Equal(t, 90.0, exotic.MinConfidence)

	// other classes stay at the defaults
	assert.Equal(t, DefaultAssetProfiles()["forex_major"], profiles["forex_major"])
}

func TestLoadAssetProfilesRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crypto: [not, a, map]"), 0o644))

	_, err := LoadAssetProfiles(path)
	assert.Error(t, err)
}

func TestForClassFallsBackToForex(t *testing.T) {
	profiles := DefaultAssetProfiles()
	assert.Equal(t, profiles["forex_major"], profiles.ForClass("unknown"))
	assert.Equal(t, profiles["crypto"], profiles.ForClass("crypto"))
}
