package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AssetProfile carries the per-asset-class detector and guard overrides
// that are merged into each cycle's parameters before the detectors
// run. Profiles never mutate shared detector state; each cycle carries
// its own merged copy.
type AssetProfile struct {
	Lookback          int     `yaml:"lookback"`
	MinWickRatio      float64 `yaml:"min_wick_ratio"`
	MinFVGPips        float64 `yaml:"min_fvg_pips"`
	AllowCounterTrend bool    `yaml:"allow_counter_trend"`
	MinConfidence     float64 `yaml:"min_confidence_score"`
	MinBreakPips      float64 `yaml:"min_break_pips"`       // CHOCH magnitude floor
	InvalidationPips  float64 `yaml:"invalidation_pips"`    // sweep invalidation buffer
	MaxSpreadAbs      float64 `yaml:"max_spread_abs"`       // absolute spread cap, pips or quote units
	MaxSlippagePips   float64 `yaml:"max_slippage_pips"`
	SLMultiplier      float64 `yaml:"sl_multiplier"`
	BreakEvenRR       float64 `yaml:"break_even_trigger_rr"`
}

// AssetProfiles maps asset class name to its profile
type AssetProfiles map[string]AssetProfile

// DefaultAssetProfiles returns the built-in per-class parameters. A
// profiles file overrides individual classes.
func DefaultAssetProfiles() AssetProfiles {
	return AssetProfiles{
		"forex_major": {
			Lookback:          200,
			MinWickRatio:      1.5,
			MinFVGPips:        2.0,
			AllowCounterTrend: false,
			MinConfidence:     70,
			MinBreakPips:      0.5,
			InvalidationPips:  15,
			MaxSpreadAbs:      5,
			MaxSlippagePips:   5,
			SLMultiplier:      1.0,
			BreakEvenRR:       1.5,
		},
		"crypto": {
			Lookback:          300,
			MinWickRatio:      1.2,
			MinFVGPips:        10.0,
			AllowCounterTrend: true,
			MinConfidence:     75,
			MinBreakPips:      5.0,
			InvalidationPips:  50,
			MaxSpreadAbs:      5000,
			MaxSlippagePips:   1000,
			SLMultiplier:      1.5,
			BreakEvenRR:       1.0,
		},
		"commodity": {
			Lookback:          200,
			MinWickRatio:      1.5,
			MinFVGPips:        3.0,
			AllowCounterTrend: false,
			MinConfidence:     70,
			MinBreakPips:      2.5,
			InvalidationPips:  50,
			MaxSpreadAbs:      80,
			MaxSlippagePips:   10,
			SLMultiplier:      1.5,
			BreakEvenRR:       1.5,
		},
		"indices": {
			Lookback:          200,
			MinWickRatio:      1.3,
			MinFVGPips:        5.0,
			AllowCounterTrend: false,
			MinConfidence:     70,
			MinBreakPips:      2.5,
			InvalidationPips:  30,
			MaxSpreadAbs:      100,
			MaxSlippagePips:   20,
			SLMultiplier:      1.2,
			BreakEvenRR:       1.5,
		},
	}
}

// LoadAssetProfiles merges a YAML profiles file over the defaults.
// A missing file is not an error; the defaults apply.
func LoadAssetProfiles(path string) (AssetProfiles, error) {
	profiles := DefaultAssetProfiles()
	if path == "" {
		return profiles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return profiles, nil
		}
		return nil, fmt.Errorf("reading asset profiles: %w", err)
	}

	overrides := AssetProfiles{}
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parsing asset profiles: %w", err)
	}

	for class, p := range overrides {
		base, ok := profiles[class]
		if !ok {
			profiles[class] = p
			continue
		}
		if p.Lookback != 0 {
			base.Lookback = p.Lookback
		}
		if p.MinWickRatio != 0 {
			base.MinWickRatio = p.MinWickRatio
		}
		if p.MinFVGPips != 0 {
			base.MinFVGPips = p.MinFVGPips
		}
		if p.MinConfidence != 0 {
			base.MinConfidence = p.MinConfidence
		}
		if p.MinBreakPips != 0 {
			base.MinBreakPips = p.MinBreakPips
		}
		if p.InvalidationPips != 0 {
			base.InvalidationPips = p.InvalidationPips
		}
		if p.MaxSpreadAbs != 0 {
			base.MaxSpreadAbs = p.MaxSpreadAbs
		}
		if p.MaxSlippagePips != 0 {
			base.MaxSlippagePips = p.MaxSlippagePips
		}
		if p.SLMultiplier != 0 {
			base.SLMultiplier = p.SLMultiplier
		}
		if p.BreakEvenRR != 0 {
			base.BreakEvenRR = p.BreakEvenRR
		}
		base.AllowCounterTrend = p.AllowCounterTrend
		profiles[class] = base
	}
	return profiles, nil
}

// ForClass returns the profile for an asset class, falling back to the
// forex_major profile for unknown classes.
func (ap AssetProfiles) ForClass(class string) AssetProfile {
	if p, ok := ap[class]; ok {
		return p
	}
	return ap["forex_major"]
}
