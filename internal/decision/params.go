// Package decision scores cameras from smoothed telemetry and decides when
// the live feed should cut.
package decision

import (
	"fmt"
	"time"

	"github.com/aura-webinar/autoswitch/internal/models"
)

// Params are the sensitivity-derived switching thresholds.
type Params struct {
	Dwell            time.Duration `json:"dwell"`
	AudioThreshold   float64       `json:"audio_threshold"`
	HysteresisMargin float64       `json:"hysteresis_margin"`
}

// Preset maps a sensitivity name to its parameters.
func Preset(s models.Sensitivity) (Params, error) {
	switch s {
	case models.SensitivityHigh:
		return Params{Dwell: 500 * time.Millisecond, AudioThreshold: 0.05, HysteresisMargin: 0.05}, nil
	case models.SensitivityNormal:
		return Params{Dwell: time.Second, AudioThreshold: 0.10, HysteresisMargin: 0.10}, nil
	case models.SensitivityLow:
		return Params{Dwell: 2 * time.Second, AudioThreshold: 0.20, HysteresisMargin: 0.15}, nil
	}
	return Params{}, fmt.Errorf("%w: unknown sensitivity %q", models.ErrInvalidConfiguration, s)
}

// Config holds the engine weights and timers shared by all sensitivities.
type Config struct {
	AudioWeight      float64
	EngagementWeight float64
	// PriorityEpsilon scales the tie-break bonus. Keep it well below any hysteresis margin.
	PriorityEpsilon    float64
	SilenceTimeout     time.Duration
	FallbackCooldown   time.Duration
	FallbackConfidence float64
	// ManualHold pauses automatic switching after a manual cut in hybrid mode.
	ManualHold time.Duration
}

// DefaultConfig returns the weights used by the interview studio.
func DefaultConfig() Config {
	return Config{
		AudioWeight:        0.7,
		EngagementWeight:   0.3,
		PriorityEpsilon:    1e-4,
		SilenceTimeout:     3 * time.Second,
		FallbackCooldown:   3 * time.Second,
		FallbackConfidence: 0.5,
		ManualHold:         10 * time.Second,
	}
}

// Validate rejects weights or timers that cannot produce sane decisions.
func (c Config) Validate() error {
	if c.AudioWeight < 0 || c.EngagementWeight < 0 || c.AudioWeight+c.EngagementWeight == 0 {
		return fmt.Errorf("%w: signal weights must be non-negative and not both zero", models.ErrInvalidConfiguration)
	}
	if c.SilenceTimeout <= 0 {
		return fmt.Errorf("%w: silence timeout must be positive", models.ErrInvalidConfiguration)
	}
	if c.FallbackCooldown < 0 || c.ManualHold < 0 {
		return fmt.Errorf("%w: cooldowns must not be negative", models.ErrInvalidConfiguration)
	}
	if c.FallbackConfidence < 0 || c.FallbackConfidence > 1 {
		return fmt.Errorf("%w: fallback confidence must be within [0,1]", models.ErrInvalidConfiguration)
	}
	return nil
}
