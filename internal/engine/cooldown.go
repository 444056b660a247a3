package engine

import (
	"time"
)

// CooldownConfig tunes the dynamic inter-scaling interval.
type CooldownConfig struct {
	Base time.Duration `mapstructure:"base"`

	// Stability score step sizes and bounds. The score moves by at most
	// one bounded increment per tick, never jumps.
	ChurnWindow    time.Duration `mapstructure:"churn_window"`
	ChurnHigh      int           `mapstructure:"churn_high"`
	ChurnLow       int           `mapstructure:"churn_low"`
	StabilityFloor float64       `mapstructure:"stability_floor"`
}

// DefaultCooldownConfig returns the reference cooldown tuning.
func DefaultCooldownConfig() CooldownConfig {
	return CooldownConfig{
		Base:           90 * time.Second,
		ChurnWindow:    10 * time.Minute,
		ChurnHigh:      8,
		ChurnLow:       2,
		StabilityFloor: 0.2,
	}
}

// CooldownController derives per-service minimum inter-scaling intervals
// from system stability, service score and contention state, and tracks
// the system-wide stability score from recent scaling churn.
type CooldownController struct {
	cfg       CooldownConfig
	stability float64

	lastScale map[string]time.Time
	actions   []time.Time
}

// NewCooldownController starts fully stable.
func NewCooldownController(cfg CooldownConfig) *CooldownController {
	return &CooldownController{
		cfg:       cfg,
		stability: 1.0,
		lastScale: make(map[string]time.Time),
	}
}

// Stability returns the current system stability score in [floor, 1].
func (c *CooldownController) Stability() float64 { return c.stability }

// Duration computes the dynamic cooldown for one service this tick.
func (c *CooldownController) Duration(score float64, contention Contention) time.Duration {
	multiplier := 1.0

	switch {
	case c.stability < 0.4:
		multiplier *= 2.0
	case c.stability > 0.8:
		multiplier *= 0.6
	}

	switch {
	case score < 30:
		// Poor performers get corrected faster.
		multiplier *= 0.7
	case score > 80:
		// Good performers are not worth destabilizing.
		multiplier *= 1.5
	}

	switch contention {
	case ContentionPowerPressure:
		multiplier *= 1.8
	case ContentionOverprovision:
		multiplier *= 0.5
	}

	return time.Duration(float64(c.cfg.Base) * multiplier)
}

// InCooldown reports whether a service is still inside its dynamic
// cooldown, and how much of it remains.
func (c *CooldownController) InCooldown(service string, now time.Time, d time.Duration) (bool, time.Duration) {
	last, ok := c.lastScale[service]
	if !ok {
		return false, 0
	}
	elapsed := now.Sub(last)
	if elapsed < d {
		return true, d - elapsed
	}
	return false, 0
}

// MarkScaled records a successful scaling action for a service. Failed
// actuations must not be recorded: the cooldown is not consumed and the
// trigger stays eligible for retry next tick.
func (c *CooldownController) MarkScaled(service string, at time.Time) {
	c.lastScale[service] = at
	c.actions = append(c.actions, at)
}

// Tick updates the stability score once per tick from scaling churn in the
// trailing window: heavy churn erodes stability by 0.1 down to the floor,
// a quiet window restores it by 0.05 up to 1.0.
func (c *CooldownController) Tick(now time.Time) {
	cutoff := now.Add(-c.cfg.ChurnWindow)
	kept := c.actions[:0]
	for _, at := range c.actions {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	c.actions = kept

	switch n := len(c.actions); {
	case n > c.cfg.ChurnHigh:
		c.stability -= 0.1
		if c.stability < c.cfg.StabilityFloor {
			c.stability = c.cfg.StabilityFloor
		}
	case n < c.cfg.ChurnLow:
		c.stability += 0.05
		if c.stability > 1.0 {
			c.stability = 1.0
		}
	}
}
