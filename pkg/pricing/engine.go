// Package pricing quotes licensed stem prices from a fixed multiplier
// schedule.
package pricing

import (
	"fmt"
	"math"
)

// License types accepted by the quote engine.
const (
	LicensePersonal   = "personal"
	LicenseRemix      = "remix"
	LicenseCommercial = "commercial"
)

// Config holds the quote schedule.
type Config struct {
	BaseUSD         float64 `json:"base_usd" mapstructure:"base_usd"`
	FloorUSD        float64 `json:"floor_usd" mapstructure:"floor_usd"`
	CeilingUSD      float64 `json:"ceiling_usd" mapstructure:"ceiling_usd"`
	VolumeThreshold int     `json:"volume_threshold" mapstructure:"volume_threshold"`
	VolumeDiscount  float64 `json:"volume_discount" mapstructure:"volume_discount"`
}

// DefaultConfig returns the reference schedule.
func DefaultConfig() Config {
	return Config{
		BaseUSD:         0.02,
		FloorUSD:        0.01,
		CeilingUSD:      50.0,
		VolumeThreshold: 10,
		VolumeDiscount:  0.10,
	}
}

// Engine computes quotes. Stateless and safe for concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine creates a quote engine, falling back to defaults for zero fields.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.BaseUSD <= 0 {
		cfg.BaseUSD = def.BaseUSD
	}
	if cfg.FloorUSD <= 0 {
		cfg.FloorUSD = def.FloorUSD
	}
	if cfg.CeilingUSD <= 0 {
		cfg.CeilingUSD = def.CeilingUSD
	}
	if cfg.VolumeThreshold <= 0 {
		cfg.VolumeThreshold = def.VolumeThreshold
	}
	if cfg.VolumeDiscount <= 0 {
		cfg.VolumeDiscount = def.VolumeDiscount
	}
	return &Engine{cfg: cfg}
}

// Multiplier returns the license multiplier, or an error for unknown types.
func Multiplier(licenseType string) (float64, error) {
	switch licenseType {
	case LicensePersonal:
		return 1, nil
	case LicenseRemix:
		return 3, nil
	case LicenseCommercial:
		return 5, nil
	default:
		return 0, fmt.Errorf("unknown license type: %s", licenseType)
	}
}

// Quote computes the USD price for a license type. The volume discount
// applies only once the caller's purchase history exceeds the configured
// threshold. Result is clamped to the floor/ceiling range and rounded to
// cents.
func (e *Engine) Quote(licenseType string, volume int) (float64, error) {
	mult, err := Multiplier(licenseType)
	if err != nil {
		return 0, err
	}

	price := e.cfg.BaseUSD * mult

	if volume > e.cfg.VolumeThreshold {
		price *= 1 - e.cfg.VolumeDiscount
	}

	if price < e.cfg.FloorUSD {
		price = e.cfg.FloorUSD
	}
	if price > e.cfg.CeilingUSD {
		price = e.cfg.CeilingUSD
	}

	return RoundCents(price), nil
}

// RoundCents rounds a USD amount to two decimal places.
func RoundCents(usd float64) float64 {
	return math.Round(usd*100) / 100
}
