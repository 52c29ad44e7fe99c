package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/nearfilter/internal/lidar/nearfilter"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for the near-range filter
// and the revolution builder that feeds it. Every field is optional: the
// Get* methods fall back to built-in defaults for anything omitted.
type TuningConfig struct {
	// Filter thresholds
	ConfidenceHigh   *int     `json:"confidence_high,omitempty"`
	ConfidenceMiddle *int     `json:"confidence_middle,omitempty"`
	ConfidenceLow    *int     `json:"confidence_low,omitempty"`
	ScanFreq         *float64 `json:"scan_freq,omitempty"` // Hz

	// Filter state at startup
	InitialSpeed *float64 `json:"initial_speed,omitempty"` // degrees per second
	StrictPolicy *bool    `json:"strict_policy,omitempty"`

	// Revolution builder
	MaxRevolutionPoints *int     `json:"max_revolution_points,omitempty"`
	WrapToleranceDeg    *float64 `json:"wrap_tolerance_deg,omitempty"`

	// Sinks
	PlotEvery     *int    `json:"plot_every,omitempty"` // plot every Nth revolution; 0 means every one
	PublishPrefix *string `json:"publish_prefix,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be at most 1MB.
// Fields omitted from the file keep their defaults, so partial configs are
// safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching upwards from the
// working directory. Panics if the file cannot be loaded; intended for tests.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/lidar/pipeline/
		"../../../../" + DefaultConfigPath, // from internal/lidar/l1packets/parse/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are usable. Threshold
// ordering is checked on the effective values, so a file that sets only
// confidence_low is still compared against the default high and middle.
func (c *TuningConfig) Validate() error {
	for name, v := range map[string]*int{
		"confidence_high":   c.ConfidenceHigh,
		"confidence_middle": c.ConfidenceMiddle,
		"confidence_low":    c.ConfidenceLow,
	} {
		if v != nil && (*v < 0 || *v > 0xFFFF) {
			return fmt.Errorf("%s must be between 0 and 65535, got %d", name, *v)
		}
	}

	if c.ScanFreq != nil && *c.ScanFreq <= 0 {
		return fmt.Errorf("scan_freq must be positive, got %f", *c.ScanFreq)
	}
	if c.InitialSpeed != nil && *c.InitialSpeed < 0 {
		return fmt.Errorf("initial_speed must be non-negative, got %f", *c.InitialSpeed)
	}
	if c.MaxRevolutionPoints != nil && *c.MaxRevolutionPoints <= 0 {
		return fmt.Errorf("max_revolution_points must be positive, got %d", *c.MaxRevolutionPoints)
	}
	if c.WrapToleranceDeg != nil && (*c.WrapToleranceDeg <= 0 || *c.WrapToleranceDeg > 360) {
		return fmt.Errorf("wrap_tolerance_deg must be in (0, 360], got %f", *c.WrapToleranceDeg)
	}
	if c.PlotEvery != nil && *c.PlotEvery < 0 {
		return fmt.Errorf("plot_every must be non-negative, got %d", *c.PlotEvery)
	}

	return c.NearFilterConfig().Validate()
}

// NearFilterConfig returns the filter thresholds described by this config.
func (c *TuningConfig) NearFilterConfig() nearfilter.Config {
	return nearfilter.Config{
		ConfidenceHigh:   uint16(c.GetConfidenceHigh()),
		ConfidenceMiddle: uint16(c.GetConfidenceMiddle()),
		ConfidenceLow:    uint16(c.GetConfidenceLow()),
		ScanFreq:         c.GetScanFreq(),
		Capacity:         c.GetMaxRevolutionPoints(),
	}
}

// GetConfidenceHigh returns the confidence_high value or the default.
func (c *TuningConfig) GetConfidenceHigh() int {
	if c.ConfidenceHigh == nil {
		return int(nearfilter.DefaultConfig().ConfidenceHigh)
	}
	return *c.ConfidenceHigh
}

// GetConfidenceMiddle returns the confidence_middle value or the default.
func (c *TuningConfig) GetConfidenceMiddle() int {
	if c.ConfidenceMiddle == nil {
		return int(nearfilter.DefaultConfig().ConfidenceMiddle)
	}
	return *c.ConfidenceMiddle
}

// GetConfidenceLow returns the confidence_low value or the default.
func (c *TuningConfig) GetConfidenceLow() int {
	if c.ConfidenceLow == nil {
		return int(nearfilter.DefaultConfig().ConfidenceLow)
	}
	return *c.ConfidenceLow
}

// GetScanFreq returns the scan_freq value or the default.
func (c *TuningConfig) GetScanFreq() float64 {
	if c.ScanFreq == nil {
		return nearfilter.DefaultConfig().ScanFreq
	}
	return *c.ScanFreq
}

// GetInitialSpeed returns the initial_speed value or the default.
func (c *TuningConfig) GetInitialSpeed() float64 {
	if c.InitialSpeed == nil {
		return 3600 // 10 Hz rotation
	}
	return *c.InitialSpeed
}

// GetStrictPolicy returns the strict_policy value or the default.
func (c *TuningConfig) GetStrictPolicy() bool {
	if c.StrictPolicy == nil {
		return true
	}
	return *c.StrictPolicy
}

// GetMaxRevolutionPoints returns the max_revolution_points value or the default.
func (c *TuningConfig) GetMaxRevolutionPoints() int {
	if c.MaxRevolutionPoints == nil {
		return nearfilter.MaxRevolutionPoints
	}
	return *c.MaxRevolutionPoints
}

// GetWrapToleranceDeg returns the wrap_tolerance_deg value or the default.
func (c *TuningConfig) GetWrapToleranceDeg() float64 {
	if c.WrapToleranceDeg == nil {
		return 180
	}
	return *c.WrapToleranceDeg
}

// GetPlotEvery returns the plot_every value or the default.
func (c *TuningConfig) GetPlotEvery() int {
	if c.PlotEvery == nil {
		return 1 // default: every revolution
	}
	return *c.PlotEvery
}

// GetPublishPrefix returns the publish_prefix value or the default.
func (c *TuningConfig) GetPublishPrefix() string {
	if c.PublishPrefix == nil || *c.PublishPrefix == "" {
		return "nearfilter"
	}
	return *c.PublishPrefix
}
