package nearfilter

import (
	"errors"
	"fmt"
)

const (
	// NearRangeLimit is the distance (mm) at or below which points are
	// examined. Anything further is accepted without looking at intensity.
	NearRangeLimit = 1000

	// MinClusterPoints is the smallest run of ambiguous points that is
	// promoted to the output.
	MinClusterPoints = 3
)

// Config holds the thresholds that stay fixed for a Filter's lifetime.
type Config struct {
	ConfidenceHigh   uint16  `json:"confidence_high"`
	ConfidenceMiddle uint16  `json:"confidence_middle"`
	ConfidenceLow    uint16  `json:"confidence_low"`
	ScanFreq         float64 `json:"scan_freq"` // samples per second
	Capacity         int     `json:"capacity"`  // max points per revolution
}

// DefaultConfig returns the stock thresholds for the LD-series sensors.
func DefaultConfig() Config {
	return Config{
		ConfidenceHigh:   200,
		ConfidenceMiddle: 150,
		ConfidenceLow:    92,
		ScanFreq:         2300,
		Capacity:         MaxRevolutionPoints,
	}
}

// ErrThresholdOrder is returned when the confidence tiers are not strictly
// descending.
var ErrThresholdOrder = errors.New("confidence thresholds must satisfy high > middle > low")

// Validate checks the configuration for values the filter cannot work with.
func (c Config) Validate() error {
	if !(c.ConfidenceHigh > c.ConfidenceMiddle && c.ConfidenceMiddle > c.ConfidenceLow) {
		return fmt.Errorf("%w: got high=%d middle=%d low=%d",
			ErrThresholdOrder, c.ConfidenceHigh, c.ConfidenceMiddle, c.ConfidenceLow)
	}
	if c.ScanFreq <= 0 {
		return fmt.Errorf("scan_freq must be positive, got %g", c.ScanFreq)
	}
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive, got %d", c.Capacity)
	}
	return nil
}
