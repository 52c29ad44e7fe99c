package nearfilter

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

// Filter applies the near-range noise rules to one revolution at a time.
type Filter struct {
	cfg    Config
	speed  float64 // current rotational speed, degrees per second
	strict bool
}

// New returns a Filter using DefaultConfig.
func New(speed float64, strict bool) *Filter {
	return &Filter{
		cfg:    DefaultConfig(),
		speed:  speed,
		strict: strict,
	}
}

// NewWithConfig returns a Filter with custom thresholds. The configuration is
// validated, including the high > middle > low ordering.
func NewWithConfig(cfg Config, speed float64, strict bool) (*Filter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid near filter config: %w", err)
	}
	if speed < 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return nil, fmt.Errorf("invalid rotational speed %g", speed)
	}
	return &Filter{cfg: cfg, speed: speed, strict: strict}, nil
}

// Config returns the thresholds in use.
func (f *Filter) Config() Config { return f.cfg }

// SetStrictPolicy switches between strict and relaxed handling of
// middle-confidence points. It affects the next call only.
func (f *Filter) SetStrictPolicy(enable bool) { f.strict = enable }

// StrictPolicy reports whether the strict policy is enabled.
func (f *Filter) StrictPolicy() bool { return f.strict }

// SetSpeed updates the rotational speed used to size the cluster gap.
// Negative and non-finite values are ignored.
func (f *Filter) SetSpeed(speed float64) {
	if speed < 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return
	}
	f.speed = speed
}

// Speed returns the current rotational speed.
func (f *Filter) Speed() float64 { return f.speed }

// Apply filters one revolution and returns the trusted points ordered by
// angle. The input slice is not modified.
func (f *Filter) Apply(points []Point) *Batch {
	out, _ := f.ApplyWithStats(points)
	return out
}

// ApplyWithStats is Apply plus a breakdown of where every input point went.
func (f *Filter) ApplyWithStats(points []Point) (*Batch, Stats) {
	st := Stats{
		Input:        len(points),
		GapThreshold: GapThreshold(f.speed, f.cfg.ScanFreq),
	}

	accepted := NewBatch(f.cfg.Capacity)
	ambiguous := NewBatch(f.cfg.Capacity)
	for _, p := range points {
		switch Classify(p, f.cfg, f.strict) {
		case ClassInvalid:
			st.Invalid++
		case ClassAccepted:
			st.Accepted++
			if p.Distance > NearRangeLimit {
				st.Far++
			}
			if !accepted.Push(p) {
				st.Overflow++
			}
		case ClassAmbiguous:
			st.Ambiguous++
			if !ambiguous.Push(p) {
				st.Overflow++
			}
		case ClassRejected:
			st.Rejected++
		}
	}

	promoted := NewBatch(f.cfg.Capacity)
	if ambiguous.Len() > 0 {
		st.Clusters = promoteClusters(ambiguous.points, st.GapThreshold, promoted)
		st.Promoted = promoted.Len()
	}

	out := NewBatch(f.cfg.Capacity)
	for _, src := range [...]*Batch{accepted, promoted} {
		for _, p := range src.points {
			if !out.Push(p) {
				st.Overflow++
			}
		}
	}
	sortByAngle(out.points)
	st.Output = out.Len()

	return out, st
}

func sortByAngle(points []Point) {
	slices.SortStableFunc(points, func(a, b Point) int {
		return cmp.Compare(a.Angle, b.Angle)
	})
}
