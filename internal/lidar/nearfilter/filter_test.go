package nearfilter

import (
	"errors"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clusterSpeed gives a 0.52° gap threshold at the default 2300 Hz, wide
// enough for returns spaced 0.5° apart.
const clusterSpeed = 600.0

func TestFilterHighConfidencePoint(t *testing.T) {
	f := New(10.0, true)
	p := Point{Angle: 0, Distance: 500, Intensity: 220}

	out := f.Apply([]Point{p})
	assert.Equal(t, []Point{p}, out.Points())
}

func TestFilterLowConfidencePoint(t *testing.T) {
	f := New(10.0, true)

	out := f.Apply([]Point{{Angle: 0, Distance: 500, Intensity: 80}})
	assert.Equal(t, 0, out.Len())
}

func TestFilterPromotesDenseCluster(t *testing.T) {
	f := New(clusterSpeed, true)
	in := []Point{
		{Angle: 1.0, Distance: 400, Intensity: 100, Timestamp: 3},
		{Angle: 0.0, Distance: 400, Intensity: 100, Timestamp: 1},
		{Angle: 0.5, Distance: 400, Intensity: 100, Timestamp: 2},
	}

	out, st := f.ApplyWithStats(in)
	want := []Point{in[1], in[2], in[0]}
	if diff := cmp.Diff(want, out.Points()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, st.Clusters)
	assert.Equal(t, 3, st.Promoted)
}

func TestFilterDropsPairEvenWhenDense(t *testing.T) {
	f := New(clusterSpeed, true)
	in := []Point{
		{Angle: 10.0, Distance: 400, Intensity: 100},
		{Angle: 10.1, Distance: 400, Intensity: 100},
	}

	out, st := f.ApplyWithStats(in)
	assert.Equal(t, 0, out.Len())
	assert.Equal(t, 2, st.Ambiguous)
	assert.Equal(t, 0, st.Clusters)
}

func TestFilterClusterSplitByGap(t *testing.T) {
	f := New(clusterSpeed, true)
	in := []Point{
		{Angle: 10.0, Distance: 400, Intensity: 100},
		{Angle: 10.5, Distance: 400, Intensity: 100},
		{Angle: 11.0, Distance: 400, Intensity: 100},
		// 2° gap: the next two start a new cluster that is too small.
		{Angle: 13.0, Distance: 400, Intensity: 100},
		{Angle: 13.5, Distance: 400, Intensity: 100},
	}

	out, st := f.ApplyWithStats(in)
	require.Equal(t, 3, out.Len())
	for _, p := range out.Points() {
		assert.Less(t, p.Angle, 12.0)
	}
	assert.Equal(t, 1, st.Clusters)
}

func TestFilterClusterAcrossZero(t *testing.T) {
	f := New(clusterSpeed, true)
	in := []Point{
		{Angle: 359.9, Distance: 400, Intensity: 100},
		{Angle: 0.1, Distance: 400, Intensity: 100},
		{Angle: 359.7, Distance: 400, Intensity: 100},
	}

	out := f.Apply(in)
	require.Equal(t, 3, out.Len())
	assert.Equal(t, []float64{0.1, 359.7, 359.9}, angles(out.Points()))
}

func TestFilterDistanceRules(t *testing.T) {
	f := New(10.0, true)
	in := []Point{
		{Angle: 1, Distance: 0, Intensity: 255},
		{Angle: 2, Distance: 1500, Intensity: 0},
		{Angle: 3, Distance: 1001, Intensity: 10},
	}

	out, st := f.ApplyWithStats(in)
	assert.Equal(t, []float64{2, 3}, angles(out.Points()))
	assert.Equal(t, 1, st.Invalid)
	assert.Equal(t, 2, st.Far)
}

func TestFilterStrictToggleChangesOutput(t *testing.T) {
	in := []Point{
		{Angle: 45, Distance: 300, Intensity: 180},
		{Angle: 90, Distance: 300, Intensity: 250},
	}
	f := New(10.0, false)

	relaxed := f.Apply(in)
	assert.Equal(t, 2, relaxed.Len())

	f.SetStrictPolicy(true)
	assert.True(t, f.StrictPolicy())
	strict := f.Apply(in)
	assert.Equal(t, []float64{90}, angles(strict.Points()))

	// Earlier results are unaffected by the toggle.
	assert.Equal(t, 2, relaxed.Len())
}

func TestFilterStrictMiddleBandJoinsCluster(t *testing.T) {
	f := New(clusterSpeed, true)
	in := []Point{
		{Angle: 20.0, Distance: 300, Intensity: 180}, // middle band
		{Angle: 20.5, Distance: 300, Intensity: 100}, // low band
		{Angle: 21.0, Distance: 300, Intensity: 120}, // low band
	}

	out := f.Apply(in)
	assert.Equal(t, []float64{20.0, 20.5, 21.0}, angles(out.Points()))
}

func TestFilterOutputSortedAndInputUntouched(t *testing.T) {
	f := New(10.0, false)
	in := []Point{
		{Angle: 300, Distance: 2000, Intensity: 1},
		{Angle: 10, Distance: 500, Intensity: 210},
		{Angle: 150, Distance: 800, Intensity: 160},
	}
	orig := slices.Clone(in)

	out := f.Apply(in)
	assert.Equal(t, []float64{10, 150, 300}, angles(out.Points()))
	assert.Equal(t, orig, in)
}

func TestFilterCapacityOverflowIsSoft(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capacity = 4
	f, err := NewWithConfig(cfg, 10, false)
	require.NoError(t, err)

	in := make([]Point, 6)
	for i := range in {
		in[i] = Point{Angle: float64(60 - i), Distance: 3000, Intensity: 50}
	}

	out, st := f.ApplyWithStats(in)
	assert.Equal(t, 4, out.Len())
	assert.Equal(t, 4, out.Cap())
	assert.Equal(t, 2, st.Overflow)
	assert.True(t, slices.IsSortedFunc(out.Points(), byAngle))
}

func TestFilterMergeOverflow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capacity = 4
	f, err := NewWithConfig(cfg, clusterSpeed, true)
	require.NoError(t, err)

	far := []Point{
		{Angle: 100, Distance: 3000, Intensity: 1},
		{Angle: 200, Distance: 3000, Intensity: 1},
	}

	// A pair of ambiguous points is never promoted, so everything fits.
	in := append(slices.Clone(far),
		Point{Angle: 10.0, Distance: 300, Intensity: 100},
		Point{Angle: 10.5, Distance: 300, Intensity: 100},
	)
	out, st := f.ApplyWithStats(in)
	assert.Equal(t, 2, out.Len())
	assert.Equal(t, 0, st.Overflow)

	// Two accepted plus three promoted exceeds the capacity of four.
	in = append(slices.Clone(far),
		Point{Angle: 10.0, Distance: 300, Intensity: 100},
		Point{Angle: 10.5, Distance: 300, Intensity: 100},
		Point{Angle: 11.0, Distance: 300, Intensity: 100},
	)
	out, st = f.ApplyWithStats(in)
	assert.Equal(t, 4, out.Len())
	assert.Equal(t, 3, st.Promoted)
	assert.Equal(t, 1, st.Overflow)
}

func TestFilterEmptyInput(t *testing.T) {
	out, st := New(10, true).ApplyWithStats(nil)
	assert.Equal(t, 0, out.Len())
	assert.Equal(t, Stats{GapThreshold: GapThreshold(10, 2300)}, st)
}

func TestFilterStatsAccounting(t *testing.T) {
	f := New(clusterSpeed, true)
	in := randomRevolution(rand.New(rand.NewPCG(7, 11)), 300)

	_, st := f.ApplyWithStats(in)
	assert.Equal(t, st.Input, st.Invalid+st.Accepted+st.Ambiguous+st.Rejected)
	assert.Equal(t, st.Input-st.Output, st.Dropped())
	assert.LessOrEqual(t, st.Far, st.Accepted)
	assert.LessOrEqual(t, st.Promoted, st.Ambiguous)
}

func TestNewWithConfigValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfidenceMiddle = cfg.ConfidenceHigh
	_, err := NewWithConfig(cfg, 10, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrThresholdOrder))

	cfg = DefaultConfig()
	cfg.ScanFreq = 0
	_, err = NewWithConfig(cfg, 10, true)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Capacity = 0
	_, err = NewWithConfig(cfg, 10, true)
	assert.Error(t, err)

	_, err = NewWithConfig(DefaultConfig(), -1, true)
	assert.Error(t, err)

	f, err := NewWithConfig(DefaultConfig(), 10, true)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), f.Config())
}

func TestSetSpeed(t *testing.T) {
	f := New(10, true)
	f.SetSpeed(3600)
	assert.Equal(t, 3600.0, f.Speed())
	f.SetSpeed(-5)
	assert.Equal(t, 3600.0, f.Speed())
}

// TestFilterMatchesReference compares Apply against a direct, allocation-heavy
// rendition of the rules over random revolutions.
func TestFilterMatchesReference(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 50; i++ {
		in := randomRevolution(rng, 1+rng.IntN(MaxRevolutionPoints))
		strict := rng.IntN(2) == 0
		speed := []float64{10, clusterSpeed, 3600}[rng.IntN(3)]

		got := New(speed, strict).Apply(in).Points()
		want := referenceFilter(in, DefaultConfig(), speed, strict)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("iteration %d (strict=%v speed=%v) mismatch (-want +got):\n%s", i, strict, speed, diff)
		}
		if !slices.IsSortedFunc(got, byAngle) {
			t.Fatalf("iteration %d: output not sorted by angle", i)
		}
	}
}

func referenceFilter(points []Point, cfg Config, speed float64, strict bool) []Point {
	var normal, pending, item, group []Point
	for _, p := range points {
		if p.Distance == 0 {
			continue
		}
		if p.Distance > 1000 {
			normal = append(normal, p)
			continue
		}
		in := uint16(p.Intensity)
		switch {
		case in > cfg.ConfidenceHigh:
			normal = append(normal, p)
		case in > cfg.ConfidenceMiddle && !strict:
			normal = append(normal, p)
		case in > cfg.ConfidenceLow:
			pending = append(pending, p)
		}
	}

	slices.SortStableFunc(pending, byAngle)
	threshold := speed / cfg.ScanFreq * 2.0
	for _, p := range pending {
		if len(item) == 0 {
			item = append(item, p)
			continue
		}
		if AngularGap(p.Angle, item[len(item)-1].Angle) <= threshold {
			item = append(item, p)
			continue
		}
		if len(item) >= 3 {
			group = append(group, item...)
		}
		item = []Point{p}
	}
	if len(item) >= 3 {
		group = append(group, item...)
	}

	out := append(normal, group...)
	slices.SortStableFunc(out, byAngle)
	if out == nil {
		out = []Point{}
	}
	return out
}

func randomRevolution(rng *rand.Rand, n int) []Point {
	points := make([]Point, n)
	for i := range points {
		points[i] = Point{
			Angle:     float64(rng.IntN(3600)) / 10,
			Distance:  uint16(rng.IntN(1500)),
			Intensity: uint8(rng.IntN(256)),
			Timestamp: uint64(i),
		}
	}
	return points
}

func byAngle(a, b Point) int {
	switch {
	case a.Angle < b.Angle:
		return -1
	case a.Angle > b.Angle:
		return 1
	}
	return 0
}

func angles(points []Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Angle
	}
	return out
}
