package l2frames

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/nearfilter/internal/lidar/nearfilter"
)

// sweep returns n points evenly spaced from start, one millisecond apart.
func sweep(start, step float64, n int, ts uint64) []nearfilter.Point {
	pts := make([]nearfilter.Point, n)
	for i := range pts {
		angle := start + step*float64(i)
		for angle >= 360 {
			angle -= 360
		}
		pts[i] = nearfilter.Point{Angle: angle, Distance: 500, Intensity: 210, Timestamp: ts + uint64(i)}
	}
	return pts
}

type collector struct {
	revs []*Revolution
}

func (c *collector) add(r *Revolution) { c.revs = append(c.revs, r) }

func TestRevolutionBuilderCutsOnWrap(t *testing.T) {
	var c collector
	b := NewRevolutionBuilder(BuilderConfig{OnRevolution: c.add})
	b.SetSpeed(3600)

	// 0..350 in 10° steps, then wrap back to 0.
	b.AddPoints(sweep(0, 10, 36, 100))
	assert.Empty(t, c.revs)
	assert.Equal(t, 36, b.Pending())

	b.AddPoints(sweep(0, 10, 5, 200))
	require.Len(t, c.revs, 1)

	rev := c.revs[0]
	assert.Equal(t, uint64(1), rev.ID)
	assert.Len(t, rev.Points, 36)
	assert.Equal(t, 3600.0, rev.Speed)
	assert.Equal(t, uint64(100), rev.StartTimestamp)
	assert.Equal(t, uint64(135), rev.EndTimestamp)
	assert.False(t, rev.Partial)
	assert.Zero(t, rev.Overflow)
	assert.Equal(t, 5, b.Pending())
}

func TestRevolutionBuilderWrapInsideBatch(t *testing.T) {
	var c collector
	b := NewRevolutionBuilder(BuilderConfig{OnRevolution: c.add})

	// Three full sweeps delivered in one call.
	b.AddPoints(sweep(5, 30, 36, 0))
	require.Len(t, c.revs, 2)
	assert.Equal(t, uint64(1), c.revs[0].ID)
	assert.Equal(t, uint64(2), c.revs[1].ID)
	assert.Len(t, c.revs[0].Points, 12)
	assert.Len(t, c.revs[1].Points, 12)
	assert.Equal(t, 12, b.Pending())
	assert.Equal(t, uint64(2), b.Completed())
}

func TestRevolutionBuilderIgnoresJitter(t *testing.T) {
	var c collector
	b := NewRevolutionBuilder(BuilderConfig{OnRevolution: c.add})

	b.AddPoints([]nearfilter.Point{
		{Angle: 100}, {Angle: 101}, {Angle: 99.5}, {Angle: 102},
	})
	assert.Empty(t, c.revs)
	assert.Equal(t, 4, b.Pending())
}

func TestRevolutionBuilderWrapTolerance(t *testing.T) {
	var c collector
	b := NewRevolutionBuilder(BuilderConfig{WrapTolerance: 5, OnRevolution: c.add})

	b.AddPoints([]nearfilter.Point{{Angle: 100}, {Angle: 90}})
	require.Len(t, c.revs, 1)
	assert.Len(t, c.revs[0].Points, 1)
}

func TestRevolutionBuilderCapacity(t *testing.T) {
	var c collector
	b := NewRevolutionBuilder(BuilderConfig{Capacity: 4, OnRevolution: c.add})

	b.AddPoints(sweep(0, 30, 10, 0))
	assert.Equal(t, 4, b.Pending())

	b.AddPoints(sweep(0, 10, 1, 50))
	require.Len(t, c.revs, 1)
	rev := c.revs[0]
	assert.Len(t, rev.Points, 4)
	assert.Equal(t, 6, rev.Overflow)
	assert.Equal(t, uint64(9), rev.EndTimestamp)
	assert.Equal(t, 4, cap(rev.Points))
}

func TestRevolutionBuilderDefaults(t *testing.T) {
	b := NewRevolutionBuilder(BuilderConfig{})
	assert.Equal(t, nearfilter.MaxRevolutionPoints, b.capacity)
	assert.Equal(t, DefaultWrapTolerance, b.wrapTolerance)

	// No callback installed: wraps are still counted.
	b.AddPoints(sweep(0, 90, 8, 0))
	assert.Equal(t, uint64(1), b.Completed())
}

func TestRevolutionBuilderFlush(t *testing.T) {
	var c collector
	b := NewRevolutionBuilder(BuilderConfig{OnRevolution: c.add})

	b.Flush()
	assert.Empty(t, c.revs, "flush with nothing pending emits nothing")

	b.AddPoints(sweep(0, 10, 3, 7))
	b.Flush()
	require.Len(t, c.revs, 1)
	assert.True(t, c.revs[0].Partial)
	assert.Len(t, c.revs[0].Points, 3)
	assert.Zero(t, b.Pending())

	// After a flush the next point starts a new revolution without
	// triggering a wrap against the flushed angle.
	b.AddPoints([]nearfilter.Point{{Angle: 1}})
	assert.Len(t, c.revs, 1)
	assert.Equal(t, 1, b.Pending())
}

func TestRevolutionBuilderReset(t *testing.T) {
	var c collector
	b := NewRevolutionBuilder(BuilderConfig{OnRevolution: c.add})
	b.SetSpeed(1200)

	b.AddPoints(sweep(0, 10, 30, 0))
	b.Reset()
	assert.Zero(t, b.Pending())
	assert.Empty(t, c.revs, "reset must not invoke the callback")

	// A low angle after reset is not a wrap.
	b.AddPoints(sweep(0, 10, 2, 0))
	assert.Empty(t, c.revs)
	assert.Equal(t, 1200.0, b.Speed())
}

func TestRevolutionBuilderCallbackMayReenter(t *testing.T) {
	var b *RevolutionBuilder
	var pendingAtCallback []int
	b = NewRevolutionBuilder(BuilderConfig{OnRevolution: func(*Revolution) {
		pendingAtCallback = append(pendingAtCallback, b.Pending())
	}})

	b.AddPoints(sweep(0, 120, 4, 0))
	assert.Equal(t, []int{1}, pendingAtCallback)
}

func TestRevolutionBuilderLogsOverflow(t *testing.T) {
	var ops bytes.Buffer
	SetLogWriters(&ops, nil, nil)
	defer SetLogWriters(nil, nil, nil)

	b := NewRevolutionBuilder(BuilderConfig{Capacity: 2})
	b.AddPoints(sweep(0, 10, 3, 0))
	b.Flush()
	assert.Contains(t, ops.String(), "[l2frames] ")
	assert.Contains(t, ops.String(), "dropped 1")
}
