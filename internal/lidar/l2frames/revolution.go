package l2frames

import (
	"sync"

	"github.com/banshee-data/nearfilter/internal/lidar/nearfilter"
)

// DefaultWrapTolerance is how far, in degrees, the angle must fall between
// consecutive points before the builder treats it as the start of a new
// revolution. Smaller backward steps are jitter and stay in the current one.
const DefaultWrapTolerance = 180.0

// Revolution is one complete sweep of the sensor.
type Revolution struct {
	ID             uint64             // sequential, starting at 1
	Points         []nearfilter.Point // in arrival order, at most Capacity points
	Overflow       int                // points received after the capacity was reached
	Speed          float64            // degrees per second when the revolution closed
	StartTimestamp uint64             // sensor ms of the first point
	EndTimestamp   uint64             // sensor ms of the last point, including overflow
	Partial        bool               // emitted by Flush rather than a wrap
}

// BuilderConfig configures a RevolutionBuilder.
type BuilderConfig struct {
	Capacity      int               // max points per revolution (default: nearfilter.MaxRevolutionPoints)
	WrapTolerance float64           // backward angle step that starts a new revolution (default: 180°)
	OnRevolution  func(*Revolution) // called synchronously for every completed revolution
}

// RevolutionBuilder accumulates points from successive packets and cuts them
// into revolutions at the 360° wrap.
type RevolutionBuilder struct {
	mu            sync.Mutex
	capacity      int
	wrapTolerance float64
	onRevolution  func(*Revolution)

	current   *Revolution
	lastAngle float64
	hasLast   bool
	counter   uint64
	speed     float64
}

// NewRevolutionBuilder returns a builder with defaults applied to config.
func NewRevolutionBuilder(config BuilderConfig) *RevolutionBuilder {
	if config.Capacity <= 0 {
		config.Capacity = nearfilter.MaxRevolutionPoints
	}
	if config.WrapTolerance <= 0 {
		config.WrapTolerance = DefaultWrapTolerance
	}
	return &RevolutionBuilder{
		capacity:      config.Capacity,
		wrapTolerance: config.WrapTolerance,
		onRevolution:  config.OnRevolution,
	}
}

// SetSpeed records the latest sensor-reported rotational speed. It is
// stamped on the revolution being built when that revolution closes.
func (b *RevolutionBuilder) SetSpeed(degPerSec float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.speed = degPerSec
}

// Speed returns the last speed passed to SetSpeed.
func (b *RevolutionBuilder) Speed() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.speed
}

// AddPoints appends points in arrival order. Every wrap found closes the
// current revolution and hands it to the callback before AddPoints returns.
func (b *RevolutionBuilder) AddPoints(points []nearfilter.Point) {
	b.mu.Lock()
	var done []*Revolution
	for _, p := range points {
		if b.hasLast && b.lastAngle-p.Angle > b.wrapTolerance && b.current != nil {
			done = append(done, b.closeLocked(false))
		}
		b.appendLocked(p)
	}
	tracef("added %d points, pending=%d", len(points), b.pendingLocked())
	cb := b.onRevolution
	b.mu.Unlock()

	// The callback runs unlocked so it may call back into the builder.
	if cb != nil {
		for _, rev := range done {
			cb(rev)
		}
	}
}

func (b *RevolutionBuilder) appendLocked(p nearfilter.Point) {
	if b.current == nil {
		b.current = &Revolution{
			Points:         make([]nearfilter.Point, 0, b.capacity),
			StartTimestamp: p.Timestamp,
		}
	}
	rev := b.current
	if len(rev.Points) < b.capacity {
		rev.Points = append(rev.Points, p)
	} else {
		rev.Overflow++
	}
	rev.EndTimestamp = p.Timestamp
	b.lastAngle = p.Angle
	b.hasLast = true
}

func (b *RevolutionBuilder) closeLocked(partial bool) *Revolution {
	rev := b.current
	b.current = nil
	b.counter++
	rev.ID = b.counter
	rev.Speed = b.speed
	rev.Partial = partial
	if rev.Overflow > 0 {
		opsf("revolution %d over capacity: kept %d points, dropped %d", rev.ID, len(rev.Points), rev.Overflow)
	}
	diagf("revolution %d complete: points=%d speed=%.1f span=%dms partial=%v",
		rev.ID, len(rev.Points), rev.Speed, rev.EndTimestamp-rev.StartTimestamp, partial)
	return rev
}

// Flush emits the revolution in progress, if any, marked Partial. Used when
// a source ends so the last sweep is not lost.
func (b *RevolutionBuilder) Flush() {
	b.mu.Lock()
	if b.current == nil {
		b.mu.Unlock()
		return
	}
	rev := b.closeLocked(true)
	b.hasLast = false
	cb := b.onRevolution
	b.mu.Unlock()

	if cb != nil {
		cb(rev)
	}
}

// Reset discards the revolution in progress and the wrap state without
// invoking the callback. The revolution counter and speed are kept.
func (b *RevolutionBuilder) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = nil
	b.hasLast = false
	b.lastAngle = 0
}

// Pending returns the number of points held for the revolution in progress.
func (b *RevolutionBuilder) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pendingLocked()
}

func (b *RevolutionBuilder) pendingLocked() int {
	if b.current == nil {
		return 0
	}
	return len(b.current.Points)
}

// Completed returns how many revolutions have been emitted.
func (b *RevolutionBuilder) Completed() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counter
}
