package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/nearfilter/internal/lidar/l1packets/parse"
	"github.com/banshee-data/nearfilter/internal/lidar/l2frames"
	"github.com/banshee-data/nearfilter/internal/lidar/nearfilter"
	"github.com/banshee-data/nearfilter/internal/monitoring"
	"github.com/banshee-data/nearfilter/internal/timeutil"
)

// Source produces decoded sensor packets until it is exhausted or ctx ends.
// serialport.Source and network.ReplaySource implement it.
type Source interface {
	Name() string
	Run(ctx context.Context, handle func(*parse.Packet) error) error
}

// Config wires a Runtime.
type Config struct {
	Filter        nearfilter.Config
	InitialSpeed  float64 // degrees per second until the sensor reports one
	Strict        bool
	WrapTolerance float64 // see l2frames.BuilderConfig
	Sinks         []Sink
	Clock         timeutil.Clock // defaults to timeutil.RealClock
}

// Totals accumulates counters over the life of a Runtime.
type Totals struct {
	Packets     int `json:"packets"`
	Revolutions int `json:"revolutions"`
	Input       int `json:"input"`
	Output      int `json:"output"`
	SinkErrors  int `json:"sink_errors"`
}

// Runtime owns the revolution builder and the filter for one sensor. All
// access to the filter goes through mu, so the HTTP policy toggle and the
// processing loop never race.
type Runtime struct {
	mu      sync.Mutex
	filter  *nearfilter.Filter
	builder *l2frames.RevolutionBuilder
	clock   timeutil.Clock
	ts      parse.TimestampUnwrapper
	source  string
	sinks   []Sink

	// Revolutions closed by the builder during the current call, waiting
	// to be filtered. Guarded by mu.
	closed []*l2frames.Revolution

	latest *Result
	totals Totals
}

// NewRuntime validates cfg and builds a Runtime.
func NewRuntime(cfg Config) (*Runtime, error) {
	filter, err := nearfilter.NewWithConfig(cfg.Filter, cfg.InitialSpeed, cfg.Strict)
	if err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	r := &Runtime{
		filter: filter,
		clock:  cfg.Clock,
		sinks:  append([]Sink(nil), cfg.Sinks...),
	}
	r.builder = l2frames.NewRevolutionBuilder(l2frames.BuilderConfig{
		Capacity:      cfg.Filter.Capacity,
		WrapTolerance: cfg.WrapTolerance,
		OnRevolution:  r.enqueue,
	})
	r.builder.SetSpeed(cfg.InitialSpeed)
	return r, nil
}

// enqueue runs inside builder.AddPoints/Flush, which are only called with
// mu held.
func (r *Runtime) enqueue(rev *l2frames.Revolution) {
	r.closed = append(r.closed, rev)
}

// AddSink registers another sink. Not safe to call while Run is active.
func (r *Runtime) AddSink(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, s)
}

// SetStrictPolicy toggles the strict policy for the next revolution.
func (r *Runtime) SetStrictPolicy(enable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.filter.StrictPolicy() != enable {
		monitoring.Logf("near filter strict policy set to %v", enable)
	}
	r.filter.SetStrictPolicy(enable)
}

// StrictPolicy reports the current policy.
func (r *Runtime) StrictPolicy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filter.StrictPolicy()
}

// FilterConfig returns the thresholds the filter was built with.
func (r *Runtime) FilterConfig() nearfilter.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filter.Config()
}

// Latest returns the most recent result, or nil before the first revolution.
func (r *Runtime) Latest() *Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest
}

// Totals returns the running counters.
func (r *Runtime) Totals() Totals {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totals
}

// HandlePacket feeds one decoded packet through the builder. Any revolution
// it completes is filtered and delivered to the sinks before it returns.
func (r *Runtime) HandlePacket(ctx context.Context, pkt *parse.Packet) error {
	r.mu.Lock()
	r.totals.Packets++
	if pkt.Speed > 0 {
		r.builder.SetSpeed(float64(pkt.Speed))
	}
	r.builder.AddPoints(pkt.Points(&r.ts))
	results := r.drainLocked()
	sinks := r.sinks
	r.mu.Unlock()

	r.deliver(ctx, sinks, results)
	return ctx.Err()
}

// HandlePoints feeds already-expanded points, for callers that do not start
// from wire packets.
func (r *Runtime) HandlePoints(ctx context.Context, speed float64, points []nearfilter.Point) error {
	r.mu.Lock()
	if speed > 0 {
		r.builder.SetSpeed(speed)
	}
	r.builder.AddPoints(points)
	results := r.drainLocked()
	sinks := r.sinks
	r.mu.Unlock()

	r.deliver(ctx, sinks, results)
	return ctx.Err()
}

// Flush filters and delivers the partial revolution in progress.
func (r *Runtime) Flush(ctx context.Context) {
	r.mu.Lock()
	r.builder.Flush()
	results := r.drainLocked()
	sinks := r.sinks
	r.mu.Unlock()

	r.deliver(ctx, sinks, results)
}

func (r *Runtime) drainLocked() []*Result {
	if len(r.closed) == 0 {
		return nil
	}
	results := make([]*Result, 0, len(r.closed))
	for _, rev := range r.closed {
		results = append(results, r.filterLocked(rev))
	}
	r.closed = r.closed[:0]
	return results
}

func (r *Runtime) filterLocked(rev *l2frames.Revolution) *Result {
	if rev.Speed > 0 {
		r.filter.SetSpeed(rev.Speed)
	}
	out, stats := r.filter.ApplyWithStats(rev.Points)
	kept := out.Points()

	res := &Result{
		RevolutionID:   rev.ID,
		Source:         r.source,
		ProcessedAt:    r.clock.Now(),
		Speed:          r.filter.Speed(),
		Strict:         r.filter.StrictPolicy(),
		Partial:        rev.Partial,
		StartTimestamp: rev.StartTimestamp,
		EndTimestamp:   rev.EndTimestamp,
		BuilderDropped: rev.Overflow,
		Kept:           kept,
		Dropped:        droppedPoints(rev.Points, kept),
		Stats:          stats,
		Summary:        nearfilter.Summarize(kept),
	}
	r.latest = res
	r.totals.Revolutions++
	r.totals.Input += stats.Input
	r.totals.Output += stats.Output

	tracef("revolution %d: in=%d out=%d ambiguous=%d promoted=%d clusters=%d gap=%.3f strict=%v",
		rev.ID, stats.Input, stats.Output, stats.Ambiguous, stats.Promoted, stats.Clusters, stats.GapThreshold, res.Strict)
	monitoring.Debugf("revolution %d kept %d/%d points", rev.ID, stats.Output, stats.Input)
	return res
}

// deliver runs outside mu. A failing sink is logged and skipped; it never
// stops the pipeline or the other sinks.
func (r *Runtime) deliver(ctx context.Context, sinks []Sink, results []*Result) {
	for _, res := range results {
		for _, s := range sinks {
			if err := s.RecordRevolution(ctx, res); err != nil {
				opsf("sink %T failed on revolution %d: %v", s, res.RevolutionID, err)
				monitoring.Logf("near filter sink error: %v", err)
				r.mu.Lock()
				r.totals.SinkErrors++
				r.mu.Unlock()
			}
		}
	}
}

// Run drains src until it ends or ctx is cancelled, then flushes the last
// partial revolution. A source that ends cleanly returns nil.
func (r *Runtime) Run(ctx context.Context, src Source) error {
	r.mu.Lock()
	r.source = src.Name()
	r.ts.Reset()
	r.builder.Reset()
	r.mu.Unlock()

	diagf("starting source %s", src.Name())
	err := src.Run(ctx, func(pkt *parse.Packet) error {
		return r.HandlePacket(ctx, pkt)
	})

	// Flush with a context that survives the cancellation so the final
	// partial revolution still reaches storage.
	r.Flush(context.WithoutCancel(ctx))

	totals := r.Totals()
	diagf("source %s finished: packets=%d revolutions=%d in=%d out=%d sink_errors=%d",
		src.Name(), totals.Packets, totals.Revolutions, totals.Input, totals.Output, totals.SinkErrors)

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("source %s: %w", src.Name(), err)
	}
	return nil
}
