package pipeline

import (
	"context"
	"time"

	"github.com/banshee-data/nearfilter/internal/lidar/nearfilter"
)

// Result is one filtered revolution as handed to sinks. Sinks must treat it
// as read-only; the same value is shared by every sink and by Latest.
type Result struct {
	RevolutionID   uint64             `json:"revolution_id"`
	Source         string             `json:"source"`
	ProcessedAt    time.Time          `json:"processed_at"`
	Speed          float64            `json:"speed_deg_s"`
	Strict         bool               `json:"strict"`
	Partial        bool               `json:"partial"`
	StartTimestamp uint64             `json:"start_timestamp_ms"`
	EndTimestamp   uint64             `json:"end_timestamp_ms"`
	BuilderDropped int                `json:"builder_dropped"` // points past the revolution capacity
	Kept           []nearfilter.Point `json:"kept"`
	Dropped        []nearfilter.Point `json:"dropped"` // input points absent from Kept
	Stats          nearfilter.Stats   `json:"stats"`
	Summary        nearfilter.Summary `json:"summary"`
}

// Sink consumes filtered revolutions.
type Sink interface {
	RecordRevolution(ctx context.Context, res *Result) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, res *Result) error

func (f SinkFunc) RecordRevolution(ctx context.Context, res *Result) error { return f(ctx, res) }

// droppedPoints returns the points of input that are not in kept, treating
// both as multisets.
func droppedPoints(input, kept []nearfilter.Point) []nearfilter.Point {
	remaining := make(map[nearfilter.Point]int, len(kept))
	for _, p := range kept {
		remaining[p]++
	}
	dropped := make([]nearfilter.Point, 0, len(input)-len(kept))
	for _, p := range input {
		if remaining[p] > 0 {
			remaining[p]--
			continue
		}
		dropped = append(dropped, p)
	}
	return dropped
}
