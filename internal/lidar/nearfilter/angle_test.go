package nearfilter

import (
	"math"
	"testing"
)

func TestAngularGap(t *testing.T) {
	tests := []struct {
		name string
		a, b float64
		want float64
	}{
		{"same angle", 10, 10, 0},
		{"direct difference", 10, 12.5, 2.5},
		{"order does not matter", 12.5, 10, 2.5},
		{"across zero", 359.5, 0.5, 1.0},
		{"across zero reversed", 0.5, 359.5, 1.0},
		{"wide but direct", 10, 190, 180},
		{"wraparound shorter", 1, 359, 2},
		{"just under half turn", 0, 179, 179},
		{"just over half turn", 0, 181, 179},
		{"full turn", 0, 360, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AngularGap(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("AngularGap(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestGapThreshold(t *testing.T) {
	if got := GapThreshold(10, 2300); math.Abs(got-20.0/2300) > 1e-12 {
		t.Errorf("GapThreshold(10, 2300) = %v", got)
	}
	if got := GapThreshold(3600, 4500); math.Abs(got-1.6) > 1e-12 {
		t.Errorf("GapThreshold(3600, 4500) = %v, want 1.6", got)
	}
	if got := GapThreshold(10, 0); got != 0 {
		t.Errorf("GapThreshold with zero scan frequency = %v, want 0", got)
	}
}
