package nearfilter

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats records where the points of one revolution ended up.
//
// Input = Invalid + Accepted + Ambiguous + Rejected always holds.
type Stats struct {
	Input        int     `json:"input"`
	Invalid      int     `json:"invalid"`  // zero distance
	Far          int     `json:"far"`      // subset of Accepted beyond NearRangeLimit
	Accepted     int     `json:"accepted"` // kept without clustering
	Ambiguous    int     `json:"ambiguous"`
	Rejected     int     `json:"rejected"`
	Clusters     int     `json:"clusters"` // ambiguous clusters promoted
	Promoted     int     `json:"promoted"` // ambiguous points kept via clusters
	Output       int     `json:"output"`
	Overflow     int     `json:"overflow"` // kept points dropped for capacity
	GapThreshold float64 `json:"gap_threshold_deg"`
}

// Dropped returns how many input points are missing from the output.
func (s Stats) Dropped() int { return s.Input - s.Output }

// Summary describes the points of a batch.
type Summary struct {
	Count           int     `json:"count"`
	MeanIntensity   float64 `json:"mean_intensity"`
	StdDevIntensity float64 `json:"stddev_intensity"`
	MeanDistance    float64 `json:"mean_distance_mm"`
	MinAngle        float64 `json:"min_angle"`
	MaxAngle        float64 `json:"max_angle"`
}

// Summarize computes intensity and distance statistics over points.
func Summarize(points []Point) Summary {
	if len(points) == 0 {
		return Summary{}
	}

	intensity := make([]float64, len(points))
	distance := make([]float64, len(points))
	angle := make([]float64, len(points))
	for i, p := range points {
		intensity[i] = float64(p.Intensity)
		distance[i] = float64(p.Distance)
		angle[i] = p.Angle
	}

	s := Summary{
		Count:        len(points),
		MeanDistance: stat.Mean(distance, nil),
		MinAngle:     floats.Min(angle),
		MaxAngle:     floats.Max(angle),
	}
	if len(points) == 1 {
		s.MeanIntensity = intensity[0]
		return s
	}
	s.MeanIntensity, s.StdDevIntensity = stat.MeanStdDev(intensity, nil)
	return s
}
