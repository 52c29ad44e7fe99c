package nearfilter

import "math"

// AngularGap returns the smallest angle in degrees between a and b on the
// circle, so 359.5 and 0.5 are 1 degree apart.
func AngularGap(a, b float64) float64 {
	raw := math.Mod(math.Abs(a-b), 360)
	if wrap := 360 - raw; wrap < raw {
		return wrap
	}
	return raw
}

// GapThreshold is the largest angular gap (degrees) between neighbouring
// ambiguous points that still counts as one surface: two sampling steps at
// the given rotational speed.
func GapThreshold(speed, scanFreq float64) float64 {
	if scanFreq <= 0 {
		return 0
	}
	return speed / scanFreq * 2.0
}
