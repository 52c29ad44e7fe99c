package nearfilter

// Class is the outcome of the per-point decision ladder.
type Class int

const (
	ClassInvalid   Class = iota // zero distance, not a measurement
	ClassAccepted               // trusted on its own
	ClassAmbiguous              // needs angular support from neighbours
	ClassRejected               // too weak to keep
)

func (c Class) String() string {
	switch c {
	case ClassInvalid:
		return "invalid"
	case ClassAccepted:
		return "accepted"
	case ClassAmbiguous:
		return "ambiguous"
	case ClassRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Classify places p in one of the four classes. The distance check runs
// before any intensity check.
func Classify(p Point, cfg Config, strict bool) Class {
	if p.Distance == 0 {
		return ClassInvalid
	}
	if p.Distance > NearRangeLimit {
		return ClassAccepted
	}

	intensity := uint16(p.Intensity)
	switch {
	case intensity > cfg.ConfidenceHigh:
		return ClassAccepted
	case intensity > cfg.ConfidenceMiddle:
		if strict {
			return ClassAmbiguous
		}
		return ClassAccepted
	case intensity > cfg.ConfidenceLow:
		return ClassAmbiguous
	default:
		return ClassRejected
	}
}
