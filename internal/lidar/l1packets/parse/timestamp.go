package parse

// TimestampUnwrapper turns the sensor's wrapping millisecond counter into a
// monotonic one. The zero value is ready to use.
type TimestampUnwrapper struct {
	started bool
	last    uint16
	base    uint64
}

// Unwrap returns the monotonic timestamp for raw. A raw value lower than the
// previous one is taken as a single rollover at TimestampWrapMs.
func (u *TimestampUnwrapper) Unwrap(raw uint16) uint64 {
	if u.started && raw < u.last {
		u.base += TimestampWrapMs
	}
	u.started = true
	u.last = raw
	return u.base + uint64(raw)
}

// Reset forgets all history.
func (u *TimestampUnwrapper) Reset() { *u = TimestampUnwrapper{} }
