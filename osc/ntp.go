package osc

import (
	"math"
	"time"
)

// ntpDelta is the number of seconds between the NTP epoch (1900-01-01) and
// the Unix epoch (1970-01-01).
const ntpDelta = 2208988800

// ntpScale is 2^32, the unit of the low 32 bits of an NTP time tag
// (1 / ntpScale seconds).
const ntpScale = 1 << 32

// TimeTag is a 64-bit NTP timestamp: the high 32 bits are seconds since
// 1900-01-01 UTC, the low 32 bits are fractional seconds.
type TimeTag uint64

// Immediately is the reserved time tag value meaning "dispatch now". Its
// wire encoding is the 8 bytes `00 00 00 00 00 00 00 01`.
const Immediately TimeTag = 1

// NewTimeTag converts a system time into an NTP time tag.
func NewTimeTag(t time.Time) TimeTag {
	seconds := float64(t.UnixNano()) / float64(time.Second)
	return TimeTag(SystemToNTP(seconds))
}

// Time converts the time tag back into a system time. Calling this on
// Immediately returns a time fractionally after the NTP epoch and is
// meaningless on its own; callers should check IsImmediate first.
func (t TimeTag) Time() time.Time {
	seconds := NTPToSystem(uint64(t))
	return time.Unix(0, 0).Add(time.Duration(seconds * float64(time.Second)))
}

// IsImmediate reports whether the time tag is the reserved Immediately
// sentinel.
func (t TimeTag) IsImmediate() bool {
	return t == Immediately
}

// SystemToNTP converts seconds since the Unix epoch into the raw 64-bit NTP
// timestamp used on the wire.
func SystemToNTP(seconds float64) uint64 {
	return uint64(math.Round((seconds + ntpDelta) * ntpScale))
}

// NTPToSystem converts a raw 64-bit NTP timestamp into seconds since the
// Unix epoch.
func NTPToSystem(n uint64) float64 {
	return float64(n)/ntpScale - ntpDelta
}
