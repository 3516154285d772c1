// Package simtime provides the monotonic simulated Time/Duration scalars
// that drive the scheduler and every per-agent state machine.
package simtime

import "fmt"

// Time is a monotonic scalar in seconds since the start of the simulated
// day. It is a plain float64 newtype, grounded on the teacher's
// clock.Clock.T field, but unlike clock.Clock it carries no mutable global
// state: every component compares/adds Time values directly.
type Time float64

// Duration is the difference of two Time values, also in seconds.
type Duration float64

// ZERO is the zero duration.
const ZERO Duration = 0

// StartOfDay is Time's zero value, 00:00:00.
const StartOfDay Time = 0

// Add returns t advanced by d.
func (t Time) Add(d Duration) Time {
	return t + Time(d)
}

// Sub returns the Duration between t and other (t - other).
func (t Time) Sub(other Time) Duration {
	return Duration(t - other)
}

// Before reports whether t is strictly earlier than other.
func (t Time) Before(other Time) bool {
	return t < other
}

// After reports whether t is strictly later than other.
func (t Time) After(other Time) bool {
	return t > other
}

// Seconds returns the raw float64 seconds value.
func (t Time) Seconds() float64 {
	return float64(t)
}

// String formats t as HH:MM:SS, following clock.Clock.String()'s format.
func (t Time) String() string {
	total := int64(t)
	if total < 0 {
		total = 0
	}
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Seconds returns the raw float64 seconds value.
func (d Duration) Seconds() float64 {
	return float64(d)
}

// FromSeconds builds a Duration from a plain float64 of seconds.
func FromSeconds(s float64) Duration {
	return Duration(s)
}
