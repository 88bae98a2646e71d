package imu

import "time"

// Timeline maps a producer's monotonic offsets onto local instants, so that
// the state machine measures durations on the producer's clock and not on
// network arrival times.
//
// When Mono goes backwards the producer restarted; the timeline rebases on
// the local receive time of that reading.
type Timeline struct {
	base    time.Time
	last    time.Duration
	started bool
}

// At returns the local instant for a reading with offset mono received at now.
func (t *Timeline) At(mono time.Duration, now time.Time) time.Time {
	if !t.started || mono < t.last {
		t.base = now.Add(-mono)
		t.started = true
	}
	t.last = mono
	return t.base.Add(mono)
}

// Started reports whether the timeline has seen at least one reading.
func (t *Timeline) Started() bool {
	return t.started
}
