package worker

import "time"

// Clock maps wall clock time to slots. Slot 0 is the genesis, slot 1 starts
// at the genesis date.
type Clock struct {
	start    time.Time
	duration time.Duration
}

// NewClock constructs a clock for slots of the specified duration starting
// at the genesis date.
func NewClock(start time.Time, duration time.Duration) Clock {
	if duration <= 0 {
		duration = time.Second
	}

	return Clock{
		start:    start,
		duration: duration,
	}
}

// Slot returns the slot the time falls in.
func (c Clock) Slot(t time.Time) uint64 {
	if t.Before(c.start) {
		return 0
	}
	return uint64(t.Sub(c.start)/c.duration) + 1
}

// Start returns the time the slot begins.
func (c Clock) Start(slot uint64) time.Time {
	if slot == 0 {
		return c.start
	}
	return c.start.Add(time.Duration(slot-1) * c.duration)
}
