package sink

import "time"

// TimeProvider supplies the wall clock and pacing timers of a sink.
// Tests inject a fake to control uptime, jitter and sleep lengths.
type TimeProvider interface {
	// Now is the send time used for uptime and jitter.
	Now() time.Time
	// NewTimer arms one pacing or idle sleep.
	NewTimer(d time.Duration) *time.Timer
}

// RealTimeProvider reads the system clock.
type RealTimeProvider struct{}

func (RealTimeProvider) Now() time.Time { return time.Now() }

func (RealTimeProvider) NewTimer(d time.Duration) *time.Timer { return time.NewTimer(d) }
