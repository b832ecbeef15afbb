package clock

import (
	"sync"
	"time"
)

// Clock provides time and timers to the trackers.
// This interface allows time to be driven manually in tests and replays.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending callback scheduled on a Clock.
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the call
	// stopped the timer.
	Stop() bool
}

// Real provides actual system time.
type Real struct{}

// Now returns the current system time.
func (Real) Now() time.Time {
	return time.Now()
}

// AfterFunc schedules f on its own goroutine after d.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Every calls f every d until the returned Timer is stopped. The next call is
// scheduled only after f returns, so slow callbacks never overlap.
func Every(c Clock, d time.Duration, f func()) Timer {
	t := &repeater{clock: c, interval: d, fn: f}
	t.mu.Lock()
	t.next = c.AfterFunc(d, t.fire)
	t.mu.Unlock()
	return t
}

type repeater struct {
	clock    Clock
	interval time.Duration
	fn       func()

	mu      sync.Mutex
	next    Timer
	stopped bool
}

func (r *repeater) fire() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	r.fn()

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.stopped {
		r.next = r.clock.AfterFunc(r.interval, r.fire)
	}
}

func (r *repeater) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	r.stopped = true
	if r.next != nil {
		r.next.Stop()
	}
	return true
}
