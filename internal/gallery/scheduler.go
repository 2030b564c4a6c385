package gallery

import "time"

// Timer is a cancellable handle to a deferred task
type Timer interface {
	Stop() bool
}

// Scheduler runs deferred tasks. The default wraps time.AfterFunc; tests swap
// in a manual scheduler to fire removals deterministically.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ClockScheduler returns the wall-clock scheduler
func ClockScheduler() Scheduler {
	return clockScheduler{}
}
