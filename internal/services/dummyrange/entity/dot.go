package entity

import "time"

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. Tests substitute a manual scheduler.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// dotEffect is owned by exactly one record; a tick whose effect no longer
// matches record.dot is stale and does nothing.
type dotEffect struct {
	damage    int
	remaining int
	interval  time.Duration
	timer     Timer
}

func (d *dotEffect) stop() {
	if d != nil && d.timer != nil {
		d.timer.Stop()
	}
}
