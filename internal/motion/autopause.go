package motion

import (
	"sync"
	"time"
)

// DefaultStillThreshold is how long speed must stay at zero (or missing)
// before a recording is auto-paused.
const DefaultStillThreshold = 5 * time.Minute

type State int

const (
	StateMoving State = iota
	StateStoppedPending
	StateAutoPaused
)

// Timer is the armed deadline for a pending stop. Stop reports whether the
// timer was cancelled before firing.
type Timer interface {
	Stop() bool
}

// TimerFactory creates a one-shot timer; tests substitute a manual one.
type TimerFactory func(d time.Duration, fn func()) Timer

type wallTimer struct{ t *time.Timer }

func (w wallTimer) Stop() bool { return w.t.Stop() }

// Detector is the auto-pause state machine: Moving, StoppedPending,
// AutoPaused. A deadline is armed on entry to StoppedPending and cancelled on
// any exit, so the transition table stays exhaustive and testable apart from
// wall-clock timing.
type Detector struct {
	mu          sync.Mutex
	threshold   time.Duration
	now         func() time.Time
	newTimer    TimerFactory
	onAutoPause func()

	state     State
	stoppedAt time.Time
	timer     Timer
}

// NewDetector builds a detector firing onAutoPause once per qualifying
// no-movement run. A zero threshold selects DefaultStillThreshold.
func NewDetector(threshold time.Duration, onAutoPause func()) *Detector {
	if threshold <= 0 {
		threshold = DefaultStillThreshold
	}
	return &Detector{
		threshold: threshold,
		now:       time.Now,
		newTimer: func(d time.Duration, fn func()) Timer {
			return wallTimer{t: time.AfterFunc(d, fn)}
		},
		onAutoPause: onAutoPause,
	}
}

// SetClock replaces the clock and timer factory, for tests.
func (d *Detector) SetClock(now func() time.Time, factory TimerFactory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
	d.newTimer = factory
}

func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Observe feeds one speed sample. speedValid is false when the position fix
// carried no speed, which counts the same as a zero reading. Any non-zero
// speed returns to Moving from every state and disarms the deadline.
func (d *Detector) Observe(speedMps float64, speedValid bool) {
	d.mu.Lock()

	if speedValid && speedMps > 0 {
		d.toMovingLocked()
		d.mu.Unlock()
		return
	}

	switch d.state {
	case StateMoving:
		d.state = StateStoppedPending
		d.stoppedAt = d.now()
		d.timer = d.newTimer(d.threshold, d.deadlineFired)
		d.mu.Unlock()
	case StateStoppedPending:
		// Sample-driven path for when the armed timer has not fired yet
		// but the deadline already passed.
		if d.now().Sub(d.stoppedAt) >= d.threshold {
			d.pauseLocked()
			return
		}
		d.mu.Unlock()
	default:
		d.mu.Unlock()
	}
}

// Reset returns to Moving and disarms any pending deadline. Manual
// pause/resume calls this so the stillness baseline restarts.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.toMovingLocked()
	d.mu.Unlock()
}

func (d *Detector) deadlineFired() {
	d.mu.Lock()
	if d.state != StateStoppedPending {
		d.mu.Unlock()
		return
	}
	d.pauseLocked()
}

// pauseLocked transitions to AutoPaused and fires the callback outside the
// lock. Callers hold d.mu; it is released here.
func (d *Detector) pauseLocked() {
	d.state = StateAutoPaused
	d.timer = nil
	cb := d.onAutoPause
	d.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (d *Detector) toMovingLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.state = StateMoving
}
