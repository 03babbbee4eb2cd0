// Package debounce delays a callback until its input has been quiet for a fixed period.
package debounce

import (
	"sync"
	"time"
)

const DefaultDelay = 500 * time.Millisecond

type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc is used unless another one is injected.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Debouncer owns at most one pending callback. Every Trigger cancels the previous one.
type Debouncer struct {
	mu        sync.Mutex
	delay     time.Duration
	afterFunc AfterFunc

	pending    Timer
	generation uint64
	stopped    bool
}

func New(delay time.Duration, afterFunc AfterFunc) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if afterFunc == nil {
		afterFunc = realAfterFunc
	}

	return &Debouncer{
		delay:     delay,
		afterFunc: afterFunc,
	}
}

func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.cancelLocked()
	generation := d.generation

	d.pending = d.afterFunc(d.delay, func() {
		d.mu.Lock()
		// a timer that already fired can lose the race with Stop
		if d.stopped || d.generation != generation {
			d.mu.Unlock()
			return
		}
		d.pending = nil
		d.mu.Unlock()

		fn()
	})
}

// Cancel drops the pending callback, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cancelLocked()
}

// Stop cancels the pending callback and ignores every later Trigger.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cancelLocked()
	d.stopped = true
}

func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.pending != nil
}

func (d *Debouncer) cancelLocked() {
	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
	d.generation++
}
