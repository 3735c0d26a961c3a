// Package scheduler provides the trailing-edge debouncer and the periodic
// ticker that drive background saves.
package scheduler

import (
	"sync"
	"time"
)

// DefaultQuietWindow is the debounce window used when none is configured.
const DefaultQuietWindow = time.Second

// Debouncer collapses bursts of Trigger calls into one call of fn, fired once
// the quiet window has elapsed without a new Trigger. Each Trigger replaces
// the pending timer. A callback that already started is never interrupted.
type Debouncer struct {
	window time.Duration
	fn     func()

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	stopped bool
}

// NewDebouncer returns a debouncer calling fn after window of silence.
func NewDebouncer(window time.Duration, fn func()) *Debouncer {
	if window <= 0 {
		window = DefaultQuietWindow
	}
	return &Debouncer{window: window, fn: fn}
}

// Trigger (re)starts the quiet window.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		if d.stopped || gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		d.fn()
	})
}

// Pending reports whether a timer is waiting to fire.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Cancel drops the pending timer, if any, without firing it.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

// Stop cancels the pending timer and ignores later triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
