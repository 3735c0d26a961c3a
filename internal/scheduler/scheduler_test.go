package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncer_BurstCollapsesToOneCall(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(100*time.Millisecond, func() { calls.Add(1) })
	defer d.Stop()

	// Three signals 20ms apart, then silence.
	for i := 0; i < 3; i++ {
		d.Trigger()
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(t, int32(0), calls.Load(), "must not fire inside the quiet window")

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, d.Pending())
}

func TestDebouncer_EachTriggerResetsWindow(t *testing.T) {
	fired := make(chan time.Time, 4)
	d := NewDebouncer(80*time.Millisecond, func() { fired <- time.Now() })
	defer d.Stop()

	start := time.Now()
	d.Trigger()
	time.Sleep(50 * time.Millisecond)
	d.Trigger()

	select {
	case at := <-fired:
		assert.GreaterOrEqual(t, at.Sub(start), 125*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("debounced call never fired")
	}
}

func TestDebouncer_NoTriggerNoCall(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { calls.Add(1) })
	time.Sleep(60 * time.Millisecond)
	d.Stop()
	assert.Equal(t, int32(0), calls.Load())
}

func TestDebouncer_StopDropsPending(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(30*time.Millisecond, func() { calls.Add(1) })
	d.Trigger()
	assert.True(t, d.Pending())
	d.Stop()
	d.Trigger()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestDebouncer_CancelThenTriggerAgain(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(30*time.Millisecond, func() { calls.Add(1) })
	defer d.Stop()
	d.Trigger()
	d.Cancel()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())

	d.Trigger()
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 10*time.Millisecond)
}

func TestDebouncer_InFlightCallbackCompletes(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var completed atomic.Int32
	d := NewDebouncer(10*time.Millisecond, func() {
		close(started)
		<-release
		completed.Add(1)
	})
	defer d.Stop()

	d.Trigger()
	<-started
	// Cancelling while the callback runs does not interrupt it.
	d.Cancel()
	close(release)
	assert.Eventually(t, func() bool { return completed.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestTicker_FiresPeriodically(t *testing.T) {
	var ticks atomic.Int32
	tk := StartTicker(20*time.Millisecond, func() { ticks.Add(1) })
	assert.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, 5*time.Millisecond)
	tk.Stop()
	n := ticks.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, n, ticks.Load(), "no ticks after Stop")
	tk.Stop()
}
