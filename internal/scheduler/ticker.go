package scheduler

import (
	"sync"
	"time"
)

// DefaultAutoSaveInterval is the period of the auto-save safety net.
const DefaultAutoSaveInterval = time.Minute

// Ticker calls fn every interval until stopped.
type Ticker struct {
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// StartTicker launches the ticking goroutine.
func StartTicker(interval time.Duration, fn func()) *Ticker {
	if interval <= 0 {
		interval = DefaultAutoSaveInterval
	}
	t := &Ticker{
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(t.done)
		tk := time.NewTicker(interval)
		defer tk.Stop()
		for {
			select {
			case <-t.stopCh:
				return
			case <-tk.C:
				fn()
			}
		}
	}()
	return t
}

// Stop halts the ticker and waits for an in-flight fn to return.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
	<-t.done
}
