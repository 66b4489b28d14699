// Package watchdog implements a monotonic-timeout liveness monitor: it
// expects to be "kicked" regularly and calls an escalation callback the
// moment a kick is overdue.
package watchdog

import (
	"sync"
	"time"
)

// Watchdog samples a monotonic clock against a caller-kicked timestamp
// and calls its callback once per overrun tick. The zero value is not
// usable; construct with New.
type Watchdog struct {
	mu        sync.Mutex
	timeout   time.Duration
	lastKick  time.Time
	onOverrun func()

	stopCh chan struct{}
	done   chan struct{}
	once   sync.Once
}

// New constructs a Watchdog with the given initial timeout and overrun
// callback. The callback must not block; it runs on the watchdog's own
// goroutine and a slow callback delays the next sample.
func New(timeout time.Duration, onOverrun func()) *Watchdog {
	return &Watchdog{
		timeout:   timeout,
		lastKick:  time.Now(),
		onOverrun: onOverrun,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Kick resets the overdue clock.
func (w *Watchdog) Kick() {
	w.mu.Lock()
	w.lastKick = time.Now()
	w.mu.Unlock()
}

// SetTimeout changes the timeout without kicking.
func (w *Watchdog) SetTimeout(d time.Duration) {
	w.mu.Lock()
	w.timeout = d
	w.mu.Unlock()
}

// Run starts the sampling loop at the given poll interval. It blocks
// until Stop is called; callers run it in its own goroutine.
func (w *Watchdog) Run(pollInterval time.Duration) {
	defer close(w.done)

	next := time.Now().Add(pollInterval)
	for {
		select {
		case <-w.stopCh:
			return
		case <-time.After(time.Until(next)):
		}
		next = next.Add(pollInterval)

		w.mu.Lock()
		timeout := w.timeout
		overdue := time.Since(w.lastKick) > timeout
		w.mu.Unlock()

		if overdue && w.onOverrun != nil {
			w.onOverrun()
		}
	}
}

// Stop requests the run loop to exit and waits for it to do so. Stop
// must only be called after Run has started, or it blocks forever.
func (w *Watchdog) Stop() {
	w.once.Do(func() { close(w.stopCh) })
	<-w.done
}
