package watchdog

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestWatchdogFiresOnOverrun(t *testing.T) {
	var overruns atomic.Int32
	w := New(100*time.Millisecond, func() { overruns.Add(1) })

	go w.Run(20 * time.Millisecond)
	defer w.Stop()

	time.Sleep(400 * time.Millisecond)

	if overruns.Load() == 0 {
		t.Fatalf("expected at least one overrun callback, got 0")
	}
}

func TestWatchdogKickSuppressesOverrun(t *testing.T) {
	var overruns atomic.Int32
	w := New(200*time.Millisecond, func() { overruns.Add(1) })

	go w.Run(20 * time.Millisecond)
	defer w.Stop()

	stop := time.After(150 * time.Millisecond)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ticker.C:
			w.Kick()
		case <-stop:
			break loop
		}
	}

	if overruns.Load() != 0 {
		t.Fatalf("expected no overruns while kicked regularly, got %d", overruns.Load())
	}
}

func TestWatchdogStopHaltsLoop(t *testing.T) {
	var overruns atomic.Int32
	w := New(10*time.Millisecond, func() { overruns.Add(1) })

	go w.Run(5 * time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	w.Stop()

	seenAfterStop := overruns.Load()
	time.Sleep(50 * time.Millisecond)
	if overruns.Load() != seenAfterStop {
		t.Fatalf("expected no further callbacks after Stop, went from %d to %d", seenAfterStop, overruns.Load())
	}
}
