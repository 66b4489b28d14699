package sensor

import (
	"context"
	"sync"
	"time"
)

// slot is a single-frame mailbox with two 1-capacity token channels:
// empty holds a token when the buffer is free for the producer to
// fill, full holds one when the consumer has a frame waiting. It is
// framesupplier's worker slot narrowed to exactly one producer and one
// consumer; a frame never overwrites one still waiting in the slot:
// the producer waits for the empty token, or drops its frame on
// timeout (see produce).
type slot struct {
	mu        sync.Mutex
	data      []byte
	timestamp time.Time

	empty chan struct{}
	full  chan struct{}
}

func newSlot(size int) *slot {
	s := &slot{
		data:  make([]byte, size),
		empty: make(chan struct{}, 1),
		full:  make(chan struct{}, 1),
	}
	s.empty <- struct{}{}
	return s
}

// produce claims the empty token, copies frame into the buffer, and
// posts the full token. If timeout is zero it waits indefinitely for
// the empty token (the video path); otherwise it gives up and reports
// dropped=true if no token is free within timeout (the depth path's
// back-pressure release).
func (s *slot) produce(frame []byte, timeout time.Duration) (dropped bool) {
	if timeout > 0 {
		select {
		case <-s.empty:
		case <-time.After(timeout):
			return true
		}
	} else {
		<-s.empty
	}

	s.mu.Lock()
	copy(s.data, frame)
	s.timestamp = time.Now()
	s.mu.Unlock()

	select {
	case s.full <- struct{}{}:
	default:
	}
	return false
}

// consume blocks for the full token (or ctx cancellation), runs fn
// against the buffer under the slot's mutex, then posts the empty
// token back. Returns false if ctx was cancelled before a frame
// arrived.
func (s *slot) consume(ctx context.Context, fn func(data []byte, ts time.Time)) bool {
	select {
	case <-s.full:
	case <-ctx.Done():
		return false
	}

	s.mu.Lock()
	fn(s.data, s.timestamp)
	s.mu.Unlock()

	select {
	case s.empty <- struct{}{}:
	default:
	}
	return true
}
