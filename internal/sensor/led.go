package sensor

import (
	"sync"
	"time"
)

const (
	ledYellowWindow = 2 * time.Second
	ledRedWindow    = 3 * time.Second
)

// ledState derives the status LED from how recently depth and video
// frames were pulled. RED dominates YELLOW: a recent video pull takes
// priority even within the depth window.
type ledState struct {
	mu          sync.Mutex
	lastDepthAt time.Time
	lastVideoAt time.Time
}

func (l *ledState) markDepth() {
	l.mu.Lock()
	l.lastDepthAt = time.Now()
	l.mu.Unlock()
}

func (l *ledState) markVideo() {
	l.mu.Lock()
	l.lastVideoAt = time.Now()
	l.mu.Unlock()
}

func (l *ledState) current() LED {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if !l.lastVideoAt.IsZero() && now.Sub(l.lastVideoAt) < ledRedWindow {
		return LEDRed
	}
	if !l.lastDepthAt.IsZero() && now.Sub(l.lastDepthAt) < ledYellowWindow {
		return LEDYellow
	}
	return LEDGreen
}
