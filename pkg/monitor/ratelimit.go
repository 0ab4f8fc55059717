package monitor

import (
	"sync"
	"time"
)

// RateLimiter is a fixed-window counter guarding the sink from floods: at
// most burst deliveries are allowed per window, counted from the window
// start. It is not a sliding window, so up to 2*burst events can land
// around a window boundary; that is an accepted tradeoff for simplicity.
//
// A burst of zero disables limiting entirely. A zero window with a nonzero
// burst never elapses: the count only grows and lifetime deliveries are
// capped at burst. That combination is kept as configured rather than
// reinterpreted.
type RateLimiter struct {
	burst  int
	window time.Duration

	mu          sync.Mutex
	count       int
	windowStart time.Time
}

func NewRateLimiter(burst int, window time.Duration) *RateLimiter {
	return &RateLimiter{burst: burst, window: window, windowStart: time.Now()}
}

// Allow reports whether one more delivery fits in the current window and
// counts it if so.
func (l *RateLimiter) Allow() bool {
	if l.burst <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.window > 0 && time.Since(l.windowStart) > l.window {
		l.windowStart = time.Now()
		l.count = 0
	}

	if l.count < l.burst {
		l.count++
		return true
	}
	return false
}
