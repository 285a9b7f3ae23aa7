package worker

import (
	"sync"
	"time"
)

// startLimiter caps how many job starts may happen inside a sliding window,
// protecting the CPU-bound transcoder from a burst of queued work landing at
// once. Modeled after the per-IP request limiter on the HTTP side.
type startLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	starts []time.Time
}

func newStartLimiter(max int, window time.Duration) *startLimiter {
	return &startLimiter{max: max, window: window}
}

// reserve records a start if the window has room and returns 0, otherwise
// returns how long the caller must wait for the oldest start to fall out of
// the window.
func (l *startLimiter) reserve(now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	kept := l.starts[:0]
	for _, t := range l.starts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.starts = kept

	if len(l.starts) < l.max {
		l.starts = append(l.starts, now)
		return 0
	}

	return l.starts[0].Sub(cutoff)
}

// wait blocks until a start slot is free or stop closes. Returns false on
// stop.
func (l *startLimiter) wait(stop <-chan struct{}) bool {
	for {
		delay := l.reserve(time.Now())
		if delay <= 0 {
			return true
		}

		select {
		case <-stop:
			return false
		case <-time.After(delay):
		}
	}
}
