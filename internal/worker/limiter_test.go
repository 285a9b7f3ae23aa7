package worker

import (
	"testing"
	"time"
)

func TestStartLimiterReserve(t *testing.T) {
	l := newStartLimiter(2, time.Minute)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if d := l.reserve(now); d != 0 {
		t.Fatalf("first start should be free, got delay %s", d)
	}
	if d := l.reserve(now.Add(10 * time.Second)); d != 0 {
		t.Fatalf("second start should be free, got delay %s", d)
	}

	// Window full: the caller must wait until the oldest start ages out.
	d := l.reserve(now.Add(20 * time.Second))
	if d != 40*time.Second {
		t.Errorf("delay = %s, want 40s", d)
	}

	// A full window later the oldest entries are gone.
	if d := l.reserve(now.Add(2 * time.Minute)); d != 0 {
		t.Errorf("start after window expiry should be free, got delay %s", d)
	}
}

func TestStartLimiterWaitStops(t *testing.T) {
	l := newStartLimiter(1, time.Hour)
	if !l.wait(make(chan struct{})) {
		t.Fatal("first wait should succeed immediately")
	}

	stop := make(chan struct{})
	close(stop)
	if l.wait(stop) {
		t.Error("wait must return false once stop is closed")
	}
}
