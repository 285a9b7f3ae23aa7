package middleware

import (
	"testing"
	"time"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    3,
		window:   time.Minute,
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if !rl.allow("1.2.3.4", now) {
			t.Fatalf("request %d should have been allowed", i+1)
		}
	}
	if rl.allow("1.2.3.4", now) {
		t.Fatal("fourth request inside the window should have been limited")
	}

	// A different IP is independent.
	if !rl.allow("5.6.7.8", now) {
		t.Fatal("different IP should not share the window")
	}

	// Window expiry resets the count.
	later := now.Add(2 * time.Minute)
	if !rl.allow("1.2.3.4", later) {
		t.Fatal("request after window expiry should have been allowed")
	}
}
