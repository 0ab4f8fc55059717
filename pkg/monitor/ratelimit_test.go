package monitor

import (
	"testing"
	"time"
)

func TestRateLimiterZeroBurstIsUnlimited(t *testing.T) {
	l := NewRateLimiter(0, time.Second)
	for i := 0; i < 100; i++ {
		if !l.Allow() {
			t.Fatalf("call %d denied with burst 0", i)
		}
	}
}

func TestRateLimiterDeniesBeyondBurst(t *testing.T) {
	l := NewRateLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Fatalf("call %d should be allowed", i)
		}
	}
	if l.Allow() {
		t.Error("call beyond burst should be denied")
	}
	if l.Allow() {
		t.Error("subsequent call should also be denied")
	}
}

func TestRateLimiterResetsAfterWindow(t *testing.T) {
	l := NewRateLimiter(2, 20*time.Millisecond)

	if !l.Allow() || !l.Allow() {
		t.Fatal("first window should allow burst")
	}
	if l.Allow() {
		t.Fatal("burst exceeded, should deny")
	}

	time.Sleep(30 * time.Millisecond)

	if !l.Allow() || !l.Allow() {
		t.Error("new window should allow burst again")
	}
	if l.Allow() {
		t.Error("new window burst exceeded, should deny")
	}
}

func TestRateLimiterZeroWindowNeverResets(t *testing.T) {
	// With a zero window the count never resets, capping lifetime
	// deliveries at burst.
	l := NewRateLimiter(2, 0)

	if !l.Allow() || !l.Allow() {
		t.Fatal("burst should be allowed")
	}

	time.Sleep(10 * time.Millisecond)

	if l.Allow() {
		t.Error("zero window must never elapse")
	}
}
