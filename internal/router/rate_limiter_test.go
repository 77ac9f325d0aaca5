package router

import "testing"

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter()

	for i := 0; i < 100; i++ {
		if !rl.Allow("alice") {
			t.Fatalf("event %d within budget was rejected", i+1)
		}
	}
	if rl.Allow("alice") {
		t.Error("event beyond the per-minute budget should be rejected")
	}

	// Budgets are per identity.
	if !rl.Allow("bob") {
		t.Error("another identity must have its own budget")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter()
	rl.Allow("alice")

	// Cleanup never evicts a fresh window.
	rl.Cleanup()
	for i := 0; i < 99; i++ {
		rl.Allow("alice")
	}
	if rl.Allow("alice") {
		t.Error("cleanup must not reset an active window")
	}
}
