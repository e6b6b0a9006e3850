package resilience

import (
	"testing"
)

func TestNewAdaptiveLimiterFromRPM_Burst(t *testing.T) {
	limiter := NewAdaptiveLimiterFromRPM(300, 30, 600, 20)

	if limiter.limiter.burst != 20 {
		t.Errorf("Expected burst 20, got %d", limiter.limiter.burst)
	}
}

func TestNewAdaptiveLimiterFromRPM_DefaultBurst(t *testing.T) {
	// 300 RPM is 5 req/s, so the derived burst is 10 (2x base rate)
	limiter := NewAdaptiveLimiterFromRPM(300, 30, 600, 0)

	if limiter.limiter.burst != 10 {
		t.Errorf("Expected derived burst 10, got %d", limiter.limiter.burst)
	}
}

func TestAdaptiveLimiter_BurstBoundsAllow(t *testing.T) {
	// 6 RPM refills a token every 10s, so within this test only the
	// initial bucket is spendable.
	limiter := NewAdaptiveLimiterFromRPM(6, 1, 12, 3)

	for i := 0; i < 3; i++ {
		if !limiter.Allow() {
			t.Fatalf("Expected request %d within burst to be allowed", i+1)
		}
	}

	if limiter.Allow() {
		t.Error("Expected request beyond burst to be denied")
	}
}
