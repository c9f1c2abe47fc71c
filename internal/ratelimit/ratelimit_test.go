package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinLimit(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	limiter := NewLimiterWithClock(time.Minute, func() time.Time { return now })

	for i := 0; i < 5; i++ {
		if !limiter.Allow("10.0.0.1", "vote", 5) {
			t.Fatalf("request %d rejected within limit", i+1)
		}
	}
	if limiter.Allow("10.0.0.1", "vote", 5) {
		t.Error("request over limit allowed")
	}
}

func TestWindowReset(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	limiter := NewLimiterWithClock(time.Minute, func() time.Time { return now })

	for i := 0; i < 3; i++ {
		limiter.Allow("10.0.0.1", "login", 3)
	}
	if limiter.Allow("10.0.0.1", "login", 3) {
		t.Fatal("over-limit request allowed in same window")
	}

	// 窗口翻转后配额恢复
	now = now.Add(time.Minute)
	if !limiter.Allow("10.0.0.1", "login", 3) {
		t.Error("request rejected after window reset")
	}
}

func TestKeysIsolated(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	limiter := NewLimiterWithClock(time.Minute, func() time.Time { return now })

	if !limiter.Allow("10.0.0.1", "vote", 1) {
		t.Fatal("first request rejected")
	}
	if limiter.Allow("10.0.0.1", "vote", 1) {
		t.Error("second request on same key allowed")
	}
	// 不同IP和不同类别各有独立配额
	if !limiter.Allow("10.0.0.2", "vote", 1) {
		t.Error("different IP rejected")
	}
	if !limiter.Allow("10.0.0.1", "login", 1) {
		t.Error("different class rejected")
	}
}

func TestReset(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	limiter := NewLimiterWithClock(time.Minute, func() time.Time { return now })

	limiter.Allow("10.0.0.1", "vote", 1)
	if limiter.Allow("10.0.0.1", "vote", 1) {
		t.Fatal("over-limit request allowed")
	}
	limiter.Reset()
	if !limiter.Allow("10.0.0.1", "vote", 1) {
		t.Error("request rejected after Reset")
	}
}
