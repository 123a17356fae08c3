package ratelimit

import (
	"testing"
	"time"

	"github.com/dhightnm/fly-overhead-sub002/pkg/logger"
)

func newTestLimiter(now *time.Time) *Limiter {
	l := New("test-provider", 300*time.Second, 3600*time.Second, logger.NewNop())
	l.now = func() time.Time { return *now }
	return l
}

func TestExponentialBackoff(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(&now)

	l.RecordFailure(0)
	first := l.BlockedUntil().Sub(now)
	if first != 300*time.Second {
		t.Errorf("first backoff = %v, want 300s", first)
	}

	l.RecordFailure(0)
	second := l.BlockedUntil().Sub(now)
	if second != 600*time.Second {
		t.Errorf("second backoff = %v, want 600s", second)
	}

	// Keep failing until the cap
	for i := 0; i < 10; i++ {
		l.RecordFailure(0)
	}
	capped := l.BlockedUntil().Sub(now)
	if capped != 3600*time.Second {
		t.Errorf("capped backoff = %v, want 3600s", capped)
	}
}

func TestRetryAfterOverridesBackoff(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(&now)

	l.RecordFailure(42 * time.Second)
	got := l.BlockedUntil().Sub(now)
	if got != 42*time.Second {
		t.Errorf("backoff = %v, want provider-supplied 42s", got)
	}
}

func TestIsBlockedClearsExpiredWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(&now)

	l.RecordFailure(0)
	if !l.IsBlocked() {
		t.Fatal("expected blocked immediately after failure")
	}

	now = now.Add(301 * time.Second)
	if l.IsBlocked() {
		t.Error("expected unblocked after window expired")
	}
	if !l.BlockedUntil().IsZero() {
		t.Error("expected expired window to be cleared")
	}

	// Failure count survives expiry, so the next failure escalates
	l.RecordFailure(0)
	next := l.BlockedUntil().Sub(now)
	if next != 600*time.Second {
		t.Errorf("backoff after expiry = %v, want escalated 600s", next)
	}
}

func TestRecordSuccessResets(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(&now)

	l.RecordFailure(0)
	l.RecordFailure(0)
	l.RecordSuccess()

	if l.IsBlocked() {
		t.Error("expected unblocked after success")
	}

	l.RecordFailure(0)
	got := l.BlockedUntil().Sub(now)
	if got != 300*time.Second {
		t.Errorf("backoff after reset = %v, want base 300s", got)
	}
}
