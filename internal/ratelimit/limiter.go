// Package ratelimit tracks backoff state for external providers.
//
// One Limiter guards one provider. Consumers check IsBlocked before
// every call and report the outcome with RecordFailure or RecordSuccess;
// the limiter is the shared backpressure signal between the resolver,
// the backfill workers and anything else touching the same provider.
package ratelimit

import (
	"sync"
	"time"

	"github.com/dhightnm/fly-overhead-sub002/pkg/logger"
)

// Limiter holds the block window for a single provider. Safe for
// concurrent use.
type Limiter struct {
	mu                  sync.Mutex
	name                string
	baseBackoff         time.Duration
	maxBackoff          time.Duration
	blockedUntil        time.Time
	consecutiveFailures int
	logger              *logger.Logger
	now                 func() time.Time
}

// New creates a limiter for the named provider. baseBackoff is the
// first-failure window; repeated failures double it up to maxBackoff.
func New(name string, baseBackoff, maxBackoff time.Duration, log *logger.Logger) *Limiter {
	return &Limiter{
		name:        name,
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
		logger:      log.Named("ratelimit"),
		now:         time.Now,
	}
}

// IsBlocked reports whether the provider is inside a backoff window.
// An expired window is cleared as a side effect; the failure count is
// kept so the next failure still escalates.
func (l *Limiter) IsBlocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.blockedUntil.IsZero() {
		return false
	}
	if l.now().After(l.blockedUntil) {
		l.blockedUntil = time.Time{}
		return false
	}
	return true
}

// RecordFailure registers a rate-limit response. When the provider
// supplied a Retry-After it is used directly; otherwise the window grows
// exponentially with the consecutive failure count.
func (l *Limiter) RecordFailure(retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.consecutiveFailures++

	backoff := retryAfter
	if backoff <= 0 {
		backoff = l.baseBackoff << (l.consecutiveFailures - 1)
		if backoff > l.maxBackoff || backoff <= 0 {
			backoff = l.maxBackoff
		}
	}

	l.blockedUntil = l.now().Add(backoff)
	l.logger.Warn("Provider rate limited",
		logger.String("provider", l.name),
		logger.Int("consecutive_failures", l.consecutiveFailures),
		logger.Duration("backoff", backoff))
}

// RecordSuccess resets the failure count and unblocks immediately
func (l *Limiter) RecordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.consecutiveFailures > 0 {
		l.logger.Info("Provider recovered",
			logger.String("provider", l.name),
			logger.Int("consecutive_failures", l.consecutiveFailures))
	}
	l.consecutiveFailures = 0
	l.blockedUntil = time.Time{}
}

// BlockedUntil returns the end of the current backoff window, zero when
// unblocked. Exposed for the health endpoint.
func (l *Limiter) BlockedUntil() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.blockedUntil
}
