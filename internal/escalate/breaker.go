package escalate

import (
	"sync"
	"time"

	"github.com/sinain/sinain-core/internal/metrics"
)

const (
	breakerFailureThreshold = 5
	breakerFailureWindow    = 120 * time.Second
	breakerOpenDuration     = 300 * time.Second
)

// breaker is a simple consecutive-failure circuit breaker: after
// breakerFailureThreshold RPC/HTTP failures within breakerFailureWindow,
// it opens for breakerOpenDuration, then half-opens for one probe.
type breaker struct {
	mu          sync.Mutex
	failures    int
	firstFailAt time.Time
	openUntil   time.Time
	probing     bool
}

// Allow reports whether a call may proceed. When the breaker is open, it
// reports false; once openUntil has passed, it allows exactly one
// half-open probe before deciding based on its outcome.
func (b *breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.openUntil.IsZero() {
		return true
	}
	if time.Now().Before(b.openUntil) {
		return false
	}
	if !b.probing {
		b.probing = true
		return true
	}
	return false
}

// RecordSuccess clears the breaker's failure state.
func (b *breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.firstFailAt = time.Time{}
	b.openUntil = time.Time{}
	b.probing = false
	metrics.CircuitBreakerOpen.Set(0)
}

// RecordFailure registers a failure, opening the breaker once the
// threshold is reached within the failure window.
func (b *breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if b.probing {
		// The half-open probe failed: reopen for a full open window.
		b.probing = false
		b.openUntil = now.Add(breakerOpenDuration)
		metrics.CircuitBreakerOpen.Set(1)
		return
	}
	if b.firstFailAt.IsZero() || now.Sub(b.firstFailAt) > breakerFailureWindow {
		b.firstFailAt = now
		b.failures = 0
	}
	b.failures++
	b.probing = false

	if b.failures >= breakerFailureThreshold {
		b.openUntil = now.Add(breakerOpenDuration)
		metrics.CircuitBreakerOpen.Set(1)
	}
}

// IsOpen reports whether the breaker is currently blocking calls.
func (b *breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.openUntil.IsZero() && time.Now().Before(b.openUntil) && !b.probing
}
