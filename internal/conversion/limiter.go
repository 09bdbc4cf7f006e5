package conversion

// limiter.go implements in-process concurrency control for conversions.
//
// Each organization gets a bounded number of simultaneous running
// conversions. Admission that cannot get a slot is rejected immediately with
// ErrTooManyConversions rather than queued behind the limit; callers retry
// after a short delay.
//
// This limiter backs the in-memory Quota implementation used by the CLI and
// tests. Service deployments enforce the same limit in the database with a
// single-row atomic update so two concurrent admissions cannot both pass.

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxConcurrent is the default per-organization conversion limit.
const DefaultMaxConcurrent = 5

// Limiter bounds concurrent conversions per organization key.
type Limiter struct {
	mu     sync.RWMutex
	max    int
	active map[string]int
}

// NewLimiter creates a limiter allowing at most maxConcurrent simultaneous
// conversions per organization.
func NewLimiter(maxConcurrent int) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Limiter{max: maxConcurrent, active: make(map[string]int)}
}

// TryAcquire attempts to take a slot for the organization without blocking.
// The caller MUST call Release with the same key when the conversion reaches
// a terminal state (use defer on the synchronous path).
func (l *Limiter) TryAcquire(org string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active[org] >= l.max {
		return false
	}
	l.active[org]++
	return true
}

// Release frees a previously acquired slot. Must be called exactly once per
// successful TryAcquire.
func (l *Limiter) Release(org string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active[org] > 0 {
		l.active[org]--
	}
	if l.active[org] == 0 {
		delete(l.active, org)
	}
}

// ActiveCount returns the organization's currently running conversions.
func (l *Limiter) ActiveCount(org string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active[org]
}

// MaxConcurrent returns the per-organization limit.
func (l *Limiter) MaxConcurrent() int {
	return l.max
}

// WaitForDrain blocks until no conversions are active or the context is
// cancelled. Used for graceful shutdown.
func (l *Limiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.mu.RLock()
			n := len(l.active)
			l.mu.RUnlock()
			if n == 0 {
				return nil
			}
		}
	}
}
