package resilience

import (
	"context"
	crand "crypto/rand"
	"time"
)

// Policy holds the retry and breaker tuning for one wrapped connector.
// Zero values are replaced by the defaults below.
type Policy struct {
	// Retry
	MaxAttempts int           // total attempts per call, transient errors only
	BackoffBase time.Duration // first backoff step, doubles per attempt

	// Per-call bound, independent of the caller's own deadline.
	CallTimeout time.Duration

	// Breaker
	FailureThreshold   int           // consecutive failures before tripping
	FailureWindow      time.Duration // fixed window for "consecutive"
	RecoveryTimeout    time.Duration // initial OPEN cooldown
	MaxRecoveryTimeout time.Duration // cap for exponential growth
}

const (
	defaultMaxAttempts        = 3
	defaultBackoffBase        = 200 * time.Millisecond
	defaultCallTimeout        = 30 * time.Second
	defaultFailureThreshold   = 5
	defaultFailureWindow      = 60 * time.Second
	defaultRecoveryTimeout    = 60 * time.Second
	defaultMaxRecoveryTimeout = 10 * time.Minute
)

// withDefaults fills unset fields.
func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BackoffBase <= 0 {
		p.BackoffBase = defaultBackoffBase
	}
	if p.CallTimeout <= 0 {
		p.CallTimeout = defaultCallTimeout
	}
	if p.FailureThreshold <= 0 {
		p.FailureThreshold = defaultFailureThreshold
	}
	if p.FailureWindow <= 0 {
		p.FailureWindow = defaultFailureWindow
	}
	if p.RecoveryTimeout <= 0 {
		p.RecoveryTimeout = defaultRecoveryTimeout
	}
	if p.MaxRecoveryTimeout <= 0 {
		p.MaxRecoveryTimeout = defaultMaxRecoveryTimeout
	}
	return p
}

// Backoff returns the exponential delay for retry attempt i (0,1,2,...)
// with up to +50% jitter so concurrent instances don't retry in lockstep.
func (p Policy) Backoff(i int) time.Duration {
	base := p.BackoffBase << uint(i)
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}

// sleepCtx waits for d or returns false early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
