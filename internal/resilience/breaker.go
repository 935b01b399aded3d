package resilience

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"pmsbridge/internal/adapters/observability"
	"pmsbridge/internal/domain"
)

// casAttempts bounds the optimistic-update loop when instances race.
const casAttempts = 4

// Breaker is the per-vendor circuit state machine. State lives in a
// shared CircuitStore so every running instance observes the same
// circuit; all mutations go through compare-and-swap.
//
// Fixed-window failure counting with single-probe reopen: one HALF_OPEN
// probe at a time, and a failed probe reopens immediately with a doubled
// (capped) recovery timeout.
type Breaker struct {
	vendor string
	store  domain.CircuitStore
	pol    Policy
	now    func() time.Time
}

// NewBreaker builds a breaker for one vendor. now is injectable for tests;
// nil means time.Now.
func NewBreaker(vendor string, store domain.CircuitStore, pol Policy, now func() time.Time) *Breaker {
	if now == nil {
		now = time.Now
	}
	return &Breaker{vendor: vendor, store: store, pol: pol.withDefaults(), now: now}
}

// view carries the record a call was admitted under, so the outcome is
// applied against the same observed version.
type view struct {
	rec   domain.CircuitRecord
	probe bool
}

// Allow decides whether a call may proceed. It returns a typed
// CircuitOpenError while the circuit is open or a probe is already in
// flight. Claiming the single HALF_OPEN probe is a CAS transition, so
// exactly one instance wins it.
func (b *Breaker) Allow(ctx context.Context, class domain.OpClass) (view, error) {
	rec, err := b.store.Get(ctx, b.vendor, class)
	if err != nil {
		// A dead state store must not take every vendor down with it.
		log.Warn().Err(err).Str("vendor", b.vendor).Str("class", string(class)).
			Msg("circuit store unavailable, admitting call")
		return view{}, nil
	}

	switch rec.State {
	case domain.CircuitOpen:
		if b.now().Before(rec.RetryAt) {
			return view{}, domain.CircuitOpenErr(b.vendor, string(class), rec.RetryAt)
		}
		next := rec
		next.State = domain.CircuitHalfOpen
		next.Version++
		ok, err := b.store.Update(ctx, b.vendor, class, rec, next)
		if err != nil || !ok {
			// Lost the probe claim to another instance.
			return view{}, domain.CircuitOpenErr(b.vendor, string(class), rec.RetryAt)
		}
		observability.SetCircuitState(b.vendor, string(class), string(domain.CircuitHalfOpen))
		return view{rec: next, probe: true}, nil

	case domain.CircuitHalfOpen:
		return view{}, domain.CircuitOpenErr(b.vendor, string(class), rec.RetryAt)

	default:
		return view{rec: rec}, nil
	}
}

// Success records a successful (or vendor-reachable) outcome. A probe
// success closes the circuit and resets the failure counter and timeout;
// in CLOSED it only writes when there is a counter to reset. hadFailures
// flags earlier failed attempts of the same call, which make v stale.
func (b *Breaker) Success(ctx context.Context, class domain.OpClass, v view, hadFailures bool) {
	closed := v.rec.State == domain.CircuitClosed || v.rec.State == ""
	if !v.probe && !hadFailures && closed && v.rec.Failures == 0 {
		return
	}
	b.mutate(ctx, class, v.rec, func(rec domain.CircuitRecord) domain.CircuitRecord {
		return domain.CircuitRecord{State: domain.CircuitClosed, Version: rec.Version + 1}
	})
	observability.SetCircuitState(b.vendor, string(class), string(domain.CircuitClosed))
}

// Failure records a failed call. Counting is fixed-window: a failure
// landing after the window restarts the run at one.
func (b *Breaker) Failure(ctx context.Context, class domain.OpClass, v view) {
	now := b.now()
	state := b.mutate(ctx, class, v.rec, func(rec domain.CircuitRecord) domain.CircuitRecord {
		next := rec
		next.Version++
		next.LastFailure = now

		if v.probe || rec.State == domain.CircuitHalfOpen {
			next.State = domain.CircuitOpen
			next.Timeout = b.grow(rec.Timeout)
			next.RetryAt = now.Add(next.Timeout)
			return next
		}

		if rec.Failures > 0 && now.Sub(rec.LastFailure) > b.pol.FailureWindow {
			next.Failures = 1
		} else {
			next.Failures = rec.Failures + 1
		}
		if next.Failures >= b.pol.FailureThreshold {
			next.State = domain.CircuitOpen
			next.Timeout = b.grow(rec.Timeout)
			next.RetryAt = now.Add(next.Timeout)
		}
		return next
	})
	observability.SetCircuitState(b.vendor, string(class), string(state))
}

// grow doubles the recovery timeout on repeated trips, capped.
func (b *Breaker) grow(prev time.Duration) time.Duration {
	if prev < b.pol.RecoveryTimeout {
		return b.pol.RecoveryTimeout
	}
	next := prev * 2
	if next > b.pol.MaxRecoveryTimeout {
		next = b.pol.MaxRecoveryTimeout
	}
	return next
}

// mutate applies fn under CAS, re-reading on lost races. Returns the
// final state for metrics; store errors are logged, not propagated — the
// breaker never turns a recording problem into a call failure.
func (b *Breaker) mutate(ctx context.Context, class domain.OpClass, seen domain.CircuitRecord,
	fn func(domain.CircuitRecord) domain.CircuitRecord) domain.CircuitState {

	rec := seen
	for i := 0; i < casAttempts; i++ {
		next := fn(rec)
		ok, err := b.store.Update(ctx, b.vendor, class, rec, next)
		if err != nil {
			log.Warn().Err(err).Str("vendor", b.vendor).Str("class", string(class)).
				Msg("circuit store update failed")
			return rec.State
		}
		if ok {
			return next.State
		}
		rec, err = b.store.Get(ctx, b.vendor, class)
		if err != nil {
			return seen.State
		}
		// Another instance already moved the circuit past us.
		if rec.State == domain.CircuitOpen && b.now().Before(rec.RetryAt) {
			return rec.State
		}
	}
	return rec.State
}

// State reads the current record without mutating, for health reporting.
func (b *Breaker) State(ctx context.Context, class domain.OpClass) domain.CircuitState {
	rec, err := b.store.Get(ctx, b.vendor, class)
	if err != nil {
		return domain.CircuitClosed
	}
	if rec.State == domain.CircuitOpen && !b.now().Before(rec.RetryAt) {
		return domain.CircuitHalfOpen
	}
	if rec.State == "" {
		return domain.CircuitClosed
	}
	return rec.State
}
