package resilience

import (
	"context"
	"time"

	"pmsbridge/internal/adapters/observability"
	"pmsbridge/internal/domain"
)

// Wrap decorates a vendor adapter with the full resilience stack:
// per-call timeout, retry with backoff for transient faults, and the
// shared circuit breaker. The result satisfies the same contract, so
// callers never see the difference.
func Wrap(inner domain.Connector, store domain.CircuitStore, pol Policy) domain.Connector {
	return WrapWithClock(inner, store, pol, nil)
}

// WrapWithClock is Wrap with an injectable clock for breaker tests.
func WrapWithClock(inner domain.Connector, store domain.CircuitStore, pol Policy, now func() time.Time) domain.Connector {
	pol = pol.withDefaults()
	return &wrapper{
		inner: inner,
		pol:   pol,
		br:    NewBreaker(inner.Vendor(), store, pol, now),
	}
}

type wrapper struct {
	inner domain.Connector
	pol   Policy
	br    *Breaker
}

func (w *wrapper) Vendor() string { return w.inner.Vendor() }
func (w *wrapper) Close() error   { return w.inner.Close() }

// Breaker exposes the underlying breaker for health reporting.
func (w *wrapper) Breaker() *Breaker { return w.br }

// do runs one contract operation under the resilience stack.
//
// Ordering: breaker admission first (an open circuit costs no network
// attempt), then up to MaxAttempts tries with exponential backoff.
// A vendor-declared retry_after is honored exactly. The original error
// of the last attempt is what surfaces after exhaustion.
func (w *wrapper) do(ctx context.Context, op string, class domain.OpClass, fn func(context.Context) error) error {
	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, w.pol.CallTimeout)
	defer cancel()

	// Outcome recording must survive the call context expiring.
	rctx := context.WithoutCancel(ctx)

	v, err := w.br.Allow(cctx, class)
	if err != nil {
		observability.ObservePMS(w.Vendor(), op, string(domain.KindCircuitOpen), time.Since(start))
		return err
	}

	attempts := w.pol.MaxAttempts
	if v.probe {
		attempts = 1 // HALF_OPEN admits a single probe, never a burst
	}

	var lastErr error
	failures := 0
	for i := 0; i < attempts; i++ {
		err := fn(cctx)
		if err == nil {
			w.br.Success(rctx, class, v, failures > 0)
			observability.ObservePMS(w.Vendor(), op, "ok", time.Since(start))
			return nil
		}

		// Caller cancellation aborts immediately: no retry, no breaker count.
		if ctx.Err() != nil {
			observability.ObservePMS(w.Vendor(), op, "cancelled", time.Since(start))
			return ctx.Err()
		}

		// Our own per-call timeout counts as a vendor failure.
		if cctx.Err() != nil {
			lastErr = domain.WithCall(domain.PMSErr("call timed out", true, cctx.Err()), w.Vendor(), op)
			w.br.Failure(rctx, class, v)
			observability.ObservePMS(w.Vendor(), op, string(domain.KindPMS), time.Since(start))
			return lastErr
		}

		err = normalize(err)
		lastErr = domain.WithCall(err, w.Vendor(), op)

		if !domain.Retryable(err) {
			// The vendor answered; a final error is not a health signal
			// against the circuit, but it does end a HALF_OPEN probe.
			w.br.Success(rctx, class, v, failures > 0)
			observability.ObservePMS(w.Vendor(), op, kindLabel(err), time.Since(start))
			return lastErr
		}

		failures++
		w.br.Failure(rctx, class, v)

		if i == attempts-1 {
			break
		}
		wait := w.pol.Backoff(i)
		if e, ok := domain.AsError(err); ok && e.RetryAfter > 0 {
			wait = e.RetryAfter
		}
		observability.RetryInc(w.Vendor(), op)
		if !sleepCtx(cctx, wait) {
			// Deadline hit while waiting; surface the original error.
			break
		}
	}

	observability.ObservePMS(w.Vendor(), op, kindLabel(lastErr), time.Since(start))
	return lastErr
}

// normalize wraps anything an adapter let slip through untyped.
func normalize(err error) error {
	if _, ok := domain.AsError(err); ok {
		return err
	}
	return domain.PMSErr(err.Error(), true, err)
}

func kindLabel(err error) string {
	if e, ok := domain.AsError(err); ok {
		return string(e.Kind)
	}
	return "unknown"
}

// ---- contract methods ----

func (w *wrapper) GetAvailability(ctx context.Context, q domain.AvailabilityQuery) (domain.AvailabilityGrid, error) {
	if err := q.Validate(); err != nil {
		return domain.AvailabilityGrid{}, err
	}
	var out domain.AvailabilityGrid
	err := w.do(ctx, "get_availability", domain.ClassRead, func(ctx context.Context) error {
		var err error
		out, err = w.inner.GetAvailability(ctx, q)
		return err
	})
	return out, err
}

func (w *wrapper) QuoteRate(ctx context.Context, q domain.RateQuery) (domain.RateQuote, error) {
	if err := q.Validate(); err != nil {
		return domain.RateQuote{}, err
	}
	var out domain.RateQuote
	err := w.do(ctx, "quote_rate", domain.ClassRead, func(ctx context.Context) error {
		var err error
		out, err = w.inner.QuoteRate(ctx, q)
		return err
	})
	return out, err
}

func (w *wrapper) CreateReservation(ctx context.Context, draft domain.ReservationDraft) (domain.Reservation, error) {
	if err := draft.Validate(); err != nil {
		return domain.Reservation{}, err
	}
	var out domain.Reservation
	err := w.do(ctx, "create_reservation", domain.ClassWrite, func(ctx context.Context) error {
		var err error
		out, err = w.inner.CreateReservation(ctx, draft)
		return err
	})
	return out, err
}

func (w *wrapper) GetReservation(ctx context.Context, id string) (domain.Reservation, error) {
	var out domain.Reservation
	err := w.do(ctx, "get_reservation", domain.ClassRead, func(ctx context.Context) error {
		var err error
		out, err = w.inner.GetReservation(ctx, id)
		return err
	})
	return out, err
}

func (w *wrapper) ModifyReservation(ctx context.Context, id string, patch domain.ReservationPatch) (domain.Reservation, error) {
	if err := patch.Validate(); err != nil {
		return domain.Reservation{}, err
	}
	var out domain.Reservation
	err := w.do(ctx, "modify_reservation", domain.ClassWrite, func(ctx context.Context) error {
		var err error
		out, err = w.inner.ModifyReservation(ctx, id, patch)
		return err
	})
	return out, err
}

func (w *wrapper) CancelReservation(ctx context.Context, id, reason string) error {
	return w.do(ctx, "cancel_reservation", domain.ClassWrite, func(ctx context.Context) error {
		return w.inner.CancelReservation(ctx, id, reason)
	})
}

func (w *wrapper) SearchGuest(ctx context.Context, q domain.GuestQuery) ([]domain.GuestProfile, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	var out []domain.GuestProfile
	err := w.do(ctx, "search_guest", domain.ClassRead, func(ctx context.Context) error {
		var err error
		out, err = w.inner.SearchGuest(ctx, q)
		return err
	})
	return out, err
}

func (w *wrapper) GetGuestProfile(ctx context.Context, id string) (domain.GuestProfile, error) {
	var out domain.GuestProfile
	err := w.do(ctx, "get_guest_profile", domain.ClassRead, func(ctx context.Context) error {
		var err error
		out, err = w.inner.GetGuestProfile(ctx, id)
		return err
	})
	return out, err
}

// HealthCheck runs through the health circuit and reports the read-class
// circuit state, which is what callers route traffic on.
func (w *wrapper) HealthCheck(ctx context.Context) (domain.HealthStatus, error) {
	var out domain.HealthStatus
	err := w.do(ctx, "health_check", domain.ClassHealth, func(ctx context.Context) error {
		var err error
		out, err = w.inner.HealthCheck(ctx)
		return err
	})
	state := w.br.State(ctx, domain.ClassRead)
	if err != nil {
		return domain.HealthStatus{Vendor: w.Vendor(), Reachable: false, CircuitState: state}, err
	}
	out.Vendor = w.Vendor()
	out.CircuitState = state
	return out, nil
}

var _ domain.Connector = (*wrapper)(nil)
