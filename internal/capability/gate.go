package capability

import (
	"context"

	"pmsbridge/internal/domain"
)

// Gate wraps a connector so operations the matrix does not declare for
// the vendor refuse immediately with UnsupportedOperation. The refusal
// happens before the resilience layer and the network, so an undeclared
// call costs nothing and never touches breaker state.
func Gate(inner domain.Connector, set domain.CapabilitySet) domain.Connector {
	return &gated{inner: inner, set: set}
}

type gated struct {
	inner domain.Connector
	set   domain.CapabilitySet
}

func (g *gated) allow(c domain.Capability) error {
	if !g.set.Has(c) {
		return domain.UnsupportedErr(g.inner.Vendor(), c)
	}
	return nil
}

func (g *gated) Vendor() string { return g.inner.Vendor() }
func (g *gated) Close() error   { return g.inner.Close() }

func (g *gated) GetAvailability(ctx context.Context, q domain.AvailabilityQuery) (domain.AvailabilityGrid, error) {
	if err := g.allow(domain.CapAvailability); err != nil {
		return domain.AvailabilityGrid{}, err
	}
	return g.inner.GetAvailability(ctx, q)
}

func (g *gated) QuoteRate(ctx context.Context, q domain.RateQuery) (domain.RateQuote, error) {
	if err := g.allow(domain.CapRates); err != nil {
		return domain.RateQuote{}, err
	}
	return g.inner.QuoteRate(ctx, q)
}

func (g *gated) CreateReservation(ctx context.Context, draft domain.ReservationDraft) (domain.Reservation, error) {
	if err := g.allow(domain.CapReservations); err != nil {
		return domain.Reservation{}, err
	}
	return g.inner.CreateReservation(ctx, draft)
}

func (g *gated) GetReservation(ctx context.Context, id string) (domain.Reservation, error) {
	if err := g.allow(domain.CapReservations); err != nil {
		return domain.Reservation{}, err
	}
	return g.inner.GetReservation(ctx, id)
}

func (g *gated) ModifyReservation(ctx context.Context, id string, patch domain.ReservationPatch) (domain.Reservation, error) {
	if err := g.allow(domain.CapModify); err != nil {
		return domain.Reservation{}, err
	}
	return g.inner.ModifyReservation(ctx, id, patch)
}

func (g *gated) CancelReservation(ctx context.Context, id, reason string) error {
	if err := g.allow(domain.CapCancel); err != nil {
		return err
	}
	return g.inner.CancelReservation(ctx, id, reason)
}

func (g *gated) SearchGuest(ctx context.Context, q domain.GuestQuery) ([]domain.GuestProfile, error) {
	if err := g.allow(domain.CapGuestSearch); err != nil {
		return nil, err
	}
	return g.inner.SearchGuest(ctx, q)
}

func (g *gated) GetGuestProfile(ctx context.Context, id string) (domain.GuestProfile, error) {
	if err := g.allow(domain.CapGuestSearch); err != nil {
		return domain.GuestProfile{}, err
	}
	return g.inner.GetGuestProfile(ctx, id)
}

func (g *gated) HealthCheck(ctx context.Context) (domain.HealthStatus, error) {
	return g.inner.HealthCheck(ctx)
}

var _ domain.Connector = (*gated)(nil)
