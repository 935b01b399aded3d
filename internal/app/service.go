// Package app composes the registry, connectors, and the snapshot cache
// into the operations the HTTP surface and the monitor call.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"pmsbridge/internal/domain"
	"pmsbridge/internal/registry"
)

// ReservationState is a reservation plus its provenance. Stale marks a
// snapshot served from cache while the vendor's circuit is open.
type ReservationState struct {
	Reservation domain.Reservation `json:"reservation"`
	Stale       bool               `json:"stale"`
}

// ConnectorService resolves connectors per call and keeps the latest
// known reservation state cached. It is not a durable store; the vendor
// remains the system of record.
type ConnectorService struct {
	reg      *registry.Registry
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewConnectorService(reg *registry.Registry, cache domain.Cache, ttl time.Duration) *ConnectorService {
	return &ConnectorService{reg: reg, cache: cache, cacheTTL: ttl}
}

func snapshotKey(vendor, id string) string {
	return fmt.Sprintf("reservation:%s:%s", vendor, id)
}

func (s *ConnectorService) snapshot(ctx context.Context, vendor string, res domain.Reservation) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, snapshotKey(vendor, res.ID), res, int(s.cacheTTL.Seconds())); err != nil {
		log.Warn().Err(err).Str("vendor", vendor).Str("reservation_id", res.ID).Msg("snapshot write failed")
	}
}

func (s *ConnectorService) CreateReservation(ctx context.Context, cfg domain.ConnectorConfig, draft domain.ReservationDraft) (domain.Reservation, error) {
	conn, err := s.reg.Open(ctx, cfg)
	if err != nil {
		return domain.Reservation{}, err
	}
	res, err := conn.CreateReservation(ctx, draft)
	if err != nil {
		return domain.Reservation{}, err
	}
	s.snapshot(ctx, cfg.Vendor, res)
	return res, nil
}

// GetReservation asks the vendor; while the vendor's circuit is open it
// falls back to the last cached snapshot, marked stale, so read paths
// degrade instead of failing outright.
func (s *ConnectorService) GetReservation(ctx context.Context, cfg domain.ConnectorConfig, id string) (ReservationState, error) {
	conn, err := s.reg.Open(ctx, cfg)
	if err != nil {
		return ReservationState{}, err
	}
	res, err := conn.GetReservation(ctx, id)
	if err != nil {
		if domain.IsKind(err, domain.KindCircuitOpen) && s.cache != nil {
			var snap domain.Reservation
			if ok, cerr := s.cache.Get(ctx, snapshotKey(cfg.Vendor, id), &snap); cerr == nil && ok {
				log.Info().Str("vendor", cfg.Vendor).Str("reservation_id", id).Msg("serving stale snapshot, circuit open")
				return ReservationState{Reservation: snap, Stale: true}, nil
			}
		}
		return ReservationState{}, err
	}
	s.snapshot(ctx, cfg.Vendor, res)
	return ReservationState{Reservation: res}, nil
}

func (s *ConnectorService) ModifyReservation(ctx context.Context, cfg domain.ConnectorConfig, id string, patch domain.ReservationPatch) (domain.Reservation, error) {
	conn, err := s.reg.Open(ctx, cfg)
	if err != nil {
		return domain.Reservation{}, err
	}
	res, err := conn.ModifyReservation(ctx, id, patch)
	if err != nil {
		return domain.Reservation{}, err
	}
	s.snapshot(ctx, cfg.Vendor, res)
	return res, nil
}

// CancelReservation evicts the snapshot rather than rewriting it; the
// next read re-fetches the vendor's authoritative cancelled state.
func (s *ConnectorService) CancelReservation(ctx context.Context, cfg domain.ConnectorConfig, id, reason string) error {
	conn, err := s.reg.Open(ctx, cfg)
	if err != nil {
		return err
	}
	if err := conn.CancelReservation(ctx, id, reason); err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, snapshotKey(cfg.Vendor, id))
	}
	return nil
}

func (s *ConnectorService) GetAvailability(ctx context.Context, cfg domain.ConnectorConfig, q domain.AvailabilityQuery) (domain.AvailabilityGrid, error) {
	conn, err := s.reg.Open(ctx, cfg)
	if err != nil {
		return domain.AvailabilityGrid{}, err
	}
	return conn.GetAvailability(ctx, q)
}

func (s *ConnectorService) QuoteRate(ctx context.Context, cfg domain.ConnectorConfig, q domain.RateQuery) (domain.RateQuote, error) {
	conn, err := s.reg.Open(ctx, cfg)
	if err != nil {
		return domain.RateQuote{}, err
	}
	return conn.QuoteRate(ctx, q)
}

func (s *ConnectorService) SearchGuest(ctx context.Context, cfg domain.ConnectorConfig, q domain.GuestQuery) ([]domain.GuestProfile, error) {
	conn, err := s.reg.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return conn.SearchGuest(ctx, q)
}

// VendorHealth probes one vendor through the resilience layer, so the
// reported circuit state is the live shared-store view.
func (s *ConnectorService) VendorHealth(ctx context.Context, cfg domain.ConnectorConfig) (domain.HealthStatus, error) {
	conn, err := s.reg.Open(ctx, cfg)
	if err != nil {
		return domain.HealthStatus{}, err
	}
	return conn.HealthCheck(ctx)
}
