// Package conformance is the golden test harness every connector must
// pass. It drives a connector through every declared capability and
// asserts the behavioral contract: declared operations work, undeclared
// ones refuse cleanly, and every failure is a typed taxonomy error.
package conformance

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"pmsbridge/internal/domain"
)

// Spec describes one connector under test. New must return a fresh,
// isolated instance per call so subtests cannot interfere.
type Spec struct {
	New          func(t *testing.T) domain.Connector
	Capabilities domain.CapabilitySet
	PropertyID   string
}

func (s Spec) property() string {
	if s.PropertyID != "" {
		return s.PropertyID
	}
	return "conformance-1"
}

func futureRange() domain.DateRange {
	arrival := time.Now().UTC().AddDate(0, 1, 0).Truncate(24 * time.Hour)
	return domain.DateRange{Arrival: arrival, Departure: arrival.AddDate(0, 0, 3)}
}

func goodDraft() domain.ReservationDraft {
	return domain.ReservationDraft{
		DateRange: futureRange(),
		Guests:    2,
		RoomType:  "double",
		RatePlan:  "flexible",
		Guest:     domain.GuestProfile{FirstName: "Jo", LastName: "Conform", Email: "jo.conform@example.com"},
	}
}

// mustTyped fails the test unless err is nil or a taxonomy error.
func mustTyped(t *testing.T, op string, err error) *domain.Error {
	t.Helper()
	if err == nil {
		return nil
	}
	de, ok := domain.AsError(err)
	if !ok {
		t.Fatalf("%s returned an untyped error: %v", op, err)
	}
	return de
}

// probe exercises one capability with a representative call and returns
// its error for declaration checks.
func probe(ctx context.Context, conn domain.Connector, prop string, c domain.Capability) error {
	switch c {
	case domain.CapAvailability:
		_, err := conn.GetAvailability(ctx, domain.AvailabilityQuery{PropertyID: prop, Range: futureRange()})
		return err
	case domain.CapRates:
		_, err := conn.QuoteRate(ctx, domain.RateQuery{PropertyID: prop, RoomType: "double", Range: futureRange()})
		return err
	case domain.CapReservations:
		res, err := conn.CreateReservation(ctx, goodDraft())
		if err != nil {
			return err
		}
		_, err = conn.GetReservation(ctx, res.ID)
		return err
	case domain.CapModify:
		res, err := conn.CreateReservation(ctx, goodDraft())
		if err != nil {
			return err
		}
		guests := 3
		_, err = conn.ModifyReservation(ctx, res.ID, domain.ReservationPatch{Guests: &guests})
		return err
	case domain.CapCancel:
		res, err := conn.CreateReservation(ctx, goodDraft())
		if err != nil {
			return err
		}
		return conn.CancelReservation(ctx, res.ID, "conformance probe")
	case domain.CapGuestSearch:
		_, err := conn.SearchGuest(ctx, domain.GuestQuery{Email: "jo.conform@example.com"})
		return err
	default:
		// webhooks and real-time-sync have no pull-side call to probe
		return nil
	}
}

// capabilityNeeds lists the extra declarations a probe leans on; a spec
// declaring modify without reservations cannot be probed.
func capabilityNeeds(c domain.Capability) []domain.Capability {
	switch c {
	case domain.CapModify, domain.CapCancel:
		return []domain.Capability{domain.CapReservations}
	default:
		return nil
	}
}

// Run executes the full conformance suite against one connector spec.
func Run(t *testing.T, s Spec) {
	t.Helper()
	ctx := context.Background()

	t.Run("capability-declarations", func(t *testing.T) {
		for _, c := range []domain.Capability{
			domain.CapAvailability, domain.CapRates, domain.CapReservations,
			domain.CapModify, domain.CapCancel, domain.CapGuestSearch,
		} {
			c := c
			t.Run(string(c), func(t *testing.T) {
				conn := s.New(t)
				defer conn.Close()

				if s.Capabilities.Has(c) {
					for _, need := range capabilityNeeds(c) {
						if !s.Capabilities.Has(need) {
							t.Skipf("probe for %s needs %s declared", c, need)
						}
					}
					if de := mustTyped(t, string(c), probe(ctx, conn, s.property(), c)); de != nil {
						t.Fatalf("declared capability %s failed: %v", c, de)
					}
					return
				}
				err := probe(ctx, conn, s.property(), c)
				if err == nil {
					t.Fatalf("undeclared capability %s did not refuse", c)
				}
				if !domain.IsKind(err, domain.KindUnsupported) {
					t.Fatalf("undeclared capability %s returned %v, want unsupported operation", c, err)
				}
			})
		}
	})

	t.Run("errors-are-typed", func(t *testing.T) {
		if !s.Capabilities.Has(domain.CapReservations) {
			t.Skip("needs reservations")
		}
		conn := s.New(t)
		defer conn.Close()

		_, err := conn.GetReservation(ctx, "no-such-reservation")
		if err == nil {
			t.Fatal("expected an error for an unknown reservation id")
		}
		de := mustTyped(t, "GetReservation", err)
		if de.Kind != domain.KindNotFound {
			t.Fatalf("kind = %s, want not_found", de.Kind)
		}
	})

	t.Run("create-get-round-trip", func(t *testing.T) {
		if !s.Capabilities.Has(domain.CapReservations) {
			t.Skip("needs reservations")
		}
		conn := s.New(t)
		defer conn.Close()

		d := goodDraft()
		created, err := conn.CreateReservation(ctx, d)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if created.ID == "" {
			t.Fatal("created reservation has no id")
		}
		got, err := conn.GetReservation(ctx, created.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !got.Arrival.Equal(d.Arrival) || !got.Departure.Equal(d.Departure) || got.Guests != d.Guests {
			t.Fatalf("round trip mismatch: got %v/%v/%d, want %v/%v/%d",
				got.Arrival, got.Departure, got.Guests, d.Arrival, d.Departure, d.Guests)
		}
	})

	t.Run("local-validation", func(t *testing.T) {
		if !s.Capabilities.Has(domain.CapReservations) {
			t.Skip("needs reservations")
		}
		conn := s.New(t)
		defer conn.Close()

		bad := goodDraft()
		bad.Departure = bad.Arrival.AddDate(0, 0, -1)
		_, err := conn.CreateReservation(ctx, bad)
		if !domain.IsKind(err, domain.KindValidation) {
			t.Fatalf("inverted stay returned %v, want validation error", err)
		}
	})

	t.Run("concurrent-use", func(t *testing.T) {
		if !s.Capabilities.Has(domain.CapReservations) {
			t.Skip("needs reservations")
		}
		conn := s.New(t)
		defer conn.Close()

		const workers = 8
		var wg sync.WaitGroup
		errs := make(chan error, workers*2)
		for i := 0; i < workers; i++ {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				d := goodDraft()
				d.Guest.Email = fmt.Sprintf("worker%d@example.com", i)
				res, err := conn.CreateReservation(ctx, d)
				if err != nil {
					errs <- fmt.Errorf("create: %w", err)
					return
				}
				if _, err := conn.GetReservation(ctx, res.ID); err != nil {
					errs <- fmt.Errorf("get: %w", err)
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if _, ok := domain.AsError(err); !ok {
				t.Fatalf("concurrent call failed with untyped error: %v", err)
			}
			t.Fatalf("concurrent call failed: %v", err)
		}
	})
}
