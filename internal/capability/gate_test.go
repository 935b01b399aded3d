package capability_test

import (
	"context"
	"testing"
	"time"

	"pmsbridge/internal/adapters/sandbox"
	"pmsbridge/internal/capability"
	"pmsbridge/internal/domain"
)

func TestGate_RefusesUndeclaredOperations(t *testing.T) {
	conn := capability.Gate(sandbox.New(), domain.NewCapabilitySet(domain.CapAvailability))

	_, err := conn.SearchGuest(context.Background(), domain.GuestQuery{Email: "a@b.com"})
	de, ok := domain.AsError(err)
	if !ok || de.Kind != domain.KindUnsupported {
		t.Fatalf("err = %v, want unsupported operation", err)
	}
	if de.Vendor != "sandbox" {
		t.Fatalf("vendor = %q", de.Vendor)
	}
}

func TestGate_PassesDeclaredOperations(t *testing.T) {
	conn := capability.Gate(sandbox.New(), domain.NewCapabilitySet(domain.CapAvailability))

	arrival := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	_, err := conn.GetAvailability(context.Background(), domain.AvailabilityQuery{
		PropertyID: "p1",
		Range:      domain.DateRange{Arrival: arrival, Departure: arrival.AddDate(0, 0, 2)},
	})
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
}

func TestGate_HealthAlwaysAllowed(t *testing.T) {
	conn := capability.Gate(sandbox.New(), domain.NewCapabilitySet())
	if _, err := conn.HealthCheck(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}
