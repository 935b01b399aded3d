//go:build integration || !unit

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	server "pmsbridge/internal/adapters/http_server"
	redisad "pmsbridge/internal/adapters/redis"
	"pmsbridge/internal/adapters/sandbox"
	"pmsbridge/internal/adapters/secrets"
	"pmsbridge/internal/app"
	"pmsbridge/internal/capability"
	"pmsbridge/internal/domain"
	"pmsbridge/internal/registry"
	"pmsbridge/internal/resilience"
)

const matrixYAML = `
vendors:
  sandbox:
    display_name: Sandbox PMS
    auth: none
    capabilities:
      availability: true
      rates: true
      reservations: true
      modify: true
      cancel: true
      guest-search: true
      webhooks: true
`

type stack struct {
	svc *app.ConnectorService
	ts  *httptest.Server
	raw *sandbox.Connector
	cfg domain.ConnectorConfig
}

// newStack wires the whole gateway path over a real redis protocol:
// miniredis backs both the shared circuit store and the snapshot cache.
func newStack(t *testing.T) *stack {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	path := filepath.Join(t.TempDir(), "matrix.yaml")
	if err := os.WriteFile(path, []byte(matrixYAML), 0o600); err != nil {
		t.Fatalf("write matrix: %v", err)
	}
	matrix, err := capability.Load(path)
	if err != nil {
		t.Fatalf("load matrix: %v", err)
	}

	st := &stack{cfg: domain.ConnectorConfig{
		Vendor: "sandbox", PropertyID: "hotel-1", CredentialRef: "sandbox-main", Region: "eu",
	}}

	reg := registry.New(registry.Options{
		Matrix:   matrix,
		Secrets:  &secrets.Static{Secrets: map[string]domain.Credentials{"sandbox-main": {WebhookSecret: "hush"}}},
		Circuits: redisad.NewCircuitStoreFromClient(client),
		Policy: resilience.Policy{
			MaxAttempts:      1,
			BackoffBase:      time.Millisecond,
			FailureThreshold: 3,
			RecoveryTimeout:  time.Minute,
		},
	})
	err = reg.Register("sandbox", func(_ context.Context, cc domain.ConnectorConfig, spec capability.VendorSpec, creds domain.Credentials) (domain.Connector, error) {
		st.raw = sandbox.New(
			sandbox.WithPropertyID(cc.PropertyID),
			sandbox.WithCapabilities(spec.CapabilitySet()),
			sandbox.WithWebhookSecret(creds.WebhookSecret),
		)
		return st.raw, nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	t.Cleanup(func() { reg.Close() })

	st.svc = app.NewConnectorService(reg, redisad.NewFromClient(client), time.Minute)

	srv := server.New(5 * time.Second)
	srv.MountHandlers(&server.Handlers{
		Svc:     st.svc,
		Reg:     reg,
		Vendors: map[string]domain.ConnectorConfig{"sandbox": st.cfg},
	})
	st.ts = httptest.NewServer(srv.Mux())
	t.Cleanup(st.ts.Close)

	// construct the connector so st.raw is available for fault injection
	if _, err := st.svc.VendorHealth(context.Background(), st.cfg); err != nil {
		t.Fatalf("warm up: %v", err)
	}
	return st
}

func TestEndToEnd_BreakerTripsAndSnapshotFallback(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()

	res, err := st.svc.CreateReservation(ctx, st.cfg, domain.ReservationDraft{
		DateRange: domain.DateRange{
			Arrival:   time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
			Departure: time.Date(2026, 6, 4, 0, 0, 0, 0, time.UTC),
		},
		Guests:   2,
		RoomType: "double",
		Guest:    domain.GuestProfile{FirstName: "Elin", LastName: "Berg", Email: "elin@example.com"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// three straight vendor failures trip the read circuit
	for i := 0; i < 3; i++ {
		st.raw.FailNext(domain.PMSErr("vendor down", true, nil))
		if _, err := st.svc.GetReservation(ctx, st.cfg, res.ID); err == nil {
			t.Fatalf("call %d: expected a failure", i)
		}
	}

	// circuit open: the read is served from the redis snapshot, stale
	state, err := st.svc.GetReservation(ctx, st.cfg, res.ID)
	if err != nil {
		t.Fatalf("get with open circuit: %v", err)
	}
	if !state.Stale || state.Reservation.ID != res.ID {
		t.Fatalf("state = %+v, want stale snapshot", state)
	}

	// and the health endpoint reports the open circuit over HTTP
	resp, err := http.Get(st.ts.URL + "/v1/vendors/sandbox/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer resp.Body.Close()
	var hr struct {
		CircuitState string `json:"circuit_state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if hr.CircuitState != "open" {
		t.Fatalf("circuit_state = %q, want open", hr.CircuitState)
	}
}

func TestEndToEnd_StaleFallbackOnlyCoversKnownReservations(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()

	// trip the read circuit without ever caching a snapshot
	for i := 0; i < 3; i++ {
		st.raw.FailNext(domain.PMSErr("vendor down", true, nil))
		_, _ = st.svc.GetAvailability(ctx, st.cfg, domain.AvailabilityQuery{
			PropertyID: "hotel-1",
			Range: domain.DateRange{
				Arrival:   time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
				Departure: time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC),
			},
		})
	}

	_, err := st.svc.GetReservation(ctx, st.cfg, "never-created")
	if !domain.IsKind(err, domain.KindCircuitOpen) {
		t.Fatalf("err = %v, want circuit open", err)
	}
}
