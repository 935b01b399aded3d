package registry_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pmsbridge/internal/adapters/sandbox"
	"pmsbridge/internal/adapters/secrets"
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
    regions: [eu]
    capabilities:
      availability: true
      rates: true
      reservations: true
      modify: true
      cancel: true
      guest-search: true
      webhooks: true
`

func loadMatrix(t *testing.T) *capability.Matrix {
	t.Helper()
	path := filepath.Join(t.TempDir(), "matrix.yaml")
	if err := os.WriteFile(path, []byte(matrixYAML), 0o600); err != nil {
		t.Fatalf("write matrix: %v", err)
	}
	m, err := capability.Load(path)
	if err != nil {
		t.Fatalf("load matrix: %v", err)
	}
	return m
}

func newRegistry(t *testing.T, built *atomic.Int64, ttl time.Duration) *registry.Registry {
	t.Helper()
	reg := registry.New(registry.Options{
		Matrix: loadMatrix(t),
		Secrets: &secrets.Static{Secrets: map[string]domain.Credentials{
			"sandbox-main": {APIKey: "k"},
		}},
		Circuits: resilience.NewMemStore(),
		TTL:      ttl,
	})
	err := reg.Register("sandbox", func(_ context.Context, cfg domain.ConnectorConfig, spec capability.VendorSpec, _ domain.Credentials) (domain.Connector, error) {
		if built != nil {
			built.Add(1)
		}
		return sandbox.New(
			sandbox.WithPropertyID(cfg.PropertyID),
			sandbox.WithCapabilities(spec.CapabilitySet()),
		), nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	t.Cleanup(func() { reg.Close() })
	return reg
}

func sandboxCfg() domain.ConnectorConfig {
	return domain.ConnectorConfig{
		Vendor:        "sandbox",
		PropertyID:    "hotel-1",
		CredentialRef: "sandbox-main",
		Region:        "eu",
	}
}

func TestOpen_BuildsOnceAndCaches(t *testing.T) {
	var built atomic.Int64
	reg := newRegistry(t, &built, time.Minute)
	ctx := context.Background()

	a, err := reg.Open(ctx, sandboxCfg())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	b, err := reg.Open(ctx, sandboxCfg())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if a != b {
		t.Fatal("expected the cached connector on the second open")
	}
	if got := built.Load(); got != 1 {
		t.Fatalf("constructor ran %d times, want 1", got)
	}
	if a.Vendor() != "sandbox" {
		t.Fatalf("vendor = %q", a.Vendor())
	}
}

func TestOpen_RejectsBadConfig(t *testing.T) {
	reg := newRegistry(t, nil, time.Minute)
	ctx := context.Background()

	cases := []struct {
		name  string
		cfg   domain.ConnectorConfig
		field string
	}{
		{"unknown vendor", domain.ConnectorConfig{Vendor: "mews", PropertyID: "p", CredentialRef: "r", Region: "eu"}, "vendor"},
		{"unsupported region", domain.ConnectorConfig{Vendor: "sandbox", PropertyID: "p", CredentialRef: "r", Region: "apac"}, "region"},
		{"missing property", domain.ConnectorConfig{Vendor: "sandbox", CredentialRef: "r", Region: "eu"}, "propertyid"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := reg.Open(ctx, tc.cfg)
			de, ok := domain.AsError(err)
			if !ok || de.Kind != domain.KindValidation {
				t.Fatalf("err = %v, want validation error", err)
			}
			if de.Field != tc.field {
				t.Fatalf("field = %q, want %q", de.Field, tc.field)
			}
		})
	}
}

func TestOpen_MissingCredentialRef(t *testing.T) {
	reg := newRegistry(t, nil, time.Minute)
	cfg := sandboxCfg()
	cfg.CredentialRef = "nope"

	_, err := reg.Open(context.Background(), cfg)
	if !domain.IsKind(err, domain.KindAuthentication) {
		t.Fatalf("err = %v, want authentication error", err)
	}
}

func TestOpen_ConcurrentSharesOneConstruction(t *testing.T) {
	var built atomic.Int64
	reg := newRegistry(t, &built, time.Minute)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Open(context.Background(), sandboxCfg())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("open: %v", err)
		}
	}
	if got := built.Load(); got != 1 {
		t.Fatalf("constructor ran %d times, want 1", got)
	}
}

func TestEvict_ForcesRebuild(t *testing.T) {
	var built atomic.Int64
	reg := newRegistry(t, &built, time.Minute)
	ctx := context.Background()

	a, err := reg.Open(ctx, sandboxCfg())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	reg.Evict("sandbox", "hotel-1")
	b, err := reg.Open(ctx, sandboxCfg())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if a == b {
		t.Fatal("expected a fresh connector after eviction")
	}
	if got := built.Load(); got != 2 {
		t.Fatalf("constructor ran %d times, want 2", got)
	}
}

func TestOpen_ExpiredEntryRebuilds(t *testing.T) {
	var built atomic.Int64
	reg := newRegistry(t, &built, 10*time.Millisecond)
	ctx := context.Background()

	if _, err := reg.Open(ctx, sandboxCfg()); err != nil {
		t.Fatalf("open: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := reg.Open(ctx, sandboxCfg()); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := built.Load(); got != 2 {
		t.Fatalf("constructor ran %d times, want 2", got)
	}
}

func TestWebhook_LookupAfterOpen(t *testing.T) {
	reg := newRegistry(t, nil, time.Minute)

	if _, ok := reg.Webhook("sandbox", "hotel-1"); ok {
		t.Fatal("webhook lookup should miss before any open")
	}
	if _, err := reg.Open(context.Background(), sandboxCfg()); err != nil {
		t.Fatalf("open: %v", err)
	}
	wh, ok := reg.Webhook("sandbox", "hotel-1")
	if !ok || wh == nil {
		t.Fatal("expected the sandbox webhook handler after open")
	}
}

func TestRegister_Duplicate(t *testing.T) {
	reg := newRegistry(t, nil, time.Minute)
	err := reg.Register("sandbox", func(context.Context, domain.ConnectorConfig, capability.VendorSpec, domain.Credentials) (domain.Connector, error) {
		return nil, nil
	})
	if err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}
