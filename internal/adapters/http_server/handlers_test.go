package httpserver_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pmsbridge/internal/adapters/http_server"
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
      reservations: true
      webhooks: true
`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "matrix.yaml")
	if err := os.WriteFile(path, []byte(matrixYAML), 0o600); err != nil {
		t.Fatalf("write matrix: %v", err)
	}
	m, err := capability.Load(path)
	if err != nil {
		t.Fatalf("load matrix: %v", err)
	}

	reg := registry.New(registry.Options{
		Matrix: m,
		Secrets: &secrets.Static{Secrets: map[string]domain.Credentials{
			"sandbox-main": {WebhookSecret: "hush"},
		}},
		Circuits: resilience.NewMemStore(),
	})
	err = reg.Register("sandbox", func(_ context.Context, cfg domain.ConnectorConfig, spec capability.VendorSpec, creds domain.Credentials) (domain.Connector, error) {
		return sandbox.New(
			sandbox.WithPropertyID(cfg.PropertyID),
			sandbox.WithCapabilities(spec.CapabilitySet()),
			sandbox.WithWebhookSecret(creds.WebhookSecret),
		), nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	t.Cleanup(func() { reg.Close() })

	svc := app.NewConnectorService(reg, nil, time.Minute)
	srv := httpserver.New(5 * time.Second)
	srv.MountHandlers(&httpserver.Handlers{
		Svc: svc,
		Reg: reg,
		Vendors: map[string]domain.ConnectorConfig{
			"sandbox": {Vendor: "sandbox", PropertyID: "hotel-1", CredentialRef: "sandbox-main", Region: "eu"},
		},
	})
	ts := httptest.NewServer(srv.Mux())
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestListVendors(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/v1/vendors")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out struct {
		Vendors []struct {
			Name         string          `json:"name"`
			DisplayName  string          `json:"display_name"`
			Capabilities map[string]bool `json:"capabilities"`
		} `json:"vendors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Vendors) != 1 || out.Vendors[0].Name != "sandbox" {
		t.Fatalf("vendors = %+v", out.Vendors)
	}
	v := out.Vendors[0]
	if !v.Capabilities["reservations"] || v.Capabilities["modify"] {
		t.Fatalf("capabilities = %+v", v.Capabilities)
	}
}

func TestVendorHealth(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/v1/vendors/sandbox/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out struct {
		Vendor       string `json:"vendor"`
		Reachable    bool   `json:"reachable"`
		CircuitState string `json:"circuit_state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Vendor != "sandbox" || !out.Reachable || out.CircuitState != "closed" {
		t.Fatalf("health = %+v", out)
	}
}

func TestVendorHealth_UnknownVendor(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/v1/vendors/mews/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("content type = %q", ct)
	}
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhook_Accepted(t *testing.T) {
	ts := newTestServer(t)
	body := []byte(`{"event":"reservation.created","reservation_id":"r-1","property_id":"hotel-1"}`)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/webhooks/sandbox", strings.NewReader(string(body)))
	req.Header.Set("X-Webhook-Signature", sign("hush", body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var ev domain.WebhookEvent
	if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != domain.EventReservationCreated || ev.ReservationID != "r-1" || ev.EventID == "" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestWebhook_BadSignature(t *testing.T) {
	ts := newTestServer(t)
	body := []byte(`{"event":"reservation.created","reservation_id":"r-1"}`)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/webhooks/sandbox", strings.NewReader(string(body)))
	req.Header.Set("X-Webhook-Signature", "deadbeef")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestWebhook_MalformedEvent(t *testing.T) {
	ts := newTestServer(t)
	body := []byte(`{"event":"room.exploded","reservation_id":"r-1"}`)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/webhooks/sandbox", strings.NewReader(string(body)))
	req.Header.Set("X-Webhook-Signature", sign("hush", body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
