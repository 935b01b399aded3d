package httpserver

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"pmsbridge/internal/adapters/observability"
	"pmsbridge/internal/app"
	"pmsbridge/internal/capability"
	"pmsbridge/internal/domain"
	"pmsbridge/internal/registry"
)

const (
	signatureHeader = "X-Webhook-Signature"
	maxWebhookBody  = 1 << 20
)

// Handlers serves the operational surface. Vendors holds one connector
// config per vendor name; requests for vendors outside it 404.
type Handlers struct {
	Svc     *app.ConnectorService
	Reg     *registry.Registry
	Vendors map[string]domain.ConnectorConfig
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Get("/v1/vendors", h.listVendors)
	s.mux.Get("/v1/vendors/{vendor}/health", h.vendorHealth)
	s.mux.Post("/v1/webhooks/{vendor}", h.webhook)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps the taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	de, ok := domain.AsError(err)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	switch de.Kind {
	case domain.KindValidation:
		writeProblem(w, http.StatusBadRequest, "Invalid Request", de.Message)
	case domain.KindNotFound:
		writeProblem(w, http.StatusNotFound, "Not Found", de.Message)
	case domain.KindAuthentication:
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", de.Message)
	case domain.KindUnsupported:
		writeProblem(w, http.StatusNotImplemented, "Unsupported Operation", de.Message)
	case domain.KindRateLimit:
		if de.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(de.RetryAfter.Seconds())))
		}
		writeProblem(w, http.StatusTooManyRequests, "Vendor Rate Limited", de.Message)
	case domain.KindCircuitOpen:
		writeProblem(w, http.StatusServiceUnavailable, "Vendor Unavailable", de.Message)
	default:
		writeProblem(w, http.StatusBadGateway, "Vendor Error", de.Message)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

type vendorSummary struct {
	Name         string                     `json:"name"`
	DisplayName  string                     `json:"display_name"`
	Auth         capability.AuthType        `json:"auth"`
	Regions      []string                   `json:"regions,omitempty"`
	Capabilities map[domain.Capability]bool `json:"capabilities"`
	RateLimits   capability.RateLimits      `json:"rate_limits"`
}

func (h *Handlers) listVendors(w http.ResponseWriter, r *http.Request) {
	names := h.Reg.Matrix().Vendors()
	sort.Strings(names)
	out := make([]vendorSummary, 0, len(names))
	for _, name := range names {
		spec, ok := h.Reg.Matrix().Vendor(name)
		if !ok {
			continue
		}
		caps := make(map[domain.Capability]bool, len(domain.AllCapabilities))
		for _, c := range domain.AllCapabilities {
			caps[c] = spec.Supports(c)
		}
		out = append(out, vendorSummary{
			Name:         name,
			DisplayName:  spec.DisplayName,
			Auth:         spec.Auth,
			Regions:      spec.Regions,
			Capabilities: caps,
			RateLimits:   spec.RateLimits,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"vendors": out})
}

type healthResponse struct {
	Vendor       string `json:"vendor"`
	Reachable    bool   `json:"reachable"`
	LatencyMS    int64  `json:"latency_ms"`
	CircuitState string `json:"circuit_state"`
}

func (h *Handlers) vendorHealth(w http.ResponseWriter, r *http.Request) {
	vendor := chi.URLParam(r, "vendor")
	cfg, ok := h.Vendors[vendor]
	if !ok {
		writeProblem(w, http.StatusNotFound, "Not Found", "no such vendor configured")
		return
	}
	hs, err := h.Svc.VendorHealth(r.Context(), cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	observability.SetCircuitState(vendor, "read", string(hs.CircuitState))
	writeJSON(w, http.StatusOK, healthResponse{
		Vendor:       hs.Vendor,
		Reachable:    hs.Reachable,
		LatencyMS:    hs.Latency.Milliseconds(),
		CircuitState: string(hs.CircuitState),
	})
}

func (h *Handlers) webhook(w http.ResponseWriter, r *http.Request) {
	vendor := chi.URLParam(r, "vendor")
	cfg, ok := h.Vendors[vendor]
	if !ok {
		writeProblem(w, http.StatusNotFound, "Not Found", "no such vendor configured")
		return
	}
	if _, err := h.Reg.Open(r.Context(), cfg); err != nil {
		writeError(w, err)
		return
	}
	wh, ok := h.Reg.Webhook(vendor, cfg.PropertyID)
	if !ok {
		writeProblem(w, http.StatusNotImplemented, "Unsupported Operation", "vendor does not push webhooks")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Request", "unreadable body")
		return
	}
	if err := wh.VerifySignature(r.Header.Get(signatureHeader), body); err != nil {
		observability.ObserveWebhook(vendor, "rejected")
		writeError(w, err)
		return
	}
	ev, err := wh.Normalize(body)
	if err != nil {
		observability.ObserveWebhook(vendor, "malformed")
		writeError(w, err)
		return
	}
	observability.ObserveWebhook(vendor, "accepted")
	log.Info().
		Str("vendor", ev.Vendor).
		Str("event_id", ev.EventID).
		Str("type", string(ev.Type)).
		Str("reservation_id", ev.ReservationID).
		Time("at", ev.Timestamp).
		Msg("webhook_event")
	writeJSON(w, http.StatusAccepted, ev)
}
