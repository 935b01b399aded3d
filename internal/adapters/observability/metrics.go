package observability

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pmsbridge", Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pmsbridge", Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	PMSRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pmsbridge", Name: "pms_requests_total", Help: "Connector calls by outcome kind."},
		[]string{"vendor", "op", "kind"}, // kind: ok|cancelled|<error kind>
	)
	PMSLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pmsbridge", Name: "pms_request_duration_seconds",
			Help:    "Connector call duration seconds, retries included.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"vendor", "op"},
	)
	PMSRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pmsbridge", Name: "pms_retries_total", Help: "Retry attempts against vendors."},
		[]string{"vendor", "op"},
	)
	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "pmsbridge", Name: "pms_circuit_state", Help: "Breaker state: 0 closed, 1 half-open, 2 open."},
		[]string{"vendor", "class"},
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pmsbridge", Name: "cache_events_total", Help: "Snapshot cache hits/misses/sets/dels."},
		[]string{"cache", "event"}, // event: hit|miss|set|del
	)
	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pmsbridge", Name: "webhook_events_total", Help: "Inbound webhook events by vendor and outcome."},
		[]string{"vendor", "outcome"}, // outcome: accepted|rejected
	)
)

func Serve() {
	addr := os.Getenv("METRICS_ADDR")
	if addr == "" {
		return // disabled
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(HTTPRequests, HTTPLatency, PMSRequests, PMSLatency, PMSRetries, CircuitState, CacheEvents, WebhookEvents)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

// ObservePMS records one connector call outcome, retries folded in.
func ObservePMS(vendor, op, kind string, dur time.Duration) {
	PMSRequests.WithLabelValues(vendor, op, kind).Inc()
	PMSLatency.WithLabelValues(vendor, op).Observe(dur.Seconds())
}

func RetryInc(vendor, op string) {
	PMSRetries.WithLabelValues(vendor, op).Inc()
}

// SetCircuitState maps a breaker state onto the gauge.
func SetCircuitState(vendor, class, state string) {
	var v float64
	switch state {
	case "half_open":
		v = 1
	case "open":
		v = 2
	}
	CircuitState.WithLabelValues(vendor, class).Set(v)
}

func ObserveCache(cache, event string) { // event: hit|miss|set|del
	CacheEvents.WithLabelValues(cache, event).Inc()
}

func ObserveWebhook(vendor, outcome string) {
	WebhookEvents.WithLabelValues(vendor, outcome).Inc()
}
