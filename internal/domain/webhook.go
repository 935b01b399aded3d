package domain

import "time"

// WebhookEventType enumerates the normalized push-update kinds.
type WebhookEventType string

const (
	EventReservationCreated   WebhookEventType = "reservation_created"
	EventReservationModified  WebhookEventType = "reservation_modified"
	EventReservationCancelled WebhookEventType = "reservation_cancelled"
)

// WebhookEvent is the universal shape every vendor push payload is
// normalized into. Signature verification is vendor-specific and happens
// in the adapter before normalization.
type WebhookEvent struct {
	EventID       string           `json:"event_id"`
	Type          WebhookEventType `json:"type"`
	Vendor        string           `json:"vendor"`
	ReservationID string           `json:"reservation_id"`
	PropertyID    string           `json:"property_id"`
	Timestamp     time.Time        `json:"timestamp"`
}

// HealthStatus is the health_check() result.
type HealthStatus struct {
	Vendor       string        `json:"vendor"`
	Reachable    bool          `json:"reachable"`
	Latency      time.Duration `json:"latency_ms"`
	CircuitState CircuitState  `json:"circuit_state"`
}
