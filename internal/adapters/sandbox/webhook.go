package sandbox

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"pmsbridge/internal/domain"
)

// WithWebhookSecret enables signature checks; without it the sandbox
// accepts any signature, which keeps local runs credential-free.
func WithWebhookSecret(secret string) Option {
	return func(c *Connector) { c.webhookSecret = secret }
}

func (c *Connector) VerifySignature(signature string, body []byte) error {
	if c.webhookSecret == "" {
		return nil
	}
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(signature), []byte(want)) {
		return domain.AuthErr("webhook signature mismatch", nil)
	}
	return nil
}

type sandboxEvent struct {
	Event         string    `json:"event"`
	ReservationID string    `json:"reservation_id"`
	PropertyID    string    `json:"property_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (c *Connector) Normalize(body []byte) (domain.WebhookEvent, error) {
	var ev sandboxEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return domain.WebhookEvent{}, domain.ValidationErr("body", "malformed webhook payload")
	}
	var typ domain.WebhookEventType
	switch ev.Event {
	case "reservation.created":
		typ = domain.EventReservationCreated
	case "reservation.modified":
		typ = domain.EventReservationModified
	case "reservation.cancelled":
		typ = domain.EventReservationCancelled
	default:
		return domain.WebhookEvent{}, domain.ValidationErr("event", "unknown event type "+ev.Event)
	}
	if ev.ReservationID == "" {
		return domain.WebhookEvent{}, domain.ValidationErr("reservation_id", "reservation_id is required")
	}
	ts := ev.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return domain.WebhookEvent{
		EventID:       uuid.NewString(),
		Type:          typ,
		Vendor:        c.vendor,
		ReservationID: ev.ReservationID,
		PropertyID:    ev.PropertyID,
		Timestamp:     ts,
	}, nil
}

var _ domain.WebhookHandler = (*Connector)(nil)
