package opera

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"pmsbridge/internal/domain"
)

// VerifySignature checks the vendor's hex-encoded HMAC-SHA256 of the raw
// body. Runs before any payload parsing.
func (c *Connector) VerifySignature(signature string, body []byte) error {
	if c.whSecret == "" {
		return domain.AuthErr("no webhook secret configured for this property", nil)
	}
	mac := hmac.New(sha256.New, []byte(c.whSecret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return domain.AuthErr("webhook signature mismatch", nil)
	}
	return nil
}

type wireWebhook struct {
	EventType     string    `json:"eventType"`
	ReservationID string    `json:"reservationId"`
	HotelID       string    `json:"hotelId"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// Normalize maps the vendor push payload into the universal event shape.
func (c *Connector) Normalize(body []byte) (domain.WebhookEvent, error) {
	var w wireWebhook
	if err := json.Unmarshal(body, &w); err != nil {
		return domain.WebhookEvent{}, domain.ValidationErr("body", "malformed webhook payload")
	}
	var typ domain.WebhookEventType
	switch w.EventType {
	case "ReservationCreated":
		typ = domain.EventReservationCreated
	case "ReservationChanged":
		typ = domain.EventReservationModified
	case "ReservationCanceled":
		typ = domain.EventReservationCancelled
	default:
		return domain.WebhookEvent{}, domain.ValidationErr("eventType", "unrecognized webhook event type")
	}
	if w.ReservationID == "" {
		return domain.WebhookEvent{}, domain.ValidationErr("reservationId", "reservation id is required")
	}
	ts := w.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return domain.WebhookEvent{
		EventID:       uuid.NewString(),
		Type:          typ,
		Vendor:        VendorName,
		ReservationID: w.ReservationID,
		PropertyID:    w.HotelID,
		Timestamp:     ts,
	}, nil
}

var _ domain.WebhookHandler = (*Connector)(nil)
