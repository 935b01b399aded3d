package domain

import "context"

// Connector is the contract every vendor adapter implements in full.
// Operations a vendor cannot serve must return a typed
// UnsupportedOperation error, matching the capability matrix; they are
// never silently absent. All blocking operations honor ctx cancellation
// and deadlines.
type Connector interface {
	// Vendor returns the registered vendor name.
	Vendor() string

	GetAvailability(ctx context.Context, q AvailabilityQuery) (AvailabilityGrid, error)
	QuoteRate(ctx context.Context, q RateQuery) (RateQuote, error)

	CreateReservation(ctx context.Context, draft ReservationDraft) (Reservation, error)
	GetReservation(ctx context.Context, id string) (Reservation, error)
	ModifyReservation(ctx context.Context, id string, patch ReservationPatch) (Reservation, error)
	CancelReservation(ctx context.Context, id, reason string) error

	SearchGuest(ctx context.Context, q GuestQuery) ([]GuestProfile, error)
	GetGuestProfile(ctx context.Context, id string) (GuestProfile, error)

	HealthCheck(ctx context.Context) (HealthStatus, error)

	// Close releases pooled network resources. Safe to call twice.
	Close() error
}

// WebhookHandler is implemented by adapters for vendors that push updates.
// VerifySignature runs before any payload parsing; Normalize translates the
// raw vendor payload into the universal event shape.
type WebhookHandler interface {
	VerifySignature(signature string, body []byte) error
	Normalize(body []byte) (WebhookEvent, error)
}

// SecretStore resolves an opaque credential ref into credentials.
// Implementations must not cache raw secrets on our behalf.
type SecretStore interface {
	GetSecret(ctx context.Context, ref string) (Credentials, error)
}

// CircuitStore is the shared, cross-instance home of breaker state.
// Update applies an optimistic compare-and-swap keyed on Version and
// reports whether it won the race.
type CircuitStore interface {
	Get(ctx context.Context, vendor string, class OpClass) (CircuitRecord, error)
	Update(ctx context.Context, vendor string, class OpClass, prev, next CircuitRecord) (bool, error)
}

// Cache is a typed-value JSON cache with TTL, used for reservation
// snapshots. Get reports a hit via its bool.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}
