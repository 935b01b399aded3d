package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// MaxStayNights bounds a single stay; anything longer is a caller mistake.
	MaxStayNights = 365
	// MaxGuests bounds guest count per reservation.
	MaxGuests = 16
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type ReservationStatus string

const (
	StatusConfirmed ReservationStatus = "confirmed"
	StatusModified  ReservationStatus = "modified"
	StatusCancelled ReservationStatus = "cancelled"
	StatusCompleted ReservationStatus = "completed"
)

// DateRange is a half-open stay interval: nights Arrival..Departure-1.
type DateRange struct {
	Arrival   time.Time `json:"arrival" validate:"required"`
	Departure time.Time `json:"departure" validate:"required,gtfield=Arrival"`
}

// Nights returns the stay length in whole nights.
func (r DateRange) Nights() int {
	return int(r.Departure.Sub(r.Arrival).Hours() / 24)
}

// Validate checks ordering and the stay-length bound locally,
// before anything reaches a vendor.
func (r DateRange) Validate() error {
	if err := structErr(validate.Struct(r)); err != nil {
		return err
	}
	if r.Nights() > MaxStayNights {
		return ValidationErr("departure", "stay exceeds maximum length")
	}
	return nil
}

// ReservationDraft is the caller-constructed input to CreateReservation.
type ReservationDraft struct {
	DateRange
	Guests   int          `json:"guests" validate:"required,min=1,max=16"`
	RoomType string       `json:"room_type" validate:"required"`
	RatePlan string       `json:"rate_plan,omitempty"`
	Guest    GuestProfile `json:"guest"`
}

// Validate enforces draft invariants without any network call.
func (d ReservationDraft) Validate() error {
	if err := structErr(validate.Struct(d)); err != nil {
		return err
	}
	if d.Nights() > MaxStayNights {
		return ValidationErr("departure", "stay exceeds maximum length")
	}
	return nil
}

// Reservation is the vendor-confirmed record. The vendor system is
// authoritative; this framework only caches the latest known state.
type Reservation struct {
	ID         string            `json:"id"`
	PropertyID string            `json:"property_id"`
	Status     ReservationStatus `json:"status"`
	Arrival    time.Time         `json:"arrival"`
	Departure  time.Time         `json:"departure"`
	Guests     int               `json:"guests"`
	RoomType   string            `json:"room_type"`
	RatePlan   string            `json:"rate_plan,omitempty"`
	Guest      GuestProfile      `json:"guest"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// ReservationPatch carries the fields of a modify request; nil means unchanged.
type ReservationPatch struct {
	Arrival   *time.Time `json:"arrival,omitempty"`
	Departure *time.Time `json:"departure,omitempty"`
	Guests    *int       `json:"guests,omitempty"`
	RoomType  *string    `json:"room_type,omitempty"`
}

func (p ReservationPatch) Empty() bool {
	return p.Arrival == nil && p.Departure == nil && p.Guests == nil && p.RoomType == nil
}

func (p ReservationPatch) Validate() error {
	if p.Empty() {
		return ValidationErr("patch", "at least one field must be set")
	}
	if p.Guests != nil && (*p.Guests < 1 || *p.Guests > MaxGuests) {
		return ValidationErr("guests", "guest count out of bounds")
	}
	if p.Arrival != nil && p.Departure != nil {
		return (DateRange{Arrival: *p.Arrival, Departure: *p.Departure}).Validate()
	}
	return nil
}

// Apply returns res with the patch folded in. Status handling is the
// adapter's job; this only merges fields.
func (p ReservationPatch) Apply(res Reservation) Reservation {
	if p.Arrival != nil {
		res.Arrival = *p.Arrival
	}
	if p.Departure != nil {
		res.Departure = *p.Departure
	}
	if p.Guests != nil {
		res.Guests = *p.Guests
	}
	if p.RoomType != nil {
		res.RoomType = *p.RoomType
	}
	return res
}

// structErr converts the first validator field error into a typed
// ValidationError with a lower-cased field name.
func structErr(err error) error {
	if err == nil {
		return nil
	}
	var fes validator.ValidationErrors
	if ok := errors.As(err, &fes); ok && len(fes) > 0 {
		fe := fes[0]
		return ValidationErr(strings.ToLower(fe.Field()), "failed "+fe.Tag()+" check")
	}
	return ValidationErr("", err.Error())
}
