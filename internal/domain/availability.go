package domain

import "time"

// DayStatus is the open/closed state of one room type on one date.
type DayStatus string

const (
	DayOpen   DayStatus = "open"
	DayClosed DayStatus = "closed"
)

// AvailabilityQuery asks for the open/closed grid of a property over a range.
// RoomType narrows the grid to one room type when set.
type AvailabilityQuery struct {
	PropertyID string
	Range      DateRange
	RoomType   string
}

func (q AvailabilityQuery) Validate() error {
	if q.PropertyID == "" {
		return ValidationErr("property_id", "property id is required")
	}
	return q.Range.Validate()
}

// AvailabilityDay is one cell of the grid.
type AvailabilityDay struct {
	Date     time.Time `json:"date"`
	Status   DayStatus `json:"status"`
	Quantity int       `json:"quantity"`
}

// AvailabilityRow is the per-room-type slice of the grid.
type AvailabilityRow struct {
	RoomType string            `json:"room_type"`
	Days     []AvailabilityDay `json:"days"`
}

// AvailabilityGrid is an immutable, timestamped snapshot of date × room-type
// availability. TakenAt records when the vendor was asked.
type AvailabilityGrid struct {
	PropertyID string            `json:"property_id"`
	Range      DateRange         `json:"range"`
	Rows       []AvailabilityRow `json:"rows"`
	TakenAt    time.Time         `json:"taken_at"`
}

// RateQuery asks for a priced offer. Guests is optional; zero quotes
// single occupancy.
type RateQuery struct {
	PropertyID string
	Range      DateRange
	RoomType   string
	RatePlan   string
	Guests     int
}

// GuestCount returns Guests, defaulting to single occupancy.
func (q RateQuery) GuestCount() int {
	if q.Guests == 0 {
		return 1
	}
	return q.Guests
}

func (q RateQuery) Validate() error {
	if q.PropertyID == "" {
		return ValidationErr("property_id", "property id is required")
	}
	if q.RoomType == "" {
		return ValidationErr("room_type", "room type is required")
	}
	if q.Guests < 0 || q.Guests > MaxGuests {
		return ValidationErr("guests", "guest count out of bounds")
	}
	return q.Range.Validate()
}

// RateRestrictions are the stay restrictions attached to a quote.
type RateRestrictions struct {
	MinStay           int  `json:"min_stay"`
	ClosedToArrival   bool `json:"closed_to_arrival"`
	ClosedToDeparture bool `json:"closed_to_departure"`
}

// RateQuote is an immutable priced offer. Amount is in minor currency units.
type RateQuote struct {
	PropertyID         string           `json:"property_id"`
	RoomType           string           `json:"room_type"`
	RatePlan           string           `json:"rate_plan"`
	Range              DateRange        `json:"range"`
	Currency           string           `json:"currency"`
	Amount             int64            `json:"amount"`
	Restrictions       RateRestrictions `json:"restrictions"`
	CancellationPolicy string           `json:"cancellation_policy,omitempty"`
}
