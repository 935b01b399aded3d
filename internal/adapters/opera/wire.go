package opera

import (
	"math"
	"time"

	"pmsbridge/internal/domain"
)

// Vendor wire shapes. Nothing in this file leaves the adapter; every
// payload is mapped into domain objects before crossing the contract.

const dateFmt = "2006-01-02"

type wireAvailability struct {
	RoomTypes []struct {
		Code string `json:"code"`
		Days []struct {
			Date      string `json:"date"`
			Status    string `json:"status"` // "O" open, "C" closed
			Available int    `json:"available"`
		} `json:"days"`
	} `json:"roomTypes"`
}

func (w wireAvailability) toDomain(propertyID string, rng domain.DateRange) domain.AvailabilityGrid {
	grid := domain.AvailabilityGrid{
		PropertyID: propertyID,
		Range:      rng,
		TakenAt:    time.Now().UTC(),
	}
	for _, rt := range w.RoomTypes {
		row := domain.AvailabilityRow{RoomType: rt.Code}
		for _, d := range rt.Days {
			date, err := time.Parse(dateFmt, d.Date)
			if err != nil {
				continue
			}
			status := domain.DayClosed
			if d.Status == "O" {
				status = domain.DayOpen
			}
			row.Days = append(row.Days, domain.AvailabilityDay{Date: date, Status: status, Quantity: d.Available})
		}
		grid.Rows = append(grid.Rows, row)
	}
	return grid
}

type wireRate struct {
	RoomType           string  `json:"roomType"`
	RatePlan           string  `json:"ratePlanCode"`
	CurrencyCode       string  `json:"currencyCode"`
	TotalAmount        float64 `json:"totalAmount"`
	MinimumStay        int     `json:"minimumStay"`
	ClosedToArrival    bool    `json:"closedToArrival"`
	ClosedToDeparture  bool    `json:"closedToDeparture"`
	CancellationPolicy string  `json:"cancellationPolicy"`
}

func (w wireRate) toDomain(propertyID string, rng domain.DateRange) domain.RateQuote {
	return domain.RateQuote{
		PropertyID: propertyID,
		RoomType:   w.RoomType,
		RatePlan:   w.RatePlan,
		Range:      rng,
		Currency:   w.CurrencyCode,
		Amount:     int64(math.Round(w.TotalAmount * 100)),
		Restrictions: domain.RateRestrictions{
			MinStay:           w.MinimumStay,
			ClosedToArrival:   w.ClosedToArrival,
			ClosedToDeparture: w.ClosedToDeparture,
		},
		CancellationPolicy: w.CancellationPolicy,
	}
}

type wireProfile struct {
	ProfileID string `json:"profileId"`
	GivenName string `json:"givenName"`
	Surname   string `json:"surname"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

func (w wireProfile) toDomain() domain.GuestProfile {
	return domain.GuestProfile{
		ID:        w.ProfileID,
		FirstName: w.GivenName,
		LastName:  w.Surname,
		Email:     w.Email,
		Phone:     w.Phone,
		VendorRef: w.ProfileID,
	}
}

type wireReservation struct {
	ReservationID string      `json:"reservationId"`
	Status        string      `json:"status"`
	HotelID       string      `json:"hotelId"`
	ArrivalDate   string      `json:"arrivalDate"`
	DepartureDate string      `json:"departureDate"`
	Adults        int         `json:"adults"`
	RoomType      string      `json:"roomType"`
	RatePlan      string      `json:"ratePlanCode"`
	Profile       wireProfile `json:"profile"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// statusOf normalizes the vendor reservation status vocabulary.
func statusOf(s string) (domain.ReservationStatus, bool) {
	switch s {
	case "RESERVED", "PRE_REGISTERED", "IN_HOUSE":
		return domain.StatusConfirmed, true
	case "CHANGED":
		return domain.StatusModified, true
	case "CANCELED", "NO_SHOW":
		return domain.StatusCancelled, true
	case "CHECKED_OUT":
		return domain.StatusCompleted, true
	}
	return "", false
}

func (w wireReservation) toDomain() (domain.Reservation, error) {
	status, ok := statusOf(w.Status)
	if !ok {
		return domain.Reservation{}, domain.PMSErr("unrecognized reservation status from vendor", false, nil)
	}
	arrival, err := time.Parse(dateFmt, w.ArrivalDate)
	if err != nil {
		return domain.Reservation{}, domain.PMSErr("malformed arrival date from vendor", false, err)
	}
	departure, err := time.Parse(dateFmt, w.DepartureDate)
	if err != nil {
		return domain.Reservation{}, domain.PMSErr("malformed departure date from vendor", false, err)
	}
	return domain.Reservation{
		ID:         w.ReservationID,
		PropertyID: w.HotelID,
		Status:     status,
		Arrival:    arrival,
		Departure:  departure,
		Guests:     w.Adults,
		RoomType:   w.RoomType,
		RatePlan:   w.RatePlan,
		Guest:      w.Profile.toDomain(),
		CreatedAt:  w.CreatedAt,
		UpdatedAt:  w.UpdatedAt,
	}, nil
}

// wireDraft is the outbound reservation create/modify payload.
type wireDraft struct {
	ArrivalDate   string       `json:"arrivalDate,omitempty"`
	DepartureDate string       `json:"departureDate,omitempty"`
	Adults        int          `json:"adults,omitempty"`
	RoomType      string       `json:"roomType,omitempty"`
	RatePlan      string       `json:"ratePlanCode,omitempty"`
	Profile       *wireProfile `json:"profile,omitempty"`
}

func draftToWire(d domain.ReservationDraft) wireDraft {
	return wireDraft{
		ArrivalDate:   d.Arrival.Format(dateFmt),
		DepartureDate: d.Departure.Format(dateFmt),
		Adults:        d.Guests,
		RoomType:      d.RoomType,
		RatePlan:      d.RatePlan,
		Profile: &wireProfile{
			GivenName: d.Guest.FirstName,
			Surname:   d.Guest.LastName,
			Email:     d.Guest.Email,
			Phone:     d.Guest.Phone,
		},
	}
}

func patchToWire(p domain.ReservationPatch) wireDraft {
	var w wireDraft
	if p.Arrival != nil {
		w.ArrivalDate = p.Arrival.Format(dateFmt)
	}
	if p.Departure != nil {
		w.DepartureDate = p.Departure.Format(dateFmt)
	}
	if p.Guests != nil {
		w.Adults = *p.Guests
	}
	if p.RoomType != nil {
		w.RoomType = *p.RoomType
	}
	return w
}

// wireError is the vendor error envelope.
type wireError struct {
	Err struct {
		Code    string `json:"code"`
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"error"`
}
