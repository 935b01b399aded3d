// Package sandbox is a deterministic in-memory PMS vendor. It backs the
// conformance suite, the resilience tests, and local runs where no real
// vendor credentials exist.
package sandbox

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pmsbridge/internal/domain"
)

const VendorName = "sandbox"

var defaultRoomTypes = []string{"single", "double", "suite"}

type Option func(*Connector)

// WithCapabilities narrows the supported capability set; anything not in
// the set returns a typed UnsupportedOperation, like a real limited vendor.
func WithCapabilities(set domain.CapabilitySet) Option {
	return func(c *Connector) { c.caps = set }
}

func WithPropertyID(id string) Option {
	return func(c *Connector) { c.property = id }
}

// WithVendorName lets one registered constructor serve several test vendors.
func WithVendorName(name string) Option {
	return func(c *Connector) { c.vendor = name }
}

// WithLatency delays every call, so timeout paths can be exercised.
func WithLatency(d time.Duration) Option {
	return func(c *Connector) { c.latency = d }
}

// Connector implements the full contract against mutex-guarded maps.
type Connector struct {
	vendor        string
	property      string
	caps          domain.CapabilitySet
	webhookSecret string
	latency       time.Duration

	mu           sync.Mutex
	reservations map[string]domain.Reservation
	guests       map[string]domain.GuestProfile
	faults       []error
	closed       bool
}

func New(opts ...Option) *Connector {
	c := &Connector{
		vendor:       VendorName,
		property:     "sandbox-1",
		caps:         domain.NewCapabilitySet(domain.AllCapabilities...),
		reservations: make(map[string]domain.Reservation),
		guests:       make(map[string]domain.GuestProfile),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// FailNext queues errors; each queued error fails exactly one later call.
func (c *Connector) FailNext(errs ...error) {
	c.mu.Lock()
	c.faults = append(c.faults, errs...)
	c.mu.Unlock()
}

func (c *Connector) Vendor() string { return c.vendor }

func (c *Connector) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// gate runs the shared per-call checks: context liveness, capability
// declaration, and the fault queue.
func (c *Connector) gate(ctx context.Context, need domain.Capability) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.latency > 0 {
		t := time.NewTimer(c.latency)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	if need != "" && !c.caps.Has(need) {
		return domain.UnsupportedErr(c.vendor, need)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.faults) > 0 {
		err := c.faults[0]
		c.faults = c.faults[1:]
		return err
	}
	return nil
}

func (c *Connector) GetAvailability(ctx context.Context, q domain.AvailabilityQuery) (domain.AvailabilityGrid, error) {
	if err := c.gate(ctx, domain.CapAvailability); err != nil {
		return domain.AvailabilityGrid{}, err
	}
	if err := q.Validate(); err != nil {
		return domain.AvailabilityGrid{}, err
	}
	roomTypes := defaultRoomTypes
	if q.RoomType != "" {
		roomTypes = []string{q.RoomType}
	}
	grid := domain.AvailabilityGrid{
		PropertyID: q.PropertyID,
		Range:      q.Range,
		TakenAt:    time.Now().UTC().Truncate(time.Second),
	}
	for _, rt := range roomTypes {
		row := domain.AvailabilityRow{RoomType: rt}
		for d := q.Range.Arrival; d.Before(q.Range.Departure); d = d.AddDate(0, 0, 1) {
			row.Days = append(row.Days, domain.AvailabilityDay{Date: d, Status: domain.DayOpen, Quantity: 5})
		}
		grid.Rows = append(grid.Rows, row)
	}
	return grid, nil
}

func (c *Connector) QuoteRate(ctx context.Context, q domain.RateQuery) (domain.RateQuote, error) {
	if err := c.gate(ctx, domain.CapRates); err != nil {
		return domain.RateQuote{}, err
	}
	if err := q.Validate(); err != nil {
		return domain.RateQuote{}, err
	}
	plan := q.RatePlan
	if plan == "" {
		plan = "flexible"
	}
	// deterministic pricing keeps the conformance assertions simple
	return domain.RateQuote{
		PropertyID:   q.PropertyID,
		RoomType:     q.RoomType,
		RatePlan:     plan,
		Range:        q.Range,
		Currency:     "EUR",
		Amount:       int64(q.Range.Nights()) * 12000,
		Restrictions: domain.RateRestrictions{MinStay: 1},
	}, nil
}

func (c *Connector) CreateReservation(ctx context.Context, draft domain.ReservationDraft) (domain.Reservation, error) {
	if err := c.gate(ctx, domain.CapReservations); err != nil {
		return domain.Reservation{}, err
	}
	if err := draft.Validate(); err != nil {
		return domain.Reservation{}, err
	}
	now := time.Now().UTC()
	guest := draft.Guest
	if guest.ID == "" {
		guest.ID = uuid.NewString()
	}
	res := domain.Reservation{
		ID:         uuid.NewString(),
		PropertyID: c.property,
		Status:     domain.StatusConfirmed,
		Arrival:    draft.Arrival,
		Departure:  draft.Departure,
		Guests:     draft.Guests,
		RoomType:   draft.RoomType,
		RatePlan:   draft.RatePlan,
		Guest:      guest,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	c.mu.Lock()
	c.reservations[res.ID] = res
	c.guests[guest.ID] = guest
	c.mu.Unlock()
	return res, nil
}

func (c *Connector) GetReservation(ctx context.Context, id string) (domain.Reservation, error) {
	if err := c.gate(ctx, domain.CapReservations); err != nil {
		return domain.Reservation{}, err
	}
	c.mu.Lock()
	res, ok := c.reservations[id]
	c.mu.Unlock()
	if !ok {
		return domain.Reservation{}, domain.NotFoundErr("reservation " + id + " does not exist")
	}
	return res, nil
}

func (c *Connector) ModifyReservation(ctx context.Context, id string, patch domain.ReservationPatch) (domain.Reservation, error) {
	if err := c.gate(ctx, domain.CapModify); err != nil {
		return domain.Reservation{}, err
	}
	if err := patch.Validate(); err != nil {
		return domain.Reservation{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.reservations[id]
	if !ok {
		return domain.Reservation{}, domain.NotFoundErr("reservation " + id + " does not exist")
	}
	if res.Status == domain.StatusCancelled {
		return domain.Reservation{}, domain.ValidationErr("status", "cannot modify a cancelled reservation")
	}
	res = patch.Apply(res)
	if res.Departure.Before(res.Arrival) || res.Departure.Equal(res.Arrival) {
		return domain.Reservation{}, domain.ValidationErr("departure", "departure must be after arrival")
	}
	res.Status = domain.StatusModified
	res.UpdatedAt = time.Now().UTC()
	c.reservations[id] = res
	return res, nil
}

func (c *Connector) CancelReservation(ctx context.Context, id, reason string) error {
	if err := c.gate(ctx, domain.CapCancel); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.reservations[id]
	if !ok {
		return domain.NotFoundErr("reservation " + id + " does not exist")
	}
	res.Status = domain.StatusCancelled
	res.UpdatedAt = time.Now().UTC()
	c.reservations[id] = res
	return nil
}

func (c *Connector) SearchGuest(ctx context.Context, q domain.GuestQuery) ([]domain.GuestProfile, error) {
	if err := c.gate(ctx, domain.CapGuestSearch); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.GuestProfile
	for _, g := range c.guests {
		if q.Email != "" && !strings.EqualFold(g.Email, q.Email) {
			continue
		}
		if q.Phone != "" && g.Phone != q.Phone {
			continue
		}
		if q.LastName != "" && !strings.EqualFold(g.LastName, q.LastName) {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

func (c *Connector) GetGuestProfile(ctx context.Context, id string) (domain.GuestProfile, error) {
	if err := c.gate(ctx, domain.CapGuestSearch); err != nil {
		return domain.GuestProfile{}, err
	}
	c.mu.Lock()
	g, ok := c.guests[id]
	c.mu.Unlock()
	if !ok {
		return domain.GuestProfile{}, domain.NotFoundErr("guest " + id + " does not exist")
	}
	return g, nil
}

func (c *Connector) HealthCheck(ctx context.Context) (domain.HealthStatus, error) {
	if err := c.gate(ctx, ""); err != nil {
		return domain.HealthStatus{}, err
	}
	return domain.HealthStatus{Vendor: c.vendor, Reachable: true, Latency: time.Millisecond}, nil
}

var _ domain.Connector = (*Connector)(nil)
