package domain

// Capability is an optional feature a vendor may or may not support.
// Declared per vendor in the capability matrix; callers probe before
// invoking optional operations.
type Capability string

const (
	CapAvailability Capability = "availability"
	CapRates        Capability = "rates"
	CapReservations Capability = "reservations"
	CapModify       Capability = "modify"
	CapCancel       Capability = "cancel"
	CapGuestSearch  Capability = "guest-search"
	CapWebhooks     Capability = "webhooks"
	CapRealTimeSync Capability = "real-time-sync"
)

// AllCapabilities lists every known capability in declaration order.
var AllCapabilities = []Capability{
	CapAvailability, CapRates, CapReservations, CapModify,
	CapCancel, CapGuestSearch, CapWebhooks, CapRealTimeSync,
}

// CapabilitySet is the set of capabilities a vendor declares supported.
type CapabilitySet map[Capability]bool

func (s CapabilitySet) Has(c Capability) bool { return s[c] }

// NewCapabilitySet builds a set from the given capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	s := make(CapabilitySet, len(caps))
	for _, c := range caps {
		s[c] = true
	}
	return s
}
