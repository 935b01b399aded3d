package domain

// GuestProfile is the normalized guest identity. VendorRef keeps the
// vendor-side id opaque; erasure is a compliance concern, not ours.
type GuestProfile struct {
	ID        string `json:"id,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	Phone     string `json:"phone,omitempty"`
	VendorRef string `json:"vendor_ref,omitempty"`
}

// GuestQuery carries search criteria; at least one must be set.
type GuestQuery struct {
	Email    string
	Phone    string
	LastName string
}

func (q GuestQuery) Validate() error {
	if q.Email == "" && q.Phone == "" && q.LastName == "" {
		return ValidationErr("query", "at least one of email, phone or last name is required")
	}
	return nil
}
