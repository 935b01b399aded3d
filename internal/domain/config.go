package domain

// ConnectorConfig is the per-tenant, per-vendor construction input.
// CredentialRef is an opaque handle into the secret store; raw secrets
// never live here. Vendors that authenticate with nothing leave it empty.
type ConnectorConfig struct {
	Vendor        string `json:"vendor" validate:"required"`
	PropertyID    string `json:"property_id" validate:"required"`
	CredentialRef string `json:"credential_ref,omitempty"`
	BaseURL       string `json:"base_url,omitempty" validate:"omitempty,url"`
	Region        string `json:"region" validate:"required"`
}

// Validate fails fast with a typed error before any secret or network work.
func (c ConnectorConfig) Validate() error {
	return structErr(validate.Struct(c))
}

// Credentials is the resolved secret payload for one credential ref.
// Held only for the duration of an authentication call.
type Credentials struct {
	ClientID      string
	ClientSecret  string
	APIKey        string
	WebhookSecret string
}
