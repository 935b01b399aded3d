package capability

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"pmsbridge/internal/domain"
)

// Support is the declared support level for one capability.
type Support string

const (
	SupportFull    Support = "full"
	SupportLimited Support = "limited"
	SupportNone    Support = "none"
)

// AuthType is the authentication scheme a vendor uses.
type AuthType string

const (
	AuthNone              AuthType = "none"
	AuthAPIKey            AuthType = "api_key"
	AuthOAuth2ClientCreds AuthType = "oauth2_client_credentials"
)

// RateLimits is the vendor-declared ceiling on outbound calls.
type RateLimits struct {
	RequestsPerSecond int `mapstructure:"requests_per_second"`
	Burst             int `mapstructure:"burst"`
}

// VendorSpec is one vendor's declarative entry in the matrix file.
type VendorSpec struct {
	Name         string
	DisplayName  string
	Capabilities map[domain.Capability]Support
	RateLimits   RateLimits
	Regions      []string
	Auth         AuthType
}

// Supports treats both full and limited declarations as callable.
func (v VendorSpec) Supports(c domain.Capability) bool {
	s := v.Capabilities[c]
	return s == SupportFull || s == SupportLimited
}

// CapabilitySet flattens the declaration for contract-level checks.
func (v VendorSpec) CapabilitySet() domain.CapabilitySet {
	set := make(domain.CapabilitySet)
	for c, s := range v.Capabilities {
		if s == SupportFull || s == SupportLimited {
			set[c] = true
		}
	}
	return set
}

// HasRegion reports whether the vendor serves the given region.
// An empty region list means no regional restriction.
func (v VendorSpec) HasRegion(region string) bool {
	if len(v.Regions) == 0 {
		return true
	}
	for _, r := range v.Regions {
		if strings.EqualFold(r, region) {
			return true
		}
	}
	return false
}

// Matrix is the loaded capability matrix. Loaded once at startup;
// Reload re-reads the same file on demand.
type Matrix struct {
	mu      sync.RWMutex
	path    string
	vendors map[string]VendorSpec
}

// rawVendor matches the file shape before normalization. Capability
// values may be booleans or the string "limited".
type rawVendor struct {
	DisplayName  string         `mapstructure:"display_name"`
	Capabilities map[string]any `mapstructure:"capabilities"`
	RateLimits   RateLimits     `mapstructure:"rate_limits"`
	Regions      []string       `mapstructure:"regions"`
	Auth         string         `mapstructure:"auth"`
}

// Load reads and validates the matrix file (YAML or JSON by extension).
func Load(path string) (*Matrix, error) {
	m := &Matrix{path: path}
	if err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// Reload re-reads the matrix file, replacing the in-memory table
// atomically on success and leaving it untouched on failure.
func (m *Matrix) Reload() error {
	v := viper.New()
	v.SetConfigFile(m.path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read capability matrix: %w", err)
	}
	raw := map[string]rawVendor{}
	if err := v.UnmarshalKey("vendors", &raw); err != nil {
		return fmt.Errorf("decode capability matrix: %w", err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("capability matrix %s declares no vendors", m.path)
	}

	vendors := make(map[string]VendorSpec, len(raw))
	for name, rv := range raw {
		spec, err := normalize(name, rv)
		if err != nil {
			return err
		}
		vendors[name] = spec
	}

	m.mu.Lock()
	m.vendors = vendors
	m.mu.Unlock()
	return nil
}

func normalize(name string, rv rawVendor) (VendorSpec, error) {
	spec := VendorSpec{
		Name:         name,
		DisplayName:  rv.DisplayName,
		Capabilities: make(map[domain.Capability]Support, len(rv.Capabilities)),
		RateLimits:   rv.RateLimits,
		Regions:      rv.Regions,
	}
	switch AuthType(rv.Auth) {
	case AuthNone, AuthAPIKey, AuthOAuth2ClientCreds:
		spec.Auth = AuthType(rv.Auth)
	case "":
		spec.Auth = AuthNone
	default:
		return VendorSpec{}, fmt.Errorf("vendor %s: unknown auth type %q", name, rv.Auth)
	}
	for capName, val := range rv.Capabilities {
		c := domain.Capability(capName)
		if !knownCapability(c) {
			return VendorSpec{}, fmt.Errorf("vendor %s: unknown capability %q", name, capName)
		}
		sup, err := supportOf(val)
		if err != nil {
			return VendorSpec{}, fmt.Errorf("vendor %s, capability %s: %w", name, capName, err)
		}
		spec.Capabilities[c] = sup
	}
	return spec, nil
}

// supportOf accepts booleans or the string "limited" (plus explicit
// "true"/"false" for YAML quoting accidents).
func supportOf(val any) (Support, error) {
	switch v := val.(type) {
	case bool:
		if v {
			return SupportFull, nil
		}
		return SupportNone, nil
	case string:
		switch strings.ToLower(v) {
		case "limited":
			return SupportLimited, nil
		case "true":
			return SupportFull, nil
		case "false":
			return SupportNone, nil
		}
	}
	return SupportNone, fmt.Errorf("value %v must be a boolean or \"limited\"", val)
}

func knownCapability(c domain.Capability) bool {
	for _, k := range domain.AllCapabilities {
		if c == k {
			return true
		}
	}
	return false
}

// Vendor looks up one vendor's declaration.
func (m *Matrix) Vendor(name string) (VendorSpec, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	spec, ok := m.vendors[name]
	return spec, ok
}

// Vendors returns all declared vendor names, sorted for stable output.
func (m *Matrix) Vendors() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.vendors))
	for n := range m.vendors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Supports answers the caller-side capability probe.
func (m *Matrix) Supports(vendor string, c domain.Capability) bool {
	spec, ok := m.Vendor(vendor)
	return ok && spec.Supports(c)
}
