// Package registry resolves vendor names to constructed, configured,
// resilience-wrapped connectors. Registration is an explicit table
// populated at startup; nothing is discovered by reflection, so the set
// of buildable vendors is auditable at a glance.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"pmsbridge/internal/capability"
	"pmsbridge/internal/domain"
	"pmsbridge/internal/resilience"
)

// Constructor builds one vendor adapter from validated config, the
// vendor's matrix entry, and freshly resolved credentials. The
// credentials value must not be retained beyond construction.
type Constructor func(ctx context.Context, cfg domain.ConnectorConfig, spec capability.VendorSpec, creds domain.Credentials) (domain.Connector, error)

const defaultTTL = 15 * time.Minute

// Options wires the registry's collaborators.
type Options struct {
	Matrix   *capability.Matrix
	Secrets  domain.SecretStore
	Circuits domain.CircuitStore
	Policy   resilience.Policy
	TTL      time.Duration // connector cache TTL; rotation uses Evict
}

type entry struct {
	conn    domain.Connector // resilience-wrapped
	inner   domain.Connector // raw adapter, for webhook handler lookup
	expires time.Time
}

// Registry is the connector factory with a bounded-TTL instance cache.
// Open is idempotent and safe for concurrent use; construction for the
// same (vendor, property) is shared across concurrent callers.
type Registry struct {
	opts Options

	mu     sync.Mutex
	ctors  map[string]Constructor
	cache  map[string]entry
	closed bool

	sf singleflight.Group
}

func New(opts Options) *Registry {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	return &Registry{
		opts:  opts,
		ctors: make(map[string]Constructor),
		cache: make(map[string]entry),
	}
}

// Register adds one vendor to the construction table. Duplicate
// registration is a programming error and fails loudly.
func (r *Registry) Register(vendor string, ctor Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.ctors[vendor]; dup {
		return fmt.Errorf("vendor %q already registered", vendor)
	}
	r.ctors[vendor] = ctor
	return nil
}

// Matrix exposes the capability matrix for caller-side probes.
func (r *Registry) Matrix() *capability.Matrix { return r.opts.Matrix }

func cacheKey(vendor, property string) string { return vendor + "|" + property }

// Open returns a ready connector for the vendor/property in cfg:
// config validated against the matrix, credentials resolved, adapter
// constructed and wrapped with the resilience layer. Repeated calls
// within the TTL return the cached instance.
func (r *Registry) Open(ctx context.Context, cfg domain.ConnectorConfig) (domain.Connector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("registry is closed")
	}
	ctor, known := r.ctors[cfg.Vendor]
	r.mu.Unlock()

	spec, declared := r.opts.Matrix.Vendor(cfg.Vendor)
	if !declared || !known {
		return nil, domain.ValidationErr("vendor", fmt.Sprintf("unknown vendor %q", cfg.Vendor))
	}
	if !spec.HasRegion(cfg.Region) {
		return nil, domain.ValidationErr("region", fmt.Sprintf("vendor %s does not serve region %q", cfg.Vendor, cfg.Region))
	}

	key := cacheKey(cfg.Vendor, cfg.PropertyID)
	r.mu.Lock()
	if e, ok := r.cache[key]; ok && time.Now().Before(e.expires) {
		r.mu.Unlock()
		return e.conn, nil
	}
	r.mu.Unlock()

	// one construction per key, shared by concurrent openers
	v, err, _ := r.sf.Do(key, func() (any, error) {
		r.mu.Lock()
		if e, ok := r.cache[key]; ok && time.Now().Before(e.expires) {
			r.mu.Unlock()
			return e.conn, nil
		}
		r.mu.Unlock()

		// auth-none vendors may leave the ref empty
		var creds domain.Credentials
		if cfg.CredentialRef != "" {
			c, err := r.opts.Secrets.GetSecret(ctx, cfg.CredentialRef)
			if err != nil {
				return nil, err
			}
			creds = c
		}
		inner, err := ctor(ctx, cfg, spec, creds)
		if err != nil {
			return nil, err
		}
		// gate outermost: undeclared operations refuse before the
		// resilience layer ever admits a call
		wrapped := capability.Gate(resilience.Wrap(inner, r.opts.Circuits, r.opts.Policy), spec.CapabilitySet())

		r.mu.Lock()
		if old, ok := r.cache[key]; ok {
			_ = old.conn.Close()
		}
		r.cache[key] = entry{conn: wrapped, inner: inner, expires: time.Now().Add(r.opts.TTL)}
		r.mu.Unlock()

		log.Info().Str("vendor", cfg.Vendor).Str("property", cfg.PropertyID).Msg("connector constructed")
		return wrapped, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(domain.Connector), nil
}

// Webhook returns the raw adapter's webhook handler for a cached
// (vendor, property), if the adapter supports push updates.
func (r *Registry) Webhook(vendor, property string) (domain.WebhookHandler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.cache[cacheKey(vendor, property)]
	if !ok {
		return nil, false
	}
	wh, ok := e.inner.(domain.WebhookHandler)
	return wh, ok
}

// Evict closes and removes a cached connector, forcing the next Open to
// re-resolve credentials. Call on credential rotation.
func (r *Registry) Evict(vendor, property string) {
	key := cacheKey(vendor, property)
	r.mu.Lock()
	e, ok := r.cache[key]
	delete(r.cache, key)
	r.mu.Unlock()
	if ok {
		_ = e.conn.Close()
		log.Info().Str("vendor", vendor).Str("property", property).Msg("connector evicted")
	}
}

// Close shuts down every cached connector. The registry is unusable
// afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	for key, e := range r.cache {
		_ = e.conn.Close()
		delete(r.cache, key)
	}
	return nil
}
