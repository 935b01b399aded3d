package domain

import "time"

// CircuitState is the breaker state for one (vendor, operation class).
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// OpClass groups contract operations for breaker accounting. Reads and
// writes trip independently so a broken booking endpoint does not take
// availability lookups down with it.
type OpClass string

const (
	ClassRead   OpClass = "read"
	ClassWrite  OpClass = "write"
	ClassHealth OpClass = "health"
)

// CircuitRecord is the shared-store representation of a breaker. Version
// supports optimistic compare-and-swap so concurrent instances never lose
// updates.
type CircuitRecord struct {
	State       CircuitState  `json:"state"`
	Failures    int           `json:"failures"`
	LastFailure time.Time     `json:"last_failure,omitempty"`
	RetryAt     time.Time     `json:"retry_at,omitempty"`
	Timeout     time.Duration `json:"timeout"` // current recovery timeout
	Version     int64         `json:"version"`
}
