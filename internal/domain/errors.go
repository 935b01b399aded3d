package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrKind classifies every failure that crosses the connector boundary.
// Adapters translate vendor-native errors into exactly one of these kinds;
// nothing vendor-specific leaks to callers.
type ErrKind string

const (
	KindAuthentication ErrKind = "authentication"
	KindRateLimit      ErrKind = "rate_limit"
	KindValidation     ErrKind = "validation"
	KindNotFound       ErrKind = "not_found"
	KindUnsupported    ErrKind = "unsupported_operation"
	KindCircuitOpen    ErrKind = "circuit_open"
	KindPMS            ErrKind = "pms" // catch-all vendor communication failure
)

// Error is the one error type connectors surface.
type Error struct {
	Kind       ErrKind
	Vendor     string
	Op         string
	Message    string
	Field      string        // offending field, validation only
	RetryAfter time.Duration // vendor-declared wait, rate-limit only
	Temporary  bool          // transient; eligible for retry
	cause      error
}

func (e *Error) Error() string {
	if e.Vendor != "" && e.Op != "" {
		return fmt.Sprintf("%s: %s %s: %s", e.Kind, e.Vendor, e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Constructors, one per kind.

func AuthErr(msg string, cause error) *Error {
	return &Error{Kind: KindAuthentication, Message: msg, cause: cause}
}

func RateLimitErr(msg string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimit, Message: msg, RetryAfter: retryAfter, Temporary: true}
}

func ValidationErr(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: msg}
}

func NotFoundErr(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func UnsupportedErr(vendor string, cap Capability) *Error {
	return &Error{Kind: KindUnsupported, Vendor: vendor, Message: fmt.Sprintf("vendor does not support %s", cap)}
}

func CircuitOpenErr(vendor, class string, retryAt time.Time) *Error {
	return &Error{
		Kind:    KindCircuitOpen,
		Vendor:  vendor,
		Message: fmt.Sprintf("circuit open for %s/%s until %s", vendor, class, retryAt.UTC().Format(time.RFC3339)),
	}
}

func PMSErr(msg string, temporary bool, cause error) *Error {
	return &Error{Kind: KindPMS, Message: msg, Temporary: temporary, cause: cause}
}

// AsError unwraps err into *Error if it is (or wraps) one.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, k ErrKind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == k
}

// Retryable reports whether the resilience layer may retry err.
// Validation, auth, not-found, unsupported and circuit-open are final.
func Retryable(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	switch e.Kind {
	case KindRateLimit:
		return true
	case KindPMS:
		return e.Temporary
	default:
		return false
	}
}

// WithCall returns a copy of err annotated with vendor and operation,
// preserving the original as the cause chain root.
func WithCall(err error, vendor, op string) error {
	e, ok := AsError(err)
	if !ok {
		return err
	}
	cp := *e
	if cp.Vendor == "" {
		cp.Vendor = vendor
	}
	if cp.Op == "" {
		cp.Op = op
	}
	return &cp
}
