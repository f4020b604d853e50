package authware

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

// Kind classifies a verifier failure. The middleware branches on it: only
// KindUnauthorized produces a cacheable Denied decision; every other kind is
// surfaced to the caller without touching the cache.
type Kind uint8

const (
	// KindMalformed means the credential could not be parsed. Never retried,
	// never cached.
	KindMalformed Kind = iota + 1
	// KindUnauthorized means the provider explicitly rejected the credential.
	// Cached as Denied for the configured TTL.
	KindUnauthorized
	// KindUnavailable means the provider could not be reached (network fault,
	// timeout). Transient: eligible for retry, never cached.
	KindUnavailable
	// KindInternal covers unexpected verifier faults. Logged, never cached.
	KindInternal
)

// String returns a stable lowercase label, usable as a metric attribute.
func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed_credential"
	case KindUnauthorized:
		return "unauthorized"
	case KindUnavailable:
		return "provider_unavailable"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// AuthError is the value-carried failure returned by a Verifier. Reason is the
// provider-facing detail; it is logged but only exposed to clients when the
// middleware is configured to do so.
type AuthError struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return e.Kind.String()
}

func (e *AuthError) Unwrap() error { return e.Err }

// Malformed reports a credential that cannot be parsed.
func Malformed(reason string) *AuthError {
	return &AuthError{Kind: KindMalformed, Reason: reason}
}

// Unauthorized reports an explicit provider rejection.
func Unauthorized(reason string) *AuthError {
	return &AuthError{Kind: KindUnauthorized, Reason: reason}
}

// Unavailable reports a transient provider fault.
func Unavailable(err error) *AuthError {
	return &AuthError{Kind: KindUnavailable, Reason: "provider unavailable", Err: err}
}

// Internal reports an unexpected verifier fault.
func Internal(err error) *AuthError {
	return &AuthError{Kind: KindInternal, Reason: "internal error", Err: err}
}

func asAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// ClassifyError maps an arbitrary verifier error onto a Kind. Deadline and
// cancellation errors count as provider unavailability so that timeouts are
// never persisted as denials; anything unrecognized is internal.
func ClassifyError(err error) Kind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindUnavailable
	}
	return KindInternal
}
