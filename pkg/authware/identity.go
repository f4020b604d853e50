package authware

import (
	"context"
	"time"
)

// Identity is the authenticated principal produced by a successful Verify.
// Immutable once constructed; shared read-only between the cache entry that
// holds it and every invocation that observes the entry.
type Identity struct {
	// Subject uniquely identifies the principal.
	Subject string
	// Roles the provider granted to the principal.
	Roles []string
	// IssuedAt and ExpiresAt reflect the credential's own validity window,
	// when the provider supplies one. Zero when unknown.
	IssuedAt  time.Time
	ExpiresAt time.Time
	// Claims is provider-specific passthrough, keyed by claim name.
	Claims map[string]any
}

// HasRole reports whether the identity carries the given role.
func (id *Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Decision is the cached outcome of verifying one credential fingerprint:
// either an allow carrying the identity, or a deny carrying a reason.
type Decision struct {
	Allowed  bool
	Identity *Identity
	Reason   string
}

// Allow builds the positive decision for an authenticated identity.
func Allow(id *Identity) Decision {
	return Decision{Allowed: true, Identity: id}
}

// Deny builds the negative decision. The reason is for logs and operators;
// it reaches clients only when ExposeDenyReason is set.
func Deny(reason string) Decision {
	return Decision{Reason: reason}
}

type identityContextKey struct{}

// ContextWithIdentity attaches the authenticated identity to the context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity placed by the auth middleware.
// The second return is false for requests that never passed through it.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || id == nil {
		return nil, false
	}
	return id, true
}
