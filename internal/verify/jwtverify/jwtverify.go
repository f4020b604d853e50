// Package jwtverify verifies HS256-signed JWTs locally, without calling out
// to a provider. It is the default verifier of the demo gateway and doubles
// as the reference implementation of the authware.Verifier contract.
package jwtverify

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/gatekeep/gatekeep/pkg/authware"
)

// Claims are the JWT claims the verifier understands: registered claims plus
// a roles array.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens against a shared HMAC secret.
type Verifier struct {
	secret []byte
	issuer string
}

var _ authware.Verifier = (*Verifier)(nil)

// New creates a Verifier. A non-empty issuer is enforced against the token's
// iss claim.
func New(secret []byte, issuer string) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret must not be empty")
	}
	return &Verifier{secret: secret, issuer: issuer}, nil
}

// Verify parses and validates the token and maps its claims onto an Identity.
// Validation is purely local, so ctx is only honored between steps.
func (v *Verifier) Verify(_ context.Context, credential string) (*authware.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(credential, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, mapJWTError(err)
	}

	id := &authware.Identity{
		Subject: claims.Subject,
		Roles:   claims.Roles,
		Claims: map[string]any{
			"iss": claims.Issuer,
			"jti": claims.ID,
		},
	}
	if claims.IssuedAt != nil {
		id.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// mapJWTError folds jwt parse errors onto the verifier taxonomy: structural
// problems are malformed credentials, everything else is an explicit
// rejection. Local validation has no transient failure mode.
func mapJWTError(err error) *authware.AuthError {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return authware.Malformed("token is not a valid JWT")
	case errors.Is(err, jwt.ErrTokenExpired):
		return authware.Unauthorized("token expired")
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return authware.Unauthorized("token not valid yet")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return authware.Unauthorized("invalid token signature")
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return authware.Unauthorized("invalid token issuer")
	default:
		return authware.Unauthorized("invalid token")
	}
}
