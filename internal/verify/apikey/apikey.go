// Package apikey verifies opaque API keys against a hashed-key store. Keys
// are never stored or compared in the clear: the store holds HMAC-SHA256
// hashes and the comparison is constant-time.
package apikey

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/go-faster/errors"

	"github.com/gatekeep/gatekeep/pkg/authware"
)

// ErrNotFound is returned by a Repository when no active key matches a hash.
var ErrNotFound = errors.New("api key not found")

// Info holds the identity and permission data for a stored API key.
type Info struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// Repository provides lookup of API keys by their HMAC-SHA256 hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*Info, error)
}

// Verifier authenticates API keys via a Repository.
type Verifier struct {
	repo   Repository
	pepper []byte
}

var _ authware.Verifier = (*Verifier)(nil)

// New creates a Verifier using the given repository and HMAC pepper.
func New(repo Repository, pepper []byte) *Verifier {
	return &Verifier{repo: repo, pepper: pepper}
}

// Verify hashes the presented key, looks it up, and performs a constant-time
// comparison against the stored hash to close timing side-channels.
func (v *Verifier) Verify(ctx context.Context, credential string) (*authware.Identity, error) {
	mac := hmac.New(sha256.New, v.pepper)
	mac.Write([]byte(credential))
	hash := mac.Sum(nil)

	info, err := v.repo.FindByHash(ctx, hex.EncodeToString(hash))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, authware.Unauthorized("unknown api key")
		}
		return nil, authware.Unavailable(err)
	}

	// The stored hash could differ from what we computed if the repository
	// returns a stale or wrong row; compare in constant time regardless.
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return nil, authware.Unauthorized("unknown api key")
	}
	if subtle.ConstantTimeCompare(hash, stored) != 1 {
		return nil, authware.Unauthorized("unknown api key")
	}

	return &authware.Identity{
		Subject: info.ID,
		Roles:   info.Scopes,
		Claims:  map[string]any{"name": info.Name},
	}, nil
}
