package authware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprinter digests raw credentials into cache keys. With a pepper it
// computes HMAC-SHA256 so that cache keys cannot be correlated with tokens by
// anyone who can read the cache; without one it falls back to plain SHA-256.
// The raw credential is never retained.
type Fingerprinter struct {
	pepper []byte
}

// NewFingerprinter returns a Fingerprinter using the given pepper. A nil or
// empty pepper selects unkeyed SHA-256.
func NewFingerprinter(pepper []byte) *Fingerprinter {
	return &Fingerprinter{pepper: pepper}
}

// Fingerprint returns the hex-encoded digest of the credential.
func (f *Fingerprinter) Fingerprint(credential string) string {
	if len(f.pepper) == 0 {
		sum := sha256.Sum256([]byte(credential))
		return hex.EncodeToString(sum[:])
	}
	mac := hmac.New(sha256.New, f.pepper)
	mac.Write([]byte(credential))
	return hex.EncodeToString(mac.Sum(nil))
}
