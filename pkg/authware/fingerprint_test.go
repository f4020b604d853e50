package authware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint_Deterministic(t *testing.T) {
	fp := NewFingerprinter([]byte("pepper"))

	a := fp.Fingerprint("tok-123")
	b := fp.Fingerprint("tok-123")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64, "hex-encoded SHA-256")
	assert.NotContains(t, a, "tok-123", "raw credential must not appear in the key")
}

func TestFingerprint_PepperSeparatesKeys(t *testing.T) {
	plain := NewFingerprinter(nil)
	peppered := NewFingerprinter([]byte("pepper"))

	assert.NotEqual(t, plain.Fingerprint("tok-123"), peppered.Fingerprint("tok-123"))
	assert.NotEqual(t, peppered.Fingerprint("tok-123"), peppered.Fingerprint("tok-124"))
}
