package jwtverify

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatekeep/gatekeep/pkg/authware"
)

var testSecret = []byte("test-secret")

func mintToken(t *testing.T, secret []byte, mutate func(*Claims)) string {
	t.Helper()

	now := time.Now()
	claims := Claims{
		Roles: []string{"admin"},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "gatekeep-test",
			Subject:   "u1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			ID:        "jti-1",
		},
	}
	if mutate != nil {
		mutate(&claims)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return signed
}

func kindOf(t *testing.T, err error) authware.Kind {
	t.Helper()
	require.Error(t, err)
	return authware.ClassifyError(err)
}

func TestVerify_ValidToken(t *testing.T) {
	v, err := New(testSecret, "gatekeep-test")
	require.NoError(t, err)

	id, err := v.Verify(context.Background(), mintToken(t, testSecret, nil))
	require.NoError(t, err)

	assert.Equal(t, "u1", id.Subject)
	assert.Equal(t, []string{"admin"}, id.Roles)
	assert.False(t, id.ExpiresAt.IsZero())
	assert.Equal(t, "gatekeep-test", id.Claims["iss"])
}

func TestVerify_Expired(t *testing.T) {
	v, err := New(testSecret, "")
	require.NoError(t, err)

	token := mintToken(t, testSecret, func(c *Claims) {
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	})

	_, err = v.Verify(context.Background(), token)
	assert.Equal(t, authware.KindUnauthorized, kindOf(t, err))
}

func TestVerify_WrongSignature(t *testing.T) {
	v, err := New(testSecret, "")
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), mintToken(t, []byte("other-secret"), nil))
	assert.Equal(t, authware.KindUnauthorized, kindOf(t, err))
}

func TestVerify_WrongIssuer(t *testing.T) {
	v, err := New(testSecret, "expected-issuer")
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), mintToken(t, testSecret, nil))
	assert.Equal(t, authware.KindUnauthorized, kindOf(t, err))
}

func TestVerify_Garbage(t *testing.T) {
	v, err := New(testSecret, "")
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), "not-a-jwt")
	assert.Equal(t, authware.KindMalformed, kindOf(t, err))
}

func TestNew_EmptySecret(t *testing.T) {
	_, err := New(nil, "")
	assert.Error(t, err)
}
