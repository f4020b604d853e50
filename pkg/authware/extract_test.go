package authware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromHeader(t *testing.T) {
	src := FromHeader("X-API-Key")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "  secret  ")

	got, err := src.Extract(req)
	require.NoError(t, err)
	assert.Equal(t, "secret", got)

	_, err = src.Extract(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestFromBearer(t *testing.T) {
	src := FromBearer()

	tests := []struct {
		name   string
		header string
		want   string
		noCred bool
		err    bool
	}{
		{name: "valid", header: "Bearer tok-123", want: "tok-123"},
		{name: "case insensitive scheme", header: "bearer tok-123", want: "tok-123"},
		{name: "absent", header: "", noCred: true},
		{name: "wrong scheme", header: "Basic dXNlcg==", err: true},
		{name: "scheme only", header: "Bearer", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			got, err := src.Extract(req)
			switch {
			case tt.noCred:
				assert.ErrorIs(t, err, ErrNoCredential)
			case tt.err:
				require.Error(t, err)
				assert.NotErrorIs(t, err, ErrNoCredential)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestFromCookie(t *testing.T) {
	src := FromCookie("session")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "sess-42"})

	got, err := src.Extract(req)
	require.NoError(t, err)
	assert.Equal(t, "sess-42", got)

	_, err = src.Extract(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestFromBodyField(t *testing.T) {
	src := FromBodyField("token")

	body := `{"user":"u1","token":"tok-body","nested":{"token":"decoy"}}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

	got, err := src.Extract(req)
	require.NoError(t, err)
	assert.Equal(t, "tok-body", got)

	// The handler must still be able to read the full body afterwards.
	rest, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, body, string(rest))
}

func TestFromBodyField_Missing(t *testing.T) {
	src := FromBodyField("token")

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"user":"u1"}`))
	_, err := src.Extract(req)
	assert.ErrorIs(t, err, ErrNoCredential)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	_, err = src.Extract(req)
	assert.ErrorIs(t, err, ErrNoCredential)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("not json"))
	_, err = src.Extract(req)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoCredential)
}

func TestSource_ZeroValueRejected(t *testing.T) {
	var src Source
	_, err := src.Extract(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Error(t, err)
}
