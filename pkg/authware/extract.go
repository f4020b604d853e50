package authware

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// ErrNoCredential is returned by a Source when the request carries no
// credential at all. The middleware turns it into a generic denial without
// consulting the cache or the verifier.
var ErrNoCredential = errors.New("missing credential")

// maxBodyCredential bounds how much of a request body the body-field source
// will read while looking for a credential.
const maxBodyCredential = 1 << 20

type sourceKind uint8

const (
	sourceHeader sourceKind = iota + 1
	sourceBearer
	sourceCookie
	sourceBodyField
)

// Source describes where in the request the credential lives. The zero value
// is invalid; construct via FromHeader, FromBearer, FromCookie or
// FromBodyField.
type Source struct {
	kind sourceKind
	name string
}

// FromHeader extracts the credential verbatim from the named header.
func FromHeader(name string) Source {
	return Source{kind: sourceHeader, name: name}
}

// FromBearer extracts a bearer token from the Authorization header.
func FromBearer() Source {
	return Source{kind: sourceBearer, name: "Authorization"}
}

// FromCookie extracts the credential from the named cookie's value.
func FromCookie(name string) Source {
	return Source{kind: sourceCookie, name: name}
}

// FromBodyField extracts the credential from a top-level string field of a
// JSON request body. The body is re-buffered so the wrapped handler can still
// read it.
func FromBodyField(name string) Source {
	return Source{kind: sourceBodyField, name: name}
}

// Extract pulls the credential out of the request. ErrNoCredential means the
// request carried none; any other error means the carrier was present but
// unusable.
func (s Source) Extract(r *http.Request) (string, error) {
	switch s.kind {
	case sourceHeader:
		v := strings.TrimSpace(r.Header.Get(s.name))
		if v == "" {
			return "", ErrNoCredential
		}
		return v, nil

	case sourceBearer:
		v := strings.TrimSpace(r.Header.Get(s.name))
		if v == "" {
			return "", ErrNoCredential
		}
		const prefix = "Bearer "
		if len(v) <= len(prefix) || !strings.EqualFold(v[:len(prefix)], prefix) {
			return "", errors.New("authorization header is not a bearer token")
		}
		return strings.TrimSpace(v[len(prefix):]), nil

	case sourceCookie:
		c, err := r.Cookie(s.name)
		if err != nil || c.Value == "" {
			return "", ErrNoCredential
		}
		return c.Value, nil

	case sourceBodyField:
		return s.extractBodyField(r)

	default:
		return "", errors.New("credential source not configured")
	}
}

func (s Source) extractBodyField(r *http.Request) (string, error) {
	if r.Body == nil {
		return "", ErrNoCredential
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyCredential))
	if err != nil {
		return "", errors.Wrap(err, "read body")
	}
	// Hand the body back so the wrapped handler sees it untouched.
	r.Body = io.NopCloser(bytes.NewReader(data))

	if len(data) == 0 {
		return "", ErrNoCredential
	}

	var credential string
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != s.name {
			return d.Skip()
		}
		v, err := d.Str()
		if err != nil {
			return err
		}
		credential = v
		return nil
	}); err != nil {
		return "", errors.Wrap(err, "decode body")
	}
	if credential == "" {
		return "", ErrNoCredential
	}
	return credential, nil
}
