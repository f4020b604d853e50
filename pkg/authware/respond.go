package authware

import (
	"net/http"
	"strconv"

	"github.com/go-faster/jx"
)

// Response is the transport-level shape of a short-circuited invocation.
type Response struct {
	StatusCode int
	Body       []byte
}

// Outcome is the input to the response mapper: a denial carries the decision,
// a verifier fault carries its kind. Exactly one of the two is meaningful.
type Outcome struct {
	Denied *Decision
	Fault  Kind
}

// DeniedOutcome wraps a deny decision for mapping.
func DeniedOutcome(d Decision) Outcome { return Outcome{Denied: &d} }

// FaultOutcome wraps a verifier failure kind for mapping.
func FaultOutcome(k Kind) Outcome { return Outcome{Fault: k} }

// Label returns the metric/log label for the outcome.
func (o Outcome) Label() string {
	if o.Denied != nil {
		return "denied"
	}
	return o.Fault.String()
}

// MapperConfig controls how denials are rendered.
type MapperConfig struct {
	// DeniedStatusCode is the status for provider denials. Default 401.
	DeniedStatusCode int
	// ExposeDenyReason leaks the deny reason into the response body. Off by
	// default: clients get a generic message, operators get the logs.
	ExposeDenyReason bool
}

// MapOutcome translates a denial or verifier fault into the response the
// surrounding runtime should emit. Pure function; provider internals never
// reach the body.
func MapOutcome(o Outcome, cfg MapperConfig) Response {
	if o.Denied != nil {
		status := cfg.DeniedStatusCode
		if status == 0 {
			status = http.StatusUnauthorized
		}
		msg := http.StatusText(http.StatusUnauthorized)
		if cfg.ExposeDenyReason && o.Denied.Reason != "" {
			msg = o.Denied.Reason
		}
		return Response{StatusCode: status, Body: errorBody(msg)}
	}

	switch o.Fault {
	case KindMalformed:
		return Response{StatusCode: http.StatusBadRequest, Body: errorBody("Malformed credential")}
	case KindUnavailable:
		return Response{StatusCode: http.StatusServiceUnavailable, Body: errorBody("Authentication temporarily unavailable")}
	default:
		return Response{StatusCode: http.StatusInternalServerError, Body: errorBody(http.StatusText(http.StatusInternalServerError))}
	}
}

func errorBody(msg string) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("error")
	e.Str(msg)
	e.ObjEnd()
	return e.Bytes()
}

func writeResponse(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}
