// Package authware implements a reusable authorization-decision middleware
// for HTTP handlers. It extracts a credential from the request, checks a
// TTL-bounded decision cache keyed by the credential's fingerprint, verifies
// on a miss through a pluggable Verifier (one in-flight verification per
// fingerprint), and either forwards to the wrapped handler with the identity
// attached to the request context or short-circuits with a mapped response.
package authware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/gatekeep/gatekeep/pkg/httpmiddleware"
)

const (
	// DefaultTTL is how long a decision stays reusable when the config does
	// not say otherwise.
	DefaultTTL = 300 * time.Second
	// DefaultVerifierTimeout bounds a single Verify call.
	DefaultVerifierTimeout = 3 * time.Second
)

// DecisionCache is the store the middleware consults before verifying.
// Flight must guarantee at most one in-flight fn per fingerprint: concurrent
// callers share the first caller's result, and a caller whose context is
// cancelled while waiting detaches without aborting the flight for others.
type DecisionCache interface {
	Lookup(fingerprint string) (Decision, bool)
	Store(fingerprint string, d Decision, ttl time.Duration)
	Invalidate(fingerprint string)
	Flight(ctx context.Context, fingerprint string, fn func() (Decision, error)) (Decision, error)
}

// Config is the recognized option surface of the middleware.
type Config struct {
	// Source locates the credential in the request.
	Source Source
	// TTL bounds how long decisions are reused. Default 300s.
	TTL time.Duration
	// ExposeDenyReason leaks deny reasons into response bodies. Default off.
	ExposeDenyReason bool
	// DeniedStatusCode is the status for denials. Default 401.
	DeniedStatusCode int
	// VerifierTimeout bounds each Verify attempt. Default 3s.
	VerifierTimeout time.Duration
	// Retry governs re-attempts after transient provider faults.
	Retry RetryConfig
	// Pepper keys the credential fingerprint. Optional.
	Pepper []byte
	// OnDecision, when set, observes the label of every terminal outcome
	// ("allowed", "denied", "provider_unavailable", ...). Used for metrics.
	OnDecision func(ctx context.Context, outcome string)
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.VerifierTimeout <= 0 {
		c.VerifierTimeout = DefaultVerifierTimeout
	}
	if c.DeniedStatusCode == 0 {
		c.DeniedStatusCode = http.StatusUnauthorized
	}
	return c
}

func (c Config) mapper() MapperConfig {
	return MapperConfig{
		DeniedStatusCode: c.DeniedStatusCode,
		ExposeDenyReason: c.ExposeDenyReason,
	}
}

// Auth returns the authorization middleware. The cache is caller-owned:
// construct it explicitly, share it across wrapped handlers as needed, and
// tear it down with the server.
func Auth(v Verifier, cache DecisionCache, cfg Config) httpmiddleware.Middleware {
	cfg = cfg.withDefaults()
	fp := NewFingerprinter(cfg.Pepper)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			lg := zctx.From(ctx)

			credential, err := cfg.Source.Extract(r)
			if err != nil {
				lg.Debug("No usable credential", zap.Error(err))
				short(ctx, w, DeniedOutcome(Deny("missing credential")), cfg)
				return
			}

			key := fp.Fingerprint(credential)
			d, ok := cache.Lookup(key)
			if !ok {
				d, err = cache.Flight(ctx, key, func() (Decision, error) {
					return resolve(ctx, v, cache, key, credential, cfg)
				})
				if err != nil {
					kind := ClassifyError(err)
					lg.Error("Verifier failure",
						zap.Stringer("kind", kind),
						zap.Error(err),
					)
					short(ctx, w, FaultOutcome(kind), cfg)
					return
				}
			}

			if !d.Allowed {
				lg.Info("Request denied", zap.String("reason", d.Reason))
				short(ctx, w, DeniedOutcome(d), cfg)
				return
			}

			if cfg.OnDecision != nil {
				cfg.OnDecision(ctx, "allowed")
			}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(ctx, d.Identity)))
		})
	}
}

// resolve runs inside the single-flight slot for key. It re-checks the cache
// (a second caller may land here right after the first one stored), verifies,
// and stores the outcome. Only Allowed and provider-rejected Denied decisions
// are cached; timeouts and transient faults never are.
func resolve(ctx context.Context, v Verifier, cache DecisionCache, key, credential string, cfg Config) (Decision, error) {
	if d, ok := cache.Lookup(key); ok {
		return d, nil
	}

	// The flight outlives any individual waiter: detach from request
	// cancellation so one impatient caller cannot abort the verification
	// other waiters share. The per-attempt timeout still bounds it.
	id, err := verifyWithRetry(context.WithoutCancel(ctx), v, credential, cfg.VerifierTimeout, cfg.Retry)
	if err != nil {
		if ClassifyError(err) == KindUnauthorized {
			var reason string
			if ae, ok := asAuthError(err); ok {
				reason = ae.Reason
			}
			d := Deny(reason)
			cache.Store(key, d, cfg.TTL)
			return d, nil
		}
		return Decision{}, err
	}

	d := Allow(id)
	cache.Store(key, d, cfg.TTL)
	return d, nil
}

func short(ctx context.Context, w http.ResponseWriter, o Outcome, cfg Config) {
	if cfg.OnDecision != nil {
		cfg.OnDecision(ctx, o.Label())
	}
	writeResponse(w, MapOutcome(o, cfg.mapper()))
}
