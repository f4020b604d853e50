// Package app wires the demo gateway: config, verifier, decision cache,
// middleware chain, HTTP server, and graceful shutdown.
package app

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	sdkapp "github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/gatekeep/gatekeep/internal/postgres"
	"github.com/gatekeep/gatekeep/internal/verify/apikey"
	"github.com/gatekeep/gatekeep/internal/verify/jwtverify"
	"github.com/gatekeep/gatekeep/pkg/authware"
	"github.com/gatekeep/gatekeep/pkg/decisioncache"
	"github.com/gatekeep/gatekeep/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the gateway.
func Run(ctx context.Context, lg *zap.Logger, m *sdkapp.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr), zap.String("auth_mode", cfg.Auth.Mode))

	verifier, cleanup, err := buildVerifier(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	cache := decisioncache.New(decisioncache.Config{MaxEntries: cfg.Auth.CacheMaxEntries})
	cache.StartSweeper(ctx, cfg.Auth.TTL)

	source, err := buildSource(cfg.Auth)
	if err != nil {
		return err
	}

	meter := m.MeterProvider().Meter("gatekeepd")
	decisions, err := meter.Int64Counter("gatekeepd.auth.decisions",
		metric.WithDescription("Terminal authorization outcomes by label"),
	)
	if err != nil {
		return errors.Wrap(err, "create decisions counter")
	}

	authCfg := authware.Config{
		Source:           source,
		TTL:              cfg.Auth.TTL,
		ExposeDenyReason: cfg.Auth.ExposeDenyReason,
		DeniedStatusCode: cfg.Auth.DeniedStatusCode,
		VerifierTimeout:  cfg.Auth.VerifierTimeout,
		Retry: authware.RetryConfig{
			Attempts: cfg.Auth.RetryAttempts,
			Backoff:  cfg.Auth.RetryBackoff,
		},
		Pepper: []byte(cfg.Auth.FingerprintKey),
		OnDecision: func(ctx context.Context, outcome string) {
			decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		},
	}

	var ready atomic.Bool

	api := http.NewServeMux()
	api.HandleFunc("GET /api/whoami", whoami)
	api.HandleFunc("POST /api/logout", logout(cache, source, authCfg.Pepper))

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !ready.Load() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/api/", httpmiddleware.Wrap(api, authware.Auth(verifier, cache, authCfg)))

	handler := httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.LogRequests(),
	)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(handler, "gatekeepd",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	ready.Store(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		ready.Store(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// buildVerifier selects the verifier per config. The returned cleanup closes
// whatever backing resources the verifier holds.
func buildVerifier(ctx context.Context, cfg *Config) (authware.Verifier, func(), error) {
	switch cfg.Auth.Mode {
	case "apikey":
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, errors.Wrap(err, "run migrations")
		}
		v := apikey.New(apikey.NewPGRepository(pool), []byte(cfg.Auth.APIKeyPepper))
		return v, pool.Close, nil

	case "jwt":
		v, err := jwtverify.New([]byte(cfg.Auth.JWTSecret), cfg.Auth.JWTIssuer)
		if err != nil {
			return nil, nil, err
		}
		return v, func() {}, nil

	default:
		return nil, nil, errors.Errorf("unknown auth mode %q", cfg.Auth.Mode)
	}
}

func buildSource(cfg AuthConfig) (authware.Source, error) {
	switch cfg.Source {
	case "bearer":
		return authware.FromBearer(), nil
	case "header":
		return authware.FromHeader(cfg.SourceName), nil
	case "cookie":
		return authware.FromCookie(cfg.SourceName), nil
	case "body":
		return authware.FromBodyField(cfg.SourceName), nil
	default:
		return authware.Source{}, errors.Errorf("unknown credential source %q", cfg.Source)
	}
}

// whoami echoes the authenticated identity. Reaching it at all means the
// middleware allowed the request.
func whoami(w http.ResponseWriter, r *http.Request) {
	id, ok := authware.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("auth.subject", id.Subject),
	)

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("subject")
	e.Str(id.Subject)
	e.FieldStart("roles")
	e.ArrStart()
	for _, role := range id.Roles {
		e.Str(role)
	}
	e.ArrEnd()
	if !id.ExpiresAt.IsZero() {
		e.FieldStart("expiresAt")
		e.Str(id.ExpiresAt.UTC().Format(time.RFC3339))
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(e.Bytes())
}

// logout drops the cached decision for the presented credential so the next
// request re-verifies. The credential itself is not revoked at the provider.
func logout(cache *decisioncache.Cache, source authware.Source, pepper []byte) http.HandlerFunc {
	fp := authware.NewFingerprinter(pepper)
	return func(w http.ResponseWriter, r *http.Request) {
		credential, err := source.Extract(r)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		cache.Invalidate(fp.Fingerprint(credential))
		w.WriteHeader(http.StatusNoContent)
	}
}
