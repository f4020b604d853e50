package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete gateway configuration, loadable from environment
// variables (GATE_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"Gateway listen address"`
	DatabaseURL string `usage:"PostgreSQL URL for the API key store; empty selects the JWT verifier" flag:"database-url"`
	Auth        AuthConfig
	Graceful    GracefulConfig
}

// AuthConfig controls the authorization middleware and its verifier.
type AuthConfig struct {
	// Mode selects the verifier: "jwt" or "apikey".
	Mode string `default:"jwt" usage:"Verifier mode: jwt or apikey"`

	JWTSecret string `usage:"HMAC secret for JWT validation (GATE_AUTH_JWT_SECRET)" flag:"jwt-secret"`
	JWTIssuer string `default:"" usage:"Required JWT issuer; empty disables the check" flag:"jwt-issuer"`

	APIKeyPepper string `usage:"HMAC pepper for API key hashing" flag:"api-key-pepper"`

	// Source locates the credential: "bearer", "header", "cookie" or "body".
	Source     string `default:"bearer" usage:"Credential source: bearer, header, cookie or body"`
	SourceName string `default:"" usage:"Header, cookie or body field name for the credential" flag:"source-name"`

	TTL              time.Duration `default:"300s" usage:"Decision cache TTL"`
	ExposeDenyReason bool          `default:"false" usage:"Leak deny reasons to clients" flag:"expose-deny-reason"`
	DeniedStatusCode int           `default:"401" usage:"Status code for denials" flag:"denied-status"`
	VerifierTimeout  time.Duration `default:"3s" usage:"Per-attempt verifier timeout" flag:"verifier-timeout"`
	RetryAttempts    int           `default:"1" usage:"Total verify attempts on transient faults" flag:"retry-attempts"`
	RetryBackoff     time.Duration `default:"100ms" usage:"Initial retry backoff" flag:"retry-backoff"`
	CacheMaxEntries  int           `default:"100000" usage:"Decision cache capacity, 0 = unbounded" flag:"cache-max-entries"`
	FingerprintKey   string        `usage:"Pepper for credential fingerprints" flag:"fingerprint-key"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML config
// files, then applies platform defaults and validates the verifier settings.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "GATE",
		Files:     []string{"config.yaml", "/etc/gatekeep/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	switch cfg.Auth.Mode {
	case "jwt":
		if cfg.Auth.JWTSecret == "" {
			return nil, errors.New("jwt mode requires GATE_AUTH_JWT_SECRET")
		}
	case "apikey":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("apikey mode requires GATE_DATABASE_URL or DATABASE_URL")
		}
	default:
		return nil, errors.Errorf("unknown auth mode %q", cfg.Auth.Mode)
	}

	switch cfg.Auth.Source {
	case "bearer":
	case "header", "cookie", "body":
		if cfg.Auth.SourceName == "" {
			return nil, errors.Errorf("source %q requires GATE_AUTH_SOURCE_NAME", cfg.Auth.Source)
		}
	default:
		return nil, errors.Errorf("unknown credential source %q", cfg.Auth.Source)
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// GATE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
