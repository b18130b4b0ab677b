package identity

import (
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
)

// Config carries the secrets and policies the engine needs. It is an
// explicit value handed to constructors; nothing in this package reads
// ambient global state.
type Config struct {
	// AccessSigningKey signs short-lived access tokens.
	AccessSigningKey string
	// RefreshSigningKey signs long-lived refresh tokens. Must differ
	// from AccessSigningKey.
	RefreshSigningKey string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	Issuer   string
	Audience []string

	// Cookie transport. Both cookies are httpOnly; Secure should only
	// be disabled for local development over plain HTTP.
	AccessCookieName  string
	RefreshCookieName string
	CookieSecure      bool
	CookieSameSite    string

	// ContextKey is where the gate middleware stores the resolved
	// identity on the request context.
	ContextKey string
}

// NewConfig returns a Config with transport defaults filled in. Signing
// keys have no default on purpose.
func NewConfig() *Config {
	return &Config{
		AccessTokenTTL:    15 * time.Minute,
		RefreshTokenTTL:   7 * 24 * time.Hour,
		Issuer:            "go-identity",
		AccessCookieName:  "accessToken",
		RefreshCookieName: "refreshToken",
		CookieSecure:      true,
		CookieSameSite:    "Lax",
		ContextKey:        "identity",
	}
}

// LoadConfig builds a Config from environment variables, falling back
// to NewConfig defaults for everything but the signing keys.
func LoadConfig() (*Config, error) {
	cfg := NewConfig()

	cfg.AccessSigningKey = os.Getenv("ACCESS_TOKEN_SECRET")
	cfg.RefreshSigningKey = os.Getenv("REFRESH_TOKEN_SECRET")

	if v := os.Getenv("ACCESS_TOKEN_EXPIRY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryBadInput, "invalid ACCESS_TOKEN_EXPIRY")
		}
		cfg.AccessTokenTTL = d
	}

	if v := os.Getenv("REFRESH_TOKEN_EXPIRY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryBadInput, "invalid REFRESH_TOKEN_EXPIRY")
		}
		cfg.RefreshTokenTTL = d
	}

	if v := os.Getenv("TOKEN_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("TOKEN_AUDIENCE"); v != "" {
		cfg.Audience = splitAndTrim(v)
	}

	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		cfg.CookieSecure = v != "false" && v != "0"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the invariants constructors rely on.
func (c *Config) Validate() error {
	if c.AccessSigningKey == "" || c.RefreshSigningKey == "" {
		return errors.New("both signing keys are required", errors.CategoryValidation).
			WithTextCode("MISSING_SIGNING_KEY")
	}

	if c.AccessSigningKey == c.RefreshSigningKey {
		return errors.New("access and refresh signing keys must differ", errors.CategoryValidation).
			WithTextCode("SHARED_SIGNING_KEY")
	}

	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return errors.New("token TTLs must be positive", errors.CategoryValidation).
			WithTextCode("INVALID_TOKEN_TTL")
	}

	return nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
