package authkit

import (
	"bytes"
	"fmt"
	"net/http"
	"time"
)

// Config defines a public type used by authkit APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Tokens  TokenConfig
	Cache   CacheConfig
	Cookies CookieConfig
	Audit   AuditConfig
	Metrics MetricsConfig

	// StoreTimeout bounds every ledger and cache call. Store outages fail
	// closed after this long instead of hanging the request.
	StoreTimeout time.Duration
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig defines a public type used by authkit APIs.
//
// TokenConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default), "ed25519" optional

	// AccessSecret and RefreshSecret MUST differ. For hs256 they are the HMAC
	// keys; for ed25519 they are PEM-encoded private keys and the PublicKey
	// fields carry the matching PEM-encoded public keys.
	AccessSecret     []byte
	RefreshSecret    []byte
	AccessPublicKey  []byte
	RefreshPublicKey []byte

	Issuer string
	Leeway time.Duration
}

/*
====================================
CACHE CONFIG
====================================
*/

// CacheConfig defines a public type used by authkit APIs.
//
// CacheConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CacheConfig struct {
	// Prefix namespaces every key this engine writes into Redis.
	Prefix string
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig defines a public type used by authkit APIs.
//
// CookieConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CookieConfig struct {
	AccessName  string
	RefreshName string
	Domain      string
	Path        string
	Secure      bool
	SameSite    http.SameSite
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig defines a public type used by authkit APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by authkit APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. Secrets are intentionally
// absent; Build fails until the caller provides them.
func DefaultConfig() Config {
	return Config{
		Tokens: TokenConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
			Leeway:        0,
		},
		Cache: CacheConfig{
			Prefix: "ak",
		},
		Cookies: CookieConfig{
			AccessName:  "accessToken",
			RefreshName: "refreshToken",
			Path:        "/",
			Secure:      false,
			SameSite:    http.SameSiteLaxMode,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		StoreTimeout: 5 * time.Second,
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Tokens.AccessSecret = cloneBytes(cfg.Tokens.AccessSecret)
	out.Tokens.RefreshSecret = cloneBytes(cfg.Tokens.RefreshSecret)
	out.Tokens.AccessPublicKey = cloneBytes(cfg.Tokens.AccessPublicKey)
	out.Tokens.RefreshPublicKey = cloneBytes(cfg.Tokens.RefreshPublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// Tokens
	if c.Tokens.AccessTTL <= 0 {
		return fmt.Errorf("%w: Tokens AccessTTL must be > 0", ErrConfig)
	}
	if c.Tokens.RefreshTTL <= 0 {
		return fmt.Errorf("%w: Tokens RefreshTTL must be > 0", ErrConfig)
	}
	if c.Tokens.RefreshTTL < c.Tokens.AccessTTL {
		return fmt.Errorf("%w: Tokens RefreshTTL must be >= AccessTTL", ErrConfig)
	}

	if c.Tokens.SigningMethod != "hs256" && c.Tokens.SigningMethod != "ed25519" {
		return fmt.Errorf("%w: unsupported signing method", ErrConfig)
	}

	if len(c.Tokens.AccessSecret) == 0 {
		return fmt.Errorf("%w: Tokens AccessSecret is required", ErrConfig)
	}
	if len(c.Tokens.RefreshSecret) == 0 {
		return fmt.Errorf("%w: Tokens RefreshSecret is required", ErrConfig)
	}
	if bytes.Equal(c.Tokens.AccessSecret, c.Tokens.RefreshSecret) {
		return fmt.Errorf("%w: access and refresh secrets must differ", ErrConfig)
	}
	if c.Tokens.SigningMethod == "hs256" && len(c.Tokens.AccessSecret) < 32 {
		return fmt.Errorf("%w: hs256 AccessSecret must be at least 32 bytes", ErrConfig)
	}
	if c.Tokens.SigningMethod == "hs256" && len(c.Tokens.RefreshSecret) < 32 {
		return fmt.Errorf("%w: hs256 RefreshSecret must be at least 32 bytes", ErrConfig)
	}
	if c.Tokens.SigningMethod == "ed25519" && len(c.Tokens.AccessPublicKey) == 0 {
		return fmt.Errorf("%w: ed25519 requires AccessPublicKey", ErrConfig)
	}
	if c.Tokens.SigningMethod == "ed25519" && len(c.Tokens.RefreshPublicKey) == 0 {
		return fmt.Errorf("%w: ed25519 requires RefreshPublicKey", ErrConfig)
	}

	if c.Tokens.Leeway < 0 {
		return fmt.Errorf("%w: Tokens Leeway must be >= 0", ErrConfig)
	}
	if c.Tokens.Leeway > 2*time.Minute {
		return fmt.Errorf("%w: Tokens Leeway must be <= 2m", ErrConfig)
	}

	// Cache
	if c.Cache.Prefix == "" {
		return fmt.Errorf("%w: Cache Prefix must not be empty", ErrConfig)
	}

	// Cookies
	if c.Cookies.AccessName == "" || c.Cookies.RefreshName == "" {
		return fmt.Errorf("%w: cookie names must not be empty", ErrConfig)
	}
	if c.Cookies.SameSite == http.SameSiteNoneMode && !c.Cookies.Secure {
		return fmt.Errorf("%w: SameSite=None requires Secure cookies", ErrConfig)
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return fmt.Errorf("%w: Audit BufferSize must be > 0 when audit is enabled", ErrConfig)
	}

	// Stores
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("%w: StoreTimeout must be > 0", ErrConfig)
	}
	if c.StoreTimeout > 30*time.Second {
		return fmt.Errorf("%w: StoreTimeout must be <= 30s", ErrConfig)
	}

	return nil
}
