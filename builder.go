package authkit

import (
	"errors"
	"time"

	"github.com/noteleaf/authkit/cache"
	"github.com/noteleaf/authkit/ledger"
	"github.com/noteleaf/authkit/token"
	"github.com/redis/go-redis/v9"
)

// Builder defines a public type used by authkit APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	ledger   ledger.Store
	identity IdentityProvider

	auditSink AuditSink
	clock     func() time.Time

	built bool
}

// New describes the new operation and its observable behavior.
//
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration. Call it before the narrower
// With* setters or it will overwrite them.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis provides the client backing the fast cache.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLedger provides the authoritative refresh-token store.
func (b *Builder) WithLedger(store ledger.Store) *Builder {
	b.ledger = store
	return b
}

// WithIdentityProvider provides the subject lookup used during rotation.
func (b *Builder) WithIdentityProvider(provider IdentityProvider) *Builder {
	b.identity = provider
	return b
}

// WithAuditSink routes audit events somewhere other than the default no-op.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides the engine clock. Tests use it to cross TTL boundaries
// without sleeping; production code leaves it alone.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.ledger == nil {
		return nil, errors.New("ledger store required")
	}
	if b.identity == nil {
		return nil, errors.New("identity provider required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	// -------- TOKEN MANAGERS --------
	accessManager, err := token.NewManager(token.Config{
		TTL:           cfg.Tokens.AccessTTL,
		SigningMethod: token.SigningMethod(cfg.Tokens.SigningMethod),
		PrivateKey:    cfg.Tokens.AccessSecret,
		PublicKey:     cfg.Tokens.AccessPublicKey,
		Issuer:        cfg.Tokens.Issuer,
		Leeway:        cfg.Tokens.Leeway,
		TimeFunc:      clock,
	})
	if err != nil {
		return nil, errors.Join(ErrConfig, err)
	}

	refreshManager, err := token.NewManager(token.Config{
		TTL:           cfg.Tokens.RefreshTTL,
		SigningMethod: token.SigningMethod(cfg.Tokens.SigningMethod),
		PrivateKey:    cfg.Tokens.RefreshSecret,
		PublicKey:     cfg.Tokens.RefreshPublicKey,
		Issuer:        cfg.Tokens.Issuer,
		Leeway:        cfg.Tokens.Leeway,
		TimeFunc:      clock,
	})
	if err != nil {
		return nil, errors.Join(ErrConfig, err)
	}

	// -------- FAST CACHE --------
	cacheStore := cache.NewStore(b.redis, cfg.Cache.Prefix)

	// -------- AUDIT / METRICS --------
	dispatcher := newAuditDispatcher(cfg.Audit, b.auditSink)
	metrics := NewMetrics(cfg.Metrics)

	b.built = true

	return &Engine{
		config:   cfg,
		access:   accessManager,
		refresh:  refreshManager,
		ledger:   b.ledger,
		cache:    cacheStore,
		identity: b.identity,
		audit:    dispatcher,
		metrics:  metrics,
		clock:    clock,
	}, nil
}
