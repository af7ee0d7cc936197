package authkit

import (
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/noteleaf/authkit/ledger"
	"github.com/redis/go-redis/v9"
)

func builderFixture(t *testing.T) (*Builder, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	b := New().
		WithConfig(testConfig()).
		WithRedis(client).
		WithLedger(ledger.NewMemoryStore()).
		WithIdentityProvider(newStubIdentity("u1"))

	return b, func() {
		_ = client.Close()
		mr.Close()
	}
}

func TestBuildRequiresDependencies(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cases := []struct {
		name  string
		build func() *Builder
	}{
		{"missing redis", func() *Builder {
			return New().WithConfig(testConfig()).
				WithLedger(ledger.NewMemoryStore()).
				WithIdentityProvider(newStubIdentity("u1"))
		}},
		{"missing ledger", func() *Builder {
			return New().WithConfig(testConfig()).
				WithRedis(client).
				WithIdentityProvider(newStubIdentity("u1"))
		}},
		{"missing identity provider", func() *Builder {
			return New().WithConfig(testConfig()).
				WithRedis(client).
				WithLedger(ledger.NewMemoryStore())
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.build().Build(); err == nil {
				t.Fatal("expected build error")
			}
		})
	}
}

func TestBuildValidatesConfig(t *testing.T) {
	b, cleanup := builderFixture(t)
	defer cleanup()

	cfg := testConfig()
	cfg.Tokens.RefreshSecret = cfg.Tokens.AccessSecret
	b.WithConfig(cfg)

	if _, err := b.Build(); !errors.Is(err, ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
}

func TestBuildOnlyOnce(t *testing.T) {
	b, cleanup := builderFixture(t)
	defer cleanup()

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("second Build should fail")
	}
}
