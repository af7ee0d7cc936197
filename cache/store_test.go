package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewStore(client, "ak"), mr
}

func TestPutGetDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "hash-1", "u1", time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}

	subject, err := store.Get(ctx, "hash-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if subject != "u1" {
		t.Fatalf("subject = %q, want u1", subject)
	}

	if err := store.Delete(ctx, "hash-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "hash-1"); !errors.Is(err, redis.Nil) {
		t.Fatalf("Get after delete = %v, want redis.Nil", err)
	}

	// deleting again is a no-op
	if err := store.Delete(ctx, "hash-1"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestGetMissIsNil(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), "never-stored")
	if !errors.Is(err, redis.Nil) {
		t.Fatalf("err = %v, want redis.Nil", err)
	}
}

func TestEntryExpiresWithTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "hash-1", "u1", time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := store.Get(ctx, "hash-1"); !errors.Is(err, redis.Nil) {
		t.Fatalf("entry should have expired, got %v", err)
	}
}

func TestDeleteAllForSubject(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, hash := range []string{"a1", "a2", "a3"} {
		if err := store.Put(ctx, hash, "alice", time.Hour); err != nil {
			t.Fatalf("Put %s: %v", hash, err)
		}
	}
	if err := store.Put(ctx, "b1", "bob", time.Hour); err != nil {
		t.Fatalf("Put b1: %v", err)
	}

	if err := store.DeleteAllForSubject(ctx, "alice"); err != nil {
		t.Fatalf("DeleteAllForSubject: %v", err)
	}

	for _, hash := range []string{"a1", "a2", "a3"} {
		if _, err := store.Get(ctx, hash); !errors.Is(err, redis.Nil) {
			t.Fatalf("%s should be gone, got %v", hash, err)
		}
	}

	subject, err := store.Get(ctx, "b1")
	if err != nil || subject != "bob" {
		t.Fatalf("bob's entry must survive: %q, %v", subject, err)
	}

	// empty subject is fine
	if err := store.DeleteAllForSubject(ctx, "nobody"); err != nil {
		t.Fatalf("DeleteAllForSubject(nobody): %v", err)
	}
}

func TestUnavailableRedis(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "hash-1", "u1", time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}

	mr.Close()

	if err := store.Put(ctx, "hash-2", "u1", time.Hour); !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("Put err = %v, want ErrCacheUnavailable", err)
	}
	if _, err := store.Get(ctx, "hash-1"); !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("Get err = %v, want ErrCacheUnavailable", err)
	}
	if err := store.Ping(ctx); !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("Ping err = %v, want ErrCacheUnavailable", err)
	}
}
