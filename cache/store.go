package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheUnavailable is an exported constant or variable used by the token lifecycle engine.
var ErrCacheUnavailable = errors.New("cache unavailable")

// Store is the Redis fast path in front of the ledger. It maps a refresh
// token hash to its subject with a TTL matching the token lifetime, and keeps
// a per-subject index set so revoke-all can clear every key in one sweep.
//
// The cache is strictly an accelerator: a miss, a stale entry, or a Redis
// outage never decides whether a token is live. The ledger does.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

func NewStore(client redis.UniversalClient, prefix string) *Store {
	return &Store{
		redis:  client,
		prefix: prefix,
	}
}

func (s *Store) key(tokenHash string) string {
	return s.prefix + ":rt:" + tokenHash
}

func (s *Store) subjectKey(subjectID string) string {
	return s.prefix + ":subj:" + subjectID
}

// Put records hash→subject and adds the hash to the subject's index. Both
// keys expire with the token so abandoned sessions clean themselves up.
func (s *Store) Put(ctx context.Context, tokenHash, subjectID string, ttl time.Duration) error {
	key := s.key(tokenHash)
	subjectKey := s.subjectKey(subjectID)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, subjectID, ttl)
		pipe.SAdd(ctx, subjectKey, tokenHash)
		pipe.Expire(ctx, subjectKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Get returns the cached subject for a token hash. A miss is redis.Nil,
// untouched, so callers can tell it apart from an outage.
func (s *Store) Get(ctx context.Context, tokenHash string) (string, error) {
	subjectID, err := s.redis.Get(ctx, s.key(tokenHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", redis.Nil
		}
		return "", fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return subjectID, nil
}

// Delete drops one cached entry. The subject index member is left to its
// TTL; DeleteAllForSubject tolerates index members whose key is gone.
func (s *Store) Delete(ctx context.Context, tokenHash string) error {
	if err := s.redis.Del(ctx, s.key(tokenHash)).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// DeleteAllForSubject reads the subject's index set (SMembers) and deletes
// every cached token key plus the index itself (TxPipelined DEL). An entry
// cached between the read and the delete survives until its ledger row is
// checked, which is revoked by then.
func (s *Store) DeleteAllForSubject(ctx context.Context, subjectID string) error {
	subjectKey := s.subjectKey(subjectID)

	hashes, err := s.redis.SMembers(ctx, subjectKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, hash := range hashes {
			pipe.Del(ctx, s.key(hash))
		}
		pipe.Del(ctx, subjectKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Ping reports whether Redis answers at all. Used by health checks.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}
