package ledger

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and development. All methods
// are safe for concurrent use; Swap holds the mutex across consume+insert so
// it is atomic the same way the Postgres transaction is.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
	}
}

func (s *MemoryStore) Insert(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entry.TokenHash] = entry
	return nil
}

func (s *MemoryStore) Find(_ context.Context, tokenHash string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[tokenHash]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return entry, nil
}

func (s *MemoryStore) Swap(_ context.Context, priorHash string, next Entry, now time.Time) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prior, ok := s.entries[priorHash]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	if prior.Revoked {
		return Entry{}, ErrEntryRevoked
	}
	if !prior.ExpiresAt.After(now) {
		return Entry{}, ErrEntryNotFound
	}

	revokedAt := now
	prior.Revoked = true
	prior.RevokedAt = &revokedAt
	prior.ReplacedBy = next.TokenHash
	s.entries[priorHash] = prior
	s.entries[next.TokenHash] = next

	return prior, nil
}

func (s *MemoryStore) Revoke(_ context.Context, tokenHash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[tokenHash]
	if !ok || entry.Revoked {
		return nil
	}

	revokedAt := now
	entry.Revoked = true
	entry.RevokedAt = &revokedAt
	s.entries[tokenHash] = entry
	return nil
}

func (s *MemoryStore) RevokeAllForSubject(_ context.Context, subjectID string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var hit int64
	for hash, entry := range s.entries {
		if entry.SubjectID != subjectID || entry.Revoked {
			continue
		}
		revokedAt := now
		entry.Revoked = true
		entry.RevokedAt = &revokedAt
		s.entries[hash] = entry
		hit++
	}
	return hit, nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for hash, entry := range s.entries {
		if entry.ExpiresAt.After(now) {
			continue
		}
		delete(s.entries, hash)
		removed++
	}
	return removed, nil
}

// Len reports the number of stored entries, live or not. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
