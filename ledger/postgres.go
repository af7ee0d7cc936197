package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const insertEntrySQL = `
INSERT INTO refresh_ledger (token_hash, subject_id, device_id, ip, issued_at, expires_at, revoked, revoked_at, replaced_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

const findEntrySQL = `
SELECT token_hash, subject_id, device_id, ip, issued_at, expires_at, revoked, revoked_at, replaced_by
FROM refresh_ledger
WHERE token_hash = $1`

// consumeEntrySQL only matches a live entry; the WHERE clause is the rotation
// lock. Concurrent consumers of the same hash serialize on the row and all
// but the first see zero rows.
const consumeEntrySQL = `
UPDATE refresh_ledger
SET revoked = TRUE, revoked_at = $2, replaced_by = $3
WHERE token_hash = $1 AND NOT revoked AND expires_at > $2
RETURNING subject_id, device_id, ip, issued_at, expires_at`

const revokeEntrySQL = `
UPDATE refresh_ledger
SET revoked = TRUE, revoked_at = $2
WHERE token_hash = $1 AND NOT revoked`

const revokeSubjectSQL = `
UPDATE refresh_ledger
SET revoked = TRUE, revoked_at = $2
WHERE subject_id = $1 AND NOT revoked`

const deleteExpiredSQL = `
DELETE FROM refresh_ledger
WHERE expires_at <= $1`

// PostgresStore is the production Store. One row per issued refresh token,
// keyed by token hash.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Insert(ctx context.Context, entry Entry) error {
	_, err := s.pool.Exec(ctx, insertEntrySQL,
		entry.TokenHash,
		entry.SubjectID,
		entry.DeviceID,
		entry.IP,
		entry.IssuedAt,
		entry.ExpiresAt,
		entry.Revoked,
		entry.RevokedAt,
		entry.ReplacedBy,
	)
	if err != nil {
		return fmt.Errorf("%w: insert: %v", ErrLedgerUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, tokenHash string) (Entry, error) {
	return s.findRow(ctx, s.pool, tokenHash)
}

func (s *PostgresStore) Swap(ctx context.Context, priorHash string, next Entry, now time.Time) (Entry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: begin: %v", ErrLedgerUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	prior := Entry{TokenHash: priorHash, Revoked: true, ReplacedBy: next.TokenHash}
	err = tx.QueryRow(ctx, consumeEntrySQL, priorHash, now, next.TokenHash).Scan(
		&prior.SubjectID,
		&prior.DeviceID,
		&prior.IP,
		&prior.IssuedAt,
		&prior.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost the race, or the token was never there. Classify outside
		// the transaction so the caller can tell conflict from unknown.
		return s.classifyMiss(ctx, priorHash)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("%w: consume: %v", ErrLedgerUnavailable, err)
	}
	revokedAt := now
	prior.RevokedAt = &revokedAt

	if _, err := tx.Exec(ctx, insertEntrySQL,
		next.TokenHash,
		next.SubjectID,
		next.DeviceID,
		next.IP,
		next.IssuedAt,
		next.ExpiresAt,
		next.Revoked,
		next.RevokedAt,
		next.ReplacedBy,
	); err != nil {
		return Entry{}, fmt.Errorf("%w: insert successor: %v", ErrLedgerUnavailable, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Entry{}, fmt.Errorf("%w: commit: %v", ErrLedgerUnavailable, err)
	}
	return prior, nil
}

func (s *PostgresStore) Revoke(ctx context.Context, tokenHash string, now time.Time) error {
	if _, err := s.pool.Exec(ctx, revokeEntrySQL, tokenHash, now); err != nil {
		return fmt.Errorf("%w: revoke: %v", ErrLedgerUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) RevokeAllForSubject(ctx context.Context, subjectID string, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, revokeSubjectSQL, subjectID, now)
	if err != nil {
		return 0, fmt.Errorf("%w: revoke subject: %v", ErrLedgerUnavailable, err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, deleteExpiredSQL, now)
	if err != nil {
		return 0, fmt.Errorf("%w: delete expired: %v", ErrLedgerUnavailable, err)
	}
	return tag.RowsAffected(), nil
}

type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) findRow(ctx context.Context, q pgxQuerier, tokenHash string) (Entry, error) {
	var entry Entry
	err := q.QueryRow(ctx, findEntrySQL, tokenHash).Scan(
		&entry.TokenHash,
		&entry.SubjectID,
		&entry.DeviceID,
		&entry.IP,
		&entry.IssuedAt,
		&entry.ExpiresAt,
		&entry.Revoked,
		&entry.RevokedAt,
		&entry.ReplacedBy,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrEntryNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("%w: find: %v", ErrLedgerUnavailable, err)
	}
	return entry, nil
}

func (s *PostgresStore) classifyMiss(ctx context.Context, tokenHash string) (Entry, error) {
	entry, err := s.findRow(ctx, s.pool, tokenHash)
	if err != nil {
		return Entry{}, err
	}
	if entry.Revoked {
		return Entry{}, ErrEntryRevoked
	}
	return Entry{}, ErrEntryNotFound
}
