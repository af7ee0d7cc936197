package authkit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/noteleaf/authkit/cache"
	"github.com/noteleaf/authkit/internal"
	"github.com/noteleaf/authkit/ledger"
	"github.com/noteleaf/authkit/token"
)

// Engine defines a public type used by authkit APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config   Config
	access   *token.Manager
	refresh  *token.Manager
	ledger   ledger.Store
	cache    *cache.Store
	identity IdentityProvider
	audit    *auditDispatcher
	metrics  *Metrics
	clock    func() time.Time
}

// Close describes the close operation and its observable behavior.
//
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// CookieConfig exposes the configured cookie attributes to the transport
// layer without handing out the whole Config.
func (e *Engine) CookieConfig() CookieConfig {
	if e == nil {
		return CookieConfig{}
	}
	return e.config.Cookies
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subjectID string,
	tokenID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		SubjectID: subjectID,
		TokenID:   tokenID,
		DeviceID:  deviceIDFromContext(ctx),
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}

	e.audit.Emit(ctx, event)
}

// storeCtx bounds a ledger or cache call. Store outages surface after
// StoreTimeout instead of hanging the request.
func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, e.config.StoreTimeout)
}

// Issue mints a fresh access+refresh pair for subjectID and records the
// refresh token in the ledger before returning. The pair is never handed out
// with an unwritten ledger row: a ledger failure aborts the whole issuance.
// The cache write is awaited but non-fatal, the cache can always be rebuilt
// from the ledger.
//
// When opts.PriorRefreshToken is set the prior entry is consumed and the new
// one inserted in a single atomic step; under concurrent rotation of the same
// prior token exactly one caller gets a pair.
func (e *Engine) Issue(ctx context.Context, subjectID string, opts IssueOptions) (TokenPair, error) {
	if e == nil {
		return TokenPair{}, ErrEngineNotReady
	}
	if subjectID == "" {
		e.metricInc(MetricIssueFailure)
		return TokenPair{}, fmt.Errorf("%w: empty subject id", ErrMalformedCredential)
	}

	deviceID := opts.DeviceID
	if deviceID == "" {
		deviceID = deviceIDFromContext(ctx)
	}
	ip := opts.IP
	if ip == "" {
		ip = clientIPFromContext(ctx)
	}

	accessToken, _, err := e.access.Mint(subjectID, deviceID)
	if err != nil {
		e.metricInc(MetricIssueFailure)
		e.emitAudit(ctx, AuditIssue, false, subjectID, "", err, func() map[string]string {
			return map[string]string{"reason": "mint_access_failed"}
		})
		return TokenPair{}, errors.Join(ErrConfig, err)
	}

	refreshToken, refreshClaims, err := e.refresh.Mint(subjectID, deviceID)
	if err != nil {
		e.metricInc(MetricIssueFailure)
		e.emitAudit(ctx, AuditIssue, false, subjectID, "", err, func() map[string]string {
			return map[string]string{"reason": "mint_refresh_failed"}
		})
		return TokenPair{}, errors.Join(ErrConfig, err)
	}

	entry := ledger.Entry{
		TokenHash: internal.HashToken(refreshToken),
		SubjectID: subjectID,
		DeviceID:  deviceID,
		IP:        ip,
		IssuedAt:  refreshClaims.IssuedAt.Time,
		ExpiresAt: refreshClaims.ExpiresAt.Time,
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	if opts.PriorRefreshToken != "" {
		priorHash := internal.HashToken(opts.PriorRefreshToken)
		if _, err := e.ledger.Swap(sctx, priorHash, entry, e.clock()); err != nil {
			switch {
			case errors.Is(err, ledger.ErrEntryRevoked):
				// Lost the consume race to a parallel rotation that got
				// there first. Not replay: replay is judged against the
				// pre-rotation ledger state, before issuance starts.
				e.metricInc(MetricRotateConflict)
				e.emitAudit(ctx, AuditRotateConflict, false, subjectID, refreshClaims.ID, ErrTokenRevoked, nil)
				return TokenPair{}, ErrTokenRevoked
			case errors.Is(err, ledger.ErrEntryNotFound):
				e.metricInc(MetricRotateNotFound)
				e.emitAudit(ctx, AuditRotate, false, subjectID, refreshClaims.ID, ErrTokenNotFound, func() map[string]string {
					return map[string]string{"reason": "prior_vanished"}
				})
				return TokenPair{}, ErrTokenNotFound
			default:
				e.metricInc(MetricPersistenceError)
				e.metricInc(MetricIssueFailure)
				e.emitAudit(ctx, AuditIssue, false, subjectID, refreshClaims.ID, err, func() map[string]string {
					return map[string]string{"reason": "ledger_swap_failed"}
				})
				return TokenPair{}, fmt.Errorf("%w: %v", ErrPersistence, err)
			}
		}
		// the consumed credential must stop validating on the fast path too
		if err := e.cache.Delete(sctx, priorHash); err != nil {
			log.Print("authkit: cache delete of rotated token failed")
		}
	} else {
		if err := e.ledger.Insert(sctx, entry); err != nil {
			e.metricInc(MetricPersistenceError)
			e.metricInc(MetricIssueFailure)
			e.emitAudit(ctx, AuditIssue, false, subjectID, refreshClaims.ID, err, func() map[string]string {
				return map[string]string{"reason": "ledger_insert_failed"}
			})
			return TokenPair{}, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
	}

	if err := e.cache.Put(sctx, entry.TokenHash, subjectID, e.refresh.TTL()); err != nil {
		log.Print("authkit: cache put failed, serving from ledger only")
	}

	e.metricInc(MetricIssueSuccess)
	e.emitAudit(ctx, AuditIssue, true, subjectID, refreshClaims.ID, nil, nil)

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessTTL:    int(e.access.TTL().Seconds()),
		RefreshTTL:   int(e.refresh.TTL().Seconds()),
	}, nil
}

// Rotate redeems a refresh token for a fresh pair. The presented token is
// single-use: its ledger entry is consumed on success, and presenting it
// again is treated as replay and revokes every session of the subject.
//
// All failures collapse to 401 at the transport; the distinctions below feed
// audit events and metrics only.
func (e *Engine) Rotate(ctx context.Context, refreshToken string) (TokenPair, error) {
	if e == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	claims, err := e.refresh.Parse(refreshToken)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			e.metricInc(MetricRotateExpired)
			e.emitAudit(ctx, AuditRotate, false, "", "", ErrTokenExpired, func() map[string]string {
				return map[string]string{"reason": "envelope_expired"}
			})
			return TokenPair{}, ErrTokenExpired
		}
		e.metricInc(MetricRotateFailure)
		e.emitAudit(ctx, AuditRotate, false, "", "", ErrMalformedCredential, func() map[string]string {
			return map[string]string{"reason": "parse_failed"}
		})
		return TokenPair{}, ErrMalformedCredential
	}

	tokenHash := internal.HashToken(refreshToken)
	now := e.clock()

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	// advisory read; only used to detect a stale cache entry below
	cachedSubject, cacheErr := e.cache.Get(sctx, tokenHash)

	entry, err := e.ledger.Find(sctx, tokenHash)
	if errors.Is(err, ledger.ErrEntryNotFound) {
		if cacheErr == nil && cachedSubject != "" {
			// cache says live, ledger says gone: the ledger wins, drop
			// the stale cache entry
			if delErr := e.cache.Delete(sctx, tokenHash); delErr != nil {
				log.Print("authkit: stale cache delete failed")
			}
			e.metricInc(MetricCacheRepair)
			e.emitAudit(ctx, AuditCacheRepair, true, claims.Subject, claims.ID, nil, nil)
		}
		e.metricInc(MetricRotateNotFound)
		e.emitAudit(ctx, AuditRotate, false, claims.Subject, claims.ID, ErrTokenNotFound, func() map[string]string {
			return map[string]string{"reason": "ledger_miss"}
		})
		return TokenPair{}, ErrTokenNotFound
	}
	if err != nil {
		e.metricInc(MetricPersistenceError)
		e.metricInc(MetricRotateFailure)
		e.emitAudit(ctx, AuditRotate, false, claims.Subject, claims.ID, err, func() map[string]string {
			return map[string]string{"reason": "ledger_find_failed"}
		})
		return TokenPair{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if entry.SubjectID != claims.Subject {
		e.metricInc(MetricRotateFailure)
		e.emitAudit(ctx, AuditRotate, false, claims.Subject, claims.ID, ErrMalformedCredential, func() map[string]string {
			return map[string]string{"reason": "subject_mismatch"}
		})
		return TokenPair{}, ErrMalformedCredential
	}

	if entry.Revoked {
		// Single-use violated: this credential was already consumed or
		// revoked, yet someone is presenting it with a valid signature.
		// Assume theft and kill the whole session family.
		e.metricInc(MetricReplayDetected)
		if _, raErr := e.ledger.RevokeAllForSubject(sctx, entry.SubjectID, now); raErr != nil {
			log.Print("authkit: revoke-all after replay failed")
		}
		if caErr := e.cache.DeleteAllForSubject(sctx, entry.SubjectID); caErr != nil {
			log.Print("authkit: cache flush after replay failed")
		}
		e.emitAudit(ctx, AuditReplayDetected, false, entry.SubjectID, claims.ID, ErrReplayDetected, func() map[string]string {
			return map[string]string{"replaced_by": entry.ReplacedBy}
		})
		return TokenPair{}, errors.Join(ErrTokenRevoked, ErrReplayDetected)
	}

	if !entry.ExpiresAt.After(now) {
		e.metricInc(MetricRotateExpired)
		e.emitAudit(ctx, AuditRotate, false, entry.SubjectID, claims.ID, ErrTokenExpired, func() map[string]string {
			return map[string]string{"reason": "ledger_expired"}
		})
		return TokenPair{}, ErrTokenExpired
	}

	identity, err := e.identity.FindSubjectByID(ctx, entry.SubjectID)
	if err != nil || identity.SubjectID == "" {
		// fail closed: burn the entry so the orphaned credential cannot
		// be retried against a flaky identity store
		if revErr := e.ledger.Revoke(sctx, tokenHash, now); revErr != nil {
			log.Print("authkit: ledger revoke after subject lookup failure failed")
		}
		if delErr := e.cache.Delete(sctx, tokenHash); delErr != nil {
			log.Print("authkit: cache delete after subject lookup failure failed")
		}
		e.metricInc(MetricSubjectGone)
		e.emitAudit(ctx, AuditSubjectGone, false, entry.SubjectID, claims.ID, ErrSubjectGone, nil)
		return TokenPair{}, ErrSubjectGone
	}

	pair, err := e.Issue(ctx, identity.SubjectID, IssueOptions{
		DeviceID:          entry.DeviceID,
		IP:                clientIPFromContext(ctx),
		PriorRefreshToken: refreshToken,
	})
	if err != nil {
		// conflict and not-found already counted inside Issue
		if !errors.Is(err, ErrTokenRevoked) && !errors.Is(err, ErrTokenNotFound) {
			e.metricInc(MetricRotateFailure)
		}
		return TokenPair{}, err
	}

	e.metricInc(MetricRotateSuccess)
	e.emitAudit(ctx, AuditRotate, true, entry.SubjectID, claims.ID, nil, nil)

	return pair, nil
}

// Validate verifies an access token locally. No ledger or cache round-trips:
// an access token stays good until its exp even if the session behind it was
// revoked a moment ago. That window is bounded by the access TTL.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	defer func() {
		if e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}
	}()

	claims, err := e.access.Parse(accessToken)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrUnauthorized
	}

	result := &AuthResult{
		SubjectID: claims.Subject,
		TokenID:   claims.ID,
		DeviceID:  claims.DeviceID,
	}
	if claims.IssuedAt != nil {
		result.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}
	return result, nil
}

// Revoke retires a single refresh token. Idempotent: unknown, already
// revoked, or unparseable tokens all return nil. The ledger row is marked
// revoked rather than deleted so a later presentation of the stolen copy
// still registers as replay.
func (e *Engine) Revoke(ctx context.Context, refreshToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if refreshToken == "" {
		return nil
	}

	// no signature check: logout must work even when the token no longer
	// parses, as long as its ledger row is addressable by hash
	tokenHash := internal.HashToken(refreshToken)
	now := e.clock()

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	if err := e.ledger.Revoke(sctx, tokenHash, now); err != nil {
		e.metricInc(MetricPersistenceError)
		e.emitAudit(ctx, AuditRevoke, false, "", "", err, nil)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := e.cache.Delete(sctx, tokenHash); err != nil {
		log.Print("authkit: cache delete on revoke failed")
	}

	e.metricInc(MetricRevoke)
	e.emitAudit(ctx, AuditRevoke, true, "", "", nil, nil)
	return nil
}

// RevokeAllForSubject kills every outstanding refresh token of one subject:
// logout-everywhere, and the response applied when replay is detected.
func (e *Engine) RevokeAllForSubject(ctx context.Context, subjectID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	now := e.clock()
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	hit, err := e.ledger.RevokeAllForSubject(sctx, subjectID, now)
	if err != nil {
		e.metricInc(MetricPersistenceError)
		e.emitAudit(ctx, AuditRevokeAll, false, subjectID, "", err, nil)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := e.cache.DeleteAllForSubject(sctx, subjectID); err != nil {
		log.Print("authkit: cache flush on revoke-all failed")
	}

	e.metricInc(MetricRevokeAll)
	e.emitAudit(ctx, AuditRevokeAll, true, subjectID, "", nil, func() map[string]string {
		return map[string]string{"revoked": strconv.FormatInt(hit, 10)}
	})
	return nil
}

// PurgeExpired removes ledger rows whose tokens can no longer be presented.
// Meant for a periodic operator job, not the request path.
func (e *Engine) PurgeExpired(ctx context.Context) (int64, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	removed, err := e.ledger.DeleteExpired(sctx, e.clock())
	if err != nil {
		e.metricInc(MetricPersistenceError)
		return 0, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	e.metricInc(MetricPurgeExpired)
	e.emitAudit(ctx, AuditPurgeExpired, true, "", "", nil, func() map[string]string {
		return map[string]string{"removed": strconv.FormatInt(removed, 10)}
	})
	return removed, nil
}
