package internaldefs

import (
	authkit "github.com/noteleaf/authkit"
)

// CounterDef defines a public type used by authkit APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   authkit.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by authkit APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   authkit.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the token lifecycle engine.
var CounterDefs = []CounterDef{
	{ID: authkit.MetricIssueSuccess, Name: "authkit_issue_success_total", Help: "Successfully issued token pairs."},
	{ID: authkit.MetricIssueFailure, Name: "authkit_issue_failure_total", Help: "Failed issuance attempts."},
	{ID: authkit.MetricRotateSuccess, Name: "authkit_rotate_success_total", Help: "Successful refresh rotations."},
	{ID: authkit.MetricRotateFailure, Name: "authkit_rotate_failure_total", Help: "Failed refresh rotations."},
	{ID: authkit.MetricRotateExpired, Name: "authkit_rotate_expired_total", Help: "Rotations rejected for expired refresh tokens."},
	{ID: authkit.MetricRotateNotFound, Name: "authkit_rotate_not_found_total", Help: "Rotations rejected for tokens absent from the ledger."},
	{ID: authkit.MetricRotateConflict, Name: "authkit_rotate_conflict_total", Help: "Rotations that lost the single-use consume race."},
	{ID: authkit.MetricReplayDetected, Name: "authkit_replay_detected_total", Help: "Detected refresh token replays."},
	{ID: authkit.MetricSubjectGone, Name: "authkit_subject_gone_total", Help: "Rotations rejected because the subject no longer exists."},
	{ID: authkit.MetricCacheRepair, Name: "authkit_cache_repair_total", Help: "Stale cache entries repaired against the ledger."},
	{ID: authkit.MetricPersistenceError, Name: "authkit_persistence_error_total", Help: "Ledger failures surfaced to callers."},
	{ID: authkit.MetricRevoke, Name: "authkit_revoke_total", Help: "Single-token revocations."},
	{ID: authkit.MetricRevokeAll, Name: "authkit_revoke_all_total", Help: "Subject-wide revocations."},
	{ID: authkit.MetricPurgeExpired, Name: "authkit_purge_expired_total", Help: "Expired-entry purge runs."},
}

// HistogramDefs is an exported constant or variable used by the token lifecycle engine.
var HistogramDefs = []HistogramDef{
	{ID: authkit.MetricValidateLatency, Name: "authkit_validate_latency_seconds", Help: "Validate latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the token lifecycle engine.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the token lifecycle engine.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed bucket
// count exporters render.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form the
// Prometheus and OTel exposition formats expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
