package prometheus

import (
	"net/http/httptest"
	"strings"
	"testing"

	authkit "github.com/noteleaf/authkit"
)

type fakeSource struct {
	snapshot authkit.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() authkit.MetricsSnapshot { return f.snapshot }
func (f *fakeSource) AuditDropped() uint64                     { return f.dropped }

func TestRenderCounters(t *testing.T) {
	source := &fakeSource{
		snapshot: authkit.MetricsSnapshot{
			Counters: map[authkit.MetricID]uint64{
				authkit.MetricIssueSuccess:   7,
				authkit.MetricReplayDetected: 2,
			},
			Histograms: map[authkit.MetricID][]uint64{},
		},
		dropped: 3,
	}

	out := NewPrometheusExporterFromSource(source).Render()

	for _, want := range []string{
		"# TYPE authkit_issue_success_total counter",
		"authkit_issue_success_total 7",
		"authkit_replay_detected_total 2",
		"authkit_rotate_success_total 0",
		"authkit_audit_dropped_total 3",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestRenderHistogramCumulative(t *testing.T) {
	source := &fakeSource{
		snapshot: authkit.MetricsSnapshot{
			Counters: map[authkit.MetricID]uint64{},
			Histograms: map[authkit.MetricID][]uint64{
				authkit.MetricValidateLatency: {5, 1, 0, 0, 0, 0, 0, 2},
			},
		},
	}

	out := NewPrometheusExporterFromSource(source).Render()

	for _, want := range []string{
		"# TYPE authkit_validate_latency_seconds histogram",
		`authkit_validate_latency_seconds_bucket{le="0.005"} 5`,
		`authkit_validate_latency_seconds_bucket{le="0.01"} 6`,
		`authkit_validate_latency_seconds_bucket{le="+Inf"} 8`,
		"authkit_validate_latency_seconds_count 8",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestRenderEmptySource(t *testing.T) {
	source := &fakeSource{
		snapshot: authkit.MetricsSnapshot{
			Counters:   map[authkit.MetricID]uint64{},
			Histograms: map[authkit.MetricID][]uint64{},
		},
	}

	if out := NewPrometheusExporterFromSource(source).Render(); out != "" {
		t.Fatalf("expected empty render, got:\n%s", out)
	}
}

func TestHandlerContentType(t *testing.T) {
	source := &fakeSource{
		snapshot: authkit.MetricsSnapshot{
			Counters:   map[authkit.MetricID]uint64{authkit.MetricRevoke: 1},
			Histograms: map[authkit.MetricID][]uint64{},
		},
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	NewPrometheusExporterFromSource(source).Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Fatalf("content type = %q", got)
	}
	if !strings.Contains(rec.Body.String(), "authkit_revoke_total 1") {
		t.Fatalf("body missing counter:\n%s", rec.Body.String())
	}
}
