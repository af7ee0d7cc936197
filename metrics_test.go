package authkit

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsIncAndSnapshot(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	m.Inc(MetricIssueSuccess)
	m.Inc(MetricIssueSuccess)
	m.Inc(MetricReplayDetected)
	m.Observe(MetricValidateLatency, 3*time.Millisecond)
	m.Observe(MetricValidateLatency, 40*time.Millisecond)
	m.Observe(MetricValidateLatency, 2*time.Second)

	if got := m.Value(MetricIssueSuccess); got != 2 {
		t.Fatalf("Value = %d, want 2", got)
	}

	s := m.Snapshot()
	if s.Counters[MetricIssueSuccess] != 2 || s.Counters[MetricReplayDetected] != 1 {
		t.Fatalf("counters = %v", s.Counters)
	}

	buckets := s.Histograms[MetricValidateLatency]
	if len(buckets) != histBucketCount {
		t.Fatalf("bucket count = %d", len(buckets))
	}
	if buckets[0] != 1 || buckets[3] != 1 || buckets[7] != 1 {
		t.Fatalf("buckets = %v", buckets)
	}
}

func TestMetricsDisabledNoOp(t *testing.T) {
	m := NewMetrics(MetricsConfig{})

	m.Inc(MetricIssueSuccess)
	m.Observe(MetricValidateLatency, time.Millisecond)

	if m.Enabled() || m.LatencyEnabled() {
		t.Fatal("disabled metrics report enabled")
	}
	if m.Value(MetricIssueSuccess) != 0 {
		t.Fatal("disabled metrics counted")
	}

	s := m.Snapshot()
	if len(s.Counters) != 0 || len(s.Histograms) != 0 {
		t.Fatalf("disabled snapshot not empty: %+v", s)
	}

	// nil receiver is tolerated everywhere
	var nilMetrics *Metrics
	nilMetrics.Inc(MetricIssueSuccess)
	nilMetrics.Observe(MetricValidateLatency, time.Millisecond)
	if nilMetrics.Value(MetricIssueSuccess) != 0 || nilMetrics.Enabled() {
		t.Fatal("nil metrics misbehaved")
	}
}

func TestMetricsObserveOnlyLatencyID(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	m.Observe(MetricIssueSuccess, time.Millisecond)

	if buckets, ok := m.Snapshot().Histograms[MetricIssueSuccess]; ok {
		t.Fatalf("non-latency histogram recorded: %v", buckets)
	}
}

func TestBucketIndexBoundaries(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want int
	}{
		{0, 0},
		{5 * time.Millisecond, 0},
		{6 * time.Millisecond, 1},
		{10 * time.Millisecond, 1},
		{25 * time.Millisecond, 2},
		{50 * time.Millisecond, 3},
		{100 * time.Millisecond, 4},
		{250 * time.Millisecond, 5},
		{500 * time.Millisecond, 6},
		{501 * time.Millisecond, 7},
		{time.Hour, 7},
	}

	for _, tc := range cases {
		if got := bucketIndex(tc.d); got != tc.want {
			t.Fatalf("bucketIndex(%v) = %d, want %d", tc.d, got, tc.want)
		}
	}
}

func TestMetricsConcurrentInc(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const workers = 8
	const perWorker = 1000

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.Inc(MetricRotateSuccess)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricRotateSuccess); got != workers*perWorker {
		t.Fatalf("Value = %d, want %d", got, workers*perWorker)
	}
}
