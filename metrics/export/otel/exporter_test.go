package otel

import (
	"context"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrEthical07/roleauth"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot roleauth.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() roleauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := roleauth.MetricsSnapshot{
		Counters:   make(map[roleauth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[roleauth.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] = dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] = dp.Value
				}
			}
		}
	}
	return out
}

func TestExporterCollectsValues(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{
		snapshot: roleauth.MetricsSnapshot{
			Counters: map[roleauth.MetricID]uint64{
				roleauth.MetricLoginSuccess:      3,
				roleauth.MetricRoleConflictRetry: 2,
			},
			Histograms: map[roleauth.MetricID][]uint64{
				roleauth.MetricVerifyLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewFromSource(provider.Meter("roleauth-test"), src)
	if err != nil {
		t.Fatalf("NewFromSource: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}()

	got := collect(t, reader)
	want := map[string]int64{
		"roleauth_login_success_total":                            3,
		"roleauth_role_conflict_retry_total":                      2,
		"roleauth_signout_total":                                  0,
		"roleauth_audit_dropped_total":                            1,
		"roleauth_session_verify_latency_seconds_bucket_le_0_005": 1,
		"roleauth_session_verify_latency_seconds_bucket_le_inf":   8,
		"roleauth_session_verify_latency_seconds_count":           8,
	}
	for name, v := range want {
		if got[name] != v {
			t.Fatalf("%s = %d, want %d", name, got[name], v)
		}
	}
}

func TestExporterRejectsNil(t *testing.T) {
	_, provider := newReader()
	meter := provider.Meter("roleauth-test")

	if _, err := NewFromSource(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := New(meter, nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource for nil engine, got %v", err)
	}
	if _, err := NewFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{
		snapshot: roleauth.MetricsSnapshot{
			Counters:   map[roleauth.MetricID]uint64{roleauth.MetricLoginSuccess: 1},
			Histograms: map[roleauth.MetricID][]uint64{roleauth.MetricVerifyLatency: {1}},
		},
	}

	exp, err := NewFromSource(provider.Meter("roleauth-test"), src)
	if err != nil {
		t.Fatalf("NewFromSource: %v", err)
	}
	defer exp.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[roleauth.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
