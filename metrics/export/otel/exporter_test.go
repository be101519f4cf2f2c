package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/MrEthical07/tokenguard"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot tokenguard.MetricsSnapshot
	dropped  uint64
	cache    tokenguard.CacheStats
}

func (f *fakeSource) MetricsSnapshot() tokenguard.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := tokenguard.MetricsSnapshot{
		Counters:   make(map[tokenguard.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[tokenguard.MetricID][]uint64, len(f.snapshot.Histograms)),
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

func (f *fakeSource) CacheStats() tokenguard.CacheStats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cache
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if len(data.DataPoints) > 0 {
					out[m.Name] = data.DataPoints[0].Value
				}
			case metricdata.Gauge[int64]:
				if len(data.DataPoints) > 0 {
					out[m.Name] = data.DataPoints[0].Value
				}
			}
		}
	}
	return out
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("tokenguard-test")

	src := &fakeSource{
		snapshot: tokenguard.MetricsSnapshot{
			Counters: map[tokenguard.MetricID]uint64{
				tokenguard.MetricValidateSuccess: 3,
			},
			Histograms: map[tokenguard.MetricID][]uint64{
				tokenguard.MetricValidateLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
		cache:   tokenguard.CacheStats{Entries: 4},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	got := collect(t, reader)
	want := map[string]int64{
		"tokenguard_validate_success_total":                   3,
		"tokenguard_validate_latency_seconds_bucket_le_0_001": 1,
		"tokenguard_validate_latency_seconds_count":           8,
		"tokenguard_audit_dropped_total":                      1,
		"tokenguard_cache_entries":                            4,
	}
	for name, v := range want {
		if got[name] != v {
			t.Fatalf("%s: expected %d, got %d (all: %v)", name, v, got[name], got)
		}
	}
}

func TestExporterRejectsNilSource(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("tokenguard-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
	if _, err := NewOTelExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("tokenguard-test")

	src := &fakeSource{
		snapshot: tokenguard.MetricsSnapshot{
			Counters: map[tokenguard.MetricID]uint64{
				tokenguard.MetricValidateSuccess: 1,
			},
			Histograms: map[tokenguard.MetricID][]uint64{
				tokenguard.MetricValidateLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[tokenguard.MetricValidateSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
