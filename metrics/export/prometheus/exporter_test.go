package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/tokenguard"
	"go.uber.org/zap"
)

type fakeSource struct {
	snapshot tokenguard.MetricsSnapshot
	dropped  uint64
	cache    tokenguard.CacheStats
}

func (f fakeSource) MetricsSnapshot() tokenguard.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                        { return f.dropped }
func (f fakeSource) CacheStats() tokenguard.CacheStats           { return f.cache }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: tokenguard.MetricsSnapshot{
			Counters:   map[tokenguard.MetricID]uint64{},
			Histograms: map[tokenguard.MetricID][]uint64{},
		},
		dropped: 0,
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderDeterministicIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: tokenguard.MetricsSnapshot{
			Counters: map[tokenguard.MetricID]uint64{
				tokenguard.MetricValidateSuccess: 7,
				tokenguard.MetricReplayDetected:  1,
			},
			Histograms: map[tokenguard.MetricID][]uint64{
				tokenguard.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
		cache:   tokenguard.CacheStats{Entries: 5, DroppedWrites: 3},
	})

	out := exp.Render()
	for _, want := range []string{
		"tokenguard_validate_success_total 7",
		"tokenguard_replay_detected_total 1",
		"tokenguard_refresh_failure_total 0",
		"tokenguard_validate_latency_seconds_bucket{le=\"0.001\"} 1",
		"tokenguard_validate_latency_seconds_bucket{le=\"+Inf\"} 36",
		"tokenguard_validate_latency_seconds_count 36",
		"tokenguard_audit_dropped_total 2",
		"# TYPE tokenguard_cache_entries gauge",
		"tokenguard_cache_entries 5",
		"tokenguard_cache_dropped_writes_total 3",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
	if out != exp.Render() {
		t.Fatal("render must be deterministic")
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: tokenguard.MetricsSnapshot{
			Counters:   map[tokenguard.MetricID]uint64{tokenguard.MetricValidateSuccess: 1},
			Histograms: map[tokenguard.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRenderFromEngine(t *testing.T) {
	cfg := tokenguard.DefaultConfig()
	cfg.JWT.Secret = "exporter-test-secret"
	engine, err := tokenguard.New().WithConfig(cfg).WithLogger(zap.NewNop()).WithMetricsEnabled(true).Build()
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	token, err := engine.IssueServiceToken(context.Background(), "svc-1", "search")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Validate(context.Background(), token, tokenguard.TokenService); err != nil {
		t.Fatal(err)
	}

	out := NewPrometheusExporter(engine).Render()
	if !strings.Contains(out, "tokenguard_service_issued_total 1") || !strings.Contains(out, "tokenguard_cache_entries 1") {
		t.Fatalf("unexpected engine output:\n%s", out)
	}
}
