package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/tokenguard"
	"github.com/MrEthical07/tokenguard/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() tokenguard.MetricsSnapshot
	AuditDropped() uint64
	CacheStats() tokenguard.CacheStats
}

// PrometheusExporter renders tokenguard metrics in Prometheus text exposition format.
type PrometheusExporter struct {
	source metricsSource
}

// NewPrometheusExporter creates a Prometheus exporter that reads from the given [tokenguard.Engine].
func NewPrometheusExporter(engine *tokenguard.Engine) *PrometheusExporter {
	return &PrometheusExporter{source: engine}
}

// NewPrometheusExporterFromSource creates a Prometheus exporter from a
// custom metrics source.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render writes the current metrics in Prometheus text exposition format.
// It returns "" while engine metrics are disabled and nothing was dropped.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}
	cache := p.source.CacheStats()

	w := newTextWriter(8192)
	for _, def := range internaldefs.CounterDefs {
		w.scalar("counter", def.Name, def.Help, snapshot.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
		w.histogram(def.Name, def.Help, cumulative)
	}

	w.scalar("counter", "tokenguard_audit_dropped_total", "Dropped audit events due to dispatcher backpressure.", dropped)
	w.scalar("gauge", "tokenguard_cache_entries", "Entries in the in-process validation cache.", uint64(cache.Entries))
	w.scalar("counter", "tokenguard_cache_dropped_writes_total", "Remote cache writes dropped because the write queue was full.", cache.DroppedWrites)
	w.scalar("counter", "tokenguard_cache_remote_errors_total", "Failed calls to the remote cache tier.", cache.RemoteErrors)

	return w.String()
}

// textWriter appends metric families in exposition order.
type textWriter struct {
	strings.Builder
}

func newTextWriter(size int) *textWriter {
	w := &textWriter{}
	w.Grow(size)
	return w
}

func (w *textWriter) family(kind, name, help string) {
	w.WriteString("# HELP " + name + " " + escapeHelp(help) + "\n")
	w.WriteString("# TYPE " + name + " " + kind + "\n")
}

func (w *textWriter) sample(name, labels string, value uint64) {
	w.WriteString(name)
	w.WriteString(labels)
	w.WriteByte(' ')
	w.WriteString(strconv.FormatUint(value, 10))
	w.WriteByte('\n')
}

func (w *textWriter) scalar(kind, name, help string, value uint64) {
	w.family(kind, name, help)
	w.sample(name, "", value)
}

func (w *textWriter) histogram(name, help string, cumulative [internaldefs.BucketCount]uint64) {
	w.family("histogram", name, help)
	for i, le := range internaldefs.HistogramBounds {
		w.sample(name+"_bucket", `{le="`+le+`"}`, cumulative[i])
	}
	w.sample(name+"_count", "", cumulative[internaldefs.BucketCount-1])
	// The engine does not track a latency sum.
	w.sample(name+"_sum", "", 0)
}

func escapeHelp(help string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(help)
}
