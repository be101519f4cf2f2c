package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/tokenguard"
	"github.com/MrEthical07/tokenguard/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() tokenguard.MetricsSnapshot
	AuditDropped() uint64
	CacheStats() tokenguard.CacheStats
}

type observedCounter struct {
	id         tokenguard.MetricID
	instrument metric.Int64ObservableCounter
}

type observedHistogram struct {
	id      tokenguard.MetricID
	buckets [internaldefs.BucketCount]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// OTelExporter publishes engine counters through observable OTel instruments.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []observedCounter
	histograms   []observedHistogram
	auditDropped metric.Int64ObservableCounter
	cacheEntries metric.Int64ObservableGauge
	cacheDropped metric.Int64ObservableCounter
	cacheErrors  metric.Int64ObservableCounter
}

func NewOTelExporter(meter metric.Meter, engine *tokenguard.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &OTelExporter{
		source:     source,
		counters:   make([]observedCounter, 0, len(internaldefs.CounterDefs)),
		histograms: make([]observedHistogram, 0, len(internaldefs.HistogramDefs)),
	}

	observables := make([]metric.Observable, 0, len(internaldefs.CounterDefs)+len(internaldefs.HistogramDefs)*(internaldefs.BucketCount+1)+4)

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		exporter.counters = append(exporter.counters, observedCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		h := observedHistogram{id: def.ID}
		for i := range internaldefs.HistogramBoundSuffix {
			name := def.Name + "_bucket_le_" + internaldefs.HistogramBoundSuffix[i]
			ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
			if err != nil {
				return nil, fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
			}
			h.buckets[i] = ins
			observables = append(observables, ins)
		}
		countName := def.Name + "_count"
		countIns, err := meter.Int64ObservableGauge(countName, metric.WithDescription("Histogram total sample count."))
		if err != nil {
			return nil, fmt.Errorf("create histogram count gauge %s: %w", countName, err)
		}
		h.count = countIns
		observables = append(observables, countIns)
		exporter.histograms = append(exporter.histograms, h)
	}

	var err error
	if exporter.auditDropped, err = meter.Int64ObservableCounter(
		"tokenguard_audit_dropped_total",
		metric.WithDescription("Dropped audit events due to dispatcher backpressure."),
	); err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	if exporter.cacheEntries, err = meter.Int64ObservableGauge(
		"tokenguard_cache_entries",
		metric.WithDescription("Entries in the in-process validation cache."),
	); err != nil {
		return nil, fmt.Errorf("create cache entries gauge: %w", err)
	}
	if exporter.cacheDropped, err = meter.Int64ObservableCounter(
		"tokenguard_cache_dropped_writes_total",
		metric.WithDescription("Remote cache writes dropped because the write queue was full."),
	); err != nil {
		return nil, fmt.Errorf("create cache dropped counter: %w", err)
	}
	if exporter.cacheErrors, err = meter.Int64ObservableCounter(
		"tokenguard_cache_remote_errors_total",
		metric.WithDescription("Failed calls to the remote cache tier."),
	); err != nil {
		return nil, fmt.Errorf("create cache error counter: %w", err)
	}
	observables = append(observables, exporter.auditDropped, exporter.cacheEntries, exporter.cacheDropped, exporter.cacheErrors)

	registration, err := meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		snapshot := exporter.source.MetricsSnapshot()
		for _, c := range exporter.counters {
			observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
		}
		for _, h := range exporter.histograms {
			nonCumulative := internaldefs.NormalizeBuckets(snapshot.Histograms[h.id])
			cumulative := internaldefs.CumulativeBuckets(nonCumulative)
			for i := range cumulative {
				observer.ObserveInt64(h.buckets[i], int64(cumulative[i]))
			}
			observer.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
		}
		observer.ObserveInt64(exporter.auditDropped, int64(exporter.source.AuditDropped()))

		stats := exporter.source.CacheStats()
		observer.ObserveInt64(exporter.cacheEntries, int64(stats.Entries))
		observer.ObserveInt64(exporter.cacheDropped, int64(stats.DroppedWrites))
		observer.ObserveInt64(exporter.cacheErrors, int64(stats.RemoteErrors))
		return nil
	}, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	exporter.registration = registration
	return exporter, nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
