// Package otel provides OpenTelemetry metric exporter bindings for tokenguard
// counters and histograms.
//
// [NewOTelExporter] registers an Int64ObservableCounter for each engine
// counter and an Int64ObservableGauge per histogram bucket. Cache occupancy is
// published as tokenguard_cache_entries. A single callback reads
// [tokenguard.Engine.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
