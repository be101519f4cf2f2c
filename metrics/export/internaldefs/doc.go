// Package internaldefs holds the metric names, help strings and latency
// bucket bounds used by every tokenguard exporter.
//
// Both the Prometheus and OTel exporters iterate [CounterDefs] and
// [HistogramDefs], so a rename here changes both outputs at once.
// [BucketCount] tracks the engine's histogram layout.
//
// The package performs no I/O and imports no exporter.
package internaldefs
