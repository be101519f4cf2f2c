// Package prometheus renders tokenguard metrics in Prometheus text format.
//
// [NewPrometheusExporter] accepts a [tokenguard.Engine] and exposes an
// [http.Handler]. Counter names are prefixed tokenguard_ and suffixed _total;
// the single histogram is tokenguard_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
