// Package prometheus exposes roleauth engine metrics through a
// client_golang [prometheus.Collector].
//
// Counters are named roleauth_*_total; the single histogram is
// roleauth_session_verify_latency_seconds. Values are read from
// [roleauth.Engine.MetricsSnapshot] on every scrape.
//
// # What this package must NOT do
//
//   - Register in the global default registry. Callers pick a registry or use Handler.
//   - Mutate engine state.
package prometheus
