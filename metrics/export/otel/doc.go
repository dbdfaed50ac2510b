// Package otel publishes roleauth engine metrics as OpenTelemetry
// asynchronous instruments.
//
// Each engine counter becomes an Int64ObservableCounter. The verify latency
// histogram becomes one Int64ObservableGauge per cumulative bucket plus a
// count gauge, since the engine keeps only bucket totals. A single callback
// reads the engine snapshot per collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
