// Package metrics provides lock-free counters and a verify latency histogram.
//
// Counters are stored in cache-line-padded uint64 slots and incremented
// atomically. The histogram uses 8 fixed buckets (5ms up to +Inf). Export to
// Prometheus and OpenTelemetry lives in metrics/export/ and reads Snapshot values.
package metrics
