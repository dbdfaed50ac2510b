// Package stores provides the Redis-backed password reset record store.
//
// # Design
//
// Each record is binary-encoded with a version byte and stored with a TTL
// equal to its remaining lifetime. Consume runs inside WATCH/MULTI and retries
// on contention; the winning transaction deletes the record, so concurrent
// consumers of the same reset id see exactly one success. Commitments are
// compared in constant time.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for reset records.
// It does not generate tokens, enforce rate limits or write credentials.
//
// # What this package must NOT do
//
//   - Import roleauth or any sibling internal package.
//   - Store or log plaintext secrets.
package stores
