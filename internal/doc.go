// Package internal holds helpers private to roleauth, chiefly the reset
// token codec.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: flow orchestrators behind every Engine operation
//   - limiters: the password reset request throttle
//   - metrics: lock-free counters and the verify latency histogram
//   - rate: Redis fixed-window counter
//   - stores: Redis reset record store
//   - logger: process-wide zerolog setup
//   - config: environment loading for cmd/roleauthd
//   - httpapi: HTTP handlers for cmd/roleauthd
//
// # What this package must NOT do
//
//   - Export types that appear in the public roleauth API.
//   - Be imported by any package outside the roleauth module.
package internal
