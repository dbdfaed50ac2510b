// Package rate provides the Redis fixed-window counter that the domain
// limiters in internal/limiters are built on.
//
// # Window semantics
//
// INCR + conditional EXPIRE on first hit. The caller owns the key namespace.
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Be imported outside the roleauth module.
package rate
