// Package limiters provides domain-specific rate limiters built on top of the
// internal/rate primitives.
//
// # Limiters
//
//   - [PasswordResetLimiter] caps reset requests per email in a fixed window.
//
// All limiters are nil-safe: calling any method on a nil receiver returns nil.
//
// # What this package must NOT do
//
//   - Import roleauth or any sibling internal package except internal/rate.
//   - Make policy decisions beyond counting. Flow functions decide consequences.
package limiters
