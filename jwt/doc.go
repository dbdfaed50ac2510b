// Package jwt mints and verifies the signed session tokens that carry a user's
// identity and role. Verification is a pure function of the token, the
// configured keys and the clock; nothing is stored server-side.
package jwt
