// Package sqlite provides SQLite-backed identity and reset token persistence
// on the pure-Go modernc driver.
//
// The schema enforces the role rules on its own: a CHECK constraint limits
// role to MEMBER, ORGANIZER or NULL, and a trigger aborts any update that
// would move an ORGANIZER to anything else. Reset redemption claims the token
// and writes the credential in one transaction.
package sqlite
