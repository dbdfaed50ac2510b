// Package roleauth is the identity, session and role core of an event
// platform with two global roles, MEMBER and ORGANIZER.
//
// An [Engine] is assembled once through [Builder] and is safe for concurrent
// use afterwards. It covers:
//
//   - sign-in with email and password, minting a signed session token whose
//     role claim is verified without a store round-trip ([Engine.VerifySession])
//   - role elevation with a compare-and-set loop; an ORGANIZER is never
//     demoted ([Engine.SetRole])
//   - single-use, time-limited password reset tokens whose plaintext is only
//     ever mailed ([Engine.RequestPasswordReset], [Engine.RedeemPasswordReset])
//   - sign-out that broadcasts to every tab sharing a client key ([Engine.SignOut])
//
// # What this package must NOT do
//
//   - Persist plaintext reset tokens or passwords.
//   - Accept a role value that did not pass through [ParseRole].
//   - Import any sub-package that re-imports roleauth.
//
// Persistence is supplied through [IdentityStore] and [ResetTokenStore]; see
// storage/sqlite and storage/mongo. HTTP glue lives in middleware and
// internal/httpapi.
package roleauth
