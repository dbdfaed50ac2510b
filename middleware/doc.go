// Package middleware adapts roleauth.Engine to net/http.
//
// # Guards
//
//   - [RouteGuard] runs on every request. Protected paths without a valid
//     session redirect to the login page with a next parameter.
//   - [RequireSession] answers 401 JSON for API routes.
//
// Both read the session cookie first and fall back to an Authorization
// Bearer header. Verification is delegated to Engine.VerifySession, which
// never touches a store.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Redirect to anything other than a same-site path.
package middleware
