// Package password implements credential hashing with Argon2id and
// verification of legacy bcrypt hashes.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Verifier] dispatches on the hash prefix. [Verifier.NeedsUpgrade] reports
// true for every bcrypt hash and for argon2id hashes with weaker parameters,
// so the caller can rehash after the next successful sign-in.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other roleauth package.
//   - Log plaintext passwords.
package password
