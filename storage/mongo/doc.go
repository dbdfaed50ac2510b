// Package mongo provides MongoDB-backed identity and reset token persistence.
//
// Role updates are a single UpdateOne whose filter carries the expected role
// and excludes ORGANIZER documents, so a downgrade can never match. Reset
// tokens are claimed with FindOneAndUpdate on {consumed: false, expires_at > now}.
package mongo
