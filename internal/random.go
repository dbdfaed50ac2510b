package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
)

// ResetID is the non-secret lookup half of a reset token.
type ResetID [16]byte

const (
	resetSecretSize   = 32
	resetTokenRawSize = len(ResetID{}) + resetSecretSize
)

// ErrMalformedResetToken is returned when a presented token cannot be decoded.
var ErrMalformedResetToken = errors.New("malformed reset token")

func (r ResetID) String() string {
	return base64.RawURLEncoding.EncodeToString(r[:])
}

// ResetSecret is the 256-bit secret half of a reset token. Only its hash is persisted.
type ResetSecret [resetSecretSize]byte

// IssuedResetToken is the output of IssueResetToken. Plaintext goes to the
// recipient, Commitment goes to storage.
type IssuedResetToken struct {
	ID         ResetID
	Plaintext  string
	Commitment [32]byte
}

// IssueResetToken draws a fresh lookup id and secret from crypto/rand and
// derives the storable commitment.
func IssueResetToken() (IssuedResetToken, error) {
	var out IssuedResetToken
	var secret ResetSecret

	if _, err := rand.Read(out.ID[:]); err != nil {
		return IssuedResetToken{}, err
	}
	if _, err := rand.Read(secret[:]); err != nil {
		return IssuedResetToken{}, err
	}

	out.Plaintext = EncodeResetToken(out.ID, secret)
	out.Commitment = CommitResetSecret(secret)
	return out, nil
}

// CommitResetSecret is the one-way commitment stored in place of the secret.
func CommitResetSecret(secret ResetSecret) [32]byte {
	return sha256.Sum256(secret[:])
}

// VerifyResetSecret recomputes the commitment for secret and compares it to
// stored in constant time.
func VerifyResetSecret(secret ResetSecret, stored [32]byte) bool {
	computed := CommitResetSecret(secret)
	return subtle.ConstantTimeCompare(computed[:], stored[:]) == 1
}

func EncodeResetToken(id ResetID, secret ResetSecret) string {
	var raw [resetTokenRawSize]byte
	copy(raw[:len(id)], id[:])
	copy(raw[len(id):], secret[:])
	return base64.RawURLEncoding.EncodeToString(raw[:])
}

func DecodeResetToken(token string) (ResetID, ResetSecret, error) {
	var id ResetID
	var secret ResetSecret

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != resetTokenRawSize {
		return id, secret, ErrMalformedResetToken
	}

	copy(id[:], raw[:len(id)])
	copy(secret[:], raw[len(id):])
	return id, secret, nil
}
