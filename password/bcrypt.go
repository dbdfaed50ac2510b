package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// IsBcrypt reports whether encodedHash is a modular-crypt bcrypt string.
func IsBcrypt(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$2a$") ||
		strings.HasPrefix(encodedHash, "$2b$") ||
		strings.HasPrefix(encodedHash, "$2y$")
}

// VerifyBcrypt checks password against a legacy bcrypt hash. A mismatch is
// (false, nil); a malformed hash is an error.
func VerifyBcrypt(password, encodedHash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

// Verifier checks credentials against argon2id hashes and, when enabled,
// bcrypt hashes imported from an older system. New hashes are always argon2id.
type Verifier struct {
	argon       *Argon2
	allowBcrypt bool
}

func NewVerifier(argon *Argon2, allowBcrypt bool) *Verifier {
	return &Verifier{argon: argon, allowBcrypt: allowBcrypt}
}

// Hash delegates to argon2id.
func (v *Verifier) Hash(password string) (string, error) {
	return v.argon.Hash(password)
}

func (v *Verifier) Verify(password, encodedHash string) (bool, error) {
	if IsBcrypt(encodedHash) {
		if !v.allowBcrypt {
			return false, errors.New("bcrypt hashes not accepted")
		}
		if len(password) > v.argon.config.MaxPasswordBytes {
			return false, ErrPasswordLength
		}
		return VerifyBcrypt(password, encodedHash)
	}
	return v.argon.Verify(password, encodedHash)
}

// NeedsUpgrade is true for every bcrypt hash and for argon2id hashes with
// weaker parameters.
func (v *Verifier) NeedsUpgrade(encodedHash string) (bool, error) {
	if IsBcrypt(encodedHash) {
		return true, nil
	}
	return v.argon.NeedsUpgrade(encodedHash)
}
