package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	minPassBytes          = 8
	algorithmID           = "argon2id"

	// DefaultMaxPasswordBytes caps input length when Config.MaxPasswordBytes is zero.
	DefaultMaxPasswordBytes = 1024
)

// ErrPasswordLength is returned when a password falls outside the configured byte bounds.
var ErrPasswordLength = errors.New("password length out of bounds")

// Config holds argon2id cost parameters and input length bounds.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// MinPasswordBytes defaults to 8, MaxPasswordBytes to DefaultMaxPasswordBytes.
	MinPasswordBytes int
	MaxPasswordBytes int
}

// Argon2 hashes and verifies argon2id PHC strings. Safe for concurrent use.
type Argon2 struct {
	config Config
}

type parsedPHC struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
	keyLength   uint32
}

// NewArgon2 validates cfg and fills in the length defaults.
func NewArgon2(cfg Config) (*Argon2, error) {
	if cfg.MinPasswordBytes == 0 {
		cfg.MinPasswordBytes = minPassBytes
	}
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return &Argon2{config: cfg}, nil
}

// Hash returns a PHC-encoded argon2id hash of password.
func (a *Argon2) Hash(password string) (string, error) {
	// Password processing uses raw string bytes exactly as provided (no Unicode normalization).
	if err := a.CheckLength(password); err != nil {
		return "", err
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey(
		[]byte(password),
		salt,
		a.config.Time,
		a.config.Memory,
		a.config.Parallelism,
		a.config.KeyLength,
	)

	saltEncoded := base64.StdEncoding.EncodeToString(salt)
	hashEncoded := base64.StdEncoding.EncodeToString(hash)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		a.config.Memory,
		a.config.Time,
		a.config.Parallelism,
		saltEncoded,
		hashEncoded,
	), nil
}

// CheckLength enforces the configured byte bounds.
func (a *Argon2) CheckLength(password string) error {
	if len(password) < a.config.MinPasswordBytes || len(password) > a.config.MaxPasswordBytes {
		return ErrPasswordLength
	}
	return nil
}

// Verify compares password against a PHC-encoded hash in constant time.
// Overlong input is rejected before any key derivation.
func (a *Argon2) Verify(password string, encodedHash string) (bool, error) {
	if len(password) > a.config.MaxPasswordBytes {
		return false, ErrPasswordLength
	}

	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(password),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		parsed.keyLength,
	)

	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
}

// NeedsUpgrade reports whether encodedHash was produced with weaker parameters
// than the current configuration.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	if a.config.Memory > parsed.memory {
		return true, nil
	}
	if a.config.Time > parsed.time {
		return true, nil
	}
	if a.config.Parallelism > parsed.parallelism {
		return true, nil
	}
	if a.config.KeyLength != parsed.keyLength {
		return true, nil
	}

	return false, nil
}

// ErrMalformedHash is returned for stored hashes that are not a well-formed
// argon2id PHC string with acceptable parameters.
var ErrMalformedHash = errors.New("malformed password hash")

func malformed(what string) error {
	return fmt.Errorf("%w: %s", ErrMalformedHash, what)
}

// parsePHC decodes $argon2id$v=19$m=..,t=..,p=..$salt$hash.
func parsePHC(encodedHash string) (*parsedPHC, error) {
	fields := strings.Split(encodedHash, "$")
	if len(fields) != 6 || fields[0] != "" {
		return nil, malformed("field count")
	}
	if fields[1] != algorithmID {
		return nil, malformed("algorithm " + strconv.Quote(fields[1]))
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil {
		return nil, malformed("version")
	}
	if version != argon2.Version {
		return nil, malformed("version " + strconv.Itoa(version))
	}

	out := &parsedPHC{}
	if err := parseCost(fields[3], out); err != nil {
		return nil, err
	}

	var err error
	if out.salt, err = base64.StdEncoding.DecodeString(fields[4]); err != nil || len(out.salt) < int(minSaltLength) {
		return nil, malformed("salt")
	}
	if out.hash, err = base64.StdEncoding.DecodeString(fields[5]); err != nil || len(out.hash) == 0 {
		return nil, malformed("key")
	}
	out.keyLength = uint32(len(out.hash))
	return out, nil
}

// parseCost fills memory, time and parallelism from "m=..,t=..,p=..". Every
// key must appear exactly once.
func parseCost(field string, out *parsedPHC) error {
	seen := map[string]bool{}
	for _, pair := range strings.Split(field, ",") {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || seen[key] {
			return malformed("cost parameters")
		}
		seen[key] = true

		switch key {
		case "m":
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || uint32(v) < minMemoryKB {
				return malformed("memory")
			}
			out.memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || uint32(v) < minTimeCost {
				return malformed("time")
			}
			out.time = uint32(v)
		case "p":
			v, err := strconv.ParseUint(raw, 10, 8)
			if err != nil || uint8(v) < minParallelism {
				return malformed("parallelism")
			}
			out.parallelism = uint8(v)
		default:
			return malformed("cost parameter " + strconv.Quote(key))
		}
	}
	if len(seen) != 3 {
		return malformed("cost parameters")
	}
	return nil
}

func validateConfig(cfg Config) error {
	if cfg.Memory < minMemoryKB {
		return errors.New("password memory must be >= 8192 KB")
	}
	if cfg.Time < minTimeCost {
		return errors.New("password time must be >= 1")
	}
	if cfg.Parallelism < minParallelism {
		return errors.New("password parallelism must be >= 1")
	}
	if cfg.SaltLength < minSaltLength {
		return errors.New("password salt length must be >= 16")
	}
	if cfg.KeyLength < minKeyLength {
		return errors.New("password key length must be >= 16")
	}
	if cfg.MinPasswordBytes < minPassBytes {
		return errors.New("password min length must be >= 8")
	}
	if cfg.MaxPasswordBytes < cfg.MinPasswordBytes {
		return errors.New("password max length must be >= min length")
	}

	return nil
}
