package sqlite

import (
	"context"
	"crypto/subtle"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrEthical07/roleauth"
	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

//go:embed schema.sql
var schema string

// Store implements roleauth.IdentityStore, roleauth.ResetTokenStore and
// roleauth.AtomicResetRedeemer over one SQLite file.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

var (
	_ roleauth.IdentityStore       = (*Store)(nil)
	_ roleauth.ResetTokenStore     = (*Store)(nil)
	_ roleauth.AtomicResetRedeemer = (*Store)(nil)
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Single connection: claim transactions never interleave.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// DB returns the raw handle.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.sqlDB
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.sqlDB.PingContext(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

// CreateUser inserts a user with no role. email is normalised first.
func (s *Store) CreateUser(ctx context.Context, email, credentialHash string) (roleauth.UserRecord, error) {
	email = roleauth.NormalizeEmail(email)
	if email == "" {
		return roleauth.UserRecord{}, errors.New("email is required")
	}

	now := toMillis(s.now())
	user := roleauth.UserRecord{
		UserID:         uuid.NewString(),
		Email:          email,
		CredentialHash: credentialHash,
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO users (id, email, role, credential_hash, created_at, updated_at) VALUES (?, ?, NULL, ?, ?, ?)`,
		user.UserID, user.Email, user.CredentialHash, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return roleauth.UserRecord{}, roleauth.ErrDuplicateEmail
		}
		return roleauth.UserRecord{}, unavailable(err)
	}
	return user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (roleauth.UserRecord, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, email, role, credential_hash FROM users WHERE email = ?`,
		roleauth.NormalizeEmail(email),
	)
	return scanUser(row)
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (roleauth.UserRecord, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, email, role, credential_hash FROM users WHERE id = ?`,
		userID,
	)
	return scanUser(row)
}

// CompareAndSetRole updates the role only while it still equals from. The
// trigger rejects a downgrade even if this check were bypassed.
func (s *Store) CompareAndSetRole(ctx context.Context, userID string, from, to roleauth.Role) error {
	if !to.Assigned() {
		return roleauth.ErrInvalidRole
	}
	if roleauth.IsDowngrade(from, to) {
		return roleauth.ErrRoleConflict
	}

	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE users SET role = ?, updated_at = ? WHERE id = ? AND role IS ?`,
		to.String(), toMillis(s.now()), userID, roleValue(from),
	)
	if err != nil {
		if isDowngradeAbort(err) {
			return roleauth.ErrRoleConflict
		}
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, userID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return roleauth.ErrUserNotFound
	}
	if err != nil {
		return unavailable(err)
	}
	return roleauth.ErrRoleConflict
}

func (s *Store) SetCredential(ctx context.Context, userID, credentialHash string) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE users SET credential_hash = ?, updated_at = ? WHERE id = ?`,
		credentialHash, toMillis(s.now()), userID,
	)
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return roleauth.ErrUserNotFound
	}
	return nil
}

func (s *Store) SaveResetToken(ctx context.Context, record roleauth.ResetTokenRecord) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO password_reset_tokens (id, identity_id, token_commitment, expires_at, consumed, created_at) VALUES (?, ?, ?, ?, 0, ?)`,
		record.ResetID, record.UserID, record.Commitment[:], toMillis(record.ExpiresAt), toMillis(s.now()),
	)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) ConsumeResetToken(ctx context.Context, resetID string, commitment [32]byte, now time.Time) (roleauth.ResetTokenRecord, error) {
	var record roleauth.ResetTokenRecord
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		record, err = claimResetToken(ctx, tx, resetID, commitment, now)
		return err
	})
	if err != nil {
		return roleauth.ResetTokenRecord{}, err
	}
	return record, nil
}

// RedeemResetToken claims the token and writes the credential in one
// transaction, so a failed write leaves the token usable.
func (s *Store) RedeemResetToken(ctx context.Context, resetID string, commitment [32]byte, now time.Time, credentialHash string) (string, error) {
	var userID string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		record, err := claimResetToken(ctx, tx, resetID, commitment, now)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET credential_hash = ?, updated_at = ? WHERE id = ?`,
			credentialHash, toMillis(now), record.UserID,
		)
		if err != nil {
			return unavailable(err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return unavailable(err)
		} else if n == 0 {
			return roleauth.ErrResetTokenNotFound
		}
		userID = record.UserID
		return nil
	})
	if err != nil {
		return "", err
	}
	return userID, nil
}

// PurgeExpiredResetTokens deletes consumed and expired rows.
func (s *Store) PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM password_reset_tokens WHERE consumed = 1 OR expires_at <= ?`,
		toMillis(now),
	)
	if err != nil {
		return 0, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func claimResetToken(ctx context.Context, tx *sql.Tx, resetID string, commitment [32]byte, now time.Time) (roleauth.ResetTokenRecord, error) {
	var (
		userID    string
		stored    []byte
		expiresAt int64
		consumed  int
	)
	err := tx.QueryRowContext(ctx,
		`SELECT identity_id, token_commitment, expires_at, consumed FROM password_reset_tokens WHERE id = ?`,
		resetID,
	).Scan(&userID, &stored, &expiresAt, &consumed)
	if errors.Is(err, sql.ErrNoRows) {
		return roleauth.ResetTokenRecord{}, roleauth.ErrResetTokenNotFound
	}
	if err != nil {
		return roleauth.ResetTokenRecord{}, unavailable(err)
	}

	if consumed != 0 || toMillis(now) >= expiresAt {
		return roleauth.ResetTokenRecord{}, roleauth.ErrResetTokenNotFound
	}
	if subtle.ConstantTimeCompare(stored, commitment[:]) != 1 {
		return roleauth.ResetTokenRecord{}, roleauth.ErrResetTokenNotFound
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE password_reset_tokens SET consumed = 1 WHERE id = ? AND consumed = 0`,
		resetID,
	)
	if err != nil {
		return roleauth.ResetTokenRecord{}, unavailable(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return roleauth.ResetTokenRecord{}, unavailable(err)
	} else if n != 1 {
		return roleauth.ResetTokenRecord{}, roleauth.ErrResetTokenNotFound
	}

	record := roleauth.ResetTokenRecord{
		ResetID:   resetID,
		UserID:    userID,
		ExpiresAt: fromMillis(expiresAt),
		Consumed:  true,
	}
	copy(record.Commitment[:], stored)
	return record, nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return unavailable(err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (roleauth.UserRecord, error) {
	var (
		user roleauth.UserRecord
		role sql.NullString
	)
	err := row.Scan(&user.UserID, &user.Email, &role, &user.CredentialHash)
	if errors.Is(err, sql.ErrNoRows) {
		return roleauth.UserRecord{}, roleauth.ErrUserNotFound
	}
	if err != nil {
		return roleauth.UserRecord{}, unavailable(err)
	}

	parsed, err := roleauth.ParseStoredRole(role.String)
	if err != nil {
		return roleauth.UserRecord{}, fmt.Errorf("user %s: %w", user.UserID, err)
	}
	user.Role = parsed
	return user, nil
}

func roleValue(r roleauth.Role) any {
	if !r.Assigned() {
		return nil
	}
	return r.String()
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", roleauth.ErrStoreUnavailable, err)
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func isDowngradeAbort(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_TRIGGER {
		return true
	}
	return strings.Contains(err.Error(), "role downgrade forbidden")
}
