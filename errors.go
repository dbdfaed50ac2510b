package roleauth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRole is returned when a requested role is not one of the two known roles.
	ErrInvalidRole = errors.New("invalid role")
	// ErrUnauthorized is returned when no valid session claim is present.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidOrExpiredToken is the single error for every reset token failure.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	// ErrDependencyUnavailable is returned when a backing store, mailer or cache fails.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	// ErrInvalidCredentials is returned by SignIn for unknown emails and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPasswordPolicy is returned when a new password violates length limits.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrEngineNotReady is returned when an Engine method is called on a partially built engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrUserNotFound is returned by IdentityStore implementations for unknown users.
	ErrUserNotFound = errors.New("user not found")
	// ErrRoleConflict is returned by IdentityStore.CompareAndSetRole when the stored role
	// no longer matches the expected one, or the transition is a downgrade.
	ErrRoleConflict = errors.New("role changed concurrently")
	// ErrResetTokenNotFound is returned by ResetTokenStore implementations when no
	// unconsumed, unexpired record matches.
	ErrResetTokenNotFound = errors.New("reset token not found")
	// ErrStoreUnavailable wraps transport or driver failures from store implementations.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrDuplicateEmail is returned when creating a user whose email is taken.
	ErrDuplicateEmail = errors.New("email already registered")
)

// ErrSessionInvalidationFailed is returned by SignOut when the Invalidate
// callback fails. It matches ErrDependencyUnavailable under errors.Is.
var ErrSessionInvalidationFailed = fmt.Errorf("session invalidation failed: %w", ErrDependencyUnavailable)
