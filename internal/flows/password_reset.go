package flows

import (
	"context"
	"errors"
	"time"
)

type PasswordResetUser struct {
	UserID string
	Email  string
}

// IssuedResetToken is a freshly generated token. Plaintext leaves the process
// only through SendResetMail.
type IssuedResetToken struct {
	ResetID    string
	Plaintext  string
	Commitment [32]byte
}

type PasswordResetStoreRecord struct {
	ResetID    string
	UserID     string
	Commitment [32]byte
	ExpiresAt  time.Time
}

type PasswordResetMetrics struct {
	PasswordResetRequest       int
	PasswordResetThrottled     int
	PasswordResetMailFailure   int
	PasswordResetRedeemSuccess int
	PasswordResetRedeemFailure int
}

type PasswordResetEvents struct {
	PasswordResetRequest string
	PasswordResetRedeem  string
}

type PasswordResetErrors struct {
	EngineNotReady        error
	InvalidOrExpiredToken error
	PasswordPolicy        error
}

type PasswordResetDeps struct {
	TokenTTL time.Duration
	Now      func() time.Time

	// MinDuration pads every reset request to at least this long so the
	// registered and unregistered branches answer alike. Zero disables it.
	MinDuration time.Duration
	Sleep       func(context.Context, time.Duration)

	CheckThrottle  func(context.Context, string) error
	IsThrottled    func(error) bool
	GetUserByEmail func(context.Context, string) (PasswordResetUser, error)
	IsUserNotFound func(error) bool
	IssueToken     func() (IssuedResetToken, error)
	SaveResetToken func(context.Context, PasswordResetStoreRecord) error
	SendResetMail  func(context.Context, PasswordResetUser, string) error
	OnMailFailure  func(context.Context, string, error)

	CheckPasswordPolicy func(string) error
	HashPassword        func(string) (string, error)
	DecodeToken         func(string) (string, [32]byte, error)
	// AtomicRedeem claims the token and writes the credential in one step. When
	// nil, ConsumeResetToken followed by SetCredential is used.
	AtomicRedeem      func(context.Context, string, [32]byte, time.Time, string) (string, error)
	ConsumeResetToken func(context.Context, string, [32]byte, time.Time) (PasswordResetStoreRecord, error)
	SetCredential     func(context.Context, string, string) error
	IsTokenNotFound   func(error) bool
	MapStoreError     func(error) error

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)

	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  PasswordResetErrors
}

// RunRequestPasswordReset always acknowledges with nil unless a store fails.
// An unknown email still generates a token, which is discarded. SendResetMail
// is expected to hand off rather than deliver, and MinDuration covers the
// store write the unknown branch skips.
func RunRequestPasswordReset(ctx context.Context, email string, deps PasswordResetDeps) error {
	normalizePasswordResetDeps(&deps)

	if deps.GetUserByEmail == nil || deps.IssueToken == nil || deps.SaveResetToken == nil || deps.SendResetMail == nil {
		return deps.Errors.EngineNotReady
	}

	if deps.MinDuration > 0 {
		start := time.Now()
		defer func() {
			if wait := deps.MinDuration - time.Since(start); wait > 0 {
				deps.Sleep(ctx, wait)
			}
		}()
	}

	if deps.CheckThrottle != nil && email != "" {
		if err := deps.CheckThrottle(ctx, email); err != nil {
			if deps.IsThrottled(err) {
				deps.MetricInc(deps.Metrics.PasswordResetThrottled)
				deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, "", "", err, func() map[string]string {
					return map[string]string{
						"reason": "throttled",
					}
				})
				return nil
			}
			mapped := deps.MapStoreError(err)
			deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, "", "", mapped, nil)
			return mapped
		}
	}

	var (
		user    PasswordResetUser
		lookErr error
	)
	if email == "" {
		lookErr = errNoEmail
	} else {
		user, lookErr = deps.GetUserByEmail(ctx, email)
	}
	if lookErr != nil {
		if lookErr != errNoEmail && !deps.IsUserNotFound(lookErr) {
			mapped := deps.MapStoreError(lookErr)
			deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, "", "", mapped, nil)
			return mapped
		}
		_, _ = deps.IssueToken()
		deps.MetricInc(deps.Metrics.PasswordResetRequest)
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, true, "", "", nil, func() map[string]string {
			return map[string]string{
				"enumeration_safe": "true",
			}
		})
		return nil
	}

	issued, err := deps.IssueToken()
	if err != nil {
		mapped := deps.MapStoreError(err)
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, user.UserID, "", mapped, func() map[string]string {
			return map[string]string{
				"reason": "token_generation_failed",
			}
		})
		return mapped
	}

	record := PasswordResetStoreRecord{
		ResetID:    issued.ResetID,
		UserID:     user.UserID,
		Commitment: issued.Commitment,
		ExpiresAt:  deps.Now().Add(deps.TokenTTL),
	}
	if err := deps.SaveResetToken(ctx, record); err != nil {
		mapped := deps.MapStoreError(err)
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, user.UserID, "", mapped, nil)
		return mapped
	}

	if err := deps.SendResetMail(ctx, user, issued.Plaintext); err != nil {
		deps.MetricInc(deps.Metrics.PasswordResetMailFailure)
		deps.OnMailFailure(ctx, user.UserID, err)
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, user.UserID, "", err, func() map[string]string {
			return map[string]string{
				"reason":   "mail_failed",
				"reset_id": issued.ResetID,
			}
		})
		return nil
	}

	deps.MetricInc(deps.Metrics.PasswordResetRequest)
	deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, true, user.UserID, "", nil, func() map[string]string {
		return map[string]string{
			"reset_id": issued.ResetID,
		}
	})
	return nil
}

// RunRedeemPasswordReset checks the password policy and hashes the new
// credential before touching the token, so a policy failure never burns it.
// Every token failure collapses into InvalidOrExpiredToken.
func RunRedeemPasswordReset(ctx context.Context, token, newPassword string, deps PasswordResetDeps) error {
	normalizePasswordResetDeps(&deps)

	if deps.HashPassword == nil || deps.DecodeToken == nil {
		return deps.Errors.EngineNotReady
	}
	if deps.AtomicRedeem == nil && (deps.ConsumeResetToken == nil || deps.SetCredential == nil) {
		return deps.Errors.EngineNotReady
	}

	fail := func(userID, reason string, err error) error {
		deps.MetricInc(deps.Metrics.PasswordResetRedeemFailure)
		deps.EmitAudit(ctx, deps.Events.PasswordResetRedeem, false, userID, "", err, func() map[string]string {
			return map[string]string{
				"reason": reason,
			}
		})
		return err
	}

	if err := deps.CheckPasswordPolicy(newPassword); err != nil {
		return fail("", "password_policy", deps.Errors.PasswordPolicy)
	}

	hash, err := deps.HashPassword(newPassword)
	if err != nil {
		return fail("", "hash_failed", deps.Errors.PasswordPolicy)
	}

	resetID, commitment, err := deps.DecodeToken(token)
	if err != nil {
		return fail("", "malformed", deps.Errors.InvalidOrExpiredToken)
	}

	now := deps.Now()
	var userID string
	if deps.AtomicRedeem != nil {
		userID, err = deps.AtomicRedeem(ctx, resetID, commitment, now, hash)
		if err != nil {
			if deps.IsTokenNotFound(err) {
				return fail("", "not_found", deps.Errors.InvalidOrExpiredToken)
			}
			return fail("", "store", deps.MapStoreError(err))
		}
	} else {
		record, err := deps.ConsumeResetToken(ctx, resetID, commitment, now)
		if err != nil {
			if deps.IsTokenNotFound(err) {
				return fail("", "not_found", deps.Errors.InvalidOrExpiredToken)
			}
			return fail("", "store", deps.MapStoreError(err))
		}
		userID = record.UserID
		// Consume-first: a failed write leaves a burned token, never a replayable one.
		if err := deps.SetCredential(ctx, userID, hash); err != nil {
			return fail(userID, "credential_write", deps.MapStoreError(err))
		}
	}

	deps.MetricInc(deps.Metrics.PasswordResetRedeemSuccess)
	deps.EmitAudit(ctx, deps.Events.PasswordResetRedeem, true, userID, "", nil, nil)
	return nil
}

var errNoEmail = errors.New("empty email")

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func normalizePasswordResetDeps(deps *PasswordResetDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.TokenTTL <= 0 {
		deps.TokenTTL = time.Hour
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepContext
	}
	if deps.IsThrottled == nil {
		deps.IsThrottled = func(error) bool { return false }
	}
	if deps.IsUserNotFound == nil {
		deps.IsUserNotFound = func(error) bool { return false }
	}
	if deps.IsTokenNotFound == nil {
		deps.IsTokenNotFound = func(error) bool { return false }
	}
	if deps.OnMailFailure == nil {
		deps.OnMailFailure = func(context.Context, string, error) {}
	}
	if deps.CheckPasswordPolicy == nil {
		deps.CheckPasswordPolicy = func(string) error { return nil }
	}
	if deps.MapStoreError == nil {
		deps.MapStoreError = func(err error) error { return err }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.Errors.EngineNotReady == nil {
		deps.Errors.EngineNotReady = errors.New("engine not initialized")
	}
	if deps.Errors.InvalidOrExpiredToken == nil {
		deps.Errors.InvalidOrExpiredToken = errors.New("invalid or expired token")
	}
	if deps.Errors.PasswordPolicy == nil {
		deps.Errors.PasswordPolicy = errors.New("password policy violation")
	}
}
