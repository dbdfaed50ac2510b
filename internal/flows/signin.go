package flows

import (
	"context"
	"errors"
)

// SignInUser is the flow-local identity record. Role is the engine's uint8 code.
type SignInUser struct {
	UserID         string
	Email          string
	Role           uint8
	CredentialHash string
}

type SignInMetrics struct {
	LoginSuccess int
	LoginFailure int
}

type SignInEvents struct {
	Login string
}

type SignInErrors struct {
	EngineNotReady     error
	InvalidCredentials error
}

type SignInDeps struct {
	GetUserByEmail func(context.Context, string) (SignInUser, error)
	IsUserNotFound func(error) bool
	MapStoreError  func(error) error
	// VerifyPassword reports whether password matches hash.
	VerifyPassword func(hash, password string) (bool, error)
	// BurnVerify runs a verification against a fixed dummy hash so unknown
	// emails cost the same as wrong passwords.
	BurnVerify func(password string)

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)

	Metrics SignInMetrics
	Events  SignInEvents
	Errors  SignInErrors
}

// RunAuthenticate checks email and password. Unknown email and wrong password
// return the same InvalidCredentials error.
func RunAuthenticate(ctx context.Context, email, password string, deps SignInDeps) (SignInUser, error) {
	normalizeSignInDeps(&deps)

	if deps.GetUserByEmail == nil || deps.VerifyPassword == nil {
		return SignInUser{}, deps.Errors.EngineNotReady
	}

	reject := func(userID, reason string) (SignInUser, error) {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.Login, false, userID, "", deps.Errors.InvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": reason,
			}
		})
		return SignInUser{}, deps.Errors.InvalidCredentials
	}

	if email == "" || password == "" {
		deps.BurnVerify(password)
		return reject("", "empty_input")
	}

	user, err := deps.GetUserByEmail(ctx, email)
	if err != nil {
		if deps.IsUserNotFound(err) {
			deps.BurnVerify(password)
			return reject("", "unknown_email")
		}
		mapped := deps.MapStoreError(err)
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.Login, false, "", "", mapped, nil)
		return SignInUser{}, mapped
	}

	ok, err := deps.VerifyPassword(user.CredentialHash, password)
	if err != nil || !ok {
		return reject(user.UserID, "wrong_password")
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.Login, true, user.UserID, "", nil, nil)
	return user, nil
}

func normalizeSignInDeps(deps *SignInDeps) {
	if deps.IsUserNotFound == nil {
		deps.IsUserNotFound = func(error) bool { return false }
	}
	if deps.MapStoreError == nil {
		deps.MapStoreError = func(err error) error { return err }
	}
	if deps.BurnVerify == nil {
		deps.BurnVerify = func(string) {}
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
	if deps.Errors.InvalidCredentials == nil {
		deps.Errors.InvalidCredentials = errors.New("invalid credentials")
	}
}
