package roleauth

import (
	"context"
	"errors"
	"strings"
	"time"

	internalflows "github.com/MrEthical07/roleauth/internal/flows"
	"github.com/MrEthical07/roleauth/jwt"
)

// NormalizeEmail is the single email normalisation used for lookups and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MintSession signs a session token for userID with role. Unassigned roles
// are never embedded in a claim.
func (e *Engine) MintSession(userID string, role Role) (Session, error) {
	if e == nil || e.jwtManager == nil {
		return Session{}, ErrEngineNotReady
	}
	if !role.Assigned() {
		return Session{}, ErrInvalidRole
	}

	token, claims, err := e.jwtManager.Mint(userID, role.String())
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:  token,
		Claims: sessionClaimsFromJWT(claims, role),
	}, nil
}

// VerifySession checks signature, expiry and role of a session token. It is a
// pure function of the token and the clock: no store is consulted. Every
// failure is ErrUnauthorized.
func (e *Engine) VerifySession(token string) (SessionClaims, error) {
	if e == nil || e.jwtManager == nil {
		return SessionClaims{}, ErrEngineNotReady
	}

	start := time.Now()
	claims, err := e.jwtManager.Verify(token)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricVerifyLatency, time.Since(start))
	}
	if err != nil {
		e.metricInc(MetricSessionVerifyFailure)
		return SessionClaims{}, ErrUnauthorized
	}

	role, err := ParseRole(claims.Role)
	if err != nil {
		e.metricInc(MetricSessionVerifyFailure)
		return SessionClaims{}, ErrUnauthorized
	}
	return sessionClaimsFromJWT(claims, role), nil
}

// MintRoleIntent signs a short-lived pre-login role preference. The role is
// validated now and again when the intent is applied.
func (e *Engine) MintRoleIntent(desired string) (string, error) {
	if e == nil || e.jwtManager == nil {
		return "", ErrEngineNotReady
	}
	role, err := ParseRole(desired)
	if err != nil {
		return "", err
	}
	return e.jwtManager.MintIntent(role.String(), e.config.Session.RoleIntentTTL)
}

// VerifyRoleIntent returns the role carried by an intent token, or
// ErrUnauthorized.
func (e *Engine) VerifyRoleIntent(token string) (string, error) {
	if e == nil || e.jwtManager == nil {
		return "", ErrEngineNotReady
	}
	intent, err := e.jwtManager.VerifyIntent(token)
	if err != nil {
		return "", ErrUnauthorized
	}
	return intent, nil
}

// SignIn authenticates email and password and mints a session. A non-empty
// intent is applied through SetRole before minting, so it is subject to the
// same elevation rule as a settings update. A user with no role and no intent
// becomes MEMBER.
func (e *Engine) SignIn(ctx context.Context, email, password, intent string) (Session, error) {
	if !e.ready() {
		return Session{}, ErrEngineNotReady
	}

	user, err := e.flows.Authenticate(ctx, NormalizeEmail(email), password)
	if err != nil {
		return Session{}, err
	}

	e.upgradeCredential(ctx, user.UserID, user.CredentialHash, password)

	desired := intent
	if desired == "" && !Role(user.Role).Assigned() {
		desired = RoleMember.String()
	}
	if desired == "" {
		return e.MintSession(user.UserID, Role(user.Role))
	}

	result, err := e.SetRole(ctx, user.UserID, desired)
	if errors.Is(err, ErrInvalidRole) && Role(user.Role).Assigned() {
		// A stale or tampered intent must not block a valid sign-in.
		e.logger.Warn().Str("user_id", user.UserID).Msg("ignoring invalid role intent at sign-in")
		return e.MintSession(user.UserID, Role(user.Role))
	}
	if errors.Is(err, ErrInvalidRole) {
		result, err = e.SetRole(ctx, user.UserID, RoleMember.String())
	}
	if err != nil {
		return Session{}, err
	}
	return result.Session, nil
}

// upgradeCredential rehashes a legacy or weaker credential after a successful
// sign-in. Failure is logged and does not affect the sign-in.
func (e *Engine) upgradeCredential(ctx context.Context, userID, currentHash, password string) {
	needs, err := e.passwords.NeedsUpgrade(currentHash)
	if err != nil || !needs {
		return
	}
	hash, err := e.passwords.Hash(password)
	if err != nil {
		return
	}

	sctx, cancel := e.withTimeout(ctx)
	defer cancel()
	if err := e.identities.SetCredential(sctx, userID, hash); err != nil {
		e.logger.Warn().Err(err).Str("user_id", userID).Msg("credential rehash failed")
	}
}

func sessionClaimsFromJWT(claims *jwt.SessionClaims, role Role) SessionClaims {
	out := SessionClaims{
		UserID:  claims.Subject,
		Role:    role,
		TokenID: claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out
}

func (e *Engine) signInFlowDeps() internalflows.SignInDeps {
	return internalflows.SignInDeps{
		GetUserByEmail: func(ctx context.Context, email string) (internalflows.SignInUser, error) {
			sctx, cancel := e.withTimeout(ctx)
			defer cancel()
			user, err := e.identities.GetUserByEmail(sctx, email)
			if err != nil {
				return internalflows.SignInUser{}, err
			}
			return internalflows.SignInUser{
				UserID:         user.UserID,
				Email:          user.Email,
				Role:           uint8(user.Role),
				CredentialHash: user.CredentialHash,
			}, nil
		},
		IsUserNotFound: func(err error) bool {
			return errors.Is(err, ErrUserNotFound)
		},
		MapStoreError: e.mapStoreError,
		VerifyPassword: func(hash, pw string) (bool, error) {
			return e.passwords.Verify(pw, hash)
		},
		BurnVerify: func(pw string) {
			_, _ = e.passwords.Verify(pw, e.burnHash)
		},
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		Metrics: internalflows.SignInMetrics{
			LoginSuccess: int(MetricLoginSuccess),
			LoginFailure: int(MetricLoginFailure),
		},
		Events: internalflows.SignInEvents{
			Login: auditEventLogin,
		},
		Errors: internalflows.SignInErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCredentials: ErrInvalidCredentials,
		},
	}
}
