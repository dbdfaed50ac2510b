package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingIntent is returned when a token carries no intent claim.
var ErrMissingIntent = errors.New("token intent claim missing")

// IntentClaims is a pre-login role preference. It has no subject and no role
// claim, so Verify never accepts it as a session, and a session token has no
// intent claim, so VerifyIntent never accepts a session.
type IntentClaims struct {
	Intent string `json:"intent"`
	jwt.RegisteredClaims
}

// MintIntent signs intent with the session key for ttl.
func (m *Manager) MintIntent(intent string, ttl time.Duration) (string, error) {
	if intent == "" {
		return "", ErrMissingIntent
	}
	if ttl <= 0 {
		return "", errors.New("intent ttl must be > 0")
	}

	now := m.config.Now()
	claims := &IntentClaims{
		Intent: intent,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	signed, err := m.sign(claims)
	if err != nil {
		return "", fmt.Errorf("signing intent token: %w", err)
	}
	return signed, nil
}

// VerifyIntent returns the intent carried by a token from MintIntent.
func (m *Manager) VerifyIntent(tokenStr string) (string, error) {
	token, err := m.parser().ParseWithClaims(tokenStr, &IntentClaims{}, m.keyFunc)
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*IntentClaims)
	if !ok || !token.Valid {
		return "", jwt.ErrTokenInvalidClaims
	}
	if claims.Intent == "" {
		return "", ErrMissingIntent
	}
	if err := m.checkIssuedAt(claims.IssuedAt); err != nil {
		return "", err
	}
	return claims.Intent, nil
}
