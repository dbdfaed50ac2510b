package roleauth

import "time"

// SecurityReport summarises the security-relevant settings an engine was
// built with. It carries no key material.
type SecurityReport struct {
	ProductionMode      bool
	SigningAlgorithm    string
	SessionTTL          time.Duration
	RoleIntentTTL       time.Duration
	Argon2              PasswordConfigReport
	LegacyBcryptAllowed bool
	ResetTokenTTL       time.Duration
	ResetThrottleActive bool
	AtomicResetRedeem   bool
	SecureCookies       bool
	AuditEnabled        bool
	ProtectedPrefixes   []string
}

type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
	MaxLength   int
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		ProductionMode:   e.config.Security.ProductionMode,
		SigningAlgorithm: e.config.JWT.SigningMethod,
		SessionTTL:       e.config.JWT.SessionTTL,
		RoleIntentTTL:    e.config.Session.RoleIntentTTL,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
			MinLength:   e.config.Password.MinLength,
			MaxLength:   e.config.Password.MaxLength,
		},
		LegacyBcryptAllowed: e.config.Password.AcceptLegacyBcrypt,
		ResetTokenTTL:       e.config.PasswordReset.TokenTTL,
		ResetThrottleActive: e.resetLimiter != nil,
		AtomicResetRedeem:   e.redeemer != nil,
		SecureCookies:       e.config.Session.CookieSecure,
		AuditEnabled:        e.audit != nil,
		ProtectedPrefixes:   append([]string(nil), e.config.Routes.ProtectedPrefixes...),
	}
}
