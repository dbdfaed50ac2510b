package roleauth

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config is the full engine configuration. It is copied on Build and treated
// as immutable afterwards.
type Config struct {
	JWT           JWTConfig
	Session       SessionConfig
	Password      PasswordConfig
	PasswordReset PasswordResetConfig
	Routes        RoutesConfig
	Sync          SyncConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
	Security      SecurityConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls session token signing.
type JWTConfig struct {
	SessionTTL    time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls how the session token and the pre-login role intent
// travel in cookies.
type SessionConfig struct {
	CookieName       string
	CookieSecure     bool
	CookieSameSite   http.SameSite
	RoleIntentCookie string
	RoleIntentTTL    time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters and the length policy for new passwords.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
	MaxLength   int
	// AcceptLegacyBcrypt lets SignIn verify bcrypt hashes imported from an older system.
	AcceptLegacyBcrypt bool
}

/*
====================================
PASSWORD RESET CONFIG
====================================
*/

// PasswordResetConfig controls reset token lifetime, the emailed link and the
// optional per-email request throttle.
type PasswordResetConfig struct {
	TokenTTL    time.Duration
	LinkBaseURL string
	MailSubject string

	// ResponseFloor is the minimum time a reset request takes, registered
	// email or not. Mail is sent by MailWorkers in the background and a full
	// queue of MailQueueSize counts as a mail failure.
	ResponseFloor time.Duration
	MailWorkers   int
	MailQueueSize int

	// EnableThrottle caps reset requests per email in a fixed window. Requires
	// a Redis client. Throttled requests are still acknowledged.
	EnableThrottle      bool
	ThrottleWindow      time.Duration
	ThrottleMaxRequests int
}

/*
====================================
ROUTES CONFIG
====================================
*/

// RoutesConfig lists the protected path prefixes and the login page.
type RoutesConfig struct {
	ProtectedPrefixes []string
	LoginPath         string
	NextParam         string
}

/*
====================================
SYNC CONFIG
====================================
*/

// SyncConfig controls cross-tab sign-out fan-out.
type SyncConfig struct {
	SubscriberBuffer int
	// RedisChannel is the pub/sub channel used to relay events between instances.
	RedisChannel string
}

/*
====================================
AUDIT / METRICS / SECURITY
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters and the verify latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// SecurityConfig holds cross-cutting limits.
type SecurityConfig struct {
	ProductionMode bool
	// DependencyTimeout bounds every store, mailer and callback invocation.
	DependencyTimeout time.Duration
}

// DefaultConfig returns a configuration with every default filled in except
// signing keys.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SessionTTL:    30 * 24 * time.Hour,
			SigningMethod: "ed25519",
			Leeway:        30 * time.Second,
		},
		Session: SessionConfig{
			CookieName:       "session",
			CookieSecure:     true,
			CookieSameSite:   http.SameSiteLaxMode,
			RoleIntentCookie: "role_intent",
			RoleIntentTTL:    10 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   8,
			MaxLength:   128,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL:            time.Hour,
			LinkBaseURL:         "http://localhost:8080/reset-password",
			MailSubject:         "Reset your password",
			ResponseFloor:       250 * time.Millisecond,
			MailWorkers:         2,
			MailQueueSize:       64,
			EnableThrottle:      false,
			ThrottleWindow:      15 * time.Minute,
			ThrottleMaxRequests: 5,
		},
		Routes: RoutesConfig{
			ProtectedPrefixes: []string{"/app"},
			LoginPath:         "/login",
			NextParam:         "next",
		},
		Sync: SyncConfig{
			SubscriberBuffer: 8,
			RedisChannel:     "roleauth:sync",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Security: SecurityConfig{
			ProductionMode:    false,
			DependencyTimeout: 5 * time.Second,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	out.Routes.ProtectedPrefixes = append([]string(nil), cfg.Routes.ProtectedPrefixes...)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for internal consistency. Build calls it.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.SessionTTL <= 0 {
		return errors.New("JWT SessionTTL must be > 0")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("ed25519 requires PrivateKey")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 && len(c.JWT.VerifyKeys) == 0 {
		return errors.New("ed25519 requires PublicKey or VerifyKeys")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) < 32 {
		return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Session
	if strings.TrimSpace(c.Session.CookieName) == "" {
		return errors.New("Session CookieName must be set")
	}
	if strings.TrimSpace(c.Session.RoleIntentCookie) == "" {
		return errors.New("Session RoleIntentCookie must be set")
	}
	if c.Session.RoleIntentTTL <= 0 {
		return errors.New("Session RoleIntentTTL must be > 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 8 {
		return errors.New("Password MinLength must be >= 8")
	}
	if c.Password.MaxLength < c.Password.MinLength || c.Password.MaxLength > 1024 {
		return errors.New("Password MaxLength must be between MinLength and 1024")
	}

	// Password Reset
	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset TokenTTL must be > 0")
	}
	if c.PasswordReset.TokenTTL > 24*time.Hour {
		return errors.New("PasswordReset TokenTTL must be <= 24h")
	}
	link, err := url.Parse(c.PasswordReset.LinkBaseURL)
	if err != nil || link.Scheme == "" || link.Host == "" {
		return errors.New("PasswordReset LinkBaseURL must be an absolute URL")
	}
	if c.Security.ProductionMode && link.Scheme != "https" {
		return errors.New("PasswordReset LinkBaseURL must use https in production mode")
	}
	if c.PasswordReset.ResponseFloor < 0 || c.PasswordReset.ResponseFloor > 5*time.Second {
		return errors.New("PasswordReset ResponseFloor must be between 0 and 5s")
	}
	if c.PasswordReset.MailWorkers <= 0 || c.PasswordReset.MailQueueSize <= 0 {
		return errors.New("PasswordReset MailWorkers and MailQueueSize must be > 0")
	}
	if c.PasswordReset.EnableThrottle {
		if c.PasswordReset.ThrottleWindow <= 0 {
			return errors.New("PasswordReset ThrottleWindow must be > 0")
		}
		if c.PasswordReset.ThrottleMaxRequests <= 0 {
			return errors.New("PasswordReset ThrottleMaxRequests must be > 0")
		}
	}

	// Routes
	if !strings.HasPrefix(c.Routes.LoginPath, "/") || strings.HasPrefix(c.Routes.LoginPath, "//") {
		return errors.New("Routes LoginPath must be an absolute path")
	}
	if strings.TrimSpace(c.Routes.NextParam) == "" {
		return errors.New("Routes NextParam must be set")
	}
	for _, prefix := range c.Routes.ProtectedPrefixes {
		if !strings.HasPrefix(prefix, "/") {
			return errors.New("Routes ProtectedPrefixes entries must start with /")
		}
		if prefix == "/" {
			return errors.New("Routes ProtectedPrefixes must not protect /")
		}
	}
	if c.Routes.IsProtected(c.Routes.LoginPath) {
		return errors.New("Routes LoginPath must not be protected")
	}

	// Sync
	if c.Sync.SubscriberBuffer <= 0 {
		return errors.New("Sync SubscriberBuffer must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	// Security
	if c.Security.DependencyTimeout <= 0 {
		return errors.New("Security DependencyTimeout must be > 0")
	}
	if c.Security.ProductionMode && !c.Session.CookieSecure {
		return errors.New("Session CookieSecure must be true in production mode")
	}

	return nil
}
