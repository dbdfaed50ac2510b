// Package config loads roleauthd settings from the environment.
package config

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/MrEthical07/roleauth"
	"github.com/MrEthical07/roleauth/mailer"
)

// Store backends accepted in STORE_BACKEND.
const (
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
)

// Env is the full process configuration.
type Env struct {
	Addr      string `env:"LISTEN_ADDR, default=:8080"`
	Env       string `env:"ENV, default=development"`
	LogLevel  string `env:"LOG_LEVEL, default=info"`
	LogPretty bool   `env:"LOG_PRETTY, default=false"`

	Store  StoreConfig
	Redis  RedisConfig
	JWT    JWTConfig
	Cookie CookieConfig
	Reset  ResetConfig
	SMTP   SMTPConfig

	ProtectedPrefixes []string      `env:"PROTECTED_PREFIXES, default=/app"`
	LoginPath         string        `env:"LOGIN_PATH, default=/login"`
	AuditEnabled      bool          `env:"AUDIT_ENABLED, default=true"`
	DependencyTimeout time.Duration `env:"DEPENDENCY_TIMEOUT, default=5s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT, default=15s"`
}

type StoreConfig struct {
	Backend       string        `env:"STORE_BACKEND, default=sqlite"`
	SQLitePath    string        `env:"SQLITE_PATH, default=roleauth.db"`
	MongoURI      string        `env:"MONGO_URI, default=mongodb://localhost:27017"`
	MongoDatabase string        `env:"MONGO_DB, default=roleauth"`
	PurgeInterval time.Duration `env:"RESET_PURGE_INTERVAL, default=1h"`
}

// RedisConfig is optional: an empty Addr disables the Redis reset store,
// the reset throttle and the cross-instance sync relay.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB, default=0"`
	Channel  string `env:"REDIS_SYNC_CHANNEL, default=roleauth:sync"`
}

type JWTConfig struct {
	SigningMethod string        `env:"JWT_SIGNING_METHOD, default=ed25519"`
	Ed25519Seed   string        `env:"JWT_ED25519_SEED"`
	HS256Secret   string        `env:"JWT_HS256_SECRET"`
	SessionTTL    time.Duration `env:"SESSION_TTL, default=720h"`
	Issuer        string        `env:"JWT_ISSUER, default=roleauth"`
	Audience      string        `env:"JWT_AUDIENCE"`
	KeyID         string        `env:"JWT_KEY_ID"`
}

type CookieConfig struct {
	Secure   bool   `env:"COOKIE_SECURE, default=true"`
	SameSite string `env:"COOKIE_SAMESITE, default=lax"`
}

type ResetConfig struct {
	TokenTTL       time.Duration `env:"RESET_TOKEN_TTL, default=1h"`
	LinkBaseURL    string        `env:"RESET_LINK_BASE_URL, default=http://localhost:8080/reset-password"`
	Throttle       bool          `env:"RESET_THROTTLE, default=false"`
	ThrottleWindow time.Duration `env:"RESET_THROTTLE_WINDOW, default=15m"`
	ThrottleMax    int           `env:"RESET_THROTTLE_MAX, default=5"`
	ResponseFloor  time.Duration `env:"RESET_RESPONSE_FLOOR, default=250ms"`
	MailWorkers    int           `env:"RESET_MAIL_WORKERS, default=2"`
	MailQueueSize  int           `env:"RESET_MAIL_QUEUE_SIZE, default=64"`
	AcceptBcrypt   bool          `env:"ACCEPT_LEGACY_BCRYPT, default=false"`
}

type SMTPConfig struct {
	Host       string `env:"SMTP_HOST"`
	Port       int    `env:"SMTP_PORT, default=587"`
	Username   string `env:"SMTP_USERNAME"`
	Password   string `env:"SMTP_PASSWORD"`
	From       string `env:"SMTP_FROM"`
	RequireTLS bool   `env:"SMTP_REQUIRE_TLS, default=true"`
}

// ErrMissingSigningKey is returned in production when no signing key is set.
var ErrMissingSigningKey = errors.New("config: signing key required in production")

// Load reads the process environment.
func Load(ctx context.Context) (*Env, error) {
	return load(ctx, envconfig.OsLookuper())
}

// LoadFrom reads from a fixed map. Tests only.
func LoadFrom(ctx context.Context, vars map[string]string) (*Env, error) {
	return load(ctx, envconfig.MapLookuper(vars))
}

func load(ctx context.Context, l envconfig.Lookuper) (*Env, error) {
	var env Env
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &env, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	env.Store.Backend = strings.ToLower(strings.TrimSpace(env.Store.Backend))
	switch env.Store.Backend {
	case BackendSQLite, BackendMongo:
	default:
		return nil, fmt.Errorf("config: unknown STORE_BACKEND %q", env.Store.Backend)
	}
	return &env, nil
}

// Production reports whether ENV selects production hardening.
func (e *Env) Production() bool {
	return strings.EqualFold(e.Env, "production") || strings.EqualFold(e.Env, "prod")
}

// Ephemeral reports whether EngineConfig had to generate a throwaway signing
// key. Sessions do not survive a restart in that case.
func (e *Env) Ephemeral() bool {
	switch e.JWT.SigningMethod {
	case "hs256":
		return e.JWT.HS256Secret == ""
	default:
		return e.JWT.Ed25519Seed == ""
	}
}

// EngineConfig converts the environment into an engine configuration. It does
// not validate; Build does.
func (e *Env) EngineConfig() (roleauth.Config, error) {
	cfg := roleauth.DefaultConfig()

	cfg.JWT.SigningMethod = strings.ToLower(e.JWT.SigningMethod)
	cfg.JWT.SessionTTL = e.JWT.SessionTTL
	cfg.JWT.Issuer = e.JWT.Issuer
	cfg.JWT.Audience = e.JWT.Audience
	cfg.JWT.KeyID = e.JWT.KeyID
	if err := e.signingKeys(&cfg.JWT); err != nil {
		return roleauth.Config{}, err
	}

	cfg.Session.CookieSecure = e.Cookie.Secure
	cfg.Session.CookieSameSite = parseSameSite(e.Cookie.SameSite)

	cfg.Password.AcceptLegacyBcrypt = e.Reset.AcceptBcrypt

	cfg.PasswordReset.TokenTTL = e.Reset.TokenTTL
	cfg.PasswordReset.LinkBaseURL = e.Reset.LinkBaseURL
	cfg.PasswordReset.EnableThrottle = e.Reset.Throttle
	cfg.PasswordReset.ThrottleWindow = e.Reset.ThrottleWindow
	cfg.PasswordReset.ThrottleMaxRequests = e.Reset.ThrottleMax
	cfg.PasswordReset.ResponseFloor = e.Reset.ResponseFloor
	cfg.PasswordReset.MailWorkers = e.Reset.MailWorkers
	cfg.PasswordReset.MailQueueSize = e.Reset.MailQueueSize

	cfg.Routes.ProtectedPrefixes = append([]string(nil), e.ProtectedPrefixes...)
	cfg.Routes.LoginPath = e.LoginPath

	cfg.Sync.RedisChannel = e.Redis.Channel

	cfg.Audit.Enabled = e.AuditEnabled
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	cfg.Security.ProductionMode = e.Production()
	cfg.Security.DependencyTimeout = e.DependencyTimeout
	return cfg, nil
}

// MailerConfig returns the SMTP settings, or false when SMTP_HOST is unset.
func (e *Env) MailerConfig() (mailer.SMTPConfig, bool) {
	if e.SMTP.Host == "" {
		return mailer.SMTPConfig{}, false
	}
	return mailer.SMTPConfig{
		Host:       e.SMTP.Host,
		Port:       e.SMTP.Port,
		Username:   e.SMTP.Username,
		Password:   e.SMTP.Password,
		From:       e.SMTP.From,
		RequireTLS: e.SMTP.RequireTLS,
	}, true
}

func (e *Env) signingKeys(jc *roleauth.JWTConfig) error {
	switch jc.SigningMethod {
	case "hs256":
		if e.JWT.HS256Secret == "" {
			if e.Production() {
				return ErrMissingSigningKey
			}
			secret := make([]byte, 32)
			if _, err := rand.Read(secret); err != nil {
				return fmt.Errorf("config: generating secret: %w", err)
			}
			jc.PrivateKey = secret
			return nil
		}
		jc.PrivateKey = []byte(e.JWT.HS256Secret)
		return nil
	default:
		var priv ed25519.PrivateKey
		if e.JWT.Ed25519Seed == "" {
			if e.Production() {
				return ErrMissingSigningKey
			}
			_, generated, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return fmt.Errorf("config: generating key: %w", err)
			}
			priv = generated
		} else {
			seed, err := base64.StdEncoding.DecodeString(e.JWT.Ed25519Seed)
			if err != nil || len(seed) != ed25519.SeedSize {
				return errors.New("config: JWT_ED25519_SEED must be base64 of 32 bytes")
			}
			priv = ed25519.NewKeyFromSeed(seed)
		}
		jc.PrivateKey = priv
		jc.PublicKey = priv.Public().(ed25519.PublicKey)
		return nil
	}
}

func parseSameSite(s string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
