package roleauth

import (
	"errors"

	internalaudit "github.com/MrEthical07/roleauth/internal/audit"
	internalflows "github.com/MrEthical07/roleauth/internal/flows"
	"github.com/MrEthical07/roleauth/internal/limiters"
	"github.com/MrEthical07/roleauth/jwt"
	"github.com/MrEthical07/roleauth/mailer"
	"github.com/MrEthical07/roleauth/password"
	"github.com/MrEthical07/roleauth/sessionsync"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// burnPassword is hashed once per engine so unknown-email sign-ins spend the
// same argon2 work as a wrong password.
const burnPassword = "roleauth-burn-password"

// Builder assembles an Engine. Configure it during initialization, call Build
// once, and discard it.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	identities IdentityStore
	resets     ResetTokenStore
	mailer     Mailer
	publisher  sessionsync.Publisher
	auditSink  AuditSink
	logger     *zerolog.Logger

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis enables the Redis reset token store (unless WithResetTokenStore
// is also used) and the reset request throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithIdentityStore(store IdentityStore) *Builder {
	b.identities = store
	return b
}

// WithResetTokenStore overrides the reset store. If store also implements
// AtomicResetRedeemer, redemption claims the token and writes the credential
// in one step.
func (b *Builder) WithResetTokenStore(store ResetTokenStore) *Builder {
	b.resets = store
	return b
}

func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithSessionPublisher sets where signout events go. Defaults to a private
// Hub with no subscribers.
func (b *Builder) WithSessionPublisher(p sessionsync.Publisher) *Builder {
	b.publisher = p
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = &logger
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wiring and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.identities == nil {
		return nil, errors.New("identity store required")
	}
	resets := b.resets
	if resets == nil {
		if b.redis == nil {
			return nil, errors.New("reset token store or redis client required")
		}
		resets = NewRedisResetTokenStore(b.redis)
	}
	if cfg.PasswordReset.EnableThrottle && b.redis == nil {
		return nil, errors.New("PasswordReset EnableThrottle requires redis client")
	}
	if b.mailer == nil && cfg.Security.ProductionMode {
		return nil, errors.New("mailer required in production mode")
	}

	logger := zerolog.Nop()
	if b.logger != nil {
		logger = *b.logger
	}

	engine := &Engine{
		config:     cfg,
		identities: b.identities,
		resets:     resets,
		mailer:     b.mailer,
		publisher:  b.publisher,
		logger:     logger.With().Str("component", "roleauth").Logger(),
	}
	if engine.mailer == nil {
		engine.mailer = mailer.Log{Logger: logger}
	}
	if engine.publisher == nil {
		engine.publisher = sessionsync.NewHub(cfg.Sync.SubscriberBuffer)
	}
	if redeemer, ok := resets.(AtomicResetRedeemer); ok {
		engine.redeemer = redeemer
	}
	if cfg.PasswordReset.EnableThrottle {
		engine.resetLimiter = limiters.NewPasswordResetLimiter(b.redis, limiters.PasswordResetConfig{
			Window:      cfg.PasswordReset.ThrottleWindow,
			MaxRequests: cfg.PasswordReset.ThrottleMaxRequests,
		})
	}

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:     cfg.Audit.Enabled,
		BufferSize:  cfg.Audit.BufferSize,
		DropIfFull:  cfg.Audit.DropIfFull,
		SinkTimeout: cfg.Security.DependencyTimeout,
		Logger:      logger,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	argon, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MinPasswordBytes: cfg.Password.MinLength,
		MaxPasswordBytes: cfg.Password.MaxLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwords = password.NewVerifier(argon, cfg.Password.AcceptLegacyBcrypt)
	engine.burnHash, err = argon.Hash(burnPassword)
	if err != nil {
		return nil, err
	}

	jm, err := jwt.NewManager(jwt.Config{
		SessionTTL:    cfg.JWT.SessionTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		VerifyKeys:    cfg.JWT.VerifyKeys,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	engine.mailQueue = mailer.NewQueue(engine.mailer, mailer.QueueConfig{
		Workers:     cfg.PasswordReset.MailWorkers,
		Buffer:      cfg.PasswordReset.MailQueueSize,
		SendTimeout: cfg.Security.DependencyTimeout,
		Logger:      logger,
		OnFailure:   engine.onQueuedMailFailure,
	})

	engine.flows = internalflows.New(internalflows.Deps{
		SignIn:        engine.signInFlowDeps(),
		Role:          engine.roleFlowDeps(),
		PasswordReset: engine.passwordResetFlowDeps(),
		SignOut:       engine.signOutFlowDeps(),
	})

	if b.mailer == nil {
		engine.logger.Warn().Msg("no mailer configured; reset mail is only logged")
	}

	b.built = true

	return engine, nil
}
