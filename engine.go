package roleauth

import (
	"context"
	"errors"
	"time"

	internalaudit "github.com/MrEthical07/roleauth/internal/audit"
	internalflows "github.com/MrEthical07/roleauth/internal/flows"
	"github.com/MrEthical07/roleauth/internal/limiters"
	"github.com/MrEthical07/roleauth/jwt"
	"github.com/MrEthical07/roleauth/mailer"
	"github.com/MrEthical07/roleauth/password"
	"github.com/MrEthical07/roleauth/sessionsync"
	"github.com/rs/zerolog"
)

// Engine is the identity, session and role core. All methods are safe for
// concurrent use once Build returns.
type Engine struct {
	config       Config
	identities   IdentityStore
	resets       ResetTokenStore
	redeemer     AtomicResetRedeemer
	resetLimiter *limiters.PasswordResetLimiter
	mailer       Mailer
	mailQueue    *mailer.Queue
	publisher    sessionsync.Publisher
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	jwtManager   *jwt.Manager
	passwords    *password.Verifier
	burnHash     string
	logger       zerolog.Logger
	flows        internalflows.Service
}

// Close waits for queued reset mail, then flushes the audit dispatcher.
// Subsequent audit events are dropped.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.mailQueue != nil {
		e.mailQueue.Close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := e.config.Security.DependencyTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// mapStoreError turns a store failure into a public sentinel. The underlying
// error is logged here and never returned.
func (e *Engine) mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUserNotFound):
		// The session subject no longer exists.
		return ErrUnauthorized
	case errors.Is(err, ErrInvalidRole):
		e.logger.Error().Err(err).Msg("store returned a role outside the closed set")
		return ErrDependencyUnavailable
	default:
		e.metricInc(MetricDependencyFailure)
		e.logger.Error().Err(err).Msg("dependency call failed")
		return ErrDependencyUnavailable
	}
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized() && e.jwtManager != nil
}
