package roleauth

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/roleauth/internal/audit"
	internalmetrics "github.com/MrEthical07/roleauth/internal/metrics"
)

// UserRecord is the identity row an IdentityStore returns.
type UserRecord struct {
	UserID         string
	Email          string
	Role           Role
	CredentialHash string
}

// IdentityStore is the persistence boundary for user identity, role and
// credential. Implementations must make CompareAndSetRole atomic and must
// refuse an ORGANIZER to MEMBER transition on their own, independently of
// the engine.
type IdentityStore interface {
	// GetUserByEmail looks up a user by normalised email. Returns ErrUserNotFound
	// when absent.
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	// GetUserByID returns ErrUserNotFound when absent.
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	// CompareAndSetRole writes to only if the stored role still equals from.
	// Returns ErrRoleConflict when it does not, or when the write is a downgrade.
	CompareAndSetRole(ctx context.Context, userID string, from, to Role) error
	// SetCredential replaces the stored credential hash.
	SetCredential(ctx context.Context, userID, credentialHash string) error
}

// ResetTokenRecord is the persisted half of a reset token. Plaintext is never stored.
type ResetTokenRecord struct {
	ResetID    string
	UserID     string
	Commitment [32]byte
	ExpiresAt  time.Time
	Consumed   bool
}

// ResetTokenStore persists reset token records.
type ResetTokenStore interface {
	SaveResetToken(ctx context.Context, record ResetTokenRecord) error
	// ConsumeResetToken atomically marks an unconsumed, unexpired record whose
	// commitment matches as consumed and returns it. Every other outcome is
	// ErrResetTokenNotFound or a wrapped ErrStoreUnavailable.
	ConsumeResetToken(ctx context.Context, resetID string, commitment [32]byte, now time.Time) (ResetTokenRecord, error)
}

// AtomicResetRedeemer is implemented by stores that can claim a reset token and
// write the new credential in one transaction. The engine prefers it over
// ConsumeResetToken followed by IdentityStore.SetCredential.
type AtomicResetRedeemer interface {
	RedeemResetToken(ctx context.Context, resetID string, commitment [32]byte, now time.Time, credentialHash string) (userID string, err error)
}

// Mailer delivers the reset link.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SessionClaims is the verified content of a session token.
type SessionClaims struct {
	UserID    string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
	TokenID   string
}

// Session is a freshly minted session token with its claims.
type Session struct {
	Token  string
	Claims SessionClaims
}

// RoleChangeResult is returned by SetRole. Session always carries a token
// minted for Effective, whether or not the role changed.
type RoleChangeResult struct {
	Effective Role
	Changed   bool
	// DowngradeRejected is true when an ORGANIZER asked for MEMBER.
	DowngradeRejected bool
	Session           Session
}

// SignOutRequest describes one sign-out. Invalidate clears the session backing
// (cookie, identity provider); Refresh reloads the caller's view. Both run
// under the engine's dependency timeout. Refresh may be nil.
type SignOutRequest struct {
	ClientKey  string
	UserID     string
	Invalidate func(ctx context.Context) error
	Refresh    func(ctx context.Context) error
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// LoggerSink is an [AuditSink] that writes events through zerolog.
type LoggerSink = internalaudit.LoggerSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies a counter in the in-process metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess               = MetricID(internalmetrics.MetricLoginSuccess)
	MetricLoginFailure               = MetricID(internalmetrics.MetricLoginFailure)
	MetricSessionVerifyFailure       = MetricID(internalmetrics.MetricSessionVerifyFailure)
	MetricRoleElevated               = MetricID(internalmetrics.MetricRoleElevated)
	MetricRoleUnchanged              = MetricID(internalmetrics.MetricRoleUnchanged)
	MetricRoleDowngradeRejected      = MetricID(internalmetrics.MetricRoleDowngradeRejected)
	MetricRoleInvalid                = MetricID(internalmetrics.MetricRoleInvalid)
	MetricRoleConflictRetry          = MetricID(internalmetrics.MetricRoleConflictRetry)
	MetricPasswordResetRequest       = MetricID(internalmetrics.MetricPasswordResetRequest)
	MetricPasswordResetThrottled     = MetricID(internalmetrics.MetricPasswordResetThrottled)
	MetricPasswordResetMailFailure   = MetricID(internalmetrics.MetricPasswordResetMailFailure)
	MetricPasswordResetRedeemSuccess = MetricID(internalmetrics.MetricPasswordResetRedeemSuccess)
	MetricPasswordResetRedeemFailure = MetricID(internalmetrics.MetricPasswordResetRedeemFailure)
	MetricSignOut                    = MetricID(internalmetrics.MetricSignOut)
	MetricSignOutFailure             = MetricID(internalmetrics.MetricSignOutFailure)
	MetricDependencyFailure          = MetricID(internalmetrics.MetricDependencyFailure)
	// MetricVerifyLatency is the only histogram.
	MetricVerifyLatency = MetricID(internalmetrics.MetricVerifyLatency)
)

// Metrics holds atomic counters and an optional verify latency histogram.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance. When cfg.Enabled is false all
// operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
