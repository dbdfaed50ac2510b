package roleauth

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLogin                 = "login"
	auditEventRoleChange            = "role_change"
	auditEventRoleDowngradeRejected = "role_downgrade_rejected"
	auditEventPasswordResetRequest  = "password_reset_request"
	auditEventPasswordResetRedeem   = "password_reset_redeem"
	auditEventSignOut               = "signout"
)

// AuditErrorCode is the stable, non-sensitive error label carried by audit events.
type AuditErrorCode string

const (
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrInvalidRole        AuditErrorCode = "invalid_role"
	auditErrRoleConflict       AuditErrorCode = "role_conflict"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrMailFailed         AuditErrorCode = "mail_failed"
	auditErrSessionInvalidate  AuditErrorCode = "session_invalidation_failed"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

// emitAudit matches the flow EmitAudit signature so it can be handed to flows directly.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	role string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Role:      role,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrInvalidRole):
		return auditErrInvalidRole
	case errors.Is(err, ErrRoleConflict):
		return auditErrRoleConflict
	case errors.Is(err, ErrInvalidOrExpiredToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, errResetThrottled):
		return auditErrRateLimited
	case errors.Is(err, errMailDelivery):
		return auditErrMailFailed
	case errors.Is(err, ErrSessionInvalidationFailed):
		return auditErrSessionInvalidate
	case errors.Is(err, ErrDependencyUnavailable),
		errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
