package roleauth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"time"

	"github.com/MrEthical07/roleauth/internal"
	internalflows "github.com/MrEthical07/roleauth/internal/flows"
	"github.com/MrEthical07/roleauth/internal/limiters"
	"github.com/MrEthical07/roleauth/mailer"
)

var (
	errResetThrottled = errors.New("password reset throttled")
	errMailDelivery   = errors.New("reset mail delivery failed")
)

var resetMailTemplate = template.Must(template.New("reset").Parse(`<p>We received a request to reset the password for your account.</p>
<p><a href="{{.Link}}">Choose a new password</a></p>
<p>This link expires in {{.Minutes}} minutes and can be used once. If you did not ask for a reset you can ignore this email.</p>
`))

// RequestPasswordReset starts a reset for email. It returns nil whether or
// not the email is registered, whether the request was throttled and whether
// the mail went out; only a failing store surfaces, as ErrDependencyUnavailable.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flows.RequestPasswordReset(ctx, NormalizeEmail(email))
}

// RedeemPasswordReset sets newPassword for the token's owner and burns the
// token. Every token problem yields ErrInvalidOrExpiredToken; a password that
// fails policy yields ErrPasswordPolicy and leaves the token usable.
func (e *Engine) RedeemPasswordReset(ctx context.Context, token, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flows.RedeemPasswordReset(ctx, token, newPassword)
}

// ResetLink builds the link mailed to the user.
func (e *Engine) ResetLink(plaintext string) (string, error) {
	u, err := url.Parse(e.config.PasswordReset.LinkBaseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", plaintext)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (e *Engine) renderResetMail(plaintext string) (string, error) {
	link, err := e.ResetLink(plaintext)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	err = resetMailTemplate.Execute(&buf, struct {
		Link    string
		Minutes int
	}{
		Link:    link,
		Minutes: int(e.config.PasswordReset.TokenTTL / time.Minute),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (e *Engine) checkPasswordPolicy(pw string) error {
	if len(pw) < e.config.Password.MinLength || len(pw) > e.config.Password.MaxLength {
		return ErrPasswordPolicy
	}
	return nil
}

func (e *Engine) onResetMailFailure(_ context.Context, userID string, err error) {
	ev := e.logger.Warn()
	if e.config.Security.ProductionMode {
		ev = e.logger.Error()
	}
	ev.Err(err).Str("user_id", userID).Msg("password reset mail not delivered")
}

// onQueuedMailFailure runs on a mail worker once delivery of a reset mail
// has failed after the request was already acknowledged.
func (e *Engine) onQueuedMailFailure(msg mailer.Message, err error) {
	e.metricInc(MetricPasswordResetMailFailure)
	e.onResetMailFailure(context.Background(), msg.Ref, err)
	e.emitAudit(context.Background(), auditEventPasswordResetRequest, false, msg.Ref, "", fmt.Errorf("%w: %v", errMailDelivery, err), func() map[string]string {
		return map[string]string{
			"reason": "mail_failed",
		}
	})
}

func (e *Engine) passwordResetFlowDeps() internalflows.PasswordResetDeps {
	deps := internalflows.PasswordResetDeps{
		TokenTTL:    e.config.PasswordReset.TokenTTL,
		Now:         time.Now,
		MinDuration: e.config.PasswordReset.ResponseFloor,
		IsThrottled: func(err error) bool {
			return errors.Is(err, errResetThrottled)
		},
		GetUserByEmail: func(ctx context.Context, email string) (internalflows.PasswordResetUser, error) {
			sctx, cancel := e.withTimeout(ctx)
			defer cancel()
			user, err := e.identities.GetUserByEmail(sctx, email)
			if err != nil {
				return internalflows.PasswordResetUser{}, err
			}
			return internalflows.PasswordResetUser{UserID: user.UserID, Email: user.Email}, nil
		},
		IsUserNotFound: func(err error) bool {
			return errors.Is(err, ErrUserNotFound)
		},
		IssueToken: func() (internalflows.IssuedResetToken, error) {
			issued, err := internal.IssueResetToken()
			if err != nil {
				return internalflows.IssuedResetToken{}, err
			}
			return internalflows.IssuedResetToken{
				ResetID:    issued.ID.String(),
				Plaintext:  issued.Plaintext,
				Commitment: issued.Commitment,
			}, nil
		},
		SaveResetToken: func(ctx context.Context, record internalflows.PasswordResetStoreRecord) error {
			sctx, cancel := e.withTimeout(ctx)
			defer cancel()
			return e.resets.SaveResetToken(sctx, ResetTokenRecord{
				ResetID:    record.ResetID,
				UserID:     record.UserID,
				Commitment: record.Commitment,
				ExpiresAt:  record.ExpiresAt,
			})
		},
		SendResetMail: func(_ context.Context, user internalflows.PasswordResetUser, plaintext string) error {
			body, err := e.renderResetMail(plaintext)
			if err != nil {
				return fmt.Errorf("%w: %v", errMailDelivery, err)
			}
			err = e.mailQueue.Enqueue(mailer.Message{
				To:      user.Email,
				Subject: e.config.PasswordReset.MailSubject,
				Body:    body,
				Ref:     user.UserID,
			})
			if err != nil {
				return fmt.Errorf("%w: %v", errMailDelivery, err)
			}
			return nil
		},
		OnMailFailure:       e.onResetMailFailure,
		CheckPasswordPolicy: e.checkPasswordPolicy,
		HashPassword:        e.passwords.Hash,
		DecodeToken: func(token string) (string, [32]byte, error) {
			id, secret, err := internal.DecodeResetToken(token)
			if err != nil {
				return "", [32]byte{}, err
			}
			return id.String(), internal.CommitResetSecret(secret), nil
		},
		ConsumeResetToken: func(ctx context.Context, resetID string, commitment [32]byte, now time.Time) (internalflows.PasswordResetStoreRecord, error) {
			sctx, cancel := e.withTimeout(ctx)
			defer cancel()
			record, err := e.resets.ConsumeResetToken(sctx, resetID, commitment, now)
			if err != nil {
				return internalflows.PasswordResetStoreRecord{}, err
			}
			return internalflows.PasswordResetStoreRecord{
				ResetID:    record.ResetID,
				UserID:     record.UserID,
				Commitment: record.Commitment,
				ExpiresAt:  record.ExpiresAt,
			}, nil
		},
		SetCredential: func(ctx context.Context, userID, hash string) error {
			sctx, cancel := e.withTimeout(ctx)
			defer cancel()
			return e.identities.SetCredential(sctx, userID, hash)
		},
		IsTokenNotFound: func(err error) bool {
			return errors.Is(err, ErrResetTokenNotFound)
		},
		MapStoreError: e.mapStoreError,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		Metrics: internalflows.PasswordResetMetrics{
			PasswordResetRequest:       int(MetricPasswordResetRequest),
			PasswordResetThrottled:     int(MetricPasswordResetThrottled),
			PasswordResetMailFailure:   int(MetricPasswordResetMailFailure),
			PasswordResetRedeemSuccess: int(MetricPasswordResetRedeemSuccess),
			PasswordResetRedeemFailure: int(MetricPasswordResetRedeemFailure),
		},
		Events: internalflows.PasswordResetEvents{
			PasswordResetRequest: auditEventPasswordResetRequest,
			PasswordResetRedeem:  auditEventPasswordResetRedeem,
		},
		Errors: internalflows.PasswordResetErrors{
			EngineNotReady:        ErrEngineNotReady,
			InvalidOrExpiredToken: ErrInvalidOrExpiredToken,
			PasswordPolicy:        ErrPasswordPolicy,
		},
	}

	if e.resetLimiter != nil {
		deps.CheckThrottle = func(ctx context.Context, email string) error {
			sctx, cancel := e.withTimeout(ctx)
			defer cancel()
			err := e.resetLimiter.CheckRequest(sctx, email)
			switch {
			case err == nil:
				return nil
			case errors.Is(err, limiters.ErrResetRateLimited):
				return errResetThrottled
			default:
				return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
		}
	}
	if e.redeemer != nil {
		deps.AtomicRedeem = func(ctx context.Context, resetID string, commitment [32]byte, now time.Time, hash string) (string, error) {
			sctx, cancel := e.withTimeout(ctx)
			defer cancel()
			return e.redeemer.RedeemResetToken(sctx, resetID, commitment, now, hash)
		}
	}

	return deps
}
