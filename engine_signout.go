package roleauth

import (
	"context"
	"time"

	internalflows "github.com/MrEthical07/roleauth/internal/flows"
	"github.com/MrEthical07/roleauth/sessionsync"
)

// SignOut runs req.Invalidate, then broadcasts a signout event on
// req.ClientKey, then runs req.Refresh. When Invalidate fails nothing is
// broadcast and the error matches ErrSessionInvalidationFailed. The broadcast
// is fire-and-forget and a failed Refresh is only audited.
func (e *Engine) SignOut(ctx context.Context, req SignOutRequest) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flows.SignOut(ctx, internalflows.SignOutInput{
		ClientKey:  req.ClientKey,
		UserID:     req.UserID,
		Invalidate: req.Invalidate,
		Refresh:    req.Refresh,
	})
}

func (e *Engine) publishSignOut(ctx context.Context, clientKey, userID string) {
	if clientKey == "" {
		return
	}
	sctx, cancel := e.withTimeout(ctx)
	defer cancel()

	err := e.publisher.Publish(sctx, sessionsync.Event{
		Type:      sessionsync.EventSignOut,
		ClientKey: clientKey,
		UserID:    userID,
		At:        time.Now().UTC(),
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("signout broadcast incomplete")
	}
}

func (e *Engine) signOutFlowDeps() internalflows.SignOutDeps {
	return internalflows.SignOutDeps{
		WithTimeout: e.withTimeout,
		Publish:     e.publishSignOut,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		Metrics: internalflows.SignOutMetrics{
			SignOut:        int(MetricSignOut),
			SignOutFailure: int(MetricSignOutFailure),
		},
		Events: internalflows.SignOutEvents{
			SignOut: auditEventSignOut,
		},
		Errors: internalflows.SignOutErrors{
			EngineNotReady:   ErrEngineNotReady,
			InvalidateFailed: ErrSessionInvalidationFailed,
		},
	}
}
