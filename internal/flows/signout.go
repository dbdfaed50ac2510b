package flows

import (
	"context"
	"errors"
)

// SignOutInput mirrors the root SignOutRequest.
type SignOutInput struct {
	ClientKey  string
	UserID     string
	Invalidate func(context.Context) error
	Refresh    func(context.Context) error
}

type SignOutMetrics struct {
	SignOut        int
	SignOutFailure int
}

type SignOutEvents struct {
	SignOut string
}

type SignOutErrors struct {
	EngineNotReady error
	// InvalidateFailed wraps an error from the Invalidate callback.
	InvalidateFailed error
}

type SignOutDeps struct {
	// WithTimeout bounds a single callback invocation.
	WithTimeout func(context.Context) (context.Context, context.CancelFunc)
	// Publish is fire-and-forget; delivery failures are not reported.
	Publish func(ctx context.Context, clientKey, userID string)

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)

	Metrics SignOutMetrics
	Events  SignOutEvents
	Errors  SignOutErrors
}

// RunSignOut runs invalidate, then broadcast, then refresh. A failed invalidate
// stops the sequence before anything is broadcast.
func RunSignOut(ctx context.Context, in SignOutInput, deps SignOutDeps) error {
	normalizeSignOutDeps(&deps)

	if in.Invalidate == nil || deps.Publish == nil {
		return deps.Errors.EngineNotReady
	}

	ictx, cancel := deps.WithTimeout(ctx)
	err := in.Invalidate(ictx)
	cancel()
	if err != nil {
		deps.MetricInc(deps.Metrics.SignOutFailure)
		deps.EmitAudit(ctx, deps.Events.SignOut, false, in.UserID, "", deps.Errors.InvalidateFailed, func() map[string]string {
			return map[string]string{
				"stage": "invalidate",
			}
		})
		return errors.Join(deps.Errors.InvalidateFailed, err)
	}

	deps.Publish(ctx, in.ClientKey, in.UserID)

	var meta func() map[string]string
	if in.Refresh != nil {
		rctx, cancel := deps.WithTimeout(ctx)
		err := in.Refresh(rctx)
		cancel()
		// Signed out and broadcast already; a failed refresh only leaves the
		// caller's own view stale until its next request.
		if err != nil {
			meta = func() map[string]string {
				return map[string]string{
					"refresh": "failed",
				}
			}
		}
	}

	deps.MetricInc(deps.Metrics.SignOut)
	deps.EmitAudit(ctx, deps.Events.SignOut, true, in.UserID, "", nil, meta)
	return nil
}

func normalizeSignOutDeps(deps *SignOutDeps) {
	if deps.WithTimeout == nil {
		deps.WithTimeout = func(ctx context.Context) (context.Context, context.CancelFunc) {
			return context.WithCancel(ctx)
		}
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.Errors.EngineNotReady == nil {
		deps.Errors.EngineNotReady = errors.New("engine not initialized")
	}
	if deps.Errors.InvalidateFailed == nil {
		deps.Errors.InvalidateFailed = errors.New("session invalidation failed")
	}
}
