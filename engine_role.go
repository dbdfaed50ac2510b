package roleauth

import (
	"context"
	"errors"

	internalflows "github.com/MrEthical07/roleauth/internal/flows"
)

// SetRole applies the elevation rule for userID and returns the effective
// role with a session freshly minted for it. A downgrade request from an
// ORGANIZER is not an error: Effective stays ORGANIZER and DowngradeRejected
// is set. desired outside MEMBER and ORGANIZER fails with ErrInvalidRole
// before the store is touched.
//
// The session is minted whether or not the role changed, so a caller holding
// a token with a stale role can swap it immediately.
func (e *Engine) SetRole(ctx context.Context, userID, desired string) (RoleChangeResult, error) {
	if !e.ready() {
		return RoleChangeResult{}, ErrEngineNotReady
	}

	res, err := e.flows.SetRole(ctx, userID, desired)
	if err != nil {
		return RoleChangeResult{}, err
	}

	effective := Role(res.Effective)
	session, err := e.MintSession(userID, effective)
	if err != nil {
		// The role is persisted; only the reissue failed.
		e.logger.Error().Err(err).Str("user_id", userID).Msg("session reissue after role change failed")
		return RoleChangeResult{}, err
	}

	return RoleChangeResult{
		Effective:         effective,
		Changed:           res.Changed,
		DowngradeRejected: res.DowngradeRejected,
		Session:           session,
	}, nil
}

func (e *Engine) roleFlowDeps() internalflows.RoleDeps {
	return internalflows.RoleDeps{
		Parse: func(s string) (uint8, error) {
			r, err := ParseRole(s)
			return uint8(r), err
		},
		Resolve: func(current, desired uint8) (uint8, bool) {
			effective, changed := ResolveRole(Role(current), Role(desired))
			return uint8(effective), changed
		},
		IsDowngrade: func(current, desired uint8) bool {
			return IsDowngrade(Role(current), Role(desired))
		},
		RoleName: func(r uint8) string {
			return Role(r).String()
		},
		GetRole: func(ctx context.Context, userID string) (uint8, error) {
			sctx, cancel := e.withTimeout(ctx)
			defer cancel()
			user, err := e.identities.GetUserByID(sctx, userID)
			if err != nil {
				return 0, err
			}
			return uint8(user.Role), nil
		},
		CompareAndSetRole: func(ctx context.Context, userID string, from, to uint8) error {
			sctx, cancel := e.withTimeout(ctx)
			defer cancel()
			return e.identities.CompareAndSetRole(sctx, userID, Role(from), Role(to))
		},
		IsConflict: func(err error) bool {
			return errors.Is(err, ErrRoleConflict)
		},
		MapStoreError: e.mapStoreError,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		Metrics: internalflows.RoleMetrics{
			RoleElevated:          int(MetricRoleElevated),
			RoleUnchanged:         int(MetricRoleUnchanged),
			RoleDowngradeRejected: int(MetricRoleDowngradeRejected),
			RoleInvalid:           int(MetricRoleInvalid),
			RoleConflictRetry:     int(MetricRoleConflictRetry),
		},
		Events: internalflows.RoleEvents{
			RoleChange:            auditEventRoleChange,
			RoleDowngradeRejected: auditEventRoleDowngradeRejected,
		},
		Errors: internalflows.RoleErrors{
			EngineNotReady: ErrEngineNotReady,
			InvalidRole:    ErrInvalidRole,
			RoleConflict:   ErrRoleConflict,
		},
	}
}
