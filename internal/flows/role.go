package flows

import (
	"context"
	"errors"
)

// RoleResult is the outcome of a role update. Roles are the engine's uint8 codes.
type RoleResult struct {
	Previous          uint8
	Effective         uint8
	Changed           bool
	DowngradeRejected bool
}

type RoleMetrics struct {
	RoleElevated          int
	RoleUnchanged         int
	RoleDowngradeRejected int
	RoleInvalid           int
	RoleConflictRetry     int
}

type RoleEvents struct {
	RoleChange            string
	RoleDowngradeRejected string
}

type RoleErrors struct {
	EngineNotReady error
	InvalidRole    error
	RoleConflict   error
}

// RoleDeps captures role update dependencies. Parse is the only ingress for
// the desired role; Resolve is the pure elevation rule.
type RoleDeps struct {
	MaxRetries int

	Parse       func(string) (uint8, error)
	Resolve     func(current, desired uint8) (uint8, bool)
	IsDowngrade func(current, desired uint8) bool
	RoleName    func(uint8) string

	GetRole           func(context.Context, string) (uint8, error)
	CompareAndSetRole func(context.Context, string, uint8, uint8) error
	IsConflict        func(error) bool
	MapStoreError     func(error) error

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)

	Metrics RoleMetrics
	Events  RoleEvents
	Errors  RoleErrors
}

// RunSetRole validates desired, then reads the current role, resolves the
// effective role and persists it with a compare-and-set. A CAS miss means a
// concurrent writer got there first; the loop re-reads and re-resolves against
// the new value, which converges because the rule is monotonic.
func RunSetRole(ctx context.Context, userID, desired string, deps RoleDeps) (RoleResult, error) {
	normalizeRoleDeps(&deps)

	if deps.Parse == nil || deps.Resolve == nil || deps.GetRole == nil || deps.CompareAndSetRole == nil {
		return RoleResult{}, deps.Errors.EngineNotReady
	}

	want, err := deps.Parse(desired)
	if err != nil {
		deps.MetricInc(deps.Metrics.RoleInvalid)
		deps.EmitAudit(ctx, deps.Events.RoleChange, false, userID, "", deps.Errors.InvalidRole, func() map[string]string {
			return map[string]string{
				"reason": "invalid_role",
			}
		})
		return RoleResult{}, deps.Errors.InvalidRole
	}

	for attempt := 0; attempt < deps.MaxRetries; attempt++ {
		current, err := deps.GetRole(ctx, userID)
		if err != nil {
			mapped := deps.MapStoreError(err)
			deps.EmitAudit(ctx, deps.Events.RoleChange, false, userID, "", mapped, nil)
			return RoleResult{}, mapped
		}

		effective, changed := deps.Resolve(current, want)
		result := RoleResult{
			Previous:  current,
			Effective: effective,
			Changed:   changed,
		}

		if !changed {
			if deps.IsDowngrade(current, want) {
				result.DowngradeRejected = true
				deps.MetricInc(deps.Metrics.RoleDowngradeRejected)
				deps.EmitAudit(ctx, deps.Events.RoleDowngradeRejected, true, userID, deps.RoleName(effective), nil, func() map[string]string {
					return map[string]string{
						"requested": deps.RoleName(want),
					}
				})
			} else {
				deps.MetricInc(deps.Metrics.RoleUnchanged)
			}
			return result, nil
		}

		err = deps.CompareAndSetRole(ctx, userID, current, effective)
		if err == nil {
			deps.MetricInc(deps.Metrics.RoleElevated)
			deps.EmitAudit(ctx, deps.Events.RoleChange, true, userID, deps.RoleName(effective), nil, func() map[string]string {
				return map[string]string{
					"from": deps.RoleName(current),
				}
			})
			return result, nil
		}
		if deps.IsConflict(err) {
			deps.MetricInc(deps.Metrics.RoleConflictRetry)
			continue
		}

		mapped := deps.MapStoreError(err)
		deps.EmitAudit(ctx, deps.Events.RoleChange, false, userID, deps.RoleName(current), mapped, nil)
		return RoleResult{}, mapped
	}

	deps.EmitAudit(ctx, deps.Events.RoleChange, false, userID, "", deps.Errors.RoleConflict, func() map[string]string {
		return map[string]string{
			"reason": "retries_exhausted",
		}
	})
	return RoleResult{}, deps.Errors.RoleConflict
}

func normalizeRoleDeps(deps *RoleDeps) {
	if deps.MaxRetries <= 0 {
		deps.MaxRetries = 4
	}
	if deps.IsDowngrade == nil {
		deps.IsDowngrade = func(uint8, uint8) bool { return false }
	}
	if deps.RoleName == nil {
		deps.RoleName = func(uint8) string { return "" }
	}
	if deps.IsConflict == nil {
		deps.IsConflict = func(error) bool { return false }
	}
	if deps.MapStoreError == nil {
		deps.MapStoreError = func(err error) error { return err }
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
	if deps.Errors.InvalidRole == nil {
		deps.Errors.InvalidRole = errors.New("invalid role")
	}
	if deps.Errors.RoleConflict == nil {
		deps.Errors.RoleConflict = errors.New("role changed concurrently")
	}
}
