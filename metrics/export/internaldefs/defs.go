package internaldefs

import (
	"github.com/MrEthical07/roleauth"
)

// CounterDef maps an engine counter to its exported name.
type CounterDef struct {
	ID   roleauth.MetricID
	Name string
	Help string
}

// HistogramDef maps an engine histogram to its exported name.
type HistogramDef struct {
	ID   roleauth.MetricID
	Name string
	Help string
}

// BucketCount is the number of latency buckets, including +Inf.
const BucketCount = 8

// AuditDroppedName is exported alongside the engine counters.
const (
	AuditDroppedName = "roleauth_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

var CounterDefs = []CounterDef{
	{ID: roleauth.MetricLoginSuccess, Name: "roleauth_login_success_total", Help: "Successful password sign-ins."},
	{ID: roleauth.MetricLoginFailure, Name: "roleauth_login_failure_total", Help: "Rejected password sign-ins."},
	{ID: roleauth.MetricSessionVerifyFailure, Name: "roleauth_session_verify_failure_total", Help: "Session tokens that failed verification."},
	{ID: roleauth.MetricRoleElevated, Name: "roleauth_role_elevated_total", Help: "Role changes persisted."},
	{ID: roleauth.MetricRoleUnchanged, Name: "roleauth_role_unchanged_total", Help: "Role requests that matched the current role."},
	{ID: roleauth.MetricRoleDowngradeRejected, Name: "roleauth_role_downgrade_rejected_total", Help: "Organizer to member requests refused."},
	{ID: roleauth.MetricRoleInvalid, Name: "roleauth_role_invalid_total", Help: "Role requests naming an unknown role."},
	{ID: roleauth.MetricRoleConflictRetry, Name: "roleauth_role_conflict_retry_total", Help: "Role writes re-resolved after a concurrent update."},
	{ID: roleauth.MetricPasswordResetRequest, Name: "roleauth_password_reset_request_total", Help: "Acknowledged password reset requests."},
	{ID: roleauth.MetricPasswordResetThrottled, Name: "roleauth_password_reset_throttled_total", Help: "Password reset requests suppressed by the per-email throttle."},
	{ID: roleauth.MetricPasswordResetMailFailure, Name: "roleauth_password_reset_mail_failure_total", Help: "Reset mails the mailer failed to deliver."},
	{ID: roleauth.MetricPasswordResetRedeemSuccess, Name: "roleauth_password_reset_redeem_success_total", Help: "Reset tokens redeemed."},
	{ID: roleauth.MetricPasswordResetRedeemFailure, Name: "roleauth_password_reset_redeem_failure_total", Help: "Rejected reset redemptions."},
	{ID: roleauth.MetricSignOut, Name: "roleauth_signout_total", Help: "Completed sign-outs."},
	{ID: roleauth.MetricSignOutFailure, Name: "roleauth_signout_failure_total", Help: "Sign-outs whose invalidation step failed."},
	{ID: roleauth.MetricDependencyFailure, Name: "roleauth_dependency_failure_total", Help: "Store calls that failed or timed out."},
}

var HistogramDefs = []HistogramDef{
	{ID: roleauth.MetricVerifyLatency, Name: "roleauth_session_verify_latency_seconds", Help: "Session verification latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// bucket is +Inf.
var HistogramUpperBounds = [BucketCount - 1]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket in OTel gauge names.
var HistogramBoundSuffix = [BucketCount]string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, truncating or zero-filling.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
