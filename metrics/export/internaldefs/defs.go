package internaldefs

import (
	"github.com/MrEthical07/portalauth"
)

// CounterDef maps an engine counter to its exported name.
type CounterDef struct {
	ID   portalauth.MetricID
	Name string
	Help string
}

// HistogramDef maps an engine latency histogram to its exported name.
type HistogramDef struct {
	ID   portalauth.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: portalauth.MetricRegisterSuccess, Name: "portalauth_register_success_total", Help: "Successful registrations."},
	{ID: portalauth.MetricRegisterDuplicate, Name: "portalauth_register_duplicate_total", Help: "Registrations rejected for a taken email."},
	{ID: portalauth.MetricRegisterWeakPassword, Name: "portalauth_register_weak_password_total", Help: "Registrations rejected by the password policy."},
	{ID: portalauth.MetricLoginSuccess, Name: "portalauth_login_success_total", Help: "Successful logins."},
	{ID: portalauth.MetricLoginFailure, Name: "portalauth_login_failure_total", Help: "Failed logins."},
	{ID: portalauth.MetricLoginTwoFactorRequired, Name: "portalauth_login_two_factor_required_total", Help: "Logins paused for a second factor."},
	{ID: portalauth.MetricAccountLocked, Name: "portalauth_account_locked_total", Help: "Accounts locked after repeated password failures."},
	{ID: portalauth.MetricTOTPFailure, Name: "portalauth_totp_failure_total", Help: "Rejected TOTP codes."},
	{ID: portalauth.MetricTOTPRateLimited, Name: "portalauth_totp_rate_limited_total", Help: "TOTP submissions refused by the per-user throttle."},
	{ID: portalauth.MetricRefreshSuccess, Name: "portalauth_refresh_success_total", Help: "Successful token refreshes."},
	{ID: portalauth.MetricRefreshFailure, Name: "portalauth_refresh_failure_total", Help: "Failed token refreshes."},
	{ID: portalauth.MetricSessionCreated, Name: "portalauth_session_created_total", Help: "Created sessions."},
	{ID: portalauth.MetricSessionEvicted, Name: "portalauth_session_evicted_total", Help: "Sessions evicted by the per-user cap."},
	{ID: portalauth.MetricLogout, Name: "portalauth_logout_total", Help: "Single-session logouts."},
	{ID: portalauth.MetricLogoutAll, Name: "portalauth_logout_all_total", Help: "Logout-all operations."},
	{ID: portalauth.MetricEmailVerificationRequest, Name: "portalauth_email_verification_request_total", Help: "Verification tokens issued."},
	{ID: portalauth.MetricEmailVerificationSuccess, Name: "portalauth_email_verification_success_total", Help: "Successful email verifications."},
	{ID: portalauth.MetricEmailVerificationFailure, Name: "portalauth_email_verification_failure_total", Help: "Failed email verifications."},
	{ID: portalauth.MetricPasswordResetRequest, Name: "portalauth_password_reset_request_total", Help: "Password reset tokens issued."},
	{ID: portalauth.MetricPasswordResetSuccess, Name: "portalauth_password_reset_success_total", Help: "Completed password resets."},
	{ID: portalauth.MetricPasswordResetFailure, Name: "portalauth_password_reset_failure_total", Help: "Failed password resets."},
	{ID: portalauth.MetricTwoFactorEnabled, Name: "portalauth_two_factor_enabled_total", Help: "Two-factor enrolments."},
	{ID: portalauth.MetricTwoFactorDisabled, Name: "portalauth_two_factor_disabled_total", Help: "Two-factor removals."},
	{ID: portalauth.MetricAccountDeactivated, Name: "portalauth_account_deactivated_total", Help: "Deactivated accounts."},
	{ID: portalauth.MetricTokensPurged, Name: "portalauth_tokens_purged_total", Help: "Expired verification tokens deleted."},
	{ID: portalauth.MetricMailFailure, Name: "portalauth_mail_failure_total", Help: "Emails the mailer failed to send."},
	{ID: portalauth.MetricDependencyFailure, Name: "portalauth_dependency_failure_total", Help: "Store, registry or mailer calls that failed or timed out."},
	{ID: portalauth.MetricRateLimitHit, Name: "portalauth_rate_limit_hit_total", Help: "Requests rejected by an endpoint throttle."},
}

var HistogramDefs = []HistogramDef{
	{ID: portalauth.MetricLoginLatency, Name: "portalauth_login_latency_seconds", Help: "Login latency."},
	{ID: portalauth.MetricAuthenticateLatency, Name: "portalauth_authenticate_latency_seconds", Help: "Access-token authentication latency."},
}

// AuditDroppedName is the counter for audit events lost to a full buffer.
const AuditDroppedName = "portalauth_audit_dropped_total"

// AuditEventLabel is the attribute carrying the event type of a dropped
// audit event.
const AuditEventLabel = "event"

// HistogramUpperBounds are the finite bucket bounds in seconds. The engine
// keeps one more bucket for everything above the last bound.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundLabels are the "le" values of the eight engine buckets,
// HistogramUpperBounds followed by +Inf.
var HistogramBoundLabels = []string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// NormalizeBuckets pads or truncates raw to the eight engine buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
