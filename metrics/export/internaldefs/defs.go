package internaldefs

import (
	authcore "github.com/acadly/authcore"
)

// CounterDef maps one core counter to its exported name.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef maps one core histogram to its exported name.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs is the full set of exported counters, in export order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricRefreshIssued, Name: "authcore_refresh_issued_total", Help: "Issued refresh tokens."},
	{ID: authcore.MetricRefreshRotated, Name: "authcore_refresh_rotated_total", Help: "Successful refresh token rotations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Denied refresh token rotations."},
	{ID: authcore.MetricRefreshReuseDetected, Name: "authcore_refresh_reuse_detected_total", Help: "Detected refresh token reuses."},
	{ID: authcore.MetricRefreshRevokeAll, Name: "authcore_refresh_revoke_all_total", Help: "Mass refresh token revocations."},
	{ID: authcore.MetricKeyGenerated, Name: "authcore_key_generated_total", Help: "Generated signing keys."},
	{ID: authcore.MetricKeyRotation, Name: "authcore_key_rotation_total", Help: "Completed signing key rotations."},
	{ID: authcore.MetricKeyRevoked, Name: "authcore_key_revoked_total", Help: "Revoked signing keys."},
	{ID: authcore.MetricKeySweep, Name: "authcore_key_sweep_total", Help: "Signing key sweep cycles."},
	{ID: authcore.MetricAccessSigned, Name: "authcore_access_signed_total", Help: "Signed access tokens."},
	{ID: authcore.MetricAccessVerifyFailure, Name: "authcore_access_verify_failure_total", Help: "Failed access token verifications."},
	{ID: authcore.MetricEscalationDenied, Name: "authcore_escalation_denied_total", Help: "Denied role escalation attempts."},
	{ID: authcore.MetricManagementDenied, Name: "authcore_management_denied_total", Help: "Denied principal management attempts."},
	{ID: authcore.MetricChallengeIssued, Name: "authcore_challenge_issued_total", Help: "Issued confirmation challenges."},
	{ID: authcore.MetricChallengeVerified, Name: "authcore_challenge_verified_total", Help: "Successful challenge confirmations."},
	{ID: authcore.MetricChallengeFailure, Name: "authcore_challenge_failure_total", Help: "Failed challenge confirmations."},
	{ID: authcore.MetricChallengeExhausted, Name: "authcore_challenge_exhausted_total", Help: "Challenges invalidated by the attempt cap."},
	{ID: authcore.MetricBreakerOpen, Name: "authcore_breaker_open_total", Help: "Calls rejected by the open circuit breaker."},
	{ID: authcore.MetricStoreFailure, Name: "authcore_store_failure_total", Help: "Credential store failures."},
}

// HistogramDefs is the full set of exported histograms.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricRotateLatency, Name: "authcore_rotate_latency_seconds", Help: "Refresh rotation latency histogram."},
}

// HistogramBounds are the upper bucket bounds, in seconds, matching the
// core's fixed histogram layout.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix encodes the bounds for backends that forbid
// punctuation in instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket layout.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus histograms expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
