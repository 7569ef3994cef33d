package authcore

import (
	"time"

	"github.com/acadly/authcore/breaker"
)

// Audit event types emitted by the core.
const (
	EventRefreshIssued      = "refresh.issued"
	EventRefreshRotated     = "refresh.rotated"
	EventRefreshDenied      = "refresh.denied"
	EventRefreshReuse       = "refresh.reuse_detected"
	EventRefreshRevokeAll   = "refresh.revoke_all"
	EventKeyGenerated       = "keys.generated"
	EventKeyRotated         = "keys.rotated"
	EventKeyRevoked         = "keys.revoked"
	EventKeySwept           = "keys.swept"
	EventEscalationDenied   = "privilege.escalation_denied"
	EventManagementDenied   = "privilege.management_denied"
	EventChallengeIssued    = "challenge.issued"
	EventChallengeVerified  = "challenge.verified"
	EventChallengeFailed    = "challenge.failed"
	EventChallengeExhausted = "challenge.exhausted"
	EventPasswordReset      = "password.admin_reset"
)

// OpAdminPasswordReset is the challenge operation name gating
// [Core.ResetPasswordHash].
const OpAdminPasswordReset = "admin_password_reset"

// TokenGrant is a freshly issued refresh token. The token value exists
// only here; storage holds a keyed hash.
type TokenGrant struct {
	TokenID      string
	RefreshToken string
	ExpiresAt    time.Time
}

// RotateResult is the outcome of a successful rotation: a replacement
// refresh token and, when key material is available, a new access token.
type RotateResult struct {
	PrincipalID  string
	TokenID      string
	RefreshToken string
	AccessToken  string
	ExpiresAt    time.Time
}

// HealthReport summarizes dependency health for liveness surfaces.
type HealthReport struct {
	RedisLatency time.Duration
	Breaker      *breaker.Stats
	AuditDropped uint64
}
