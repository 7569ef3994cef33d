package authcore

import "errors"

var (
	// ErrCoreNotReady is returned when a method is called on a nil or
	// unbuilt core.
	ErrCoreNotReady = errors.New("core not initialized")

	// ErrRefreshInvalid covers the ordinary refresh denials: malformed
	// token, unknown id, wrong secret, expired record. Callers re-issue
	// a login; the audit trail carries the precise reason.
	ErrRefreshInvalid = errors.New("invalid refresh token")

	// ErrRefreshReuse is the elevated outcome: an already-consumed token
	// was presented again. All of the principal's refresh tokens have
	// been revoked by the time this error is returned.
	ErrRefreshReuse = errors.New("refresh token reuse detected")

	// ErrTokenInvalid is returned for access-token verification failures.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrKeyNotFound is returned when key management names an unknown
	// key id. Verification-path key failures surface as [ErrTokenInvalid];
	// the keyring package carries the finer-grained sentinels.
	ErrKeyNotFound = errors.New("signing key not found")

	// ErrRotationInProgress means another instance holds the rotation
	// lock; the caller's rotation cycle is skipped, not failed.
	ErrRotationInProgress = errors.New("key rotation already in progress")

	// ErrChallengeInvalid covers challenge denials that simply require a
	// fresh challenge: not found, wrong code, wrong principal, expired.
	ErrChallengeInvalid = errors.New("confirmation challenge invalid")

	// ErrChallengeExhausted is terminal: the attempt budget is spent and
	// the challenge has been destroyed.
	ErrChallengeExhausted = errors.New("confirmation challenge attempts exhausted")

	// ErrDependencyUnavailable distinguishes "the store is down or the
	// breaker is open" from a denial. It must never be treated as
	// authorization success.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)
