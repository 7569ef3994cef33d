package flows

import (
	"context"
	"errors"
	"time"

	"github.com/acadly/authcore/token"
)

// RotateFailureKind classifies rotation flow failures for root-level
// error mapping and audit severity.
type RotateFailureKind int

const (
	RotateFailureNone RotateFailureKind = iota
	RotateFailureDecode
	RotateFailureNotFound
	RotateFailureExpired
	RotateFailureMismatch
	RotateFailureReuse
	RotateFailureStore
	RotateFailureIssue
	RotateFailureEncode
	RotateFailureAccess
)

// RotateResult carries either the new token pair or failure metadata.
type RotateResult struct {
	Failure      RotateFailureKind
	Err          error
	TokenID      string
	PrincipalID  string
	RevokedCount int
	RefreshToken string
	AccessToken  string
	ExpiresAt    time.Time
}

// RotateStore is the slice of the token store the rotation flow touches.
type RotateStore interface {
	Consume(ctx context.Context, tokenID string, providedHash [32]byte) (*token.Record, error)
	Save(ctx context.Context, record *token.Record, ttl time.Duration) error
	RevokeAllForPrincipal(ctx context.Context, principalID string) (int, error)
	TrackReplayAnomaly(ctx context.Context, principalID string, ttl time.Duration) error
}

// RotateDeps captures rotation flow dependencies.
type RotateDeps struct {
	DecodeRefreshToken   func(string) (string, [32]byte, error)
	NewTokenID           func() (string, error)
	NewRefreshSecret     func() ([32]byte, error)
	HashRefreshSecret    func([32]byte) [32]byte
	EncodeRefreshToken   func(string, [32]byte) (string, error)
	IssueAccessToken     func(ctx context.Context, principalID string) (string, error)
	RefreshTTL           time.Duration
	EnableReplayTracking bool
	ReplayTrackingTTL    time.Duration
	Warn                 func(string, ...any)
	Store                RotateStore
}

// RunRotate consumes the presented token and issues a replacement for the
// same principal. Reuse of an already-consumed token revokes every
// outstanding token for that principal before the failure is returned.
func RunRotate(ctx context.Context, refreshToken string, deps RotateDeps) RotateResult {
	tokenID, providedSecret, err := deps.DecodeRefreshToken(refreshToken)
	if err != nil {
		// Malformed input never reaches the store.
		return RotateResult{Failure: RotateFailureDecode, Err: err}
	}

	record, err := deps.Store.Consume(ctx, tokenID, deps.HashRefreshSecret(providedSecret))
	if err != nil {
		switch {
		case errors.Is(err, token.ErrTokenReused):
			result := RotateResult{
				Failure: RotateFailureReuse,
				Err:     err,
				TokenID: tokenID,
			}
			if record != nil {
				result.PrincipalID = record.PrincipalID
				revoked, revokeErr := deps.Store.RevokeAllForPrincipal(ctx, record.PrincipalID)
				if revokeErr != nil && deps.Warn != nil {
					deps.Warn("authcore: mass revocation after reuse failed: %v", revokeErr)
				}
				result.RevokedCount = revoked
				if deps.EnableReplayTracking {
					if trackErr := deps.Store.TrackReplayAnomaly(ctx, record.PrincipalID, deps.ReplayTrackingTTL); trackErr != nil && deps.Warn != nil {
						deps.Warn("authcore: replay anomaly tracking failed: %v", trackErr)
					}
				}
			}
			return result
		case errors.Is(err, token.ErrTokenNotFound):
			return RotateResult{Failure: RotateFailureNotFound, Err: err, TokenID: tokenID}
		case errors.Is(err, token.ErrTokenExpired):
			return RotateResult{Failure: RotateFailureExpired, Err: err, TokenID: tokenID}
		case errors.Is(err, token.ErrSecretMismatch):
			return RotateResult{Failure: RotateFailureMismatch, Err: err, TokenID: tokenID}
		default:
			return RotateResult{Failure: RotateFailureStore, Err: err, TokenID: tokenID}
		}
	}

	newID, err := deps.NewTokenID()
	if err != nil {
		return RotateResult{Failure: RotateFailureIssue, Err: err, TokenID: tokenID, PrincipalID: record.PrincipalID}
	}
	nextSecret, err := deps.NewRefreshSecret()
	if err != nil {
		return RotateResult{Failure: RotateFailureIssue, Err: err, TokenID: tokenID, PrincipalID: record.PrincipalID}
	}

	now := time.Now()
	next := &token.Record{
		TokenID:     newID,
		PrincipalID: record.PrincipalID,
		SecretHash:  deps.HashRefreshSecret(nextSecret),
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(deps.RefreshTTL).Unix(),
	}

	// Consume and Save are separate store writes. A crash in between
	// orphans the consumed token; the client re-authenticates. The
	// single-use invariant is never at risk.
	if err := deps.Store.Save(ctx, next, deps.RefreshTTL); err != nil {
		return RotateResult{Failure: RotateFailureStore, Err: err, TokenID: tokenID, PrincipalID: record.PrincipalID}
	}

	refresh, err := deps.EncodeRefreshToken(newID, nextSecret)
	if err != nil {
		return RotateResult{Failure: RotateFailureEncode, Err: err, TokenID: tokenID, PrincipalID: record.PrincipalID}
	}

	var access string
	if deps.IssueAccessToken != nil {
		access, err = deps.IssueAccessToken(ctx, record.PrincipalID)
		if err != nil {
			return RotateResult{Failure: RotateFailureAccess, Err: err, TokenID: tokenID, PrincipalID: record.PrincipalID}
		}
	}

	return RotateResult{
		Failure:      RotateFailureNone,
		TokenID:      newID,
		PrincipalID:  record.PrincipalID,
		RefreshToken: refresh,
		AccessToken:  access,
		ExpiresAt:    time.Unix(next.ExpiresAt, 0),
	}
}
