package authcore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/acadly/authcore/internal"
	"github.com/acadly/authcore/internal/flows"
	"github.com/acadly/authcore/token"
)

// guardedTokenStore routes token store calls through the core's breaker
// so the rotation flow stays free of resilience concerns.
type guardedTokenStore struct {
	core *Core
}

func (g guardedTokenStore) Consume(ctx context.Context, tokenID string, providedHash [32]byte) (*token.Record, error) {
	var record *token.Record
	err := g.core.execStore(ctx, func(callCtx context.Context) error {
		var err error
		record, err = g.core.tokens.Consume(callCtx, tokenID, providedHash)
		return err
	})
	return record, err
}

func (g guardedTokenStore) Save(ctx context.Context, record *token.Record, ttl time.Duration) error {
	return g.core.execStore(ctx, func(callCtx context.Context) error {
		return g.core.tokens.Save(callCtx, record, ttl)
	})
}

func (g guardedTokenStore) RevokeAllForPrincipal(ctx context.Context, principalID string) (int, error) {
	var revoked int
	err := g.core.execStore(ctx, func(callCtx context.Context) error {
		var err error
		revoked, err = g.core.tokens.RevokeAllForPrincipal(callCtx, principalID)
		return err
	})
	return revoked, err
}

func (g guardedTokenStore) TrackReplayAnomaly(ctx context.Context, principalID string, ttl time.Duration) error {
	return g.core.execStore(ctx, func(callCtx context.Context) error {
		return g.core.tokens.TrackReplayAnomaly(callCtx, principalID, ttl)
	})
}

// IssueRefreshToken creates a fresh refresh token for the principal. The
// returned value is the only copy of the secret.
func (c *Core) IssueRefreshToken(ctx context.Context, principalID string) (*TokenGrant, error) {
	if c == nil {
		return nil, ErrCoreNotReady
	}
	if principalID == "" {
		return nil, errors.New("principal id is required")
	}

	id, err := internal.NewTokenID()
	if err != nil {
		return nil, err
	}
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	record := &token.Record{
		TokenID:     id.String(),
		PrincipalID: principalID,
		SecretHash:  internal.HashRefreshSecret(secret),
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(c.config.Refresh.TTL).Unix(),
	}

	err = c.execStore(ctx, func(callCtx context.Context) error {
		return c.tokens.Save(callCtx, record, c.config.Refresh.TTL)
	})
	if err != nil {
		return nil, err
	}

	value, err := internal.EncodeRefreshToken(record.TokenID, secret)
	if err != nil {
		return nil, err
	}

	c.metrics.Inc(MetricRefreshIssued)
	c.emit(ctx, AuditEvent{
		EventType:   EventRefreshIssued,
		Severity:    SeverityInfo,
		PrincipalID: principalID,
		Success:     true,
		Metadata:    map[string]string{"token_id": record.TokenID},
	})

	return &TokenGrant{
		TokenID:      record.TokenID,
		RefreshToken: value,
		ExpiresAt:    time.Unix(record.ExpiresAt, 0),
	}, nil
}

// RotateRefreshToken exchanges a valid refresh token for a new one plus a
// signed access token. Presenting an already-consumed token is treated as
// a security incident: every outstanding token for the principal is
// revoked before [ErrRefreshReuse] is returned.
func (c *Core) RotateRefreshToken(ctx context.Context, presented string) (*RotateResult, error) {
	if c == nil {
		return nil, ErrCoreNotReady
	}

	start := time.Now()
	result := flows.RunRotate(ctx, presented, flows.RotateDeps{
		DecodeRefreshToken: internal.DecodeRefreshToken,
		NewTokenID: func() (string, error) {
			id, err := internal.NewTokenID()
			if err != nil {
				return "", err
			}
			return id.String(), nil
		},
		NewRefreshSecret:     internal.NewRefreshSecret,
		HashRefreshSecret:    internal.HashRefreshSecret,
		EncodeRefreshToken:   internal.EncodeRefreshToken,
		IssueAccessToken:     c.issueAccessForPrincipal,
		RefreshTTL:           c.config.Refresh.TTL,
		EnableReplayTracking: c.config.Refresh.EnableReplayTracking,
		ReplayTrackingTTL:    c.config.Refresh.ReplayTrackingTTL,
		Warn:                 log.Printf,
		Store:                guardedTokenStore{core: c},
	})
	c.metrics.Observe(MetricRotateLatency, time.Since(start))

	switch result.Failure {
	case flows.RotateFailureNone:
		c.metrics.Inc(MetricRefreshRotated)
		c.emit(ctx, AuditEvent{
			EventType:   EventRefreshRotated,
			Severity:    SeverityInfo,
			PrincipalID: result.PrincipalID,
			Success:     true,
			Metadata:    map[string]string{"token_id": result.TokenID},
		})
		return &RotateResult{
			PrincipalID:  result.PrincipalID,
			TokenID:      result.TokenID,
			RefreshToken: result.RefreshToken,
			AccessToken:  result.AccessToken,
			ExpiresAt:    result.ExpiresAt,
		}, nil

	case flows.RotateFailureReuse:
		c.metrics.Inc(MetricRefreshReuseDetected)
		c.emit(ctx, AuditEvent{
			EventType:   EventRefreshReuse,
			Severity:    SeverityCritical,
			PrincipalID: result.PrincipalID,
			Success:     false,
			Error:       "refresh token reuse detected",
			Metadata: map[string]string{
				"token_id":      result.TokenID,
				"revoked_count": strconv.Itoa(result.RevokedCount),
			},
		})
		return nil, ErrRefreshReuse

	case flows.RotateFailureDecode:
		// Malformed input: no store access happened, nothing to audit.
		c.metrics.Inc(MetricRefreshFailure)
		return nil, ErrRefreshInvalid

	case flows.RotateFailureNotFound, flows.RotateFailureExpired, flows.RotateFailureMismatch:
		c.metrics.Inc(MetricRefreshFailure)
		c.emit(ctx, AuditEvent{
			EventType:   EventRefreshDenied,
			Severity:    SeverityWarn,
			PrincipalID: result.PrincipalID,
			Success:     false,
			Error:       result.Err.Error(),
			Metadata:    map[string]string{"token_id": result.TokenID},
		})
		return nil, ErrRefreshInvalid

	case flows.RotateFailureStore:
		if errors.Is(result.Err, ErrDependencyUnavailable) {
			return nil, result.Err
		}
		c.metrics.Inc(MetricStoreFailure)
		return nil, fmt.Errorf("%w: %v", ErrDependencyUnavailable, result.Err)

	default:
		c.metrics.Inc(MetricRefreshFailure)
		return nil, result.Err
	}
}

// RevokeAllRefreshTokens marks every unused token for the principal as
// consumed. Used for logout-everywhere and by admin lockout flows.
func (c *Core) RevokeAllRefreshTokens(ctx context.Context, principalID string) (int, error) {
	if c == nil {
		return 0, ErrCoreNotReady
	}
	if principalID == "" {
		return 0, errors.New("principal id is required")
	}

	var revoked int
	err := c.execStore(ctx, func(callCtx context.Context) error {
		var err error
		revoked, err = c.tokens.RevokeAllForPrincipal(callCtx, principalID)
		return err
	})
	if err != nil {
		return 0, err
	}

	c.metrics.Inc(MetricRefreshRevokeAll)
	c.emit(ctx, AuditEvent{
		EventType:   EventRefreshRevokeAll,
		Severity:    SeverityWarn,
		PrincipalID: principalID,
		Success:     true,
		Metadata:    map[string]string{"revoked_count": strconv.Itoa(revoked)},
	})

	return revoked, nil
}

// ActiveRefreshTokenCount reports the principal's outstanding tokens.
func (c *Core) ActiveRefreshTokenCount(ctx context.Context, principalID string) (int, error) {
	if c == nil {
		return 0, ErrCoreNotReady
	}

	var count int
	err := c.execStore(ctx, func(callCtx context.Context) error {
		var err error
		count, err = c.tokens.ActiveTokenCount(callCtx, principalID)
		return err
	})
	return count, err
}

// ActiveRefreshTokenIDs lists the principal's unused, unexpired token
// ids for operational introspection.
func (c *Core) ActiveRefreshTokenIDs(ctx context.Context, principalID string) ([]string, error) {
	if c == nil {
		return nil, ErrCoreNotReady
	}

	var ids []string
	err := c.execStore(ctx, func(callCtx context.Context) error {
		var err error
		ids, err = c.tokens.ActiveTokenIDs(callCtx, principalID)
		return err
	})
	return ids, err
}

func (c *Core) issueAccessForPrincipal(ctx context.Context, principalID string) (string, error) {
	var signed string
	err := c.execStore(ctx, func(callCtx context.Context) error {
		var err error
		signed, err = c.jwtManager.SignAccess(callCtx, jwtClaimsForPrincipal(principalID))
		return err
	})
	if err != nil {
		return "", err
	}
	c.metrics.Inc(MetricAccessSigned)
	return signed, nil
}
