package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/acadly/authcore/challenge"
)

// RequireConfirmation issues a numeric-code challenge gating the named
// operation. The code travels through the notifier, never the return
// value.
func (c *Core) RequireConfirmation(ctx context.Context, principalID, operation string, metadata map[string]string) (string, error) {
	if c == nil {
		return "", ErrCoreNotReady
	}

	var challengeID string
	err := c.execStore(ctx, func(callCtx context.Context) error {
		var err error
		challengeID, err = c.challenges.IssueCode(callCtx, principalID, operation, metadata)
		return err
	})
	if err != nil {
		return "", err
	}

	c.metrics.Inc(MetricChallengeIssued)
	c.emit(ctx, AuditEvent{
		EventType:   EventChallengeIssued,
		Severity:    SeverityInfo,
		PrincipalID: principalID,
		Success:     true,
		Metadata: map[string]string{
			"challenge_id": challengeID,
			"operation":    operation,
		},
	})

	return challengeID, nil
}

// ConfirmOperation burns one verification attempt. Success returns the
// confirmed challenge record; a spent attempt budget is terminal and
// returns [ErrChallengeExhausted].
func (c *Core) ConfirmOperation(ctx context.Context, challengeID, code, principalID string) (*challenge.Record, error) {
	if c == nil {
		return nil, ErrCoreNotReady
	}

	var record *challenge.Record
	err := c.execStore(ctx, func(callCtx context.Context) error {
		var err error
		record, err = c.challenges.VerifyCode(callCtx, challengeID, code, principalID)
		return err
	})

	return c.finishConfirm(ctx, challengeID, principalID, record, err)
}

// IssueConfirmationToken creates an opaque "confirm you meant this"
// token for the operation and returns it to the caller.
func (c *Core) IssueConfirmationToken(ctx context.Context, principalID, operation string, metadata map[string]string) (string, error) {
	if c == nil {
		return "", ErrCoreNotReady
	}

	var tokenValue string
	err := c.execStore(ctx, func(callCtx context.Context) error {
		var err error
		tokenValue, err = c.challenges.IssueToken(callCtx, principalID, operation, metadata)
		return err
	})
	if err != nil {
		return "", err
	}

	c.metrics.Inc(MetricChallengeIssued)
	c.emit(ctx, AuditEvent{
		EventType:   EventChallengeIssued,
		Severity:    SeverityInfo,
		PrincipalID: principalID,
		Success:     true,
		Metadata:    map[string]string{"operation": operation, "kind": "token"},
	})

	return tokenValue, nil
}

// ConsumeConfirmationToken verifies and destroys an opaque confirmation
// token.
func (c *Core) ConsumeConfirmationToken(ctx context.Context, tokenValue, principalID string) (*challenge.Record, error) {
	if c == nil {
		return nil, ErrCoreNotReady
	}

	var record *challenge.Record
	err := c.execStore(ctx, func(callCtx context.Context) error {
		var err error
		record, err = c.challenges.ConsumeToken(callCtx, tokenValue, principalID)
		return err
	})

	return c.finishConfirm(ctx, "", principalID, record, err)
}

// ResetPasswordHash completes an admin-driven password reset: the actor
// must first pass the confirmation challenge issued for
// [OpAdminPasswordReset] naming the target principal. On success every
// refresh token of the target is revoked and the new argon2id hash is
// returned for the caller's user store.
func (c *Core) ResetPasswordHash(ctx context.Context, actorID, challengeID, code, newPassword string) (string, error) {
	if c == nil {
		return "", ErrCoreNotReady
	}

	record, err := c.ConfirmOperation(ctx, challengeID, code, actorID)
	if err != nil {
		return "", err
	}
	if record.Operation != OpAdminPasswordReset {
		return "", fmt.Errorf("%w: challenge gates a different operation", ErrChallengeInvalid)
	}
	targetID := record.Metadata["target"]
	if targetID == "" {
		return "", fmt.Errorf("%w: challenge names no target principal", ErrChallengeInvalid)
	}

	hash, err := c.hasher.Hash(newPassword)
	if err != nil {
		return "", err
	}

	if _, err := c.RevokeAllRefreshTokens(ctx, targetID); err != nil {
		return "", err
	}

	c.emit(ctx, AuditEvent{
		EventType:   EventPasswordReset,
		Severity:    SeverityWarn,
		PrincipalID: targetID,
		ActorID:     actorID,
		Success:     true,
	})

	return hash, nil
}

func (c *Core) finishConfirm(ctx context.Context, challengeID, principalID string, record *challenge.Record, err error) (*challenge.Record, error) {
	switch {
	case err == nil:
		c.metrics.Inc(MetricChallengeVerified)
		c.emit(ctx, AuditEvent{
			EventType:   EventChallengeVerified,
			Severity:    SeverityInfo,
			PrincipalID: principalID,
			Success:     true,
			Metadata: map[string]string{
				"challenge_id": record.ChallengeID,
				"operation":    record.Operation,
			},
		})
		return record, nil

	case errors.Is(err, challenge.ErrAttemptsExhausted):
		c.metrics.Inc(MetricChallengeExhausted)
		c.emit(ctx, AuditEvent{
			EventType:   EventChallengeExhausted,
			Severity:    SeverityCritical,
			PrincipalID: principalID,
			Success:     false,
			Error:       err.Error(),
			Metadata:    map[string]string{"challenge_id": challengeID},
		})
		return nil, ErrChallengeExhausted

	case errors.Is(err, ErrDependencyUnavailable):
		return nil, err

	default:
		c.metrics.Inc(MetricChallengeFailure)
		c.emit(ctx, AuditEvent{
			EventType:   EventChallengeFailed,
			Severity:    SeverityWarn,
			PrincipalID: principalID,
			Success:     false,
			Error:       err.Error(),
			Metadata:    map[string]string{"challenge_id": challengeID},
		})
		return nil, fmt.Errorf("%w: %v", ErrChallengeInvalid, err)
	}
}
