package authcore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/acadly/authcore/jwt"
	"github.com/acadly/authcore/keyring"
)

func jwtClaimsForPrincipal(principalID string) jwt.AccessClaims {
	return jwt.AccessClaims{PrincipalID: principalID}
}

// SignAccessToken mints a short-lived access token under the current
// signing key, generating a first key if the keyring is empty.
func (c *Core) SignAccessToken(ctx context.Context, claims jwt.AccessClaims) (string, error) {
	if c == nil {
		return "", ErrCoreNotReady
	}

	var signed string
	err := c.execStore(ctx, func(callCtx context.Context) error {
		var err error
		signed, err = c.jwtManager.SignAccess(callCtx, claims)
		return err
	})
	if err != nil {
		return "", err
	}

	c.metrics.Inc(MetricAccessSigned)
	return signed, nil
}

// VerifyAccessToken verifies a token against the keyring. Tokens under
// revoked, retired, or unknown keys fail with [ErrTokenInvalid].
func (c *Core) VerifyAccessToken(ctx context.Context, tokenStr string) (*jwt.AccessClaims, error) {
	if c == nil {
		return nil, ErrCoreNotReady
	}

	var claims *jwt.AccessClaims
	err := c.execStore(ctx, func(callCtx context.Context) error {
		var err error
		claims, err = c.jwtManager.ParseAccess(callCtx, tokenStr)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrDependencyUnavailable) {
			return nil, err
		}
		c.metrics.Inc(MetricAccessVerifyFailure)
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	return claims, nil
}

// GenerateSigningKey creates and persists a fresh active Ed25519 key
// without demoting any predecessor. Rotation is the usual path; this is
// for bootstrap and for operators replacing a revoked key immediately.
func (c *Core) GenerateSigningKey(ctx context.Context) (*keyring.Key, error) {
	if c == nil {
		return nil, ErrCoreNotReady
	}

	var key *keyring.Key
	err := c.execStore(ctx, func(callCtx context.Context) error {
		var err error
		key, err = c.keys.Generate(callCtx)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.metrics.Inc(MetricKeyGenerated)
	c.emit(ctx, AuditEvent{
		EventType: EventKeyGenerated,
		Severity:  SeverityInfo,
		Success:   true,
		Metadata:  map[string]string{"key_id": key.KeyID},
	})

	return key, nil
}

// RotateSigningKeys runs one rotation cycle: a new active key, the
// predecessor demoted into its overlap window. Safe to call from
// multiple instances; the loser of the rotation lock gets
// [ErrRotationInProgress].
func (c *Core) RotateSigningKeys(ctx context.Context) (*keyring.RotationResult, error) {
	if c == nil {
		return nil, ErrCoreNotReady
	}

	var result *keyring.RotationResult
	err := c.execStore(ctx, func(callCtx context.Context) error {
		var err error
		result, err = c.keys.Rotate(callCtx)
		return err
	})
	if err != nil {
		if errors.Is(err, keyring.ErrRotationInProgress) {
			return nil, ErrRotationInProgress
		}
		return nil, err
	}

	c.metrics.Inc(MetricKeyGenerated)
	c.metrics.Inc(MetricKeyRotation)
	c.emit(ctx, AuditEvent{
		EventType: EventKeyRotated,
		Severity:  SeverityInfo,
		Success:   true,
		Metadata: map[string]string{
			"new_key_id": result.NewKey.KeyID,
			"demoted":    strings.Join(result.DemotedIDs, ","),
			"deprecated": strings.Join(result.DeprecatedIDs, ","),
		},
	})

	return result, nil
}

// RevokeSigningKey takes a key out of service immediately. Tokens signed
// under it stop verifying at once.
func (c *Core) RevokeSigningKey(ctx context.Context, keyID, reason string) error {
	if c == nil {
		return ErrCoreNotReady
	}
	if keyID == "" {
		return errors.New("key id is required")
	}

	err := c.execStore(ctx, func(callCtx context.Context) error {
		return c.keys.Revoke(callCtx, keyID)
	})
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return ErrKeyNotFound
		}
		return err
	}

	c.metrics.Inc(MetricKeyRevoked)
	c.emit(ctx, AuditEvent{
		EventType: EventKeyRevoked,
		Severity:  SeverityCritical,
		Success:   true,
		Metadata: map[string]string{
			"key_id": keyID,
			"reason": reason,
		},
	})

	return nil
}

// SweepSigningKeys deprecates keys whose validity lapsed and garbage
// collects terminal keys past their retention period.
func (c *Core) SweepSigningKeys(ctx context.Context) (deprecated, deleted []string, err error) {
	if c == nil {
		return nil, nil, ErrCoreNotReady
	}

	err = c.execStore(ctx, func(callCtx context.Context) error {
		var sweepErr error
		deprecated, deleted, sweepErr = c.keys.Sweep(callCtx)
		return sweepErr
	})
	if err != nil {
		return nil, nil, err
	}

	c.metrics.Inc(MetricKeySweep)
	if len(deprecated) > 0 || len(deleted) > 0 {
		c.emit(ctx, AuditEvent{
			EventType: EventKeySwept,
			Severity:  SeverityInfo,
			Success:   true,
			Metadata: map[string]string{
				"deprecated": strings.Join(deprecated, ","),
				"deleted":    strings.Join(deleted, ","),
			},
		})
	}

	return deprecated, deleted, nil
}

// SigningKeyUsage reports how many tokens a key has signed and when it
// last signed one.
func (c *Core) SigningKeyUsage(ctx context.Context, keyID string) (int64, time.Time, error) {
	if c == nil {
		return 0, time.Time{}, ErrCoreNotReady
	}

	var (
		count    int64
		lastUsed time.Time
	)
	err := c.execStore(ctx, func(callCtx context.Context) error {
		var err error
		count, lastUsed, err = c.keys.Usage(callCtx, keyID)
		return err
	})
	return count, lastUsed, err
}

// StartKeyRotation launches the in-process rotation scheduler and
// returns a stop function. Each tick rotates and sweeps; failures are
// logged and never crash the process. Losing the cross-instance rotation
// lock is a normal outcome, not an error.
func (c *Core) StartKeyRotation() (stop func()) {
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(c.config.Keys.RotationInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.runRotationCycle()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

func (c *Core) runRotationCycle() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("authcore: key rotation cycle panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := c.RotateSigningKeys(ctx); err != nil && !errors.Is(err, ErrRotationInProgress) {
		log.Printf("authcore: scheduled key rotation failed: %v", err)
	}
	if _, _, err := c.SweepSigningKeys(ctx); err != nil {
		log.Printf("authcore: key sweep failed: %v", err)
	}
}
