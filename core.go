package authcore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/acadly/authcore/breaker"
	"github.com/acadly/authcore/challenge"
	"github.com/acadly/authcore/jwt"
	"github.com/acadly/authcore/keyring"
	"github.com/acadly/authcore/password"
	"github.com/acadly/authcore/privilege"
	"github.com/acadly/authcore/token"
)

// Core is the credential and session security engine. Construct it with
// [New]; all methods are safe for concurrent use.
type Core struct {
	config Config
	redis  redis.UniversalClient

	tokens     *token.Store
	keys       *keyring.Manager
	jwtManager *jwt.Manager
	challenges *challenge.Manager
	hierarchy  *privilege.Hierarchy
	hasher     *password.Hasher

	storeBreaker *breaker.Breaker
	audit        *auditDispatcher
	metrics      *Metrics

	closeOnce sync.Once
}

// Close stops background machinery and drains buffered audit events.
func (c *Core) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		c.audit.Close()
	})
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (c *Core) MetricsSnapshot() MetricsSnapshot {
	if c == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}, Histograms: map[MetricID][]uint64{}}
	}
	return c.metrics.Snapshot()
}

// AuditDropped reports events shed by the dispatcher under backpressure.
func (c *Core) AuditDropped() uint64 {
	if c == nil {
		return 0
	}
	return c.audit.Dropped()
}

// BreakerStats reports circuit breaker state; ok is false when the
// breaker is disabled.
func (c *Core) BreakerStats() (breaker.Stats, bool) {
	if c == nil || c.storeBreaker == nil {
		return breaker.Stats{}, false
	}
	return c.storeBreaker.Stats(), true
}

// Hierarchy exposes the immutable role hierarchy for read-only callers.
func (c *Core) Hierarchy() *privilege.Hierarchy {
	if c == nil {
		return nil
	}
	return c.hierarchy
}

// Health pings the credential store through the breaker and reports
// dependency status.
func (c *Core) Health(ctx context.Context) (*HealthReport, error) {
	if c == nil {
		return nil, ErrCoreNotReady
	}

	report := &HealthReport{AuditDropped: c.audit.Dropped()}
	if c.storeBreaker != nil {
		stats := c.storeBreaker.Stats()
		report.Breaker = &stats
	}

	err := c.execStore(ctx, func(callCtx context.Context) error {
		latency, err := c.tokens.Ping(callCtx)
		report.RedisLatency = latency
		return err
	})
	if err != nil {
		return report, err
	}

	return report, nil
}

// execStore routes a store operation through the circuit breaker. Domain
// outcomes (denials, reuse, mismatches) are not dependency failures and
// pass through without feeding the breaker's failure count.
func (c *Core) execStore(ctx context.Context, op func(context.Context) error) error {
	if c.storeBreaker == nil {
		err := op(ctx)
		if err != nil && isDependencyFailure(err) {
			c.metrics.Inc(MetricStoreFailure)
			return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
		}
		return err
	}

	var domainErr error
	err := c.storeBreaker.Execute(ctx, func(callCtx context.Context) error {
		if opErr := op(callCtx); opErr != nil {
			if isDependencyFailure(opErr) {
				return opErr
			}
			domainErr = opErr
		}
		return nil
	})

	switch {
	case err == nil:
		return domainErr
	case errors.Is(err, breaker.ErrCircuitOpen):
		c.metrics.Inc(MetricBreakerOpen)
		return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		c.metrics.Inc(MetricStoreFailure)
		return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}
}

func isDependencyFailure(err error) bool {
	return errors.Is(err, token.ErrStoreUnavailable) ||
		errors.Is(err, keyring.ErrStoreUnavailable) ||
		errors.Is(err, challenge.ErrStoreUnavailable)
}

func (c *Core) emit(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	c.audit.Emit(ctx, event)
}
