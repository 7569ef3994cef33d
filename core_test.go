package authcore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/acadly/authcore/breaker"
	"github.com/acadly/authcore/challenge"
)

type testNotifier struct {
	codes chan string
}

func (n *testNotifier) DeliverCode(_ context.Context, _, code, _ string) error {
	n.codes <- code
	return nil
}

func (n *testNotifier) wait(t *testing.T) string {
	t.Helper()
	select {
	case code := <-n.codes:
		return code
	case <-time.After(2 * time.Second):
		t.Fatal("challenge code was never delivered")
		return ""
	}
}

type testHarness struct {
	core     *Core
	redis    *miniredis.Miniredis
	sink     *ChannelSink
	notifier *testNotifier
}

func newTestCore(t *testing.T, mutate func(*Config)) *testHarness {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := DefaultConfig()
	cfg.Refresh.TTL = time.Hour
	cfg.Access.TTL = 5 * time.Minute
	cfg.Keys.OverlapWindow = 10 * time.Minute
	if mutate != nil {
		mutate(&cfg)
	}

	sink := NewChannelSink(64)
	notifier := &testNotifier{codes: make(chan string, 4)}

	core, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAuditSink(sink).
		WithNotifier(notifier).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(core.Close)

	return &testHarness{core: core, redis: mr, sink: sink, notifier: notifier}
}

func (h *testHarness) waitEvent(t *testing.T, eventType string) AuditEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-h.sink.Events():
			if event.EventType == eventType {
				return event
			}
		case <-deadline:
			t.Fatalf("audit event %q never arrived", eventType)
			return AuditEvent{}
		}
	}
}

func TestRefreshRotationLifecycle(t *testing.T) {
	h := newTestCore(t, nil)
	ctx := context.Background()

	grant, err := h.core.IssueRefreshToken(ctx, "u1")
	if err != nil {
		t.Fatalf("IssueRefreshToken failed: %v", err)
	}
	if grant.RefreshToken == "" || !grant.ExpiresAt.After(time.Now()) {
		t.Fatalf("bad grant: %+v", grant)
	}

	rotated, err := h.core.RotateRefreshToken(ctx, grant.RefreshToken)
	if err != nil {
		t.Fatalf("RotateRefreshToken failed: %v", err)
	}
	if rotated.PrincipalID != "u1" {
		t.Fatalf("wrong principal: %s", rotated.PrincipalID)
	}
	if rotated.RefreshToken == grant.RefreshToken {
		t.Fatal("rotation must mint a new token value")
	}

	// The access token minted during rotation verifies.
	claims, err := h.core.VerifyAccessToken(ctx, rotated.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccessToken failed: %v", err)
	}
	if claims.PrincipalID != "u1" {
		t.Fatalf("wrong access claims: %+v", claims)
	}

	// Replaying the consumed token is a security incident.
	if _, err := h.core.RotateRefreshToken(ctx, grant.RefreshToken); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected ErrRefreshReuse, got %v", err)
	}
	event := h.waitEvent(t, EventRefreshReuse)
	if event.Severity != SeverityCritical || event.PrincipalID != "u1" {
		t.Fatalf("unexpected reuse event: %+v", event)
	}

	// Mass revocation caught the replacement token too.
	if _, err := h.core.RotateRefreshToken(ctx, rotated.RefreshToken); err == nil {
		t.Fatal("revoked token must not rotate")
	}

	if h.core.MetricsSnapshot().Counters[MetricRefreshReuseDetected] == 0 {
		t.Fatal("reuse metric not recorded")
	}
}

func TestRotateMalformedToken(t *testing.T) {
	h := newTestCore(t, nil)

	if _, err := h.core.RotateRefreshToken(context.Background(), "not-a-token"); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid, got %v", err)
	}
}

func TestRevokeAllRefreshTokens(t *testing.T) {
	h := newTestCore(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := h.core.IssueRefreshToken(ctx, "u1"); err != nil {
			t.Fatalf("IssueRefreshToken failed: %v", err)
		}
	}

	count, err := h.core.ActiveRefreshTokenCount(ctx, "u1")
	if err != nil || count != 3 {
		t.Fatalf("expected 3 active tokens, got %d err=%v", count, err)
	}

	revoked, err := h.core.RevokeAllRefreshTokens(ctx, "u1")
	if err != nil {
		t.Fatalf("RevokeAllRefreshTokens failed: %v", err)
	}
	if revoked != 3 {
		t.Fatalf("expected 3 revoked, got %d", revoked)
	}

	count, err = h.core.ActiveRefreshTokenCount(ctx, "u1")
	if err != nil || count != 0 {
		t.Fatalf("expected 0 active tokens after revocation, got %d err=%v", count, err)
	}
}

func TestSigningKeyRevocationInvalidatesTokens(t *testing.T) {
	h := newTestCore(t, nil)
	ctx := context.Background()

	result, err := h.core.RotateSigningKeys(ctx)
	if err != nil {
		t.Fatalf("RotateSigningKeys failed: %v", err)
	}

	signed, err := h.core.SignAccessToken(ctx, jwtClaimsForPrincipal("u1"))
	if err != nil {
		t.Fatalf("SignAccessToken failed: %v", err)
	}
	if _, err := h.core.VerifyAccessToken(ctx, signed); err != nil {
		t.Fatalf("VerifyAccessToken failed: %v", err)
	}

	if err := h.core.RevokeSigningKey(ctx, result.NewKey.KeyID, "suspected compromise"); err != nil {
		t.Fatalf("RevokeSigningKey failed: %v", err)
	}
	if _, err := h.core.VerifyAccessToken(ctx, signed); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid after key revocation, got %v", err)
	}

	event := h.waitEvent(t, EventKeyRevoked)
	if event.Severity != SeverityCritical || event.Metadata["reason"] != "suspected compromise" {
		t.Fatalf("unexpected revocation event: %+v", event)
	}
}

func TestConfirmationChallengeThroughCore(t *testing.T) {
	h := newTestCore(t, nil)
	ctx := context.Background()

	challengeID, err := h.core.RequireConfirmation(ctx, "admin1", "bulk_delete", nil)
	if err != nil {
		t.Fatalf("RequireConfirmation failed: %v", err)
	}
	code := h.notifier.wait(t)

	for i := 0; i < 3; i++ {
		if _, err := h.core.ConfirmOperation(ctx, challengeID, "0000000", "admin1"); !errors.Is(err, ErrChallengeInvalid) {
			t.Fatalf("attempt %d: expected ErrChallengeInvalid, got %v", i, err)
		}
	}

	if _, err := h.core.ConfirmOperation(ctx, challengeID, code, "admin1"); !errors.Is(err, ErrChallengeExhausted) {
		t.Fatalf("expected ErrChallengeExhausted, got %v", err)
	}

	event := h.waitEvent(t, EventChallengeExhausted)
	if event.Severity != SeverityCritical {
		t.Fatalf("exhaustion must audit critical, got %s", event.Severity)
	}
}

func TestAdminPasswordReset(t *testing.T) {
	h := newTestCore(t, nil)
	ctx := context.Background()

	if _, err := h.core.IssueRefreshToken(ctx, "u2"); err != nil {
		t.Fatalf("IssueRefreshToken failed: %v", err)
	}

	challengeID, err := h.core.RequireConfirmation(ctx, "admin1", OpAdminPasswordReset, map[string]string{"target": "u2"})
	if err != nil {
		t.Fatalf("RequireConfirmation failed: %v", err)
	}
	code := h.notifier.wait(t)

	hash, err := h.core.ResetPasswordHash(ctx, "admin1", challengeID, code, "brand-new-password-1")
	if err != nil {
		t.Fatalf("ResetPasswordHash failed: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("unexpected hash format: %s", hash)
	}

	// The target's sessions were revoked as part of the reset.
	count, err := h.core.ActiveRefreshTokenCount(ctx, "u2")
	if err != nil || count != 0 {
		t.Fatalf("expected 0 active tokens for target, got %d err=%v", count, err)
	}
}

func TestPrivilegeDenialAudited(t *testing.T) {
	h := newTestCore(t, nil)
	ctx := context.Background()

	decision := h.core.CanAssignRoles(ctx, "a1", []string{"HOD"}, []string{"DEPT_ADMIN"})
	if decision.Allowed {
		t.Fatal("peer-rank assignment must be denied")
	}
	if !strings.Contains(decision.Reason, "equal or higher privilege level") {
		t.Fatalf("unexpected reason: %q", decision.Reason)
	}

	event := h.waitEvent(t, EventEscalationDenied)
	if event.ActorID != "a1" || event.Metadata["attempted_roles"] != "DEPT_ADMIN" {
		t.Fatalf("unexpected denial event: %+v", event)
	}

	// Legacy alias translates at the boundary; the grant itself is fine.
	if decision := h.core.CanAssignRoles(ctx, "a1", []string{"HOD"}, []string{"STUDENT"}); !decision.Allowed {
		t.Fatalf("expected allowed, got %q", decision.Reason)
	}
}

func TestBreakerFailsFastWhenStoreIsDown(t *testing.T) {
	h := newTestCore(t, func(cfg *Config) {
		cfg.Breaker.FailureThreshold = 1
		cfg.Breaker.CallTimeout = time.Second
	})
	ctx := context.Background()

	h.redis.Close()

	if _, err := h.core.IssueRefreshToken(ctx, "u1"); !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("expected ErrDependencyUnavailable, got %v", err)
	}

	// The breaker is open now; calls fail fast without touching the store.
	if _, err := h.core.IssueRefreshToken(ctx, "u1"); !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("expected ErrDependencyUnavailable, got %v", err)
	}
	stats, ok := h.core.BreakerStats()
	if !ok || stats.State != breaker.StateOpen {
		t.Fatalf("expected open breaker, got ok=%v state=%v", ok, stats.State)
	}
}

func TestDomainDenialsDoNotTripBreaker(t *testing.T) {
	h := newTestCore(t, func(cfg *Config) {
		cfg.Breaker.FailureThreshold = 2
	})
	ctx := context.Background()

	grant, err := h.core.IssueRefreshToken(ctx, "u1")
	if err != nil {
		t.Fatalf("IssueRefreshToken failed: %v", err)
	}
	if _, err := h.core.RotateRefreshToken(ctx, grant.RefreshToken); err != nil {
		t.Fatalf("RotateRefreshToken failed: %v", err)
	}

	// Repeated denials are domain outcomes, not dependency failures.
	for i := 0; i < 5; i++ {
		if _, err := h.core.RotateRefreshToken(ctx, grant.RefreshToken); !errors.Is(err, ErrRefreshReuse) {
			t.Fatalf("expected ErrRefreshReuse, got %v", err)
		}
	}

	stats, ok := h.core.BreakerStats()
	if !ok || stats.State != breaker.StateClosed {
		t.Fatalf("denials must not open the breaker, got state=%v", stats.State)
	}
}

func TestHealthReport(t *testing.T) {
	h := newTestCore(t, nil)

	report, err := h.core.Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if report.Breaker == nil || report.Breaker.State != breaker.StateClosed {
		t.Fatalf("unexpected breaker state: %+v", report.Breaker)
	}
}

func TestConfigValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Access.TTL = cfg.Refresh.TTL
	if err := cfg.Validate(); err == nil {
		t.Fatal("access TTL >= refresh TTL must be rejected")
	}

	cfg = DefaultConfig()
	cfg.Keys.OverlapWindow = time.Minute
	cfg.Access.TTL = 15 * time.Minute
	if err := cfg.Validate(); err == nil {
		t.Fatal("overlap window shorter than access TTL must be rejected")
	}

	cfg = DefaultConfig()
	cfg.KeyPrefix = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty key prefix must be rejected")
	}
}

func TestBuilderIsSingleUse(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	b := New().WithRedis(rdb)
	core, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(core.Close)

	if _, err := b.Build(); err == nil {
		t.Fatal("second Build must fail")
	}
}

var _ challenge.Notifier = (*testNotifier)(nil)
