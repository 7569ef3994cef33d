package authcore

import (
	"errors"
	"time"
)

// RefreshConfig tunes opaque refresh token issuance.
type RefreshConfig struct {
	// TTL is the lifetime of each refresh token. It is the sole source of
	// truth for any transport-layer cookie max-age.
	TTL time.Duration

	// EnableReplayTracking records an anomaly counter per principal when
	// reuse is detected, retained for ReplayTrackingTTL.
	EnableReplayTracking bool
	ReplayTrackingTTL    time.Duration
}

// KeysConfig tunes the signing key lifecycle.
type KeysConfig struct {
	RotationInterval time.Duration
	OverlapWindow    time.Duration
	MaxActiveKeys    int
	RetentionPeriod  time.Duration
}

// AccessConfig tunes signed access tokens.
type AccessConfig struct {
	TTL        time.Duration
	Issuer     string
	Audience   string
	Leeway     time.Duration
	RequireIAT bool
}

// ChallengeConfig tunes confirmation challenges.
type ChallengeConfig struct {
	TTL         time.Duration
	MaxAttempts int
	CodeDigits  int
	Channel     string
}

// BreakerConfig tunes the circuit breaker guarding store access.
type BreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	SuccessThreshold int
	RecoveryTimeout  time.Duration
	Window           time.Duration
	CallTimeout      time.Duration
}

// PasswordConfig tunes argon2id hashing for the admin reset flow.
type PasswordConfig struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
}

// AuditConfig tunes the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int

	// DropIfFull sheds events under backpressure instead of blocking the
	// calling operation. Dropped counts are observable.
	DropIfFull bool
}

// MetricsConfig tunes in-process metrics collection.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// Config is the complete core configuration. Construct with
// [DefaultConfig] and override what you need; Build validates the rest.
type Config struct {
	// KeyPrefix namespaces every redis key the core writes.
	KeyPrefix string

	Refresh   RefreshConfig
	Keys      KeysConfig
	Access    AccessConfig
	Challenge ChallengeConfig
	Breaker   BreakerConfig
	Password  PasswordConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

// DefaultConfig returns a runnable baseline: 30 day refresh tokens,
// 15 minute access tokens, daily key rotation with a one hour overlap,
// 5 minute challenges with 3 attempts.
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "authcore",
		Refresh: RefreshConfig{
			TTL:                  30 * 24 * time.Hour,
			EnableReplayTracking: true,
			ReplayTrackingTTL:    24 * time.Hour,
		},
		Keys: KeysConfig{
			RotationInterval: 24 * time.Hour,
			OverlapWindow:    time.Hour,
			MaxActiveKeys:    3,
			RetentionPeriod:  7 * 24 * time.Hour,
		},
		Access: AccessConfig{
			TTL:    15 * time.Minute,
			Leeway: 30 * time.Second,
		},
		Challenge: ChallengeConfig{
			TTL:         5 * time.Minute,
			MaxAttempts: 3,
			CodeDigits:  6,
			Channel:     "primary",
		},
		Breaker: BreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			SuccessThreshold: 2,
			RecoveryTimeout:  30 * time.Second,
			Window:           time.Minute,
			CallTimeout:      5 * time.Second,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	// All fields are scalars; a value copy is a deep copy.
	return cfg
}

// Validate checks cross-field constraints that the sub-package
// constructors cannot see.
func (c *Config) Validate() error {
	if c.KeyPrefix == "" {
		return errors.New("key prefix must not be empty")
	}
	if c.Refresh.TTL <= 0 {
		return errors.New("refresh TTL must be positive")
	}
	if c.Refresh.EnableReplayTracking && c.Refresh.ReplayTrackingTTL <= 0 {
		return errors.New("replay tracking TTL must be positive when tracking is enabled")
	}
	if c.Access.TTL <= 0 {
		return errors.New("access TTL must be positive")
	}
	if c.Access.TTL >= c.Refresh.TTL {
		return errors.New("access TTL must be shorter than refresh TTL")
	}
	if c.Keys.OverlapWindow < c.Access.TTL {
		return errors.New("key overlap window must cover the access TTL")
	}
	if c.Challenge.TTL <= 0 {
		return errors.New("challenge TTL must be positive")
	}

	return nil
}
