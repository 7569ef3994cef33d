package authcore

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/acadly/authcore/breaker"
	"github.com/acadly/authcore/challenge"
	"github.com/acadly/authcore/jwt"
	"github.com/acadly/authcore/keyring"
	"github.com/acadly/authcore/password"
	"github.com/acadly/authcore/privilege"
	"github.com/acadly/authcore/token"
)

// Builder assembles a [Core]. A builder is single-use.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	auditSink AuditSink
	notifier  challenge.Notifier
	hierarchy *privilege.Hierarchy

	built bool
}

// New starts a builder with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithNotifier installs the out-of-band delivery channel for challenge
// codes. Without one, code challenges are issued but never delivered.
func (b *Builder) WithNotifier(n challenge.Notifier) *Builder {
	b.notifier = n
	return b
}

// WithHierarchy replaces the built-in institutional role hierarchy.
func (b *Builder) WithHierarchy(h *privilege.Hierarchy) *Builder {
	b.hierarchy = h
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires every component, and returns
// a ready Core.
func (b *Builder) Build() (*Core, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hierarchy := b.hierarchy
	if hierarchy == nil {
		hierarchy = privilege.NewDefaultHierarchy()
	}

	core := &Core{
		config:    cfg,
		redis:     b.redis,
		hierarchy: hierarchy,
		tokens:    token.NewStore(b.redis, cfg.KeyPrefix+":rt"),
	}

	keys, err := keyring.NewManager(
		keyring.NewStore(b.redis, cfg.KeyPrefix+":sk"),
		keyring.Config{
			RotationInterval: cfg.Keys.RotationInterval,
			OverlapWindow:    cfg.Keys.OverlapWindow,
			MaxActiveKeys:    cfg.Keys.MaxActiveKeys,
			RetentionPeriod:  cfg.Keys.RetentionPeriod,
		},
	)
	if err != nil {
		return nil, err
	}
	core.keys = keys

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:  cfg.Access.TTL,
		Issuer:     cfg.Access.Issuer,
		Audience:   cfg.Access.Audience,
		Leeway:     cfg.Access.Leeway,
		RequireIAT: cfg.Access.RequireIAT,
	}, keys)
	if err != nil {
		return nil, err
	}
	core.jwtManager = jm

	challenges, err := challenge.NewManager(
		challenge.NewStore(b.redis, cfg.KeyPrefix+":cc"),
		b.notifier,
		challenge.Config{
			TTL:         cfg.Challenge.TTL,
			MaxAttempts: cfg.Challenge.MaxAttempts,
			CodeDigits:  cfg.Challenge.CodeDigits,
			Channel:     cfg.Challenge.Channel,
		},
	)
	if err != nil {
		return nil, err
	}
	core.challenges = challenges

	hasher, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}
	core.hasher = hasher

	if cfg.Breaker.Enabled {
		brk, err := breaker.New(breaker.Config{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			SuccessThreshold: cfg.Breaker.SuccessThreshold,
			RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
			Window:           cfg.Breaker.Window,
			CallTimeout:      cfg.Breaker.CallTimeout,
		})
		if err != nil {
			return nil, err
		}
		core.storeBreaker = brk
	}

	core.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	core.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return core, nil
}
