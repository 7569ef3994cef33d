package keyring

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ErrKeyRevoked is returned when a lookup resolves to a revoked key. A
// revoked key never verifies, regardless of expiry.
var ErrKeyRevoked = errors.New("signing key revoked")

// ErrKeyNotValid is returned when a key exists but is deprecated or expired
// and therefore outside the verification set.
var ErrKeyNotValid = errors.New("signing key not valid for verification")

// ErrRotationInProgress is returned when another instance holds the
// rotation lock. Rotation is idempotent within the overlap window, so the
// loser simply skips the cycle.
var ErrRotationInProgress = errors.New("key rotation already in progress")

const rotationLockTTL = 30 * time.Second

// Config tunes the key lifecycle.
type Config struct {
	// RotationInterval is the signing lifetime of a fresh key.
	RotationInterval time.Duration
	// OverlapWindow is how long a demoted key remains valid for
	// verification after rotation.
	OverlapWindow time.Duration
	// MaxActiveKeys bounds the number of concurrently non-deprecated keys.
	MaxActiveKeys int
	// RetentionPeriod is how long terminal keys are kept before garbage
	// collection.
	RetentionPeriod time.Duration
	// Clock overrides the time source. Nil means time.Now.
	Clock func() time.Time
}

// RotationResult reports what one rotation cycle did.
type RotationResult struct {
	NewKey        *Key
	DemotedIDs    []string
	DeprecatedIDs []string
}

// Manager owns the signing-key lifecycle: generation, rotation with
// overlapping validity, emergency revocation, and garbage collection.
type Manager struct {
	store *Store
	cfg   Config
	now   func() time.Time
}

// NewManager creates a key lifecycle [Manager].
func NewManager(store *Store, cfg Config) (*Manager, error) {
	if cfg.RotationInterval <= 0 {
		return nil, errors.New("rotation interval must be positive")
	}
	if cfg.OverlapWindow <= 0 || cfg.OverlapWindow >= cfg.RotationInterval {
		return nil, errors.New("overlap window must be positive and shorter than the rotation interval")
	}
	if cfg.MaxActiveKeys < 2 {
		return nil, errors.New("max active keys must allow at least one overlap key")
	}
	if cfg.RetentionPeriod <= 0 {
		return nil, errors.New("retention period must be positive")
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &Manager{store: store, cfg: cfg, now: now}, nil
}

// Generate creates, persists, and indexes a fresh active key pair.
func (m *Manager) Generate(ctx context.Context) (*Key, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	now := m.now()
	key := &Key{
		KeyID:     uuid.NewString(),
		Algorithm: AlgorithmEd25519,
		Status:    StatusActive,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(m.cfg.RotationInterval).Unix(),
		public:    public,
		private:   private,
	}

	backstop := m.cfg.RotationInterval + m.cfg.OverlapWindow + m.cfg.RetentionPeriod
	if err := m.store.Save(ctx, key, backstop); err != nil {
		return nil, err
	}

	return key, nil
}

// CurrentSigningKey returns the most recently created active, unexpired
// key, generating one if the keyring is empty (self-healing bootstrap).
// The key's usage counter is incremented as a side effect.
func (m *Manager) CurrentSigningKey(ctx context.Context) (*Key, error) {
	keys, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now().Unix()
	var current *Key
	for _, key := range keys {
		if key.Status != StatusActive || key.ExpiresAt <= now {
			continue
		}
		if current == nil || key.CreatedAt > current.CreatedAt {
			current = key
		}
	}

	if current == nil {
		current, err = m.Generate(ctx)
		if err != nil {
			return nil, err
		}
	}

	if err := m.store.IncrementUsage(ctx, current.KeyID); err != nil {
		return nil, err
	}

	return current, nil
}

// VerificationKeys returns every active or rotating unexpired key. Multiple
// keys are valid simultaneously so tokens signed just before a rotation
// still verify through the overlap window.
func (m *Manager) VerificationKeys(ctx context.Context) ([]*Key, error) {
	keys, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now().Unix()
	valid := make([]*Key, 0, len(keys))
	for _, key := range keys {
		if (key.Status == StatusActive || key.Status == StatusRotating) && key.ExpiresAt > now {
			valid = append(valid, key)
		}
	}

	return valid, nil
}

// KeyByID resolves a key for verification. Revoked and absent keys fail
// regardless of expiry; deprecated and expired keys fail with
// [ErrKeyNotValid].
func (m *Manager) KeyByID(ctx context.Context, keyID string) (*Key, error) {
	key, err := m.store.Get(ctx, keyID)
	if err != nil {
		return nil, err
	}

	switch {
	case key.Status == StatusRevoked:
		return nil, ErrKeyRevoked
	case key.Status == StatusDeprecated:
		return nil, ErrKeyNotValid
	case key.ExpiresAt <= m.now().Unix():
		return nil, ErrKeyNotValid
	}

	return key, nil
}

// Rotate generates a fresh signing key and demotes its predecessors: the
// newest MaxActiveKeys-1 previous keys become rotating with expiry
// now+overlap, anything older is deprecated outright so the verification
// set never exceeds MaxActiveKeys.
func (m *Manager) Rotate(ctx context.Context) (*RotationResult, error) {
	acquired, err := m.store.AcquireRotationLock(ctx, rotationLockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrRotationInProgress
	}
	defer func() { _ = m.store.ReleaseRotationLock(ctx) }()

	newKey, err := m.Generate(ctx)
	if err != nil {
		return nil, err
	}

	keys, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now()
	nowUnix := now.Unix()
	overlapExpiry := now.Add(m.cfg.OverlapWindow).Unix()

	valid := make([]*Key, 0, len(keys))
	for _, key := range keys {
		if (key.Status == StatusActive || key.Status == StatusRotating) && key.ExpiresAt > nowUnix {
			valid = append(valid, key)
		}
	}
	sort.Slice(valid, func(i, j int) bool {
		return valid[i].CreatedAt > valid[j].CreatedAt
	})

	result := &RotationResult{NewKey: newKey}
	for i, key := range valid {
		if key.KeyID == newKey.KeyID {
			continue
		}

		switch {
		case i >= m.cfg.MaxActiveKeys:
			key.Status = StatusDeprecated
			if err := m.store.Update(ctx, key); err != nil {
				return result, err
			}
			result.DeprecatedIDs = append(result.DeprecatedIDs, key.KeyID)
		case key.Status == StatusActive:
			key.Status = StatusRotating
			key.ExpiresAt = overlapExpiry
			if err := m.store.Update(ctx, key); err != nil {
				return result, err
			}
			result.DemotedIDs = append(result.DemotedIDs, key.KeyID)
		}
	}

	return result, nil
}

// Revoke immediately marks a key revoked. The record is retained until
// garbage collection so audit trails can resolve the id, but the key never
// verifies again.
func (m *Manager) Revoke(ctx context.Context, keyID string) error {
	key, err := m.store.Get(ctx, keyID)
	if err != nil {
		return err
	}
	if key.Status == StatusRevoked {
		return nil
	}

	key.Status = StatusRevoked
	return m.store.Update(ctx, key)
}

// Sweep advances scheduled transitions: rotating or active keys past their
// expiry become deprecated, and terminal keys past expiry plus retention
// are deleted.
func (m *Manager) Sweep(ctx context.Context) (deprecated []string, deleted []string, err error) {
	keys, err := m.store.List(ctx)
	if err != nil {
		return nil, nil, err
	}

	nowUnix := m.now().Unix()
	for _, key := range keys {
		switch key.Status {
		case StatusActive, StatusRotating:
			if key.ExpiresAt <= nowUnix {
				key.Status = StatusDeprecated
				if err := m.store.Update(ctx, key); err != nil {
					return deprecated, deleted, err
				}
				deprecated = append(deprecated, key.KeyID)
			}
		case StatusDeprecated, StatusRevoked:
			if key.ExpiresAt+int64(m.cfg.RetentionPeriod/time.Second) <= nowUnix {
				if err := m.store.Delete(ctx, key.KeyID); err != nil {
					return deprecated, deleted, err
				}
				deleted = append(deleted, key.KeyID)
			}
		}
	}

	return deprecated, deleted, nil
}

// Usage returns the tokens-issued counter and last-used time for a key.
func (m *Manager) Usage(ctx context.Context, keyID string) (int64, time.Time, error) {
	return m.store.Usage(ctx, keyID)
}

// SignerKey hands the current signing key to the token-signing boundary.
// This is the only path that exposes private key material.
func (m *Manager) SignerKey(ctx context.Context) (string, ed25519.PrivateKey, error) {
	key, err := m.CurrentSigningKey(ctx)
	if err != nil {
		return "", nil, err
	}
	return key.KeyID, key.private, nil
}

// VerifierKey resolves the public key for a token's kid header. It fails
// closed for revoked, deprecated, expired, or absent keys.
func (m *Manager) VerifierKey(ctx context.Context, keyID string) (ed25519.PublicKey, error) {
	key, err := m.KeyByID(ctx, keyID)
	if err != nil {
		return nil, err
	}
	return key.Public(), nil
}
