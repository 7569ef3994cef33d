package keyring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrKeyNotFound is returned when no key record exists for the id.
var ErrKeyNotFound = errors.New("signing key not found")

// ErrStoreUnavailable wraps credential-store failures so callers can fail
// closed instead of misreading an outage as a missing key.
var ErrStoreUnavailable = errors.New("keyring store unavailable")

// Store persists signing key records. Records carry no TTL of their own;
// the manager garbage-collects them after the retention period, with a
// generous redis expiry as a backstop against leaked records.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a keyring [Store]. prefix namespaces every key; the
// default is "sk".
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "sk"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) recordKey(keyID string) string {
	return s.prefix + ":key:" + keyID
}

func (s *Store) indexKey() string {
	return s.prefix + ":index"
}

func (s *Store) usageKey(keyID string) string {
	return s.prefix + ":usage:" + keyID
}

func (s *Store) lastUsedKey(keyID string) string {
	return s.prefix + ":lastused:" + keyID
}

func (s *Store) lockKey() string {
	return s.prefix + ":rotate:lock"
}

// Save persists a key record and indexes it by creation time.
func (s *Store) Save(ctx context.Context, key *Key, backstopTTL time.Duration) error {
	encoded, err := encodeKey(key)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(key.KeyID), encoded, backstopTTL)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(key.CreatedAt), Member: key.KeyID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return nil
}

// Get fetches a single key record by id.
func (s *Store) Get(ctx context.Context, keyID string) (*Key, error) {
	data, err := s.redis.Get(ctx, s.recordKey(keyID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	key, err := decodeKey(data)
	if err != nil {
		return nil, err
	}
	return key, nil
}

// List returns every indexed key record ordered oldest first. Index entries
// whose record has vanished are pruned as a side effect.
func (s *Store) List(ctx context.Context) ([]*Key, error) {
	ids, err := s.redis.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Key{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	keys := make([]*Key, 0, len(ids))
	for _, id := range ids {
		key, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrKeyNotFound) {
				_ = s.redis.ZRem(ctx, s.indexKey(), id).Err()
				continue
			}
			return nil, err
		}
		keys = append(keys, key)
	}

	return keys, nil
}

// Update rewrites an existing record in place, preserving its backstop TTL.
func (s *Store) Update(ctx context.Context, key *Key) error {
	encoded, err := encodeKey(key)
	if err != nil {
		return err
	}

	ttl, err := s.redis.PTTL(ctx, s.recordKey(key.KeyID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if ttl < 0 {
		ttl = 0
	}

	if err := s.redis.Set(ctx, s.recordKey(key.KeyID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Delete removes a key record, its index entry, and its usage counters.
func (s *Store) Delete(ctx context.Context, keyID string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.recordKey(keyID))
		pipe.ZRem(ctx, s.indexKey(), keyID)
		pipe.Del(ctx, s.usageKey(keyID))
		pipe.Del(ctx, s.lastUsedKey(keyID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// IncrementUsage bumps the tokens-issued counter and the last-used marker
// for a key. Counter updates are atomic store increments, never
// read-modify-write on the record blob.
func (s *Store) IncrementUsage(ctx context.Context, keyID string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, s.usageKey(keyID))
		pipe.Set(ctx, s.lastUsedKey(keyID), time.Now().Unix(), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Usage returns the tokens-issued count and last-used time for a key.
func (s *Store) Usage(ctx context.Context, keyID string) (int64, time.Time, error) {
	count, err := s.redis.Get(ctx, s.usageKey(keyID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, time.Time{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	lastUsed, err := s.redis.Get(ctx, s.lastUsedKey(keyID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return count, time.Time{}, nil
		}
		return 0, time.Time{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return count, time.Unix(lastUsed, 0), nil
}

// AcquireRotationLock takes the short-lived rotation lock. It returns false
// when another instance is already rotating; rotation within the overlap
// window is idempotent, so losers simply skip the cycle.
func (s *Store) AcquireRotationLock(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := s.redis.SetNX(ctx, s.lockKey(), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ok, nil
}

// ReleaseRotationLock drops the rotation lock early.
func (s *Store) ReleaseRotationLock(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.lockKey()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
