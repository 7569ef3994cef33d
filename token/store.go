package token

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrTokenNotFound is returned when no record exists for the presented id.
var ErrTokenNotFound = errors.New("refresh token not found")

// ErrTokenExpired is returned when the record exists but its expiry passed.
var ErrTokenExpired = errors.New("refresh token expired")

// ErrTokenReused is returned when an already-consumed record is presented
// again. This is a security incident, not a normal failure; callers must
// revoke the principal's remaining tokens.
var ErrTokenReused = errors.New("refresh token reuse detected")

// ErrSecretMismatch is returned when the presented secret does not hash to
// the stored value.
var ErrSecretMismatch = errors.New("refresh secret mismatch")

// ErrTokenCorrupt is returned when a stored record blob cannot be parsed.
var ErrTokenCorrupt = errors.New("refresh token record corrupt")

// ErrStoreUnavailable wraps credential-store failures so callers can
// distinguish "denied" from "dependency down" and fail closed.
var ErrStoreUnavailable = errors.New("token store unavailable")

const (
	consumeStatusNotFound int64 = 0
	consumeStatusExpired  int64 = 1
	consumeStatusReused   int64 = 2
	consumeStatusMismatch int64 = 3
	consumeStatusConsumed int64 = 4
	consumeStatusCorrupt  int64 = 5
)

// consumeScript performs the single-use transition atomically: it verifies
// version, expiry, the unused flag, and the secret hash, then splices the
// consumption timestamp into the record in place. Exactly one caller can
// observe status 4 for a given record.
const consumeScript = `
local function read_be64(s, i)
  local b1 = string.byte(s, i)
  local b2 = string.byte(s, i + 1)
  local b3 = string.byte(s, i + 2)
  local b4 = string.byte(s, i + 3)
  local b5 = string.byte(s, i + 4)
  local b6 = string.byte(s, i + 5)
  local b7 = string.byte(s, i + 6)
  local b8 = string.byte(s, i + 7)
  if not b8 then
    return nil
  end
  return ((((((((b1 * 256) + b2) * 256 + b3) * 256 + b4) * 256 + b5) * 256 + b6) * 256 + b7) * 256 + b8)
end

local record_key = KEYS[1]
local token_id = ARGV[1]
local index_prefix = ARGV[2]
local provided_hash = ARGV[3]
local now_unix = tonumber(ARGV[4])
local used_at_be = ARGV[5]

local data = redis.call("GET", record_key)
if not data then
  return {0}
end

local version = string.byte(data, 1)
if version ~= 1 then
  return {5}
end

local used_at = read_be64(data, 2)
local expires_at = read_be64(data, 18)
if not used_at or not expires_at then
  return {5}
end

local b1 = string.byte(data, 26)
local b2 = string.byte(data, 27)
if not b2 then
  return {5}
end
local principal_len = b1 * 256 + b2
local principal = string.sub(data, 28, 28 + principal_len - 1)
local index_key = index_prefix .. principal

if expires_at <= now_unix then
  redis.call("DEL", record_key)
  redis.call("SREM", index_key, token_id)
  return {1}
end

if used_at ~= 0 then
  return {2, data}
end

local hash = string.sub(data, 28 + principal_len, 28 + principal_len + 31)
if hash ~= provided_hash then
  return {3}
end

local ttl = redis.call("PTTL", record_key)
if ttl <= 0 then
  redis.call("DEL", record_key)
  redis.call("SREM", index_key, token_id)
  return {1}
end

local updated = string.sub(data, 1, 1) .. used_at_be .. string.sub(data, 10)
redis.call("SET", record_key, updated, "PX", ttl)
redis.call("SREM", index_key, token_id)

return {4, updated}
`

var consumeLua = redis.NewScript(consumeScript)

// Store persists refresh-token records in the credential store. Records are
// kept after consumption (until natural expiry) so a replayed token is
// recognized as reuse rather than reported as not-found.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a token [Store]. prefix namespaces every key; the
// default is "rt".
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "rt"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) key(tokenID string) string {
	return s.prefix + ":" + tokenID
}

func (s *Store) indexPrefix() string {
	return s.prefix + ":p:"
}

func (s *Store) indexKey(principalID string) string {
	return s.indexPrefix() + principalID
}

func (s *Store) replayKey(principalID string) string {
	return s.prefix + ":replay:" + principalID
}

// Save persists a new record and adds it to the principal's active index.
func (s *Store) Save(ctx context.Context, record *Record, ttl time.Duration) error {
	encoded, err := Encode(record)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(record.TokenID), encoded, ttl)
		pipe.SAdd(ctx, s.indexKey(record.PrincipalID), record.TokenID)
		pipe.Expire(ctx, s.indexKey(record.PrincipalID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return nil
}

// Consume performs the unused-to-used transition for a presented token.
// On success it returns the consumed record. On reuse it returns both the
// record (so the caller can sweep the owning principal) and [ErrTokenReused].
func (s *Store) Consume(ctx context.Context, tokenID string, providedHash [32]byte) (*Record, error) {
	var usedAt [8]byte
	binary.BigEndian.PutUint64(usedAt[:], uint64(time.Now().Unix()))

	result, err := consumeLua.Run(
		ctx,
		s.redis,
		[]string{s.key(tokenID)},
		tokenID,
		s.indexPrefix(),
		providedHash[:],
		time.Now().Unix(),
		usedAt[:],
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid consume script response", ErrStoreUnavailable)
	}

	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid consume script status", ErrStoreUnavailable)
	}

	switch code {
	case consumeStatusNotFound:
		return nil, ErrTokenNotFound
	case consumeStatusExpired:
		return nil, ErrTokenExpired
	case consumeStatusReused:
		record, decErr := decodeScriptBlob(parts)
		if decErr != nil {
			return nil, decErr
		}
		record.TokenID = tokenID
		return record, ErrTokenReused
	case consumeStatusMismatch:
		return nil, ErrSecretMismatch
	case consumeStatusConsumed:
		record, decErr := decodeScriptBlob(parts)
		if decErr != nil {
			return nil, decErr
		}
		record.TokenID = tokenID
		return record, nil
	case consumeStatusCorrupt:
		return nil, ErrTokenCorrupt
	default:
		return nil, fmt.Errorf("%w: unknown consume script status", ErrStoreUnavailable)
	}
}

func decodeScriptBlob(parts []interface{}) (*Record, error) {
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: missing record payload", ErrStoreUnavailable)
	}

	var blob []byte
	switch v := parts[1].(type) {
	case string:
		blob = []byte(v)
	case []byte:
		blob = v
	default:
		return nil, fmt.Errorf("%w: invalid record payload", ErrStoreUnavailable)
	}

	record, err := Decode(blob)
	if err != nil {
		return nil, ErrTokenCorrupt
	}
	return record, nil
}

// Get fetches a record without mutating it. Expired records report
// [ErrTokenExpired]; the blob is left for the TTL to collect.
func (s *Store) Get(ctx context.Context, tokenID string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.key(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	record, err := Decode(data)
	if err != nil {
		return nil, ErrTokenCorrupt
	}
	record.TokenID = tokenID

	if time.Now().Unix() >= record.ExpiresAt {
		return nil, ErrTokenExpired
	}

	return record, nil
}

// RevokeAllForPrincipal marks every unused record for the principal as used
// and clears the active index. It returns the number of records revoked.
//
// The per-record read-modify-write is not transactional against a
// concurrent Consume; the consume script is the single-use authority, so
// the race collapses to "revoked slightly before or after the rotation",
// both of which preserve the single-use invariant.
func (s *Store) RevokeAllForPrincipal(ctx context.Context, principalID string) (int, error) {
	indexKey := s.indexKey(principalID)

	tokenIDs, err := s.redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	now := time.Now().Unix()
	revoked := 0

	for _, tokenID := range tokenIDs {
		key := s.key(tokenID)

		data, err := s.redis.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return revoked, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}

		record, err := Decode(data)
		if err != nil {
			continue
		}
		if record.Used() || now >= record.ExpiresAt {
			continue
		}

		ttl, err := s.redis.PTTL(ctx, key).Result()
		if err != nil {
			return revoked, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if ttl <= 0 {
			continue
		}

		record.UsedAt = now
		encoded, err := Encode(record)
		if err != nil {
			return revoked, err
		}

		if err := s.redis.Set(ctx, key, encoded, ttl).Err(); err != nil {
			return revoked, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		revoked++
	}

	if err := s.redis.Del(ctx, indexKey).Err(); err != nil {
		return revoked, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return revoked, nil
}

// ActiveTokenIDs returns the unused, unexpired token ids tracked for a
// principal.
func (s *Store) ActiveTokenIDs(ctx context.Context, principalID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.indexKey(principalID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	active := make([]string, 0, len(ids))
	for _, id := range ids {
		record, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrTokenNotFound) || errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrTokenCorrupt) {
				continue
			}
			return nil, err
		}
		if !record.Used() {
			active = append(active, id)
		}
	}

	return active, nil
}

// ActiveTokenCount returns the number of tracked token ids for a principal.
func (s *Store) ActiveTokenCount(ctx context.Context, principalID string) (int, error) {
	count, err := s.redis.SCard(ctx, s.indexKey(principalID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(count), nil
}

// TrackReplayAnomaly increments the reuse-incident counter for a principal.
func (s *Store) TrackReplayAnomaly(ctx context.Context, principalID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	key := s.replayKey(principalID)
	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if count == 1 {
		if err := s.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return nil
}

// Ping returns a point-in-time credential store availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}
