package token

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewStore(rdb, "rt"), mr
}

func testSecretHash(b byte) [32]byte {
	return sha256.Sum256([]byte{b})
}

func makeRecord(tokenID, principalID string, hash [32]byte, expiresIn time.Duration) *Record {
	now := time.Now()
	return &Record{
		TokenID:     tokenID,
		PrincipalID: principalID,
		SecretHash:  hash,
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(expiresIn).Unix(),
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	rec := makeRecord("tok-1", "u1", testSecretHash(7), time.Hour)
	rec.UsedAt = 42

	data, err := Encode(rec)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decoded.PrincipalID != rec.PrincipalID ||
		decoded.UsedAt != rec.UsedAt ||
		decoded.CreatedAt != rec.CreatedAt ||
		decoded.ExpiresAt != rec.ExpiresAt ||
		decoded.SecretHash != rec.SecretHash {
		t.Fatalf("round trip mismatch: %+v vs %+v", decoded, rec)
	}
}

func TestConsumeHappyPath(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	hash := testSecretHash(1)
	rec := makeRecord("tok-1", "u1", hash, time.Hour)
	if err := store.Save(ctx, rec, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	consumed, err := store.Consume(ctx, "tok-1", hash)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if !consumed.Used() {
		t.Fatal("consumed record must carry a used timestamp")
	}
	if consumed.PrincipalID != "u1" {
		t.Fatalf("unexpected principal: %s", consumed.PrincipalID)
	}
}

func TestConsumeSecondTimeIsReuse(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	hash := testSecretHash(2)
	rec := makeRecord("tok-1", "u1", hash, time.Hour)
	if err := store.Save(ctx, rec, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := store.Consume(ctx, "tok-1", hash); err != nil {
		t.Fatalf("first consume failed: %v", err)
	}

	reused, err := store.Consume(ctx, "tok-1", hash)
	if !errors.Is(err, ErrTokenReused) {
		t.Fatalf("expected ErrTokenReused, got %v", err)
	}
	if reused == nil || reused.PrincipalID != "u1" {
		t.Fatal("reuse result must identify the owning principal")
	}
}

func TestConsumeSecretMismatch(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rec := makeRecord("tok-1", "u1", testSecretHash(3), time.Hour)
	if err := store.Save(ctx, rec, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := store.Consume(ctx, "tok-1", testSecretHash(9)); !errors.Is(err, ErrSecretMismatch) {
		t.Fatalf("expected ErrSecretMismatch, got %v", err)
	}

	// A mismatch must not consume the record.
	if _, err := store.Consume(ctx, "tok-1", testSecretHash(3)); err != nil {
		t.Fatalf("record should still be consumable: %v", err)
	}
}

func TestConsumeExpiredRecord(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	hash := testSecretHash(4)
	rec := makeRecord("tok-1", "u1", hash, -time.Minute)
	if err := store.Save(ctx, rec, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := store.Consume(ctx, "tok-1", hash); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestConsumeUnknownToken(t *testing.T) {
	store, _ := newTestStore(t)

	if _, err := store.Consume(context.Background(), "missing", testSecretHash(5)); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestRevokeAllForPrincipal(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"tok-1", "tok-2", "tok-3"} {
		rec := makeRecord(id, "u1", testSecretHash(byte(i)), time.Hour)
		if err := store.Save(ctx, rec, time.Hour); err != nil {
			t.Fatalf("Save %s failed: %v", id, err)
		}
	}

	revoked, err := store.RevokeAllForPrincipal(ctx, "u1")
	if err != nil {
		t.Fatalf("RevokeAllForPrincipal failed: %v", err)
	}
	if revoked != 3 {
		t.Fatalf("expected 3 revoked, got %d", revoked)
	}

	// Every record now reads as reuse when presented.
	for i, id := range []string{"tok-1", "tok-2", "tok-3"} {
		if _, err := store.Consume(ctx, id, testSecretHash(byte(i))); !errors.Is(err, ErrTokenReused) {
			t.Fatalf("expected ErrTokenReused for %s, got %v", id, err)
		}
	}

	ids, err := store.ActiveTokenIDs(ctx, "u1")
	if err != nil {
		t.Fatalf("ActiveTokenIDs failed: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty active set, got %v", ids)
	}
}

func TestActiveTokenIDsFiltersUsed(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	hashA := testSecretHash(10)
	if err := store.Save(ctx, makeRecord("tok-a", "u1", hashA, time.Hour), time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(ctx, makeRecord("tok-b", "u1", testSecretHash(11), time.Hour), time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := store.Consume(ctx, "tok-a", hashA); err != nil {
		t.Fatalf("Consume failed: %v", err)
	}

	ids, err := store.ActiveTokenIDs(ctx, "u1")
	if err != nil {
		t.Fatalf("ActiveTokenIDs failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "tok-b" {
		t.Fatalf("expected [tok-b], got %v", ids)
	}
}

func TestTrackReplayAnomalySetsTTLOnce(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.TrackReplayAnomaly(ctx, "u1", time.Minute); err != nil {
		t.Fatalf("TrackReplayAnomaly failed: %v", err)
	}
	if err := store.TrackReplayAnomaly(ctx, "u1", time.Minute); err != nil {
		t.Fatalf("TrackReplayAnomaly failed: %v", err)
	}

	got, err := mr.Get("rt:replay:u1")
	if err != nil {
		t.Fatalf("replay counter missing: %v", err)
	}
	if got != "2" {
		t.Fatalf("expected counter 2, got %s", got)
	}
	if mr.TTL("rt:replay:u1") <= 0 {
		t.Fatal("replay counter must expire")
	}
}
