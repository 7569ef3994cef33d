//go:build integration
// +build integration

package test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	authcore "github.com/acadly/authcore"
	"github.com/acadly/authcore/token"
)

func newIntegrationRedis(t *testing.T) redis.UniversalClient {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return rdb
}

func newIntegrationCore(t *testing.T) *authcore.Core {
	t.Helper()

	core, err := authcore.New().
		WithRedis(newIntegrationRedis(t)).
		WithNotifier(discardNotifier{}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(core.Close)

	return core
}

type discardNotifier struct{}

func (discardNotifier) DeliverCode(context.Context, string, string, string) error { return nil }

func newIntegrationTokenStore(t *testing.T) *token.Store {
	t.Helper()
	return token.NewStore(newIntegrationRedis(t), "it")
}

func saveRecord(t *testing.T, store *token.Store, principalID string, hash [32]byte) string {
	t.Helper()

	now := time.Now()
	record := &token.Record{
		TokenID:     "tok-" + principalID,
		PrincipalID: principalID,
		SecretHash:  hash,
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(time.Hour).Unix(),
	}
	if err := store.Save(context.Background(), record, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	return record.TokenID
}

func hashByte(b byte) [32]byte {
	var out [32]byte
	for i := 0; i < len(out); i++ {
		out[i] = b
	}
	return out
}
