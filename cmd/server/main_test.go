package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/config"
	"stockledger/internal/domain"
	"stockledger/internal/store"
	"stockledger/internal/store/memory"
	"stockledger/internal/store/remote"
	"stockledger/internal/store/sqlite"
	"stockledger/internal/syncq"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short"})
	if err == nil {
		t.Fatalf("expected short secret to be rejected")
	}
	err = validateSecurityConfig(config.Config{
		AuthSecret:     "0123456789abcdef0123456789abcdef",
		SeedAdminEmail: "owner@example.com",
		SeedAdminPIN:   "123456",
	})
	if err == nil {
		t.Fatalf("expected weak seed PIN to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{
		AuthSecret:     "0123456789abcdef0123456789abcdef",
		SeedAdminEmail: "owner@example.com",
		SeedAdminPIN:   "739154",
	})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
	if err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"}); err != nil {
		t.Fatalf("seed PIN is only checked when seeding, got %v", err)
	}
}

func TestValidatePINStrength(t *testing.T) {
	for _, pin := range []string{"000000", "777777", "234567", "987654", "12a456"} {
		assert.Error(t, validatePINStrength(pin), pin)
	}
	assert.NoError(t, validatePINStrength("739154"))
}

func TestOpenRepositoryFallsBackWhenStoreIsDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	repo, durable := openRepository(context.Background(), config.Config{StoreURL: srv.URL, StoreTimeout: time.Second}, zerolog.Nop())
	_, isMemory := repo.(*memory.Store)
	assert.True(t, isMemory)
	assert.False(t, durable)
}

func TestFallbackStoreDoesNotConsumeRedisOutbox(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	queued := syncq.NewRedisOutbox(client, "stockledger:outbox")
	require.NoError(t, queued.Append(ctx, store.ChangeSet{
		ID:        "cs-pending",
		Customers: []domain.Customer{{ID: "cust-1", Name: "Ani"}},
	}))

	outbox := newOutbox(client, "stockledger:outbox", false, zerolog.Nop())
	_, isMemory := outbox.(*syncq.MemoryOutbox)
	require.True(t, isMemory)

	dispatcher := syncq.NewDispatcher(outbox, memory.New(), zerolog.Nop(), time.Hour)
	applied, err := dispatcher.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, applied)

	left, err := queued.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, left, "change set still waits for the real store")

	durableOutbox := newOutbox(client, "stockledger:outbox", true, zerolog.Nop())
	_, isRedis := durableOutbox.(*syncq.RedisOutbox)
	assert.True(t, isRedis)
	_, isMemory = newOutbox(nil, "stockledger:outbox", true, zerolog.Nop()).(*syncq.MemoryOutbox)
	assert.True(t, isMemory)
}

func TestOpenRepositoryPrefersConfiguredBackends(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	repo, durable := openRepository(context.Background(), config.Config{StoreURL: srv.URL, StoreTimeout: time.Second}, zerolog.Nop())
	_, isRemote := repo.(*remote.Store)
	assert.True(t, isRemote)
	assert.True(t, durable)

	repo, _ = openRepository(context.Background(), config.Config{SQLitePath: ":memory:", StoreURL: srv.URL}, zerolog.Nop())
	defer repo.Close()
	_, isSQLite := repo.(*sqlite.Store)
	require.True(t, isSQLite)
	require.NoError(t, repo.Health(context.Background()))
}
