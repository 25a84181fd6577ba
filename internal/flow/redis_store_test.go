package flow

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRedisStore_SetAndGet(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewRedisStore(client, time.Hour, testLogger())
	ctx := context.Background()

	f := New("+593991234567")
	f.Service = "plomero"
	f.Providers = []ProviderCandidate{{ID: "p1", Phone: "5111", Name: "Ana"}}

	require.NoError(t, store.Set(ctx, f.Phone, f))

	loaded, err := store.Get(ctx, f.Phone)
	require.NoError(t, err)
	assert.Equal(t, f.Phone, loaded.Phone)
	assert.Equal(t, StateAwaitingService, loaded.State)
	assert.Equal(t, "plomero", loaded.Service)
	assert.Equal(t, f.Providers, loaded.Providers)
}

func TestRedisStore_GetNotFound(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewRedisStore(client, time.Hour, testLogger())

	loaded, err := store.Get(context.Background(), "+999")
	assert.Nil(t, loaded)
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestRedisStore_KeyUsesCanonicalPhone(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewRedisStore(client, time.Hour, testLogger())
	ctx := context.Background()

	f := New("+593 99 123 4567")
	require.NoError(t, store.Set(ctx, "+593 99 123 4567", f))

	assert.True(t, mr.Exists("flow:+593991234567"))

	loaded, err := store.Get(ctx, "+593991234567")
	require.NoError(t, err)
	assert.Equal(t, "+593991234567", loaded.Phone)
}

func TestRedisStore_SetRefreshesTTL(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewRedisStore(client, time.Hour, testLogger())
	ctx := context.Background()

	f := New("+111")
	require.NoError(t, store.Set(ctx, f.Phone, f))

	ttl := mr.TTL("flow:+111")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Hour)

	mr.FastForward(30 * time.Minute)
	require.NoError(t, store.Set(ctx, f.Phone, f))
	assert.Equal(t, time.Hour, mr.TTL("flow:+111"))
}

func TestRedisStore_Expiry(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewRedisStore(client, time.Minute, testLogger())
	ctx := context.Background()

	f := New("+111")
	require.NoError(t, store.Set(ctx, f.Phone, f))

	mr.FastForward(2 * time.Minute)

	loaded, err := store.Get(ctx, f.Phone)
	assert.Nil(t, loaded)
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestRedisStore_Reset(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewRedisStore(client, time.Hour, testLogger())
	ctx := context.Background()

	f := New("+111")
	require.NoError(t, store.Set(ctx, f.Phone, f))
	require.NoError(t, store.Reset(ctx, f.Phone))

	_, err := store.Get(ctx, f.Phone)
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestRedisStore_TransitionValid(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewRedisStore(client, time.Hour, testLogger())
	ctx := context.Background()

	f := New("+111")
	require.NoError(t, store.Set(ctx, f.Phone, f))

	updated, err := store.Transition(ctx, f.Phone, StateAwaitingCity)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingCity, updated.State)

	loaded, err := store.Get(ctx, f.Phone)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingCity, loaded.State)
}

func TestRedisStore_TransitionInvalid(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewRedisStore(client, time.Hour, testLogger())
	ctx := context.Background()

	f := New("+111")
	require.NoError(t, store.Set(ctx, f.Phone, f))

	updated, err := store.Transition(ctx, f.Phone, StatePresentingResults)
	assert.Nil(t, updated)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// The stored record must be untouched.
	loaded, err := store.Get(ctx, f.Phone)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingService, loaded.State)
}

func TestRedisStore_TransitionMissingRecordStartsFresh(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewRedisStore(client, time.Hour, testLogger())

	// The default state allows moving to AWAITING_CITY.
	updated, err := store.Transition(context.Background(), "+222", StateAwaitingCity)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingCity, updated.State)
	assert.Equal(t, "+222", updated.Phone)
}
