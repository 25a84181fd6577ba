package idempotency

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

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupManager(t *testing.T) (*miniredis.Miniredis, Manager) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewManager(client, testLogger())
}

func TestClaim_FirstWinsSecondLoses(t *testing.T) {
	_, manager := setupManager(t)
	ctx := context.Background()

	claimed, err := manager.Claim(ctx, "message:1:42", time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = manager.Claim(ctx, "message:1:42", time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestClaim_DistinctKeysAreIndependent(t *testing.T) {
	_, manager := setupManager(t)
	ctx := context.Background()

	claimed, err := manager.Claim(ctx, "message:1:42", time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = manager.Claim(ctx, "message:1:43", time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestClaim_ExpiresAfterTTL(t *testing.T) {
	mr, manager := setupManager(t)
	ctx := context.Background()

	claimed, err := manager.Claim(ctx, "message:1:42", time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)

	mr.FastForward(2 * time.Minute)

	claimed, err = manager.Claim(ctx, "message:1:42", time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestClaim_EmptyKeyRejected(t *testing.T) {
	_, manager := setupManager(t)

	_, err := manager.Claim(context.Background(), "", time.Minute)
	assert.Error(t, err)
}
