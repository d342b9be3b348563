package readmodel

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/loofy147/circles/internal/circle"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping: could not connect to redis: %v", err)
	}
	return client
}

func TestSetGetRoundTrip(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	rm := New(client)
	ctx := context.Background()

	state := circle.Circle{ID: uuid.New(), Name: "Music club", Capacity: 10, Version: 1}
	require.NoError(t, rm.Set(ctx, state))

	got, err := rm.Get(ctx, state.ID)
	require.NoError(t, err)
	require.Equal(t, state, got)
}

func TestGet_NotFound(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	rm := New(client)

	_, err := rm.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, circle.ErrNotFound)
}

func TestCheckUniqueName_DetectsCollision(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	rm := New(client)
	ctx := context.Background()

	existing := circle.Circle{ID: uuid.New(), Name: "Music club", Capacity: 10, Version: 1}
	require.NoError(t, rm.Set(ctx, existing))

	err := rm.CheckUniqueName(ctx, uuid.New(), "Music club")
	require.ErrorIs(t, err, circle.ErrDuplicate)

	// Excluding its own id must not trip the check.
	err = rm.CheckUniqueName(ctx, existing.ID, "Music club")
	require.NoError(t, err)
}
