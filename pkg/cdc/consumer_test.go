package cdc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/loofy147/circles/internal/circle"
	"github.com/loofy147/circles/pkg/readmodel"
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

func newTestConsumer(t *testing.T, views *readmodel.ReadModel) *Consumer {
	t.Helper()
	return New(Config{Brokers: []string{"localhost:9092"}, Topic: "mysql-server.circles.circle_snapshots", GroupID: "test"}, views)
}

func TestProcess_UpsertsOnAfterImage(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	views := readmodel.New(client)
	c := newTestConsumer(t, views)
	defer c.reader.Close()

	state := circle.Circle{ID: uuid.New(), Name: "Music club", Capacity: 10, Version: 1}
	stateJSON, err := json.Marshal(state)
	require.NoError(t, err)

	row, err := json.Marshal(map[string]any{
		"circle_id": state.ID.String(),
		"state":     json.RawMessage(stateJSON),
	})
	require.NoError(t, err)

	env, err := json.Marshal(map[string]any{
		"before": nil,
		"after":  json.RawMessage(row),
		"op":     "c",
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.process(ctx, kafka.Message{Value: env}))

	got, err := views.Get(ctx, state.ID)
	require.NoError(t, err)
	require.Equal(t, state, got)
}

func TestProcess_IgnoresDeleteEnvelope(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	views := readmodel.New(client)
	c := newTestConsumer(t, views)
	defer c.reader.Close()

	env, err := json.Marshal(map[string]any{"before": json.RawMessage(`{}`), "after": nil, "op": "d"})
	require.NoError(t, err)

	require.NoError(t, c.process(context.Background(), kafka.Message{Value: env}))
}

func TestProcess_IgnoresMalformedEnvelope(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	views := readmodel.New(client)
	c := newTestConsumer(t, views)
	defer c.reader.Close()

	require.NoError(t, c.process(context.Background(), kafka.Message{Value: []byte("not json")}))
}
