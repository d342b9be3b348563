// Package readmodel is the read side of the CQRS split: a Redis-backed
// cache of projected Circle state (spec §4.7, §6.4), plus the advisory
// duplicate-name pre-check (spec §4.4) that reads the very same cache.
// Grounded on ToxicToast-ToxicToastTV's AI/shared/cache.RedisCache
// (go-redis/v9 client shape, Get/Set, ErrNotFound translation) and
// circuit-broken the way abdoElHodaky-tradSys guards its external
// dependencies with sony/gobreaker.
package readmodel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/loofy147/circles/internal/circle"
)

const circlesListKey = "circles:list"

func circleKey(id uuid.UUID) string {
	return "circle:" + id.String()
}

// ReadModel is the read cache: get/set the denormalized Circle view,
// list known ids, and check for name collisions.
type ReadModel struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
}

func New(client *redis.Client) *ReadModel {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "readmodel-redis",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})
	return &ReadModel{client: client, breaker: breaker}
}

// Set writes the latest projected state for a circle and registers its
// id in the known-ids set (spec §4.5 step 3).
func (m *ReadModel) Set(ctx context.Context, state circle.Circle) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode read view: %w", err)
	}

	_, err = m.breaker.Execute(func() (any, error) {
		pipe := m.client.TxPipeline()
		pipe.Set(ctx, circleKey(state.ID), payload, 0)
		pipe.SAdd(ctx, circlesListKey, state.ID.String())
		_, err := pipe.Exec(ctx)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("%w: write read view: %v", circle.ErrTransient, err)
	}
	return nil
}

// Get returns the cached Circle for id, or circle.ErrNotFound if
// absent.
func (m *ReadModel) Get(ctx context.Context, id uuid.UUID) (circle.Circle, error) {
	result, err := m.breaker.Execute(func() (any, error) {
		return m.client.Get(ctx, circleKey(id)).Bytes()
	})
	if errors.Is(err, redis.Nil) {
		return circle.Circle{}, circle.ErrNotFound
	}
	if err != nil {
		return circle.Circle{}, fmt.Errorf("%w: read view get: %v", circle.ErrTransient, err)
	}

	var state circle.Circle
	if err := json.Unmarshal(result.([]byte), &state); err != nil {
		return circle.Circle{}, fmt.Errorf("%w: decode read view: %v", circle.ErrCorrupt, err)
	}
	return state, nil
}

// List enumerates circles:list and fetches each entry, skipping any
// id whose value has not yet landed (it will on the next projection
// cycle; no freshness bound is promised — spec I6).
func (m *ReadModel) List(ctx context.Context) ([]circle.Circle, error) {
	result, err := m.breaker.Execute(func() (any, error) {
		return m.client.SMembers(ctx, circlesListKey).Result()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list circle ids: %v", circle.ErrTransient, err)
	}

	ids := result.([]string)
	circles := make([]circle.Circle, 0, len(ids))
	for _, idStr := range ids {
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		state, err := m.Get(ctx, id)
		if errors.Is(err, circle.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		circles = append(circles, state)
	}
	return circles, nil
}

// CheckUniqueName is the advisory pre-check of spec §4.4: because the
// projection is eventually consistent, a race can still admit two
// circles with the same name. excludeID lets an update check against
// circles other than itself.
func (m *ReadModel) CheckUniqueName(ctx context.Context, excludeID uuid.UUID, name string) error {
	circles, err := m.List(ctx)
	if err != nil {
		return err
	}
	for _, c := range circles {
		if c.ID != excludeID && c.Name == name {
			return circle.ErrDuplicate
		}
	}
	return nil
}
