// Package snapshotstore persists the latest materialized Circle state
// per aggregate, as a replay accelerator, with a Put/Latest pair
// typed on the circle domain and backed by the circle_snapshots
// schema.
package snapshotstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/loofy147/circles/internal/circle"
)

// Store is a Postgres-backed snapshot store. A snapshot is an
// idempotent cache: it may lag behind the event log arbitrarily, and
// it is never the only thing read (the event store always replays the
// tail on top of it).
type Store struct {
	db     *sql.DB
	tracer trace.Tracer
}

func New(db *sql.DB) *Store {
	return &Store{db: db, tracer: otel.Tracer("circles/snapshotstore")}
}

// Latest returns the highest-version snapshot for circleID, or
// (Circle{}, 0, nil) if none exists.
func (s *Store) Latest(ctx context.Context, circleID uuid.UUID) (circle.Circle, int, error) {
	ctx, span := s.tracer.Start(ctx, "snapshotstore.latest",
		trace.WithAttributes(attribute.String("circle.id", circleID.String())))
	defer span.End()

	var stateJSON []byte
	var version int
	err := s.db.QueryRowContext(ctx, `
		SELECT version, state
		FROM circle_snapshots
		WHERE circle_id = $1
		ORDER BY version DESC
		LIMIT 1
	`, circleID).Scan(&version, &stateJSON)

	if err == sql.ErrNoRows {
		return circle.Circle{}, 0, nil
	}
	if err != nil {
		return circle.Circle{}, 0, fmt.Errorf("load snapshot: %w", err)
	}

	var state circle.Circle
	if err := json.Unmarshal(stateJSON, &state); err != nil {
		return circle.Circle{}, 0, fmt.Errorf("decode snapshot state: %w", err)
	}

	span.SetAttributes(attribute.Int("snapshot.version", version))
	return state, version, nil
}

// Put inserts a snapshot row at (circle.ID, circle.Version). It does
// not replace an existing row: a second Put at the same version adds
// another row, and Latest returns one of them. A snapshot
// write failure is never fatal to the caller — it is a replay
// accelerator, not a source of truth.
func (s *Store) Put(ctx context.Context, state circle.Circle) error {
	ctx, span := s.tracer.Start(ctx, "snapshotstore.put",
		trace.WithAttributes(
			attribute.String("circle.id", state.ID.String()),
			attribute.Int("circle.version", state.Version),
		))
	defer span.End()

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode snapshot state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO circle_snapshots (circle_id, version, state, created_at)
		VALUES ($1, $2, $3, $4)
	`, state.ID, state.Version, stateJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}
