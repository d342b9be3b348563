// Package circle holds the Circle aggregate: its value objects, its
// event variants, and the pure fold/validate functions that fold
// events into state. Nothing here touches a database, a cache, or the
// network.
package circle

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MinCapacity is the smallest capacity a circle may ever hold.
const MinCapacity = 3

// Circle is the aggregate. Version is incremented once per applied
// event and is the sole ordering / optimistic-concurrency token.
type Circle struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Capacity int16     `json:"capacity"`
	Version  int       `json:"version"`
}

// EventType is the wire discriminator for CircleEvent.Data.
type EventType string

const (
	EventTypeCircleCreated EventType = "circle_created"
	EventTypeCircleUpdated EventType = "circle_updated"
)

// CircleEvent is an immutable record of a state transition, identified
// by (CircleID, Version). Data carries the event's payload, tagged by
// Type; occurred_at is informational and is never used for ordering.
type CircleEvent struct {
	ID         uuid.UUID
	CircleID   uuid.UUID
	Version    int
	OccurredAt time.Time
	Type       EventType
	Data       json.RawMessage
}

// CircleCreatedData is the payload of a circle_created event.
type CircleCreatedData struct {
	Name     string `json:"name"`
	Capacity int16  `json:"capacity"`
}

// CircleUpdatedData is the payload of a circle_updated event. A nil
// field means "unchanged".
type CircleUpdatedData struct {
	Name     *string `json:"name,omitempty"`
	Capacity *int16  `json:"capacity,omitempty"`
}

func newEvent(circleID uuid.UUID, version int, typ EventType, data any) (CircleEvent, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return CircleEvent{}, err
	}
	return CircleEvent{
		ID:         uuid.New(),
		CircleID:   circleID,
		Version:    version,
		OccurredAt: time.Now().UTC(),
		Type:       typ,
		Data:       raw,
	}, nil
}

// DecodeCreated unmarshals a circle_created event's payload.
func (e CircleEvent) DecodeCreated() (CircleCreatedData, error) {
	var d CircleCreatedData
	err := json.Unmarshal(e.Data, &d)
	return d, err
}

// DecodeUpdated unmarshals a circle_updated event's payload.
func (e CircleEvent) DecodeUpdated() (CircleUpdatedData, error) {
	var d CircleUpdatedData
	err := json.Unmarshal(e.Data, &d)
	return d, err
}
