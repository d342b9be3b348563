package circle

import (
	"fmt"

	"github.com/google/uuid"
)

// Create validates capacity, mints a fresh circle id, and returns the
// state at version 1 together with the CircleCreated event that
// produced it.
func Create(name string, capacity int16) (Circle, CircleEvent, error) {
	if name == "" {
		return Circle{}, CircleEvent{}, fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
	}
	if capacity < MinCapacity {
		return Circle{}, CircleEvent{}, fmt.Errorf("%w: capacity must be >= %d", ErrInvalidInput, MinCapacity)
	}

	id := uuid.New()
	event, err := newEvent(id, 1, EventTypeCircleCreated, CircleCreatedData{
		Name:     name,
		Capacity: capacity,
	})
	if err != nil {
		return Circle{}, CircleEvent{}, err
	}

	state := Circle{ID: id, Name: name, Capacity: capacity, Version: 1}
	return state, event, nil
}

// Update validates the supplied capacity (if any) and returns the next
// version of state together with the CircleUpdated event. Both fields
// absent is legal: it still advances the version (an idempotent
// rename-to-current).
func Update(prev Circle, name *string, capacity *int16) (Circle, CircleEvent, error) {
	if capacity != nil && *capacity < MinCapacity {
		return Circle{}, CircleEvent{}, fmt.Errorf("%w: capacity must be >= %d", ErrInvalidInput, MinCapacity)
	}
	if name != nil && *name == "" {
		return Circle{}, CircleEvent{}, fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
	}

	nextVersion := prev.Version + 1
	event, err := newEvent(prev.ID, nextVersion, EventTypeCircleUpdated, CircleUpdatedData{
		Name:     name,
		Capacity: capacity,
	})
	if err != nil {
		return Circle{}, CircleEvent{}, err
	}

	next := prev
	next.Version = nextVersion
	if name != nil {
		next.Name = *name
	}
	if capacity != nil {
		next.Capacity = *capacity
	}

	return next, event, nil
}

// Apply folds a single event into state. The event's version must be
// exactly state.Version+1 (1 for the very first CircleCreated applied
// to a zero-value Circle, whose Version is 0); a violation is a programmer error, not user
// input, and is reported as ErrCorrupt so the store layer can surface
// it distinctly from validation failures.
func Apply(state Circle, event CircleEvent) (Circle, error) {
	if event.Version != state.Version+1 {
		return Circle{}, fmt.Errorf("%w: event version %d does not follow state version %d", ErrCorrupt, event.Version, state.Version)
	}

	switch event.Type {
	case EventTypeCircleCreated:
		data, err := event.DecodeCreated()
		if err != nil {
			return Circle{}, fmt.Errorf("%w: decode circle_created: %v", ErrCorrupt, err)
		}
		return Circle{
			ID:       event.CircleID,
			Name:     data.Name,
			Capacity: data.Capacity,
			Version:  event.Version,
		}, nil

	case EventTypeCircleUpdated:
		data, err := event.DecodeUpdated()
		if err != nil {
			return Circle{}, fmt.Errorf("%w: decode circle_updated: %v", ErrCorrupt, err)
		}
		next := state
		next.Version = event.Version
		if data.Name != nil {
			next.Name = *data.Name
		}
		if data.Capacity != nil {
			next.Capacity = *data.Capacity
		}
		return next, nil

	default:
		return Circle{}, fmt.Errorf("%w: unknown event type %q", ErrCorrupt, event.Type)
	}
}

// Replay requires a non-empty, version-sorted event slice whose first
// element is CircleCreated, and folds each event in turn. It never
// touches storage; the event-store package is responsible for
// supplying the right slice (either the full log, or a snapshot's tail).
func Replay(events []CircleEvent) (Circle, error) {
	if len(events) == 0 {
		return Circle{}, fmt.Errorf("%w: cannot replay an empty event slice", ErrCorrupt)
	}
	if events[0].Type != EventTypeCircleCreated {
		return Circle{}, fmt.Errorf("%w: first event must be circle_created, got %q", ErrCorrupt, events[0].Type)
	}

	var state Circle
	for _, event := range events {
		next, err := Apply(state, event)
		if err != nil {
			return Circle{}, err
		}
		state = next
	}
	return state, nil
}

// ReplayFrom folds events onto an existing base state (typically a
// snapshot). It is the tail-application half of the snapshot-
// accelerated read path (spec §4.2 step 5).
func ReplayFrom(base Circle, events []CircleEvent) (Circle, error) {
	state := base
	for _, event := range events {
		next, err := Apply(state, event)
		if err != nil {
			return Circle{}, err
		}
		state = next
	}
	return state, nil
}
