package circles

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/loofy147/circles/internal/circle"
	"github.com/loofy147/circles/pkg/projection"
)

// eventStore is the slice of pkg/eventstore.Store this handler needs.
// Accepting the interface (rather than the concrete store) keeps the
// command handler's own tests free of a live Postgres connection; main
// wiring passes a real *eventstore.Store, which satisfies it.
type eventStore interface {
	Append(ctx context.Context, circleID uuid.UUID, expectedVersion *int, events []circle.CircleEvent) error
	FindByID(ctx context.Context, circleID uuid.UUID) (circle.Circle, error)
}

// readCache is the slice of pkg/readmodel.ReadModel this handler needs.
type readCache interface {
	Set(ctx context.Context, state circle.Circle) error
	Get(ctx context.Context, id uuid.UUID) (circle.Circle, error)
	List(ctx context.Context) ([]circle.Circle, error)
	CheckUniqueName(ctx context.Context, excludeID uuid.UUID, name string) error
}

// service implements Service by wiring the aggregate engine, event
// store, read model (for the duplicate pre-check and queries), and
// publisher together — a single assembly struct, not a layered
// interface hierarchy (spec §9).
type service struct {
	store     eventStore
	views     readCache
	publisher *projection.Publisher
	tracer    trace.Tracer
}

func NewService(store eventStore, views readCache, publisher *projection.Publisher) Service {
	return &service{
		store:     store,
		views:     views,
		publisher: publisher,
		tracer:    otel.Tracer("circles/command_handler"),
	}
}

// CreateCircle: aggregate.create -> duplicate-check -> store.append(nil, [event]) -> publish.
func (s *service) CreateCircle(ctx context.Context, name string, capacity int16) (circle.Circle, error) {
	ctx, span := s.tracer.Start(ctx, "circles.create_circle",
		trace.WithAttributes(attribute.String("circle.name", name), attribute.Int("circle.capacity", int(capacity))))
	defer span.End()

	state, event, err := circle.Create(name, capacity)
	if err != nil {
		return circle.Circle{}, err
	}

	if err := s.views.CheckUniqueName(ctx, state.ID, name); err != nil {
		return circle.Circle{}, err
	}

	if err := s.store.Append(ctx, state.ID, nil, []circle.CircleEvent{event}); err != nil {
		return circle.Circle{}, err
	}

	// The event log is authoritative: a publish failure is never
	// surfaced to the caller. The projection pipeline (in-process or
	// CDC) is responsible for its own eventual delivery (spec §4.6).
	s.publisher.Publish([]circle.CircleEvent{event})

	span.SetAttributes(attribute.String("circle.id", state.ID.String()))
	return state, nil
}

// UpdateCircle: load -> aggregate.update -> duplicate-check if name
// changed -> store.append(expectedVersion, [event]) -> publish. A
// version mismatch returns ErrVersionMismatch without mutating.
func (s *service) UpdateCircle(ctx context.Context, id uuid.UUID, name *string, capacity *int16, expectedVersion int) (circle.Circle, error) {
	ctx, span := s.tracer.Start(ctx, "circles.update_circle",
		trace.WithAttributes(attribute.String("circle.id", id.String()), attribute.Int("expected.version", expectedVersion)))
	defer span.End()

	current, err := s.store.FindByID(ctx, id)
	if err != nil {
		return circle.Circle{}, err
	}

	// The event this command produces is built against the version the
	// caller believes is current, not necessarily the freshest one: if
	// they diverge, Append's gate is what must return VersionMismatch,
	// never this package's own bookkeeping.
	basis := current
	basis.Version = expectedVersion

	next, event, err := circle.Update(basis, name, capacity)
	if err != nil {
		return circle.Circle{}, err
	}

	if name != nil && *name != current.Name {
		if err := s.views.CheckUniqueName(ctx, id, *name); err != nil {
			return circle.Circle{}, err
		}
	}

	if err := s.store.Append(ctx, id, &expectedVersion, []circle.CircleEvent{event}); err != nil {
		return circle.Circle{}, err
	}

	s.publisher.Publish([]circle.CircleEvent{event})

	span.SetAttributes(attribute.Int("circle.version", next.Version))
	return next, nil
}

// GetCircle is a thin pass-through over the read cache.
func (s *service) GetCircle(ctx context.Context, id uuid.UUID) (circle.Circle, error) {
	state, err := s.views.Get(ctx, id)
	if err != nil {
		if errors.Is(err, circle.ErrNotFound) {
			return circle.Circle{}, fmt.Errorf("%w: circle %s", circle.ErrNotFound, id)
		}
		return circle.Circle{}, err
	}
	return state, nil
}

// ListCircles enumerates circles:list and fetches each entry.
func (s *service) ListCircles(ctx context.Context) ([]circle.Circle, error) {
	return s.views.List(ctx)
}
