package projection

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/google/uuid"

	"github.com/loofy147/circles/internal/circle"
)

// aggregateLoader is the slice of pkg/eventstore.Store the projection
// needs: a snapshot-accelerated, full-log reload by id.
type aggregateLoader interface {
	FindByID(ctx context.Context, circleID uuid.UUID) (circle.Circle, error)
}

// viewWriter is the slice of pkg/readmodel.ReadModel the projection
// needs: upserting the denormalized view.
type viewWriter interface {
	Set(ctx context.Context, state circle.Circle) error
}

// Handler rebuilds a Circle from the event log and writes it into the
// read cache, once per delivered event (spec §4.5). Because it always
// reloads the full, snapshot-accelerated state rather than folding the
// delivered event itself, it is naturally idempotent and tolerant of
// duplicate or reordered deliveries.
type Handler struct {
	store  aggregateLoader
	views  viewWriter
	tracer trace.Tracer
}

func NewHandler(store aggregateLoader, views viewWriter) *Handler {
	return &Handler{store: store, views: views, tracer: otel.Tracer("circles/projection")}
}

// Handle processes a single delivered event. Errors are logged and
// swallowed: the handler must never terminate its subscription over a
// single bad event (spec §4.5 step 4, §7 projection-layer policy). A
// durable retry or dead-letter path is a stated extension point, not
// built here.
func (h *Handler) Handle(ctx context.Context, event circle.CircleEvent) {
	ctx, span := h.tracer.Start(ctx, "projection.handle",
		trace.WithAttributes(
			attribute.String("circle.id", event.CircleID.String()),
			attribute.Int("event.version", event.Version),
		))
	defer span.End()

	state, err := h.store.FindByID(ctx, event.CircleID)
	if err != nil {
		log.Printf("projection: reload failed for circle %s: %v", event.CircleID, err)
		return
	}

	if err := h.views.Set(ctx, state); err != nil {
		log.Printf("projection: read-cache write failed for circle %s: %v", event.CircleID, err)
		return
	}
}

// Run subscribes to publisher and processes events until ctx is
// cancelled. Events for one aggregate are processed in delivery order
// because the subscriber channel preserves per-publish ordering.
func (h *Handler) Run(ctx context.Context, publisher *Publisher) {
	events := publisher.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			h.Handle(ctx, event)
		}
	}
}
