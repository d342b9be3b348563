// Package circles is the command/query handler layer: it orchestrates
// load-validate-append across the aggregate, event store, duplicate
// checker, and publisher, and serves reads from the read cache. One
// struct holding concrete collaborators rather than a trait-object
// hierarchy, the way internal/circulation splits Service from its
// implementation.
package circles

import (
	"context"

	"github.com/google/uuid"

	"github.com/loofy147/circles/internal/circle"
)

// Service is the circles domain's command and query surface.
type Service interface {
	CreateCircle(ctx context.Context, name string, capacity int16) (circle.Circle, error)
	UpdateCircle(ctx context.Context, id uuid.UUID, name *string, capacity *int16, expectedVersion int) (circle.Circle, error)
	GetCircle(ctx context.Context, id uuid.UUID) (circle.Circle, error)
	ListCircles(ctx context.Context) ([]circle.Circle, error)
}
