package orders

import (
	"context"
	"time"

	"ferry77-dispatch/internal/domain"
)

// JobPort abstracts the subset of job repository operations needed by the
// Processor when handling order events.
type JobPort interface {
	CreateFromOrder(ctx context.Context, orderID, deliveryID string, now time.Time) (string, error)
	CancelPendingByOrder(ctx context.Context, orderID string) error
	Get(ctx context.Context, ref domain.JobRef) (*domain.DeliveryJob, error)
	SetCoordinates(ctx context.Context, ref domain.JobRef, loc domain.Coordinates) error
}

// GeoPort abstracts the geocoding provider used to backfill coordinates.
type GeoPort interface {
	Resolve(ctx context.Context, address string) (*domain.Coordinates, error)
}
