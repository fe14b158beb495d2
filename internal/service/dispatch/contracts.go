package dispatch

import (
	"context"
	"time"

	"ferry77-dispatch/internal/docstore"
	"ferry77-dispatch/internal/domain"
)

type jobRepository interface {
	Get(ctx context.Context, ref domain.JobRef) (*domain.DeliveryJob, error)
	AcceptTx(ctx context.Context, tx docstore.Tx, ref domain.JobRef, driverID string, now time.Time) error
	CompleteTx(ctx context.Context, tx docstore.Tx, ref domain.JobRef, driverID string, now time.Time) error
	MirrorAccept(ctx context.Context, orderID, driverID string, now time.Time) error
	MirrorComplete(ctx context.Context, orderID string, now time.Time) error
}

type driverRepository interface {
	GetTx(ctx context.Context, tx docstore.Tx, id string) (*domain.DriverProfile, error)
	IncActiveTx(ctx context.Context, tx docstore.Tx, id string) (int, error)
	FinishDeliveryTx(ctx context.Context, tx docstore.Tx, id string) (active, total int, err error)
}

type notificationPublisher interface {
	Insert(ctx context.Context, n domain.Notification) (string, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx docstore.Tx) error) error
}
