package handlers

import (
	"context"

	"ferry77-dispatch/internal/domain"
	"ferry77-dispatch/internal/service/dispatch"
	"ferry77-dispatch/internal/service/driverstatus"
	"ferry77-dispatch/internal/service/feed"
	"ferry77-dispatch/internal/service/view"
)

type dispatchUsecase interface {
	Accept(ctx context.Context, ref domain.JobRef, driverID string) (domain.AcceptResult, error)
	Complete(ctx context.Context, ref domain.JobRef, driverID string) (domain.CompleteResult, error)
}

// NewDispatchUsecase wires a dispatch.Service into a dispatchUsecase.
func NewDispatchUsecase(svc *dispatch.Service) dispatchUsecase {
	return svc
}

type boardUsecase interface {
	List(ctx context.Context, driverID string, q view.Query) ([]domain.DeliveryJob, error)
}

// NewBoardUsecase wires a view.Service into a boardUsecase.
func NewBoardUsecase(svc *view.Service) boardUsecase {
	return svc
}

type driverUsecase interface {
	Get(ctx context.Context, driverID string) (*domain.DriverProfile, error)
	SetStatus(ctx context.Context, driverID string, status domain.DriverStatus) (*domain.DriverProfile, error)
	ReportLocation(ctx context.Context, driverID string, loc domain.Coordinates) error
}

// NewDriverUsecase wires a driverstatus.Service into a driverUsecase.
func NewDriverUsecase(svc *driverstatus.Service) driverUsecase {
	return svc
}

type feedUsecase interface {
	List(ctx context.Context, recipientID string, limit int) (feed.Feed, error)
	MarkAllRead(ctx context.Context, recipientID string) (int, error)
}

// NewFeedUsecase wires a feed.Service into a feedUsecase.
func NewFeedUsecase(svc *feed.Service) feedUsecase {
	return svc
}
