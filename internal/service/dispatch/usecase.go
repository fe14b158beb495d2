package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ferry77-dispatch/internal/apperr"
	"ferry77-dispatch/internal/docstore"
	"ferry77-dispatch/internal/domain"
	"ferry77-dispatch/internal/logx"
)

// Service drives the two job lifecycle transitions: accept and complete.
// Each transition couples the guarded status write with the driver's workload
// counters in a single transaction; mirror writes and notifications happen
// after commit and are best effort.
type Service struct {
	store            txRunner
	jobs             jobRepository
	drivers          driverRepository
	notifications    notificationPublisher
	operationTimeout time.Duration
	logger           logx.Logger
	now              func() time.Time

	conflicts      prometheus.Counter
	mirrorFailures prometheus.Counter
}

// NewService creates a dispatch Service.
func NewService(
	store txRunner,
	jobs jobRepository,
	drivers driverRepository,
	notifications notificationPublisher,
	timeout time.Duration,
	logger logx.Logger,
	conflicts prometheus.Counter,
	mirrorFailures prometheus.Counter,
) *Service {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Service{
		store:            store,
		jobs:             jobs,
		drivers:          drivers,
		notifications:    notifications,
		operationTimeout: timeout,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
		conflicts:        conflicts,
		mirrorFailures:   mirrorFailures,
	}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.operationTimeout)
}

// Accept claims a pending job for the driver. The claim is arbitrated by a
// guarded update: of N concurrent accepts exactly one succeeds and the rest
// get ErrConflict. The driver must currently be available.
func (s *Service) Accept(ctx context.Context, ref domain.JobRef, driverID string) (domain.AcceptResult, error) {
	ref, driverID, err := validateTransition(ref, driverID)
	if err != nil {
		return domain.AcceptResult{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	job, err := s.jobs.Get(ctx, ref)
	if err != nil {
		return domain.AcceptResult{}, err
	}
	if !domain.CanTransition(job.Status, domain.StatusInDelivery) {
		return domain.AcceptResult{}, apperr.Precondition(apperr.ReasonWrongState)
	}

	now := s.now()
	var active int
	err = s.store.WithTx(ctx, func(tx docstore.Tx) error {
		driver, err := s.drivers.GetTx(ctx, tx, driverID)
		if err != nil {
			// An unknown driver cannot take work; do not report the job as
			// missing.
			if errors.Is(err, apperr.ErrNotFound) {
				return apperr.Precondition(apperr.ReasonDriverUnavailable)
			}
			return err
		}
		if !driver.Status.CanAccept() {
			return apperr.Precondition(apperr.ReasonDriverUnavailable)
		}
		if err := s.jobs.AcceptTx(ctx, tx, ref, driverID, now); err != nil {
			return err
		}
		active, err = s.drivers.IncActiveTx(ctx, tx, driverID)
		return err
	})
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			s.conflicts.Inc()
			s.logger.Info("accept lost race",
				logx.String("event", "accept_conflict"),
				logx.String("job_id", ref.ID),
				logx.String("driver_id", driverID),
			)
		}
		return domain.AcceptResult{}, err
	}

	s.mirrorAccept(ctx, job, driverID, now)
	s.notifyAccepted(ctx, job, now)

	s.logger.Info("job accepted",
		logx.String("event", "job_accepted"),
		logx.String("job_id", ref.ID),
		logx.String("source", string(ref.Source)),
		logx.String("driver_id", driverID),
		logx.Int("active_deliveries", active),
	)

	return domain.AcceptResult{
		JobID:            ref.ID,
		Source:           ref.Source,
		DriverID:         driverID,
		AcceptedAt:       now,
		ActiveDeliveries: active,
	}, nil
}

// Complete marks an in-delivery job as delivered. Only the assigned driver
// may complete; a delivered job stays delivered, so replays fail with a
// precondition error rather than double-counting.
func (s *Service) Complete(ctx context.Context, ref domain.JobRef, driverID string) (domain.CompleteResult, error) {
	ref, driverID, err := validateTransition(ref, driverID)
	if err != nil {
		return domain.CompleteResult{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	job, err := s.jobs.Get(ctx, ref)
	if err != nil {
		return domain.CompleteResult{}, err
	}
	switch {
	case !domain.CanTransition(job.Status, domain.StatusDelivered):
		return domain.CompleteResult{}, apperr.Precondition(apperr.ReasonWrongState)
	case job.AssignedDriverID != driverID:
		return domain.CompleteResult{}, apperr.Precondition(apperr.ReasonNotAssignedToCaller)
	}

	now := s.now()
	var active, total int
	err = s.store.WithTx(ctx, func(tx docstore.Tx) error {
		if err := s.jobs.CompleteTx(ctx, tx, ref, driverID, now); err != nil {
			// The pre-check passed but the guard no longer matches: the job
			// moved underneath us.
			if errors.Is(err, apperr.ErrConflict) {
				return apperr.Precondition(apperr.ReasonWrongState)
			}
			return err
		}
		active, total, err = s.drivers.FinishDeliveryTx(ctx, tx, driverID)
		return err
	})
	if err != nil {
		return domain.CompleteResult{}, err
	}

	s.mirrorComplete(ctx, job, now)
	s.notifyDelivered(ctx, job, now)

	s.logger.Info("job delivered",
		logx.String("event", "job_delivered"),
		logx.String("job_id", ref.ID),
		logx.String("source", string(ref.Source)),
		logx.String("driver_id", driverID),
		logx.Int("active_deliveries", active),
		logx.Int("total_deliveries", total),
	)

	return domain.CompleteResult{
		JobID:            ref.ID,
		Source:           ref.Source,
		DriverID:         driverID,
		DeliveredAt:      now,
		ActiveDeliveries: active,
		TotalDeliveries:  total,
	}, nil
}

// mirrorAccept propagates the acceptance onto the originating order of a
// delivery-sourced job. Failures are counted and logged, never surfaced.
func (s *Service) mirrorAccept(ctx context.Context, job *domain.DeliveryJob, driverID string, now time.Time) {
	if job.Source != domain.SourceDeliveries || job.OrderID == "" {
		return
	}
	if err := s.jobs.MirrorAccept(ctx, job.OrderID, driverID, now); err != nil {
		s.mirrorFailures.Inc()
		s.logger.Warn("accept mirror write failed",
			logx.String("job_id", job.ID),
			logx.String("order_id", job.OrderID),
			logx.Err(err),
		)
	}
}

func (s *Service) mirrorComplete(ctx context.Context, job *domain.DeliveryJob, now time.Time) {
	if job.Source != domain.SourceDeliveries || job.OrderID == "" {
		return
	}
	if err := s.jobs.MirrorComplete(ctx, job.OrderID, now); err != nil {
		s.mirrorFailures.Inc()
		s.logger.Warn("complete mirror write failed",
			logx.String("job_id", job.ID),
			logx.String("order_id", job.OrderID),
			logx.Err(err),
		)
	}
}

func (s *Service) notifyAccepted(ctx context.Context, job *domain.DeliveryJob, now time.Time) {
	s.publish(ctx, job.Customer.ID, domain.Notification{
		Kind:      domain.NotificationDelivery,
		Title:     "Pedido en camino",
		Message:   fmt.Sprintf("Tu pedido de %s está en camino", job.Product.Name),
		CreatedAt: now,
	})
	s.publish(ctx, job.Company.ID, domain.Notification{
		Kind:      domain.NotificationDelivery,
		Title:     "Pedido aceptado",
		Message:   fmt.Sprintf("Un repartidor aceptó el pedido de %s", job.Customer.Name),
		CreatedAt: now,
	})
}

func (s *Service) notifyDelivered(ctx context.Context, job *domain.DeliveryJob, now time.Time) {
	s.publish(ctx, job.Customer.ID, domain.Notification{
		Kind:      domain.NotificationDelivery,
		Title:     "Pedido entregado",
		Message:   fmt.Sprintf("Tu pedido de %s fue entregado", job.Product.Name),
		CreatedAt: now,
	})
	s.publish(ctx, job.Company.ID, domain.Notification{
		Kind:      domain.NotificationDelivery,
		Title:     "Pedido entregado",
		Message:   fmt.Sprintf("El pedido de %s fue entregado", job.Customer.Name),
		CreatedAt: now,
	})
}

// publish inserts one notification; recipients absent from the source record
// are skipped.
func (s *Service) publish(ctx context.Context, recipientID string, n domain.Notification) {
	if recipientID == "" {
		return
	}
	n.RecipientID = recipientID
	if _, err := s.notifications.Insert(ctx, n); err != nil {
		s.logger.Warn("notification publish failed",
			logx.String("recipient_id", recipientID),
			logx.Err(err),
		)
	}
}

func validateTransition(ref domain.JobRef, driverID string) (domain.JobRef, string, error) {
	ref.ID = strings.TrimSpace(ref.ID)
	driverID = strings.TrimSpace(driverID)
	if ref.ID == "" || driverID == "" || !ref.Source.Valid() {
		return domain.JobRef{}, "", apperr.ErrInvalid
	}
	return ref, driverID, nil
}
