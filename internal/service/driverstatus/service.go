// Package driverstatus manages the driver's working status, reported
// location and workload counter reconciliation.
package driverstatus

import (
	"context"
	"strings"
	"time"

	"ferry77-dispatch/internal/apperr"
	"ferry77-dispatch/internal/domain"
	"ferry77-dispatch/internal/logx"
)

type driverRepository interface {
	Get(ctx context.Context, id string) (*domain.DriverProfile, error)
	SetStatus(ctx context.Context, id string, status domain.DriverStatus, now time.Time) error
	UpdateLocation(ctx context.Context, id string, loc domain.Coordinates, now time.Time) error
	SetCounters(ctx context.Context, id string, active, total int) error
	IDs(ctx context.Context) ([]string, error)
	Watch(ctx context.Context, id string) (<-chan domain.DriverProfile, error)
}

type jobRepository interface {
	JobsByDriver(ctx context.Context, driverID string) ([]domain.DeliveryJob, error)
	SetDriverLocation(ctx context.Context, ref domain.JobRef, loc domain.Coordinates, now time.Time) error
}

// Service exposes driver profile operations.
type Service struct {
	drivers          driverRepository
	jobs             jobRepository
	operationTimeout time.Duration
	logger           logx.Logger
	now              func() time.Time
}

// NewService creates a driver status Service.
func NewService(drivers driverRepository, jobs jobRepository, timeout time.Duration, logger logx.Logger) *Service {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Service{
		drivers:          drivers,
		jobs:             jobs,
		operationTimeout: timeout,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.operationTimeout)
}

// Get returns the driver profile.
func (s *Service) Get(ctx context.Context, driverID string) (*domain.DriverProfile, error) {
	driverID, err := validateDriverID(driverID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.drivers.Get(ctx, driverID)
}

// SetStatus updates the driver's working status and stamps the change time.
// Unknown statuses are rejected; the flat status set has no transition rules,
// any status may follow any other.
func (s *Service) SetStatus(ctx context.Context, driverID string, status domain.DriverStatus) (*domain.DriverProfile, error) {
	driverID, err := validateDriverID(driverID)
	if err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperr.ErrInvalid
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.drivers.SetStatus(ctx, driverID, status, s.now()); err != nil {
		return nil, err
	}

	s.logger.Info("driver status changed",
		logx.String("event", "driver_status_changed"),
		logx.String("driver_id", driverID),
		logx.String("status", string(status)),
	)
	return s.drivers.Get(ctx, driverID)
}

// ReportLocation stores the driver's position and fans it out to every job
// currently assigned to the driver and not yet delivered. Fan-out failures
// are logged and skipped; the profile write is authoritative.
func (s *Service) ReportLocation(ctx context.Context, driverID string, loc domain.Coordinates) error {
	driverID, err := validateDriverID(driverID)
	if err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.now()
	if err := s.drivers.UpdateLocation(ctx, driverID, loc, now); err != nil {
		return err
	}

	jobs, err := s.jobs.JobsByDriver(ctx, driverID)
	if err != nil {
		s.logger.Warn("location fan-out skipped",
			logx.String("driver_id", driverID),
			logx.Err(err),
		)
		return nil
	}
	for _, job := range jobs {
		if job.Status != domain.StatusInDelivery {
			continue
		}
		ref := domain.JobRef{ID: job.ID, Source: job.Source}
		if err := s.jobs.SetDriverLocation(ctx, ref, loc, now); err != nil {
			s.logger.Warn("location fan-out write failed",
				logx.String("driver_id", driverID),
				logx.String("job_id", job.ID),
				logx.Err(err),
			)
		}
	}
	return nil
}

// Recompute rebuilds the driver's workload counters from the assigned jobs.
// Used by the reconciliation worker to repair drift left by failed writes.
func (s *Service) Recompute(ctx context.Context, driverID string) error {
	driverID, err := validateDriverID(driverID)
	if err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	profile, err := s.drivers.Get(ctx, driverID)
	if err != nil {
		return err
	}
	jobs, err := s.jobs.JobsByDriver(ctx, driverID)
	if err != nil {
		return err
	}

	active, total := 0, 0
	for _, job := range jobs {
		switch job.Status {
		case domain.StatusInDelivery:
			active++
		case domain.StatusDelivered:
			total++
		}
	}
	if profile.ActiveDeliveries == active && profile.TotalDeliveries == total {
		return nil
	}

	s.logger.Info("driver counters reconciled",
		logx.String("event", "driver_counters_reconciled"),
		logx.String("driver_id", driverID),
		logx.Int("active_before", profile.ActiveDeliveries),
		logx.Int("active_after", active),
		logx.Int("total_before", profile.TotalDeliveries),
		logx.Int("total_after", total),
	)
	return s.drivers.SetCounters(ctx, driverID, active, total)
}

// RecomputeAll reconciles counters for every known driver and returns how
// many were repaired or checked.
func (s *Service) RecomputeAll(ctx context.Context) (int, error) {
	ids, err := s.drivers.IDs(ctx)
	if err != nil {
		return 0, err
	}
	checked := 0
	for _, id := range ids {
		if err := s.Recompute(ctx, id); err != nil {
			s.logger.Warn("driver reconciliation failed",
				logx.String("driver_id", id),
				logx.Err(err),
			)
			continue
		}
		checked++
	}
	return checked, nil
}

// Watch streams the driver profile on every change.
func (s *Service) Watch(ctx context.Context, driverID string) (<-chan domain.DriverProfile, error) {
	driverID, err := validateDriverID(driverID)
	if err != nil {
		return nil, err
	}
	return s.drivers.Watch(ctx, driverID)
}

func validateDriverID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", apperr.ErrInvalid
	}
	return id, nil
}
