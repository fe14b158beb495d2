// Package view assembles the driver-facing job board: tab filtering,
// searching, sorting and per-driver distance annotation. It never mutates
// job records.
package view

import (
	"context"
	"sort"
	"strings"
	"time"

	"ferry77-dispatch/internal/apperr"
	"ferry77-dispatch/internal/domain"
	"ferry77-dispatch/internal/geo"
	"ferry77-dispatch/internal/logx"
)

// Tab selects which slice of the board to show.
type Tab string

// Board tabs.
const (
	TabAvailable Tab = "available"
	TabActive    Tab = "active"
	TabCompleted Tab = "completed"
)

// Valid reports whether the tab is known.
func (t Tab) Valid() bool {
	switch t {
	case TabAvailable, TabActive, TabCompleted:
		return true
	}
	return false
}

// Sort selects the board ordering.
type Sort string

// Board sort orders. Nearest puts jobs with unknown distance last.
const (
	SortNewest  Sort = "newest"
	SortOldest  Sort = "oldest"
	SortNearest Sort = "nearest"
	SortHighest Sort = "highest"
)

// Valid reports whether the sort order is known.
func (s Sort) Valid() bool {
	switch s {
	case SortNewest, SortOldest, SortNearest, SortHighest:
		return true
	}
	return false
}

// Query describes one board request.
type Query struct {
	Tab    Tab
	Sort   Sort
	Search string
}

type jobRepository interface {
	PendingJobs(ctx context.Context) ([]domain.DeliveryJob, error)
	JobsByDriver(ctx context.Context, driverID string) ([]domain.DeliveryJob, error)
	WatchPending(ctx context.Context) (<-chan []domain.DeliveryJob, error)
}

type driverRepository interface {
	Get(ctx context.Context, id string) (*domain.DriverProfile, error)
}

// Service builds board views.
type Service struct {
	jobs             jobRepository
	drivers          driverRepository
	operationTimeout time.Duration
	logger           logx.Logger
}

// NewService creates a view Service.
func NewService(jobs jobRepository, drivers driverRepository, timeout time.Duration, logger logx.Logger) *Service {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Service{jobs: jobs, drivers: drivers, operationTimeout: timeout, logger: logger}
}

// List returns the driver's board for one tab, searched, annotated with
// distance and ETA from the driver's last known position, and sorted.
func (s *Service) List(ctx context.Context, driverID string, q Query) ([]domain.DeliveryJob, error) {
	driverID = strings.TrimSpace(driverID)
	if driverID == "" {
		return nil, apperr.ErrInvalid
	}
	q = q.withDefaults()
	if !q.Tab.Valid() || !q.Sort.Valid() {
		return nil, apperr.ErrInvalid
	}

	ctx, cancel := context.WithTimeout(ctx, s.operationTimeout)
	defer cancel()

	jobs, err := s.fetch(ctx, driverID, q.Tab)
	if err != nil {
		return nil, err
	}

	var origin *domain.Coordinates
	if driver, err := s.drivers.Get(ctx, driverID); err == nil {
		origin = driver.Location
	}

	jobs = filterSearch(jobs, q.Search)
	annotate(jobs, origin)
	sortJobs(jobs, q.Sort)
	return jobs, nil
}

// WatchAvailable streams the available tab, re-applying the query to each
// pending-pool snapshot.
func (s *Service) WatchAvailable(ctx context.Context, driverID string, q Query) (<-chan []domain.DeliveryJob, error) {
	driverID = strings.TrimSpace(driverID)
	if driverID == "" {
		return nil, apperr.ErrInvalid
	}
	q = q.withDefaults()
	if !q.Sort.Valid() {
		return nil, apperr.ErrInvalid
	}

	ch, err := s.jobs.WatchPending(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan []domain.DeliveryJob, 1)
	go func() {
		defer close(out)
		for snap := range ch {
			var origin *domain.Coordinates
			if driver, err := s.drivers.Get(ctx, driverID); err == nil {
				origin = driver.Location
			}
			snap = filterSearch(snap, q.Search)
			annotate(snap, origin)
			sortJobs(snap, q.Sort)
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *Service) fetch(ctx context.Context, driverID string, tab Tab) ([]domain.DeliveryJob, error) {
	if tab == TabAvailable {
		return s.jobs.PendingJobs(ctx)
	}

	assigned, err := s.jobs.JobsByDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.DeliveryJob, 0, len(assigned))
	for _, job := range assigned {
		delivered := job.Status == domain.StatusDelivered
		if (tab == TabCompleted) == delivered {
			out = append(out, job)
		}
	}
	return out, nil
}

func (q Query) withDefaults() Query {
	if q.Tab == "" {
		q.Tab = TabAvailable
	}
	if q.Sort == "" {
		q.Sort = SortNewest
	}
	return q
}

// filterSearch keeps jobs whose customer, address, company, product or ID
// contains the term, case-insensitively.
func filterSearch(jobs []domain.DeliveryJob, term string) []domain.DeliveryJob {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return jobs
	}
	out := jobs[:0]
	for _, job := range jobs {
		haystacks := []string{
			job.Customer.Name,
			job.Customer.Address,
			job.Company.Name,
			job.Product.Name,
			job.ID,
		}
		for _, h := range haystacks {
			if strings.Contains(strings.ToLower(h), term) {
				out = append(out, job)
				break
			}
		}
	}
	return out
}

// annotate fills DistanceKm and EtaMinutes from the driver's position to
// each job's drop-off point. Jobs without coordinates stay unannotated.
func annotate(jobs []domain.DeliveryJob, origin *domain.Coordinates) {
	if origin == nil {
		return
	}
	for i := range jobs {
		km, ok := geo.Distance(origin, jobs[i].Customer.Coords)
		if !ok {
			continue
		}
		eta := geo.EtaMinutes(km)
		jobs[i].DistanceKm = &km
		jobs[i].EtaMinutes = &eta
	}
}

func sortJobs(jobs []domain.DeliveryJob, order Sort) {
	switch order {
	case SortOldest:
		sort.SliceStable(jobs, func(i, j int) bool {
			return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
		})
	case SortNearest:
		sort.SliceStable(jobs, func(i, j int) bool {
			di, dj := jobs[i].DistanceKm, jobs[j].DistanceKm
			switch {
			case di == nil:
				return false
			case dj == nil:
				return true
			default:
				return *di < *dj
			}
		})
	case SortHighest:
		sort.SliceStable(jobs, func(i, j int) bool {
			return jobs[i].Fee > jobs[j].Fee
		})
	default: // SortNewest
		sort.SliceStable(jobs, func(i, j int) bool {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		})
	}
}
