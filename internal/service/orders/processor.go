package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"ferry77-dispatch/internal/apperr"
	"ferry77-dispatch/internal/domain"
	"ferry77-dispatch/internal/logx"
)

// Processor turns marketplace order events into delivery job records. Events
// are at-least-once, so every action is written to be replay safe.
type Processor struct {
	jobs    JobPort
	geo     GeoPort
	factory *actionFactory
	logger  logx.Logger
	now     func() time.Time
	newID   func() string
}

// NewProcessor creates a new orders.Processor. geo may be nil, in which case
// jobs without coordinates are published as-is.
func NewProcessor(jobs JobPort, geo GeoPort, logger logx.Logger) *Processor {
	p := &Processor{
		jobs:   jobs,
		geo:    geo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	p.factory = newActionFactory(p.onRequested, p.onCanceled)
	return p
}

// Handle processes a single order event. Unknown statuses are skipped.
func (p *Processor) Handle(ctx context.Context, e Event) error {
	if p.factory == nil {
		return nil
	}
	fn, ok := p.factory.get(e.Status)
	if !ok {
		return nil
	}
	return fn(ctx, e)
}

func (p *Processor) onRequested(ctx context.Context, e Event) error {
	id, err := p.jobs.CreateFromOrder(ctx, e.OrderID, p.newID(), p.now())
	if errors.Is(err, apperr.ErrNotFound) {
		// The order record never reached the store; nothing to dispatch.
		p.logger.Warn("order event for unknown order",
			logx.String("order_id", e.OrderID),
		)
		return nil
	}
	if err != nil {
		return err
	}
	p.logger.Info("delivery job published",
		logx.String("event", "delivery_job_published"),
		logx.String("order_id", e.OrderID),
		logx.String("delivery_id", id),
	)
	p.backfillCoordinates(ctx, domain.JobRef{ID: id, Source: domain.SourceDeliveries})
	return nil
}

// backfillCoordinates geocodes the drop-off address of a job that arrived
// without coordinates. Best effort; the job is dispatchable either way.
func (p *Processor) backfillCoordinates(ctx context.Context, ref domain.JobRef) {
	if p.geo == nil {
		return
	}
	job, err := p.jobs.Get(ctx, ref)
	if err != nil || job.Customer.Coords != nil || job.Customer.Address == "" {
		return
	}
	loc, err := p.geo.Resolve(ctx, job.Customer.Address)
	if err != nil || loc == nil {
		if err != nil {
			p.logger.Warn("coordinate backfill failed",
				logx.String("delivery_id", ref.ID),
				logx.Err(err),
			)
		}
		return
	}
	if err := p.jobs.SetCoordinates(ctx, ref, *loc); err != nil {
		p.logger.Warn("coordinate write failed",
			logx.String("delivery_id", ref.ID),
			logx.Err(err),
		)
	}
}

func (p *Processor) onCanceled(ctx context.Context, e Event) error {
	err := p.jobs.CancelPendingByOrder(ctx, e.OrderID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return nil
	case errors.Is(err, apperr.ErrConflict):
		// A driver already claimed it; the active delivery continues.
		p.logger.Info("cancel skipped, delivery already claimed",
			logx.String("order_id", e.OrderID),
		)
		return nil
	}
	return err
}
