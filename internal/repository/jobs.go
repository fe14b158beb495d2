package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ferry77-dispatch/internal/apperr"
	"ferry77-dispatch/internal/docstore"
	"ferry77-dispatch/internal/domain"
	"ferry77-dispatch/internal/logx"
	"ferry77-dispatch/internal/normalize"
)

// JobRepo reads and mutates delivery jobs across the two source collections,
// returning them in canonical normalized form.
type JobRepo struct {
	store  docstore.Store
	logger logx.Logger
}

// NewJobRepo creates a new JobRepo.
func NewJobRepo(store docstore.Store, logger logx.Logger) *JobRepo {
	return &JobRepo{store: store, logger: logger}
}

// Collection maps a source collection onto its store collection name.
func Collection(source domain.SourceCollection) string {
	if source == domain.SourceDeliveries {
		return docstore.CollectionDeliveries
	}
	return docstore.CollectionOrders
}

// Get fetches and normalizes one job.
func (r *JobRepo) Get(ctx context.Context, ref domain.JobRef) (*domain.DeliveryJob, error) {
	raw, err := r.store.Get(ctx, Collection(ref.Source), ref.ID)
	if err != nil {
		return nil, err
	}
	job, prov := normalize.JobWithProvenance(raw, ref.Source)
	r.logger.Debug("job normalized",
		logx.String("job_id", job.ID),
		logx.String("source", string(ref.Source)),
		logx.Any("provenance", prov),
	)
	return &job, nil
}

// PendingJobs returns unassigned pending jobs from both source collections.
func (r *JobRepo) PendingJobs(ctx context.Context) ([]domain.DeliveryJob, error) {
	var out []domain.DeliveryJob
	for _, source := range []domain.SourceCollection{domain.SourceOrders, domain.SourceDeliveries} {
		records, err := r.store.Query(ctx, Collection(source), pendingPredicate(source))
		if err != nil {
			return nil, fmt.Errorf("query pending %s: %w", source, err)
		}
		for _, raw := range records {
			job := normalize.Job(raw, source)
			// The predicate already excludes assigned records; this guards
			// against raw aliases the store cannot express.
			if job.Assigned() {
				continue
			}
			out = append(out, job)
		}
	}
	sortByCreatedDesc(out)
	return out, nil
}

// JobsByDriver returns every job assigned to the driver, newest first.
func (r *JobRepo) JobsByDriver(ctx context.Context, driverID string) ([]domain.DeliveryJob, error) {
	var out []domain.DeliveryJob
	for _, source := range []domain.SourceCollection{domain.SourceOrders, domain.SourceDeliveries} {
		pred := docstore.Predicate{
			Eq: map[string]any{normalize.AssigneeField(source): driverID},
		}
		records, err := r.store.Query(ctx, Collection(source), pred)
		if err != nil {
			return nil, fmt.Errorf("query driver jobs %s: %w", source, err)
		}
		for _, raw := range records {
			out = append(out, normalize.Job(raw, source))
		}
	}
	sortByCreatedDesc(out)
	return out, nil
}

// AcceptTx performs the guarded acceptance write inside a transaction. The
// guard pins the pending status and the absence of an assignee, so of two
// concurrent accepts exactly one succeeds and the other gets ErrConflict.
func (r *JobRepo) AcceptTx(ctx context.Context, tx docstore.Tx, ref domain.JobRef, driverID string, now time.Time) error {
	guard := pendingPredicate(ref.Source)
	changes := docstore.Record{
		"status":           string(domain.StatusInDelivery),
		"assignedDriverId": driverID,
		"assignedAt":       now.UTC().Format(time.RFC3339),
	}
	changes[normalize.AssigneeField(ref.Source)] = driverID
	return tx.ConditionalUpdate(ctx, Collection(ref.Source), ref.ID, guard, changes)
}

// CompleteTx performs the guarded completion write inside a transaction. The
// guard requires the in-delivery status and the caller as assignee.
func (r *JobRepo) CompleteTx(ctx context.Context, tx docstore.Tx, ref domain.JobRef, driverID string, now time.Time) error {
	guard := docstore.Predicate{
		Eq: map[string]any{
			"status":                           string(domain.StatusInDelivery),
			normalize.AssigneeField(ref.Source): driverID,
		},
	}
	changes := docstore.Record{
		"status":      string(domain.StatusDelivered),
		"deliveredAt": now.UTC().Format(time.RFC3339),
	}
	return tx.ConditionalUpdate(ctx, Collection(ref.Source), ref.ID, guard, changes)
}

// MirrorAccept copies the acceptance onto the originating order record of a
// delivery-sourced job. Best effort; the caller logs failures.
func (r *JobRepo) MirrorAccept(ctx context.Context, orderID, driverID string, now time.Time) error {
	return r.store.Update(ctx, docstore.CollectionOrders, orderID, docstore.Record{
		"status":           string(domain.StatusInDelivery),
		"assignedDelivery": driverID,
		"assignedAt":       now.UTC().Format(time.RFC3339),
	})
}

// MirrorComplete copies the completion onto the originating order record.
func (r *JobRepo) MirrorComplete(ctx context.Context, orderID string, now time.Time) error {
	return r.store.Update(ctx, docstore.CollectionOrders, orderID, docstore.Record{
		"status":      string(domain.StatusDelivered),
		"deliveredAt": now.UTC().Format(time.RFC3339),
	})
}

// CreateFromOrder publishes a delivery document for an accepted order,
// deduplicating on the order back-reference.
func (r *JobRepo) CreateFromOrder(ctx context.Context, orderID, deliveryID string, now time.Time) (string, error) {
	order, err := r.store.Get(ctx, docstore.CollectionOrders, orderID)
	if err != nil {
		return "", err
	}

	existing, err := r.store.Query(ctx, docstore.CollectionDeliveries, docstore.Predicate{
		Eq: map[string]any{"orderId": orderID},
	})
	if err != nil {
		return "", fmt.Errorf("check existing delivery for order %q: %w", orderID, err)
	}
	if len(existing) > 0 {
		id, _ := existing[0]["id"].(string)
		return id, nil
	}

	doc := docstore.Record{
		"orderId":             orderID,
		"status":              normalize.PendingStatus(domain.SourceDeliveries),
		"createdAt":           now.UTC().Format(time.RFC3339),
		"companyId":           order["companyId"],
		"companyName":         order["companyName"],
		"companyAddress":      order["companyAddress"],
		"companyPhone":        order["companyPhone"],
		"customerId":          order["customerId"],
		"customerName":        order["customerName"],
		"customerPhone":       order["customerPhone"],
		"deliveryAddress":     order["deliveryAddress"],
		"deliveryCoordinates": order["deliveryCoordinates"],
		"productName":         order["productName"],
		"productDescription":  order["productDescription"],
		"productImage":        order["productImage"],
		"quantity":            order["quantity"],
		"deliveryFee":         order["deliveryFee"],
		"total":               order["total"],
	}
	for k, v := range doc {
		if v == nil {
			delete(doc, k)
		}
	}

	if err := r.store.Insert(ctx, docstore.CollectionDeliveries, deliveryID, doc); err != nil {
		return "", fmt.Errorf("insert delivery for order %q: %w", orderID, err)
	}

	if err := r.store.Update(ctx, docstore.CollectionOrders, orderID, docstore.Record{
		"status":     string(domain.StatusPendingDelivery),
		"deliveryId": deliveryID,
	}); err != nil {
		r.logger.Warn("order back-link update failed",
			logx.String("order_id", orderID),
			logx.Err(err),
		)
	}
	return deliveryID, nil
}

// SetCoordinates backfills the drop-off coordinates of a job that arrived
// without them.
func (r *JobRepo) SetCoordinates(ctx context.Context, ref domain.JobRef, loc domain.Coordinates) error {
	return r.store.Update(ctx, Collection(ref.Source), ref.ID, docstore.Record{
		"deliveryCoordinates": map[string]any{"lat": loc.Lat, "lng": loc.Lng},
	})
}

// CancelPendingByOrder withdraws the unclaimed delivery of a cancelled
// order. A delivery already claimed by a driver is left alone and the
// conflict is reported to the caller.
func (r *JobRepo) CancelPendingByOrder(ctx context.Context, orderID string) error {
	records, err := r.store.Query(ctx, docstore.CollectionDeliveries, docstore.Predicate{
		Eq: map[string]any{"orderId": orderID},
	})
	if err != nil {
		return fmt.Errorf("find delivery for order %q: %w", orderID, err)
	}
	if len(records) == 0 {
		return apperr.ErrNotFound
	}
	id, _ := records[0]["id"].(string)
	guard := docstore.Predicate{
		Eq:      map[string]any{"status": normalize.PendingStatus(domain.SourceDeliveries)},
		Missing: []string{normalize.AssigneeField(domain.SourceDeliveries)},
	}
	return r.store.ConditionalUpdate(ctx, docstore.CollectionDeliveries, id, guard, docstore.Record{
		"status": "cancelled",
	})
}

// SetDriverLocation writes the driver's current position onto a job record
// so trackers of that job see the courier move.
func (r *JobRepo) SetDriverLocation(ctx context.Context, ref domain.JobRef, loc domain.Coordinates, now time.Time) error {
	return r.store.Update(ctx, Collection(ref.Source), ref.ID, docstore.Record{
		"driverLocation": map[string]any{
			"lat":       loc.Lat,
			"lng":       loc.Lng,
			"updatedAt": now.UTC().Format(time.RFC3339),
		},
	})
}

// WatchPending streams normalized snapshots of the pending pool, merging the
// live subscriptions of both source collections.
func (r *JobRepo) WatchPending(ctx context.Context) (<-chan []domain.DeliveryJob, error) {
	ordersCh, err := r.store.Subscribe(ctx, docstore.CollectionOrders, pendingPredicate(domain.SourceOrders))
	if err != nil {
		return nil, err
	}
	deliveriesCh, err := r.store.Subscribe(ctx, docstore.CollectionDeliveries, pendingPredicate(domain.SourceDeliveries))
	if err != nil {
		return nil, err
	}

	out := make(chan []domain.DeliveryJob, 1)
	go func() {
		defer close(out)
		var orders, deliveries []domain.DeliveryJob
		emit := func() {
			merged := make([]domain.DeliveryJob, 0, len(orders)+len(deliveries))
			merged = append(merged, orders...)
			merged = append(merged, deliveries...)
			sortByCreatedDesc(merged)
			select {
			case out <- merged:
			case <-ctx.Done():
			default:
				select {
				case <-out:
				default:
				}
				select {
				case out <- merged:
				default:
				}
			}
		}
		for ordersCh != nil || deliveriesCh != nil {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-ordersCh:
				if !ok {
					ordersCh = nil
					continue
				}
				orders = normalizeAll(snap, domain.SourceOrders)
				emit()
			case snap, ok := <-deliveriesCh:
				if !ok {
					deliveriesCh = nil
					continue
				}
				deliveries = normalizeAll(snap, domain.SourceDeliveries)
				emit()
			}
		}
	}()
	return out, nil
}

func normalizeAll(records []docstore.Record, source domain.SourceCollection) []domain.DeliveryJob {
	out := make([]domain.DeliveryJob, 0, len(records))
	for _, raw := range records {
		job := normalize.Job(raw, source)
		if job.Assigned() {
			continue
		}
		out = append(out, job)
	}
	return out
}

func pendingPredicate(source domain.SourceCollection) docstore.Predicate {
	return docstore.Predicate{
		Eq:      map[string]any{"status": normalize.PendingStatus(source)},
		Missing: []string{normalize.AssigneeField(source), "assignedDriverId"},
	}
}

func sortByCreatedDesc(jobs []domain.DeliveryJob) {
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
}
