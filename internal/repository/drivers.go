package repository

import (
	"context"
	"fmt"
	"time"

	"ferry77-dispatch/internal/docstore"
	"ferry77-dispatch/internal/domain"
	"ferry77-dispatch/internal/logx"
)

// DriverRepo persists driver profiles: status, workload counters and the
// last reported location.
type DriverRepo struct {
	store  docstore.Store
	logger logx.Logger
}

// NewDriverRepo creates a new DriverRepo.
func NewDriverRepo(store docstore.Store, logger logx.Logger) *DriverRepo {
	return &DriverRepo{store: store, logger: logger}
}

// Get returns the driver profile.
func (r *DriverRepo) Get(ctx context.Context, id string) (*domain.DriverProfile, error) {
	raw, err := r.store.Get(ctx, docstore.CollectionDrivers, id)
	if err != nil {
		return nil, err
	}
	p := parseDriver(raw)
	return &p, nil
}

// GetTx is Get inside a transaction.
func (r *DriverRepo) GetTx(ctx context.Context, tx docstore.Tx, id string) (*domain.DriverProfile, error) {
	raw, err := tx.Get(ctx, docstore.CollectionDrivers, id)
	if err != nil {
		return nil, err
	}
	p := parseDriver(raw)
	return &p, nil
}

// SetStatus writes the working status and stamps lastStatusUpdate.
func (r *DriverRepo) SetStatus(ctx context.Context, id string, status domain.DriverStatus, now time.Time) error {
	return r.store.Update(ctx, docstore.CollectionDrivers, id, docstore.Record{
		"status":           string(status),
		"lastStatusUpdate": now.UTC().Format(time.RFC3339),
	})
}

// UpdateLocation stores the driver's reported position.
func (r *DriverRepo) UpdateLocation(ctx context.Context, id string, loc domain.Coordinates, now time.Time) error {
	return r.store.Update(ctx, docstore.CollectionDrivers, id, docstore.Record{
		"location": map[string]any{
			"lat":         loc.Lat,
			"lng":         loc.Lng,
			"lastUpdated": now.UTC().Format(time.RFC3339),
		},
	})
}

// IncActiveTx bumps activeDeliveries inside the acceptance transaction and
// returns the new value.
func (r *DriverRepo) IncActiveTx(ctx context.Context, tx docstore.Tx, id string) (int, error) {
	return tx.Increment(ctx, docstore.CollectionDrivers, id, "activeDeliveries", 1)
}

// FinishDeliveryTx decrements activeDeliveries (floored at zero by the
// store) and increments totalDeliveries, both inside the completion
// transaction.
func (r *DriverRepo) FinishDeliveryTx(ctx context.Context, tx docstore.Tx, id string) (active, total int, err error) {
	active, err = tx.Increment(ctx, docstore.CollectionDrivers, id, "activeDeliveries", -1)
	if err != nil {
		return 0, 0, fmt.Errorf("decrement active deliveries: %w", err)
	}
	total, err = tx.Increment(ctx, docstore.CollectionDrivers, id, "totalDeliveries", 1)
	if err != nil {
		return 0, 0, fmt.Errorf("increment total deliveries: %w", err)
	}
	return active, total, nil
}

// SetCounters overwrites both workload counters, used by reconciliation when
// the stored counters have drifted from the assigned jobs.
func (r *DriverRepo) SetCounters(ctx context.Context, id string, active, total int) error {
	if active < 0 {
		active = 0
	}
	if total < 0 {
		total = 0
	}
	return r.store.Update(ctx, docstore.CollectionDrivers, id, docstore.Record{
		"activeDeliveries": active,
		"totalDeliveries":  total,
	})
}

// IDs returns the IDs of every stored driver.
func (r *DriverRepo) IDs(ctx context.Context) ([]string, error) {
	records, err := r.store.Query(ctx, docstore.CollectionDrivers, docstore.Predicate{})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(records))
	for _, raw := range records {
		if id, _ := raw["id"].(string); id != "" {
			out = append(out, id)
		}
	}
	return out, nil
}

// Watch streams the driver profile on every change. Stored documents do not
// carry their ID as a field, so the subscription is collection-wide and the
// driver is picked out of each snapshot.
func (r *DriverRepo) Watch(ctx context.Context, id string) (<-chan domain.DriverProfile, error) {
	ch, err := r.store.Subscribe(ctx, docstore.CollectionDrivers, docstore.Predicate{})
	if err != nil {
		return nil, err
	}
	out := make(chan domain.DriverProfile, 1)
	go func() {
		defer close(out)
		for snap := range ch {
			for _, raw := range snap {
				if docID, _ := raw["id"].(string); docID != id {
					continue
				}
				select {
				case out <- parseDriver(raw):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func parseDriver(raw docstore.Record) domain.DriverProfile {
	p := domain.DriverProfile{
		Status: domain.DriverAvailable,
	}
	p.ID, _ = raw["id"].(string)
	p.Name, _ = raw["name"].(string)
	p.Phone, _ = raw["phone"].(string)
	if s, _ := raw["status"].(string); domain.DriverStatus(s).Valid() {
		p.Status = domain.DriverStatus(s)
	}
	p.ActiveDeliveries = intField(raw, "activeDeliveries")
	p.TotalDeliveries = intField(raw, "totalDeliveries")
	if s, _ := raw["lastStatusUpdate"].(string); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			p.LastStatusUpdate = t
		}
	}
	if loc, ok := raw["location"].(map[string]any); ok {
		lat, okLat := toNumber(loc["lat"])
		lng, okLng := toNumber(loc["lng"])
		if okLat && okLng {
			p.Location = &domain.Coordinates{Lat: lat, Lng: lng}
		}
	}
	return p
}

func intField(raw docstore.Record, key string) int {
	f, ok := toNumber(raw[key])
	if !ok || f < 0 {
		return 0
	}
	return int(f)
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
