// Package normalize reconciles raw records from the two heterogeneous source
// collections into the canonical DeliveryJob shape. Normalization is total:
// absent fields resolve through ordered per-field fallback chains and never
// produce an error.
package normalize

import (
	"encoding/json"
	"strconv"
	"time"

	"ferry77-dispatch/internal/docstore"
	"ferry77-dispatch/internal/domain"
)

// Display defaults used when every fallback alternative is absent. The
// literals come from the upstream marketplace and are shown verbatim.
const (
	DefaultProductName  = "Producto"
	DefaultCustomerName = "Cliente"
	DefaultCompanyName  = "Empresa"
)

// Provenance records which raw field supplied each canonical value. It is
// diagnostic only; nothing downstream branches on it.
type Provenance map[string]string

// Job maps a raw record from the given source collection to a DeliveryJob.
func Job(raw docstore.Record, source domain.SourceCollection) domain.DeliveryJob {
	j, _ := JobWithProvenance(raw, source)
	return j
}

// JobWithProvenance is Job plus the per-field provenance for debug logging.
func JobWithProvenance(raw docstore.Record, source domain.SourceCollection) (domain.DeliveryJob, Provenance) {
	r := resolver{raw: raw, prov: Provenance{}}

	// The deliveries collection writes clientName first.
	customerName := r.str("customerName", []string{"clientName"}, DefaultCustomerName)
	if source == domain.SourceDeliveries {
		customerName = r.str("clientName", []string{"customerName"}, DefaultCustomerName)
	}

	job := domain.DeliveryJob{
		ID:               r.str("id", nil, ""),
		Source:           source,
		Status:           Status(raw, source),
		AssignedDriverID: r.str("assignedDriverId", []string{"assignedDelivery", "driverId"}, ""),
		Customer: domain.Party{
			ID:      r.str("customerId", []string{"clientId", "userId"}, ""),
			Name:    customerName,
			Phone:   r.str("customerPhone", []string{"clientPhone", "phone"}, ""),
			Address: r.str("deliveryAddress", []string{"address"}, ""),
			Coords:  r.coords("deliveryCoordinates"),
		},
		Company: domain.Party{
			ID:      r.str("companyId", []string{"businessId", "storeId"}, ""),
			Name:    r.str("companyName", []string{"businessName", "storeName"}, DefaultCompanyName),
			Phone:   r.str("companyPhone", []string{"businessPhone"}, ""),
			Address: r.str("companyAddress", []string{"businessAddress", "storeAddress"}, ""),
			Coords:  r.coords("companyCoordinates"),
		},
		Product: domain.Product{
			Name:        r.str("productName", []string{"itemName", "item"}, DefaultProductName),
			Description: r.str("productDescription", []string{"description", "itemDescription"}, ""),
			Image:       r.str("productImage", []string{"itemImage", "image"}, ""),
			Quantity:    r.quantity(),
		},
		Fee:       r.num("deliveryFee", []string{"offeredPrice", "price"}),
		Total:     r.num("total", []string{"orderTotal"}),
		OrderID:   r.str("orderId", nil, ""),
		CreatedAt: r.time("createdAt"),
	}
	if t := r.time("assignedAt"); !t.IsZero() {
		job.AcceptedAt = &t
	} else if t := r.time("acceptedAt"); !t.IsZero() {
		job.AcceptedAt = &t
	}
	if t := r.time("deliveredAt"); !t.IsZero() {
		job.DeliveredAt = &t
	}
	return job, r.prov
}

// Status maps the raw status of either collection onto the canonical enum.
// The deliveries collection historically used pendingDriver and
// driverAssigned; both are tolerated on read.
func Status(raw docstore.Record, source domain.SourceCollection) domain.JobStatus {
	s, _ := raw["status"].(string)
	switch s {
	case "pendingDriver", string(domain.StatusPendingDelivery), "":
		return domain.StatusPendingDelivery
	case "driverAssigned", string(domain.StatusInDelivery):
		return domain.StatusInDelivery
	case string(domain.StatusDelivered):
		return domain.StatusDelivered
	default:
		// Unknown upstream statuses (cancellation and other externally
		// owned states) are treated as pending and never surfaced as
		// acceptable by the view predicates.
		return domain.StatusPendingDelivery
	}
}

// PendingStatus returns the raw status value a pending job carries in its
// source collection, used to build acceptance guards.
func PendingStatus(source domain.SourceCollection) string {
	if source == domain.SourceDeliveries {
		return "pendingDriver"
	}
	return string(domain.StatusPendingDelivery)
}

// AssigneeField returns the raw field that carries the assigned driver in
// the source collection.
func AssigneeField(source domain.SourceCollection) string {
	if source == domain.SourceDeliveries {
		return "driverId"
	}
	return "assignedDelivery"
}

type resolver struct {
	raw  docstore.Record
	prov Provenance
}

// str resolves a string field through key, then fallbacks, then def.
func (r resolver) str(key string, fallbacks []string, def string) string {
	for _, k := range append([]string{key}, fallbacks...) {
		if s, ok := r.raw[k].(string); ok && s != "" {
			r.prov[key] = k
			return s
		}
	}
	r.prov[key] = "default"
	return def
}

// num resolves a numeric field; missing or non-numeric values become 0 so
// downstream sorting and formatting can assume a number.
func (r resolver) num(key string, fallbacks []string) float64 {
	for _, k := range append([]string{key}, fallbacks...) {
		if f, ok := asNumber(r.raw[k]); ok {
			r.prov[key] = k
			return f
		}
	}
	r.prov[key] = "default"
	return 0
}

// quantity resolves quantity -> productQuantity -> 1.
func (r resolver) quantity() int {
	for _, k := range []string{"quantity", "productQuantity"} {
		if f, ok := asNumber(r.raw[k]); ok && f > 0 {
			r.prov["quantity"] = k
			return int(f)
		}
	}
	r.prov["quantity"] = "default"
	return 1
}

// coords reads a nested {lat, lng} object; nil when absent or malformed.
func (r resolver) coords(key string) *domain.Coordinates {
	obj, ok := r.raw[key].(map[string]any)
	if !ok {
		return nil
	}
	lat, okLat := asNumber(obj["lat"])
	lng, okLng := asNumber(obj["lng"])
	if !okLat || !okLng {
		return nil
	}
	r.prov[key] = key
	return &domain.Coordinates{Lat: lat, Lng: lng}
}

// time reads an RFC 3339 timestamp; zero time when absent or unparseable.
func (r resolver) time(key string) time.Time {
	s, ok := r.raw[key].(string)
	if !ok || s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
