package domain

import "time"

type (
	// SourceCollection identifies the raw collection a job was normalized from.
	SourceCollection string
	// JobStatus represents the lifecycle status of a delivery job.
	JobStatus string
)

// List of source collections. A job keeps its source so that subsequent writes
// are routed back to the record it came from.
const (
	SourceOrders     SourceCollection = "orders"
	SourceDeliveries SourceCollection = "deliveries"
)

// Coordinates is a geographic point.
type Coordinates struct {
	Lat float64
	Lng float64
}

// Party holds the contact block shared by the customer and company sides of a
// job. ID is the party's account identifier, used to address notifications;
// Coords is nil when the raw record carried no usable coordinates.
type Party struct {
	ID      string
	Name    string
	Phone   string
	Address string
	Coords  *Coordinates
}

// Product describes what is being delivered.
type Product struct {
	Name        string
	Description string
	Image       string
	Quantity    int
}

// DeliveryJob is the canonical job shape, normalized from either source
// collection.
type DeliveryJob struct {
	ID     string
	Source SourceCollection
	Status JobStatus

	// AssignedDriverID is empty until a driver accepts.
	AssignedDriverID string

	Customer Party
	Company  Party
	Product  Product

	// Fee is the amount payable to the driver; Total is the full order amount
	// and may be zero when the source record does not carry it.
	Fee   float64
	Total float64

	// OrderID is the back-reference a delivery-sourced job keeps to its
	// originating order record, if any.
	OrderID string

	CreatedAt   time.Time
	AcceptedAt  *time.Time
	DeliveredAt *time.Time

	// DistanceKm and EtaMinutes are derived per view from the driver's
	// current position and are never persisted. Nil when no position or no
	// job coordinates are known.
	DistanceKm *float64
	EtaMinutes *float64
}

// Assigned reports whether a driver has claimed the job.
func (j *DeliveryJob) Assigned() bool {
	return j.AssignedDriverID != ""
}

// JobRef locates a job inside its source collection.
type JobRef struct {
	ID     string
	Source SourceCollection
}

// AcceptResult is returned by a successful accept transition.
type AcceptResult struct {
	JobID            string
	Source           SourceCollection
	DriverID         string
	AcceptedAt       time.Time
	ActiveDeliveries int
}

// CompleteResult is returned by a successful complete transition.
type CompleteResult struct {
	JobID            string
	Source           SourceCollection
	DriverID         string
	DeliveredAt      time.Time
	ActiveDeliveries int
	TotalDeliveries  int
}
