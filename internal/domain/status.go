package domain

// List of possible job statuses. The lifecycle is linear and forward-only:
// pendingDelivery -> inDelivery -> delivered.
const (
	StatusPendingDelivery JobStatus = "pendingDelivery"
	StatusInDelivery      JobStatus = "inDelivery"
	StatusDelivered       JobStatus = "delivered"
)

// List of allowed source collections
var allowedSources = [...]SourceCollection{
	SourceOrders, SourceDeliveries,
}

var statusOrder = map[JobStatus]int{
	StatusPendingDelivery: 0,
	StatusInDelivery:      1,
	StatusDelivered:       2,
}

// Valid checks if the JobStatus is valid
func (s JobStatus) Valid() bool {
	_, ok := statusOrder[s]
	return ok
}

// Valid checks if the SourceCollection is valid
func (c SourceCollection) Valid() bool {
	for _, v := range allowedSources {
		if c == v {
			return true
		}
	}
	return false
}

// CanTransition reports whether from -> to is a forward step of exactly one
// stage. No transition ever reverses a job to an earlier status.
func CanTransition(from, to JobStatus) bool {
	fo, ok := statusOrder[from]
	if !ok {
		return false
	}
	to2, ok := statusOrder[to]
	if !ok {
		return false
	}
	return to2 == fo+1
}
