package domain

import "time"

// DriverStatus represents a driver's self-reported availability. It is
// deliberately decoupled from job status: a driver can be mid-delivery and
// still report a break to stop further acceptance.
type DriverStatus string

// List of possible driver statuses. Break sub-kinds are flat peers, not a
// separate flag per kind. Only StatusAvailable permits accepting a job.
const (
	DriverAvailable   DriverStatus = "available"
	DriverBreakfast   DriverStatus = "breakfast"
	DriverLunch       DriverStatus = "lunch"
	DriverOnBreak     DriverStatus = "on_break"
	DriverStalled     DriverStatus = "stalled"
	DriverEndingShift DriverStatus = "ending_shift"
)

var allowedDriverStatuses = [...]DriverStatus{
	DriverAvailable, DriverBreakfast, DriverLunch,
	DriverOnBreak, DriverStalled, DriverEndingShift,
}

// Valid checks if the DriverStatus is valid
func (s DriverStatus) Valid() bool {
	for _, v := range allowedDriverStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// CanAccept reports whether a driver in this status may accept new jobs.
func (s DriverStatus) CanAccept() bool {
	return s == DriverAvailable
}

// DriverProfile is the partial driver view relevant to dispatch.
// ActiveDeliveries is incremented exactly once per accepted job and
// decremented exactly once per completed job, floored at zero.
type DriverProfile struct {
	ID               string
	Name             string
	Phone            string
	Status           DriverStatus
	ActiveDeliveries int
	TotalDeliveries  int
	LastStatusUpdate time.Time
	Location         *Coordinates
}
