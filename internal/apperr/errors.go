package apperr

import (
	"errors"
	"fmt"
)

// ErrInvalid is returned when the input fails domain validation.
var ErrInvalid = errors.New("invalid input")

// ErrConflict indicates that a guarded update lost a race: another driver
// claimed the job between the read and the write (HTTP 409).
var ErrConflict = errors.New("conflict")

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrPreconditionFailed indicates a transition attempted from a state that does
// not permit it. Callers should re-fetch and present the current state rather
// than retry blindly.
var ErrPreconditionFailed = errors.New("precondition failed")

// Reasons attached to ErrPreconditionFailed.
const (
	ReasonDriverUnavailable   = "driver_unavailable"
	ReasonWrongState          = "wrong_state"
	ReasonNotAssignedToCaller = "not_assigned_to_caller"
)

// PreconditionError carries the specific precondition that failed.
type PreconditionError struct {
	Reason string
}

// Error implements the error interface.
func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed: %s", e.Reason)
}

// Is makes errors.Is(err, ErrPreconditionFailed) match any PreconditionError.
func (e *PreconditionError) Is(target error) bool {
	return target == ErrPreconditionFailed
}

// Precondition builds a PreconditionError with the given reason.
func Precondition(reason string) error {
	return &PreconditionError{Reason: reason}
}

// PreconditionReason extracts the reason from an error chain, or "".
func PreconditionReason(err error) string {
	var pe *PreconditionError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return ""
}
