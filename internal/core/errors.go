package core

import (
	"errors"
	"fmt"
	"strings"
)

// Local precondition failures. These are returned before any remote call.
var (
	// ErrInvalidState is returned when an operation is not allowed in the
	// session's current status, including a trigger issued while a request
	// of the same kind is still in flight.
	ErrInvalidState = errors.New("invalid session state")

	// ErrIncompleteMapping is wrapped by IncompleteMappingError.
	ErrIncompleteMapping = errors.New("incomplete mapping")

	// ErrNoFile is returned when SelectFile receives an empty file.
	ErrNoFile = errors.New("no file provided")

	// ErrUnknownColumn is returned when a toggled column is not one of the
	// inspected headers.
	ErrUnknownColumn = errors.New("column not found")

	// ErrUnknownField is returned for a field outside the LogicalField set.
	ErrUnknownField = errors.New("unknown field")
)

// StateError reports an operation attempted in a status that forbids it.
type StateError struct {
	Op     string
	Status Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %v (status %s)", e.Op, ErrInvalidState, e.Status)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}

// IncompleteMappingError lists the fields that still have no column.
type IncompleteMappingError struct {
	Missing []LogicalField
}

func (e *IncompleteMappingError) Error() string {
	names := make([]string, len(e.Missing))
	for i, f := range e.Missing {
		names[i] = string(f)
	}
	return fmt.Sprintf("%v: no column selected for %s", ErrIncompleteMapping, strings.Join(names, ", "))
}

func (e *IncompleteMappingError) Unwrap() error {
	return ErrIncompleteMapping
}

// InspectionError is a failure reported by the file-inspection service,
// such as a malformed file.
type InspectionError struct {
	Message string
	Err     error
}

func (e *InspectionError) Error() string {
	return "inspection failed: " + e.Message
}

func (e *InspectionError) Unwrap() error {
	return e.Err
}

// ImportError is a validation failure reported by the import-execution service.
type ImportError struct {
	Message string
	Err     error
}

func (e *ImportError) Error() string {
	return "import failed: " + e.Message
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

// ServiceError is a transport or availability failure of a remote service.
type ServiceError struct {
	Service    string
	StatusCode int // 0 when no response was received
	Message    string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s service unavailable (HTTP %d): %s", e.Service, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s service unavailable: %s", e.Service, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// remoteMessage extracts the message to show for a remote failure.
// Typed remote errors surface their message verbatim.
func remoteMessage(err error) string {
	var ie *InspectionError
	if errors.As(err, &ie) {
		return ie.Message
	}
	var me *ImportError
	if errors.As(err, &me) {
		return me.Message
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}
