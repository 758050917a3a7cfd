package booking

import (
	"errors"
	"fmt"
)

var (
	// ErrSlotUnavailable is returned when the reservation race was lost;
	// the user is asked to pick another time.
	ErrSlotUnavailable = errors.New("slot no longer available")
	// ErrNoProviderAvailable is returned when no active provider is configured.
	ErrNoProviderAvailable = errors.New("no provider available")
	// ErrInvalidDuration is returned for a service with a non-positive duration.
	ErrInvalidDuration = errors.New("invalid service duration")
)

// ValidationError describes rejected user input; it is always resolved inside
// the conversation flow by re-prompting, never surfaced to the transport.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
