package appointmentRepo

import (
	"context"
	"errors"
	"time"

	"bookline/models"
)

var (
	// ErrNotFound signals a lookup for a missing appointment.
	ErrNotFound = errors.New("appointment not found")
	// ErrSlotTaken signals that the overlap recheck inside the reservation
	// transaction found a competing active appointment.
	ErrSlotTaken = errors.New("slot already taken")
	// ErrAlreadyCancelled signals an idempotent cancel of a cancelled appointment.
	ErrAlreadyCancelled = errors.New("appointment already cancelled")
	// ErrStaleStatus signals that a conditional status update lost to a
	// concurrent writer; the caller should re-read and decide again.
	ErrStaleStatus = errors.New("appointment status changed concurrently")
)

// AppointmentRepository defines the data access methods used by the
// reservation coordinator, the reminder scheduler and the ops surface.
type AppointmentRepository interface {
	// GetByID retrieves an appointment by its unique ID.
	GetByID(ctx context.Context, id string) (*models.Appointment, error)
	// ListActiveForDay returns a provider's active appointments within one day window.
	ListActiveForDay(ctx context.Context, providerID string, dayStart, dayEnd time.Time) ([]models.Appointment, error)
	// ListStartingWithin returns active appointments starting in [from, to),
	// across all providers, for the reminder scan.
	ListStartingWithin(ctx context.Context, from, to time.Time) ([]models.Appointment, error)
	// ListByClient returns a client's appointments, newest first.
	ListByClient(ctx context.Context, chatID int64) ([]models.Appointment, error)
	// ListByStatus returns appointments in the given status, soonest first.
	ListByStatus(ctx context.Context, status models.AppointmentStatus, limit int64) ([]models.Appointment, error)
	// ReserveTransactionally re-checks availability and inserts the
	// appointment as one atomic unit; ErrSlotTaken when the race was lost.
	ReserveTransactionally(ctx context.Context, appt *models.Appointment, bufferMinutes int) error
	// ApplyEvent transitions an appointment through the status machine with a
	// conditional write, so concurrent writers can never move it backwards.
	// A cancel of an already-cancelled appointment returns ErrAlreadyCancelled.
	ApplyEvent(ctx context.Context, id string, event models.StatusEvent, cancellation *models.CancellationMeta) (*models.Appointment, error)
	// MarkConfirmationRequired stamps the confirmation handshake on an active
	// appointment; returns false when already stamped (at-most-once).
	MarkConfirmationRequired(ctx context.Context, id, token string, sentAt time.Time) (bool, error)
	// AcknowledgeConfirmation records the client's confirmation for the token.
	AcknowledgeConfirmation(ctx context.Context, id, token string) error
}
