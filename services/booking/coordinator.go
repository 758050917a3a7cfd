package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	appointmentRepo "bookline/database/repository/appointment"
	providerRepo "bookline/database/repository/provider"
	serviceRepo "bookline/database/repository/service"
	"bookline/models"
	"bookline/services/availability"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReserveRequest carries everything needed to finalize one appointment.
type ReserveRequest struct {
	ProviderID   string // empty means "any active provider"
	ServiceID    string
	Start        time.Time
	ClientChatID int64
	ClientName   string
	PaymentID    string
}

// Coordinator serializes "is slot X still free?" and "create appointment"
// into one logical atomic operation and owns every status transition.
type Coordinator interface {
	// AvailableSlots computes the bookable slots for a provider/service/date.
	AvailableSlots(ctx context.Context, providerID, serviceID string, date time.Time) (models.DayAvailability, error)
	// Reserve atomically re-checks and creates the appointment.
	Reserve(ctx context.Context, req ReserveRequest) (*models.Appointment, error)
	// Cancel is idempotent; the bool reports whether this call did the cancelling.
	Cancel(ctx context.Context, id, actor, reason string) (*models.Appointment, bool, error)
	// Apply drives the remaining lifecycle edges (approve, reject, start,
	// complete, no_show, confirm) through the shared transition table.
	Apply(ctx context.Context, id string, event models.StatusEvent) (*models.Appointment, error)
	// PickProvider resolves the provider a reservation will target.
	PickProvider(ctx context.Context, providerID string) (*models.Provider, error)
}

// DefaultCoordinator is the production implementation.
type DefaultCoordinator struct {
	Appointments appointmentRepo.AppointmentRepository
	Providers    providerRepo.ProviderRepository
	Services     serviceRepo.ServiceRepository
	Granularity  int // candidate spacing in minutes
	Logger       *zap.Logger
	Now          func() time.Time
}

func (c *DefaultCoordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// PickProvider returns the requested provider, or the first active one when
// the caller does not care.
func (c *DefaultCoordinator) PickProvider(ctx context.Context, providerID string) (*models.Provider, error) {
	if providerID != "" {
		p, err := c.Providers.GetByID(ctx, providerID)
		if err != nil {
			if errors.Is(err, providerRepo.ErrNotFound) {
				return nil, ErrNoProviderAvailable
			}
			return nil, err
		}
		if !p.Active {
			return nil, ErrNoProviderAvailable
		}
		return p, nil
	}

	active, err := c.Providers.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	if len(active) == 0 {
		return nil, ErrNoProviderAvailable
	}
	return &active[0], nil
}

func (c *DefaultCoordinator) AvailableSlots(ctx context.Context, providerID, serviceID string, date time.Time) (models.DayAvailability, error) {
	provider, err := c.PickProvider(ctx, providerID)
	if err != nil {
		return models.DayAvailability{}, err
	}
	svc, err := c.Services.GetByID(ctx, serviceID)
	if err != nil {
		return models.DayAvailability{}, err
	}

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	existing, err := c.Appointments.ListActiveForDay(ctx, provider.ID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return models.DayAvailability{}, fmt.Errorf("failed to load reservations: %w", err)
	}

	return availability.ComputeSlots(availability.SlotRequest{
		ProviderID:      provider.ID,
		ServiceDuration: svc.DurationMinutes,
		Date:            date,
		Hours:           provider.Hours,
		Existing:        existing,
		BufferMinutes:   provider.BufferMinutes,
		Granularity:     c.Granularity,
		Now:             c.now(),
	})
}

// Reserve re-checks availability and inserts the appointment as one atomic
// unit. Two callers racing for the same slot cannot both succeed: the loser
// gets ErrSlotUnavailable, never a duplicate row.
func (c *DefaultCoordinator) Reserve(ctx context.Context, req ReserveRequest) (*models.Appointment, error) {
	svc, err := c.Services.GetByID(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}
	if svc.DurationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}

	provider, err := c.PickProvider(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}

	status := models.StatusScheduled
	if svc.ApprovalRequired {
		status = models.StatusPendingApproval
	}

	now := c.now()
	appt := &models.Appointment{
		ID:           uuid.New().String(),
		ClientChatID: req.ClientChatID,
		ClientName:   req.ClientName,
		ProviderID:   provider.ID,
		ServiceID:    svc.ID,
		ServiceName:  svc.Name,
		Status:       status,
		Price:        svc.Price,
		Currency:     svc.Currency,
		PaymentID:    req.PaymentID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	appt.SetTimes(req.Start, svc.DurationMinutes)

	if err := c.Appointments.ReserveTransactionally(ctx, appt, provider.BufferMinutes); err != nil {
		if errors.Is(err, appointmentRepo.ErrSlotTaken) {
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("failed to reserve slot: %w", err)
	}

	if c.Logger != nil {
		c.Logger.Info("appointment reserved",
			zap.String("appointmentID", appt.ID),
			zap.String("providerID", provider.ID),
			zap.Time("start", appt.Start),
			zap.String("status", string(appt.Status)))
	}
	return appt, nil
}

// Cancel patches the status to cancelled and stamps actor/reason/timestamp.
// Cancelling an already-cancelled appointment is reported, not failed, so the
// scheduler and a user tapping twice cannot produce duplicate side effects.
func (c *DefaultCoordinator) Cancel(ctx context.Context, id, actor, reason string) (*models.Appointment, bool, error) {
	meta := &models.CancellationMeta{
		Reason:      reason,
		CancelledBy: actor,
		CancelledAt: c.now(),
	}
	appt, err := c.Appointments.ApplyEvent(ctx, id, models.EventCancel, meta)
	if err != nil {
		if errors.Is(err, appointmentRepo.ErrAlreadyCancelled) {
			return appt, false, nil
		}
		return nil, false, err
	}
	if c.Logger != nil {
		c.Logger.Info("appointment cancelled",
			zap.String("appointmentID", id),
			zap.String("actor", actor),
			zap.String("reason", reason))
	}
	return appt, true, nil
}

func (c *DefaultCoordinator) Apply(ctx context.Context, id string, event models.StatusEvent) (*models.Appointment, error) {
	return c.Appointments.ApplyEvent(ctx, id, event, nil)
}
