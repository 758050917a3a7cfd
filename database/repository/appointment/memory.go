package appointmentRepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"bookline/models"
)

// MemoryAppointmentRepo is a mutex-guarded in-memory implementation. It backs
// tests and local development; the mutex around check-then-insert gives the
// same at-most-one-winner guarantee the Mongo transaction provides.
type MemoryAppointmentRepo struct {
	mu    sync.Mutex
	appts map[string]*models.Appointment
}

func NewMemoryAppointmentRepo() *MemoryAppointmentRepo {
	return &MemoryAppointmentRepo{appts: make(map[string]*models.Appointment)}
}

func (r *MemoryAppointmentRepo) GetByID(_ context.Context, id string) (*models.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	appt, ok := r.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *appt
	return &cp, nil
}

func (r *MemoryAppointmentRepo) ListActiveForDay(_ context.Context, providerID string, dayStart, dayEnd time.Time) ([]models.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collect(func(a *models.Appointment) bool {
		return a.ProviderID == providerID && a.Status.Active() &&
			!a.Start.Before(dayStart) && a.Start.Before(dayEnd)
	}), nil
}

func (r *MemoryAppointmentRepo) ListStartingWithin(_ context.Context, from, to time.Time) ([]models.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collect(func(a *models.Appointment) bool {
		if a.Status != models.StatusScheduled && a.Status != models.StatusConfirmed {
			return false
		}
		return !a.Start.Before(from) && a.Start.Before(to)
	}), nil
}

func (r *MemoryAppointmentRepo) ListByClient(_ context.Context, chatID int64) ([]models.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	appts := r.collect(func(a *models.Appointment) bool { return a.ClientChatID == chatID })
	sort.Slice(appts, func(i, j int) bool { return appts[i].Start.After(appts[j].Start) })
	return appts, nil
}

func (r *MemoryAppointmentRepo) ListByStatus(_ context.Context, status models.AppointmentStatus, limit int64) ([]models.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	appts := r.collect(func(a *models.Appointment) bool { return a.Status == status })
	if limit > 0 && int64(len(appts)) > limit {
		appts = appts[:limit]
	}
	return appts, nil
}

func (r *MemoryAppointmentRepo) collect(match func(*models.Appointment) bool) []models.Appointment {
	var out []models.Appointment
	for _, a := range r.appts {
		if match(a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func (r *MemoryAppointmentRepo) ReserveTransactionally(_ context.Context, appt *models.Appointment, bufferMinutes int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.appts {
		if existing.ProviderID != appt.ProviderID || !existing.Status.Active() {
			continue
		}
		if existing.Overlaps(appt.Start, appt.End, bufferMinutes) {
			return ErrSlotTaken
		}
	}
	cp := *appt
	r.appts[appt.ID] = &cp
	return nil
}

func (r *MemoryAppointmentRepo) ApplyEvent(_ context.Context, id string, event models.StatusEvent, cancellation *models.CancellationMeta) (*models.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	appt, ok := r.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if event == models.EventCancel && appt.Status == models.StatusCancelled {
		cp := *appt
		return &cp, ErrAlreadyCancelled
	}
	next, err := models.Transition(appt.Status, event)
	if err != nil {
		cp := *appt
		return &cp, err
	}
	appt.Status = next
	appt.UpdatedAt = time.Now()
	if cancellation != nil {
		appt.Cancellation = cancellation
	}
	cp := *appt
	return &cp, nil
}

func (r *MemoryAppointmentRepo) MarkConfirmationRequired(_ context.Context, id, token string, sentAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	appt, ok := r.appts[id]
	if !ok {
		return false, ErrNotFound
	}
	if appt.Status != models.StatusScheduled && appt.Status != models.StatusConfirmed {
		return false, nil
	}
	if appt.Confirmation != nil && appt.Confirmation.Required {
		return false, nil
	}
	appt.Confirmation = &models.ConfirmationMeta{Required: true, Token: token, SentAt: sentAt}
	appt.UpdatedAt = time.Now()
	return true, nil
}

func (r *MemoryAppointmentRepo) AcknowledgeConfirmation(_ context.Context, id, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	appt, ok := r.appts[id]
	if !ok {
		return ErrNotFound
	}
	if appt.Confirmation == nil || appt.Confirmation.Token != token {
		return ErrNotFound
	}
	if appt.Confirmation.Confirmed {
		return nil
	}
	appt.Confirmation.Confirmed = true
	if appt.Status == models.StatusScheduled {
		appt.Status = models.StatusConfirmed
	}
	appt.UpdatedAt = time.Now()
	return nil
}
