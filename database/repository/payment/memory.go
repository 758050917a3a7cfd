package paymentRepo

import (
	"context"
	"sync"
	"time"

	"bookline/models"
)

// MemoryPaymentRepo is a mutex-guarded in-memory implementation for tests and
// local development. It enforces the same pending-only write guard as Mongo.
type MemoryPaymentRepo struct {
	mu       sync.Mutex
	payments map[string]*models.Payment
}

func NewMemoryPaymentRepo() *MemoryPaymentRepo {
	return &MemoryPaymentRepo{payments: make(map[string]*models.Payment)}
}

func (r *MemoryPaymentRepo) Create(_ context.Context, p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.payments[p.ID] = &cp
	return nil
}

func (r *MemoryPaymentRepo) GetByID(_ context.Context, id string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryPaymentRepo) ListPending(_ context.Context) ([]models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Payment
	for _, p := range r.payments {
		if p.Status == models.PaymentPending {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *MemoryPaymentRepo) UpdateReceived(_ context.Context, id string, amountReceived float64) error {
	return r.pendingUpdate(id, func(p *models.Payment) {
		p.AmountReceived = amountReceived
	})
}

func (r *MemoryPaymentRepo) UpdateAmount(_ context.Context, id string, amount, payAmount float64) error {
	return r.pendingUpdate(id, func(p *models.Payment) {
		p.Amount = amount
		p.PayAmount = payAmount
	})
}

func (r *MemoryPaymentRepo) Finalize(_ context.Context, id string, status models.PaymentStatus, appointmentID string) error {
	return r.pendingUpdate(id, func(p *models.Payment) {
		p.Status = status
		if appointmentID != "" {
			p.AppointmentID = appointmentID
		}
	})
}

func (r *MemoryPaymentRepo) pendingUpdate(id string, apply func(*models.Payment)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return ErrNotFound
	}
	if p.Status != models.PaymentPending {
		return ErrStatusFinal
	}
	apply(p)
	p.UpdatedAt = time.Now()
	return nil
}
