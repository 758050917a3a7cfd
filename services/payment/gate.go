package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	paymentRepo "bookline/database/repository/payment"
	"bookline/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrPaymentNotPending signals an operation that only applies while the
	// payment can still move.
	ErrPaymentNotPending = errors.New("payment is no longer pending")
	// ErrInvalidDiscount signals a coupon that would not reduce the price.
	ErrInvalidDiscount = errors.New("discounted amount must be positive and below the current amount")
)

// Fulfiller receives the terminal payment outcomes. OnConfirmed performs the
// deferred reservation and returns the appointment ID to link; OnExpired
// releases whatever the payment was holding.
type Fulfiller interface {
	OnConfirmed(ctx context.Context, p *models.Payment) (string, error)
	OnExpired(ctx context.Context, p *models.Payment) error
}

// Gate owns the payment lifecycle in front of reservation. No appointment
// gated by a payment exists until the payment confirms.
type Gate interface {
	RequirePayment(ctx context.Context, req ChargeRequest, sessionKey string) (*models.Payment, error)
	PollStatus(ctx context.Context, paymentID string) (models.PaymentStatusResult, error)
	ApplyCoupon(ctx context.Context, paymentID string, discounted float64) (*models.Payment, error)
	SweepPending(ctx context.Context) error
}

// DefaultGate is the production implementation.
type DefaultGate struct {
	Payments  paymentRepo.PaymentRepository
	Provider  SettlementProvider
	Fulfiller Fulfiller
	Expiry    time.Duration
	Logger    *zap.Logger
	Now       func() time.Time
}

func (g *DefaultGate) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// RequirePayment opens a charge on the settlement network and persists the
// pending payment. The returned record carries the address and pay-side
// amount to present to the payer.
func (g *DefaultGate) RequirePayment(ctx context.Context, req ChargeRequest, sessionKey string) (*models.Payment, error) {
	details, err := g.Provider.CreateCharge(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to open charge: %w", err)
	}

	now := g.now()
	p := &models.Payment{
		ID:          uuid.New().String(),
		SessionKey:  sessionKey,
		PayerChatID: req.PayerChatID,
		Description: req.Description,
		Address:     details.Address,
		Amount:      req.Amount,
		Currency:    req.Currency,
		PayAmount:   details.PayAmount,
		PayCurrency: details.PayCurrency,
		Status:      models.PaymentPending,
		ExpiresAt:   now.Add(g.Expiry),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := g.Payments.Create(ctx, p); err != nil {
		return nil, err
	}

	if g.Logger != nil {
		g.Logger.Info("payment required",
			zap.String("paymentID", p.ID),
			zap.Float64("amount", p.Amount),
			zap.String("currency", p.Currency),
			zap.Time("expiresAt", p.ExpiresAt))
	}
	return p, nil
}

// PollStatus reconciles one payment against the settlement network. A partial
// amount keeps the payment pending and reports the remaining balance; full
// coverage confirms it and runs the deferred reservation exactly once; an
// overdue shortfall expires it. Polling a final payment is a cheap no-op that
// replays the recorded outcome.
func (g *DefaultGate) PollStatus(ctx context.Context, paymentID string) (models.PaymentStatusResult, error) {
	p, err := g.Payments.GetByID(ctx, paymentID)
	if err != nil {
		return models.PaymentStatusResult{}, err
	}
	if p.Status != models.PaymentPending {
		return result(p), nil
	}

	received, err := g.Provider.Received(ctx, p.Address)
	if err != nil {
		return models.PaymentStatusResult{}, fmt.Errorf("failed to poll settlement: %w", err)
	}
	if received != p.AmountReceived {
		if err := g.Payments.UpdateReceived(ctx, paymentID, received); err != nil {
			if errors.Is(err, paymentRepo.ErrStatusFinal) {
				return g.replayFinal(ctx, paymentID)
			}
			return models.PaymentStatusResult{}, err
		}
		p.AmountReceived = received
	}

	switch {
	case received >= p.Amount:
		return g.confirm(ctx, p)
	case g.now().After(p.ExpiresAt):
		return g.expire(ctx, p)
	default:
		return result(p), nil
	}
}

func (g *DefaultGate) confirm(ctx context.Context, p *models.Payment) (models.PaymentStatusResult, error) {
	appointmentID := ""
	if g.Fulfiller != nil {
		id, err := g.Fulfiller.OnConfirmed(ctx, p)
		if err != nil {
			return models.PaymentStatusResult{}, fmt.Errorf("payment confirmed but fulfillment failed: %w", err)
		}
		appointmentID = id
	}
	if err := g.Payments.Finalize(ctx, p.ID, models.PaymentConfirmed, appointmentID); err != nil {
		if errors.Is(err, paymentRepo.ErrStatusFinal) {
			return g.replayFinal(ctx, p.ID)
		}
		return models.PaymentStatusResult{}, err
	}
	p.Status = models.PaymentConfirmed
	p.AppointmentID = appointmentID
	if g.Logger != nil {
		g.Logger.Info("payment confirmed",
			zap.String("paymentID", p.ID),
			zap.String("appointmentID", appointmentID))
	}
	return result(p), nil
}

func (g *DefaultGate) expire(ctx context.Context, p *models.Payment) (models.PaymentStatusResult, error) {
	if err := g.Payments.Finalize(ctx, p.ID, models.PaymentExpired, ""); err != nil {
		if errors.Is(err, paymentRepo.ErrStatusFinal) {
			return g.replayFinal(ctx, p.ID)
		}
		return models.PaymentStatusResult{}, err
	}
	p.Status = models.PaymentExpired
	if g.Fulfiller != nil {
		if err := g.Fulfiller.OnExpired(ctx, p); err != nil && g.Logger != nil {
			g.Logger.Warn("expiry cleanup failed", zap.String("paymentID", p.ID), zap.Error(err))
		}
	}
	if g.Logger != nil {
		g.Logger.Info("payment expired",
			zap.String("paymentID", p.ID),
			zap.Float64("received", p.AmountReceived),
			zap.Float64("amount", p.Amount))
	}
	return result(p), nil
}

// replayFinal re-reads after losing a finalize race so the caller still gets
// the settled outcome.
func (g *DefaultGate) replayFinal(ctx context.Context, paymentID string) (models.PaymentStatusResult, error) {
	p, err := g.Payments.GetByID(ctx, paymentID)
	if err != nil {
		return models.PaymentStatusResult{}, err
	}
	return result(p), nil
}

// ApplyCoupon revises a pending payment down to the discounted amount. The
// destination address is reused; only the expected amounts change.
func (g *DefaultGate) ApplyCoupon(ctx context.Context, paymentID string, discounted float64) (*models.Payment, error) {
	p, err := g.Payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PaymentPending {
		return nil, ErrPaymentNotPending
	}
	if discounted <= 0 || discounted >= p.Amount {
		return nil, ErrInvalidDiscount
	}

	payAmount, err := g.Provider.Quote(ctx, discounted, p.Currency)
	if err != nil {
		return nil, fmt.Errorf("failed to requote charge: %w", err)
	}
	if err := g.Payments.UpdateAmount(ctx, paymentID, discounted, payAmount); err != nil {
		if errors.Is(err, paymentRepo.ErrStatusFinal) {
			return nil, ErrPaymentNotPending
		}
		return nil, err
	}

	p.Amount = discounted
	p.PayAmount = payAmount
	if g.Logger != nil {
		g.Logger.Info("coupon applied",
			zap.String("paymentID", paymentID),
			zap.Float64("amount", discounted))
	}
	return p, nil
}

// SweepPending polls every pending payment once. The worker runs this on a
// schedule so confirmations and expiries land without user interaction.
func (g *DefaultGate) SweepPending(ctx context.Context) error {
	pending, err := g.Payments.ListPending(ctx)
	if err != nil {
		return err
	}
	for i := range pending {
		if _, err := g.PollStatus(ctx, pending[i].ID); err != nil && g.Logger != nil {
			g.Logger.Warn("payment poll failed",
				zap.String("paymentID", pending[i].ID),
				zap.Error(err))
		}
	}
	return nil
}

func result(p *models.Payment) models.PaymentStatusResult {
	return models.PaymentStatusResult{
		Status:         p.Status,
		AmountReceived: p.AmountReceived,
		Remaining:      p.Remaining(),
	}
}
