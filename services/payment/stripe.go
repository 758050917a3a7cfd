package payment

import (
	"context"
	"fmt"
	"math"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
)

// StripeProvider settles charges through Stripe PaymentIntents. The intent ID
// doubles as the address handed to the payer.
type StripeProvider struct{}

func NewStripeProvider(apiKey string) *StripeProvider {
	stripe.Key = apiKey
	return &StripeProvider{}
}

func (s *StripeProvider) CreateCharge(_ context.Context, req ChargeRequest) (*ChargeDetails, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(toMinorUnits(req.Amount)),
		Currency:    stripe.String(req.Currency),
		Description: stripe.String(req.Description),
	}
	params.AddMetadata("payerChatId", fmt.Sprintf("%d", req.PayerChatID))

	intent, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe intent creation failed: %w", err)
	}
	return &ChargeDetails{
		Address:     intent.ID,
		PayAmount:   req.Amount,
		PayCurrency: req.Currency,
	}, nil
}

// Quote is the identity conversion: Stripe settles in the charge currency.
func (s *StripeProvider) Quote(_ context.Context, amount float64, _ string) (float64, error) {
	return amount, nil
}

func (s *StripeProvider) Received(_ context.Context, address string) (float64, error) {
	intent, err := paymentintent.Get(address, nil)
	if err != nil {
		return 0, fmt.Errorf("stripe intent lookup failed: %w", err)
	}
	return float64(intent.AmountReceived) / 100, nil
}

func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
