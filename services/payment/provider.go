package payment

import "context"

// ChargeRequest describes the settlement a gate wants collected.
type ChargeRequest struct {
	Amount      float64 // settlement currency
	Currency    string
	Description string
	PayerChatID int64
}

// ChargeDetails is what the settlement network hands back for a new charge.
type ChargeDetails struct {
	Address     string // destination reference handed to the payer
	PayAmount   float64
	PayCurrency string
}

// SettlementProvider abstracts the payment network. Amounts reported by
// Received are in the settlement currency so they compare directly against
// Payment.Amount.
type SettlementProvider interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeDetails, error)
	// Quote converts a settlement amount into the pay-side amount for an
	// existing address, used when a coupon revises the price.
	Quote(ctx context.Context, amount float64, currency string) (float64, error)
	// Received reports the total amount settled so far against an address.
	Received(ctx context.Context, address string) (float64, error)
}
