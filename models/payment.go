package models

import "time"

// PaymentStatus only moves forward: pending → confirmed or pending → expired.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentExpired   PaymentStatus = "expired"
)

// Payment is a settlement request gating an appointment.
type Payment struct {
	ID             string        `bson:"id" json:"id"`
	AppointmentID  string        `bson:"appointmentId,omitempty" json:"appointmentId,omitempty"` // empty until finalized
	SessionKey     string        `bson:"sessionKey,omitempty" json:"sessionKey,omitempty"`
	PayerChatID    int64         `bson:"payerChatId" json:"payerChatId"`
	Description    string        `bson:"description" json:"description"`
	Address        string        `bson:"address" json:"address"` // destination reference handed to the payer
	Amount         float64       `bson:"amount" json:"amount"`   // settlement currency
	Currency       string        `bson:"currency" json:"currency"`
	PayAmount      float64       `bson:"payAmount" json:"payAmount"` // payment-network currency
	PayCurrency    string        `bson:"payCurrency" json:"payCurrency"`
	AmountReceived float64       `bson:"amountReceived" json:"amountReceived"`
	Status         PaymentStatus `bson:"status" json:"status"`
	ExpiresAt      time.Time     `bson:"expiresAt" json:"expiresAt"`
	CreatedAt      time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time     `bson:"updatedAt" json:"updatedAt"`
}

// Remaining returns the outstanding balance; zero when fully covered.
func (p *Payment) Remaining() float64 {
	if p.AmountReceived >= p.Amount {
		return 0
	}
	return p.Amount - p.AmountReceived
}

// PaymentStatusResult is the answer to a poll.
type PaymentStatusResult struct {
	Status         PaymentStatus `json:"status"`
	AmountReceived float64       `json:"amountReceived"`
	Remaining      float64       `json:"remaining"`
}
