package models

// ServiceOffering is a bookable service category (e.g. "New registration",
// "Mobile SIM activation", "Technical support").
type ServiceOffering struct {
	ID               string  `bson:"id" json:"id"`
	Name             string  `bson:"name" json:"name"`
	DurationMinutes  int     `bson:"durationMinutes" json:"durationMinutes"`
	Price            float64 `bson:"price" json:"price"`
	Currency         string  `bson:"currency" json:"currency"`
	PaymentRequired  bool    `bson:"paymentRequired" json:"paymentRequired"`
	ApprovalRequired bool    `bson:"approvalRequired" json:"approvalRequired"`
	Active           bool    `bson:"active" json:"active"`
}
