package paymentRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bookline/database"
	"bookline/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	// ErrNotFound signals a lookup for a missing payment.
	ErrNotFound = errors.New("payment not found")
	// ErrStatusFinal signals an attempt to move a confirmed or expired
	// payment; payment status only moves forward.
	ErrStatusFinal = errors.New("payment status is final")
)

// PaymentRepository defines data access for payments gating appointments.
type PaymentRepository interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	ListPending(ctx context.Context) ([]models.Payment, error)
	// UpdateReceived records a partial or full amount received; pending only.
	UpdateReceived(ctx context.Context, id string, amountReceived float64) error
	// UpdateAmount revises the expected amount (coupon adjustment); pending only.
	UpdateAmount(ctx context.Context, id string, amount, payAmount float64) error
	// Finalize moves a pending payment to confirmed or expired, optionally
	// linking the created appointment. Forward-only.
	Finalize(ctx context.Context, id string, status models.PaymentStatus, appointmentID string) error
}

// MongoPaymentRepo is the MongoDB-backed implementation.
type MongoPaymentRepo struct {
	coll *mongo.Collection
}

func NewMongoPaymentRepo() *MongoPaymentRepo {
	return &MongoPaymentRepo{coll: database.DB().Collection("payments")}
}

func (r *MongoPaymentRepo) Create(ctx context.Context, p *models.Payment) error {
	if _, err := r.coll.InsertOne(ctx, p); err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *MongoPaymentRepo) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	var p models.Payment
	err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payment %s: %w", id, err)
	}
	return &p, nil
}

func (r *MongoPaymentRepo) ListPending(ctx context.Context) ([]models.Payment, error) {
	cur, err := r.coll.Find(ctx, bson.M{"status": models.PaymentPending})
	if err != nil {
		return nil, fmt.Errorf("payment query failed: %w", err)
	}
	defer cur.Close(ctx)

	var payments []models.Payment
	if err := cur.All(ctx, &payments); err != nil {
		return nil, fmt.Errorf("failed to decode payments: %w", err)
	}
	return payments, nil
}

func (r *MongoPaymentRepo) UpdateReceived(ctx context.Context, id string, amountReceived float64) error {
	return r.pendingUpdate(ctx, id, bson.M{"amountReceived": amountReceived})
}

func (r *MongoPaymentRepo) UpdateAmount(ctx context.Context, id string, amount, payAmount float64) error {
	return r.pendingUpdate(ctx, id, bson.M{"amount": amount, "payAmount": payAmount})
}

func (r *MongoPaymentRepo) Finalize(ctx context.Context, id string, status models.PaymentStatus, appointmentID string) error {
	set := bson.M{"status": status, "updatedAt": time.Now()}
	if appointmentID != "" {
		set["appointmentId"] = appointmentID
	}
	return r.guardedUpdate(ctx, id, set)
}

func (r *MongoPaymentRepo) pendingUpdate(ctx context.Context, id string, set bson.M) error {
	set["updatedAt"] = time.Now()
	return r.guardedUpdate(ctx, id, set)
}

// guardedUpdate writes only while the payment is still pending, which is what
// keeps the pending → confirmed|expired progression one-way under
// concurrent pollers.
func (r *MongoPaymentRepo) guardedUpdate(ctx context.Context, id string, set bson.M) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"id": id, "status": models.PaymentPending},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("failed to update payment %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrStatusFinal
	}
	return nil
}
