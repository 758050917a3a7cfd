package appointmentRepo

import (
	"context"
	"fmt"
	"time"

	"bookline/database"
	"bookline/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoAppointmentRepo is the MongoDB-backed implementation.
type MongoAppointmentRepo struct {
	coll *mongo.Collection
}

func NewMongoAppointmentRepo() *MongoAppointmentRepo {
	return &MongoAppointmentRepo{coll: database.DB().Collection("appointments")}
}

func activeStatuses() bson.A {
	return bson.A{
		models.StatusPendingApproval,
		models.StatusScheduled,
		models.StatusConfirmed,
		models.StatusInProgress,
		models.StatusCompleted,
	}
}

func (r *MongoAppointmentRepo) GetByID(ctx context.Context, id string) (*models.Appointment, error) {
	var appt models.Appointment
	err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&appt)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch appointment %s: %w", id, err)
	}
	return &appt, nil
}

// overlapFilter matches active appointments for the provider whose buffered
// range intersects [start, end).
func overlapFilter(providerID string, start, end time.Time, bufferMinutes int) bson.M {
	buf := time.Duration(bufferMinutes) * time.Minute
	return bson.M{
		"providerId": providerID,
		"status":     bson.M{"$in": activeStatuses()},
		"start":      bson.M{"$lt": end.Add(buf)},
		"end":        bson.M{"$gt": start.Add(-buf)},
	}
}

func (r *MongoAppointmentRepo) ListActiveForDay(ctx context.Context, providerID string, dayStart, dayEnd time.Time) ([]models.Appointment, error) {
	filter := bson.M{
		"providerId": providerID,
		"status":     bson.M{"$in": activeStatuses()},
		"start":      bson.M{"$gte": dayStart, "$lt": dayEnd},
	}
	return r.find(ctx, filter, options.Find().SetSort(bson.M{"start": 1}))
}

func (r *MongoAppointmentRepo) ListStartingWithin(ctx context.Context, from, to time.Time) ([]models.Appointment, error) {
	filter := bson.M{
		"status": bson.M{"$in": bson.A{models.StatusScheduled, models.StatusConfirmed}},
		"start":  bson.M{"$gte": from, "$lt": to},
	}
	return r.find(ctx, filter, options.Find().SetSort(bson.M{"start": 1}))
}

func (r *MongoAppointmentRepo) ListByClient(ctx context.Context, chatID int64) ([]models.Appointment, error) {
	return r.find(ctx, bson.M{"clientChatId": chatID}, options.Find().SetSort(bson.M{"start": -1}))
}

func (r *MongoAppointmentRepo) ListByStatus(ctx context.Context, status models.AppointmentStatus, limit int64) ([]models.Appointment, error) {
	opts := options.Find().SetSort(bson.M{"start": 1})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return r.find(ctx, bson.M{"status": status}, opts)
}

func (r *MongoAppointmentRepo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Appointment, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("appointment query failed: %w", err)
	}
	defer cur.Close(ctx)

	var appts []models.Appointment
	if err := cur.All(ctx, &appts); err != nil {
		return nil, fmt.Errorf("failed to decode appointments: %w", err)
	}
	return appts, nil
}

// ReserveTransactionally performs the overlap recheck and the insert inside a
// single transaction. Two racing callers both re-count inside their own
// transaction; write-conflict retries mean at most one insert survives.
func (r *MongoAppointmentRepo) ReserveTransactionally(ctx context.Context, appt *models.Appointment, bufferMinutes int) error {
	client := r.coll.Database().Client()
	sess, err := client.StartSession()
	if err != nil {
		return fmt.Errorf("could not start mongo session: %w", err)
	}
	defer sess.EndSession(ctx)

	txnFn := func(sc mongo.SessionContext) error {
		n, err := r.coll.CountDocuments(sc, overlapFilter(appt.ProviderID, appt.Start, appt.End, bufferMinutes))
		if err != nil {
			return fmt.Errorf("overlap recheck failed: %w", err)
		}
		if n > 0 {
			return ErrSlotTaken
		}
		if _, err := r.coll.InsertOne(sc, appt); err != nil {
			return fmt.Errorf("insert appointment failed: %w", err)
		}
		return nil
	}

	if err := mongo.WithSession(ctx, sess, func(sc mongo.SessionContext) error {
		if err := sc.StartTransaction(); err != nil {
			return err
		}
		if err := txnFn(sc); err != nil {
			_ = sc.AbortTransaction(sc)
			return err
		}
		return sc.CommitTransaction(sc)
	}); err != nil {
		if err == ErrSlotTaken {
			return ErrSlotTaken
		}
		return fmt.Errorf("reservation transaction failed: %w", err)
	}

	return nil
}

func (r *MongoAppointmentRepo) ApplyEvent(ctx context.Context, id string, event models.StatusEvent, cancellation *models.CancellationMeta) (*models.Appointment, error) {
	appt, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if event == models.EventCancel && appt.Status == models.StatusCancelled {
		return appt, ErrAlreadyCancelled
	}

	next, err := models.Transition(appt.Status, event)
	if err != nil {
		return appt, err
	}

	set := bson.M{"status": next, "updatedAt": time.Now()}
	if cancellation != nil {
		set["cancellation"] = cancellation
	}

	// Conditional on the status we read: a concurrent transition invalidates
	// this write instead of being overwritten.
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"id": id, "status": appt.Status},
		bson.M{"$set": set},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to apply %s to appointment %s: %w", event, id, err)
	}
	if res.MatchedCount == 0 {
		return nil, ErrStaleStatus
	}

	appt.Status = next
	if cancellation != nil {
		appt.Cancellation = cancellation
	}
	return appt, nil
}

func (r *MongoAppointmentRepo) MarkConfirmationRequired(ctx context.Context, id, token string, sentAt time.Time) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{
			"id":                    id,
			"status":                bson.M{"$in": bson.A{models.StatusScheduled, models.StatusConfirmed}},
			"confirmation.required": bson.M{"$ne": true},
		},
		bson.M{"$set": bson.M{
			"confirmation": models.ConfirmationMeta{Required: true, Token: token, SentAt: sentAt},
			"updatedAt":    time.Now(),
		}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark confirmation required on %s: %w", id, err)
	}
	return res.MatchedCount > 0, nil
}

func (r *MongoAppointmentRepo) AcknowledgeConfirmation(ctx context.Context, id, token string) error {
	appt, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if appt.Confirmation == nil || appt.Confirmation.Token != token {
		return fmt.Errorf("unknown confirmation token for appointment %s", id)
	}
	if appt.Confirmation.Confirmed {
		return nil
	}

	set := bson.M{"confirmation.confirmed": true, "updatedAt": time.Now()}
	if appt.Status == models.StatusScheduled {
		set["status"] = models.StatusConfirmed
	}
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"id": id, "status": appt.Status, "confirmation.token": token},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("failed to acknowledge confirmation on %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrStaleStatus
	}
	return nil
}
