package appointmentRepo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the indexes the reservation and reminder paths rely on.
func (r *MongoAppointmentRepo) EnsureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			// Overlap recheck inside the reservation transaction.
			Keys: bson.D{{Key: "providerId", Value: 1}, {Key: "status", Value: 1}, {Key: "start", Value: 1}},
		},
		{
			// Reminder scan over the lookahead window.
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "start", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "clientChatId", Value: 1}, {Key: "start", Value: -1}},
		},
	}

	if _, err := r.coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create appointment indexes: %w", err)
	}
	return nil
}
