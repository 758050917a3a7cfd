package serviceRepo

import (
	"context"
	"errors"
	"fmt"

	"bookline/database"
	"bookline/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound signals a lookup for a missing service offering.
var ErrNotFound = errors.New("service not found")

// ServiceRepository defines data access for bookable service offerings.
type ServiceRepository interface {
	GetByID(ctx context.Context, id string) (*models.ServiceOffering, error)
	ListActive(ctx context.Context) ([]models.ServiceOffering, error)
	Upsert(ctx context.Context, s *models.ServiceOffering) error
}

// MongoServiceRepo is the MongoDB-backed implementation.
type MongoServiceRepo struct {
	coll *mongo.Collection
}

func NewMongoServiceRepo() *MongoServiceRepo {
	return &MongoServiceRepo{coll: database.DB().Collection("services")}
}

func (r *MongoServiceRepo) GetByID(ctx context.Context, id string) (*models.ServiceOffering, error) {
	var s models.ServiceOffering
	err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&s)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch service %s: %w", id, err)
	}
	return &s, nil
}

func (r *MongoServiceRepo) ListActive(ctx context.Context) ([]models.ServiceOffering, error) {
	cur, err := r.coll.Find(ctx, bson.M{"active": true}, options.Find().SetSort(bson.M{"name": 1}))
	if err != nil {
		return nil, fmt.Errorf("service query failed: %w", err)
	}
	defer cur.Close(ctx)

	var services []models.ServiceOffering
	if err := cur.All(ctx, &services); err != nil {
		return nil, fmt.Errorf("failed to decode services: %w", err)
	}
	return services, nil
}

func (r *MongoServiceRepo) Upsert(ctx context.Context, s *models.ServiceOffering) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := r.coll.ReplaceOne(ctx, bson.M{"id": s.ID}, s, opts); err != nil {
		return fmt.Errorf("failed to upsert service %s: %w", s.ID, err)
	}
	return nil
}
