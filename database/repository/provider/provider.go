package providerRepo

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

// ErrNotFound signals a lookup for a missing provider.
var ErrNotFound = errors.New("provider not found")

// ProviderRepository defines data access for bookable providers.
type ProviderRepository interface {
	GetByID(ctx context.Context, id string) (*models.Provider, error)
	ListActive(ctx context.Context) ([]models.Provider, error)
	Upsert(ctx context.Context, p *models.Provider) error
}

// MongoProviderRepo is the MongoDB-backed implementation.
type MongoProviderRepo struct {
	coll *mongo.Collection
}

func NewMongoProviderRepo() *MongoProviderRepo {
	return &MongoProviderRepo{coll: database.DB().Collection("providers")}
}

func (r *MongoProviderRepo) GetByID(ctx context.Context, id string) (*models.Provider, error) {
	var p models.Provider
	err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch provider %s: %w", id, err)
	}
	return &p, nil
}

func (r *MongoProviderRepo) ListActive(ctx context.Context) ([]models.Provider, error) {
	cur, err := r.coll.Find(ctx, bson.M{"active": true})
	if err != nil {
		return nil, fmt.Errorf("provider query failed: %w", err)
	}
	defer cur.Close(ctx)

	var providers []models.Provider
	if err := cur.All(ctx, &providers); err != nil {
		return nil, fmt.Errorf("failed to decode providers: %w", err)
	}
	return providers, nil
}

func (r *MongoProviderRepo) Upsert(ctx context.Context, p *models.Provider) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := r.coll.ReplaceOne(ctx, bson.M{"id": p.ID}, p, opts); err != nil {
		return fmt.Errorf("failed to upsert provider %s: %w", p.ID, err)
	}
	return nil
}
