package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"go.wtyk.dev/authd/domain"
	"go.wtyk.dev/authd/log"
)

// APIKeyRepository implements domain.APIKeyRepository on MongoDB.
type APIKeyRepository struct {
	keys   *mongo.Collection
	logger log.Logger
}

var _ domain.APIKeyRepository = (*APIKeyRepository)(nil)

// NewAPIKeyRepository creates the repository and ensures its indexes.
func NewAPIKeyRepository(ctx context.Context, db *mongo.Database, logger log.Logger) (*APIKeyRepository, error) {
	repo := &APIKeyRepository{
		keys:   db.Collection(APIKeysCollection),
		logger: logger,
	}
	if err := repo.createIndexes(ctx); err != nil {
		logger.Warn(ctx, "failed to create api key indexes", err)
	}
	return repo, nil
}

func (r *APIKeyRepository) createIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "api_key_hash", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	}
	if _, err := r.keys.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes for api keys collection: %w", err)
	}
	return nil
}

func (r *APIKeyRepository) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	if _, err := r.keys.InsertOne(ctx, key); err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (r *APIKeyRepository) GetAPIKeyByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	var key domain.APIKey
	err := r.keys.FindOne(ctx, bson.M{"api_key_hash": hash}).Decode(&key)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrAPIKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get api key by hash: %w", err)
	}
	return &key, nil
}

func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, id string) error {
	_, err := r.keys.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"last_used_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("touch api key last used: %w", err)
	}
	return nil
}

func (r *APIKeyRepository) ListAPIKeys(ctx context.Context, userID string) ([]*domain.APIKey, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.keys.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer cursor.Close(ctx)

	var keys []*domain.APIKey
	if err := cursor.All(ctx, &keys); err != nil {
		return nil, fmt.Errorf("decode api keys: %w", err)
	}
	return keys, nil
}

func (r *APIKeyRepository) RevokeAPIKey(ctx context.Context, id, userID string) error {
	res, err := r.keys.UpdateOne(ctx,
		bson.M{"_id": id, "user_id": userID, "is_active": true},
		bson.M{"$set": bson.M{"is_active": false}})
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrAPIKeyNotFound
	}
	return nil
}

func (r *APIKeyRepository) DeleteAPIKeysForUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.keys.DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("delete api keys for user: %w", err)
	}
	return res.DeletedCount, nil
}
