package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"go.wtyk.dev/authd/domain"
)

type apiKeyRow struct {
	ID         string     `gorm:"primaryKey;column:id"`
	UserID     string     `gorm:"column:user_id;index;not null"`
	Hash       string     `gorm:"column:api_key_hash;uniqueIndex;not null"`
	KeyPrefix  string     `gorm:"column:key_prefix;not null"`
	Name       string     `gorm:"column:name;not null"`
	LastUsedAt *time.Time `gorm:"column:last_used_at"`
	CreatedAt  time.Time  `gorm:"column:created_at"`
	ExpiresAt  *time.Time `gorm:"column:expires_at"`
	IsActive   bool       `gorm:"column:is_active"`
}

func (apiKeyRow) TableName() string { return "api_keys" }

func (r *apiKeyRow) toDomain() *domain.APIKey {
	return &domain.APIKey{
		ID:         r.ID,
		UserID:     r.UserID,
		Hash:       r.Hash,
		KeyPrefix:  r.KeyPrefix,
		Name:       r.Name,
		LastUsedAt: r.LastUsedAt,
		CreatedAt:  r.CreatedAt,
		ExpiresAt:  r.ExpiresAt,
		IsActive:   r.IsActive,
	}
}

func apiKeyRowFrom(k *domain.APIKey) *apiKeyRow {
	return &apiKeyRow{
		ID:         k.ID,
		UserID:     k.UserID,
		Hash:       k.Hash,
		KeyPrefix:  k.KeyPrefix,
		Name:       k.Name,
		LastUsedAt: k.LastUsedAt,
		CreatedAt:  k.CreatedAt,
		ExpiresAt:  k.ExpiresAt,
		IsActive:   k.IsActive,
	}
}

// APIKeyRepository implements domain.APIKeyRepository on SQLite.
type APIKeyRepository struct {
	db *gorm.DB
}

var _ domain.APIKeyRepository = (*APIKeyRepository)(nil)

func NewAPIKeyRepository(db *gorm.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

func (r *APIKeyRepository) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	if err := r.db.WithContext(ctx).Create(apiKeyRowFrom(key)).Error; err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (r *APIKeyRepository) GetAPIKeyByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	var row apiKeyRow
	err := r.db.WithContext(ctx).First(&row, "api_key_hash = ?", hash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrAPIKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get api key by hash: %w", err)
	}
	return row.toDomain(), nil
}

func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, id string) error {
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Model(&apiKeyRow{}).
		Where("id = ?", id).
		Update("last_used_at", &now).Error
	if err != nil {
		return fmt.Errorf("touch api key last used: %w", err)
	}
	return nil
}

func (r *APIKeyRepository) ListAPIKeys(ctx context.Context, userID string) ([]*domain.APIKey, error) {
	var rows []apiKeyRow
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	keys := make([]*domain.APIKey, 0, len(rows))
	for i := range rows {
		keys = append(keys, rows[i].toDomain())
	}
	return keys, nil
}

func (r *APIKeyRepository) RevokeAPIKey(ctx context.Context, id, userID string) error {
	res := r.db.WithContext(ctx).Model(&apiKeyRow{}).
		Where("id = ? AND user_id = ? AND is_active = ?", id, userID, true).
		Update("is_active", false)
	if res.Error != nil {
		return fmt.Errorf("revoke api key: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrAPIKeyNotFound
	}
	return nil
}

func (r *APIKeyRepository) DeleteAPIKeysForUser(ctx context.Context, userID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&apiKeyRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete api keys for user: %w", res.Error)
	}
	return res.RowsAffected, nil
}
