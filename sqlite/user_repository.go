package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"go.wtyk.dev/authd/domain"
)

// userRow is the relational shape of a user record. Conversion in and out
// keeps gorm tags off the domain type.
type userRow struct {
	ID          string     `gorm:"primaryKey;column:id"`
	Email       string     `gorm:"column:email;uniqueIndex;not null"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
	LastLoginAt *time.Time `gorm:"column:last_login_at"`
	IsDeleted   bool       `gorm:"column:is_deleted;index"`
	DeletedAt   *time.Time `gorm:"column:deleted_at"`
}

func (userRow) TableName() string { return "users" }

func (r *userRow) toDomain() *domain.User {
	return &domain.User{
		ID:          r.ID,
		Email:       r.Email,
		CreatedAt:   r.CreatedAt,
		LastLoginAt: r.LastLoginAt,
		IsDeleted:   r.IsDeleted,
		DeletedAt:   r.DeletedAt,
	}
}

func userRowFrom(u *domain.User) *userRow {
	return &userRow{
		ID:          u.ID,
		Email:       u.Email,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
		IsDeleted:   u.IsDeleted,
		DeletedAt:   u.DeletedAt,
	}
}

// UserRepository implements domain.UserRepository on SQLite.
type UserRepository struct {
	db *gorm.DB
}

var _ domain.UserRepository = (*UserRepository)(nil)

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) CreateUser(ctx context.Context, user *domain.User) error {
	err := r.db.WithContext(ctx).Create(userRowFrom(user)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrUserExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	var row userRow
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return row.toDomain(), nil
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var row userRow
	err := r.db.WithContext(ctx).First(&row, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return row.toDomain(), nil
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&userRow{}).
		Where("id = ?", id).
		Update("last_login_at", &now)
	if res.Error != nil {
		return fmt.Errorf("touch last login: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) MarkDeleted(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&userRow{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]any{"is_deleted": true, "deleted_at": &now})
	if res.Error != nil {
		return fmt.Errorf("mark user deleted: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
