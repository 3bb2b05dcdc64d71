package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/clinicore/clinic-platform/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRepository handles user account database operations. Users are
// tenant-level: rows with a NULL tenant id are platform accounts and stay
// visible to every scope.
type UserRepository struct {
	scoped *ScopedDB
}

// NewUserRepository creates a new user repository
func NewUserRepository(scoped *ScopedDB) *UserRepository {
	return &UserRepository{scoped: scoped}
}

// GetByID retrieves a user visible to the active scope
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.scoped.Scoped(ctx, models.User{}).
		Where("users.id = ?", id).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// List retrieves users visible to the active scope
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	var users []models.User
	query := r.scoped.Scoped(ctx, models.User{}).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// Create creates a user inside the active scope's tenant
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.scoped.ValidateInsert(ctx, user.ScopingDescriptor(), nil, user.TenantID); err != nil {
		return err
	}
	if err := r.scoped.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// Update saves changes to a user. The tenant and company assignment set at
// creation can never change.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	existing, err := r.GetByID(ctx, user.ID)
	if err != nil {
		return err
	}
	if !uintPtrEqual(existing.TenantID, user.TenantID) || !uintPtrEqual(existing.CompanyID, user.CompanyID) {
		return ErrImmutableTenantField
	}
	if err := r.scoped.db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

func uintPtrEqual(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
