package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clinicore/clinic-platform/internal/cache"
	"github.com/clinicore/clinic-platform/internal/models"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// hierarchyTTL bounds how long a deactivation can go unnoticed on the hot path
const hierarchyTTL = 30 * time.Second

// HierarchyRepository reads the tenant/company/branch hierarchy with a
// cache-aside in front of it; the resolution middleware hits these lookups
// on every request. Implements isolation.HierarchyStore.
//
// The isolation core never creates or deletes hierarchy records; lookups
// return inactive records as-is and leave liveness decisions to callers.
type HierarchyRepository struct {
	db    *gorm.DB
	cache cache.Cache
}

// NewHierarchyRepository creates the hierarchy repository
func NewHierarchyRepository(db *gorm.DB, c cache.Cache) *HierarchyRepository {
	return &HierarchyRepository{db: db, cache: c}
}

// Tenant retrieves a tenant by id, nil when it does not exist
func (r *HierarchyRepository) Tenant(ctx context.Context, id uint) (*models.Tenant, error) {
	var tenant models.Tenant
	ok, err := r.lookup(ctx, cache.HierarchyKey("tenant", id), &tenant, func() error {
		return r.db.WithContext(ctx).First(&tenant, id).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &tenant, nil
}

// Company retrieves a company by id, nil when it does not exist
func (r *HierarchyRepository) Company(ctx context.Context, id uint) (*models.Company, error) {
	var company models.Company
	ok, err := r.lookup(ctx, cache.HierarchyKey("company", id), &company, func() error {
		return r.db.WithContext(ctx).First(&company, id).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &company, nil
}

// Branch retrieves a branch by id, nil when it does not exist
func (r *HierarchyRepository) Branch(ctx context.Context, id uint) (*models.Branch, error) {
	var branch models.Branch
	ok, err := r.lookup(ctx, cache.HierarchyKey("branch", id), &branch, func() error {
		return r.db.WithContext(ctx).First(&branch, id).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get branch: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &branch, nil
}

// BranchIDsForTenant lists the ids of every active branch owned by a tenant
func (r *HierarchyRepository) BranchIDsForTenant(ctx context.Context, tenantID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).
		Model(&models.Branch{}).
		Select("branches.id").
		Joins("JOIN companies ON companies.id = branches.company_id").
		Where("companies.tenant_id = ? AND branches.is_active = ?", tenantID, true).
		Pluck("branches.id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list tenant branches: %w", err)
	}
	return ids, nil
}

// AllBranchIDs lists every active branch id in the system
func (r *HierarchyRepository) AllBranchIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).
		Model(&models.Branch{}).
		Where("is_active = ?", true).
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	return ids, nil
}

// AssignedBranchIDs lists the branches explicitly assigned to a user
func (r *HierarchyRepository) AssignedBranchIDs(ctx context.Context, userID uuid.UUID) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).
		Model(&models.BranchAssignment{}).
		Where("user_id = ?", userID).
		Pluck("branch_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list branch assignments: %w", err)
	}
	return ids, nil
}

// CountCompanies counts a tenant's companies, soft-deleted ones excluded
func (r *HierarchyRepository) CountCompanies(ctx context.Context, tenantID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Company{}).
		Where("tenant_id = ?", tenantID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count companies: %w", err)
	}
	return count, nil
}

// Invalidate drops a hierarchy record from the cache. Called by the CRUD
// layer after tenant/company/branch updates.
func (r *HierarchyRepository) Invalidate(ctx context.Context, kind string, id uint) {
	if err := r.cache.Delete(ctx, cache.HierarchyKey(kind, id)); err != nil {
		log.Warn().Err(err).Str("kind", kind).Uint("id", id).Msg("Failed to invalidate hierarchy cache")
	}
}

// lookup runs a cache-aside read: cache hit decodes into dest, a miss loads
// from the database and backfills. Returns false when the record does not
// exist. Cache failures degrade to database reads.
func (r *HierarchyRepository) lookup(ctx context.Context, key string, dest interface{}, load func() error) (bool, error) {
	if data, err := r.cache.Get(ctx, key); err == nil {
		if err := json.Unmarshal(data, dest); err == nil {
			return true, nil
		}
		log.Warn().Str("key", key).Msg("Discarding undecodable hierarchy cache entry")
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		log.Warn().Err(err).Str("key", key).Msg("Hierarchy cache read failed")
	}

	if err := load(); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	if data, err := json.Marshal(dest); err == nil {
		if err := r.cache.Set(ctx, key, data, hierarchyTTL); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Hierarchy cache write failed")
		}
	}
	return true, nil
}
