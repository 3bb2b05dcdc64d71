package repository

import (
	"context"
	"fmt"

	"github.com/clinicore/clinic-platform/internal/models"
	"gorm.io/gorm"
)

// AuditRepository handles audit log database operations. Writes are not
// scope-filtered (a denied request still gets its denial recorded); reads
// go through the scoped handle like any other partitioned entity.
type AuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create creates a new audit log entry
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

// List retrieves audit logs visible to the active scope
func (r *AuditRepository) List(ctx context.Context, limit, offset int) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	query := r.db.WithContext(ctx).
		Model(&models.AuditLog{}).
		Scopes(ScopeFilter(ctx, models.AuditLog{}.ScopingDescriptor())).
		Order("created_at DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to get audit logs: %w", err)
	}

	return logs, nil
}
