package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/clinicore/clinic-platform/internal/isolation"
	"github.com/clinicore/clinic-platform/internal/metrics"
	"github.com/clinicore/clinic-platform/internal/models"
	"github.com/clinicore/clinic-platform/internal/scope"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	// ErrScopeViolation marks a read or write that falls outside the active
	// access scope.
	ErrScopeViolation = errors.New("operation not permitted under current access scope")

	// ErrImmutableTenantField marks an attempt to change an entity's tenant
	// or company after creation.
	ErrImmutableTenantField = errors.New("tenant and company assignment cannot change after creation")
)

// ScopedDB wraps a gorm handle so every query against a partitioned entity
// type carries the active scope's predicate. The only way around the filter
// is the explicit, audited Bypass.
type ScopedDB struct {
	db    *gorm.DB
	audit *AuditRepository
	iso   *isolation.Service
}

// NewScopedDB creates the scoped database wrapper
func NewScopedDB(db *gorm.DB, audit *AuditRepository, iso *isolation.Service) *ScopedDB {
	return &ScopedDB{db: db, audit: audit, iso: iso}
}

// ScopeFilter returns the gorm scope enforcing tenant and branch isolation
// for one descriptor. The returned function is pure over the active scope,
// so reapplying it to a fresh statement is always safe.
func ScopeFilter(ctx context.Context, desc models.ScopingDescriptor) func(*gorm.DB) *gorm.DB {
	sc := scope.FromContext(ctx)
	return func(tx *gorm.DB) *gorm.DB {
		if sc.IsSuperAdmin {
			return tx
		}
		if sc.TenantID == nil {
			// Unresolved or cleared scope: match nothing.
			return tx.Where("1 = 0")
		}
		switch {
		case desc.BranchScoped():
			tx = tx.Where(desc.BranchColumn+" IN (?)", tenantBranchIDs(tx, *sc.TenantID))
			if sc.ShouldFilterByBranch() {
				tx = tx.Where(desc.BranchColumn+" IN ?", sc.EffectiveBranchIDs())
			}
			return tx
		case desc.TenantColumn != "":
			if desc.AllowNullTenant {
				return tx.Where(desc.TenantColumn+" = ? OR "+desc.TenantColumn+" IS NULL", *sc.TenantID)
			}
			return tx.Where(desc.TenantColumn+" = ?", *sc.TenantID)
		default:
			// A partitioned type with no scoping columns cannot be filtered.
			return tx.Where("1 = 0")
		}
	}
}

// tenantBranchIDs builds the subquery resolving every branch id owned by a
// tenant through the branches -> companies chain.
func tenantBranchIDs(tx *gorm.DB, tenantID uint) *gorm.DB {
	return tx.Session(&gorm.Session{NewDB: true}).
		Model(&models.Branch{}).
		Select("branches.id").
		Joins("JOIN companies ON companies.id = branches.company_id").
		Where("companies.tenant_id = ?", tenantID)
}

// Scoped returns a query handle constrained to the active scope. Soft-deleted
// rows are excluded by gorm's default DeletedAt handling.
func (s *ScopedDB) Scoped(ctx context.Context, model models.Partitioned) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(model).
		Scopes(ScopeFilter(ctx, model.ScopingDescriptor()))
}

// ScopedIncludingDeleted is the explicit opt-in for soft-deleted rows. The
// tenant predicate still applies in full.
func (s *ScopedDB) ScopedIncludingDeleted(ctx context.Context, model models.Partitioned) *gorm.DB {
	return s.db.WithContext(ctx).
		Unscoped().
		Model(model).
		Scopes(ScopeFilter(ctx, model.ScopingDescriptor()))
}

// Bypass returns an unfiltered handle for privileged cross-tenant
// operations. Only a SuperAdmin scope may obtain one, and every grant is
// audit-logged and counted.
func (s *ScopedDB) Bypass(ctx context.Context, reason string) (*gorm.DB, error) {
	sc := scope.FromContext(ctx)
	if !sc.IsSuperAdmin {
		metrics.AccessDenials.WithLabelValues("bypass").Inc()
		return nil, ErrScopeViolation
	}
	metrics.FilterBypasses.Inc()

	entry := &models.AuditLog{
		Action: models.AuditActionScopeBypass,
		Status: "success",
		Detail: reason,
	}
	if p := scope.PrincipalFromContext(ctx); p != nil {
		entry.UserID = p.UserID
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		log.Error().Err(err).Msg("Failed to audit filter bypass")
	}
	log.Warn().Str("reason", reason).Msg("Tenant filter bypassed")

	return s.db.WithContext(ctx), nil
}

// ValidateInsert checks a new record's partition columns against the active
// scope before it is committed. SuperAdmin may write anywhere.
func (s *ScopedDB) ValidateInsert(ctx context.Context, desc models.ScopingDescriptor, branchID *uint, tenantID *uint) error {
	sc := scope.FromContext(ctx)
	if sc.IsSuperAdmin {
		return nil
	}
	switch {
	case desc.BranchScoped():
		if branchID == nil || !s.iso.ValidateBranchAccess(ctx, *branchID) {
			metrics.AccessDenials.WithLabelValues("write").Inc()
			return ErrScopeViolation
		}
	case desc.TenantColumn != "":
		if tenantID == nil || sc.TenantID == nil || *tenantID != *sc.TenantID {
			metrics.AccessDenials.WithLabelValues("write").Inc()
			return ErrScopeViolation
		}
	default:
		return ErrScopeViolation
	}
	return nil
}

// ValidateBranchChange checks a branch reassignment on update. Moves are
// allowed only within the same company and only between branches the scope
// can access.
func (s *ScopedDB) ValidateBranchChange(ctx context.Context, fromBranchID, toBranchID uint) error {
	if fromBranchID == toBranchID {
		return nil
	}
	if !s.iso.ValidateBranchReassignment(ctx, fromBranchID, toBranchID) {
		return fmt.Errorf("branch %d to %d: %w", fromBranchID, toBranchID, ErrScopeViolation)
	}
	return nil
}

// EntityStore implements isolation.EntityStore over the raw database. It is
// not scope-filtered: callers in the isolation service apply their own
// access decision to the resolved branch id.
type EntityStore struct {
	db *gorm.DB
}

// NewEntityStore creates the entity store
func NewEntityStore(db *gorm.DB) *EntityStore {
	return &EntityStore{db: db}
}

// EntityBranchID resolves a record's branch id. Nil when the record does
// not exist or is soft-deleted.
func (s *EntityStore) EntityBranchID(ctx context.Context, desc models.ScopingDescriptor, id uuid.UUID) (*uint, error) {
	if !desc.BranchScoped() {
		return nil, nil
	}
	var rows []struct {
		BranchID uint
	}
	q := s.db.WithContext(ctx).
		Table(desc.Table).
		Select(desc.BranchColumn + " AS branch_id").
		Where("id = ?", id)
	if desc.SoftDelete {
		q = q.Where("deleted_at IS NULL")
	}
	if err := q.Limit(1).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to resolve branch for %s %s: %w", desc.EntityType, id, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0].BranchID, nil
}

// TenantDistribution counts records per resolved tenant for one entity
// type. Branch-scoped tables resolve the tenant through the hierarchy;
// tenant-level tables group on their tenant column directly.
func (s *EntityStore) TenantDistribution(ctx context.Context, desc models.ScopingDescriptor) (map[uint]int64, int64, error) {
	var rows []struct {
		TenantID *uint
		Count    int64
	}

	q := s.db.WithContext(ctx).Table(desc.Table)
	switch {
	case desc.BranchScoped():
		q = q.Select("companies.tenant_id AS tenant_id, count(*) AS count").
			Joins(fmt.Sprintf("JOIN branches ON branches.id = %s.%s", desc.Table, desc.BranchColumn)).
			Joins("JOIN companies ON companies.id = branches.company_id").
			Group("companies.tenant_id")
	case desc.TenantColumn != "":
		q = q.Select(desc.TenantColumn + " AS tenant_id, count(*) AS count").
			Group(desc.TenantColumn)
	default:
		// No partition columns: everything lands in the total only.
		q = q.Select("NULL AS tenant_id, count(*) AS count")
	}
	if desc.SoftDelete {
		q = q.Where(desc.Table + ".deleted_at IS NULL")
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to compute distribution for %s: %w", desc.EntityType, err)
	}

	dist := make(map[uint]int64, len(rows))
	var total int64
	for _, row := range rows {
		total += row.Count
		if row.TenantID != nil {
			dist[*row.TenantID] += row.Count
		}
	}
	return dist, total, nil
}
