package repository

import (
	"context"
	"testing"

	"github.com/clinicore/clinic-platform/internal/isolation"
	"github.com/clinicore/clinic-platform/internal/models"
	"github.com/clinicore/clinic-platform/internal/scope"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/utils/tests"
)

// newDryRunDB opens a gorm handle that builds SQL without executing it, so
// the generated predicates can be asserted directly.
func newDryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(tests.DummyDialector{}, &gorm.Config{
		DryRun:                 true,
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return db
}

type fakeHierarchy struct {
	branchTenant  map[uint]uint
	branchCompany map[uint]uint
}

func (f *fakeHierarchy) Tenant(_ context.Context, id uint) (*models.Tenant, error) {
	return &models.Tenant{ID: id, IsActive: true}, nil
}

func (f *fakeHierarchy) Company(_ context.Context, id uint) (*models.Company, error) {
	for branchID, companyID := range f.branchCompany {
		if companyID == id {
			return &models.Company{ID: id, TenantID: f.branchTenant[branchID], IsActive: true}, nil
		}
	}
	return nil, nil
}

func (f *fakeHierarchy) Branch(_ context.Context, id uint) (*models.Branch, error) {
	companyID, ok := f.branchCompany[id]
	if !ok {
		return nil, nil
	}
	return &models.Branch{ID: id, CompanyID: companyID, IsActive: true}, nil
}

func (f *fakeHierarchy) BranchIDsForTenant(_ context.Context, tenantID uint) ([]uint, error) {
	var ids []uint
	for branchID, tid := range f.branchTenant {
		if tid == tenantID {
			ids = append(ids, branchID)
		}
	}
	return ids, nil
}

func (f *fakeHierarchy) AllBranchIDs(_ context.Context) ([]uint, error) {
	var ids []uint
	for branchID := range f.branchCompany {
		ids = append(ids, branchID)
	}
	return ids, nil
}

func (f *fakeHierarchy) AssignedBranchIDs(_ context.Context, _ uuid.UUID) ([]uint, error) {
	return nil, nil
}

func (f *fakeHierarchy) CountCompanies(_ context.Context, _ uint) (int64, error) {
	return 0, nil
}

func newTestScopedDB(t *testing.T) *ScopedDB {
	t.Helper()
	db := newDryRunDB(t)
	hierarchy := &fakeHierarchy{
		// branch 1 -> company 1 -> tenant 1; branch 2 -> company 2 -> tenant 2
		branchTenant:  map[uint]uint{1: 1, 2: 2},
		branchCompany: map[uint]uint{1: 1, 2: 2},
	}
	iso := isolation.NewService(hierarchy, NewEntityStore(db))
	return NewScopedDB(db, NewAuditRepository(db), iso)
}

func uintPtr(v uint) *uint {
	return &v
}

func ctxWithScope(s scope.Scope) context.Context {
	h := scope.NewHolder()
	h.Set(s)
	return scope.WithHolder(context.Background(), h)
}

func superAdminCtx() context.Context {
	return ctxWithScope(scope.New(nil, nil, nil, nil, true, false))
}

func tenantCtx(tenantID uint) context.Context {
	return ctxWithScope(scope.New(&tenantID, nil, nil, nil, false, false))
}

func TestScopeFilterSQL(t *testing.T) {
	scoped := newTestScopedDB(t)

	t.Run("tenant scope constrains branch-scoped tables through the hierarchy", func(t *testing.T) {
		ctx := tenantCtx(1)
		stmt := scoped.Scoped(ctx, models.Patient{}).Find(&[]models.Patient{}).Statement

		sql := stmt.SQL.String()
		assert.Contains(t, sql, "branch_id IN (SELECT")
		assert.Contains(t, sql, "JOIN companies ON companies.id = branches.company_id")
		assert.Contains(t, sql, "companies.tenant_id = ?")
		assert.Contains(t, stmt.Vars, uint(1))
	})

	t.Run("super admin sees no partition predicate", func(t *testing.T) {
		stmt := scoped.Scoped(superAdminCtx(), models.Patient{}).Find(&[]models.Patient{}).Statement

		sql := stmt.SQL.String()
		assert.NotContains(t, sql, "branch_id IN")
		assert.NotContains(t, sql, "tenant_id")
	})

	t.Run("unresolved scope matches nothing", func(t *testing.T) {
		stmt := scoped.Scoped(context.Background(), models.Patient{}).Find(&[]models.Patient{}).Statement
		assert.Contains(t, stmt.SQL.String(), "1 = 0")
	})

	t.Run("branch restriction adds an explicit id list", func(t *testing.T) {
		ctx := ctxWithScope(scope.New(uintPtr(1), nil, uintPtr(1), []uint{1, 4}, false, false))
		stmt := scoped.Scoped(ctx, models.Patient{}).Find(&[]models.Patient{}).Statement

		sql := stmt.SQL.String()
		assert.Contains(t, sql, "branch_id IN (SELECT")
		assert.Contains(t, sql, "branch_id IN (?,?)")
	})

	t.Run("company admin skips the branch list but keeps the tenant predicate", func(t *testing.T) {
		ctx := ctxWithScope(scope.New(uintPtr(1), uintPtr(1), uintPtr(1), []uint{1}, false, true))
		stmt := scoped.Scoped(ctx, models.Patient{}).Find(&[]models.Patient{}).Statement

		sql := stmt.SQL.String()
		assert.Contains(t, sql, "companies.tenant_id = ?")
		assert.NotContains(t, sql, "branch_id IN (?")
	})

	t.Run("tenant-level table filters on its tenant column with the null carve-out", func(t *testing.T) {
		stmt := scoped.Scoped(tenantCtx(1), models.User{}).Find(&[]models.User{}).Statement

		sql := stmt.SQL.String()
		assert.Contains(t, sql, "tenant_id = ? OR tenant_id IS NULL")
		assert.Contains(t, stmt.Vars, uint(1))
	})

	t.Run("descriptor without partition columns matches nothing", func(t *testing.T) {
		ctx := tenantCtx(1)
		desc := models.ScopingDescriptor{EntityType: "Orphan", Table: "orphans"}
		db := newDryRunDB(t)
		stmt := db.Table("orphans").Scopes(ScopeFilter(ctx, desc)).Find(&[]map[string]any{}).Statement

		assert.Contains(t, stmt.SQL.String(), "1 = 0")
	})
}

func TestScopedIncludingDeleted(t *testing.T) {
	scoped := newTestScopedDB(t)
	ctx := tenantCtx(1)

	stmt := scoped.ScopedIncludingDeleted(ctx, models.Patient{}).Find(&[]models.Patient{}).Statement

	sql := stmt.SQL.String()
	assert.NotContains(t, sql, "`patients`.`deleted_at`")
	assert.Contains(t, sql, "companies.tenant_id = ?", "tenant predicate survives the soft-delete opt-out")
}

func TestBypass(t *testing.T) {
	scoped := newTestScopedDB(t)

	t.Run("denied outside super admin", func(t *testing.T) {
		_, err := scoped.Bypass(tenantCtx(1), "cross-tenant report")
		assert.ErrorIs(t, err, ErrScopeViolation)

		_, err = scoped.Bypass(context.Background(), "no scope at all")
		assert.ErrorIs(t, err, ErrScopeViolation)
	})

	t.Run("granted to super admin", func(t *testing.T) {
		db, err := scoped.Bypass(superAdminCtx(), "platform migration")
		require.NoError(t, err)
		require.NotNil(t, db)

		stmt := db.Model(&models.Patient{}).Find(&[]models.Patient{}).Statement
		assert.NotContains(t, stmt.SQL.String(), "tenant_id")
	})
}

func TestValidateInsert(t *testing.T) {
	scoped := newTestScopedDB(t)
	patientDesc := models.Patient{}.ScopingDescriptor()
	userDesc := models.User{}.ScopingDescriptor()

	t.Run("branch-scoped insert requires branch access", func(t *testing.T) {
		ctx := tenantCtx(1)
		assert.NoError(t, scoped.ValidateInsert(ctx, patientDesc, uintPtr(1), nil))
		assert.ErrorIs(t, scoped.ValidateInsert(ctx, patientDesc, uintPtr(2), nil), ErrScopeViolation)
		assert.ErrorIs(t, scoped.ValidateInsert(ctx, patientDesc, nil, nil), ErrScopeViolation)
	})

	t.Run("tenant-level insert requires matching tenant", func(t *testing.T) {
		ctx := tenantCtx(1)
		assert.NoError(t, scoped.ValidateInsert(ctx, userDesc, nil, uintPtr(1)))
		assert.ErrorIs(t, scoped.ValidateInsert(ctx, userDesc, nil, uintPtr(2)), ErrScopeViolation)
	})

	t.Run("super admin writes anywhere", func(t *testing.T) {
		ctx := superAdminCtx()
		assert.NoError(t, scoped.ValidateInsert(ctx, patientDesc, uintPtr(2), nil))
		assert.NoError(t, scoped.ValidateInsert(ctx, userDesc, nil, uintPtr(2)))
	})
}

func TestValidateBranchChange(t *testing.T) {
	scoped := newTestScopedDB(t)
	ctx := tenantCtx(1)

	assert.NoError(t, scoped.ValidateBranchChange(ctx, 1, 1), "no-op move is always allowed")
	assert.ErrorIs(t, scoped.ValidateBranchChange(ctx, 1, 2), ErrScopeViolation, "branches in different companies")
}

func TestAuditRepositoryListIsScoped(t *testing.T) {
	db := newDryRunDB(t)
	audit := NewAuditRepository(db)

	ctx := tenantCtx(1)
	_, err := audit.List(ctx, 10, 0)
	require.NoError(t, err)
}
