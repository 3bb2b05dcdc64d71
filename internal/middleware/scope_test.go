package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/clinicore/clinic-platform/internal/identity"
	"github.com/clinicore/clinic-platform/internal/isolation"
	"github.com/clinicore/clinic-platform/internal/models"
	"github.com/clinicore/clinic-platform/internal/repository"
	"github.com/clinicore/clinic-platform/internal/scope"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/utils/tests"
)

const testSecret = "test-signing-secret"

type fakeHierarchy struct {
	tenants     map[uint]*models.Tenant
	companies   map[uint]*models.Company
	branches    map[uint]*models.Branch
	assignments map[uuid.UUID][]uint
	failTenants bool
}

func (f *fakeHierarchy) Tenant(_ context.Context, id uint) (*models.Tenant, error) {
	if f.failTenants {
		return nil, errors.New("connection refused")
	}
	return f.tenants[id], nil
}

func (f *fakeHierarchy) Company(_ context.Context, id uint) (*models.Company, error) {
	return f.companies[id], nil
}

func (f *fakeHierarchy) Branch(_ context.Context, id uint) (*models.Branch, error) {
	return f.branches[id], nil
}

func (f *fakeHierarchy) BranchIDsForTenant(_ context.Context, tenantID uint) ([]uint, error) {
	var ids []uint
	for id, b := range f.branches {
		if !b.IsActive {
			continue
		}
		if c := f.companies[b.CompanyID]; c != nil && c.TenantID == tenantID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeHierarchy) AllBranchIDs(_ context.Context) ([]uint, error) {
	var ids []uint
	for id, b := range f.branches {
		if b.IsActive {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeHierarchy) AssignedBranchIDs(_ context.Context, userID uuid.UUID) ([]uint, error) {
	return f.assignments[userID], nil
}

func (f *fakeHierarchy) CountCompanies(_ context.Context, _ uint) (int64, error) {
	return 0, nil
}

type fakeEntities struct{}

func (fakeEntities) EntityBranchID(_ context.Context, _ models.ScopingDescriptor, _ uuid.UUID) (*uint, error) {
	return nil, nil
}

func (fakeEntities) TenantDistribution(_ context.Context, _ models.ScopingDescriptor) (map[uint]int64, int64, error) {
	return nil, 0, nil
}

func uintPtr(v uint) *uint {
	return &v
}

// Tenant 1 (active) owns company 1 with branches 1 and 2, plus the closed
// branch 9; tenant 2 (active) owns company 2 with branch 3; tenant 3 is
// inactive.
func newResolver(t *testing.T) (*ScopeResolver, *fakeHierarchy) {
	t.Helper()
	hierarchy := &fakeHierarchy{
		tenants: map[uint]*models.Tenant{
			1: {ID: 1, IsActive: true},
			2: {ID: 2, IsActive: true},
			3: {ID: 3, IsActive: false},
		},
		companies: map[uint]*models.Company{
			1: {ID: 1, TenantID: 1, IsActive: true},
			2: {ID: 2, TenantID: 2, IsActive: true},
		},
		branches: map[uint]*models.Branch{
			1: {ID: 1, CompanyID: 1, IsActive: true},
			2: {ID: 2, CompanyID: 1, IsActive: true},
			3: {ID: 3, CompanyID: 2, IsActive: true},
			9: {ID: 9, CompanyID: 1, IsActive: false},
		},
		assignments: map[uuid.UUID][]uint{},
	}

	db, err := gorm.Open(tests.DummyDialector{}, &gorm.Config{DryRun: true, SkipDefaultTransaction: true})
	require.NoError(t, err)

	iso := isolation.NewService(hierarchy, fakeEntities{})
	sr := NewScopeResolver(
		identity.NewResolver(testSecret, ""),
		iso,
		hierarchy,
		repository.NewAuditRepository(db),
	)
	return sr, hierarchy
}

func signToken(t *testing.T, claims *models.JWTClaims) string {
	t.Helper()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return raw
}

func doRequest(sr *ScopeResolver, token string, inspect func(ctx context.Context)) *httptest.ResponseRecorder {
	handler := sr.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inspect != nil {
			inspect(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/v1/patients", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareResolvesScope(t *testing.T) {
	sr, hierarchy := newResolver(t)
	userID := uuid.New()
	hierarchy.assignments[userID] = []uint{2}

	token := signToken(t, &models.JWTClaims{
		UserID:          userID,
		Role:            models.RoleBranchUser,
		TenantID:        uintPtr(1),
		CompanyID:       uintPtr(1),
		PrimaryBranchID: uintPtr(1),
	})

	var seen scope.Scope
	rec := doRequest(sr, token, func(ctx context.Context) {
		seen = scope.FromContext(ctx)
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, seen.IsSet())
	assert.Equal(t, uint(1), *seen.TenantID)
	assert.Equal(t, uint(1), *seen.BranchID)
	assert.False(t, seen.IsSuperAdmin)
	assert.True(t, seen.HasBranchAccess(1))
	assert.True(t, seen.HasBranchAccess(2), "assignment granted through the accessible set")
	assert.False(t, seen.HasBranchAccess(3))
}

func TestMiddlewareClearsScopeAfterRequest(t *testing.T) {
	sr, _ := newResolver(t)
	token := signToken(t, &models.JWTClaims{
		UserID:   uuid.New(),
		Role:     models.RoleTenantAdmin,
		TenantID: uintPtr(1),
	})

	var holder *scope.Holder
	rec := doRequest(sr, token, func(ctx context.Context) {
		holder = scope.HolderFromContext(ctx)
		require.True(t, holder.Current().IsSet())
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, holder)
	assert.False(t, holder.Current().IsSet(), "scope must not survive the request")
}

func TestMiddlewareSuperAdmin(t *testing.T) {
	sr, _ := newResolver(t)
	token := signToken(t, &models.JWTClaims{
		UserID: uuid.New(),
		Role:   models.RoleSuperAdmin,
	})

	var seen scope.Scope
	rec := doRequest(sr, token, func(ctx context.Context) {
		seen = scope.FromContext(ctx)
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, seen.IsSuperAdmin)
	assert.Nil(t, seen.TenantID)
	assert.True(t, seen.HasBranchAccess(3))
}

func TestMiddlewareDenials(t *testing.T) {
	sr, _ := newResolver(t)

	cases := []struct {
		name   string
		claims *models.JWTClaims
	}{
		{
			name: "inactive tenant",
			claims: &models.JWTClaims{
				UserID: uuid.New(), Role: models.RoleTenantAdmin, TenantID: uintPtr(3),
			},
		},
		{
			name: "unknown tenant",
			claims: &models.JWTClaims{
				UserID: uuid.New(), Role: models.RoleTenantAdmin, TenantID: uintPtr(99),
			},
		},
		{
			name: "company claim crosses tenant boundary",
			claims: &models.JWTClaims{
				UserID: uuid.New(), Role: models.RoleCompanyAdmin, TenantID: uintPtr(1), CompanyID: uintPtr(2),
			},
		},
		{
			name: "branch claim crosses tenant boundary",
			claims: &models.JWTClaims{
				UserID: uuid.New(), Role: models.RoleBranchUser, TenantID: uintPtr(1), PrimaryBranchID: uintPtr(3),
			},
		},
		{
			name: "inactive branch claim",
			claims: &models.JWTClaims{
				UserID: uuid.New(), Role: models.RoleBranchUser, TenantID: uintPtr(1), PrimaryBranchID: uintPtr(9),
			},
		},
		{
			name: "unknown branch claim",
			claims: &models.JWTClaims{
				UserID: uuid.New(), Role: models.RoleBranchUser, TenantID: uintPtr(1), PrimaryBranchID: uintPtr(99),
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handlerRan := false
			rec := doRequest(sr, signToken(t, tc.claims), func(context.Context) {
				handlerRan = true
			})

			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.Equal(t, "Forbidden", strings.TrimSpace(rec.Body.String()),
				"denial body must not reveal the cause")
			assert.False(t, handlerRan)
		})
	}
}

func TestMiddlewareRejectsBadCredentials(t *testing.T) {
	sr, _ := newResolver(t)

	t.Run("missing token", func(t *testing.T) {
		rec := doRequest(sr, "", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := doRequest(sr, "not-a-jwt", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestMiddlewareInfrastructureFailure(t *testing.T) {
	sr, hierarchy := newResolver(t)
	hierarchy.failTenants = true

	token := signToken(t, &models.JWTClaims{
		UserID: uuid.New(), Role: models.RoleTenantAdmin, TenantID: uintPtr(1),
	})
	rec := doRequest(sr, token, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code,
		"infrastructure faults are not silent denials")
}
