package models

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Role is the access level a user holds within the hierarchy
type Role string

const (
	RoleSuperAdmin   Role = "super_admin"   // platform level, exempt from tenant filtering
	RoleTenantAdmin  Role = "tenant_admin"  // full access within one tenant
	RoleCompanyAdmin Role = "company_admin" // exempt from branch filtering within its company
	RoleBranchUser   Role = "branch_user"   // restricted to assigned branches
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleTenantAdmin, RoleCompanyAdmin, RoleBranchUser:
		return true
	}
	return false
}

// JWTClaims represents custom JWT claims issued by the platform auth service
type JWTClaims struct {
	UserID          uuid.UUID `json:"user_id"`
	Role            Role      `json:"role"`
	TenantID        *uint     `json:"tenant_id,omitempty"`
	CompanyID       *uint     `json:"company_id,omitempty"`
	PrimaryBranchID *uint     `json:"branch_id,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the resolved identity for one request. It is built once by
// the identity resolver, never persisted, and never mutated afterward.
type Principal struct {
	UserID            uuid.UUID
	Role              Role
	TenantID          *uint
	CompanyID         *uint
	PrimaryBranchID   *uint
	AssignedBranchIDs []uint
}

// IsSuperAdmin reports whether the principal holds the platform role
func (p *Principal) IsSuperAdmin() bool {
	return p.Role == RoleSuperAdmin
}

// IsCompanyAdmin reports whether the principal is exempt from branch filtering
func (p *Principal) IsCompanyAdmin() bool {
	return p.Role == RoleCompanyAdmin
}
