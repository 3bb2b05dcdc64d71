// Package scope holds the per-request access scope: the resolved statement
// of which tenant, company and branches the caller may touch. The scope is
// computed once by the resolution middleware and consulted by every data
// access; a request that never had a scope installed fails closed.
package scope

import "github.com/clinicore/clinic-platform/internal/models"

// Scope is the immutable access boundary for one request.
//
// AccessibleBranchIDs distinguishes "not branch-restricted" (nil) from
// "no access" (empty): an empty set never grants anything.
type Scope struct {
	TenantID            *uint
	CompanyID           *uint
	BranchID            *uint
	AccessibleBranchIDs map[uint]struct{}
	IsSuperAdmin        bool
	IsCompanyAdmin      bool

	set bool
}

// New builds a fully-populated scope. The accessible set is copied so the
// caller cannot mutate the scope after construction.
func New(tenantID, companyID, branchID *uint, accessible []uint, isSuperAdmin, isCompanyAdmin bool) Scope {
	s := Scope{
		TenantID:       tenantID,
		CompanyID:      companyID,
		BranchID:       branchID,
		IsSuperAdmin:   isSuperAdmin,
		IsCompanyAdmin: isCompanyAdmin,
		set:            true,
	}
	if accessible != nil {
		s.AccessibleBranchIDs = make(map[uint]struct{}, len(accessible))
		for _, id := range accessible {
			s.AccessibleBranchIDs[id] = struct{}{}
		}
	}
	return s
}

// FromPrincipal derives a scope from a resolved principal and its computed
// accessible branch set.
func FromPrincipal(p *models.Principal, accessible []uint) Scope {
	return New(p.TenantID, p.CompanyID, p.PrimaryBranchID, accessible, p.IsSuperAdmin(), p.IsCompanyAdmin())
}

// IsSet reports whether the scope was explicitly installed. The zero scope
// is not set and denies everything.
func (s Scope) IsSet() bool {
	return s.set
}

// ShouldFilterByTenant reports whether queries must be constrained to the
// scope's tenant.
func (s Scope) ShouldFilterByTenant() bool {
	return s.TenantID != nil && !s.IsSuperAdmin
}

// ShouldFilterByBranch reports whether queries must additionally be
// constrained to the accessible branch set.
func (s Scope) ShouldFilterByBranch() bool {
	if s.IsSuperAdmin || s.IsCompanyAdmin {
		return false
	}
	return s.BranchID != nil || len(s.AccessibleBranchIDs) > 0
}

// HasBranchAccess reports whether the scope may touch the given branch.
// SuperAdmin and CompanyAdmin pass unconditionally; everyone else needs the
// branch to be their current branch or in their accessible set.
func (s Scope) HasBranchAccess(branchID uint) bool {
	if s.IsSuperAdmin || s.IsCompanyAdmin {
		return true
	}
	if s.BranchID != nil && *s.BranchID == branchID {
		return true
	}
	_, ok := s.AccessibleBranchIDs[branchID]
	return ok
}

// EffectiveBranchIDs returns the branch ids the branch filter constrains to:
// the current branch plus the accessible set. Nil when not branch-restricted.
func (s Scope) EffectiveBranchIDs() []uint {
	if !s.ShouldFilterByBranch() {
		return nil
	}
	seen := make(map[uint]struct{}, len(s.AccessibleBranchIDs)+1)
	var ids []uint
	if s.BranchID != nil {
		seen[*s.BranchID] = struct{}{}
		ids = append(ids, *s.BranchID)
	}
	for id := range s.AccessibleBranchIDs {
		if _, dup := seen[id]; !dup {
			ids = append(ids, id)
		}
	}
	return ids
}

// WithBranch returns a copy of the scope with a different current branch.
// Used by the branch-switch operation; the caller must validate access to
// the new branch first.
func (s Scope) WithBranch(branchID uint) Scope {
	out := s
	out.BranchID = &branchID
	return out
}
