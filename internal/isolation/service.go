// Package isolation answers the cross-entity authorization questions the
// blanket query filter cannot express: validating proposed relationships
// before they are persisted, resolving a branch's owning tenant, and
// computing derived access sets.
//
// Denial is always a normal boolean or structured result, never an error;
// errors are reserved for infrastructure faults.
package isolation

import (
	"context"
	"fmt"

	"github.com/clinicore/clinic-platform/internal/metrics"
	"github.com/clinicore/clinic-platform/internal/models"
	"github.com/clinicore/clinic-platform/internal/scope"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// HierarchyStore provides read access to the tenant/company/branch
// hierarchy. Lookups return (nil, nil) when the record does not exist.
type HierarchyStore interface {
	Tenant(ctx context.Context, id uint) (*models.Tenant, error)
	Company(ctx context.Context, id uint) (*models.Company, error)
	Branch(ctx context.Context, id uint) (*models.Branch, error)
	BranchIDsForTenant(ctx context.Context, tenantID uint) ([]uint, error)
	AllBranchIDs(ctx context.Context) ([]uint, error)
	AssignedBranchIDs(ctx context.Context, userID uuid.UUID) ([]uint, error)
	CountCompanies(ctx context.Context, tenantID uint) (int64, error)
}

// EntityStore provides the minimal entity access the service needs:
// resolving a record's branch id and counting records per tenant.
type EntityStore interface {
	EntityBranchID(ctx context.Context, desc models.ScopingDescriptor, id uuid.UUID) (*uint, error)
	TenantDistribution(ctx context.Context, desc models.ScopingDescriptor) (map[uint]int64, int64, error)
}

// RelationshipCheck is the result of validating a proposed relationship
// between two branch-scoped entities.
type RelationshipCheck struct {
	Valid          bool   `json:"valid"`
	SourceTenantID *uint  `json:"source_tenant_id,omitempty"`
	TargetTenantID *uint  `json:"target_tenant_id,omitempty"`
	Violation      string `json:"violation,omitempty"`
}

// IsolationReport is the diagnostic output of an entity isolation audit.
type IsolationReport struct {
	EntityType         string         `json:"entity_type"`
	HasBranchID        bool           `json:"has_branch_id"`
	TotalRecords       int64          `json:"total_records"`
	TenantDistribution map[uint]int64 `json:"tenant_distribution"`
	Notes              string         `json:"notes,omitempty"`
}

// Service is the isolation decision engine.
type Service struct {
	hierarchy HierarchyStore
	entities  EntityStore
}

// NewService creates the isolation service.
func NewService(hierarchy HierarchyStore, entities EntityStore) *Service {
	return &Service{hierarchy: hierarchy, entities: entities}
}

// TenantIDForBranch resolves the owning tenant by following
// branch -> company -> tenant. Nil when the branch does not exist.
func (s *Service) TenantIDForBranch(ctx context.Context, branchID uint) (*uint, error) {
	branch, err := s.hierarchy.Branch(ctx, branchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load branch %d: %w", branchID, err)
	}
	if branch == nil {
		return nil, nil
	}
	company, err := s.hierarchy.Company(ctx, branch.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load company %d: %w", branch.CompanyID, err)
	}
	if company == nil {
		return nil, nil
	}
	tid := company.TenantID
	return &tid, nil
}

// ValidateBranchAccess reports whether the active scope may touch the given
// branch. SuperAdmin passes for any existing branch; everyone else needs the
// branch's resolved tenant to match their own and, when branch-restricted,
// the branch to be in their accessible set. A nonexistent branch is always a
// denial, never an error.
func (s *Service) ValidateBranchAccess(ctx context.Context, branchID uint) bool {
	sc := scope.FromContext(ctx)

	tenantID, err := s.TenantIDForBranch(ctx, branchID)
	if err != nil {
		log.Error().Err(err).Uint("branch_id", branchID).Msg("Branch access check failed")
		return false
	}
	if tenantID == nil {
		s.deny("branch", func(e *logEvent) { e.branchID = &branchID })
		return false
	}

	if sc.IsSuperAdmin {
		return true
	}
	if sc.TenantID == nil || *sc.TenantID != *tenantID {
		s.deny("branch", func(e *logEvent) {
			e.branchID = &branchID
			e.scopeTenant = sc.TenantID
			e.targetTenant = tenantID
		})
		return false
	}
	if sc.ShouldFilterByBranch() && !sc.HasBranchAccess(branchID) {
		s.deny("branch", func(e *logEvent) { e.branchID = &branchID; e.scopeTenant = sc.TenantID })
		return false
	}
	return true
}

// ValidateCompanyAccess is the analogous check at the company boundary.
func (s *Service) ValidateCompanyAccess(ctx context.Context, companyID uint) bool {
	sc := scope.FromContext(ctx)

	company, err := s.hierarchy.Company(ctx, companyID)
	if err != nil {
		log.Error().Err(err).Uint("company_id", companyID).Msg("Company access check failed")
		return false
	}
	if company == nil {
		s.deny("company", func(e *logEvent) { e.companyID = &companyID })
		return false
	}
	if sc.IsSuperAdmin {
		return true
	}
	if sc.TenantID == nil || *sc.TenantID != company.TenantID {
		s.deny("company", func(e *logEvent) {
			e.companyID = &companyID
			e.scopeTenant = sc.TenantID
			e.targetTenant = &company.TenantID
		})
		return false
	}
	return true
}

// AccessibleBranchIDs computes the branch set a principal may access: every
// active branch for SuperAdmin, otherwise the union of the primary branch
// and explicit assignments, intersected with the principal's tenant.
func (s *Service) AccessibleBranchIDs(ctx context.Context, p *models.Principal) ([]uint, error) {
	if p.IsSuperAdmin() {
		ids, err := s.hierarchy.AllBranchIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list branches: %w", err)
		}
		return ids, nil
	}
	if p.TenantID == nil {
		return nil, nil
	}

	tenantBranches, err := s.hierarchy.BranchIDsForTenant(ctx, *p.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant branches: %w", err)
	}
	member := make(map[uint]struct{}, len(tenantBranches))
	for _, id := range tenantBranches {
		member[id] = struct{}{}
	}

	assigned, err := s.hierarchy.AssignedBranchIDs(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list branch assignments: %w", err)
	}

	candidates := assigned
	if p.PrimaryBranchID != nil {
		candidates = append([]uint{*p.PrimaryBranchID}, assigned...)
	}

	seen := make(map[uint]struct{}, len(candidates))
	ids := make([]uint, 0, len(candidates))
	for _, id := range candidates {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := member[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ValidateRelationship checks that a proposed relationship between two
// branch-scoped entities stays inside one tenant. Same branch is trivially
// valid. Both resolved tenant ids are returned for audit purposes.
func (s *Service) ValidateRelationship(ctx context.Context, sourceBranchID, targetBranchID uint, description string) RelationshipCheck {
	if sourceBranchID == targetBranchID {
		tid, err := s.TenantIDForBranch(ctx, sourceBranchID)
		if err != nil || tid == nil {
			metrics.AccessDenials.WithLabelValues("relationship").Inc()
			return RelationshipCheck{Violation: fmt.Sprintf("branch %d does not exist", sourceBranchID)}
		}
		return RelationshipCheck{Valid: true, SourceTenantID: tid, TargetTenantID: tid}
	}

	sourceTenant, err := s.TenantIDForBranch(ctx, sourceBranchID)
	if err != nil {
		log.Error().Err(err).Msg("Relationship check failed")
		return RelationshipCheck{Violation: "source branch could not be resolved"}
	}
	targetTenant, err := s.TenantIDForBranch(ctx, targetBranchID)
	if err != nil {
		log.Error().Err(err).Msg("Relationship check failed")
		return RelationshipCheck{SourceTenantID: sourceTenant, Violation: "target branch could not be resolved"}
	}

	check := RelationshipCheck{SourceTenantID: sourceTenant, TargetTenantID: targetTenant}
	switch {
	case sourceTenant == nil:
		check.Violation = fmt.Sprintf("source branch %d does not exist", sourceBranchID)
	case targetTenant == nil:
		check.Violation = fmt.Sprintf("target branch %d does not exist", targetBranchID)
	case *sourceTenant != *targetTenant:
		check.Violation = fmt.Sprintf("%s would cross tenant boundary (branch %d and branch %d belong to different tenants)",
			description, sourceBranchID, targetBranchID)
	default:
		check.Valid = true
	}
	if !check.Valid {
		metrics.AccessDenials.WithLabelValues("relationship").Inc()
		log.Warn().
			Uint("source_branch_id", sourceBranchID).
			Uint("target_branch_id", targetBranchID).
			Str("description", description).
			Msg("Cross-tenant relationship rejected")
	}
	return check
}

// ValidateBranchReassignment reports whether an entity may move from one
// branch to another. Moves are allowed only within the same company.
func (s *Service) ValidateBranchReassignment(ctx context.Context, fromBranchID, toBranchID uint) bool {
	if fromBranchID == toBranchID {
		return s.ValidateBranchAccess(ctx, toBranchID)
	}
	from, err := s.hierarchy.Branch(ctx, fromBranchID)
	if err != nil || from == nil {
		return false
	}
	to, err := s.hierarchy.Branch(ctx, toBranchID)
	if err != nil || to == nil {
		return false
	}
	if from.CompanyID != to.CompanyID {
		metrics.AccessDenials.WithLabelValues("write").Inc()
		return false
	}
	return s.ValidateBranchAccess(ctx, fromBranchID) && s.ValidateBranchAccess(ctx, toBranchID)
}

// ValidateEntityBranch loads the entity's branch id and delegates to
// ValidateBranchAccess. A missing entity is a denial, never an error, so
// existence cannot be probed through this path.
func (s *Service) ValidateEntityBranch(ctx context.Context, desc models.ScopingDescriptor, id uuid.UUID) bool {
	if !desc.BranchScoped() {
		return false
	}
	if scope.FromContext(ctx).IsSuperAdmin {
		branchID, err := s.entities.EntityBranchID(ctx, desc, id)
		if err != nil || branchID == nil {
			return false
		}
		return true
	}
	branchID, err := s.entities.EntityBranchID(ctx, desc, id)
	if err != nil {
		log.Error().Err(err).Str("entity_type", desc.EntityType).Msg("Entity branch check failed")
		return false
	}
	if branchID == nil {
		metrics.AccessDenials.WithLabelValues("entity").Inc()
		return false
	}
	return s.ValidateBranchAccess(ctx, *branchID)
}

// CanCreateCompany reports whether the tenant is below its company cap.
// MaxCompanies of zero means unlimited.
func (s *Service) CanCreateCompany(ctx context.Context, tenantID uint) (bool, error) {
	tenant, err := s.hierarchy.Tenant(ctx, tenantID)
	if err != nil {
		return false, fmt.Errorf("failed to load tenant %d: %w", tenantID, err)
	}
	if tenant == nil || !tenant.IsActive {
		return false, nil
	}
	if tenant.MaxCompanies == 0 {
		return true, nil
	}
	count, err := s.hierarchy.CountCompanies(ctx, tenantID)
	if err != nil {
		return false, fmt.Errorf("failed to count companies: %w", err)
	}
	return count < int64(tenant.MaxCompanies), nil
}

// AuditEntityIsolation counts records per resolved tenant for one entity
// type. Entity types without branch scoping are flagged in the notes rather
// than silently reported as isolated.
func (s *Service) AuditEntityIsolation(ctx context.Context, desc models.ScopingDescriptor) (*IsolationReport, error) {
	report := &IsolationReport{
		EntityType:  desc.EntityType,
		HasBranchID: desc.BranchScoped(),
	}
	if !desc.BranchScoped() {
		if desc.TenantColumn == "" {
			report.Notes = "entity type has no branch or tenant scoping; isolation is not enforced for it"
			return report, nil
		}
		report.Notes = "tenant-level entity; partitioned by tenant id directly"
	}

	dist, total, err := s.entities.TenantDistribution(ctx, desc)
	if err != nil {
		return nil, fmt.Errorf("failed to compute tenant distribution for %s: %w", desc.EntityType, err)
	}
	report.TotalRecords = total
	report.TenantDistribution = dist
	return report, nil
}

type logEvent struct {
	branchID     *uint
	companyID    *uint
	scopeTenant  *uint
	targetTenant *uint
}

// deny records a denial in metrics and the internal log. Identifiers stay
// in the log, never in any caller-facing result.
func (s *Service) deny(kind string, fill func(*logEvent)) {
	metrics.AccessDenials.WithLabelValues(kind).Inc()
	e := &logEvent{}
	fill(e)
	ev := log.Warn().Str("kind", kind)
	if e.branchID != nil {
		ev = ev.Uint("branch_id", *e.branchID)
	}
	if e.companyID != nil {
		ev = ev.Uint("company_id", *e.companyID)
	}
	if e.scopeTenant != nil {
		ev = ev.Uint("scope_tenant_id", *e.scopeTenant)
	}
	if e.targetTenant != nil {
		ev = ev.Uint("target_tenant_id", *e.targetTenant)
	}
	ev.Msg("Access denied")
}
