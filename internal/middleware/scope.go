package middleware

import (
	"net/http"

	"github.com/clinicore/clinic-platform/internal/identity"
	"github.com/clinicore/clinic-platform/internal/isolation"
	"github.com/clinicore/clinic-platform/internal/metrics"
	"github.com/clinicore/clinic-platform/internal/models"
	"github.com/clinicore/clinic-platform/internal/repository"
	"github.com/clinicore/clinic-platform/internal/scope"
	"github.com/rs/zerolog/log"
)

// ScopeResolver resolves the caller's identity into an access scope and
// installs it for the lifetime of the request. Requests that fail
// resolution are denied before any business logic runs; the response body
// never reveals why.
type ScopeResolver struct {
	resolver  *identity.Resolver
	iso       *isolation.Service
	hierarchy isolation.HierarchyStore
	audit     *repository.AuditRepository
}

// NewScopeResolver creates the resolution middleware
func NewScopeResolver(resolver *identity.Resolver, iso *isolation.Service, hierarchy isolation.HierarchyStore, audit *repository.AuditRepository) *ScopeResolver {
	return &ScopeResolver{resolver: resolver, iso: iso, hierarchy: hierarchy, audit: audit}
}

// Middleware runs the resolution state machine: resolve the principal,
// validate hierarchy liveness, compute the accessible branch set, install
// the scope, and always tear it down at request end.
func (sr *ScopeResolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		holder := scope.NewHolder()
		ctx := scope.WithHolder(r.Context(), holder)

		// Teardown runs on success, business error, panic and cancellation
		// alike, so no scope can leak into pooled reuse.
		defer holder.Clear()

		principal, err := sr.resolver.Resolve(r)
		if err != nil {
			sr.deny(w, r, nil, "identity resolution failed", err)
			return
		}
		ctx = scope.WithPrincipal(ctx, principal)

		if !principal.IsSuperAdmin() {
			tenant, err := sr.hierarchy.Tenant(ctx, *principal.TenantID)
			if err != nil {
				log.Error().Err(err).Msg("Tenant lookup failed")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			if tenant == nil || !tenant.IsActive {
				sr.deny(w, r, principal, "tenant missing or inactive", nil)
				return
			}
			if principal.CompanyID != nil {
				company, err := sr.hierarchy.Company(ctx, *principal.CompanyID)
				if err != nil {
					log.Error().Err(err).Msg("Company lookup failed")
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
					return
				}
				if company == nil || !company.IsActive {
					sr.deny(w, r, principal, "company missing or inactive", nil)
					return
				}
				if company.TenantID != *principal.TenantID {
					sr.deny(w, r, principal, "company claim crosses tenant boundary", nil)
					return
				}
			}
			if principal.PrimaryBranchID != nil {
				branch, err := sr.hierarchy.Branch(ctx, *principal.PrimaryBranchID)
				if err != nil {
					log.Error().Err(err).Msg("Branch lookup failed")
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
					return
				}
				if branch == nil || !branch.IsActive {
					sr.deny(w, r, principal, "branch missing or inactive", nil)
					return
				}
				branchTenant, err := sr.iso.TenantIDForBranch(ctx, *principal.PrimaryBranchID)
				if err != nil {
					log.Error().Err(err).Msg("Branch lookup failed")
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
					return
				}
				if branchTenant == nil || *branchTenant != *principal.TenantID {
					sr.deny(w, r, principal, "branch claim crosses tenant boundary", nil)
					return
				}
			}
		}

		accessible, err := sr.iso.AccessibleBranchIDs(ctx, principal)
		if err != nil {
			log.Error().Err(err).Msg("Failed to compute accessible branches")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		principal.AssignedBranchIDs = accessible

		holder.Set(scope.FromPrincipal(principal, accessible))
		metrics.ScopeResolutions.WithLabelValues("resolved").Inc()

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// deny terminates the request with a generic outcome. The cause goes to the
// internal log and the audit trail, never to the response body.
func (sr *ScopeResolver) deny(w http.ResponseWriter, r *http.Request, principal *models.Principal, cause string, err error) {
	metrics.ScopeResolutions.WithLabelValues("denied").Inc()

	ev := log.Warn().Str("path", r.URL.Path).Str("cause", cause)
	if err != nil {
		ev = ev.Err(err)
	}
	entry := &models.AuditLog{
		Action:    models.AuditActionScopeDenied,
		IPAddress: r.RemoteAddr,
		Status:    "denied",
		Detail:    cause,
	}
	if principal != nil {
		ev = ev.Str("user_id", principal.UserID.String())
		entry.UserID = principal.UserID
		entry.TenantID = principal.TenantID
		entry.CompanyID = principal.CompanyID
		entry.BranchID = principal.PrimaryBranchID
		if principal.TenantID != nil {
			ev = ev.Uint("tenant_id", *principal.TenantID)
		}
	}
	ev.Msg("Scope resolution denied")

	if auditErr := sr.audit.Create(r.Context(), entry); auditErr != nil {
		log.Error().Err(auditErr).Msg("Failed to audit denial")
	}

	http.Error(w, "Forbidden", http.StatusForbidden)
}
