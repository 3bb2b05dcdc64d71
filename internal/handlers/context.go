package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/clinicore/clinic-platform/internal/isolation"
	"github.com/clinicore/clinic-platform/internal/models"
	"github.com/clinicore/clinic-platform/internal/repository"
	"github.com/clinicore/clinic-platform/internal/scope"
	"github.com/rs/zerolog/log"
)

// ContextHandler exposes the caller's resolved scope and the branch-switch
// operation.
type ContextHandler struct {
	iso   *isolation.Service
	audit *repository.AuditRepository
}

func NewContextHandler(iso *isolation.Service, audit *repository.AuditRepository) *ContextHandler {
	return &ContextHandler{iso: iso, audit: audit}
}

type scopeResponse struct {
	TenantID            *uint  `json:"tenant_id,omitempty"`
	CompanyID           *uint  `json:"company_id,omitempty"`
	BranchID            *uint  `json:"branch_id,omitempty"`
	AccessibleBranchIDs []uint `json:"accessible_branch_ids,omitempty"`
	IsSuperAdmin        bool   `json:"is_super_admin"`
	IsCompanyAdmin      bool   `json:"is_company_admin"`
}

// GetScope returns the caller's active scope
func (h *ContextHandler) GetScope(w http.ResponseWriter, r *http.Request) {
	sc := scope.FromContext(r.Context())
	if !sc.IsSet() {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	resp := scopeResponse{
		TenantID:       sc.TenantID,
		CompanyID:      sc.CompanyID,
		BranchID:       sc.BranchID,
		IsSuperAdmin:   sc.IsSuperAdmin,
		IsCompanyAdmin: sc.IsCompanyAdmin,
	}
	for id := range sc.AccessibleBranchIDs {
		resp.AccessibleBranchIDs = append(resp.AccessibleBranchIDs, id)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

type switchBranchRequest struct {
	BranchID uint `json:"branch_id"`
}

// SwitchBranch replaces the current branch in the active scope. The switch
// is synchronous and in place; the request teardown still clears everything.
func (h *ContextHandler) SwitchBranch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req switchBranchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BranchID == 0 {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	holder := scope.HolderFromContext(ctx)
	if holder == nil || !holder.Current().IsSet() {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	if !h.iso.ValidateBranchAccess(ctx, req.BranchID) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	holder.Set(holder.Current().WithBranch(req.BranchID))

	entry := &models.AuditLog{
		Action:   models.AuditActionBranchSwitch,
		BranchID: &req.BranchID,
		Status:   "success",
	}
	if p := scope.PrincipalFromContext(ctx); p != nil {
		entry.UserID = p.UserID
		entry.TenantID = p.TenantID
	}
	if err := h.audit.Create(ctx, entry); err != nil {
		log.Error().Err(err).Msg("Failed to audit branch switch")
	}

	h.GetScope(w, r)
}
