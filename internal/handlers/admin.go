package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/clinicore/clinic-platform/internal/isolation"
	"github.com/clinicore/clinic-platform/internal/models"
	"github.com/clinicore/clinic-platform/internal/repository"
	"github.com/clinicore/clinic-platform/internal/scope"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// AdminHandler exposes SuperAdmin diagnostics: the isolation compliance
// report and the audit trail.
type AdminHandler struct {
	iso   *isolation.Service
	audit *repository.AuditRepository
}

func NewAdminHandler(iso *isolation.Service, audit *repository.AuditRepository) *AdminHandler {
	return &AdminHandler{iso: iso, audit: audit}
}

// IsolationReport audits every registered partitioned entity type,
// reporting record counts per resolved tenant
func (h *AdminHandler) IsolationReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !scope.FromContext(ctx).IsSuperAdmin {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	reports := make([]*isolation.IsolationReport, 0, len(models.PartitionedTypes()))
	for _, desc := range models.PartitionedTypes() {
		report, err := h.iso.AuditEntityIsolation(ctx, desc)
		if err != nil {
			log.Error().Err(err).Str("entity_type", desc.EntityType).Msg("Isolation audit failed")
			http.Error(w, "Failed to build isolation report", http.StatusInternalServerError)
			return
		}
		reports = append(reports, report)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(reports)
}

// CompanyCapacity reports whether a tenant may create another company
func (h *AdminHandler) CompanyCapacity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, err := strconv.ParseUint(chi.URLParam(r, "tenantID"), 10, 32)
	if err != nil {
		http.Error(w, "Invalid tenant id", http.StatusBadRequest)
		return
	}

	sc := scope.FromContext(ctx)
	if !sc.IsSuperAdmin && (sc.TenantID == nil || *sc.TenantID != uint(tenantID)) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	ok, err := h.iso.CanCreateCompany(ctx, uint(tenantID))
	if err != nil {
		log.Error().Err(err).Msg("Company capacity check failed")
		http.Error(w, "Failed to check company capacity", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"can_create_company": ok})
}

// ListAuditLogs lists audit entries visible to the active scope
func (h *AdminHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	logs, err := h.audit.List(ctx, limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list audit logs")
		http.Error(w, "Failed to list audit logs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(logs)
}
