package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/clinicore/clinic-platform/internal/models"
	"github.com/clinicore/clinic-platform/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type PatientHandler struct {
	patients     *repository.PatientRepository
	appointments *repository.AppointmentRepository
}

func NewPatientHandler(patients *repository.PatientRepository, appointments *repository.AppointmentRepository) *PatientHandler {
	return &PatientHandler{patients: patients, appointments: appointments}
}

// PatientRequest is the create payload
type PatientRequest struct {
	BranchID    uint      `json:"branch_id"`
	MRN         string    `json:"mrn"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	DateOfBirth time.Time `json:"date_of_birth"`
	Phone       string    `json:"phone"`
}

// CreatePatient creates a patient in a branch the caller can access
func (h *PatientHandler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req PatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.BranchID == 0 || req.MRN == "" || req.FirstName == "" || req.LastName == "" {
		http.Error(w, "branch_id, mrn, first_name and last_name are required", http.StatusBadRequest)
		return
	}

	patient := &models.Patient{
		BranchID:    req.BranchID,
		MRN:         req.MRN,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		DateOfBirth: req.DateOfBirth,
		Phone:       req.Phone,
		IsActive:    true,
	}
	if err := h.patients.Create(ctx, patient); err != nil {
		if errors.Is(err, repository.ErrScopeViolation) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		log.Error().Err(err).Msg("Failed to create patient")
		http.Error(w, "Failed to create patient", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(patient)
}

// ListPatients lists patients visible to the caller's scope
func (h *PatientHandler) ListPatients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	patients, err := h.patients.List(ctx, limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list patients")
		http.Error(w, "Failed to list patients", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(patients)
}

// GetPatient returns one patient. Records outside the scope look identical
// to records that do not exist.
func (h *PatientHandler) GetPatient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid patient id", http.StatusBadRequest)
		return
	}

	patient, err := h.patients.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to get patient")
		http.Error(w, "Failed to get patient", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(patient)
}

// TransferRequest is the transfer payload
type TransferRequest struct {
	ToBranchID uint `json:"to_branch_id"`
}

// TransferPatient moves a patient to another branch within the same company
func (h *PatientHandler) TransferPatient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid patient id", http.StatusBadRequest)
		return
	}

	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ToBranchID == 0 {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	patient, err := h.patients.Transfer(ctx, id, req.ToBranchID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	case errors.Is(err, repository.ErrScopeViolation):
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	case err != nil:
		log.Error().Err(err).Msg("Failed to transfer patient")
		http.Error(w, "Failed to transfer patient", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(patient)
}

// AppointmentRequest is the booking payload
type AppointmentRequest struct {
	BranchID       uint      `json:"branch_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	PractitionerID uuid.UUID `json:"practitioner_id"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	Notes          string    `json:"notes"`
}

// CreateAppointment books an appointment; the patient and the branch must
// belong to one tenant
func (h *PatientHandler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.BranchID == 0 || req.PatientID == uuid.Nil || req.ScheduledAt.IsZero() {
		http.Error(w, "branch_id, patient_id and scheduled_at are required", http.StatusBadRequest)
		return
	}

	appt := &models.Appointment{
		BranchID:       req.BranchID,
		PatientID:      req.PatientID,
		PractitionerID: req.PractitionerID,
		ScheduledAt:    req.ScheduledAt,
		Status:         models.AppointmentScheduled,
		Notes:          req.Notes,
	}
	err := h.appointments.Create(ctx, appt)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	case errors.Is(err, repository.ErrScopeViolation), errors.Is(err, repository.ErrCrossTenantRelationship):
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	case err != nil:
		log.Error().Err(err).Msg("Failed to create appointment")
		http.Error(w, "Failed to create appointment", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(appt)
}

// ListPatientAppointments lists a patient's appointments within scope
func (h *PatientHandler) ListPatientAppointments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid patient id", http.StatusBadRequest)
		return
	}

	appts, err := h.appointments.ListByPatient(ctx, id)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list appointments")
		http.Error(w, "Failed to list appointments", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(appts)
}
