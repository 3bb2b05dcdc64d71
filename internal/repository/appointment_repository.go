package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/clinicore/clinic-platform/internal/isolation"
	"github.com/clinicore/clinic-platform/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrCrossTenantRelationship marks an attempt to link entities across a
// tenant boundary.
var ErrCrossTenantRelationship = errors.New("relationship would cross tenant boundary")

// AppointmentRepository handles appointment database operations through the
// scoped query layer.
type AppointmentRepository struct {
	scoped *ScopedDB
	iso    *isolation.Service
}

// NewAppointmentRepository creates a new appointment repository
func NewAppointmentRepository(scoped *ScopedDB, iso *isolation.Service) *AppointmentRepository {
	return &AppointmentRepository{scoped: scoped, iso: iso}
}

// Create creates an appointment. The patient must resolve to the same
// tenant as the appointment's branch; this is the relationship check that
// keeps cross-tenant links out of the data.
func (r *AppointmentRepository) Create(ctx context.Context, appt *models.Appointment) error {
	if err := r.scoped.ValidateInsert(ctx, appt.ScopingDescriptor(), &appt.BranchID, nil); err != nil {
		return err
	}

	var patient models.Patient
	err := r.scoped.Scoped(ctx, models.Patient{}).
		Where("patients.id = ?", appt.PatientID).
		First(&patient).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load patient: %w", err)
	}
	check := r.iso.ValidateRelationship(ctx, patient.BranchID, appt.BranchID, "appointment booking")
	if !check.Valid {
		return fmt.Errorf("%s: %w", check.Violation, ErrCrossTenantRelationship)
	}

	if err := r.scoped.db.WithContext(ctx).Create(appt).Error; err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

// GetByID retrieves an appointment visible to the active scope
func (r *AppointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Appointment, error) {
	var appt models.Appointment
	err := r.scoped.Scoped(ctx, models.Appointment{}).
		Where("appointments.id = ?", id).
		First(&appt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &appt, nil
}

// ListByPatient retrieves a patient's appointments visible to the active scope
func (r *AppointmentRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]models.Appointment, error) {
	var appts []models.Appointment
	if err := r.scoped.Scoped(ctx, models.Appointment{}).
		Where("appointments.patient_id = ?", patientID).
		Order("scheduled_at DESC").
		Find(&appts).Error; err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appts, nil
}

// UpdateStatus transitions an appointment's status
func (r *AppointmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.AppointmentStatus) error {
	result := r.scoped.Scoped(ctx, models.Appointment{}).
		Where("appointments.id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update appointment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
