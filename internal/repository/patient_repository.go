package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/clinicore/clinic-platform/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a record does not exist or the active scope
// may not see it. The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("record not found")

// PatientRepository handles patient database operations through the scoped
// query layer.
type PatientRepository struct {
	scoped *ScopedDB
}

// NewPatientRepository creates a new patient repository
func NewPatientRepository(scoped *ScopedDB) *PatientRepository {
	return &PatientRepository{scoped: scoped}
}

// Create creates a new patient after validating the target branch against
// the active scope
func (r *PatientRepository) Create(ctx context.Context, patient *models.Patient) error {
	if err := r.scoped.ValidateInsert(ctx, patient.ScopingDescriptor(), &patient.BranchID, nil); err != nil {
		return err
	}
	if err := r.scoped.db.WithContext(ctx).Create(patient).Error; err != nil {
		return fmt.Errorf("failed to create patient: %w", err)
	}
	return nil
}

// GetByID retrieves a patient visible to the active scope
func (r *PatientRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Patient, error) {
	var patient models.Patient
	err := r.scoped.Scoped(ctx, models.Patient{}).
		Where("patients.id = ?", id).
		First(&patient).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return &patient, nil
}

// List retrieves patients visible to the active scope
func (r *PatientRepository) List(ctx context.Context, limit, offset int) ([]models.Patient, error) {
	var patients []models.Patient
	query := r.scoped.Scoped(ctx, models.Patient{}).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&patients).Error; err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, nil
}

// Update saves changes to a patient. The branch may only move within the
// same company; the record must already be visible to the scope.
func (r *PatientRepository) Update(ctx context.Context, patient *models.Patient) error {
	existing, err := r.GetByID(ctx, patient.ID)
	if err != nil {
		return err
	}
	if existing.BranchID != patient.BranchID {
		if err := r.scoped.ValidateBranchChange(ctx, existing.BranchID, patient.BranchID); err != nil {
			return err
		}
	}
	if err := r.scoped.db.WithContext(ctx).Save(patient).Error; err != nil {
		return fmt.Errorf("failed to update patient: %w", err)
	}
	return nil
}

// Transfer moves a patient to another branch within the same company
func (r *PatientRepository) Transfer(ctx context.Context, id uuid.UUID, toBranchID uint) (*models.Patient, error) {
	patient, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.scoped.ValidateBranchChange(ctx, patient.BranchID, toBranchID); err != nil {
		return nil, err
	}
	if err := r.scoped.db.WithContext(ctx).
		Model(&models.Patient{}).
		Where("id = ?", id).
		Update("branch_id", toBranchID).Error; err != nil {
		return nil, fmt.Errorf("failed to transfer patient: %w", err)
	}
	patient.BranchID = toBranchID
	return patient, nil
}

// Delete soft deletes a patient visible to the active scope
func (r *PatientRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	if err := r.scoped.db.WithContext(ctx).Delete(&models.Patient{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete patient: %w", err)
	}
	return nil
}
