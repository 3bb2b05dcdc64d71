package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents a platform account. Tenant-level rather than
// branch-scoped: SuperAdmin accounts carry a NULL tenant id and stay
// visible to every scope.
type User struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID        *uint     `gorm:"index" json:"tenant_id,omitempty"`
	CompanyID       *uint     `gorm:"index" json:"company_id,omitempty"`
	PrimaryBranchID *uint     `gorm:"index" json:"primary_branch_id,omitempty"`
	Email           string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
	FullName        string    `gorm:"type:varchar(255)" json:"full_name"`
	Role            Role      `gorm:"type:varchar(50);not null" json:"role"`
	IsActive        bool      `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides the table name
func (User) TableName() string {
	return "users"
}

// BeforeCreate hook
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// ScopingDescriptor declares user accounts as tenant-level with the
// null-tenant carve-out for platform accounts
func (User) ScopingDescriptor() ScopingDescriptor {
	return ScopingDescriptor{
		EntityType:      "User",
		Table:           "users",
		TenantColumn:    "tenant_id",
		AllowNullTenant: true,
		SoftDelete:      true,
	}
}

// Patient represents a patient record, partitioned by branch
type Patient struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	BranchID    uint      `gorm:"not null;index" json:"branch_id"`
	MRN         string    `gorm:"type:varchar(50);not null;index" json:"mrn"` // medical record number
	FirstName   string    `gorm:"type:varchar(255);not null" json:"first_name"`
	LastName    string    `gorm:"type:varchar(255);not null" json:"last_name"`
	DateOfBirth time.Time `json:"date_of_birth"`
	Phone       string    `gorm:"type:varchar(50)" json:"phone"`
	IsActive    bool      `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides the table name
func (Patient) TableName() string {
	return "patients"
}

// BeforeCreate hook
func (p *Patient) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// ScopingDescriptor declares patients as branch-scoped
func (Patient) ScopingDescriptor() ScopingDescriptor {
	return ScopingDescriptor{EntityType: "Patient", Table: "patients", BranchColumn: "branch_id", SoftDelete: true}
}

// AppointmentStatus represents the lifecycle state of an appointment
type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// Appointment links a patient to a practitioner at a branch
type Appointment struct {
	ID             uuid.UUID         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	BranchID       uint              `gorm:"not null;index" json:"branch_id"`
	PatientID      uuid.UUID         `gorm:"type:uuid;not null;index" json:"patient_id"`
	PractitionerID uuid.UUID         `gorm:"type:uuid;index" json:"practitioner_id"`
	ScheduledAt    time.Time         `gorm:"not null;index" json:"scheduled_at"`
	Status         AppointmentStatus `gorm:"type:varchar(20);default:'scheduled'" json:"status"`
	Notes          string            `gorm:"type:text" json:"notes,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides the table name
func (Appointment) TableName() string {
	return "appointments"
}

// BeforeCreate hook
func (a *Appointment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// ScopingDescriptor declares appointments as branch-scoped
func (Appointment) ScopingDescriptor() ScopingDescriptor {
	return ScopingDescriptor{EntityType: "Appointment", Table: "appointments", BranchColumn: "branch_id", SoftDelete: true}
}

// Invoice represents a billing document raised at a branch
type Invoice struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	BranchID    uint      `gorm:"not null;index" json:"branch_id"`
	PatientID   uuid.UUID `gorm:"type:uuid;not null;index" json:"patient_id"`
	Number      string    `gorm:"type:varchar(50);not null;uniqueIndex" json:"number"`
	AmountCents int64     `gorm:"not null" json:"amount_cents"`
	Currency    string    `gorm:"type:varchar(3);default:'USD'" json:"currency"`
	IssuedAt    time.Time `json:"issued_at"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides the table name
func (Invoice) TableName() string {
	return "invoices"
}

// BeforeCreate hook
func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// ScopingDescriptor declares invoices as branch-scoped
func (Invoice) ScopingDescriptor() ScopingDescriptor {
	return ScopingDescriptor{EntityType: "Invoice", Table: "invoices", BranchColumn: "branch_id", SoftDelete: true}
}

// Employee represents a staff member employed at a branch
type Employee struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	BranchID uint      `gorm:"not null;index" json:"branch_id"`
	UserID   uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	Title    string    `gorm:"type:varchar(255)" json:"title"`
	IsActive bool      `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides the table name
func (Employee) TableName() string {
	return "employees"
}

// BeforeCreate hook
func (e *Employee) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// ScopingDescriptor declares employees as branch-scoped
func (Employee) ScopingDescriptor() ScopingDescriptor {
	return ScopingDescriptor{EntityType: "Employee", Table: "employees", BranchColumn: "branch_id", SoftDelete: true}
}

// InventoryItem represents stock held at a branch
type InventoryItem struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	BranchID uint      `gorm:"not null;index" json:"branch_id"`
	SKU      string    `gorm:"type:varchar(50);not null;index" json:"sku"`
	Name     string    `gorm:"type:varchar(255);not null" json:"name"`
	Quantity int       `gorm:"default:0" json:"quantity"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides the table name
func (InventoryItem) TableName() string {
	return "inventory_items"
}

// BeforeCreate hook
func (i *InventoryItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// ScopingDescriptor declares inventory as branch-scoped
func (InventoryItem) ScopingDescriptor() ScopingDescriptor {
	return ScopingDescriptor{EntityType: "InventoryItem", Table: "inventory_items", BranchColumn: "branch_id", SoftDelete: true}
}
