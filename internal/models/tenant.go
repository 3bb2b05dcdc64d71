package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tenant represents a top-level isolated customer organization
// (a hospital group or clinic network)
type Tenant struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Name         string `gorm:"type:varchar(255);not null" json:"name"`
	Domain       string `gorm:"type:varchar(255);uniqueIndex" json:"domain"`
	IsActive     bool   `gorm:"default:true" json:"is_active"`
	MaxCompanies int    `gorm:"default:0" json:"max_companies"` // 0 = unlimited

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides the table name
func (Tenant) TableName() string {
	return "tenants"
}

// Company represents a business unit within a tenant (one clinic brand)
type Company struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	TenantID uint   `gorm:"not null;index" json:"tenant_id"`
	Name     string `gorm:"type:varchar(255);not null" json:"name"`
	IsActive bool   `gorm:"default:true" json:"is_active"`

	Tenant *Tenant `gorm:"foreignKey:TenantID" json:"-"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides the table name
func (Company) TableName() string {
	return "companies"
}

// Branch represents a physical location within a company; the finest-grained
// partition for clinical and business data. A branch belongs to exactly one
// company, and transitively to exactly one tenant.
type Branch struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	CompanyID uint   `gorm:"not null;index" json:"company_id"`
	Name      string `gorm:"type:varchar(255);not null" json:"name"`
	IsMain    bool   `gorm:"default:false" json:"is_main"`
	IsActive  bool   `gorm:"default:true" json:"is_active"`

	Company *Company `gorm:"foreignKey:CompanyID" json:"-"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides the table name
func (Branch) TableName() string {
	return "branches"
}

// BranchAssignment grants a user access to a branch beyond their primary one
type BranchAssignment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	BranchID  uint      `gorm:"not null;index" json:"branch_id"`
	CreatedAt time.Time `json:"created_at"`

	Branch *Branch `gorm:"foreignKey:BranchID" json:"-"`
}

// TableName overrides the table name
func (BranchAssignment) TableName() string {
	return "branch_assignments"
}
