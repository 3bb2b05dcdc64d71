package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Audit actions recorded by the isolation core
const (
	AuditActionScopeDenied  = "scope.denied"
	AuditActionScopeBypass  = "scope.bypass"
	AuditActionBranchSwitch = "scope.branch_switch"
)

// AuditLog represents an audit log entry
type AuditLog struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID     *uint     `gorm:"index" json:"tenant_id,omitempty"`
	CompanyID    *uint     `gorm:"index" json:"company_id,omitempty"`
	BranchID     *uint     `gorm:"index" json:"branch_id,omitempty"`
	UserID       uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	Action       string    `gorm:"type:varchar(100);not null;index" json:"action"`
	ResourceType string    `gorm:"type:varchar(50);index" json:"resource_type"`
	ResourceID   string    `gorm:"type:varchar(255);index" json:"resource_id"`
	IPAddress    string    `gorm:"type:varchar(45)" json:"ip_address"`
	Status       string    `gorm:"type:varchar(20);index" json:"status"` // success, denied, failure
	Detail       string    `gorm:"type:text" json:"detail,omitempty"`
	CreatedAt    time.Time `gorm:"index" json:"timestamp"`
}

// TableName overrides the table name
func (AuditLog) TableName() string {
	return "audit_logs"
}

// BeforeCreate hook
func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// ScopingDescriptor declares audit logs as tenant-level; platform events
// carry a NULL tenant id and remain visible to administrators
func (AuditLog) ScopingDescriptor() ScopingDescriptor {
	return ScopingDescriptor{
		EntityType:      "AuditLog",
		Table:           "audit_logs",
		TenantColumn:    "tenant_id",
		AllowNullTenant: true,
	}
}
