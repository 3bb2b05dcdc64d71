package models

// ScopingDescriptor declares how a tenant-partitioned entity type resolves
// its owning branch or tenant. Every partitioned model exposes one, so the
// query scoping layer can be applied mechanically rather than hand-written
// per entity.
type ScopingDescriptor struct {
	EntityType string
	Table      string

	// BranchColumn is set for branch-scoped entities; the owning tenant is
	// resolved transitively through branches -> companies -> tenants.
	BranchColumn string

	// TenantColumn is set for tenant-level entities that carry the tenant id
	// directly (user accounts).
	TenantColumn string

	// AllowNullTenant keeps rows with a NULL tenant id visible to every
	// scope. Narrow carve-out for platform-level principal records only.
	AllowNullTenant bool

	// SoftDelete marks tables that carry a deleted_at column.
	SoftDelete bool
}

// BranchScoped reports whether the entity is partitioned at branch level
func (d ScopingDescriptor) BranchScoped() bool {
	return d.BranchColumn != ""
}

// Partitioned is implemented by every tenant-partitioned model
type Partitioned interface {
	ScopingDescriptor() ScopingDescriptor
}

// PartitionedTypes lists every descriptor registered for isolation audits.
// Hierarchy tables themselves are deliberately absent: Tenant, Company and
// Branch are the partition keys, not partitioned data.
func PartitionedTypes() []ScopingDescriptor {
	return []ScopingDescriptor{
		User{}.ScopingDescriptor(),
		Patient{}.ScopingDescriptor(),
		Appointment{}.ScopingDescriptor(),
		Invoice{}.ScopingDescriptor(),
		Employee{}.ScopingDescriptor(),
		InventoryItem{}.ScopingDescriptor(),
		AuditLog{}.ScopingDescriptor(),
	}
}
