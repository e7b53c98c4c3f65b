package entities

import "fmt"

// Tenant is one account on the platform.
type Tenant struct {
	ID     string
	Name   string
	TypeID *string
}

// TenantType classifies a tenant (e.g. "Vendor", "Client").
type TenantType struct {
	ID   string
	Name string
}

// TenantTypeRelationship declares, for an ordered (fromType, toType) pair,
// whether tenants of that pairing can be linked and which permission names
// are granted across the link. A nil side is a wildcard matching any or no
// type.
type TenantTypeRelationship struct {
	ID         string
	FromTypeID *string
	ToTypeID   *string
	Linkable   bool

	// Permissions are the access level names granted to users of the from
	// tenant when acting on the to tenant's data. Only these names cascade;
	// never a blanket elevation.
	Permissions []string
}

// Allows reports whether the given permission name is listed on the
// relationship.
func (tr *TenantTypeRelationship) Allows(name string) bool {
	for _, p := range tr.Permissions {
		if p == name {
			return true
		}
	}
	return false
}

// matchesType reports whether a declared side matches an actual tenant type.
// A nil declared side is a wildcard.
func matchesType(declared *string, actual *string) bool {
	if declared == nil {
		return true
	}
	return actual != nil && *declared == *actual
}

// CompatibleWith checks that the relationship's declared pairing matches the
// two tenants' actual types.
func (tr *TenantTypeRelationship) CompatibleWith(from, to *Tenant) error {
	if !tr.Linkable {
		return fmt.Errorf("tenant types are not linkable")
	}
	if !matchesType(tr.FromTypeID, from.TypeID) {
		return fmt.Errorf("tenant %s does not match the relationship's from type", from.ID)
	}
	if !matchesType(tr.ToTypeID, to.TypeID) {
		return fmt.Errorf("tenant %s does not match the relationship's to type", to.ID)
	}
	return nil
}

// TenantRelationship is an actual link between two tenants, created under a
// specific TenantTypeRelationship.
type TenantRelationship struct {
	ID                 string
	FromTenantID       string
	ToTenantID         string
	TypeRelationshipID string
}

// Validate checks the link instance against the declaration and the two
// tenants' actual types.
func (r *TenantRelationship) Validate(tr *TenantTypeRelationship, from, to *Tenant) error {
	if tr == nil {
		return fmt.Errorf("tenant relationship %s: type relationship is required", r.ID)
	}
	if r.FromTenantID != from.ID || r.ToTenantID != to.ID {
		return fmt.Errorf("tenant relationship %s: tenant IDs do not match", r.ID)
	}
	if err := tr.CompatibleWith(from, to); err != nil {
		return fmt.Errorf("tenant relationship %s: %w", r.ID, err)
	}
	return nil
}
