package entities

// Principal is the acting identity of a request: a user (or API key)
// together with the tenant context and the roles and groups held there.
// The zero value is the unauthenticated principal.
type Principal struct {
	UserID   string
	TenantID string
	RoleIDs  []string
	GroupIDs []string
	APIKey   bool
}

// Authenticated reports whether the principal carries a user identity.
func (p *Principal) Authenticated() bool {
	return p != nil && p.UserID != ""
}

// HasRole reports whether the principal holds the given role.
func (p *Principal) HasRole(roleID string) bool {
	for _, r := range p.RoleIDs {
		if r == roleID {
			return true
		}
	}
	return false
}

// HasGroup reports whether the principal belongs to the given group.
func (p *Principal) HasGroup(groupID string) bool {
	for _, g := range p.GroupIDs {
		if g == groupID {
			return true
		}
	}
	return false
}
