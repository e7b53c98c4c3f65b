package access

import (
	"context"
	"fmt"

	"github.com/tesserahq/tessera/internal/entities"
	"github.com/tesserahq/tessera/internal/repositories"
)

// Cascade extends permission resolution across tenant boundaries. When the
// principal's tenants are linked to the target tenant, the permission names
// listed on each link's type relationship apply to the target's data — only
// those names, never a blanket elevation. Relationships are read per
// request because they change independently of the schema cache lifetime.
type Cascade struct {
	tenants repositories.TenantRepository
}

// NewCascade creates a tenant-sharing cascade.
func NewCascade(tenants repositories.TenantRepository) *Cascade {
	return &Cascade{tenants: tenants}
}

// SharedPermissions returns the union of permission names the principal
// gains against the target tenant through declared tenant links.
func (c *Cascade) SharedPermissions(ctx context.Context, principal *entities.Principal, targetTenantID string) (map[string]bool, error) {
	if !principal.Authenticated() || targetTenantID == "" {
		return nil, nil
	}

	own, err := c.tenants.ListUserTenants(ctx, principal.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list principal tenants: %w", err)
	}
	if len(own) == 0 {
		return nil, nil
	}

	links, err := c.tenants.ListRelationships(ctx, own, targetTenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant relationships: %w", err)
	}

	names := make(map[string]bool)
	for _, link := range links {
		decl, err := c.tenants.GetTypeRelationship(ctx, link.TypeRelationshipID)
		if err != nil {
			return nil, fmt.Errorf("failed to load type relationship for link %s: %w", link.ID, err)
		}
		if !decl.Linkable {
			continue
		}
		for _, name := range decl.Permissions {
			names[name] = true
		}
	}
	return names, nil
}
