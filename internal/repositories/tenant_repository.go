package repositories

import (
	"context"

	"github.com/tesserahq/tessera/internal/entities"
)

// TenantRepository defines the interface for tenant and tenant-link access,
// used by the cross-tenant sharing cascade. Relationships are read per
// request, never cached, because they change independently of the schema
// registry's lifetime.
type TenantRepository interface {
	// GetTenant returns the tenant, or entities.ErrNotFound.
	GetTenant(ctx context.Context, id string) (*entities.Tenant, error)

	// ListUserTenants returns the IDs of all tenants the user belongs to.
	ListUserTenants(ctx context.Context, userID string) ([]string, error)

	// ListRelationships returns the concrete tenant links whose from side is
	// one of fromTenantIDs and whose to side is toTenantID.
	ListRelationships(ctx context.Context, fromTenantIDs []string, toTenantID string) ([]*entities.TenantRelationship, error)

	// GetTypeRelationship returns the declaration a link was created under,
	// or entities.ErrNotFound.
	GetTypeRelationship(ctx context.Context, id string) (*entities.TenantTypeRelationship, error)
}
