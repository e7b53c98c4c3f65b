package repositories

import (
	"context"

	"github.com/tesserahq/tessera/internal/entities"
)

// SchemaRepository defines the interface for entity definition access.
type SchemaRepository interface {
	// LoadEntities fetches all entity definitions visible to a tenant scope,
	// with properties, options, relationships, views and workflow states
	// populated. An empty scope loads global definitions.
	LoadEntities(ctx context.Context, tenantScope string) ([]*entities.Entity, error)
}
