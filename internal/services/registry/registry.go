// Package registry holds the per-process cache of entity definitions. A
// registry is an injected dependency, populated at most once and read
// concurrently by many in-flight requests.
package registry

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/tesserahq/tessera/internal/entities"
	"github.com/tesserahq/tessera/internal/repositories"
)

// Registry caches the entity definitions visible to one tenant scope.
// Accessors fail with entities.ErrSchemaNotLoaded before the first
// successful Load; they never silently return an empty schema.
type Registry struct {
	repo  repositories.SchemaRepository
	scope string

	mu      sync.RWMutex
	loaded  bool
	list    []*entities.Entity
	byName  map[string]*entities.Entity
	byID    map[string]*entities.Entity
	version string
}

// New creates an unloaded registry for the given tenant scope.
func New(repo repositories.SchemaRepository, tenantScope string) *Registry {
	return &Registry{repo: repo, scope: tenantScope}
}

// Load populates the registry exactly once. Concurrent callers serialize on
// the populate; later calls return immediately. A failed load is not cached,
// so the next caller retries.
func (r *Registry) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return nil
	}

	list, err := r.repo.LoadEntities(ctx, r.scope)
	if err != nil {
		return fmt.Errorf("failed to load entity definitions: %w", err)
	}

	byName := make(map[string]*entities.Entity, len(list))
	byID := make(map[string]*entities.Entity, len(list))
	for _, e := range list {
		byName[e.Name] = e
		byID[e.ID] = e
	}

	r.list = list
	r.byName = byName
	r.byID = byID
	r.version = ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)).String()
	r.loaded = true
	return nil
}

// Get returns the entity definition by name or ID.
func (r *Registry) Get(nameOrID string) (*entities.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.loaded {
		return nil, entities.ErrSchemaNotLoaded
	}
	if e, ok := r.byName[nameOrID]; ok {
		return e, nil
	}
	if e, ok := r.byID[nameOrID]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("entity %s: %w", nameOrID, entities.ErrNotFound)
}

// Entities returns all loaded entity definitions.
func (r *Registry) Entities() ([]*entities.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.loaded {
		return nil, entities.ErrSchemaNotLoaded
	}
	return r.list, nil
}

// Relationship returns the declared relationship by ID, searching both
// sides of every loaded entity.
func (r *Registry) Relationship(id string) (*entities.EntityRelationship, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.loaded {
		return nil, entities.ErrSchemaNotLoaded
	}
	for _, e := range r.list {
		for _, rel := range e.ParentRelationships {
			if rel.ID == id {
				return rel, nil
			}
		}
		for _, rel := range e.ChildRelationships {
			if rel.ID == id {
				return rel, nil
			}
		}
	}
	return nil, fmt.Errorf("relationship %s: %w", id, entities.ErrNotFound)
}

// Version returns the snapshot version assigned at load time.
func (r *Registry) Version() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.loaded {
		return "", entities.ErrSchemaNotLoaded
	}
	return r.version, nil
}
