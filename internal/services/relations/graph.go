// Package relations resolves declared parent/child entity links and the
// rows attached through them. The graph is keyed by relationship ID with
// entity-index lookups, so cyclic and self-referencing declarations are
// traversed without recursive struct references.
package relations

import (
	"context"
	"fmt"

	"github.com/tesserahq/tessera/internal/entities"
	"github.com/tesserahq/tessera/internal/events"
	"github.com/tesserahq/tessera/internal/repositories"
	"github.com/tesserahq/tessera/internal/services/registry"
)

// Graph resolves relationship declarations and row edges.
type Graph struct {
	registry   *registry.Registry
	rows       repositories.RowRepository
	dispatcher *events.Dispatcher
}

// NewGraph creates a relationship graph over the loaded registry.
func NewGraph(reg *registry.Registry, rows repositories.RowRepository, dispatcher *events.Dispatcher) *Graph {
	return &Graph{registry: reg, rows: rows, dispatcher: dispatcher}
}

// find returns the declared relationship between the parent and child
// entity IDs, preferring an exact role match.
func (g *Graph) find(parentEntityID, childEntityID string) (*entities.EntityRelationship, error) {
	parent, err := g.registry.Get(parentEntityID)
	if err != nil {
		return nil, err
	}
	for _, rel := range parent.ParentRelationships {
		if rel.ChildEntityID == childEntityID {
			return rel, nil
		}
	}
	return nil, fmt.Errorf("no relationship from %s to %s: %w",
		parentEntityID, childEntityID, entities.ErrConflictingRelationship)
}

// ParentsOf returns the rows attached as parents of row through its link to
// the named entity, in link-creation order unless overridden.
func (g *Graph) ParentsOf(ctx context.Context, row *entities.Row, entityName string, order repositories.EdgeOrder) ([]*entities.Row, error) {
	parentEntity, err := g.registry.Get(entityName)
	if err != nil {
		return nil, err
	}
	rel, err := g.find(parentEntity.ID, row.EntityID)
	if err != nil {
		return nil, err
	}
	parents, err := g.rows.ListParents(ctx, rel.ID, row.ID, order)
	if err != nil {
		return nil, fmt.Errorf("failed to list parents: %w", err)
	}
	return parents, nil
}

// ChildrenOf returns the rows attached as children of row through its link
// to the named entity, in link-creation order unless overridden.
func (g *Graph) ChildrenOf(ctx context.Context, row *entities.Row, entityName string, order repositories.EdgeOrder) ([]*entities.Row, error) {
	childEntity, err := g.registry.Get(entityName)
	if err != nil {
		return nil, err
	}
	rel, err := g.find(row.EntityID, childEntity.ID)
	if err != nil {
		return nil, err
	}
	children, err := g.rows.ListChildren(ctx, rel.ID, row.ID, order)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	return children, nil
}

// Attach links child under parent. The relationship must be declared
// between the two entities; single-cardinality slots replace rather than
// append.
func (g *Graph) Attach(ctx context.Context, parent, child *entities.Row) error {
	rel, err := g.find(parent.EntityID, child.EntityID)
	if err != nil {
		return err
	}

	if rel.Single {
		err = g.rows.ReplaceEdge(ctx, rel.ID, parent.ID, child.ID)
	} else {
		err = g.rows.CreateEdge(ctx, rel.ID, parent.ID, child.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to attach row: %w", err)
	}

	g.notify(parent)
	return nil
}

// Detach removes the edge between parent and child.
func (g *Graph) Detach(ctx context.Context, parent, child *entities.Row) error {
	rel, err := g.find(parent.EntityID, child.EntityID)
	if err != nil {
		return err
	}
	if err := g.rows.DeleteEdge(ctx, rel.ID, parent.ID, child.ID); err != nil {
		return fmt.Errorf("failed to detach row: %w", err)
	}
	g.notify(parent)
	return nil
}

// RelationshipSets splits a row's child relationships into the visible set
// and the hidden/addable set: a hiddenIfEmpty relationship with no attached
// rows appears only in the addable set.
func (g *Graph) RelationshipSets(ctx context.Context, row *entities.Row) (visible, addable []*entities.EntityRelationship, err error) {
	entity, err := g.registry.Get(row.EntityID)
	if err != nil {
		return nil, nil, err
	}

	for _, rel := range entity.ParentRelationships {
		if !rel.HiddenIfEmpty {
			visible = append(visible, rel)
			continue
		}
		count, err := g.rows.CountChildren(ctx, rel.ID, row.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to count children of relationship %s: %w", rel.ID, err)
		}
		if count > 0 {
			visible = append(visible, rel)
		} else {
			addable = append(addable, rel)
		}
	}
	return visible, addable, nil
}

func (g *Graph) notify(parent *entities.Row) {
	if g.dispatcher == nil {
		return
	}
	evt := events.Event{Kind: events.RelationshipChanged, EntityID: parent.EntityID, RowID: parent.ID}
	if parent.TenantID != nil {
		evt.TenantID = *parent.TenantID
	}
	g.dispatcher.Publish(evt)
}
