package relations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesserahq/tessera/internal/entities"
	"github.com/tesserahq/tessera/internal/query"
	"github.com/tesserahq/tessera/internal/repositories"
	"github.com/tesserahq/tessera/internal/services/registry"
)

type fakeSchemaRepo struct{ entities []*entities.Entity }

func (f *fakeSchemaRepo) LoadEntities(ctx context.Context, tenantScope string) ([]*entities.Entity, error) {
	return f.entities, nil
}

type edge struct{ rel, parent, child string }

type fakeRowRepo struct {
	edges    []edge
	replaced []edge
	children map[string][]*entities.Row
	counts   map[string]int
}

func (f *fakeRowRepo) FindRows(ctx context.Context, entityID string, pred query.Node, page repositories.Pagination) ([]*entities.Row, int, error) {
	return nil, 0, nil
}
func (f *fakeRowRepo) GetRow(ctx context.Context, id string) (*entities.Row, error) { return nil, nil }
func (f *fakeRowRepo) CreateRow(ctx context.Context, row *entities.Row) error       { return nil }
func (f *fakeRowRepo) UpsertRowValues(ctx context.Context, rowID string, values []*entities.RowValue) error {
	return nil
}
func (f *fakeRowRepo) AppendChangeLog(ctx context.Context, entry *entities.ChangeEntry) error {
	return nil
}
func (f *fakeRowRepo) ListGrants(ctx context.Context, rowID string) ([]*entities.RowPermission, error) {
	return nil, nil
}
func (f *fakeRowRepo) CreateEdge(ctx context.Context, relationshipID, parentRowID, childRowID string) error {
	f.edges = append(f.edges, edge{relationshipID, parentRowID, childRowID})
	return nil
}
func (f *fakeRowRepo) ReplaceEdge(ctx context.Context, relationshipID, parentRowID, childRowID string) error {
	f.replaced = append(f.replaced, edge{relationshipID, parentRowID, childRowID})
	return nil
}
func (f *fakeRowRepo) DeleteEdge(ctx context.Context, relationshipID, parentRowID, childRowID string) error {
	for i, e := range f.edges {
		if e == (edge{relationshipID, parentRowID, childRowID}) {
			f.edges = append(f.edges[:i], f.edges[i+1:]...)
			break
		}
	}
	return nil
}
func (f *fakeRowRepo) ListParents(ctx context.Context, relationshipID, childRowID string, order repositories.EdgeOrder) ([]*entities.Row, error) {
	return nil, nil
}
func (f *fakeRowRepo) ListChildren(ctx context.Context, relationshipID, parentRowID string, order repositories.EdgeOrder) ([]*entities.Row, error) {
	return f.children[relationshipID], nil
}
func (f *fakeRowRepo) CountChildren(ctx context.Context, relationshipID, parentRowID string) (int, error) {
	return f.counts[relationshipID], nil
}

// Customer has two links to invoice: a plain list and a single-cardinality
// "primary" slot that hides when empty.
func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	invoices := &entities.EntityRelationship{
		ID: "rel-invoices", ParentEntityID: "e-customer", ChildEntityID: "e-invoice",
	}
	primary := &entities.EntityRelationship{
		ID: "rel-primary", ParentEntityID: "e-customer", ChildEntityID: "e-invoice",
		Role: "primary", Single: true, HiddenIfEmpty: true,
	}
	address := &entities.EntityRelationship{
		ID: "rel-address", ParentEntityID: "e-customer", ChildEntityID: "e-address",
		Single: true,
	}
	reg := registry.New(&fakeSchemaRepo{entities: []*entities.Entity{
		{ID: "e-customer", Name: "customer", ParentRelationships: []*entities.EntityRelationship{invoices, primary, address}},
		{ID: "e-invoice", Name: "invoice", ChildRelationships: []*entities.EntityRelationship{invoices, primary}},
		{ID: "e-address", Name: "address", ChildRelationships: []*entities.EntityRelationship{address}},
		{ID: "e-note", Name: "note"},
	}}, "")
	require.NoError(t, reg.Load(context.Background()))
	return reg
}

func TestGraph_AttachDeclaredRelationship(t *testing.T) {
	repo := &fakeRowRepo{}
	g := NewGraph(testRegistry(t), repo, nil)

	customer := &entities.Row{ID: "c1", EntityID: "e-customer"}
	invoice := &entities.Row{ID: "i1", EntityID: "e-invoice"}

	require.NoError(t, g.Attach(context.Background(), customer, invoice))
	require.Len(t, repo.edges, 1)
	assert.Equal(t, edge{"rel-invoices", "c1", "i1"}, repo.edges[0])
}

func TestGraph_AttachUndeclaredRelationship(t *testing.T) {
	repo := &fakeRowRepo{}
	g := NewGraph(testRegistry(t), repo, nil)

	customer := &entities.Row{ID: "c1", EntityID: "e-customer"}
	note := &entities.Row{ID: "n1", EntityID: "e-note"}

	err := g.Attach(context.Background(), customer, note)
	assert.ErrorIs(t, err, entities.ErrConflictingRelationship)
	assert.Empty(t, repo.edges)
}

func TestGraph_DetachRemovesEdge(t *testing.T) {
	repo := &fakeRowRepo{}
	g := NewGraph(testRegistry(t), repo, nil)

	customer := &entities.Row{ID: "c1", EntityID: "e-customer"}
	invoice := &entities.Row{ID: "i1", EntityID: "e-invoice"}

	require.NoError(t, g.Attach(context.Background(), customer, invoice))
	require.NoError(t, g.Detach(context.Background(), customer, invoice))
	assert.Empty(t, repo.edges)
}

func TestGraph_RelationshipSets(t *testing.T) {
	repo := &fakeRowRepo{counts: map[string]int{"rel-primary": 0}}
	g := NewGraph(testRegistry(t), repo, nil)
	customer := &entities.Row{ID: "c1", EntityID: "e-customer"}

	visible, addable, err := g.RelationshipSets(context.Background(), customer)
	require.NoError(t, err)
	require.Len(t, visible, 2)
	assert.Equal(t, "rel-invoices", visible[0].ID)
	assert.Equal(t, "rel-address", visible[1].ID)
	require.Len(t, addable, 1)
	assert.Equal(t, "rel-primary", addable[0].ID, "empty hideable slot is addable only")

	repo.counts["rel-primary"] = 1
	visible, addable, err = g.RelationshipSets(context.Background(), customer)
	require.NoError(t, err)
	assert.Len(t, visible, 3)
	assert.Empty(t, addable)
}

func TestGraph_SingleLinkReplaces(t *testing.T) {
	repo := &fakeRowRepo{}
	g := NewGraph(testRegistry(t), repo, nil)

	customer := &entities.Row{ID: "c1", EntityID: "e-customer"}
	addr := &entities.Row{ID: "a1", EntityID: "e-address"}

	require.NoError(t, g.Attach(context.Background(), customer, addr))
	assert.Empty(t, repo.edges, "single-cardinality slots never append")
	require.Len(t, repo.replaced, 1)
	assert.Equal(t, edge{"rel-address", "c1", "a1"}, repo.replaced[0])
}

func TestGraph_ChildrenOf(t *testing.T) {
	repo := &fakeRowRepo{children: map[string][]*entities.Row{
		"rel-invoices": {{ID: "i1"}, {ID: "i2"}},
	}}
	g := NewGraph(testRegistry(t), repo, nil)
	customer := &entities.Row{ID: "c1", EntityID: "e-customer"}

	children, err := g.ChildrenOf(context.Background(), customer, "invoice", repositories.OrderByLink)
	require.NoError(t, err)
	assert.Len(t, children, 2)
}
