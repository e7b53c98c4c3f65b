package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesserahq/tessera/internal/entities"
	"github.com/tesserahq/tessera/internal/query"
)

// evalPredicate interprets a scoping predicate against one in-memory row the
// way the row store's SQL would, so the bulk path can be compared against
// Resolve without a database.
func evalPredicate(t *testing.T, n query.Node, row *entities.Row) bool {
	t.Helper()
	switch node := n.(type) {
	case *query.Group:
		for _, child := range node.Nodes {
			match := evalPredicate(t, child, row)
			if node.Or && match {
				return true
			}
			if !node.Or && !match {
				return false
			}
		}
		return !node.Or
	case *query.Exists:
		require.Equal(t, "row_permissions rp", node.Table)
		for _, g := range row.Grants {
			if grantSatisfies(t, node.Nodes, g) {
				return true
			}
		}
		return false
	case *query.Cond:
		return evalRowCond(t, node, row)
	default:
		t.Fatalf("unexpected node type %T", n)
		return false
	}
}

func evalRowCond(t *testing.T, c *query.Cond, row *entities.Row) bool {
	t.Helper()
	var field *string
	switch c.Column {
	case "rows.created_by_user_id":
		field = row.CreatedByUserID
	case "rows.tenant_id":
		field = row.TenantID
	default:
		t.Fatalf("unexpected row column %q", c.Column)
	}
	switch c.Op {
	case query.OpIsNull:
		return field == nil
	case query.OpEqual:
		return field != nil && *field == c.Value.(string)
	default:
		t.Fatalf("unexpected operator %s on %q", c.Op, c.Column)
		return false
	}
}

func grantSatisfies(t *testing.T, conds []query.Node, g *entities.RowPermission) bool {
	t.Helper()
	match := func(field *string, want interface{}) bool {
		return field != nil && *field == want.(string)
	}
	for _, n := range conds {
		c, ok := n.(*query.Cond)
		require.True(t, ok, "grant clauses contain only direct conditions")
		switch c.Column {
		case "rp.level":
			require.Equal(t, query.OpGreaterThanOrEqual, c.Op)
			if int(g.Level) < c.Value.(int) {
				return false
			}
		case "rp.tenant_id":
			if !match(g.TenantID, c.Value) {
				return false
			}
		case "rp.user_id":
			if !match(g.UserID, c.Value) {
				return false
			}
		case "rp.role_id":
			if !match(g.RoleID, c.Value) {
				return false
			}
		case "rp.group_id":
			if !match(g.GroupID, c.Value) {
				return false
			}
		default:
			t.Fatalf("unexpected grant column %q", c.Column)
		}
	}
	return true
}

// TestResolveMatchesScopingPredicate runs the single-row decision and the
// bulk predicate over the same grant matrix and requires that a row is
// selected by the predicate exactly when Resolve allows reading it.
func TestResolveMatchesScopingPredicate(t *testing.T) {
	sharing := &fakeTenantRepo{
		userTenants: []string{"t1"},
		links:       []*entities.TenantRelationship{{ID: "l1", FromTenantID: "t1", ToTenantID: "t2", TypeRelationshipID: "tr1"}},
		decls: map[string]*entities.TenantTypeRelationship{
			"tr1": {ID: "tr1", Linkable: true, Permissions: []string{"view"}},
		},
	}
	editOnlySharing := &fakeTenantRepo{
		userTenants: []string{"t1"},
		links:       []*entities.TenantRelationship{{ID: "l1", FromTenantID: "t1", ToTenantID: "t2", TypeRelationshipID: "tr1"}},
		decls: map[string]*entities.TenantTypeRelationship{
			"tr1": {ID: "tr1", Linkable: true, Permissions: []string{"edit"}},
		},
	}

	tests := []struct {
		name      string
		row       *entities.Row
		principal *entities.Principal
		tenants   *fakeTenantRepo
	}{
		{
			name:      "anonymous sees creatorless tenantless row",
			row:       &entities.Row{ID: "r1", Grants: []*entities.RowPermission{}},
			principal: &entities.Principal{},
		},
		{
			name:      "anonymous denied owned tenant row",
			row:       &entities.Row{ID: "r1", CreatedByUserID: strp("u9"), TenantID: strp("t1"), Grants: []*entities.RowPermission{}},
			principal: &entities.Principal{},
		},
		{
			name:      "owner reads own row",
			row:       &entities.Row{ID: "r1", CreatedByUserID: strp("u1"), TenantID: strp("t1"), Grants: []*entities.RowPermission{}},
			principal: &entities.Principal{UserID: "u1", TenantID: "t1"},
		},
		{
			name:      "stranger denied without grants",
			row:       &entities.Row{ID: "r1", CreatedByUserID: strp("u9"), TenantID: strp("t1"), Grants: []*entities.RowPermission{}},
			principal: &entities.Principal{UserID: "u2", TenantID: "t1"},
		},
		{
			name: "user grant admits",
			row: &entities.Row{ID: "r1", CreatedByUserID: strp("u9"), TenantID: strp("t1"), Grants: []*entities.RowPermission{
				{UserID: strp("u2"), Level: entities.AccessView},
			}},
			principal: &entities.Principal{UserID: "u2", TenantID: "t1"},
		},
		{
			name: "user grant of level none stays invisible",
			row: &entities.Row{ID: "r1", CreatedByUserID: strp("u9"), TenantID: strp("t1"), Grants: []*entities.RowPermission{
				{UserID: strp("u2"), Level: entities.AccessNone},
			}},
			principal: &entities.Principal{UserID: "u2", TenantID: "t1"},
		},
		{
			name: "tenant grant admits members",
			row: &entities.Row{ID: "r1", CreatedByUserID: strp("u9"), TenantID: strp("t1"), Grants: []*entities.RowPermission{
				{TenantID: strp("t1"), Level: entities.AccessComment},
			}},
			principal: &entities.Principal{UserID: "u2", TenantID: "t1"},
		},
		{
			name: "tenant grant skips other tenants",
			row: &entities.Row{ID: "r1", CreatedByUserID: strp("u9"), TenantID: strp("t1"), Grants: []*entities.RowPermission{
				{TenantID: strp("t1"), Level: entities.AccessComment},
			}},
			principal: &entities.Principal{UserID: "u2", TenantID: "t9"},
		},
		{
			name: "role grant admits",
			row: &entities.Row{ID: "r1", CreatedByUserID: strp("u9"), TenantID: strp("t1"), Grants: []*entities.RowPermission{
				{RoleID: strp("admin"), Level: entities.AccessEdit},
			}},
			principal: &entities.Principal{UserID: "u2", TenantID: "t1", RoleIDs: []string{"admin"}},
		},
		{
			name: "group grant admits",
			row: &entities.Row{ID: "r1", CreatedByUserID: strp("u9"), TenantID: strp("t1"), Grants: []*entities.RowPermission{
				{GroupID: strp("g1"), Level: entities.AccessView},
			}},
			principal: &entities.Principal{UserID: "u2", TenantID: "t1", GroupIDs: []string{"g1"}},
		},
		{
			name:      "tenant sharing with view admits linked tenant",
			row:       &entities.Row{ID: "r1", CreatedByUserID: strp("u9"), TenantID: strp("t2"), Grants: []*entities.RowPermission{}},
			principal: &entities.Principal{UserID: "u1", TenantID: "t1"},
			tenants:   sharing,
		},
		{
			name:      "tenant sharing without view stays invisible",
			row:       &entities.Row{ID: "r1", CreatedByUserID: strp("u9"), TenantID: strp("t2"), Grants: []*entities.RowPermission{}},
			principal: &entities.Principal{UserID: "u1", TenantID: "t1"},
			tenants:   editOnlySharing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(&fakeRowRepo{}, tt.tenants)
			ctx := context.Background()

			d, err := r.Resolve(ctx, tt.row, tt.principal)
			require.NoError(t, err)

			target := ""
			if tt.row.TenantID != nil {
				target = *tt.row.TenantID
			}
			pred, err := r.ScopingPredicate(ctx, target, tt.principal)
			require.NoError(t, err)

			assert.Equal(t, d.CanRead, evalPredicate(t, pred, tt.row),
				"bulk predicate must select the row exactly when Resolve allows reading it")
		})
	}
}
