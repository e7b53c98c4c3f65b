package access

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesserahq/tessera/internal/entities"
	"github.com/tesserahq/tessera/internal/query"
	"github.com/tesserahq/tessera/internal/repositories"
	"github.com/tesserahq/tessera/pkg/cache/memorycache"
)

func strp(s string) *string { return &s }

type fakeRowRepo struct {
	grants          []*entities.RowPermission
	listGrantsCalls int
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
	f.listGrantsCalls++
	return f.grants, nil
}
func (f *fakeRowRepo) CreateEdge(ctx context.Context, relationshipID, parentRowID, childRowID string) error {
	return nil
}
func (f *fakeRowRepo) ReplaceEdge(ctx context.Context, relationshipID, parentRowID, childRowID string) error {
	return nil
}
func (f *fakeRowRepo) DeleteEdge(ctx context.Context, relationshipID, parentRowID, childRowID string) error {
	return nil
}
func (f *fakeRowRepo) ListParents(ctx context.Context, relationshipID, childRowID string, order repositories.EdgeOrder) ([]*entities.Row, error) {
	return nil, nil
}
func (f *fakeRowRepo) ListChildren(ctx context.Context, relationshipID, parentRowID string, order repositories.EdgeOrder) ([]*entities.Row, error) {
	return nil, nil
}
func (f *fakeRowRepo) CountChildren(ctx context.Context, relationshipID, parentRowID string) (int, error) {
	return 0, nil
}

type fakeTenantRepo struct {
	userTenants []string
	links       []*entities.TenantRelationship
	decls       map[string]*entities.TenantTypeRelationship
}

func (f *fakeTenantRepo) GetTenant(ctx context.Context, id string) (*entities.Tenant, error) {
	return nil, entities.ErrNotFound
}
func (f *fakeTenantRepo) ListUserTenants(ctx context.Context, userID string) ([]string, error) {
	return f.userTenants, nil
}
func (f *fakeTenantRepo) ListRelationships(ctx context.Context, fromTenantIDs []string, toTenantID string) ([]*entities.TenantRelationship, error) {
	return f.links, nil
}
func (f *fakeTenantRepo) GetTypeRelationship(ctx context.Context, id string) (*entities.TenantTypeRelationship, error) {
	decl, ok := f.decls[id]
	if !ok {
		return nil, entities.ErrNotFound
	}
	return decl, nil
}

func newTestResolver(rows *fakeRowRepo, tenants *fakeTenantRepo) *Resolver {
	if tenants == nil {
		tenants = &fakeTenantRepo{}
	}
	return NewResolver(rows, NewCascade(tenants))
}

func TestResolve_Owner(t *testing.T) {
	r := newTestResolver(&fakeRowRepo{}, nil)
	row := &entities.Row{ID: "r1", CreatedByUserID: strp("u1"), Grants: []*entities.RowPermission{}}

	d, err := r.Resolve(context.Background(), row, &entities.Principal{UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, d.IsOwner)
	assert.True(t, d.CanRead)
	assert.True(t, d.CanComment)
	assert.True(t, d.CanUpdate)
	assert.True(t, d.CanDelete)

	d, err = r.Resolve(context.Background(), row, &entities.Principal{UserID: "u2"})
	require.NoError(t, err)
	assert.False(t, d.IsOwner)
	assert.False(t, d.CanRead)
	assert.False(t, d.CanDelete)
}

func TestResolve_RoleGrant(t *testing.T) {
	r := newTestResolver(&fakeRowRepo{}, nil)
	row := &entities.Row{
		ID:              "r1",
		CreatedByUserID: strp("u1"),
		Grants: []*entities.RowPermission{
			{ID: "g1", RowID: "r1", RoleID: strp("admin"), Level: entities.AccessEdit},
		},
	}

	d, err := r.Resolve(context.Background(), row, &entities.Principal{UserID: "u2", RoleIDs: []string{"admin"}})
	require.NoError(t, err)
	assert.Equal(t, entities.AccessEdit, d.Level)
	assert.True(t, d.CanRead)
	assert.True(t, d.CanComment)
	assert.True(t, d.CanUpdate)
	assert.False(t, d.CanDelete)
	assert.False(t, d.IsOwner)
}

// Overlapping grants reduce to the single highest level, never a sum.
func TestResolve_MaxReduction(t *testing.T) {
	r := newTestResolver(&fakeRowRepo{}, nil)
	row := &entities.Row{
		ID:              "r1",
		CreatedByUserID: strp("u1"),
		Grants: []*entities.RowPermission{
			{ID: "g1", RowID: "r1", UserID: strp("u2"), Level: entities.AccessView},
			{ID: "g2", RowID: "r1", RoleID: strp("admin"), Level: entities.AccessComment},
		},
	}

	d, err := r.Resolve(context.Background(), row, &entities.Principal{UserID: "u2", RoleIDs: []string{"admin"}})
	require.NoError(t, err)
	assert.Equal(t, entities.AccessComment, d.Level)
	assert.True(t, d.CanComment)
	assert.False(t, d.CanUpdate)
}

func TestResolve_GrantAdditionNeverLowersAccess(t *testing.T) {
	r := newTestResolver(&fakeRowRepo{}, nil)
	principal := &entities.Principal{UserID: "u2", TenantID: "t1", RoleIDs: []string{"admin"}, GroupIDs: []string{"g1"}}
	row := &entities.Row{
		ID:              "r1",
		CreatedByUserID: strp("u9"),
		Grants:          []*entities.RowPermission{{UserID: strp("u2"), Level: entities.AccessView}},
	}

	d, err := r.Resolve(context.Background(), row, principal)
	require.NoError(t, err)
	level := d.Level

	additions := []*entities.RowPermission{
		{TenantID: strp("t1"), Level: entities.AccessComment},
		{RoleID: strp("admin"), Level: entities.AccessEdit},
		{GroupID: strp("g1"), Level: entities.AccessDelete},
	}
	for _, grant := range additions {
		row.Grants = append(row.Grants, grant)
		d, err = r.Resolve(context.Background(), row, principal)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, int(d.Level), int(level),
			"adding a grant for a held scope must never lower access")
		level = d.Level
	}
	assert.Equal(t, entities.AccessDelete, level)
}

func TestResolve_SameInputsSameDecision(t *testing.T) {
	r := newTestResolver(&fakeRowRepo{}, nil)
	principal := &entities.Principal{UserID: "u2", TenantID: "t1", RoleIDs: []string{"admin"}}
	row := &entities.Row{
		ID:              "r1",
		CreatedByUserID: strp("u9"),
		TenantID:        strp("t1"),
		Grants: []*entities.RowPermission{
			{TenantID: strp("t1"), Level: entities.AccessView},
			{RoleID: strp("admin"), Level: entities.AccessComment},
		},
	}

	first, err := r.Resolve(context.Background(), row, principal)
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), row, principal)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolve_Anonymous(t *testing.T) {
	r := newTestResolver(&fakeRowRepo{}, nil)
	anon := &entities.Principal{}

	// A tenantless row with a creator is view-only for anonymous callers.
	row := &entities.Row{ID: "r1", CreatedByUserID: strp("u1"), Grants: []*entities.RowPermission{}}
	d, err := r.Resolve(context.Background(), row, anon)
	require.NoError(t, err)
	assert.True(t, d.CanRead)
	assert.False(t, d.CanUpdate)
	assert.False(t, d.IsOwner)

	// A creatorless row belongs to the unauthenticated principal.
	row = &entities.Row{ID: "r2", Grants: []*entities.RowPermission{}}
	d, err = r.Resolve(context.Background(), row, anon)
	require.NoError(t, err)
	assert.True(t, d.IsOwner)
	assert.True(t, d.CanDelete)
}

func TestResolve_CascadeGrantsListedNamesOnly(t *testing.T) {
	tenants := &fakeTenantRepo{
		userTenants: []string{"t1"},
		links:       []*entities.TenantRelationship{{ID: "l1", FromTenantID: "t1", ToTenantID: "t2", TypeRelationshipID: "tr1"}},
		decls: map[string]*entities.TenantTypeRelationship{
			"tr1": {ID: "tr1", Linkable: true, Permissions: []string{"view", "comment"}},
		},
	}
	r := newTestResolver(&fakeRowRepo{}, tenants)
	row := &entities.Row{ID: "r1", TenantID: strp("t2"), CreatedByUserID: strp("u9"), Grants: []*entities.RowPermission{}}

	d, err := r.Resolve(context.Background(), row, &entities.Principal{UserID: "u1", TenantID: "t1"})
	require.NoError(t, err)
	assert.True(t, d.CanRead)
	assert.True(t, d.CanComment)
	assert.False(t, d.CanUpdate, "edit is not listed on the link")
	assert.False(t, d.CanDelete)
}

func TestResolve_CascadeSkipsUnlinkableDeclaration(t *testing.T) {
	tenants := &fakeTenantRepo{
		userTenants: []string{"t1"},
		links:       []*entities.TenantRelationship{{ID: "l1", FromTenantID: "t1", ToTenantID: "t2", TypeRelationshipID: "tr1"}},
		decls: map[string]*entities.TenantTypeRelationship{
			"tr1": {ID: "tr1", Linkable: false, Permissions: []string{"view", "edit"}},
		},
	}
	r := newTestResolver(&fakeRowRepo{}, tenants)
	row := &entities.Row{ID: "r1", TenantID: strp("t2"), CreatedByUserID: strp("u9"), Grants: []*entities.RowPermission{}}

	d, err := r.Resolve(context.Background(), row, &entities.Principal{UserID: "u1", TenantID: "t1"})
	require.NoError(t, err)
	assert.False(t, d.CanRead)
}

func TestResolve_LoadsGrantsWhenNotPreloaded(t *testing.T) {
	repo := &fakeRowRepo{grants: []*entities.RowPermission{
		{ID: "g1", RowID: "r1", UserID: strp("u2"), Level: entities.AccessView},
	}}
	r := newTestResolver(repo, nil)
	row := &entities.Row{ID: "r1", CreatedByUserID: strp("u1")}

	d, err := r.Resolve(context.Background(), row, &entities.Principal{UserID: "u2"})
	require.NoError(t, err)
	assert.True(t, d.CanRead)
	assert.Equal(t, 1, repo.listGrantsCalls)
}

type fakeTokens struct{ token string }

func (f *fakeTokens) CurrentToken(ctx context.Context) (string, error) { return f.token, nil }

func TestResolve_CachedUntilTokenChanges(t *testing.T) {
	repo := &fakeRowRepo{grants: []*entities.RowPermission{
		{ID: "g1", RowID: "r1", UserID: strp("u2"), Level: entities.AccessView},
	}}
	tokens := &fakeTokens{token: "epoch-1"}
	c := memorycache.New(&memorycache.Config{MaxEntries: 16, DefaultTTL: time.Minute})
	r := NewResolverWithCache(repo, NewCascade(&fakeTenantRepo{}), c, tokens, time.Minute)

	row := &entities.Row{ID: "r1", CreatedByUserID: strp("u1")}
	principal := &entities.Principal{UserID: "u2"}

	d, err := r.Resolve(context.Background(), row, principal)
	require.NoError(t, err)
	assert.True(t, d.CanRead)
	require.Equal(t, 1, repo.listGrantsCalls)

	// A revoked grant stays invisible while the token is unchanged.
	repo.grants = nil
	d, err = r.Resolve(context.Background(), row, principal)
	require.NoError(t, err)
	assert.True(t, d.CanRead)
	assert.Equal(t, 1, repo.listGrantsCalls, "second resolve must come from cache")

	tokens.token = "epoch-2"
	d, err = r.Resolve(context.Background(), row, principal)
	require.NoError(t, err)
	assert.False(t, d.CanRead)
	assert.Equal(t, 2, repo.listGrantsCalls)
}

func renderPredicate(t *testing.T, n query.Node) (string, []interface{}) {
	t.Helper()
	counter := 1
	var args []interface{}
	sql, err := query.ToSQL(n, &counter, &args)
	require.NoError(t, err)
	return sql, args
}

func TestScopingPredicate_Anonymous(t *testing.T) {
	r := newTestResolver(&fakeRowRepo{}, nil)

	pred, err := r.ScopingPredicate(context.Background(), "", &entities.Principal{})
	require.NoError(t, err)
	sql, args := renderPredicate(t, pred)
	assert.Equal(t, "rows.created_by_user_id IS NULL OR rows.tenant_id IS NULL", sql)
	assert.Empty(t, args)
}

func TestScopingPredicate_Authenticated(t *testing.T) {
	r := newTestResolver(&fakeRowRepo{}, nil)
	principal := &entities.Principal{UserID: "u1", TenantID: "t1", RoleIDs: []string{"admin"}}

	pred, err := r.ScopingPredicate(context.Background(), "", principal)
	require.NoError(t, err)
	sql, args := renderPredicate(t, pred)

	want := "rows.created_by_user_id = $1" +
		" OR EXISTS (SELECT 1 FROM row_permissions rp WHERE rp.row_id = rows.id AND rp.tenant_id = $2 AND rp.level >= $3)" +
		" OR EXISTS (SELECT 1 FROM row_permissions rp WHERE rp.row_id = rows.id AND rp.user_id = $4 AND rp.level >= $5)" +
		" OR EXISTS (SELECT 1 FROM row_permissions rp WHERE rp.row_id = rows.id AND rp.role_id = $6 AND rp.level >= $7)"
	assert.Equal(t, want, sql)
	assert.Equal(t, []interface{}{"u1", "t1", 1, "u1", 1, "admin", 1}, args)
}

func TestScopingPredicate_CascadeAddsTenantClause(t *testing.T) {
	tenants := &fakeTenantRepo{
		userTenants: []string{"t1"},
		links:       []*entities.TenantRelationship{{ID: "l1", FromTenantID: "t1", ToTenantID: "t2", TypeRelationshipID: "tr1"}},
		decls: map[string]*entities.TenantTypeRelationship{
			"tr1": {ID: "tr1", Linkable: true, Permissions: []string{"view"}},
		},
	}
	r := newTestResolver(&fakeRowRepo{}, tenants)

	pred, err := r.ScopingPredicate(context.Background(), "t2", &entities.Principal{UserID: "u1"})
	require.NoError(t, err)
	sql, _ := renderPredicate(t, pred)
	assert.Contains(t, sql, "rows.tenant_id = $")
}

func TestRequire(t *testing.T) {
	d := Decision{CanRead: true, CanComment: true}

	assert.NoError(t, Require(d, entities.AccessView))
	assert.NoError(t, Require(d, entities.AccessComment))
	assert.ErrorIs(t, Require(d, entities.AccessEdit), entities.ErrPermissionDenied)
	assert.ErrorIs(t, Require(d, entities.AccessDelete), entities.ErrPermissionDenied)
	assert.NoError(t, Require(Decision{}, entities.AccessNone))
}
