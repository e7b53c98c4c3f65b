// Package access computes a principal's effective access to rows: an
// imperative single-row decision and a declarative bulk scoping predicate,
// both derived from one rule table so the two paths cannot drift.
package access

import (
	"github.com/tesserahq/tessera/internal/entities"
	"github.com/tesserahq/tessera/internal/query"
)

// grantRule describes one way a principal can gain access to a row. Each
// rule contributes a level to the single-row decision and the equivalent
// row-selection clauses to the bulk predicate. Adding a grant scope means
// adding exactly one entry here; both paths pick it up.
type grantRule struct {
	name string

	// level returns the access this rule yields for one concrete row given
	// the row's grant list.
	level func(row *entities.Row, grants []*entities.RowPermission, p *entities.Principal) entities.AccessLevel

	// clauses returns the bulk row-selection clauses this rule contributes
	// for the principal. Clauses are OR'd into the scoping predicate.
	clauses func(p *entities.Principal) []query.Node
}

// minViewLevel keeps grants of level none from making rows visible.
var minViewLevel = int(entities.AccessView)

// scopedGrantClause builds the EXISTS clause selecting rows that carry a
// grant of at least view level in the given scope column.
func scopedGrantClause(column string, value interface{}) query.Node {
	return &query.Exists{
		Table: "row_permissions rp",
		Corr:  "rp.row_id",
		Nodes: []query.Node{
			query.Eq("rp."+column, value),
			&query.Cond{Column: "rp.level", Op: query.OpGreaterThanOrEqual, Value: minViewLevel},
		},
	}
}

// maxGrantLevel reduces the grants matching the predicate to the single
// highest level present. Ties resolve by maximum, never by summing.
func maxGrantLevel(grants []*entities.RowPermission, match func(*entities.RowPermission) bool) entities.AccessLevel {
	level := entities.AccessNone
	for _, g := range grants {
		if match(g) {
			level = entities.MaxAccess(level, g.Level)
		}
	}
	return level
}

// isOwner implements the owner rule: the principal created the row, or the
// row has no creator and the principal is unauthenticated/global.
func isOwner(row *entities.Row, p *entities.Principal) bool {
	if row.CreatedByUserID == nil {
		return !p.Authenticated()
	}
	return p.Authenticated() && *row.CreatedByUserID == p.UserID
}

// grantRules is the single source of truth for permission resolution.
var grantRules = []grantRule{
	{
		name: "owner",
		level: func(row *entities.Row, _ []*entities.RowPermission, p *entities.Principal) entities.AccessLevel {
			if isOwner(row, p) {
				return entities.AccessDelete
			}
			return entities.AccessNone
		},
		clauses: func(p *entities.Principal) []query.Node {
			if !p.Authenticated() {
				return []query.Node{query.IsNull("rows.created_by_user_id")}
			}
			return []query.Node{query.Eq("rows.created_by_user_id", p.UserID)}
		},
	},
	{
		// Unauthenticated listing sees rows with no tenant, view-only.
		name: "global",
		level: func(row *entities.Row, _ []*entities.RowPermission, p *entities.Principal) entities.AccessLevel {
			if !p.Authenticated() && row.TenantID == nil {
				return entities.AccessView
			}
			return entities.AccessNone
		},
		clauses: func(p *entities.Principal) []query.Node {
			if !p.Authenticated() {
				return []query.Node{query.IsNull("rows.tenant_id")}
			}
			return nil
		},
	},
	{
		name: "tenant",
		level: func(_ *entities.Row, grants []*entities.RowPermission, p *entities.Principal) entities.AccessLevel {
			if p.TenantID == "" {
				return entities.AccessNone
			}
			return maxGrantLevel(grants, func(g *entities.RowPermission) bool {
				return g.TenantID != nil && *g.TenantID == p.TenantID
			})
		},
		clauses: func(p *entities.Principal) []query.Node {
			if p.TenantID == "" {
				return nil
			}
			return []query.Node{scopedGrantClause("tenant_id", p.TenantID)}
		},
	},
	{
		name: "user",
		level: func(_ *entities.Row, grants []*entities.RowPermission, p *entities.Principal) entities.AccessLevel {
			if !p.Authenticated() {
				return entities.AccessNone
			}
			return maxGrantLevel(grants, func(g *entities.RowPermission) bool {
				return g.UserID != nil && *g.UserID == p.UserID
			})
		},
		clauses: func(p *entities.Principal) []query.Node {
			if !p.Authenticated() {
				return nil
			}
			return []query.Node{scopedGrantClause("user_id", p.UserID)}
		},
	},
	{
		name: "role",
		level: func(_ *entities.Row, grants []*entities.RowPermission, p *entities.Principal) entities.AccessLevel {
			return maxGrantLevel(grants, func(g *entities.RowPermission) bool {
				return g.RoleID != nil && p.HasRole(*g.RoleID)
			})
		},
		clauses: func(p *entities.Principal) []query.Node {
			clauses := make([]query.Node, 0, len(p.RoleIDs))
			for _, role := range p.RoleIDs {
				clauses = append(clauses, scopedGrantClause("role_id", role))
			}
			return clauses
		},
	},
	{
		name: "group",
		level: func(_ *entities.Row, grants []*entities.RowPermission, p *entities.Principal) entities.AccessLevel {
			return maxGrantLevel(grants, func(g *entities.RowPermission) bool {
				return g.GroupID != nil && p.HasGroup(*g.GroupID)
			})
		},
		clauses: func(p *entities.Principal) []query.Node {
			clauses := make([]query.Node, 0, len(p.GroupIDs))
			for _, group := range p.GroupIDs {
				clauses = append(clauses, scopedGrantClause("group_id", group))
			}
			return clauses
		},
	},
}
