package entities

import "fmt"

// AccessLevel is the totally ordered access ladder for row grants:
// none < view < comment < edit < delete.
type AccessLevel int

const (
	AccessNone AccessLevel = iota
	AccessView
	AccessComment
	AccessEdit
	AccessDelete
)

var accessNames = map[AccessLevel]string{
	AccessNone:    "none",
	AccessView:    "view",
	AccessComment: "comment",
	AccessEdit:    "edit",
	AccessDelete:  "delete",
}

// String returns the level's canonical name.
func (l AccessLevel) String() string {
	if n, ok := accessNames[l]; ok {
		return n
	}
	return "unknown"
}

// ParseAccessLevel maps a level name to its AccessLevel.
func ParseAccessLevel(name string) (AccessLevel, error) {
	for l, n := range accessNames {
		if n == name {
			return l, nil
		}
	}
	return AccessNone, fmt.Errorf("%w: unknown access level %q", ErrInvalidValue, name)
}

// MaxAccess returns the higher of two levels. Candidate grants reduce by
// maximum, never by summing.
func MaxAccess(a, b AccessLevel) AccessLevel {
	if b > a {
		return b
	}
	return a
}

// RowPermission is one ACL grant on a row. Exactly one scope field must be
// set: tenant, user, role or group.
type RowPermission struct {
	ID       string
	RowID    string
	TenantID *string
	UserID   *string
	RoleID   *string
	GroupID  *string
	Level    AccessLevel
}

// ScopeKey returns a stable key identifying the grant's scope, used to
// enforce at most one grant per (row, scope) pair.
func (g *RowPermission) ScopeKey() string {
	switch {
	case g.TenantID != nil:
		return "tenant:" + *g.TenantID
	case g.UserID != nil:
		return "user:" + *g.UserID
	case g.RoleID != nil:
		return "role:" + *g.RoleID
	case g.GroupID != nil:
		return "group:" + *g.GroupID
	}
	return ""
}

// Validate checks that exactly one scope is set and the level is known.
func (g *RowPermission) Validate() error {
	n := 0
	for _, set := range []bool{g.TenantID != nil, g.UserID != nil, g.RoleID != nil, g.GroupID != nil} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("row permission must have exactly one scope, got %d", n)
	}
	if _, ok := accessNames[g.Level]; !ok {
		return fmt.Errorf("%w: unknown access level %d", ErrInvalidValue, g.Level)
	}
	return nil
}
