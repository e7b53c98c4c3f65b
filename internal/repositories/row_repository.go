package repositories

import (
	"context"

	"github.com/tesserahq/tessera/internal/entities"
	"github.com/tesserahq/tessera/internal/query"
)

// Pagination bounds a bulk row query.
type Pagination struct {
	Limit  int
	Offset int
}

// EdgeOrder names the ordering applied to related-row listings. The zero
// value orders by link creation.
type EdgeOrder string

const (
	OrderByLink    EdgeOrder = ""           // link-creation order
	OrderByCreated EdgeOrder = "created_at" // row creation time
	OrderByUpdated EdgeOrder = "updated_at"
)

// RowRepository is the persistence boundary for rows, their EAV values,
// grants, tags and relationship edges. The core issues predicate trees to
// it and receives fully populated Row records back.
type RowRepository interface {
	// FindRows returns rows of the entity matching the predicate, plus the
	// total count ignoring pagination.
	FindRows(ctx context.Context, entityID string, pred query.Node, page Pagination) ([]*entities.Row, int, error)

	// GetRow returns the row with values, tags and grants populated, or
	// entities.ErrNotFound.
	GetRow(ctx context.Context, id string) (*entities.Row, error)

	// CreateRow inserts a new row with its initial values.
	CreateRow(ctx context.Context, row *entities.Row) error

	// UpsertRowValues writes the given value cells for one row in a single
	// transaction: at most one active value per property, each typed payload
	// replaced atomically per property.
	UpsertRowValues(ctx context.Context, rowID string, values []*entities.RowValue) error

	// AppendChangeLog records a change-log entry for a value write.
	AppendChangeLog(ctx context.Context, entry *entities.ChangeEntry) error

	// ListGrants returns all ACL grants on a row.
	ListGrants(ctx context.Context, rowID string) ([]*entities.RowPermission, error)

	// CreateEdge links a parent row to a child row through a declared
	// relationship, appending to the link order.
	CreateEdge(ctx context.Context, relationshipID, parentRowID, childRowID string) error

	// ReplaceEdge links parent to child, removing any existing edge in the
	// same relationship slot first. Used for single-cardinality
	// relationships.
	ReplaceEdge(ctx context.Context, relationshipID, parentRowID, childRowID string) error

	// DeleteEdge removes the edge between parent and child.
	DeleteEdge(ctx context.Context, relationshipID, parentRowID, childRowID string) error

	// ListParents returns the rows attached as parents of the child through
	// the relationship, in link-creation order unless overridden.
	ListParents(ctx context.Context, relationshipID, childRowID string, order EdgeOrder) ([]*entities.Row, error)

	// ListChildren returns the rows attached as children of the parent
	// through the relationship, in link-creation order unless overridden.
	ListChildren(ctx context.Context, relationshipID, parentRowID string, order EdgeOrder) ([]*entities.Row, error)

	// CountChildren returns how many child rows are attached through the
	// relationship.
	CountChildren(ctx context.Context, relationshipID, parentRowID string) (int, error)
}
