package entities

import "fmt"

// EntityRelationship declares that rows of the parent entity may be linked
// to rows of the child entity. At most one relationship exists per ordered
// (parent, child) pair with the same role.
type EntityRelationship struct {
	ID             string
	ParentEntityID string
	ChildEntityID  string
	Role           string // semantic role, distinguishes multiple links between the same pair

	// Single limits the consumer side to one attached row; attaching to an
	// occupied slot replaces the existing edge.
	Single bool

	ReadOnly      bool
	HiddenIfEmpty bool

	// PickerViewID names the view shown when picking related rows.
	PickerViewID string
	Order        int
}

// Validate checks the relationship declaration.
func (r *EntityRelationship) Validate() error {
	if r.ParentEntityID == "" {
		return fmt.Errorf("relationship parent entity is required")
	}
	if r.ChildEntityID == "" {
		return fmt.Errorf("relationship child entity is required")
	}
	return nil
}

// RelationshipRow is a join record linking a parent row to a child row
// through a declared EntityRelationship.
type RelationshipRow struct {
	ID             string
	RelationshipID string
	ParentRowID    string
	ChildRowID     string
	Order          int
}
