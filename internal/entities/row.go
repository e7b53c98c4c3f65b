package entities

import "time"

// Row is one data record of an Entity. TenantID nil means global data.
type Row struct {
	ID              string
	EntityID        string
	TenantID        *string
	CreatedByUserID *string
	CreatedByAPIKey bool
	WorkflowStateID *string
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Values []*RowValue
	Tags   []*RowTag

	// Grants are the ACL entries loaded for this row. A nil slice means
	// grants have not been loaded; an empty slice means there are none.
	Grants []*RowPermission
}

// RowTag is a free-form tag attached to a row.
type RowTag struct {
	ID    string
	RowID string
	Value string
}

// GetValue returns the row's value cell for the given property ID, or nil.
func (r *Row) GetValue(propertyID string) *RowValue {
	for _, v := range r.Values {
		if v.PropertyID == propertyID {
			return v
		}
	}
	return nil
}

// HasTag reports whether the row carries the given tag value.
func (r *Row) HasTag(value string) bool {
	for _, t := range r.Tags {
		if t.Value == value {
			return true
		}
	}
	return false
}

// ChangeEntry is one change-log record for a row value write.
type ChangeEntry struct {
	ID         string
	RowID      string
	PropertyID string
	UserID     *string
	OldValue   string
	NewValue   string
	CreatedAt  time.Time
}
