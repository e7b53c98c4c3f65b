package entities

import (
	"fmt"
	"time"
)

// RowValue is the EAV cell: the stored value of one property on one row.
// (RowID, PropertyID) is unique, and exactly one payload group must be
// populated, consistent with the property's declared type.
type RowValue struct {
	ID         string
	RowID      string
	PropertyID string

	Text   *string
	Number *float64
	Date   *time.Time
	Bool   *bool
	Media  []*RowMedia
	Multi  []*MultiEntry
	Range  *ValueRange

	UpdatedAt time.Time
}

// RowMedia is one attached media item, ordered within its value.
type RowMedia struct {
	ID       string
	URL      string
	Name     string
	MimeType string
	Order    int
}

// MultiEntry is one element of a MULTI_SELECT or MULTI_TEXT value,
// carrying its own order.
type MultiEntry struct {
	ID    string
	Order int
	Value string
}

// ValueRange holds the two optional bounds of a RANGE_NUMBER or
// RANGE_DATE value.
type ValueRange struct {
	FromNumber *float64
	ToNumber   *float64
	FromDate   *time.Time
	ToDate     *time.Time
}

// payloadCount returns how many payload groups are populated.
func (v *RowValue) payloadCount() int {
	n := 0
	if v.Text != nil {
		n++
	}
	if v.Number != nil {
		n++
	}
	if v.Date != nil {
		n++
	}
	if v.Bool != nil {
		n++
	}
	if len(v.Media) > 0 {
		n++
	}
	if len(v.Multi) > 0 {
		n++
	}
	if v.Range != nil {
		n++
	}
	return n
}

// Empty reports whether no payload group is populated.
func (v *RowValue) Empty() bool {
	return v.payloadCount() == 0
}

// MatchesType checks that the populated payload is consistent with the
// property's declared type. An empty value matches any type. A mismatching
// or multi-populated value returns ErrInvalidValue.
func (v *RowValue) MatchesType(t PropertyType) error {
	if v.Empty() {
		return nil
	}
	if v.payloadCount() > 1 {
		return fmt.Errorf("%w: multiple payloads populated for property type %s", ErrInvalidValue, t)
	}

	ok := false
	switch t {
	case PropertyText, PropertySelect:
		ok = v.Text != nil
	case PropertyNumber:
		// Numbers may arrive as generic scalar text; the value model
		// coerces and validates on read.
		ok = v.Number != nil || v.Text != nil
	case PropertyDate:
		ok = v.Date != nil
	case PropertyBoolean:
		ok = v.Bool != nil || v.Text != nil
	case PropertyMedia:
		ok = len(v.Media) > 0
	case PropertyMultiSelect, PropertyMultiText:
		ok = len(v.Multi) > 0
	case PropertyRangeNumber:
		ok = v.Range != nil && v.Range.FromDate == nil && v.Range.ToDate == nil
	case PropertyRangeDate:
		ok = v.Range != nil && v.Range.FromNumber == nil && v.Range.ToNumber == nil
	case PropertyFormula:
		// Formula properties never carry stored values.
		return fmt.Errorf("%w: formula property cannot store values", ErrInvalidValue)
	default:
		return fmt.Errorf("%w: unknown property type %s", ErrInvalidValue, t)
	}

	if !ok {
		return fmt.Errorf("%w: payload does not match property type %s", ErrInvalidValue, t)
	}
	return nil
}

// Validate checks structural invariants independent of the property type.
func (v *RowValue) Validate() error {
	if v.RowID == "" {
		return fmt.Errorf("row value: row ID is required")
	}
	if v.PropertyID == "" {
		return fmt.Errorf("row value: property ID is required")
	}
	if v.payloadCount() > 1 {
		return fmt.Errorf("%w: more than one payload populated", ErrInvalidValue)
	}
	return nil
}
