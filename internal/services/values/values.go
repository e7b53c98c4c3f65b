// Package values is the typed accessor layer over a row's heterogeneous
// value list: reads coerce stored payloads into strongly typed results,
// writes upsert one cell per property atomically.
package values

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tesserahq/tessera/internal/entities"
	"github.com/tesserahq/tessera/internal/events"
	"github.com/tesserahq/tessera/internal/repositories"
)

// Kind tags a TypedValue.
type Kind int

const (
	KindUnset Kind = iota
	KindText
	KindNumber
	KindDate
	KindBool
	KindMedia
	KindMulti
	KindRange
)

// TypedValue is the strongly typed result of reading one property on one
// row. Exactly the field selected by Kind is meaningful.
type TypedValue struct {
	Kind   Kind
	Text   string
	Number float64
	Date   time.Time
	Bool   bool
	Media  []*entities.RowMedia
	Multi  []string
	Range  *entities.ValueRange
}

// Unset is the value returned for an absent cell.
var Unset = TypedValue{Kind: KindUnset}

// PropertyWrite names one property and the typed value to store on it.
type PropertyWrite struct {
	Property string
	Value    TypedValue
}

// Service reads and writes typed row values.
type Service struct {
	rows       repositories.RowRepository
	dispatcher *events.Dispatcher
}

// NewService creates a value model service. dispatcher may be nil when no
// change notifications are wanted.
func NewService(rows repositories.RowRepository, dispatcher *events.Dispatcher) *Service {
	return &Service{rows: rows, dispatcher: dispatcher}
}

// Get returns the strongly typed value of the named property on the row,
// or Unset when no cell is stored. Malformed scalar payloads return
// entities.ErrInvalidValue, never a panic.
func (s *Service) Get(entity *entities.Entity, row *entities.Row, propertyName string) (TypedValue, error) {
	prop := entity.GetProperty(propertyName)
	if prop == nil {
		return Unset, fmt.Errorf("property %s on entity %s: %w", propertyName, entity.Name, entities.ErrNotFound)
	}

	cell := row.GetValue(prop.ID)
	if cell == nil || cell.Empty() {
		return Unset, nil
	}
	if err := cell.MatchesType(prop.Type); err != nil {
		return Unset, err
	}

	switch prop.Type {
	case entities.PropertyText, entities.PropertySelect:
		return TypedValue{Kind: KindText, Text: *cell.Text}, nil

	case entities.PropertyNumber:
		if cell.Number != nil {
			return TypedValue{Kind: KindNumber, Number: *cell.Number}, nil
		}
		// Legacy scalar stored as text: coerce with validation.
		n, err := strconv.ParseFloat(strings.TrimSpace(*cell.Text), 64)
		if err != nil {
			return Unset, fmt.Errorf("%w: %q is not a number", entities.ErrInvalidValue, *cell.Text)
		}
		return TypedValue{Kind: KindNumber, Number: n}, nil

	case entities.PropertyDate:
		return TypedValue{Kind: KindDate, Date: *cell.Date}, nil

	case entities.PropertyBoolean:
		if cell.Bool != nil {
			return TypedValue{Kind: KindBool, Bool: *cell.Bool}, nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(*cell.Text))
		if err != nil {
			return Unset, fmt.Errorf("%w: %q is not a boolean", entities.ErrInvalidValue, *cell.Text)
		}
		return TypedValue{Kind: KindBool, Bool: b}, nil

	case entities.PropertyMedia:
		media := append([]*entities.RowMedia(nil), cell.Media...)
		sort.SliceStable(media, func(i, j int) bool { return media[i].Order < media[j].Order })
		return TypedValue{Kind: KindMedia, Media: media}, nil

	case entities.PropertyMultiSelect, entities.PropertyMultiText:
		entries := append([]*entities.MultiEntry(nil), cell.Multi...)
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Order < entries[j].Order })
		out := make([]string, 0, len(entries))
		for _, e := range entries {
			out = append(out, e.Value)
		}
		return TypedValue{Kind: KindMulti, Multi: out}, nil

	case entities.PropertyRangeNumber, entities.PropertyRangeDate:
		return TypedValue{Kind: KindRange, Range: cell.Range}, nil

	case entities.PropertyFormula:
		// Formula evaluation happens downstream; no stored payload exists.
		return Unset, nil

	default:
		return Unset, fmt.Errorf("%w: unknown property type %s", entities.ErrInvalidValue, prop.Type)
	}
}

// Update upserts exactly one value cell per named property on the row, in a
// single transaction, appends change-log entries and emits a RowUpdated
// event. The returned row reflects the writes.
func (s *Service) Update(ctx context.Context, entity *entities.Entity, row *entities.Row, writes []PropertyWrite, principal *entities.Principal) (*entities.Row, error) {
	cells := make([]*entities.RowValue, 0, len(writes))
	for _, w := range writes {
		prop := entity.GetProperty(w.Property)
		if prop == nil {
			return nil, fmt.Errorf("property %s on entity %s: %w", w.Property, entity.Name, entities.ErrNotFound)
		}
		if prop.Type == entities.PropertyFormula {
			return nil, fmt.Errorf("%w: property %s is a formula and cannot be written", entities.ErrInvalidValue, prop.Name)
		}
		if prop.ReadOnly {
			return nil, fmt.Errorf("%w: property %s is read-only", entities.ErrInvalidValue, prop.Name)
		}

		cell, err := buildCell(prop, w.Value)
		if err != nil {
			return nil, err
		}
		cell.RowID = row.ID
		if existing := row.GetValue(prop.ID); existing != nil {
			cell.ID = existing.ID
		}
		cells = append(cells, cell)
	}

	if err := s.rows.UpsertRowValues(ctx, row.ID, cells); err != nil {
		return nil, fmt.Errorf("failed to write row values: %w", err)
	}

	var userID *string
	if principal.Authenticated() {
		id := principal.UserID
		userID = &id
	}
	for i, cell := range cells {
		entry := &entities.ChangeEntry{
			RowID:      row.ID,
			PropertyID: cell.PropertyID,
			UserID:     userID,
			OldValue:   renderCell(row.GetValue(cell.PropertyID)),
			NewValue:   renderCell(cell),
		}
		if err := s.rows.AppendChangeLog(ctx, entry); err != nil {
			return nil, fmt.Errorf("failed to append change log for %s: %w", writes[i].Property, err)
		}
	}

	for _, cell := range cells {
		replaceCell(row, cell)
	}
	row.UpdatedAt = time.Now()

	if s.dispatcher != nil {
		evt := events.Event{Kind: events.RowUpdated, EntityID: row.EntityID, RowID: row.ID}
		if row.TenantID != nil {
			evt.TenantID = *row.TenantID
		}
		s.dispatcher.Publish(evt)
	}
	return row, nil
}

// buildCell converts a typed value into a storage cell and checks it
// against the property's declared type.
func buildCell(prop *entities.Property, v TypedValue) (*entities.RowValue, error) {
	cell := &entities.RowValue{PropertyID: prop.ID}
	switch v.Kind {
	case KindUnset:
		// An unset write clears the cell.
	case KindText:
		if prop.Type == entities.PropertySelect && prop.GetOption(v.Text) == nil {
			return nil, fmt.Errorf("%w: %q is not an option of property %s", entities.ErrInvalidValue, v.Text, prop.Name)
		}
		cell.Text = &v.Text
	case KindNumber:
		n := v.Number
		cell.Number = &n
	case KindDate:
		d := v.Date
		cell.Date = &d
	case KindBool:
		b := v.Bool
		cell.Bool = &b
	case KindMedia:
		cell.Media = v.Media
	case KindMulti:
		for i, val := range v.Multi {
			if prop.Type == entities.PropertyMultiSelect && prop.GetOption(val) == nil {
				return nil, fmt.Errorf("%w: %q is not an option of property %s", entities.ErrInvalidValue, val, prop.Name)
			}
			cell.Multi = append(cell.Multi, &entities.MultiEntry{Order: i, Value: val})
		}
	case KindRange:
		cell.Range = v.Range
	default:
		return nil, fmt.Errorf("%w: unknown value kind %d", entities.ErrInvalidValue, v.Kind)
	}

	if err := cell.MatchesType(prop.Type); err != nil {
		return nil, fmt.Errorf("property %s: %w", prop.Name, err)
	}
	return cell, nil
}

func replaceCell(row *entities.Row, cell *entities.RowValue) {
	for i, existing := range row.Values {
		if existing.PropertyID == cell.PropertyID {
			row.Values[i] = cell
			return
		}
	}
	row.Values = append(row.Values, cell)
}

// renderCell produces the change-log representation of a cell.
func renderCell(v *entities.RowValue) string {
	if v == nil || v.Empty() {
		return ""
	}
	switch {
	case v.Text != nil:
		return *v.Text
	case v.Number != nil:
		return strconv.FormatFloat(*v.Number, 'f', -1, 64)
	case v.Date != nil:
		return v.Date.Format(time.RFC3339)
	case v.Bool != nil:
		return strconv.FormatBool(*v.Bool)
	case len(v.Multi) > 0:
		parts := make([]string, 0, len(v.Multi))
		for _, e := range v.Multi {
			parts = append(parts, e.Value)
		}
		return strings.Join(parts, ",")
	case len(v.Media) > 0:
		return fmt.Sprintf("%d media items", len(v.Media))
	case v.Range != nil:
		return "range"
	}
	return ""
}
