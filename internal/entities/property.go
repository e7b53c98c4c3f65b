package entities

import "fmt"

// PropertyType identifies the typed payload a property's values carry.
type PropertyType string

const (
	PropertyText        PropertyType = "TEXT"
	PropertyNumber      PropertyType = "NUMBER"
	PropertyDate        PropertyType = "DATE"
	PropertyBoolean     PropertyType = "BOOLEAN"
	PropertySelect      PropertyType = "SELECT"
	PropertyMultiSelect PropertyType = "MULTI_SELECT"
	PropertyMedia       PropertyType = "MEDIA"
	PropertyMultiText   PropertyType = "MULTI_TEXT"
	PropertyRangeNumber PropertyType = "RANGE_NUMBER"
	PropertyRangeDate   PropertyType = "RANGE_DATE"
	PropertyFormula     PropertyType = "FORMULA"
)

// Option is one selectable value on a SELECT / MULTI_SELECT property.
type Option struct {
	Value string // stored value, unique within the property
	Name  string // display name
	Color string
	Order int
}

// Well-known attribute keys. Attributes is an open bag; these are the keys
// the core itself reads.
const (
	AttrDefault    = "default"
	AttrMin        = "min"
	AttrMax        = "max"
	AttrPattern    = "pattern"
	AttrGroup      = "group"
	AttrColumnSpan = "columnSpan"
	AttrEditor     = "editor"
)

// Property is a typed field definition on an Entity.
type Property struct {
	ID       string
	EntityID string
	Name     string // unique within the entity
	Title    string
	Type     PropertyType
	Subtype  string
	Required bool
	ReadOnly bool
	Hidden   bool
	Order    int

	// Options apply when Type is SELECT or MULTI_SELECT.
	Options []*Option

	// Attributes is a bag of named attributes (default, min/max, pattern,
	// grouping, column span, editor kind).
	Attributes map[string]string

	// FormulaResultType is the declared result type when Type is FORMULA.
	FormulaResultType PropertyType

	// Dynamic properties store their values as EAV cells; non-dynamic
	// properties map onto a fixed column of the row table named by Column.
	Dynamic bool
	Column  string
}

// GetOption returns the option with the given stored value, or nil.
func (p *Property) GetOption(value string) *Option {
	for _, o := range p.Options {
		if o.Value == value {
			return o
		}
	}
	return nil
}

// IsSelection reports whether the property is backed by an option list.
func (p *Property) IsSelection() bool {
	return p.Type == PropertySelect || p.Type == PropertyMultiSelect
}

// Searchable reports whether the property participates in free-text search.
// Only TEXT, SELECT, BOOLEAN and NUMBER properties are searchable.
func (p *Property) Searchable() bool {
	switch p.Type {
	case PropertyText, PropertySelect, PropertyBoolean, PropertyNumber:
		return true
	}
	return false
}

// Attribute returns the named attribute value and whether it is set.
func (p *Property) Attribute(key string) (string, bool) {
	v, ok := p.Attributes[key]
	return v, ok
}

// Validate checks the property definition invariants: options must have
// unique stored values, and FORMULA properties must declare a result type.
func (p *Property) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("property name is required")
	}
	if p.Type == "" {
		return fmt.Errorf("property %s: type is required", p.Name)
	}
	seen := make(map[string]bool, len(p.Options))
	for _, o := range p.Options {
		if o.Value == "" {
			return fmt.Errorf("property %s: option value is required", p.Name)
		}
		if seen[o.Value] {
			return fmt.Errorf("property %s: duplicate option value %q", p.Name, o.Value)
		}
		seen[o.Value] = true
	}
	if p.Type == PropertyFormula && p.FormulaResultType == "" {
		return fmt.Errorf("property %s: formula result type is required", p.Name)
	}
	return nil
}
