// Package filtering compiles declarative filter descriptors into predicate
// trees the row store can execute. The result has two independent layers
// ANDed together: a free-text query layer OR'd across searchable
// properties, and an explicit per-property condition layer.
package filtering

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tesserahq/tessera/internal/entities"
	"github.com/tesserahq/tessera/internal/query"
)

// Compiler turns filter descriptors into predicate trees.
type Compiler struct{}

// NewCompiler creates a filter compiler.
func NewCompiler() *Compiler {
	return &Compiler{}
}

// eavColumn maps a property type to the row_values column its scalar
// payload lives in.
func eavColumn(t entities.PropertyType) string {
	switch t {
	case entities.PropertyNumber:
		return "rv.value_number"
	case entities.PropertyDate:
		return "rv.value_date"
	case entities.PropertyBoolean:
		return "rv.value_bool"
	default:
		return "rv.value_text"
	}
}

// operatorsByType lists the explicit condition operators each property type
// supports. String-like properties take the full set; boolean and select
// properties restrict to equality-shaped operators.
var operatorsByType = map[entities.PropertyType][]entities.FilterOperator{
	entities.PropertyText: {
		entities.OpEquals, entities.OpNotEquals, entities.OpContains,
		entities.OpStartsWith, entities.OpEndsWith, entities.OpIn, entities.OpNotIn,
		entities.OpGreater, entities.OpGreaterOrEq, entities.OpLess, entities.OpLessOrEq,
	},
	entities.PropertyNumber: {
		entities.OpEquals, entities.OpNotEquals,
		entities.OpGreater, entities.OpGreaterOrEq, entities.OpLess, entities.OpLessOrEq,
		entities.OpIn, entities.OpNotIn,
	},
	entities.PropertyDate: {
		entities.OpEquals, entities.OpNotEquals,
		entities.OpGreater, entities.OpGreaterOrEq, entities.OpLess, entities.OpLessOrEq,
	},
	entities.PropertyBoolean:     {entities.OpEquals, entities.OpNotIn},
	entities.PropertySelect:      {entities.OpEquals, entities.OpNotIn},
	entities.PropertyMultiSelect: {entities.OpEquals, entities.OpIn, entities.OpNotIn},
	entities.PropertyMultiText:   {entities.OpEquals, entities.OpContains},
}

func operatorSupported(t entities.PropertyType, op entities.FilterOperator) bool {
	for _, allowed := range operatorsByType[t] {
		if allowed == op {
			return true
		}
	}
	return false
}

// Compile merges the filter's layers into one predicate tree for the
// entity. Condition errors are reported per offending clause so a caller
// can correct one filter without resubmitting the whole query unresolved.
func (c *Compiler) Compile(entity *entities.Entity, filter *entities.Filter) (query.Node, error) {
	if filter.Empty() {
		return nil, nil
	}

	root := query.And()

	if filter.Query != "" {
		if node := c.queryLayer(entity, filter.Query); node != nil {
			root.Add(node)
		}
	}

	if node, err := c.filterLayer(entity, filter.Conditions); err != nil {
		return nil, err
	} else if node != nil {
		root.Add(node)
	}

	// Tags and workflow state are pseudo-filters layered in as additional
	// AND clauses outside the per-property loop.
	if len(filter.Tags) > 0 {
		values := make([]interface{}, 0, len(filter.Tags))
		for _, t := range filter.Tags {
			values = append(values, t)
		}
		root.Add(&query.Exists{
			Table: "row_tags rt",
			Corr:  "rt.row_id",
			Nodes: []query.Node{query.In("rt.value", values...)},
		})
	}
	if filter.WorkflowStateID != nil {
		if entity.GetWorkflowState(*filter.WorkflowStateID) == nil {
			return nil, fmt.Errorf("workflow state %s: %w", *filter.WorkflowStateID, entities.ErrInvalidFilter)
		}
		root.Add(query.Eq("rows.workflow_state_id", *filter.WorkflowStateID))
	}

	if root.Empty() {
		return nil, nil
	}
	return root, nil
}

// queryLayer builds the free-text clause: an OR across every searchable
// property. Non-searchable types are silently excluded.
func (c *Compiler) queryLayer(entity *entities.Entity, text string) query.Node {
	or := query.Or()
	for _, prop := range entity.Properties {
		if !prop.Searchable() {
			continue
		}
		switch prop.Type {
		case entities.PropertyText, entities.PropertySelect:
			or.Add(c.valueClause(prop, &query.Cond{
				Column: eavColumn(prop.Type), Op: query.OpILike, Value: "%" + text + "%",
			}))
		case entities.PropertyNumber:
			if n, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err == nil {
				or.Add(c.valueClause(prop, query.Eq(eavColumn(prop.Type), n)))
			}
		case entities.PropertyBoolean:
			if b, err := strconv.ParseBool(strings.TrimSpace(text)); err == nil {
				or.Add(c.valueClause(prop, query.Eq(eavColumn(prop.Type), b)))
			}
		}
	}
	if or.Empty() {
		return nil
	}
	return or
}

// filterLayer builds the explicit condition clause: each condition routes
// into the AND group or the OR group based on its match flag (default AND),
// and the two groups combine as AND(andGroup, orGroup).
func (c *Compiler) filterLayer(entity *entities.Entity, conditions []*entities.FilterCondition) (query.Node, error) {
	if len(conditions) == 0 {
		return nil, nil
	}
	andGroup := query.And()
	orGroup := query.Or()

	for _, cond := range conditions {
		node, err := c.compileCondition(entity, cond)
		if err != nil {
			return nil, err
		}
		if cond.Match == entities.MatchOr {
			orGroup.Add(node)
		} else {
			andGroup.Add(node)
		}
	}

	combined := query.And()
	if !andGroup.Empty() {
		combined.Add(andGroup)
	}
	if !orGroup.Empty() {
		combined.Add(orGroup)
	}
	if combined.Empty() {
		return nil, nil
	}
	return combined, nil
}

// compileCondition resolves one explicit condition to a type-appropriate
// clause. EAV-backed properties translate into a "some stored value for
// this property satisfies the operator" clause; non-dynamic properties
// translate into a direct column clause.
func (c *Compiler) compileCondition(entity *entities.Entity, cond *entities.FilterCondition) (query.Node, error) {
	prop := entity.GetProperty(cond.Property)
	if prop == nil {
		return nil, fmt.Errorf("condition on unknown property %q: %w", cond.Property, entities.ErrInvalidFilter)
	}
	if prop.Type == entities.PropertyFormula || prop.Type == entities.PropertyMedia ||
		prop.Type == entities.PropertyRangeNumber || prop.Type == entities.PropertyRangeDate {
		return nil, fmt.Errorf("property %q of type %s is not filterable: %w", cond.Property, prop.Type, entities.ErrInvalidFilter)
	}
	if !operatorSupported(prop.Type, cond.Operator) {
		return nil, fmt.Errorf("operator %q not supported for property %q of type %s: %w",
			cond.Operator, cond.Property, prop.Type, entities.ErrInvalidFilter)
	}

	inner, err := c.operatorCond(prop, cond)
	if err != nil {
		return nil, err
	}
	return c.valueClause(prop, inner), nil
}

// valueClause wraps a column condition in the storage shape of the
// property: an EXISTS over the EAV table for dynamic properties, a direct
// column condition otherwise. Multi-value properties join the entries
// table so each stored entry is matched individually.
func (c *Compiler) valueClause(prop *entities.Property, inner *query.Cond) query.Node {
	if !prop.Dynamic && prop.Column != "" {
		direct := *inner
		direct.Column = "rows." + prop.Column
		return &direct
	}
	table := "row_values rv"
	if prop.Type == entities.PropertyMultiSelect || prop.Type == entities.PropertyMultiText {
		table = "row_values rv JOIN row_value_entries e ON e.row_value_id = rv.id"
	}
	return &query.Exists{
		Table: table,
		Corr:  "rv.row_id",
		Nodes: []query.Node{query.Eq("rv.property_id", prop.ID), inner},
	}
}

func (c *Compiler) operatorCond(prop *entities.Property, cond *entities.FilterCondition) (*query.Cond, error) {
	column := eavColumn(prop.Type)
	typed := func(raw string) (interface{}, error) {
		switch prop.Type {
		case entities.PropertyNumber:
			n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return nil, fmt.Errorf("value %q is not a number for property %q: %w", raw, prop.Name, entities.ErrInvalidFilter)
			}
			return n, nil
		case entities.PropertyBoolean:
			b, err := strconv.ParseBool(strings.TrimSpace(raw))
			if err != nil {
				return nil, fmt.Errorf("value %q is not a boolean for property %q: %w", raw, prop.Name, entities.ErrInvalidFilter)
			}
			return b, nil
		default:
			return raw, nil
		}
	}

	// Multi-value payloads live in the entries table joined by valueClause.
	if prop.Type == entities.PropertyMultiSelect || prop.Type == entities.PropertyMultiText {
		column = "e.value"
	}

	switch cond.Operator {
	case entities.OpEquals:
		v, err := typed(cond.Value)
		if err != nil {
			return nil, err
		}
		return &query.Cond{Column: column, Op: query.OpEqual, Value: v}, nil
	case entities.OpNotEquals:
		v, err := typed(cond.Value)
		if err != nil {
			return nil, err
		}
		return &query.Cond{Column: column, Op: query.OpNotEqual, Value: v}, nil
	case entities.OpContains:
		return &query.Cond{Column: column, Op: query.OpILike, Value: "%" + cond.Value + "%"}, nil
	case entities.OpStartsWith:
		return &query.Cond{Column: column, Op: query.OpILike, Value: cond.Value + "%"}, nil
	case entities.OpEndsWith:
		return &query.Cond{Column: column, Op: query.OpILike, Value: "%" + cond.Value}, nil
	case entities.OpIn, entities.OpNotIn:
		op := query.OpIn
		if cond.Operator == entities.OpNotIn {
			op = query.OpNotIn
		}
		values := make([]interface{}, 0, len(cond.Values))
		for _, raw := range cond.Values {
			v, err := typed(raw)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return &query.Cond{Column: column, Op: op, Values: values}, nil
	case entities.OpGreater, entities.OpGreaterOrEq, entities.OpLess, entities.OpLessOrEq:
		ops := map[entities.FilterOperator]query.Op{
			entities.OpGreater:     query.OpGreaterThan,
			entities.OpGreaterOrEq: query.OpGreaterThanOrEqual,
			entities.OpLess:        query.OpLessThan,
			entities.OpLessOrEq:    query.OpLessThanOrEqual,
		}
		v, err := typed(cond.Value)
		if err != nil {
			return nil, err
		}
		return &query.Cond{Column: column, Op: ops[cond.Operator], Value: v}, nil
	default:
		return nil, fmt.Errorf("unknown operator %q: %w", cond.Operator, entities.ErrInvalidFilter)
	}
}
