package entities

// MatchMode routes a filter condition into the AND group or the OR group.
type MatchMode string

const (
	MatchAnd MatchMode = "and"
	MatchOr  MatchMode = "or"
)

// FilterOperator names a per-property comparison in a filter descriptor.
type FilterOperator string

const (
	OpEquals      FilterOperator = "equals"
	OpNotEquals   FilterOperator = "notEquals"
	OpContains    FilterOperator = "contains"
	OpStartsWith  FilterOperator = "startsWith"
	OpEndsWith    FilterOperator = "endsWith"
	OpIn          FilterOperator = "in"
	OpNotIn       FilterOperator = "notIn"
	OpGreater     FilterOperator = "gt"
	OpGreaterOrEq FilterOperator = "gte"
	OpLess        FilterOperator = "lt"
	OpLessOrEq    FilterOperator = "lte"
)

// FilterCondition is one explicit per-property condition.
type FilterCondition struct {
	Property string
	Operator FilterOperator
	Value    string
	Values   []string  // for in / notIn
	Match    MatchMode // default "and"
}

// Filter is the declarative filter/view descriptor: explicit per-property
// conditions, an optional free-text query applied across searchable
// properties, and optional tag and workflow-state pseudo-filters.
type Filter struct {
	Conditions      []*FilterCondition
	Query           string
	Tags            []string
	WorkflowStateID *string
}

// Empty reports whether the filter constrains nothing.
func (f *Filter) Empty() bool {
	if f == nil {
		return true
	}
	return len(f.Conditions) == 0 && f.Query == "" && len(f.Tags) == 0 && f.WorkflowStateID == nil
}
