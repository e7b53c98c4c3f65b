// Package query models the composable AND/OR predicate trees the core hands
// to the row store, and renders them to parameterized SQL.
package query

// Op is a comparison operator on a column.
type Op int

const (
	OpEqual Op = iota
	OpNotEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpLessThan
	OpLessThanOrEqual
	OpIn
	OpNotIn
	OpILike
	OpIsNull
	OpIsNotNull
)

// String returns the SQL spelling of the operator.
func (o Op) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "!="
	case OpGreaterThan:
		return ">"
	case OpGreaterThanOrEqual:
		return ">="
	case OpLessThan:
		return "<"
	case OpLessThanOrEqual:
		return "<="
	case OpIn:
		return "IN"
	case OpNotIn:
		return "NOT IN"
	case OpILike:
		return "ILIKE"
	case OpIsNull:
		return "IS NULL"
	case OpIsNotNull:
		return "IS NOT NULL"
	default:
		return "UNKNOWN"
	}
}

// Node is one node of a predicate tree.
type Node interface {
	isNode()
}

// Cond is a direct column comparison.
type Cond struct {
	Column string
	Op     Op
	Value  interface{}
	Values []interface{} // for IN / NOT IN
}

func (*Cond) isNode() {}

// Group combines child nodes with AND (default) or OR.
type Group struct {
	Or    bool
	Nodes []Node
}

func (*Group) isNode() {}

// Exists is a correlated EXISTS subquery against a side table: true when
// some record of Table, correlated to the current row via Corr, satisfies
// all inner nodes. EAV value clauses, tag clauses and grant clauses all
// compile into this shape.
type Exists struct {
	Table string // e.g. "row_values rv"
	Corr  string // correlation column, e.g. "rv.row_id"; matched to rows.id
	Nodes []Node // ANDed inner conditions
}

func (*Exists) isNode() {}

// And builds an AND group over the given nodes.
func And(nodes ...Node) *Group {
	return &Group{Nodes: nodes}
}

// Or builds an OR group over the given nodes.
func Or(nodes ...Node) *Group {
	return &Group{Or: true, Nodes: nodes}
}

// Eq builds an equality condition.
func Eq(column string, value interface{}) *Cond {
	return &Cond{Column: column, Op: OpEqual, Value: value}
}

// In builds an IN condition.
func In(column string, values ...interface{}) *Cond {
	return &Cond{Column: column, Op: OpIn, Values: values}
}

// IsNull builds an IS NULL condition.
func IsNull(column string) *Cond {
	return &Cond{Column: column, Op: OpIsNull}
}

// Add appends nodes to the group and returns it.
func (g *Group) Add(nodes ...Node) *Group {
	g.Nodes = append(g.Nodes, nodes...)
	return g
}

// Empty reports whether the group has no children.
func (g *Group) Empty() bool {
	return g == nil || len(g.Nodes) == 0
}
