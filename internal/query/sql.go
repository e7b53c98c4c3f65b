package query

import (
	"fmt"
	"strings"
)

// ToSQL renders a predicate tree to a parameterized WHERE fragment using
// numbered placeholders. paramCounter carries the next placeholder index
// across calls so a caller can prepend its own parameters.
func ToSQL(n Node, paramCounter *int, args *[]interface{}) (string, error) {
	switch node := n.(type) {
	case *Cond:
		return condToSQL(node, paramCounter, args)
	case *Group:
		return groupToSQL(node, paramCounter, args)
	case *Exists:
		return existsToSQL(node, paramCounter, args)
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("unknown predicate node type: %T", n)
	}
}

func groupToSQL(g *Group, paramCounter *int, args *[]interface{}) (string, error) {
	if g.Empty() {
		return "", nil
	}
	parts := make([]string, 0, len(g.Nodes))
	for _, child := range g.Nodes {
		sql, err := ToSQL(child, paramCounter, args)
		if err != nil {
			return "", err
		}
		if sql == "" {
			continue
		}
		if _, isGroup := child.(*Group); isGroup {
			sql = "(" + sql + ")"
		}
		parts = append(parts, sql)
	}
	if len(parts) == 0 {
		return "", nil
	}
	connector := " AND "
	if g.Or {
		connector = " OR "
	}
	return strings.Join(parts, connector), nil
}

func existsToSQL(e *Exists, paramCounter *int, args *[]interface{}) (string, error) {
	inner, err := groupToSQL(&Group{Nodes: e.Nodes}, paramCounter, args)
	if err != nil {
		return "", err
	}
	where := fmt.Sprintf("%s = rows.id", e.Corr)
	if inner != "" {
		where += " AND " + inner
	}
	return fmt.Sprintf("EXISTS (SELECT 1 FROM %s WHERE %s)", e.Table, where), nil
}

func condToSQL(c *Cond, paramCounter *int, args *[]interface{}) (string, error) {
	switch c.Op {
	case OpIsNull, OpIsNotNull:
		return fmt.Sprintf("%s %s", c.Column, c.Op), nil

	case OpIn, OpNotIn:
		if len(c.Values) == 0 {
			// An empty IN list matches nothing; an empty NOT IN matches all.
			if c.Op == OpIn {
				return "FALSE", nil
			}
			return "TRUE", nil
		}
		placeholders := make([]string, 0, len(c.Values))
		for _, v := range c.Values {
			*args = append(*args, v)
			placeholders = append(placeholders, fmt.Sprintf("$%d", *paramCounter))
			*paramCounter++
		}
		return fmt.Sprintf("%s %s (%s)", c.Column, c.Op, strings.Join(placeholders, ", ")), nil

	case OpEqual, OpNotEqual, OpGreaterThan, OpGreaterThanOrEqual,
		OpLessThan, OpLessThanOrEqual, OpILike:
		*args = append(*args, c.Value)
		sql := fmt.Sprintf("%s %s $%d", c.Column, c.Op, *paramCounter)
		*paramCounter++
		return sql, nil

	default:
		return "", fmt.Errorf("unsupported operator: %v", c.Op)
	}
}
