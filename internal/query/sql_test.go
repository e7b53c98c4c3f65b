package query

import (
	"reflect"
	"testing"
)

func render(t *testing.T, n Node, startParam int) (string, []interface{}) {
	t.Helper()
	paramCounter := startParam
	var args []interface{}
	sql, err := ToSQL(n, &paramCounter, &args)
	if err != nil {
		t.Fatalf("ToSQL() error = %v", err)
	}
	return sql, args
}

func TestToSQL_Cond(t *testing.T) {
	tests := []struct {
		name     string
		node     Node
		wantSQL  string
		wantArgs []interface{}
	}{
		{
			name:     "equality",
			node:     Eq("rows.tenant_id", "t1"),
			wantSQL:  "rows.tenant_id = $1",
			wantArgs: []interface{}{"t1"},
		},
		{
			name:     "ilike",
			node:     &Cond{Column: "rv.value_text", Op: OpILike, Value: "%inv%"},
			wantSQL:  "rv.value_text ILIKE $1",
			wantArgs: []interface{}{"%inv%"},
		},
		{
			name:     "in list",
			node:     In("rt.value", "urgent", "billing"),
			wantSQL:  "rt.value IN ($1, $2)",
			wantArgs: []interface{}{"urgent", "billing"},
		},
		{
			name:     "empty in matches nothing",
			node:     In("rows.id"),
			wantSQL:  "FALSE",
			wantArgs: nil,
		},
		{
			name:     "empty not in matches everything",
			node:     &Cond{Column: "rows.id", Op: OpNotIn},
			wantSQL:  "TRUE",
			wantArgs: nil,
		},
		{
			name:     "is null takes no parameter",
			node:     IsNull("rows.tenant_id"),
			wantSQL:  "rows.tenant_id IS NULL",
			wantArgs: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := render(t, tt.node, 1)
			if sql != tt.wantSQL {
				t.Errorf("ToSQL() = %q, want %q", sql, tt.wantSQL)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("ToSQL() args = %v, want %v", args, tt.wantArgs)
			}
		})
	}
}

func TestToSQL_Groups(t *testing.T) {
	node := And(
		Eq("rows.entity_id", "e1"),
		Or(
			Eq("rows.created_by_user_id", "u1"),
			IsNull("rows.tenant_id"),
		),
	)

	sql, args := render(t, node, 1)
	want := "rows.entity_id = $1 AND (rows.created_by_user_id = $2 OR rows.tenant_id IS NULL)"
	if sql != want {
		t.Errorf("ToSQL() = %q, want %q", sql, want)
	}
	if len(args) != 2 {
		t.Errorf("ToSQL() args = %v, want 2 args", args)
	}
}

func TestToSQL_EmptyGroupsDropOut(t *testing.T) {
	node := And(Or(), Eq("rows.id", "r1"), And())
	sql, _ := render(t, node, 1)
	if sql != "rows.id = $1" {
		t.Errorf("ToSQL() = %q, want child-only rendering", sql)
	}
}

func TestToSQL_Exists(t *testing.T) {
	node := &Exists{
		Table: "row_values rv",
		Corr:  "rv.row_id",
		Nodes: []Node{
			Eq("rv.property_id", "p1"),
			&Cond{Column: "rv.value_number", Op: OpGreaterThan, Value: 100.0},
		},
	}

	sql, args := render(t, node, 3)
	want := "EXISTS (SELECT 1 FROM row_values rv WHERE rv.row_id = rows.id AND rv.property_id = $3 AND rv.value_number > $4)"
	if sql != want {
		t.Errorf("ToSQL() = %q, want %q", sql, want)
	}
	if !reflect.DeepEqual(args, []interface{}{"p1", 100.0}) {
		t.Errorf("ToSQL() args = %v", args)
	}
}

func TestToSQL_ParamCounterCarriesAcrossCalls(t *testing.T) {
	paramCounter := 2
	var args []interface{}

	first, err := ToSQL(Eq("a", 1), &paramCounter, &args)
	if err != nil {
		t.Fatalf("ToSQL() error = %v", err)
	}
	second, err := ToSQL(Eq("b", 2), &paramCounter, &args)
	if err != nil {
		t.Fatalf("ToSQL() error = %v", err)
	}

	if first != "a = $2" || second != "b = $3" {
		t.Errorf("ToSQL() = %q, %q, want numbering to continue", first, second)
	}
	if paramCounter != 4 {
		t.Errorf("paramCounter = %d, want 4", paramCounter)
	}
}
