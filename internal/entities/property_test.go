package entities

import "testing"

func TestProperty_Searchable(t *testing.T) {
	tests := []struct {
		name string
		typ  PropertyType
		want bool
	}{
		{"text is searchable", PropertyText, true},
		{"select is searchable", PropertySelect, true},
		{"number is searchable", PropertyNumber, true},
		{"boolean is searchable", PropertyBoolean, true},
		{"date is not searchable", PropertyDate, false},
		{"media is not searchable", PropertyMedia, false},
		{"multi select is not searchable", PropertyMultiSelect, false},
		{"formula is not searchable", PropertyFormula, false},
		{"range is not searchable", PropertyRangeNumber, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Property{Name: "p", Type: tt.typ}
			if got := p.Searchable(); got != tt.want {
				t.Errorf("Searchable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProperty_GetOption(t *testing.T) {
	p := &Property{
		Name: "status",
		Type: PropertySelect,
		Options: []*Option{
			{Value: "open", Name: "Open"},
			{Value: "done", Name: "Done"},
		},
	}

	if got := p.GetOption("open"); got == nil || got.Name != "Open" {
		t.Errorf("GetOption(open) = %v, want Open", got)
	}
	if got := p.GetOption("missing"); got != nil {
		t.Errorf("GetOption(missing) = %v, want nil", got)
	}
}

func TestProperty_Validate(t *testing.T) {
	tests := []struct {
		name    string
		prop    *Property
		wantErr bool
	}{
		{
			name:    "plain text property",
			prop:    &Property{Name: "title", Type: PropertyText},
			wantErr: false,
		},
		{
			name: "select with unique options",
			prop: &Property{
				Name: "status", Type: PropertySelect,
				Options: []*Option{{Value: "a"}, {Value: "b"}},
			},
			wantErr: false,
		},
		{
			name: "select with duplicate option values",
			prop: &Property{
				Name: "status", Type: PropertySelect,
				Options: []*Option{{Value: "a"}, {Value: "a"}},
			},
			wantErr: true,
		},
		{
			name:    "formula without result type",
			prop:    &Property{Name: "total", Type: PropertyFormula},
			wantErr: true,
		},
		{
			name:    "formula with result type",
			prop:    &Property{Name: "total", Type: PropertyFormula, FormulaResultType: PropertyNumber},
			wantErr: false,
		},
		{
			name:    "missing name",
			prop:    &Property{Type: PropertyText},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.prop.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
