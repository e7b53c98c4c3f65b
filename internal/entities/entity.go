package entities

// Entity is a tenant-definable record type: its properties, its declared
// relationships to other entities, named views, and workflow states.
type Entity struct {
	ID          string
	Name        string // immutable identity once rows reference it
	Title       string
	Slug        string
	HasWorkflow bool
	HasTags     bool
	Dynamic     bool // per-field dynamic control default

	Properties []*Property // ordered

	// ParentRelationships are outgoing links where this entity is the parent;
	// ChildRelationships are incoming links where this entity is the child.
	ParentRelationships []*EntityRelationship
	ChildRelationships  []*EntityRelationship

	Views          []*View
	WorkflowStates []*WorkflowState
}

// View is a named, saved presentation of an entity's rows.
type View struct {
	ID            string
	Name          string
	PropertyNames []string
	Filter        *Filter
	Order         int
}

// WorkflowState is one state an entity's rows can be in when the entity
// has a workflow.
type WorkflowState struct {
	ID      string
	Name    string
	Color   string
	Order   int
	Initial bool
}

// GetProperty returns the property definition by name, or nil.
func (e *Entity) GetProperty(name string) *Property {
	for _, p := range e.Properties {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// GetPropertyByID returns the property definition by ID, or nil.
func (e *Entity) GetPropertyByID(id string) *Property {
	for _, p := range e.Properties {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// GetView returns the view definition by name, or nil.
func (e *Entity) GetView(name string) *View {
	for _, v := range e.Views {
		if v.Name == name {
			return v
		}
	}
	return nil
}

// GetWorkflowState returns the workflow state by ID, or nil.
func (e *Entity) GetWorkflowState(id string) *WorkflowState {
	for _, s := range e.WorkflowStates {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// InitialWorkflowState returns the state marked initial, or the first
// state, or nil when the entity has no workflow.
func (e *Entity) InitialWorkflowState() *WorkflowState {
	for _, s := range e.WorkflowStates {
		if s.Initial {
			return s
		}
	}
	if len(e.WorkflowStates) > 0 {
		return e.WorkflowStates[0]
	}
	return nil
}
