package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tesserahq/tessera/internal/entities"
)

type optionView struct {
	Value string `json:"value"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
	Order int    `json:"order"`
}

type propertyView struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Title    string       `json:"title"`
	Type     string       `json:"type"`
	Subtype  string       `json:"subtype,omitempty"`
	Required bool         `json:"required"`
	ReadOnly bool         `json:"readOnly"`
	Hidden   bool         `json:"hidden"`
	Order    int          `json:"order"`
	Options  []optionView `json:"options,omitempty"`
}

type workflowStateView struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Color   string `json:"color,omitempty"`
	Order   int    `json:"order"`
	Initial bool   `json:"initial"`
}

type relationshipView struct {
	ID            string `json:"id"`
	ParentEntity  string `json:"parentEntityId"`
	ChildEntity   string `json:"childEntityId"`
	Role          string `json:"role,omitempty"`
	Single        bool   `json:"single"`
	ReadOnly      bool   `json:"readOnly"`
	HiddenIfEmpty bool   `json:"hiddenIfEmpty"`
}

type entityView struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Title          string              `json:"title"`
	Slug           string              `json:"slug,omitempty"`
	HasWorkflow    bool                `json:"hasWorkflow"`
	HasTags        bool                `json:"hasTags"`
	Properties     []propertyView      `json:"properties"`
	Relationships  []relationshipView  `json:"relationships,omitempty"`
	WorkflowStates []workflowStateView `json:"workflowStates,omitempty"`
}

func renderEntity(e *entities.Entity) entityView {
	view := entityView{
		ID:          e.ID,
		Name:        e.Name,
		Title:       e.Title,
		Slug:        e.Slug,
		HasWorkflow: e.HasWorkflow,
		HasTags:     e.HasTags,
		Properties:  make([]propertyView, 0, len(e.Properties)),
	}
	for _, p := range e.Properties {
		pv := propertyView{
			ID: p.ID, Name: p.Name, Title: p.Title, Type: string(p.Type),
			Subtype: p.Subtype, Required: p.Required, ReadOnly: p.ReadOnly,
			Hidden: p.Hidden, Order: p.Order,
		}
		for _, o := range p.Options {
			pv.Options = append(pv.Options, optionView{Value: o.Value, Name: o.Name, Color: o.Color, Order: o.Order})
		}
		view.Properties = append(view.Properties, pv)
	}
	for _, rel := range e.ParentRelationships {
		view.Relationships = append(view.Relationships, relationshipView{
			ID: rel.ID, ParentEntity: rel.ParentEntityID, ChildEntity: rel.ChildEntityID,
			Role: rel.Role, Single: rel.Single, ReadOnly: rel.ReadOnly,
			HiddenIfEmpty: rel.HiddenIfEmpty,
		})
	}
	for _, s := range e.WorkflowStates {
		view.WorkflowStates = append(view.WorkflowStates, workflowStateView{
			ID: s.ID, Name: s.Name, Color: s.Color, Order: s.Order, Initial: s.Initial,
		})
	}
	return view
}

func (h *Handler) listEntities(w http.ResponseWriter, r *http.Request) {
	list, err := h.registry.Entities()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	views := make([]entityView, 0, len(list))
	for _, e := range list {
		views = append(views, renderEntity(e))
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"entities": views})
}

func (h *Handler) getEntity(w http.ResponseWriter, r *http.Request) {
	entity, err := h.registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, renderEntity(entity))
}
