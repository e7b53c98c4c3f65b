package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tesserahq/tessera/internal/entities"
	"github.com/tesserahq/tessera/internal/events"
	"github.com/tesserahq/tessera/internal/query"
	"github.com/tesserahq/tessera/internal/repositories"
	"github.com/tesserahq/tessera/internal/services/access"
	"github.com/tesserahq/tessera/internal/services/values"
)

type accessView struct {
	CanRead    bool   `json:"canRead"`
	CanComment bool   `json:"canComment"`
	CanUpdate  bool   `json:"canUpdate"`
	CanDelete  bool   `json:"canDelete"`
	IsOwner    bool   `json:"isOwner"`
	Level      string `json:"level"`
}

func renderDecision(d access.Decision) accessView {
	return accessView{
		CanRead:    d.CanRead,
		CanComment: d.CanComment,
		CanUpdate:  d.CanUpdate,
		CanDelete:  d.CanDelete,
		IsOwner:    d.IsOwner,
		Level:      d.Level.String(),
	}
}

type rowView struct {
	ID              string                 `json:"id"`
	Entity          string                 `json:"entity"`
	TenantID        *string                `json:"tenantId"`
	WorkflowStateID *string                `json:"workflowStateId,omitempty"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
	Values          map[string]interface{} `json:"values"`
	Tags            []string               `json:"tags,omitempty"`
	Access          *accessView            `json:"access,omitempty"`
}

// renderRow projects a row through the typed value model: each property
// reads out as its declared type, absent cells are omitted.
func (h *Handler) renderRow(entity *entities.Entity, row *entities.Row) (rowView, error) {
	view := rowView{
		ID:              row.ID,
		Entity:          entity.Name,
		TenantID:        row.TenantID,
		WorkflowStateID: row.WorkflowStateID,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
		Values:          map[string]interface{}{},
	}
	for _, prop := range entity.Properties {
		if prop.Hidden {
			continue
		}
		v, err := h.values.Get(entity, row, prop.Name)
		if err != nil {
			return rowView{}, fmt.Errorf("property %s: %w", prop.Name, err)
		}
		if rendered := renderTyped(v); rendered != nil {
			view.Values[prop.Name] = rendered
		}
	}
	for _, t := range row.Tags {
		view.Tags = append(view.Tags, t.Value)
	}
	return view, nil
}

func renderTyped(v values.TypedValue) interface{} {
	switch v.Kind {
	case values.KindText:
		return v.Text
	case values.KindNumber:
		return v.Number
	case values.KindDate:
		return v.Date.Format(time.RFC3339)
	case values.KindBool:
		return v.Bool
	case values.KindMedia:
		out := make([]map[string]interface{}, 0, len(v.Media))
		for _, m := range v.Media {
			out = append(out, map[string]interface{}{
				"id": m.ID, "url": m.URL, "name": m.Name, "mimeType": m.MimeType,
			})
		}
		return out
	case values.KindMulti:
		return v.Multi
	case values.KindRange:
		out := map[string]interface{}{}
		if v.Range.FromNumber != nil {
			out["from"] = *v.Range.FromNumber
		}
		if v.Range.ToNumber != nil {
			out["to"] = *v.Range.ToNumber
		}
		if v.Range.FromDate != nil {
			out["from"] = v.Range.FromDate.Format(time.RFC3339)
		}
		if v.Range.ToDate != nil {
			out["to"] = v.Range.ToDate.Format(time.RFC3339)
		}
		return out
	default:
		return nil
	}
}

// decodeWrite converts one raw JSON value into the typed write the value
// model expects, guided by the property's declared type.
func decodeWrite(prop *entities.Property, raw json.RawMessage) (values.TypedValue, error) {
	if string(raw) == "null" {
		return values.Unset, nil
	}

	switch prop.Type {
	case entities.PropertyText, entities.PropertySelect:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return values.Unset, fmt.Errorf("%w: property %s expects a string", entities.ErrInvalidValue, prop.Name)
		}
		return values.TypedValue{Kind: values.KindText, Text: s}, nil

	case entities.PropertyNumber:
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return values.Unset, fmt.Errorf("%w: property %s expects a number", entities.ErrInvalidValue, prop.Name)
		}
		return values.TypedValue{Kind: values.KindNumber, Number: n}, nil

	case entities.PropertyDate:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return values.Unset, fmt.Errorf("%w: property %s expects an RFC 3339 date string", entities.ErrInvalidValue, prop.Name)
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return values.Unset, fmt.Errorf("%w: property %s: %q is not an RFC 3339 date", entities.ErrInvalidValue, prop.Name, s)
		}
		return values.TypedValue{Kind: values.KindDate, Date: t}, nil

	case entities.PropertyBoolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return values.Unset, fmt.Errorf("%w: property %s expects a boolean", entities.ErrInvalidValue, prop.Name)
		}
		return values.TypedValue{Kind: values.KindBool, Bool: b}, nil

	case entities.PropertyMultiSelect, entities.PropertyMultiText:
		var list []string
		if err := json.Unmarshal(raw, &list); err != nil {
			return values.Unset, fmt.Errorf("%w: property %s expects an array of strings", entities.ErrInvalidValue, prop.Name)
		}
		return values.TypedValue{Kind: values.KindMulti, Multi: list}, nil

	case entities.PropertyRangeNumber:
		var bounds struct {
			From *float64 `json:"from"`
			To   *float64 `json:"to"`
		}
		if err := json.Unmarshal(raw, &bounds); err != nil {
			return values.Unset, fmt.Errorf("%w: property %s expects {from, to} numbers", entities.ErrInvalidValue, prop.Name)
		}
		return values.TypedValue{Kind: values.KindRange, Range: &entities.ValueRange{FromNumber: bounds.From, ToNumber: bounds.To}}, nil

	case entities.PropertyRangeDate:
		var bounds struct {
			From *time.Time `json:"from"`
			To   *time.Time `json:"to"`
		}
		if err := json.Unmarshal(raw, &bounds); err != nil {
			return values.Unset, fmt.Errorf("%w: property %s expects {from, to} dates", entities.ErrInvalidValue, prop.Name)
		}
		return values.TypedValue{Kind: values.KindRange, Range: &entities.ValueRange{FromDate: bounds.From, ToDate: bounds.To}}, nil

	default:
		return values.Unset, fmt.Errorf("%w: property %s of type %s is not writable over the API", entities.ErrInvalidValue, prop.Name, prop.Type)
	}
}

func decodeWrites(entity *entities.Entity, body map[string]json.RawMessage) ([]values.PropertyWrite, error) {
	writes := make([]values.PropertyWrite, 0, len(body))
	for name, raw := range body {
		prop := entity.GetProperty(name)
		if prop == nil {
			return nil, fmt.Errorf("property %s on entity %s: %w", name, entity.Name, entities.ErrNotFound)
		}
		v, err := decodeWrite(prop, raw)
		if err != nil {
			return nil, err
		}
		writes = append(writes, values.PropertyWrite{Property: name, Value: v})
	}
	return writes, nil
}

type filterRequest struct {
	Query      string   `json:"query"`
	Tags       []string `json:"tags"`
	State      *string  `json:"workflowStateId"`
	Conditions []struct {
		Property string   `json:"property"`
		Operator string   `json:"operator"`
		Value    string   `json:"value"`
		Values   []string `json:"values"`
		Match    string   `json:"match"`
	} `json:"conditions"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func (fr *filterRequest) toFilter() *entities.Filter {
	f := &entities.Filter{
		Query:           fr.Query,
		Tags:            fr.Tags,
		WorkflowStateID: fr.State,
	}
	for _, c := range fr.Conditions {
		f.Conditions = append(f.Conditions, &entities.FilterCondition{
			Property: c.Property,
			Operator: entities.FilterOperator(c.Operator),
			Value:    c.Value,
			Values:   c.Values,
			Match:    entities.MatchMode(c.Match),
		})
	}
	return f
}

// runScopedQuery runs one scoped bulk query: the caller's visibility
// predicate ANDed with the compiled filter.
func (h *Handler) runScopedQuery(w http.ResponseWriter, r *http.Request, entity *entities.Entity, filter *entities.Filter, limit, offset int) {
	principal := principalFrom(r)

	scope, err := h.resolver.ScopingPredicate(r.Context(), principal.TenantID, principal)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	filterNode, err := h.compiler.Compile(entity, filter)
	if h.metrics != nil {
		h.metrics.ObserveFilterCompile(err)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	pred := query.And(scope)
	if filterNode != nil {
		pred.Add(filterNode)
	}

	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, total, err := h.rows.FindRows(r.Context(), entity.ID, pred,
		repositories.Pagination{Limit: limit, Offset: offset})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	views := make([]rowView, 0, len(rows))
	for _, row := range rows {
		view, err := h.renderRow(entity, row)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		views = append(views, view)
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"rows":   views,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *Handler) listRows(w http.ResponseWriter, r *http.Request) {
	entity, err := h.registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	filter := &entities.Filter{
		Query: q.Get("q"),
		Tags:  q["tag"],
	}
	if state := q.Get("state"); state != "" {
		filter.WorkflowStateID = &state
	}

	page := paginationFrom(r)
	h.runScopedQuery(w, r, entity, filter, page.Limit, page.Offset)
}

func (h *Handler) searchRows(w http.ResponseWriter, r *http.Request) {
	entity, err := h.registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req filterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: malformed filter body", entities.ErrInvalidFilter))
		return
	}
	h.runScopedQuery(w, r, entity, req.toFilter(), req.Limit, req.Offset)
}

func (h *Handler) createRow(w http.ResponseWriter, r *http.Request) {
	entity, err := h.registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	principal := principalFrom(r)

	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: malformed request body", entities.ErrInvalidValue))
		return
	}
	writes, err := decodeWrites(entity, body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	now := time.Now()
	row := &entities.Row{
		ID:              uuid.NewString(),
		EntityID:        entity.ID,
		CreatedByAPIKey: principal.APIKey,
		CreatedAt:       now,
		UpdatedAt:       now,
		Grants:          []*entities.RowPermission{},
	}
	if principal.Authenticated() {
		uid := principal.UserID
		row.CreatedByUserID = &uid
	}
	if principal.TenantID != "" {
		tid := principal.TenantID
		row.TenantID = &tid
	}
	if state := entity.InitialWorkflowState(); state != nil {
		row.WorkflowStateID = &state.ID
	}

	if err := h.rows.CreateRow(r.Context(), row); err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.events != nil {
		evt := events.Event{Kind: events.RowCreated, EntityID: row.EntityID, RowID: row.ID}
		if row.TenantID != nil {
			evt.TenantID = *row.TenantID
		}
		h.events.Publish(evt)
	}
	if len(writes) > 0 {
		if row, err = h.values.Update(r.Context(), entity, row, writes, principal); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	view, err := h.renderRow(entity, row)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, view)
}

// resolveRow loads a row and computes the caller's access in one step.
func (h *Handler) resolveRow(r *http.Request, id string) (*entities.Entity, *entities.Row, access.Decision, error) {
	row, err := h.rows.GetRow(r.Context(), id)
	if err != nil {
		return nil, nil, access.Decision{}, err
	}
	entity, err := h.registry.Get(row.EntityID)
	if err != nil {
		return nil, nil, access.Decision{}, err
	}

	start := time.Now()
	decision, err := h.resolver.Resolve(r.Context(), row, principalFrom(r))
	if err != nil {
		return nil, nil, access.Decision{}, err
	}
	if h.metrics != nil {
		h.metrics.ObserveResolve(decision.CanRead, time.Since(start))
	}
	return entity, row, decision, nil
}

func (h *Handler) getRow(w http.ResponseWriter, r *http.Request) {
	entity, row, decision, err := h.resolveRow(r, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := access.Require(decision, entities.AccessView); err != nil {
		h.writeError(w, r, err)
		return
	}

	view, err := h.renderRow(entity, row)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	av := renderDecision(decision)
	view.Access = &av
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) updateRow(w http.ResponseWriter, r *http.Request) {
	entity, row, decision, err := h.resolveRow(r, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := access.Require(decision, entities.AccessEdit); err != nil {
		h.writeError(w, r, err)
		return
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: malformed request body", entities.ErrInvalidValue))
		return
	}
	writes, err := decodeWrites(entity, body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	row, err = h.values.Update(r.Context(), entity, row, writes, principalFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	view, err := h.renderRow(entity, row)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) getAccess(w http.ResponseWriter, r *http.Request) {
	_, _, decision, err := h.resolveRow(r, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, renderDecision(decision))
}
