package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tesserahq/tessera/internal/entities"
	"github.com/tesserahq/tessera/internal/repositories"
	"github.com/tesserahq/tessera/internal/services/access"
)

// listRelated returns the rows linked to the row through its declared
// relationship with the named entity. direction=parents walks the link
// upward; the default walks down to children. Linked rows the caller cannot
// view are dropped from the result, not exposed as errors.
func (h *Handler) listRelated(w http.ResponseWriter, r *http.Request) {
	_, row, decision, err := h.resolveRow(r, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := access.Require(decision, entities.AccessView); err != nil {
		h.writeError(w, r, err)
		return
	}

	entityName := chi.URLParam(r, "entity")
	order := repositories.EdgeOrder(r.URL.Query().Get("order"))
	switch order {
	case repositories.OrderByLink, repositories.OrderByCreated, repositories.OrderByUpdated:
	default:
		h.writeError(w, r, entities.ErrInvalidFilter)
		return
	}

	var related []*entities.Row
	if r.URL.Query().Get("direction") == "parents" {
		related, err = h.graph.ParentsOf(r.Context(), row, entityName, order)
	} else {
		related, err = h.graph.ChildrenOf(r.Context(), row, entityName, order)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	relatedEntity, err := h.registry.Get(entityName)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	principal := principalFrom(r)
	views := make([]rowView, 0, len(related))
	for _, rel := range related {
		d, err := h.resolver.Resolve(r.Context(), rel, principal)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if !d.CanRead {
			continue
		}
		view, err := h.renderRow(relatedEntity, rel)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		views = append(views, view)
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"rows": views})
}

// attachRow links the child under the row. Editing the link requires edit
// access on the parent side.
func (h *Handler) attachRow(w http.ResponseWriter, r *http.Request) {
	_, parent, decision, err := h.resolveRow(r, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := access.Require(decision, entities.AccessEdit); err != nil {
		h.writeError(w, r, err)
		return
	}

	child, err := h.rows.GetRow(r.Context(), chi.URLParam(r, "childID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.graph.Attach(r.Context(), parent, child); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) detachRow(w http.ResponseWriter, r *http.Request) {
	_, parent, decision, err := h.resolveRow(r, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := access.Require(decision, entities.AccessEdit); err != nil {
		h.writeError(w, r, err)
		return
	}

	child, err := h.rows.GetRow(r.Context(), chi.URLParam(r, "childID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.graph.Detach(r.Context(), parent, child); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}
