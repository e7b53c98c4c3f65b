package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/tesserahq/tessera/internal/entities"
	"github.com/tesserahq/tessera/internal/repositories"
)

// Identity headers. Verification happens at the edge; the core trusts the
// gateway-populated values.
const (
	headerUserID   = "X-User-ID"
	headerTenantID = "X-Tenant-ID"
	headerRoleIDs  = "X-Role-IDs"
	headerGroupIDs = "X-Group-IDs"
	headerAPIKey   = "X-API-Key"
)

// principalFrom builds the caller identity from request headers. Absent
// headers produce an unauthenticated principal, which is still a valid
// caller: it sees global data at view level.
func principalFrom(r *http.Request) *entities.Principal {
	return &entities.Principal{
		UserID:   r.Header.Get(headerUserID),
		TenantID: r.Header.Get(headerTenantID),
		RoleIDs:  splitList(r.Header.Get(headerRoleIDs)),
		GroupIDs: splitList(r.Header.Get(headerGroupIDs)),
		APIKey:   r.Header.Get(headerAPIKey) != "",
	}
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func paginationFrom(r *http.Request) repositories.Pagination {
	page := repositories.Pagination{Limit: 50}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			page.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			page.Offset = n
		}
	}
	return page
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil || status == http.StatusNoContent {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError maps core sentinel errors onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, entities.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, entities.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, entities.ErrInvalidValue), errors.Is(err, entities.ErrInvalidFilter):
		status = http.StatusBadRequest
	case errors.Is(err, entities.ErrConflictingRelationship):
		status = http.StatusConflict
	case errors.Is(err, entities.ErrSchemaNotLoaded):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
