package handlers

import (
	"net/http"

	"github.com/mysafehouse/access-api/internal/domain"
	"github.com/mysafehouse/access-api/internal/http/middleware"
	"github.com/mysafehouse/access-api/internal/http/response"
)

// ListAccessLogs returns the audit trail for a property the caller owns.
// GET /api/properties/{id}/access-logs
func (h *Handlers) ListAccessLogs(w http.ResponseWriter, r *http.Request) {
	claims := middleware.Claims(r)
	if claims == nil {
		response.Unauthorized(w, "Authentication required")
		return
	}
	propertyID, ok := pathID(r, "id")
	if !ok {
		response.BadRequest(w, "Invalid property id")
		return
	}
	if !h.requireOwnership(w, r, claims.Sub, propertyID) {
		return
	}
	limit, offset := pagination(r)

	entries, err := h.accessLogs.ListByProperty(r.Context(), propertyID, limit, offset)
	if err != nil {
		response.FromError(w, err)
		return
	}

	out := make([]domain.AccessLogDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.AccessLogDTO{
			ID:            e.ID,
			AccessCodeID:  e.AccessCodeID,
			PropertyID:    e.PropertyID,
			UsedByName:    e.UsedByName,
			UsedByContact: e.UsedByContact,
			AccessMethod:  string(e.AccessMethod),
			LocationData:  e.LocationData,
			RequestID:     e.RequestID,
			UsedAt:        e.UsedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
