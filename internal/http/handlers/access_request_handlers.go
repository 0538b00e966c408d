package handlers

import (
	"net/http"

	"github.com/mysafehouse/access-api/internal/domain"
	"github.com/mysafehouse/access-api/internal/http/middleware"
	"github.com/mysafehouse/access-api/internal/http/response"
)

// CreateAccessRequest is the public entry point: anyone standing at the door
// can file a request. POST /api/access-requests
func (h *Handlers) CreateAccessRequest(w http.ResponseWriter, r *http.Request) {
	var in domain.CreateAccessRequestReq
	if !h.decode(w, r, &in) {
		return
	}
	if in.RequesterEmail == "" && in.RequesterPhone == "" {
		response.BadRequest(w, "At least one of requester_email or requester_phone is required")
		return
	}

	in.IPAddress = middleware.ClientIP(r)
	in.UserAgent = r.UserAgent()

	out, err := h.engine.Create(r.Context(), &in)
	if err != nil {
		response.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// VerifyAccessRequest confirms the contact channel with the emailed code.
// POST /api/access-requests/verify
func (h *Handlers) VerifyAccessRequest(w http.ResponseWriter, r *http.Request) {
	var in domain.VerifyAccessRequestReq
	if !h.decode(w, r, &in) {
		return
	}

	out, err := h.engine.Verify(r.Context(), in.VerificationToken, in.VerificationCode)
	if err != nil {
		response.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// DecideAccessRequest is the authenticated owner decision.
// POST /api/access-requests/{id}/decide
func (h *Handlers) DecideAccessRequest(w http.ResponseWriter, r *http.Request) {
	claims := middleware.Claims(r)
	if claims == nil {
		response.Unauthorized(w, "Authentication required")
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		response.BadRequest(w, "Invalid request id")
		return
	}

	var in struct {
		Action string `json:"action" validate:"required,oneof=approve deny"`
	}
	if !h.decode(w, r, &in) {
		return
	}

	out, err := h.engine.DecideAsOwner(r.Context(), claims.Sub, id, in.Action)
	if err != nil {
		response.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ListPendingRequests returns open requests across the owner's properties.
// GET /api/access-requests/pending
func (h *Handlers) ListPendingRequests(w http.ResponseWriter, r *http.Request) {
	claims := middleware.Claims(r)
	if claims == nil {
		response.Unauthorized(w, "Authentication required")
		return
	}
	limit, offset := pagination(r)

	requests, err := h.engine.ListPending(r.Context(), claims.Sub, limit, offset)
	if err != nil {
		response.FromError(w, err)
		return
	}

	out := make([]domain.AccessRequestDTO, 0, len(requests))
	for _, req := range requests {
		out = append(out, domain.AccessRequestDTO{
			ID:             req.ID,
			PropertyID:     req.PropertyID,
			RequesterName:  req.RequesterName,
			RequesterEmail: req.RequesterEmail,
			RequesterPhone: req.RequesterPhone,
			Status:         string(req.Status),
			CreatedAt:      req.CreatedAt,
			ExpiresAt:      req.ExpiresAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
