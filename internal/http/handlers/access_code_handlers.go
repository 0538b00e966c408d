package handlers

import (
	"net/http"
	"time"

	"github.com/mysafehouse/access-api/internal/domain"
	"github.com/mysafehouse/access-api/internal/http/middleware"
	"github.com/mysafehouse/access-api/internal/http/response"
)

type accessCodeDTO struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	CodeType  string    `json:"code_type"`
	GrantedTo string    `json:"granted_to,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	MaxUses   *int      `json:"max_uses,omitempty"`
	UseCount  int       `json:"use_count"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func toAccessCodeDTO(c *domain.AccessCode) accessCodeDTO {
	return accessCodeDTO{
		ID:        c.ID,
		Code:      c.Code,
		CodeType:  c.CodeType,
		GrantedTo: c.GrantedTo,
		Reason:    c.Reason,
		ExpiresAt: c.ExpiresAt,
		MaxUses:   c.MaxUses,
		UseCount:  c.UseCount,
		IsActive:  c.IsActive,
		CreatedAt: c.CreatedAt,
	}
}

// GenerateAccessCode mints a new code for a property the caller owns.
// POST /api/access-codes
func (h *Handlers) GenerateAccessCode(w http.ResponseWriter, r *http.Request) {
	claims := middleware.Claims(r)
	if claims == nil {
		response.Unauthorized(w, "Authentication required")
		return
	}

	var in domain.GenerateAccessCodeReq
	if !h.decode(w, r, &in) {
		return
	}

	code, err := h.registry.Generate(r.Context(), claims.Sub, &in)
	if err != nil {
		response.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccessCodeDTO(code))
}

// GetActiveAccessCode returns the currently usable code for a property.
// GET /api/properties/{id}/access-codes/active
func (h *Handlers) GetActiveAccessCode(w http.ResponseWriter, r *http.Request) {
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

	code, err := h.registry.GetActiveCode(r.Context(), propertyID)
	if err != nil {
		response.FromError(w, err)
		return
	}
	if code == nil {
		response.NotFound(w, "No active access code for this property")
		return
	}
	writeJSON(w, http.StatusOK, toAccessCodeDTO(code))
}

// ListAccessCodes returns the code history for a property.
// GET /api/properties/{id}/access-codes
func (h *Handlers) ListAccessCodes(w http.ResponseWriter, r *http.Request) {
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
	limit, offset := pagination(r)

	codes, err := h.registry.ListByProperty(r.Context(), claims.Sub, propertyID, limit, offset)
	if err != nil {
		response.FromError(w, err)
		return
	}

	out := make([]accessCodeDTO, 0, len(codes))
	for i := range codes {
		out = append(out, toAccessCodeDTO(&codes[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// ValidateAccessCode is the public check used at the door (QR scan, keypad).
// POST /api/access-codes/validate
func (h *Handlers) ValidateAccessCode(w http.ResponseWriter, r *http.Request) {
	var in domain.ValidateAccessCodeReq
	if !h.decode(w, r, &in) {
		return
	}

	out, err := h.registry.Validate(r.Context(), &in)
	if err != nil {
		response.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// requireOwnership writes the error response itself when the check fails.
func (h *Handlers) requireOwnership(w http.ResponseWriter, r *http.Request, ownerID, propertyID int64) bool {
	owns, err := h.properties.OwnsProperty(r.Context(), ownerID, propertyID)
	if err != nil {
		response.InternalError(w, "Failed to check property ownership")
		return false
	}
	if !owns {
		response.Forbidden(w, "You do not have access to this property")
		return false
	}
	return true
}
