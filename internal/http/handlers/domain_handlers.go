package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/mysafehouse/access-api/internal/domain"
	"github.com/mysafehouse/access-api/internal/http/middleware"
	"github.com/mysafehouse/access-api/internal/http/response"
	"github.com/mysafehouse/access-api/internal/utils"
)

// CheckDomain is the public advisory lookup clients use to warn requesters
// before they submit. POST /api/domains/check
func (h *Handlers) CheckDomain(w http.ResponseWriter, r *http.Request) {
	var in domain.CheckDomainReq
	if !h.decode(w, r, &in) {
		return
	}

	out := h.policy.CheckDomain(r.Context(), utils.NormalizeEmail(in.Email))
	writeJSON(w, http.StatusOK, out)
}

type domainRuleDTO struct {
	ID        int64      `json:"id"`
	Domain    string     `json:"domain"`
	Reason    string     `json:"reason,omitempty"`
	IsActive  bool       `json:"is_active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func toDomainRuleDTO(rule *domain.DomainRule) domainRuleDTO {
	return domainRuleDTO{
		ID:        rule.ID,
		Domain:    rule.Domain,
		Reason:    rule.Reason,
		IsActive:  rule.IsActive,
		ExpiresAt: rule.ExpiresAt,
		CreatedAt: rule.CreatedAt,
	}
}

// AddAllowedDomain adds a rule to the allow list. POST /api/admin/domains/allowed
func (h *Handlers) AddAllowedDomain(w http.ResponseWriter, r *http.Request) {
	h.addDomainRule(w, r, h.policy.AddAllowRule)
}

// AddBlockedDomain adds a rule to the block list. POST /api/admin/domains/blocked
func (h *Handlers) AddBlockedDomain(w http.ResponseWriter, r *http.Request) {
	h.addDomainRule(w, r, h.policy.AddBlockRule)
}

func (h *Handlers) addDomainRule(w http.ResponseWriter, r *http.Request, add func(ctx context.Context, rule *domain.DomainRule) (*domain.DomainRule, error)) {
	claims := middleware.Claims(r)
	if claims == nil {
		response.Unauthorized(w, "Authentication required")
		return
	}

	var in domain.AddDomainRuleReq
	if !h.decode(w, r, &in) {
		return
	}

	rule, err := add(r.Context(), &domain.DomainRule{
		Domain:    utils.NormalizeDomain(in.Domain),
		Reason:    in.Reason,
		IsActive:  true,
		ExpiresAt: in.ExpiresAt,
		CreatedBy: &claims.Sub,
	})
	if err != nil {
		response.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDomainRuleDTO(rule))
}

// UpdateAllowedDomain edits an allow rule in place. PUT /api/admin/domains/allowed/{id}
func (h *Handlers) UpdateAllowedDomain(w http.ResponseWriter, r *http.Request) {
	h.updateDomainRule(w, r, h.policy.UpdateAllowRule)
}

// UpdateBlockedDomain edits a block rule in place. PUT /api/admin/domains/blocked/{id}
func (h *Handlers) UpdateBlockedDomain(w http.ResponseWriter, r *http.Request) {
	h.updateDomainRule(w, r, h.policy.UpdateBlockRule)
}

func (h *Handlers) updateDomainRule(w http.ResponseWriter, r *http.Request, update func(ctx context.Context, id int64, upd *domain.DomainRuleUpdate) (*domain.DomainRule, error)) {
	id, ok := pathID(r, "id")
	if !ok {
		response.BadRequest(w, "Invalid rule id")
		return
	}

	var in domain.UpdateDomainRuleReq
	if !h.decode(w, r, &in) {
		return
	}

	upd := &domain.DomainRuleUpdate{
		Reason:      in.Reason,
		IsActive:    in.IsActive,
		ExpiresAt:   in.ExpiresAt,
		ClearExpiry: in.ClearExpiry,
	}
	if in.Domain != nil {
		normalized := utils.NormalizeDomain(*in.Domain)
		upd.Domain = &normalized
	}

	rule, err := update(r.Context(), id, upd)
	if err != nil {
		response.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDomainRuleDTO(rule))
}

// DeleteAllowedDomain removes an allow rule. DELETE /api/admin/domains/allowed/{id}
func (h *Handlers) DeleteAllowedDomain(w http.ResponseWriter, r *http.Request) {
	h.deleteDomainRule(w, r, h.policy.RemoveAllowRule)
}

// DeleteBlockedDomain removes a block rule. DELETE /api/admin/domains/blocked/{id}
func (h *Handlers) DeleteBlockedDomain(w http.ResponseWriter, r *http.Request) {
	h.deleteDomainRule(w, r, h.policy.RemoveBlockRule)
}

func (h *Handlers) deleteDomainRule(w http.ResponseWriter, r *http.Request, remove func(ctx context.Context, id int64) error) {
	id, ok := pathID(r, "id")
	if !ok {
		response.BadRequest(w, "Invalid rule id")
		return
	}

	if err := remove(r.Context(), id); err != nil {
		response.FromError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAllowedDomains returns the allow list. GET /api/admin/domains/allowed
func (h *Handlers) ListAllowedDomains(w http.ResponseWriter, r *http.Request) {
	h.listDomainRules(w, r, h.policy.ListAllowRules)
}

// ListBlockedDomains returns the block list. GET /api/admin/domains/blocked
func (h *Handlers) ListBlockedDomains(w http.ResponseWriter, r *http.Request) {
	h.listDomainRules(w, r, h.policy.ListBlockRules)
}

func (h *Handlers) listDomainRules(w http.ResponseWriter, r *http.Request, list func(ctx context.Context, limit, offset int) ([]domain.DomainRule, error)) {
	limit, offset := pagination(r)

	rules, err := list(r.Context(), limit, offset)
	if err != nil {
		response.FromError(w, err)
		return
	}

	out := make([]domainRuleDTO, 0, len(rules))
	for i := range rules {
		out = append(out, toDomainRuleDTO(&rules[i]))
	}
	writeJSON(w, http.StatusOK, out)
}
