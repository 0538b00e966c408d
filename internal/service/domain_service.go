package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mysafehouse/access-api/internal/domain"
	"github.com/mysafehouse/access-api/internal/repo/postgres"
	"github.com/mysafehouse/access-api/internal/utils"
	"github.com/mysafehouse/access-api/pkg/logger"
)

// DomainPolicy evaluates an email's domain against the allow and block
// lists. The verdict is advisory metadata on request creation; it does not
// gate code disclosure.
type DomainPolicy interface {
	CheckDomain(ctx context.Context, email string) domain.DomainCheck
	AddAllowRule(ctx context.Context, rule *domain.DomainRule) (*domain.DomainRule, error)
	AddBlockRule(ctx context.Context, rule *domain.DomainRule) (*domain.DomainRule, error)
	UpdateAllowRule(ctx context.Context, id int64, upd *domain.DomainRuleUpdate) (*domain.DomainRule, error)
	UpdateBlockRule(ctx context.Context, id int64, upd *domain.DomainRuleUpdate) (*domain.DomainRule, error)
	RemoveAllowRule(ctx context.Context, id int64) error
	RemoveBlockRule(ctx context.Context, id int64) error
	ListAllowRules(ctx context.Context, limit, offset int) ([]domain.DomainRule, error)
	ListBlockRules(ctx context.Context, limit, offset int) ([]domain.DomainRule, error)
}

type domainPolicy struct {
	rules postgres.DomainRuleRepo
}

func NewDomainPolicy(rules postgres.DomainRuleRepo) DomainPolicy {
	return &domainPolicy{rules: rules}
}

func (s *domainPolicy) CheckDomain(ctx context.Context, email string) domain.DomainCheck {
	dom := utils.EmailDomain(email)
	if dom == "" {
		return domain.DomainCheck{Allowed: false, Message: "Invalid email format"}
	}

	now := time.Now()

	allow, err := s.rules.GetActiveAllow(ctx, dom)
	if err != nil {
		// Fail closed, but with a message distinguishable from a genuine deny
		// so callers can treat storage trouble as advisory.
		logger.ErrorContext(ctx, "Failed to check allowed domain", "domain", dom, "error", err)
		return domain.DomainCheck{Allowed: false, Domain: dom, Message: "Error checking domain status"}
	}
	if allow == nil {
		return domain.DomainCheck{Allowed: false, Domain: dom, Message: "Domain not in allowed list"}
	}
	if allow.Expired(now) {
		return domain.DomainCheck{Allowed: false, Domain: dom, Message: "Domain access has expired"}
	}

	block, err := s.rules.GetActiveBlock(ctx, dom)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to check blocked domain", "domain", dom, "error", err)
		return domain.DomainCheck{Allowed: false, Domain: dom, Message: "Error checking domain status"}
	}
	if block != nil && !block.Expired(now) {
		reason := block.Reason
		if reason == "" {
			reason = "No reason provided"
		}
		return domain.DomainCheck{Allowed: false, Domain: dom, Message: fmt.Sprintf("Domain is blocked: %s", reason)}
	}

	return domain.DomainCheck{Allowed: true, Domain: dom, Message: "Domain is allowed"}
}

func (s *domainPolicy) AddAllowRule(ctx context.Context, rule *domain.DomainRule) (*domain.DomainRule, error) {
	return s.rules.InsertAllow(ctx, rule)
}

func (s *domainPolicy) AddBlockRule(ctx context.Context, rule *domain.DomainRule) (*domain.DomainRule, error) {
	return s.rules.InsertBlock(ctx, rule)
}

func (s *domainPolicy) UpdateAllowRule(ctx context.Context, id int64, upd *domain.DomainRuleUpdate) (*domain.DomainRule, error) {
	return s.updateRule(ctx, id, upd, s.rules.UpdateAllow)
}

func (s *domainPolicy) UpdateBlockRule(ctx context.Context, id int64, upd *domain.DomainRuleUpdate) (*domain.DomainRule, error) {
	return s.updateRule(ctx, id, upd, s.rules.UpdateBlock)
}

func (s *domainPolicy) updateRule(ctx context.Context, id int64, upd *domain.DomainRuleUpdate, update func(context.Context, int64, *domain.DomainRuleUpdate) (*domain.DomainRule, error)) (*domain.DomainRule, error) {
	rule, err := update(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, domain.E(domain.KindNotFound, "Domain rule not found")
	}
	return rule, nil
}

func (s *domainPolicy) RemoveAllowRule(ctx context.Context, id int64) error {
	return s.removeRule(ctx, id, s.rules.DeleteAllow)
}

func (s *domainPolicy) RemoveBlockRule(ctx context.Context, id int64) error {
	return s.removeRule(ctx, id, s.rules.DeleteBlock)
}

func (s *domainPolicy) removeRule(ctx context.Context, id int64, del func(context.Context, int64) (bool, error)) error {
	ok, err := del(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.E(domain.KindNotFound, "Domain rule not found")
	}
	return nil
}

func (s *domainPolicy) ListAllowRules(ctx context.Context, limit, offset int) ([]domain.DomainRule, error) {
	return s.rules.ListAllow(ctx, limit, offset)
}

func (s *domainPolicy) ListBlockRules(ctx context.Context, limit, offset int) ([]domain.DomainRule, error) {
	return s.rules.ListBlock(ctx, limit, offset)
}
