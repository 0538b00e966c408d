package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/mysafehouse/access-api/internal/domain"
	"github.com/mysafehouse/access-api/internal/repo/postgres"
)

// ---------- In-memory fakes ----------

type fakePropertyRepo struct {
	properties map[int64]*domain.Property
	profiles   map[int64]*domain.Profile
}

func newFakePropertyRepo() *fakePropertyRepo {
	return &fakePropertyRepo{
		properties: make(map[int64]*domain.Property),
		profiles:   make(map[int64]*domain.Profile),
	}
}

func (f *fakePropertyRepo) GetByID(_ context.Context, id int64) (*domain.Property, error) {
	p, ok := f.properties[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakePropertyRepo) GetOwnerProfile(_ context.Context, ownerID int64) (*domain.Profile, error) {
	p, ok := f.profiles[ownerID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakePropertyRepo) OwnsProperty(_ context.Context, ownerID, propertyID int64) (bool, error) {
	p, ok := f.properties[propertyID]
	return ok && p.OwnerID == ownerID, nil
}

type fakeAccessCodeRepo struct {
	mu     sync.Mutex
	nextID int64
	codes  map[int64]*domain.AccessCode
}

func newFakeAccessCodeRepo() *fakeAccessCodeRepo {
	return &fakeAccessCodeRepo{nextID: 1, codes: make(map[int64]*domain.AccessCode)}
}

func (f *fakeAccessCodeRepo) Create(_ context.Context, code *domain.AccessCode) (*domain.AccessCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *code
	cp.ID = f.nextID
	f.nextID++
	cp.IsActive = true
	cp.CreatedAt = time.Now()
	f.codes[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeAccessCodeRepo) GetActive(_ context.Context, propertyID int64) (*domain.AccessCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *domain.AccessCode
	now := time.Now()
	for _, c := range f.codes {
		if c.PropertyID != propertyID || !c.Usable(now) {
			continue
		}
		if best == nil || c.CreatedAt.After(best.CreatedAt) {
			best = c
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (f *fakeAccessCodeRepo) GetByCode(_ context.Context, code string, propertyID int64) (*domain.AccessCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.codes {
		if c.PropertyID == propertyID && c.Code == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeAccessCodeRepo) IncrementUse(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.codes[id]; ok {
		c.UseCount++
	}
	return nil
}

func (f *fakeAccessCodeRepo) ListByProperty(_ context.Context, propertyID int64, limit, offset int) ([]domain.AccessCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AccessCode
	for _, c := range f.codes {
		if c.PropertyID == propertyID {
			out = append(out, *c)
		}
	}
	return out, nil
}

type fakeAccessRequestRepo struct {
	mu       sync.Mutex
	nextID   int64
	requests map[int64]*domain.AccessRequest
	owners   map[int64]int64 // propertyID -> ownerID, for ListPendingByOwner
}

func newFakeAccessRequestRepo() *fakeAccessRequestRepo {
	return &fakeAccessRequestRepo{
		nextID:   1,
		requests: make(map[int64]*domain.AccessRequest),
		owners:   make(map[int64]int64),
	}
}

func (f *fakeAccessRequestRepo) Create(_ context.Context, req *domain.AccessRequest) (*domain.AccessRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.PropertyID == req.PropertyID && r.RequesterPhone == req.RequesterPhone &&
			r.RequesterEmail == req.RequesterEmail && r.Status == domain.StatusPending {
			return nil, postgres.ErrDuplicatePending
		}
	}
	cp := *req
	cp.ID = f.nextID
	f.nextID++
	cp.Status = domain.StatusPending
	cp.CreatedAt = time.Now()
	f.requests[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeAccessRequestRepo) GetByID(_ context.Context, id int64) (*domain.AccessRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (f *fakeAccessRequestRepo) GetByToken(_ context.Context, token string) (*domain.AccessRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.VerificationToken == token {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeAccessRequestRepo) HasPending(_ context.Context, propertyID int64, phone, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.PropertyID == propertyID && r.RequesterPhone == phone &&
			r.RequesterEmail == email && r.Status == domain.StatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAccessRequestRepo) Decide(_ context.Context, id int64, token string, status domain.RequestStatus) (*domain.AccessRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok || r.VerificationToken != token {
		return nil, nil
	}
	if r.Status != domain.StatusPending && r.Status != domain.StatusVerified {
		return nil, nil
	}
	r.Status = status
	if status == domain.StatusApproved {
		now := time.Now()
		r.ApprovedAt = &now
	}
	cp := *r
	return &cp, nil
}

func (f *fakeAccessRequestRepo) MarkVerified(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok || r.Status != domain.StatusPending {
		return false, nil
	}
	r.Status = domain.StatusVerified
	return true, nil
}

func (f *fakeAccessRequestRepo) MarkExpired(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok || r.Status != domain.StatusPending {
		return false, nil
	}
	r.Status = domain.StatusExpired
	return true, nil
}

func (f *fakeAccessRequestRepo) ExpireStale(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	now := time.Now()
	for _, r := range f.requests {
		if r.Status == domain.StatusPending && now.After(r.ExpiresAt) {
			r.Status = domain.StatusExpired
			n++
		}
	}
	return n, nil
}

func (f *fakeAccessRequestRepo) ListPendingByOwner(_ context.Context, ownerID int64, limit, offset int) ([]domain.AccessRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AccessRequest
	now := time.Now()
	for _, r := range f.requests {
		if f.owners[r.PropertyID] == ownerID && r.Status == domain.StatusPending && r.ExpiresAt.After(now) {
			out = append(out, *r)
		}
	}
	return out, nil
}

type fakeVerificationRepo struct {
	mu     sync.Mutex
	nextID int64
	codes  map[int64]*domain.VerificationCode
}

func newFakeVerificationRepo() *fakeVerificationRepo {
	return &fakeVerificationRepo{nextID: 1, codes: make(map[int64]*domain.VerificationCode)}
}

func (f *fakeVerificationRepo) Create(_ context.Context, code *domain.VerificationCode) (*domain.VerificationCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *code
	cp.ID = f.nextID
	f.nextID++
	cp.CreatedAt = time.Now()
	f.codes[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeVerificationRepo) GetLatestUnverified(_ context.Context, requestID int64) (*domain.VerificationCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *domain.VerificationCode
	for _, c := range f.codes {
		if c.RequestID != requestID || c.VerifiedAt != nil {
			continue
		}
		if latest == nil || c.ID > latest.ID {
			latest = c
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeVerificationRepo) IncrementAttempts(_ context.Context, id int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.codes[id]
	c.Attempts++
	return c.Attempts, nil
}

func (f *fakeVerificationRepo) MarkVerified(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.codes[id]
	if !ok || c.VerifiedAt != nil {
		return false, nil
	}
	now := time.Now()
	c.VerifiedAt = &now
	return true, nil
}

func (f *fakeVerificationRepo) DeleteExpired(_ context.Context) (int64, error) { return 0, nil }

type fakeDomainRuleRepo struct {
	mu       sync.Mutex
	nextID   int64
	allow    map[string]*domain.DomainRule
	block    map[string]*domain.DomainRule
	allowErr error
	blockErr error
}

func newFakeDomainRuleRepo() *fakeDomainRuleRepo {
	return &fakeDomainRuleRepo{
		nextID: 1,
		allow:  make(map[string]*domain.DomainRule),
		block:  make(map[string]*domain.DomainRule),
	}
}

func (f *fakeDomainRuleRepo) getActive(rules map[string]*domain.DomainRule, dom string) (*domain.DomainRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := rules[dom]
	if !ok || !r.IsActive {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (f *fakeDomainRuleRepo) insert(rules map[string]*domain.DomainRule, rule *domain.DomainRule) (*domain.DomainRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *rule
	cp.ID = f.nextID
	f.nextID++
	cp.IsActive = true
	cp.CreatedAt = time.Now()
	rules[cp.Domain] = &cp
	out := cp
	return &out, nil
}

func (f *fakeDomainRuleRepo) GetActiveAllow(_ context.Context, dom string) (*domain.DomainRule, error) {
	if f.allowErr != nil {
		return nil, f.allowErr
	}
	return f.getActive(f.allow, dom)
}

func (f *fakeDomainRuleRepo) GetActiveBlock(_ context.Context, dom string) (*domain.DomainRule, error) {
	if f.blockErr != nil {
		return nil, f.blockErr
	}
	return f.getActive(f.block, dom)
}

func (f *fakeDomainRuleRepo) InsertAllow(_ context.Context, rule *domain.DomainRule) (*domain.DomainRule, error) {
	return f.insert(f.allow, rule)
}

func (f *fakeDomainRuleRepo) InsertBlock(_ context.Context, rule *domain.DomainRule) (*domain.DomainRule, error) {
	return f.insert(f.block, rule)
}

func (f *fakeDomainRuleRepo) update(rules map[string]*domain.DomainRule, id int64, upd *domain.DomainRuleUpdate) (*domain.DomainRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, r := range rules {
		if r.ID != id {
			continue
		}
		if upd.Domain != nil {
			delete(rules, key)
			r.Domain = *upd.Domain
			rules[r.Domain] = r
		}
		if upd.Reason != nil {
			r.Reason = *upd.Reason
		}
		if upd.IsActive != nil {
			r.IsActive = *upd.IsActive
		}
		if upd.ClearExpiry {
			r.ExpiresAt = nil
		} else if upd.ExpiresAt != nil {
			r.ExpiresAt = upd.ExpiresAt
		}
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeDomainRuleRepo) UpdateAllow(_ context.Context, id int64, upd *domain.DomainRuleUpdate) (*domain.DomainRule, error) {
	return f.update(f.allow, id, upd)
}

func (f *fakeDomainRuleRepo) UpdateBlock(_ context.Context, id int64, upd *domain.DomainRuleUpdate) (*domain.DomainRule, error) {
	return f.update(f.block, id, upd)
}

func (f *fakeDomainRuleRepo) delete(rules map[string]*domain.DomainRule, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, r := range rules {
		if r.ID == id {
			delete(rules, key)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeDomainRuleRepo) DeleteAllow(_ context.Context, id int64) (bool, error) {
	return f.delete(f.allow, id)
}

func (f *fakeDomainRuleRepo) DeleteBlock(_ context.Context, id int64) (bool, error) {
	return f.delete(f.block, id)
}

func (f *fakeDomainRuleRepo) ListAllow(_ context.Context, limit, offset int) ([]domain.DomainRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DomainRule
	for _, r := range f.allow {
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeDomainRuleRepo) ListBlock(_ context.Context, limit, offset int) ([]domain.DomainRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DomainRule
	for _, r := range f.block {
		out = append(out, *r)
	}
	return out, nil
}

type fakeAccessLogRepo struct {
	mu      sync.Mutex
	nextID  int64
	entries []domain.AccessLogEntry
}

func newFakeAccessLogRepo() *fakeAccessLogRepo {
	return &fakeAccessLogRepo{nextID: 1}
}

func (f *fakeAccessLogRepo) Append(_ context.Context, entry *domain.AccessLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *entry
	cp.ID = f.nextID
	f.nextID++
	cp.UsedAt = time.Now()
	f.entries = append(f.entries, cp)
	return nil
}

func (f *fakeAccessLogRepo) ListByProperty(_ context.Context, propertyID int64, limit, offset int) ([]domain.AccessLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AccessLogEntry
	for _, e := range f.entries {
		if e.PropertyID == propertyID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAccessLogRepo) byMethod(method domain.AccessMethod) []domain.AccessLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AccessLogEntry
	for _, e := range f.entries {
		if e.AccessMethod == method {
			out = append(out, e)
		}
	}
	return out
}

type publishedEvent struct {
	Subject string
	Data    interface{}
}

type fakeEventBus struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (f *fakeEventBus) Publish(_ context.Context, subject string, data interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{Subject: subject, Data: data})
	return nil
}

func (f *fakeEventBus) Close() error { return nil }

func (f *fakeEventBus) bySubject(subject string) []publishedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []publishedEvent
	for _, e := range f.events {
		if e.Subject == subject {
			out = append(out, e)
		}
	}
	return out
}
