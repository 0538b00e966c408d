package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/mysafehouse/access-api/internal/domain"
	"github.com/mysafehouse/access-api/internal/platform/geo"
	"github.com/mysafehouse/access-api/internal/repo/postgres"
	"github.com/mysafehouse/access-api/internal/utils"
	"github.com/mysafehouse/access-api/pkg/config"
	"github.com/mysafehouse/access-api/pkg/events"
	"github.com/mysafehouse/access-api/pkg/logger"
)

// RequestEngine is the access-request lifecycle state machine.
//
// pending -> {verified, approved, denied, expired}
// verified -> {approved, denied}
// approved, denied and expired are terminal.
type RequestEngine interface {
	Create(ctx context.Context, req *domain.CreateAccessRequestReq) (*domain.CreateAccessRequestRes, error)
	Verify(ctx context.Context, token, submittedCode string) (*domain.VerifyAccessRequestRes, error)
	// Decide authorizes by bearer token alone (owner-action links).
	Decide(ctx context.Context, requestID int64, token, action string) (*domain.DecideAccessRequestRes, error)
	// DecideAsOwner authorizes by property ownership (authenticated API).
	DecideAsOwner(ctx context.Context, ownerID, requestID int64, action string) (*domain.DecideAccessRequestRes, error)
	ListPending(ctx context.Context, ownerID int64, limit, offset int) ([]domain.AccessRequest, error)
	// ExpireStale sweeps pending requests past their deadline; expiry is
	// otherwise applied lazily on reads.
	ExpireStale(ctx context.Context) (int64, error)
}

type requestEngine struct {
	requests   postgres.AccessRequestRepo
	codes      postgres.AccessCodeRepo
	properties postgres.PropertyRepo
	accessLog  postgres.AccessLogRepo
	registry   CodeRegistry
	verifier   Verifier
	policy     DomainPolicy
	eventBus   events.Publisher
	config     *config.Config
}

func NewRequestEngine(
	requests postgres.AccessRequestRepo,
	codes postgres.AccessCodeRepo,
	properties postgres.PropertyRepo,
	accessLog postgres.AccessLogRepo,
	registry CodeRegistry,
	verifier Verifier,
	policy DomainPolicy,
	eventBus events.Publisher,
	cfg *config.Config,
) RequestEngine {
	return &requestEngine{
		requests:   requests,
		codes:      codes,
		properties: properties,
		accessLog:  accessLog,
		registry:   registry,
		verifier:   verifier,
		policy:     policy,
		eventBus:   eventBus,
		config:     cfg,
	}
}

// newVerificationToken returns 32 random bytes as hex; it is the sole bearer
// credential for owner-action links and must not be predictable.
func newVerificationToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate verification token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (s *requestEngine) Create(ctx context.Context, req *domain.CreateAccessRequestReq) (*domain.CreateAccessRequestRes, error) {
	email := utils.NormalizeEmail(req.RequesterEmail)
	phone := utils.NormalizePhone(req.RequesterPhone)
	if email == "" && phone == "" {
		return nil, domain.E(domain.KindInvalidInput, "Requester contact info is required")
	}

	property, err := s.properties.GetByID(ctx, req.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load property: %w", err)
	}
	if property == nil {
		return nil, domain.E(domain.KindNotFound, "Property not found")
	}
	if !property.EmergencyAccessEnabled {
		return nil, domain.E(domain.KindForbidden, "Emergency access is not enabled for this property")
	}

	accessCode, _, err := s.registry.EnsureActiveCode(ctx, property.ID)
	if err != nil {
		return nil, err
	}

	// Advisory only: the verdict rides along in the response but does not
	// gate the request.
	var domainCheck *domain.DomainCheck
	if email != "" {
		dc := s.policy.CheckDomain(ctx, email)
		domainCheck = &dc
	}

	// Application-level pre-check; the partial unique index is the real guard.
	pending, err := s.requests.HasPending(ctx, property.ID, phone, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check for pending request: %w", err)
	}
	if pending {
		return nil, domain.E(domain.KindConflict, "Access request already pending for this contact")
	}

	token, err := newVerificationToken()
	if err != nil {
		return nil, err
	}

	var locationVerified *bool
	if req.Latitude != nil && req.Longitude != nil && property.Latitude != nil && property.Longitude != nil {
		v := geo.WithinRadius(*req.Latitude, *req.Longitude, *property.Latitude, *property.Longitude, s.config.Access.ProximityRadiusKm)
		locationVerified = &v
	}

	created, err := s.requests.Create(ctx, &domain.AccessRequest{
		PropertyID:        property.ID,
		RequesterEmail:    email,
		RequesterPhone:    phone,
		RequesterName:     req.RequesterName,
		AccessCodeEntered: accessCode.Code,
		VerificationToken: token,
		IPAddress:         req.IPAddress,
		UserAgent:         req.UserAgent,
		LocationData:      req.LocationData,
		LocationVerified:  locationVerified,
		ExpiresAt:         time.Now().Add(s.config.Access.RequestTTL),
	})
	if err != nil {
		if errors.Is(err, postgres.ErrDuplicatePending) {
			return nil, domain.E(domain.KindConflict, "Access request already pending for this contact")
		}
		return nil, fmt.Errorf("failed to create access request: %w", err)
	}

	plaintext, _, err := s.verifier.Issue(ctx, created.ID, phone, email)
	if err != nil {
		// The request stands; the requester can ask for a resend.
		logger.ErrorContext(ctx, "Failed to issue verification code", "request_id", created.ID, "error", err)
	}

	s.appendLog(ctx, &domain.AccessLogEntry{
		PropertyID:    property.ID,
		UsedByName:    created.RequesterName,
		UsedByContact: created.Contact(),
		AccessMethod:  domain.MethodRequestCreated,
		RequestID:     &created.ID,
	})

	s.publish(ctx, events.AccessRequestCreated, events.AccessRequestCreatedEvent{
		RequestID:         created.ID,
		PropertyID:        property.ID,
		RequesterName:     created.RequesterName,
		RequesterEmail:    created.RequesterEmail,
		RequesterPhone:    created.RequesterPhone,
		VerificationToken: created.VerificationToken,
		VerificationCode:  plaintext,
		ExpiresAt:         created.ExpiresAt,
		CreatedAt:         created.CreatedAt,
	})

	return &domain.CreateAccessRequestRes{
		Request: domain.AccessRequestPublic{
			ID:                created.ID,
			VerificationToken: created.VerificationToken,
			Status:            string(created.Status),
			ExpiresAt:         created.ExpiresAt,
			Property: domain.PropertyPublic{
				Name:    property.Name,
				Address: property.Address,
			},
		},
		DomainCheck: domainCheck,
		Message:     "Access code sent to your email. Please check your email and enter the code to complete your request.",
	}, nil
}

func (s *requestEngine) Verify(ctx context.Context, token, submittedCode string) (*domain.VerifyAccessRequestRes, error) {
	request, err := s.requests.GetByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to load access request: %w", err)
	}
	if request == nil {
		return nil, domain.E(domain.KindNotFound, "Invalid or expired verification token")
	}
	if request.Status != domain.StatusPending {
		return nil, domain.E(domain.KindGone, "Access request has already been processed")
	}

	if time.Now().After(request.ExpiresAt) {
		if _, err := s.requests.MarkExpired(ctx, request.ID); err != nil {
			logger.WarnContext(ctx, "Failed to expire access request", "request_id", request.ID, "error", err)
		}
		return nil, domain.E(domain.KindGone, "Access request has expired")
	}

	if err := s.verifier.Check(ctx, request.ID, submittedCode); err != nil {
		if domain.KindOf(err) == domain.KindTooManyAttempts {
			s.denyExhausted(ctx, request)
		}
		return nil, err
	}

	ok, err := s.requests.MarkVerified(ctx, request.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark request verified: %w", err)
	}
	if !ok {
		return nil, domain.E(domain.KindGone, "Access request has already been processed")
	}

	s.appendLog(ctx, &domain.AccessLogEntry{
		PropertyID:    request.PropertyID,
		UsedByName:    request.RequesterName,
		UsedByContact: request.Contact(),
		AccessMethod:  domain.MethodRequestVerified,
		RequestID:     &request.ID,
	})

	s.publish(ctx, events.AccessRequestVerified, events.AccessRequestVerifiedEvent{
		RequestID:  request.ID,
		PropertyID: request.PropertyID,
		VerifiedAt: time.Now(),
	})

	return &domain.VerifyAccessRequestRes{
		Status:  string(domain.StatusVerified),
		Message: "Verification successful. Your access request is being reviewed.",
	}, nil
}

// denyExhausted force-denies a request whose verification attempts ran out.
// The conditional update makes it a no-op if the owner already decided.
func (s *requestEngine) denyExhausted(ctx context.Context, request *domain.AccessRequest) {
	denied, err := s.requests.Decide(ctx, request.ID, request.VerificationToken, domain.StatusDenied)
	if err != nil || denied == nil {
		if err != nil {
			logger.ErrorContext(ctx, "Failed to deny exhausted request", "request_id", request.ID, "error", err)
		}
		return
	}

	s.appendLog(ctx, &domain.AccessLogEntry{
		PropertyID:    request.PropertyID,
		UsedByName:    request.RequesterName,
		UsedByContact: request.Contact(),
		AccessMethod:  domain.MethodRequestDenied,
		RequestID:     &request.ID,
	})

	s.publish(ctx, events.AccessRequestDenied, events.AccessRequestDecidedEvent{
		RequestID:  request.ID,
		PropertyID: request.PropertyID,
		Approved:   false,
		DecidedAt:  time.Now(),
	})
}

func (s *requestEngine) Decide(ctx context.Context, requestID int64, token, action string) (*domain.DecideAccessRequestRes, error) {
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load access request: %w", err)
	}
	// A missing request and a wrong token are deliberately the same error,
	// so the endpoint cannot be used as an existence oracle.
	if request == nil || request.VerificationToken != token {
		return nil, domain.E(domain.KindForbidden, "Invalid access request or token")
	}
	return s.decide(ctx, request, action)
}

func (s *requestEngine) DecideAsOwner(ctx context.Context, ownerID, requestID int64, action string) (*domain.DecideAccessRequestRes, error) {
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load access request: %w", err)
	}
	if request == nil {
		return nil, domain.E(domain.KindNotFound, "Access request not found")
	}

	owns, err := s.properties.OwnsProperty(ctx, ownerID, request.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to check property ownership: %w", err)
	}
	if !owns {
		return nil, domain.E(domain.KindForbidden, "You do not have permission to decide this request")
	}

	return s.decide(ctx, request, action)
}

func (s *requestEngine) decide(ctx context.Context, request *domain.AccessRequest, action string) (*domain.DecideAccessRequestRes, error) {
	if action != "approve" && action != "deny" {
		return nil, domain.E(domain.KindInvalidInput, `Invalid action. Must be "approve" or "deny"`)
	}

	if request.Status.Terminal() {
		return alreadyProcessed(request), nil
	}

	if request.Status == domain.StatusPending && time.Now().After(request.ExpiresAt) {
		if _, err := s.requests.MarkExpired(ctx, request.ID); err != nil {
			logger.WarnContext(ctx, "Failed to expire access request", "request_id", request.ID, "error", err)
		}
		return nil, domain.E(domain.KindGone, "Access request has expired")
	}

	newStatus := domain.StatusApproved
	if action == "deny" {
		newStatus = domain.StatusDenied
	}

	// The conditional write is the concurrency guarantee: of two concurrent
	// clicks only one affects a row, and the loser gets the idempotent
	// already-processed answer.
	updated, err := s.requests.Decide(ctx, request.ID, request.VerificationToken, newStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to update access request: %w", err)
	}
	if updated == nil {
		current, err := s.requests.GetByID(ctx, request.ID)
		if err != nil || current == nil {
			return nil, fmt.Errorf("failed to reload access request: %w", err)
		}
		return alreadyProcessed(current), nil
	}

	if newStatus == domain.StatusApproved {
		s.recordDisclosure(ctx, updated)
	}

	decisionMethod := domain.MethodRequestApproved
	if newStatus == domain.StatusDenied {
		decisionMethod = domain.MethodRequestDenied
	}
	s.appendLog(ctx, &domain.AccessLogEntry{
		PropertyID:    updated.PropertyID,
		UsedByName:    updated.RequesterName,
		UsedByContact: updated.Contact(),
		AccessMethod:  decisionMethod,
		RequestID:     &updated.ID,
	})

	subject := events.AccessRequestApproved
	if newStatus == domain.StatusDenied {
		subject = events.AccessRequestDenied
	}
	s.publish(ctx, subject, events.AccessRequestDecidedEvent{
		RequestID:  updated.ID,
		PropertyID: updated.PropertyID,
		Approved:   newStatus == domain.StatusApproved,
		DecidedAt:  time.Now(),
	})

	return &domain.DecideAccessRequestRes{
		ID:      updated.ID,
		Status:  string(updated.Status),
		Message: fmt.Sprintf("Access request %sd successfully", action),
	}, nil
}

// recordDisclosure counts the code use and appends the disclosure audit
// entry. Runs only after the approved transition is durable.
func (s *requestEngine) recordDisclosure(ctx context.Context, request *domain.AccessRequest) {
	code, err := s.codes.GetByCode(ctx, request.AccessCodeEntered, request.PropertyID)
	if err != nil || code == nil {
		if err != nil {
			logger.ErrorContext(ctx, "Failed to look up access code for disclosure", "request_id", request.ID, "error", err)
		}
		return
	}

	if err := s.codes.IncrementUse(ctx, code.ID); err != nil {
		logger.ErrorContext(ctx, "Failed to increment access code use count", "code_id", code.ID, "error", err)
	}

	s.appendLog(ctx, &domain.AccessLogEntry{
		AccessCodeID:  &code.ID,
		PropertyID:    request.PropertyID,
		UsedByName:    request.RequesterName,
		UsedByContact: request.Contact(),
		AccessMethod:  domain.MethodQRScanVerified,
		LocationData:  request.LocationData,
		RequestID:     &request.ID,
	})
}

func alreadyProcessed(request *domain.AccessRequest) *domain.DecideAccessRequestRes {
	var msg string
	switch request.Status {
	case domain.StatusApproved:
		msg = "This access request has already been approved."
	case domain.StatusDenied:
		msg = "This access request has already been denied."
	default:
		msg = "This access request can no longer be modified."
	}
	return &domain.DecideAccessRequestRes{
		ID:               request.ID,
		Status:           string(request.Status),
		AlreadyProcessed: true,
		Message:          msg,
	}
}

func (s *requestEngine) ListPending(ctx context.Context, ownerID int64, limit, offset int) ([]domain.AccessRequest, error) {
	return s.requests.ListPendingByOwner(ctx, ownerID, limit, offset)
}

func (s *requestEngine) ExpireStale(ctx context.Context) (int64, error) {
	return s.requests.ExpireStale(ctx)
}

// appendLog is best-effort: the audit trail must never undo a committed
// transition.
func (s *requestEngine) appendLog(ctx context.Context, entry *domain.AccessLogEntry) {
	if err := s.accessLog.Append(ctx, entry); err != nil {
		logger.WarnContext(ctx, "Failed to append access log entry",
			"property_id", entry.PropertyID,
			"method", string(entry.AccessMethod),
			"error", err,
		)
	}
}

// publish is best-effort; notification failure never rolls back a decision.
func (s *requestEngine) publish(ctx context.Context, subject string, event interface{}) {
	if err := s.eventBus.Publish(ctx, subject, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish event", "subject", subject, "error", err)
	}
}
