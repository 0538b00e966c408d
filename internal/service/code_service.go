package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/mysafehouse/access-api/internal/domain"
	"github.com/mysafehouse/access-api/internal/repo/postgres"
	"github.com/mysafehouse/access-api/pkg/config"
	"github.com/mysafehouse/access-api/pkg/logger"
)

// CodeRegistry owns per-property access codes: creation, lookup, usability
// enforcement and use accounting.
type CodeRegistry interface {
	GetActiveCode(ctx context.Context, propertyID int64) (*domain.AccessCode, error)
	// EnsureActiveCode auto-provisions a 1-year unlimited-use emergency code
	// when the property has none, so a request is never blocked just because
	// the owner forgot to generate one. The bool reports whether a code was
	// created.
	EnsureActiveCode(ctx context.Context, propertyID int64) (*domain.AccessCode, bool, error)
	Generate(ctx context.Context, ownerID int64, req *domain.GenerateAccessCodeReq) (*domain.AccessCode, error)
	Validate(ctx context.Context, req *domain.ValidateAccessCodeReq) (*domain.ValidateAccessCodeRes, error)
	RecordUse(ctx context.Context, codeID int64) error
	ListByProperty(ctx context.Context, ownerID, propertyID int64, limit, offset int) ([]domain.AccessCode, error)
}

type codeRegistry struct {
	codes      postgres.AccessCodeRepo
	properties postgres.PropertyRepo
	accessLog  postgres.AccessLogRepo
	config     *config.Config
}

func NewCodeRegistry(
	codes postgres.AccessCodeRepo,
	properties postgres.PropertyRepo,
	accessLog postgres.AccessLogRepo,
	cfg *config.Config,
) CodeRegistry {
	return &codeRegistry{
		codes:      codes,
		properties: properties,
		accessLog:  accessLog,
		config:     cfg,
	}
}

// newOpaqueCode renders 4 random bytes as uppercase hex, the same shape
// owners see on generated codes.
func newOpaqueCode() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate access code: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}

func (s *codeRegistry) GetActiveCode(ctx context.Context, propertyID int64) (*domain.AccessCode, error) {
	return s.codes.GetActive(ctx, propertyID)
}

func (s *codeRegistry) EnsureActiveCode(ctx context.Context, propertyID int64) (*domain.AccessCode, bool, error) {
	existing, err := s.codes.GetActive(ctx, propertyID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up active access code: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	raw, err := newOpaqueCode()
	if err != nil {
		return nil, false, err
	}

	created, err := s.codes.Create(ctx, &domain.AccessCode{
		PropertyID: propertyID,
		Code:       raw,
		CodeType:   "emergency",
		GrantedTo:  "Emergency Access",
		Reason:     "Auto-generated for emergency access request",
		ExpiresAt:  time.Now().Add(s.config.Access.AutoCodeTTL),
		MaxUses:    nil, // unlimited
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to create access code: %w", err)
	}

	logger.InfoContext(ctx, "Auto-provisioned emergency access code", "property_id", propertyID, "code_id", created.ID)
	return created, true, nil
}

func (s *codeRegistry) Generate(ctx context.Context, ownerID int64, req *domain.GenerateAccessCodeReq) (*domain.AccessCode, error) {
	owns, err := s.properties.OwnsProperty(ctx, ownerID, req.PropertyID)
	if err != nil {
		return nil, err
	}
	if !owns {
		return nil, domain.E(domain.KindForbidden, "You do not own this property")
	}

	raw, err := newOpaqueCode()
	if err != nil {
		return nil, err
	}

	codeType := req.CodeType
	if codeType == "" {
		codeType = "emergency"
	}
	hours := req.ExpiresInHours
	if hours <= 0 {
		hours = 24
	}

	return s.codes.Create(ctx, &domain.AccessCode{
		PropertyID:      req.PropertyID,
		Code:            raw,
		CodeType:        codeType,
		GrantedTo:       req.GrantedTo,
		Reason:          req.Reason,
		GrantedByUserID: &ownerID,
		ExpiresAt:       time.Now().Add(time.Duration(hours) * time.Hour),
		MaxUses:         req.MaxUses,
	})
}

func (s *codeRegistry) Validate(ctx context.Context, req *domain.ValidateAccessCodeReq) (*domain.ValidateAccessCodeRes, error) {
	code, err := s.codes.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(req.AccessCode)), req.PropertyID)
	if err != nil {
		return nil, err
	}
	if code == nil || !code.IsActive {
		return &domain.ValidateAccessCodeRes{Valid: false, Message: "Invalid access code"}, nil
	}

	now := time.Now()
	if !now.Before(code.ExpiresAt) {
		return &domain.ValidateAccessCodeRes{Valid: false, Message: "Access code has expired"}, nil
	}
	if code.MaxUses != nil && code.UseCount >= *code.MaxUses {
		return &domain.ValidateAccessCodeRes{Valid: false, Message: "Access code has reached maximum uses"}, nil
	}

	property, err := s.properties.GetByID(ctx, req.PropertyID)
	if err != nil {
		return nil, err
	}
	if property == nil || !property.EmergencyAccessEnabled {
		return &domain.ValidateAccessCodeRes{Valid: false, Message: "Emergency access is disabled for this property"}, nil
	}

	method := domain.AccessMethod(req.AccessMethod)
	if method == "" {
		method = domain.MethodManualEntry
	}

	if err := s.accessLog.Append(ctx, &domain.AccessLogEntry{
		AccessCodeID:  &code.ID,
		PropertyID:    req.PropertyID,
		UsedByName:    req.UsedByName,
		UsedByContact: req.UsedByContact,
		AccessMethod:  method,
		LocationData:  req.LocationData,
	}); err != nil {
		logger.WarnContext(ctx, "Failed to log access code use", "code_id", code.ID, "error", err)
	}

	if err := s.codes.IncrementUse(ctx, code.ID); err != nil {
		logger.WarnContext(ctx, "Failed to increment access code use count", "code_id", code.ID, "error", err)
	}

	return &domain.ValidateAccessCodeRes{
		Valid:   true,
		Message: "Access granted",
		Property: &domain.PropertyPublic{
			Name:    property.Name,
			Address: property.Address,
		},
	}, nil
}

func (s *codeRegistry) RecordUse(ctx context.Context, codeID int64) error {
	return s.codes.IncrementUse(ctx, codeID)
}

func (s *codeRegistry) ListByProperty(ctx context.Context, ownerID, propertyID int64, limit, offset int) ([]domain.AccessCode, error) {
	owns, err := s.properties.OwnsProperty(ctx, ownerID, propertyID)
	if err != nil {
		return nil, err
	}
	if !owns {
		return nil, domain.E(domain.KindForbidden, "You do not own this property")
	}
	return s.codes.ListByProperty(ctx, propertyID, limit, offset)
}
