package domain

import (
	"encoding/json"
	"time"
)

// CreateAccessRequestReq is the public request-creation body. Requester must
// supply at least one contact channel; validated at the boundary.
type CreateAccessRequestReq struct {
	PropertyID     int64           `json:"property_id" validate:"required,gt=0"`
	RequesterEmail string          `json:"requester_email" validate:"omitempty,email"`
	RequesterPhone string          `json:"requester_phone" validate:"omitempty,e164"`
	RequesterName  string          `json:"requester_name" validate:"omitempty,max=120"`
	LocationData   json.RawMessage `json:"location_data,omitempty"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	// filled in by the handler, never trusted from the body
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

type CreateAccessRequestRes struct {
	Request     AccessRequestPublic `json:"request"`
	DomainCheck *DomainCheck        `json:"domain_check,omitempty"`
	Message     string              `json:"message"`
}

// AccessRequestPublic is the requester-facing view: the opaque token for flow
// continuation, never the numeric verification code.
type AccessRequestPublic struct {
	ID                int64          `json:"id"`
	VerificationToken string         `json:"verification_token"`
	Status            string         `json:"status"`
	ExpiresAt         time.Time      `json:"expires_at"`
	Property          PropertyPublic `json:"property"`
}

type PropertyPublic struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type VerifyAccessRequestReq struct {
	VerificationToken string `json:"verification_token" validate:"required"`
	VerificationCode  string `json:"verification_code" validate:"required,len=6,numeric"`
}

type VerifyAccessRequestRes struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type DecideAccessRequestReq struct {
	RequestID int64  `json:"request_id" validate:"required,gt=0"`
	Action    string `json:"action" validate:"required,oneof=approve deny"`
}

type DecideAccessRequestRes struct {
	ID               int64  `json:"id"`
	Status           string `json:"status"`
	AlreadyProcessed bool   `json:"already_processed,omitempty"`
	Message          string `json:"message"`
}

type GenerateAccessCodeReq struct {
	PropertyID     int64  `json:"property_id" validate:"required,gt=0"`
	CodeType       string `json:"code_type" validate:"omitempty,oneof=emergency guest service"`
	GrantedTo      string `json:"granted_to" validate:"omitempty,max=120"`
	Reason         string `json:"reason" validate:"omitempty,max=255"`
	ExpiresInHours int    `json:"expires_in_hours" validate:"omitempty,gt=0,lte=8760"`
	MaxUses        *int   `json:"max_uses" validate:"omitempty,gt=0"`
}

type ValidateAccessCodeReq struct {
	AccessCode    string          `json:"access_code" validate:"required"`
	PropertyID    int64           `json:"property_id" validate:"required,gt=0"`
	UsedByName    string          `json:"used_by_name" validate:"omitempty,max=120"`
	UsedByContact string          `json:"used_by_contact" validate:"omitempty,max=120"`
	AccessMethod  string          `json:"access_method" validate:"omitempty,oneof=QR_SCAN MANUAL_ENTRY NFC"`
	LocationData  json.RawMessage `json:"location_data,omitempty"`
}

type ValidateAccessCodeRes struct {
	Valid    bool            `json:"valid"`
	Message  string          `json:"message"`
	Property *PropertyPublic `json:"property,omitempty"`
}

type CheckDomainReq struct {
	Email string `json:"email" validate:"required,email"`
}

type AddDomainRuleReq struct {
	Domain    string     `json:"domain" validate:"required,fqdn"`
	Reason    string     `json:"reason" validate:"omitempty,max=255"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type UpdateDomainRuleReq struct {
	Domain      *string    `json:"domain" validate:"omitempty,fqdn"`
	Reason      *string    `json:"reason" validate:"omitempty,max=255"`
	IsActive    *bool      `json:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at"`
	ClearExpiry bool       `json:"clear_expiry"`
}

// AccessRequestDTO is the owner-facing listing view.
type AccessRequestDTO struct {
	ID             int64     `json:"id"`
	PropertyID     int64     `json:"property_id"`
	RequesterName  string    `json:"requester_name,omitempty"`
	RequesterEmail string    `json:"requester_email,omitempty"`
	RequesterPhone string    `json:"requester_phone,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type AccessLogDTO struct {
	ID            int64           `json:"id"`
	AccessCodeID  *int64          `json:"access_code_id,omitempty"`
	PropertyID    int64           `json:"property_id"`
	UsedByName    string          `json:"used_by_name,omitempty"`
	UsedByContact string          `json:"used_by_contact,omitempty"`
	AccessMethod  string          `json:"access_method"`
	LocationData  json.RawMessage `json:"location_data,omitempty"`
	RequestID     *int64          `json:"request_id,omitempty"`
	UsedAt        time.Time       `json:"used_at"`
}
