package domain

import (
	"time"
)

type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusVerified RequestStatus = "verified"
	StatusApproved RequestStatus = "approved"
	StatusDenied   RequestStatus = "denied"
	StatusExpired  RequestStatus = "expired"
)

func ParseRequestStatus(s string) (RequestStatus, bool) {
	switch RequestStatus(s) {
	case StatusPending, StatusVerified, StatusApproved, StatusDenied, StatusExpired:
		return RequestStatus(s), true
	}
	return "", false
}

// Terminal reports whether the status permits no further transitions.
func (s RequestStatus) Terminal() bool {
	return s == StatusApproved || s == StatusDenied || s == StatusExpired
}

// AccessMethod identifies how an access event happened in the audit log.
type AccessMethod string

const (
	MethodQRScan            AccessMethod = "QR_SCAN"
	MethodQRScanVerified    AccessMethod = "QR_SCAN_VERIFIED"
	MethodManualEntry       AccessMethod = "MANUAL_ENTRY"
	MethodNFC               AccessMethod = "NFC"
	MethodEmailVerification AccessMethod = "EMAIL_VERIFICATION"
	MethodRequestCreated    AccessMethod = "REQUEST_CREATED"
	MethodRequestVerified   AccessMethod = "REQUEST_VERIFIED"
	MethodRequestApproved   AccessMethod = "REQUEST_APPROVED"
	MethodRequestDenied     AccessMethod = "REQUEST_DENIED"
)

// Property is the collaborator entity the engine reads; CRUD lives elsewhere.
type Property struct {
	ID                     int64
	OwnerID                int64
	Name                   string
	Address                string
	City                   string
	State                  string
	PostalCode             string
	Latitude               *float64
	Longitude              *float64
	EmergencyAccessEnabled bool
	KeysafeLocation        string
	KeysafeCode            string
	What3Words             string
}

// DisplayAddress joins the populated address parts for notifications.
func (p *Property) DisplayAddress() string {
	parts := make([]string, 0, 4)
	for _, s := range []string{p.Address, p.City, p.State, p.PostalCode} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	out := ""
	for i, s := range parts {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}

type AccessCode struct {
	ID              int64
	PropertyID      int64
	Code            string
	CodeType        string
	GrantedTo       string
	Reason          string
	GrantedByUserID *int64
	ExpiresAt       time.Time
	MaxUses         *int
	UseCount        int
	IsActive        bool
	CreatedAt       time.Time
}

// Usable reports whether the code may still authorize access.
func (c *AccessCode) Usable(now time.Time) bool {
	if !c.IsActive || !now.Before(c.ExpiresAt) {
		return false
	}
	if c.MaxUses != nil && c.UseCount >= *c.MaxUses {
		return false
	}
	return true
}

type AccessRequest struct {
	ID                int64
	PropertyID        int64
	RequesterEmail    string
	RequesterPhone    string
	RequesterName     string
	AccessCodeEntered string
	VerificationToken string
	Status            RequestStatus
	IPAddress         string
	UserAgent         string
	LocationData      []byte // raw JSON as supplied by the requester
	LocationVerified  *bool
	CreatedAt         time.Time
	ExpiresAt         time.Time
	ApprovedAt        *time.Time
}

// Contact returns the best contact handle for audit entries.
func (r *AccessRequest) Contact() string {
	if r.RequesterPhone != "" {
		return r.RequesterPhone
	}
	return r.RequesterEmail
}

type VerificationCode struct {
	ID          int64
	RequestID   int64
	CodeHash    string
	Channel     string // "sms" or "email"
	ExpiresAt   time.Time
	Attempts    int
	MaxAttempts int
	VerifiedAt  *time.Time
	CreatedAt   time.Time
}

// DomainRule is one row of the allow or block list.
type DomainRule struct {
	ID        int64
	Domain    string
	Reason    string
	IsActive  bool
	ExpiresAt *time.Time
	CreatedBy *int64
	CreatedAt time.Time
}

// Expired reports whether the rule's optional expiry has passed.
func (d *DomainRule) Expired(now time.Time) bool {
	return d.ExpiresAt != nil && now.After(*d.ExpiresAt)
}

// DomainRuleUpdate is a partial update; nil fields keep their stored value.
// ClearExpiry removes the expiry outright, since a nil ExpiresAt alone cannot
// distinguish "leave it" from "remove it".
type DomainRuleUpdate struct {
	Domain      *string
	Reason      *string
	IsActive    *bool
	ExpiresAt   *time.Time
	ClearExpiry bool
}

// DomainCheck is the advisory result of evaluating an email's domain.
type DomainCheck struct {
	Allowed bool   `json:"allowed"`
	Domain  string `json:"domain,omitempty"`
	Message string `json:"message"`
}

type AccessLogEntry struct {
	ID            int64
	AccessCodeID  *int64
	PropertyID    int64
	UsedByName    string
	UsedByContact string
	AccessMethod  AccessMethod
	LocationData  []byte
	RequestID     *int64
	UsedAt        time.Time
}

// Contact is an owner's emergency contact; primary contacts receive
// access-request notifications.
type Contact struct {
	ID        int64
	UserID    int64
	Name      string
	Email     string
	Phone     string
	IsPrimary bool
}

// Profile is the property owner's notification identity.
type Profile struct {
	ID    int64
	Email string
	Phone string
	Name  string
}
