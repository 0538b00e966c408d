package notify_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mysafehouse/access-api/internal/domain"
	"github.com/mysafehouse/access-api/internal/notify"
	"github.com/mysafehouse/access-api/pkg/config"
	"github.com/mysafehouse/access-api/pkg/events"
)

// ---------- Mocks ----------

type sentEmail struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type mockMailer struct {
	mu    sync.Mutex
	sent  []sentEmail
	fails map[string]bool // addresses that error out
}

func (m *mockMailer) Send(toEmail, toName, subject, text, html string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fails[toEmail] {
		return "", context.DeadlineExceeded
	}
	m.sent = append(m.sent, sentEmail{To: toEmail, Subject: subject, Text: text, HTML: html})
	return "mock-id", nil
}

type mockSMS struct {
	mu   sync.Mutex
	sent []string // "number: body"
}

func (m *mockSMS) Send(toNumber, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, toNumber+": "+body)
	return nil
}

type stubPropertyRepo struct {
	property *domain.Property
	owner    *domain.Profile
}

func (s *stubPropertyRepo) GetByID(context.Context, int64) (*domain.Property, error) {
	return s.property, nil
}

func (s *stubPropertyRepo) GetOwnerProfile(context.Context, int64) (*domain.Profile, error) {
	return s.owner, nil
}

func (s *stubPropertyRepo) OwnsProperty(context.Context, int64, int64) (bool, error) {
	return true, nil
}

type stubContactRepo struct {
	contacts []domain.Contact
}

func (s *stubContactRepo) ListPrimaryByUser(context.Context, int64) ([]domain.Contact, error) {
	return s.contacts, nil
}

type stubRequestRepo struct {
	request *domain.AccessRequest
}

func (s *stubRequestRepo) GetByID(context.Context, int64) (*domain.AccessRequest, error) {
	return s.request, nil
}

func (s *stubRequestRepo) GetByToken(context.Context, string) (*domain.AccessRequest, error) {
	return s.request, nil
}
func (s *stubRequestRepo) Create(_ context.Context, r *domain.AccessRequest) (*domain.AccessRequest, error) {
	return r, nil
}
func (s *stubRequestRepo) HasPending(context.Context, int64, string, string) (bool, error) {
	return false, nil
}
func (s *stubRequestRepo) Decide(context.Context, int64, string, domain.RequestStatus) (*domain.AccessRequest, error) {
	return nil, nil
}
func (s *stubRequestRepo) MarkVerified(context.Context, int64) (bool, error)  { return false, nil }
func (s *stubRequestRepo) MarkExpired(context.Context, int64) (bool, error)   { return false, nil }
func (s *stubRequestRepo) ExpireStale(context.Context) (int64, error)         { return 0, nil }
func (s *stubRequestRepo) ListPendingByOwner(context.Context, int64, int, int) ([]domain.AccessRequest, error) {
	return nil, nil
}

// ---------- Tests ----------

func testProperty() *domain.Property {
	return &domain.Property{
		ID:                     1,
		OwnerID:                10,
		Name:                   "Rose Cottage",
		Address:                "12 Orchard Lane",
		City:                   "Bath",
		EmergencyAccessEnabled: true,
		KeysafeLocation:        "Left of the front door",
		KeysafeCode:            "2580",
	}
}

func createdEvent() *events.AccessRequestCreatedEvent {
	return &events.AccessRequestCreatedEvent{
		RequestID:         7,
		PropertyID:        1,
		RequesterName:     "Sam Carter",
		RequesterEmail:    "paramedic@nhs.uk",
		VerificationToken: "tok123",
		VerificationCode:  "042137",
		ExpiresAt:         time.Now().Add(15 * time.Minute),
		CreatedAt:         time.Now(),
	}
}

func TestNotifyRequesterOfCode_EmailOnly(t *testing.T) {
	mailerMock := &mockMailer{}
	smsMock := &mockSMS{}
	d := notify.NewDispatcher(
		&stubPropertyRepo{property: testProperty()},
		&stubContactRepo{},
		&stubRequestRepo{},
		mailerMock, smsMock, config.Load(),
	)

	d.NotifyRequesterOfCode(context.Background(), createdEvent())

	if len(mailerMock.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(mailerMock.sent))
	}
	mail := mailerMock.sent[0]
	if mail.To != "paramedic@nhs.uk" {
		t.Errorf("to = %s", mail.To)
	}
	if !strings.Contains(mail.Text, "042137") {
		t.Error("email text must carry the verification code")
	}
	// The code travels by email only.
	if len(smsMock.sent) != 0 {
		t.Errorf("verification code leaked over SMS: %v", smsMock.sent)
	}
}

func TestNotifyOwnerOfRequest_FansOutWithActionLinks(t *testing.T) {
	mailerMock := &mockMailer{}
	smsMock := &mockSMS{}
	cfg := config.Load()
	d := notify.NewDispatcher(
		&stubPropertyRepo{
			property: testProperty(),
			owner:    &domain.Profile{ID: 10, Email: "owner@example.com", Phone: "+447700900123", Name: "Jo"},
		},
		&stubContactRepo{contacts: []domain.Contact{
			{ID: 1, Name: "Neighbour", Email: "neighbour@example.com", IsPrimary: true},
		}},
		&stubRequestRepo{},
		mailerMock, smsMock, cfg,
	)

	d.NotifyOwnerOfRequest(context.Background(), createdEvent())

	if len(mailerMock.sent) != 2 {
		t.Fatalf("expected 2 emails (owner + contact), got %d", len(mailerMock.sent))
	}
	for _, mail := range mailerMock.sent {
		if !strings.Contains(mail.HTML, "/access-requests/7/action?token=tok123&action=approve") {
			t.Errorf("email to %s missing approve link", mail.To)
		}
		if !strings.Contains(mail.HTML, "action=deny") {
			t.Errorf("email to %s missing deny link", mail.To)
		}
		// Owner email must never contain the requester's verification code.
		if strings.Contains(mail.Text, "042137") || strings.Contains(mail.HTML, "042137") {
			t.Errorf("owner email to %s leaked the verification code", mail.To)
		}
	}

	if len(smsMock.sent) != 1 {
		t.Fatalf("expected 1 owner SMS, got %d", len(smsMock.sent))
	}
	if strings.Contains(smsMock.sent[0], "042137") {
		t.Error("SMS leaked the verification code")
	}
}

func TestNotifyOwnerOfRequest_OneBadAddressDoesNotSilenceRest(t *testing.T) {
	mailerMock := &mockMailer{fails: map[string]bool{"owner@example.com": true}}
	d := notify.NewDispatcher(
		&stubPropertyRepo{
			property: testProperty(),
			owner:    &domain.Profile{ID: 10, Email: "owner@example.com", Name: "Jo"},
		},
		&stubContactRepo{contacts: []domain.Contact{
			{ID: 1, Name: "Neighbour", Email: "neighbour@example.com", IsPrimary: true},
		}},
		&stubRequestRepo{},
		mailerMock, &mockSMS{}, config.Load(),
	)

	d.NotifyOwnerOfRequest(context.Background(), createdEvent())

	if len(mailerMock.sent) != 1 || mailerMock.sent[0].To != "neighbour@example.com" {
		t.Fatalf("contact should still be notified, sent: %+v", mailerMock.sent)
	}
}

func TestNotifyRequesterOfDecision_ApprovedDisclosesKeysafe(t *testing.T) {
	mailerMock := &mockMailer{}
	request := &domain.AccessRequest{
		ID:             7,
		PropertyID:     1,
		RequesterName:  "Sam Carter",
		RequesterEmail: "paramedic@nhs.uk",
		Status:         domain.StatusApproved,
	}
	d := notify.NewDispatcher(
		&stubPropertyRepo{property: testProperty()},
		&stubContactRepo{},
		&stubRequestRepo{request: request},
		mailerMock, &mockSMS{}, config.Load(),
	)

	d.NotifyRequesterOfDecision(context.Background(), &events.AccessRequestDecidedEvent{
		RequestID: 7, PropertyID: 1, Approved: true, DecidedAt: time.Now(),
	})

	if len(mailerMock.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(mailerMock.sent))
	}
	mail := mailerMock.sent[0]
	if !strings.Contains(mail.Text, "2580") || !strings.Contains(mail.Text, "Left of the front door") {
		t.Error("approval email must disclose the keysafe details")
	}
}

func TestNotifyRequesterOfDecision_DeniedWithholdsKeysafe(t *testing.T) {
	mailerMock := &mockMailer{}
	request := &domain.AccessRequest{
		ID:             7,
		PropertyID:     1,
		RequesterEmail: "paramedic@nhs.uk",
		Status:         domain.StatusDenied,
	}
	d := notify.NewDispatcher(
		&stubPropertyRepo{property: testProperty()},
		&stubContactRepo{},
		&stubRequestRepo{request: request},
		mailerMock, &mockSMS{}, config.Load(),
	)

	d.NotifyRequesterOfDecision(context.Background(), &events.AccessRequestDecidedEvent{
		RequestID: 7, PropertyID: 1, Approved: false, DecidedAt: time.Now(),
	})

	if len(mailerMock.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(mailerMock.sent))
	}
	mail := mailerMock.sent[0]
	if strings.Contains(mail.Text, "2580") || strings.Contains(mail.HTML, "2580") {
		t.Error("denial email must not disclose the keysafe code")
	}
}
