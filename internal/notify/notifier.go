package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mysafehouse/access-api/internal/platform/mailer"
	"github.com/mysafehouse/access-api/internal/platform/sms"
	"github.com/mysafehouse/access-api/internal/repo/postgres"
	"github.com/mysafehouse/access-api/pkg/config"
	"github.com/mysafehouse/access-api/pkg/events"
	"github.com/mysafehouse/access-api/pkg/logger"
)

// Dispatcher turns lifecycle events into outbound email and SMS. It runs as
// an event-bus subscriber so a slow or failing provider never blocks the
// request path, and each recipient is attempted independently.
type Dispatcher struct {
	properties postgres.PropertyRepo
	contacts   postgres.ContactRepo
	requests   postgres.AccessRequestRepo
	mailer     mailer.Service
	sms        sms.Sender
	config     *config.Config
}

func NewDispatcher(
	properties postgres.PropertyRepo,
	contacts postgres.ContactRepo,
	requests postgres.AccessRequestRepo,
	mailSvc mailer.Service,
	smsSender sms.Sender,
	cfg *config.Config,
) *Dispatcher {
	return &Dispatcher{
		properties: properties,
		contacts:   contacts,
		requests:   requests,
		mailer:     mailSvc,
		sms:        smsSender,
		config:     cfg,
	}
}

// Subscribe registers the dispatcher on the lifecycle subjects. Queue
// subscriptions keep delivery single-shot when the API runs more than one
// instance.
func (d *Dispatcher) Subscribe(bus events.Subscriber) error {
	if err := bus.QueueSubscribe(events.AccessRequestCreated, "notify", d.onCreated); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", events.AccessRequestCreated, err)
	}
	if err := bus.QueueSubscribe(events.AccessRequestApproved, "notify", d.onDecided); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", events.AccessRequestApproved, err)
	}
	if err := bus.QueueSubscribe(events.AccessRequestDenied, "notify", d.onDecided); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", events.AccessRequestDenied, err)
	}
	return nil
}

func (d *Dispatcher) onCreated(msg *events.Message) {
	var event events.AccessRequestCreatedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		logger.Error("Failed to decode created event", "error", err)
		return
	}

	ctx := context.Background()
	d.NotifyRequesterOfCode(ctx, &event)
	d.NotifyOwnerOfRequest(ctx, &event)
}

func (d *Dispatcher) onDecided(msg *events.Message) {
	var event events.AccessRequestDecidedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		logger.Error("Failed to decode decided event", "error", err)
		return
	}

	d.NotifyRequesterOfDecision(context.Background(), &event)
}

// NotifyRequesterOfCode emails the one-time verification code. The code is
// never sent over SMS; email is the only channel that carries it.
func (d *Dispatcher) NotifyRequesterOfCode(ctx context.Context, event *events.AccessRequestCreatedEvent) {
	if event.RequesterEmail == "" || event.VerificationCode == "" {
		return
	}

	property, err := d.properties.GetByID(ctx, event.PropertyID)
	if err != nil || property == nil {
		logger.ErrorContext(ctx, "Failed to load property for requester notification", "property_id", event.PropertyID, "error", err)
		return
	}

	subject, text, html := requesterCodeEmail(property, event)
	if _, err := d.mailer.Send(event.RequesterEmail, event.RequesterName, subject, text, html); err != nil {
		logger.ErrorContext(ctx, "Failed to email verification code",
			"request_id", event.RequestID,
			"error", err,
		)
		return
	}
	logger.InfoContext(ctx, "Verification code emailed", "request_id", event.RequestID)
}

// NotifyOwnerOfRequest fans out to the owner and every primary contact.
// Failures are isolated per recipient so one bad address cannot silence
// the rest.
func (d *Dispatcher) NotifyOwnerOfRequest(ctx context.Context, event *events.AccessRequestCreatedEvent) {
	property, err := d.properties.GetByID(ctx, event.PropertyID)
	if err != nil || property == nil {
		logger.ErrorContext(ctx, "Failed to load property for owner notification", "property_id", event.PropertyID, "error", err)
		return
	}

	type recipient struct {
		name  string
		email string
		phone string
	}
	var recipients []recipient

	owner, err := d.properties.GetOwnerProfile(ctx, property.OwnerID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load owner profile", "owner_id", property.OwnerID, "error", err)
	}
	if owner != nil && owner.Email != "" {
		recipients = append(recipients, recipient{name: owner.Name, email: owner.Email, phone: owner.Phone})
	}

	contacts, err := d.contacts.ListPrimaryByUser(ctx, property.OwnerID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load primary contacts", "owner_id", property.OwnerID, "error", err)
	}
	for _, c := range contacts {
		recipients = append(recipients, recipient{name: c.Name, email: c.Email, phone: c.Phone})
	}

	if len(recipients) == 0 {
		logger.WarnContext(ctx, "No notification recipients for property", "property_id", property.ID)
		return
	}

	approveURL := d.actionURL(event.RequestID, event.VerificationToken, "approve")
	denyURL := d.actionURL(event.RequestID, event.VerificationToken, "deny")

	sent := 0
	for _, r := range recipients {
		if r.email == "" {
			continue
		}
		subject, text, html := ownerRequestEmail(property, event, approveURL, denyURL)
		if _, err := d.mailer.Send(r.email, r.name, subject, text, html); err != nil {
			logger.ErrorContext(ctx, "Failed to email access request notification",
				"request_id", event.RequestID,
				"error", err,
			)
			continue
		}
		sent++
	}
	logger.InfoContext(ctx, "Owner notifications sent", "request_id", event.RequestID, "recipients", sent)

	if d.sms != nil && owner != nil && owner.Phone != "" {
		body := ownerRequestSMS(property, event)
		if err := d.sms.Send(owner.Phone, body); err != nil {
			logger.ErrorContext(ctx, "Failed to send owner SMS", "request_id", event.RequestID, "error", err)
		}
	}
}

// NotifyRequesterOfDecision tells the requester the outcome. Keysafe details
// are disclosed only on approval, and only after the transition is durable.
func (d *Dispatcher) NotifyRequesterOfDecision(ctx context.Context, event *events.AccessRequestDecidedEvent) {
	request, err := d.requests.GetByID(ctx, event.RequestID)
	if err != nil || request == nil {
		logger.ErrorContext(ctx, "Failed to load request for decision notification", "request_id", event.RequestID, "error", err)
		return
	}
	if request.RequesterEmail == "" {
		return
	}

	property, err := d.properties.GetByID(ctx, request.PropertyID)
	if err != nil || property == nil {
		logger.ErrorContext(ctx, "Failed to load property for decision notification", "property_id", request.PropertyID, "error", err)
		return
	}

	var subject, text, html string
	if event.Approved {
		subject, text, html = requesterApprovedEmail(property, request)
	} else {
		subject, text, html = requesterDeniedEmail(property, request)
	}

	if _, err := d.mailer.Send(request.RequesterEmail, request.RequesterName, subject, text, html); err != nil {
		logger.ErrorContext(ctx, "Failed to email decision", "request_id", request.ID, "error", err)
		return
	}
	logger.InfoContext(ctx, "Decision emailed to requester", "request_id", request.ID, "approved", event.Approved)
}

func (d *Dispatcher) actionURL(requestID int64, token, action string) string {
	return fmt.Sprintf("%s/access-requests/%d/action?token=%s&action=%s",
		d.config.Server.BaseURL, requestID, token, action)
}
