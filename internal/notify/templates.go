package notify

import (
	"fmt"
	"time"

	"github.com/mysafehouse/access-api/internal/domain"
	"github.com/mysafehouse/access-api/pkg/events"
)

func requesterCodeEmail(property *domain.Property, event *events.AccessRequestCreatedEvent) (subject, text, html string) {
	subject = fmt.Sprintf("Your verification code for %s", property.Name)

	expires := event.ExpiresAt.Format("15:04 MST")

	text = fmt.Sprintf(`Hello %s,

Your verification code for your emergency access request at %s is:

    %s

Enter this code to confirm your request. The code expires shortly and the
request itself expires at %s.

If you did not make this request, you can ignore this email.`,
		displayName(event.RequesterName), property.Name, event.VerificationCode, expires)

	html = fmt.Sprintf(`<div style="font-family:sans-serif;max-width:560px;margin:0 auto">
  <h2>Verification code</h2>
  <p>Hello %s,</p>
  <p>Your verification code for your emergency access request at <strong>%s</strong> is:</p>
  <p style="font-size:32px;letter-spacing:8px;font-weight:bold;text-align:center">%s</p>
  <p>Enter this code to confirm your request. The request expires at %s.</p>
  <p style="color:#888">If you did not make this request, you can ignore this email.</p>
</div>`,
		displayName(event.RequesterName), property.Name, event.VerificationCode, expires)

	return subject, text, html
}

func ownerRequestEmail(property *domain.Property, event *events.AccessRequestCreatedEvent, approveURL, denyURL string) (subject, text, html string) {
	subject = fmt.Sprintf("Emergency access request for %s", property.Name)

	contact := event.RequesterEmail
	if contact == "" {
		contact = event.RequesterPhone
	}

	text = fmt.Sprintf(`Someone is requesting emergency access to %s.

Requester: %s
Contact:   %s
Requested: %s
Expires:   %s

Approve: %s
Deny:    %s

If you do nothing, the request expires automatically.`,
		property.DisplayAddress(),
		displayName(event.RequesterName),
		contact,
		event.CreatedAt.Format(time.RFC1123),
		event.ExpiresAt.Format(time.RFC1123),
		approveURL, denyURL)

	html = fmt.Sprintf(`<div style="font-family:sans-serif;max-width:560px;margin:0 auto">
  <h2>Emergency access request</h2>
  <p>Someone is requesting emergency access to <strong>%s</strong>.</p>
  <table style="border-collapse:collapse">
    <tr><td style="padding:4px 12px 4px 0;color:#888">Requester</td><td>%s</td></tr>
    <tr><td style="padding:4px 12px 4px 0;color:#888">Contact</td><td>%s</td></tr>
    <tr><td style="padding:4px 12px 4px 0;color:#888">Expires</td><td>%s</td></tr>
  </table>
  <p style="margin:24px 0">
    <a href="%s" style="background:#16a34a;color:#fff;padding:12px 24px;border-radius:6px;text-decoration:none;margin-right:12px">Approve</a>
    <a href="%s" style="background:#dc2626;color:#fff;padding:12px 24px;border-radius:6px;text-decoration:none">Deny</a>
  </p>
  <p style="color:#888">If you do nothing, the request expires automatically.</p>
</div>`,
		property.DisplayAddress(),
		displayName(event.RequesterName),
		contact,
		event.ExpiresAt.Format(time.RFC1123),
		approveURL, denyURL)

	return subject, text, html
}

// ownerRequestSMS is the short alert form; the email carries the action links.
func ownerRequestSMS(property *domain.Property, event *events.AccessRequestCreatedEvent) string {
	return fmt.Sprintf("Emergency access request for %s from %s. Check your email to approve or deny.",
		property.Name, displayName(event.RequesterName))
}

func requesterApprovedEmail(property *domain.Property, request *domain.AccessRequest) (subject, text, html string) {
	subject = fmt.Sprintf("Access approved for %s", property.Name)

	text = fmt.Sprintf(`Hello %s,

Your emergency access request for %s has been approved.

%s`,
		displayName(request.RequesterName), property.DisplayAddress(), keysafeText(property))

	html = fmt.Sprintf(`<div style="font-family:sans-serif;max-width:560px;margin:0 auto">
  <h2>Access approved</h2>
  <p>Hello %s,</p>
  <p>Your emergency access request for <strong>%s</strong> has been approved.</p>
  %s
</div>`,
		displayName(request.RequesterName), property.DisplayAddress(), keysafeHTML(property))

	return subject, text, html
}

func requesterDeniedEmail(property *domain.Property, request *domain.AccessRequest) (subject, text, html string) {
	subject = fmt.Sprintf("Access request declined for %s", property.Name)

	text = fmt.Sprintf(`Hello %s,

Your emergency access request for %s has been declined by the property owner.

If you believe this is a mistake, contact the owner directly.`,
		displayName(request.RequesterName), property.DisplayAddress())

	html = fmt.Sprintf(`<div style="font-family:sans-serif;max-width:560px;margin:0 auto">
  <h2>Access request declined</h2>
  <p>Hello %s,</p>
  <p>Your emergency access request for <strong>%s</strong> has been declined by the property owner.</p>
  <p style="color:#888">If you believe this is a mistake, contact the owner directly.</p>
</div>`,
		displayName(request.RequesterName), property.DisplayAddress())

	return subject, text, html
}

// keysafeText renders the entry instructions disclosed only after approval.
func keysafeText(property *domain.Property) string {
	out := "Entry details:\n"
	if property.KeysafeLocation != "" {
		out += fmt.Sprintf("  Keysafe location: %s\n", property.KeysafeLocation)
	}
	if property.KeysafeCode != "" {
		out += fmt.Sprintf("  Keysafe code:     %s\n", property.KeysafeCode)
	}
	if property.What3Words != "" {
		out += fmt.Sprintf("  what3words:       %s\n", property.What3Words)
	}
	if out == "Entry details:\n" {
		return "The owner will contact you with entry details."
	}
	return out
}

func keysafeHTML(property *domain.Property) string {
	rows := ""
	if property.KeysafeLocation != "" {
		rows += fmt.Sprintf(`<tr><td style="padding:4px 12px 4px 0;color:#888">Keysafe location</td><td>%s</td></tr>`, property.KeysafeLocation)
	}
	if property.KeysafeCode != "" {
		rows += fmt.Sprintf(`<tr><td style="padding:4px 12px 4px 0;color:#888">Keysafe code</td><td><strong>%s</strong></td></tr>`, property.KeysafeCode)
	}
	if property.What3Words != "" {
		rows += fmt.Sprintf(`<tr><td style="padding:4px 12px 4px 0;color:#888">what3words</td><td>%s</td></tr>`, property.What3Words)
	}
	if rows == "" {
		return `<p>The owner will contact you with entry details.</p>`
	}
	return fmt.Sprintf(`<h3>Entry details</h3><table style="border-collapse:collapse">%s</table>`, rows)
}

func displayName(name string) string {
	if name == "" {
		return "there"
	}
	return name
}
