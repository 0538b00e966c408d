package handlers

import (
	"html/template"
	"net/http"

	"github.com/mysafehouse/access-api/internal/domain"
	"github.com/mysafehouse/access-api/pkg/logger"
)

// ownerActionPage is the browser-facing result card for the approve/deny
// links sent by email. It must render something sensible for every outcome,
// including double clicks and expired links.
var ownerActionPage = template.Must(template.New("owner_action").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}}</title>
  <style>
    body { font-family: -apple-system, sans-serif; background: #f3f4f6; margin: 0; padding: 40px 16px; }
    .card { max-width: 480px; margin: 0 auto; background: #fff; border-radius: 12px; padding: 32px; box-shadow: 0 1px 4px rgba(0,0,0,.1); text-align: center; }
    .icon { font-size: 48px; }
    h1 { font-size: 22px; margin: 16px 0 8px; }
    p { color: #555; line-height: 1.5; }
  </style>
</head>
<body>
  <div class="card">
    <div class="icon">{{.Icon}}</div>
    <h1>{{.Title}}</h1>
    <p>{{.Body}}</p>
  </div>
</body>
</html>
`))

type ownerActionView struct {
	Icon  string
	Title string
	Body  string
}

// OwnerAction handles the one-click decision links from notification emails.
// GET /access-requests/{id}/action?token=...&action=approve|deny
func (h *Handlers) OwnerAction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	token := r.URL.Query().Get("token")
	action := r.URL.Query().Get("action")

	if !ok || token == "" || (action != "approve" && action != "deny") {
		h.renderAction(w, http.StatusBadRequest, ownerActionView{
			Icon:  "⚠️",
			Title: "Invalid link",
			Body:  "This link is malformed. Please use the buttons from the notification email.",
		})
		return
	}

	out, err := h.engine.Decide(r.Context(), id, token, action)
	if err != nil {
		h.renderAction(w, statusForActionError(err), viewForActionError(err))
		return
	}

	if out.AlreadyProcessed {
		h.renderAction(w, http.StatusOK, ownerActionView{
			Icon:  "ℹ️",
			Title: "Already processed",
			Body:  out.Message,
		})
		return
	}

	if out.Status == string(domain.StatusApproved) {
		h.renderAction(w, http.StatusOK, ownerActionView{
			Icon:  "✅",
			Title: "Access approved",
			Body:  "The requester has been notified and sent the entry details.",
		})
		return
	}
	h.renderAction(w, http.StatusOK, ownerActionView{
		Icon:  "❌",
		Title: "Access denied",
		Body:  "The requester has been notified that access was declined.",
	})
}

func statusForActionError(err error) int {
	switch domain.KindOf(err) {
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindGone:
		return http.StatusGone
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func viewForActionError(err error) ownerActionView {
	switch domain.KindOf(err) {
	case domain.KindForbidden:
		return ownerActionView{
			Icon:  "\U0001f512",
			Title: "Invalid link",
			Body:  "This link is invalid or does not match any access request.",
		}
	case domain.KindGone:
		return ownerActionView{
			Icon:  "⏰",
			Title: "Request expired",
			Body:  "This access request has expired and can no longer be decided.",
		}
	case domain.KindInvalidInput:
		return ownerActionView{
			Icon:  "⚠️",
			Title: "Invalid link",
			Body:  "This link is malformed. Please use the buttons from the notification email.",
		}
	default:
		return ownerActionView{
			Icon:  "⚠️",
			Title: "Something went wrong",
			Body:  "We could not process the request. Please try again in a moment.",
		}
	}
}

func (h *Handlers) renderAction(w http.ResponseWriter, status int, view ownerActionView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := ownerActionPage.Execute(w, view); err != nil {
		logger.Error("Failed to render owner action page", "error", err)
	}
}
