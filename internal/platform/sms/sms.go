package sms

import (
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/mysafehouse/access-api/pkg/logger"
)

type Sender interface {
	Send(toNumber, body string) error
}

type TwilioSender struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioSender returns nil when credentials are not configured; callers
// treat a nil sender as "SMS disabled".
func NewTwilioSender(accountSID, authToken, fromNumber string) *TwilioSender {
	if accountSID == "" || authToken == "" || fromNumber == "" {
		return nil
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSender{client: client, from: fromNumber}
}

func (s *TwilioSender) Send(toNumber, body string) error {
	if len(body) > 1000 {
		body = body[:1000]
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(toNumber)
	params.SetFrom(s.from)
	params.SetBody(body)

	_, err := s.client.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio send failed: %w", err)
	}
	return nil
}

// DevSender logs messages instead of sending them.
type DevSender struct{}

func NewDevSender() *DevSender {
	return &DevSender{}
}

func (s *DevSender) Send(toNumber, body string) error {
	logger.Info("📱 [DEV SMS]", "to", toNumber, "body", body)
	return nil
}
