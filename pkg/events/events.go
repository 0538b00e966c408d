package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mysafehouse/access-api/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
		})
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
		})
	})
	return err
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Access request lifecycle subjects. Events are published only after the
// corresponding state transition has been committed to storage, so
// subscribers (notifications, audit) always observe durable facts.
const (
	AccessRequestCreated  = "access.request.created"
	AccessRequestVerified = "access.request.verified"
	AccessRequestApproved = "access.request.approved"
	AccessRequestDenied   = "access.request.denied"
	AccessRequestExpired  = "access.request.expired"
)

type AccessRequestCreatedEvent struct {
	RequestID         int64     `json:"request_id"`
	PropertyID        int64     `json:"property_id"`
	RequesterName     string    `json:"requester_name"`
	RequesterEmail    string    `json:"requester_email"`
	RequesterPhone    string    `json:"requester_phone"`
	VerificationToken string    `json:"verification_token"`
	VerificationCode  string    `json:"verification_code"` // plaintext, delivered once by the dispatcher
	ExpiresAt         time.Time `json:"expires_at"`
	CreatedAt         time.Time `json:"created_at"`
}

type AccessRequestVerifiedEvent struct {
	RequestID  int64     `json:"request_id"`
	PropertyID int64     `json:"property_id"`
	VerifiedAt time.Time `json:"verified_at"`
}

type AccessRequestDecidedEvent struct {
	RequestID  int64     `json:"request_id"`
	PropertyID int64     `json:"property_id"`
	Approved   bool      `json:"approved"`
	DecidedAt  time.Time `json:"decided_at"`
}
