package ports

import "context"

// EventPublisher is the outbound domain-event publish port.
// The application uses this abstraction to keep broker/client concerns in adapters.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte) error
}

// MailMessage is a single outbound plain-text email.
type MailMessage struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers transactional emails such as reset codes.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}
