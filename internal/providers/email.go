package providers

import (
	"context"

	"emergency-service/internal/notification"
	"emergency-service/pkg/email"
)

// SMTP sends alert emails through an SMTP relay.
type SMTP struct {
	client *email.Client
}

func NewSMTP(cfg email.Config) *SMTP {
	return &SMTP{client: email.New(cfg)}
}

func (s *SMTP) SendEmail(ctx context.Context, to, subject string, body notification.EmailBody) (string, error) {
	return s.client.Send(ctx, email.Message{
		To:      to,
		Subject: subject,
		Text:    body.Text,
		HTML:    body.HTML,
	})
}
