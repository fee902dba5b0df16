package providers

import (
	"context"

	"github.com/google/uuid"

	"emergency-service/internal/logging"
	"emergency-service/internal/notification"
)

// Log writes messages to the application log instead of delivering them.
// It is the default for both channels so a fresh deployment never texts anyone.
type Log struct {
	logger *logging.Logger
}

func NewLog(logger *logging.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Send(_ context.Context, to, body string) (string, error) {
	id := "sms_" + uuid.NewString()
	l.logger.WithFields(map[string]any{"to": to, "message_id": id}).Infof("SMS (not delivered): %s", body)
	return id, nil
}

func (l *Log) SendEmail(_ context.Context, to, subject string, body notification.EmailBody) (string, error) {
	id := "email_" + uuid.NewString()
	l.logger.WithFields(map[string]any{"to": to, "message_id": id}).
		Infof("Email (not delivered): subject=%q text_length=%d html_length=%d", subject, len(body.Text), len(body.HTML))
	return id, nil
}
