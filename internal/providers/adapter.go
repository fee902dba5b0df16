// Package providers binds the notification dispatcher to concrete carriers.
package providers

import (
	"context"
	"fmt"

	"emergency-service/internal/config"
	"emergency-service/internal/logging"
	"emergency-service/internal/notification"
	"emergency-service/pkg/email"
	"emergency-service/pkg/sms"
)

// EmailSender delivers one rendered email and returns its message id.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject string, body notification.EmailBody) (string, error)
}

// Adapter routes each channel to its own carrier.
type Adapter struct {
	sms   sms.Sender
	email EmailSender
}

func NewAdapter(smsSender sms.Sender, emailSender EmailSender) *Adapter {
	return &Adapter{sms: smsSender, email: emailSender}
}

func (a *Adapter) SendSMS(ctx context.Context, phone, body string) (string, error) {
	return a.sms.Send(ctx, phone, body)
}

func (a *Adapter) SendEmail(ctx context.Context, address, subject string, body notification.EmailBody) (string, error) {
	return a.email.SendEmail(ctx, address, subject, body)
}

// FromConfig builds the adapter selected by SMS_PROVIDER and EMAIL_PROVIDER.
func FromConfig(ctx context.Context, cfg config.Config, logger *logging.Logger) (*Adapter, error) {
	var smsSender sms.Sender
	switch cfg.Notification.SMSProvider {
	case config.ProviderTwilio:
		smsSender = sms.NewTwilio(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber)
	case config.ProviderSNS:
		s, err := sms.NewSNS(ctx, cfg.AWS.Region)
		if err != nil {
			return nil, err
		}
		smsSender = s
	case config.ProviderLog:
		smsSender = NewLog(logger)
	default:
		return nil, fmt.Errorf("unknown SMS provider %q", cfg.Notification.SMSProvider)
	}

	var emailSender EmailSender
	switch cfg.Notification.EmailProvider {
	case config.ProviderSMTP:
		emailSender = NewSMTP(email.Config{
			Server:      cfg.Email.SMTPServer,
			Port:        cfg.Email.SMTPPort,
			Username:    cfg.Email.Username,
			Password:    cfg.Email.Password,
			FromName:    cfg.Email.FromName,
			FromAddress: cfg.Email.FromAddress,
		})
	case config.ProviderLog:
		emailSender = NewLog(logger)
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Notification.EmailProvider)
	}

	logger.Infof("Notification providers: sms=%s email=%s", cfg.Notification.SMSProvider, cfg.Notification.EmailProvider)
	return NewAdapter(smsSender, emailSender), nil
}
