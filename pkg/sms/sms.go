// Package sms sends text messages through a carrier.
package sms

import (
	"context"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Sender delivers body to a phone number and returns the carrier message id.
type Sender interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// Normalize strips formatting from a phone number and returns it in E.164 form.
// Ten digit numbers without a country code are taken as North American.
func Normalize(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if !strings.HasPrefix(strings.TrimSpace(phone), "+") && len(digits) == 10 {
		digits = "1" + digits
	}
	return "+" + digits
}

// Twilio sends through the Twilio Messages API.
type Twilio struct {
	client     *twilio.RestClient
	fromNumber string
}

func NewTwilio(accountSID, authToken, fromNumber string) *Twilio {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Twilio{client: client, fromNumber: fromNumber}
}

func (t *Twilio) Send(_ context.Context, to, body string) (string, error) {
	toNumber := Normalize(to)

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(toNumber)
	params.SetFrom(t.fromNumber)
	params.SetBody(body)

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("failed to send SMS to %s: %w", toNumber, err)
	}
	if resp.Sid == nil {
		return "", fmt.Errorf("twilio returned no message sid for %s", toNumber)
	}
	return *resp.Sid, nil
}
