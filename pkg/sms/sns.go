package sms

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snsTypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNS sends direct-to-phone messages through Amazon SNS.
type SNS struct {
	client *sns.Client
}

func NewSNS(ctx context.Context, region string) (*SNS, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &SNS{client: sns.NewFromConfig(cfg)}, nil
}

func (s *SNS) Send(ctx context.Context, to, body string) (string, error) {
	toNumber := Normalize(to)
	resp, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(toNumber),
		Message:     aws.String(body),
		MessageAttributes: map[string]snsTypes.MessageAttributeValue{
			// Emergency alerts must bypass promotional throttling and opt-out windows.
			"AWS.SNS.SMS.SMSType": {
				DataType:    aws.String("String"),
				StringValue: aws.String("Transactional"),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to publish SMS to %s: %w", toNumber, err)
	}
	return aws.ToString(resp.MessageId), nil
}
