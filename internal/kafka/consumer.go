// Package kafka feeds alert-contacts requests published by other systems into
// the alert use case.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"emergency-service/internal/logging"
	"emergency-service/internal/models"
	"emergency-service/internal/services"
)

// AlertService is the use case a consumed message is handed to.
type AlertService interface {
	AlertContacts(ctx context.Context, req services.AlertRequest) (*services.AlertResult, error)
}

// alertMessage is the JSON payload of one request on the topic.
type alertMessage struct {
	RequestID     string           `json:"requestId"`
	Contacts      []models.Contact `json:"contacts"`
	Message       string           `json:"message"`
	EmergencyType models.EventType `json:"emergencyType"`
	Location      *models.Location `json:"location"`
	UserID        *int64           `json:"userId"`
}

const (
	minFetchBackoff = time.Second
	maxFetchBackoff = 30 * time.Second
)

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader     messageReader
	topic      string
	svc        AlertService
	logger     *logging.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewConsumer(brokers []string, topic, groupID string, svc AlertService, logger *logging.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader:     reader,
		topic:      topic,
		svc:        svc,
		logger:     logger,
		minBackoff: minFetchBackoff,
		maxBackoff: maxFetchBackoff,
	}
}

// Start consumes until ctx is cancelled. Messages are committed once handled,
// including ones that could not be decoded or were rejected as invalid.
// Consecutive fetch failures back off exponentially.
func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Infof("Kafka consumer started on topic %s", c.topic)
		backoff := c.minBackoff
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
					c.logger.Infof("Kafka consumer stopped")
					return
				}
				c.logger.Errorf("Read message failed, retrying in %s: %v", backoff, err)
				select {
				case <-ctx.Done():
					c.logger.Infof("Kafka consumer stopped")
					return
				case <-time.After(backoff):
				}
				backoff = min(backoff*2, c.maxBackoff)
				continue
			}
			backoff = c.minBackoff

			c.handle(ctx, msg)

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				c.logger.Errorf("Commit offset %d failed: %v", msg.Offset, err)
			}
		}
	}()
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	requestID, req, err := decodeAlertMessage(msg.Value)
	if err != nil {
		c.logger.Errorf("Dropping message at offset %d: %v", msg.Offset, err)
		return
	}

	res, err := c.svc.AlertContacts(ctx, req)
	if err != nil {
		c.logger.WithField("request_id", requestID).Errorf("Alert request failed: %v", err)
		return
	}
	c.logger.WithField("request_id", requestID).Infof("Processed alert request %s: %s",
		res.AlertID, services.AlertSummary(res.ContactsNotified, res.ContactsTotal))
}

func decodeAlertMessage(value []byte) (string, services.AlertRequest, error) {
	var m alertMessage
	if err := json.Unmarshal(value, &m); err != nil {
		return "", services.AlertRequest{}, fmt.Errorf("unmarshal alert request: %w", err)
	}
	if len(m.Contacts) == 0 {
		return m.RequestID, services.AlertRequest{}, errors.New("alert request without contacts")
	}
	return m.RequestID, services.AlertRequest{
		Contacts:      m.Contacts,
		Message:       m.Message,
		EmergencyType: m.EmergencyType,
		Location:      m.Location,
		UserID:        m.UserID,
	}, nil
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Errorf("Kafka reader close failed: %v", err)
	}
}
