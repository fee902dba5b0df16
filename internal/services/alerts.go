package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"emergency-service/internal/models"
	"emergency-service/internal/notification"
)

// AlertRequest asks for every contact to be notified of an emergency.
type AlertRequest struct {
	Contacts      []models.Contact
	Message       string
	EmergencyType models.EventType
	Location      *models.Location
	UserID        *int64
}

// AlertResult is the rollup of one batch.
type AlertResult struct {
	AlertID          string
	ContactsTotal    int
	ContactsNotified int
	FailedContacts   []string
	Attempts         []models.NotificationAttempt
}

// AlertContacts notifies every contact over each channel it has configured.
// Individual delivery failures are part of the result, not an error.
func (s *Service) AlertContacts(ctx context.Context, req AlertRequest) (*AlertResult, error) {
	if len(req.Contacts) == 0 {
		return nil, models.NewValidationError("contacts", "No emergency contacts provided")
	}
	if req.EmergencyType != "" && !req.EmergencyType.Valid() {
		return nil, models.NewValidationError("emergencyType", fmt.Sprintf("Unknown emergency type %q", req.EmergencyType))
	}
	loc, rejected := usableLocation(req.Location)
	if rejected != "" {
		s.logger.Warnf("Sending contact alert without unusable location (%s)", rejected)
	}

	start := time.Now()
	res, err := s.dispatcher.Dispatch(ctx, req.Contacts, notification.Content{
		Message:       req.Message,
		EmergencyType: req.EmergencyType,
		Location:      loc,
	})
	if err != nil {
		s.logger.Errorf("Failed to dispatch contact alert: %v", err)
		return nil, err
	}
	s.metrics.ObserveBatch(len(req.Contacts), res.Notified, time.Since(start))

	alert := &models.ContactAlert{
		ExternalID:       s.ids.NewID(),
		Message:          req.Message,
		EmergencyType:    req.EmergencyType,
		Location:         loc,
		ContactsTotal:    len(req.Contacts),
		ContactsNotified: res.Notified,
		FailedContacts:   res.FailedContacts,
		Attempts:         res.Attempts,
		CreatedAt:        s.now(),
	}
	// Contacts have been messaged by now; a failed write is only logged.
	if err := s.store.CreateContactAlert(ctx, alert); err != nil {
		s.logger.Errorf("Failed to persist contact alert %s: %v", alert.ExternalID, err)
	}

	s.audit.Append(ctx, models.AuditEntry{
		Action:       models.ActionContactsAlerted,
		ResourceType: models.ResourceContactAlert,
		ResourceID:   alert.ExternalID,
		Details: models.ContactsAlertedDetails{
			EmergencyType:    req.EmergencyType,
			ContactsTotal:    len(req.Contacts),
			ContactsNotified: res.Notified,
			ContactsFailed:   len(res.FailedContacts),
			Attempts:         len(res.Attempts),
			HasLocation:      loc != nil,
		},
		Severity: models.SeverityCritical,
	})
	s.hub.Publish(req.UserID, StreamMessage{
		Type:       StreamContactsAlerted,
		ResourceID: alert.ExternalID,
		Alert:      alert,
		Timestamp:  alert.CreatedAt,
	})
	if res.Notified == 0 && s.escalator != nil {
		s.QueueTask(models.Task{
			Kind:       models.TaskEscalation,
			ExternalID: alert.ExternalID,
			Text:       unreachedText(alert),
			QueuedAt:   s.now(),
		})
	}
	s.logger.Infof("Contact alert %s: notified %d of %d contacts", alert.ExternalID, res.Notified, len(req.Contacts))

	return &AlertResult{
		AlertID:          alert.ExternalID,
		ContactsTotal:    len(req.Contacts),
		ContactsNotified: res.Notified,
		FailedContacts:   res.FailedContacts,
		Attempts:         res.Attempts,
	}, nil
}

// GetAlert returns a stored batch with its attempts.
func (s *Service) GetAlert(ctx context.Context, alertID string) (*models.ContactAlert, error) {
	alert, err := s.store.GetContactAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, fmt.Errorf("contact alert %s: %w", alertID, models.ErrNotFound)
	}
	return alert, nil
}

// AlertSummary is the human readable line returned to the caller.
func AlertSummary(notified, total int) string {
	return fmt.Sprintf("Successfully alerted %d of %d emergency contacts.", notified, total)
}

func unreachedText(alert *models.ContactAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Emergency alert reached nobody*\n\nAlert: `%s`\nContacts: %d\n", alert.ExternalID, alert.ContactsTotal)
	if alert.EmergencyType != "" {
		fmt.Fprintf(&b, "Type: %s\n", alert.EmergencyType.Label())
	}
	if alert.Location != nil {
		fmt.Fprintf(&b, "Location: %s\n", mapsURL(alert.Location))
	}
	return b.String()
}

func criticalEventText(task models.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n\nCall: `%s`\nNumber: %s\n", task.EventType.Label(), task.ExternalID, task.EmergencyNumber)
	if task.Location != nil {
		fmt.Fprintf(&b, "Location: %s\n", mapsURL(task.Location))
	}
	return b.String()
}
