package services

import (
	"context"
	"fmt"
	"time"

	"emergency-service/internal/location"
	"emergency-service/internal/models"
)

// CallRequest is an emergency call as received from a device.
type CallRequest struct {
	EmergencyType models.EventType
	Location      *models.Location
	UserInfo      *models.UserInfo
	UserID        *int64
	Timestamp     string
	Client        *models.ClientInfo
	UserIP        string
}

// CallResult is returned as soon as the event is stored.
type CallResult struct {
	CallID          string
	EmergencyNumber string
	Location        *models.Location
	Timestamp       time.Time
	Event           *models.EmergencyEvent
}

// InitiateCall stores a new active event and returns the number to dial.
// Geocoding and the diagnostic audit entry run afterwards on the worker pool.
func (s *Service) InitiateCall(ctx context.Context, req CallRequest) (*CallResult, error) {
	if req.EmergencyType == "" {
		return nil, models.NewValidationError("emergencyType", "Emergency type is required")
	}
	if !req.EmergencyType.Valid() {
		return nil, models.NewValidationError("emergencyType", fmt.Sprintf("Unknown emergency type %q", req.EmergencyType))
	}

	// A bad fix from the device must not stop the call; it is kept for review.
	loc, rejected := usableLocation(req.Location)
	var extra map[string]any
	if rejected != "" {
		s.logger.Warnf("Dropping unusable location (%s) from %s call", rejected, req.EmergencyType)
		extra = map[string]any{"rejectedLocation": rejected}
	}

	severity := SeverityFor(req.EmergencyType)
	number := s.numbers.Resolve(req.EmergencyType, loc)

	event := &models.EmergencyEvent{
		ExternalID:      s.ids.NewID(),
		UserID:          req.UserID,
		EventType:       req.EmergencyType,
		Status:          models.StatusActive,
		Severity:        severity,
		Location:        loc,
		EmergencyNumber: number,
		SystemInfo: models.SystemInfo{
			Client:           req.Client,
			UserIP:           req.UserIP,
			RequestTimestamp: req.Timestamp,
			AppVersion:       s.config.App.Version,
			UserInfo:         req.UserInfo,
			Extra:            extra,
		},
		CreatedAt: s.now(),
	}

	stored, err := s.store.CreateEvent(ctx, event)
	if err != nil {
		s.logger.Errorf("Failed to create emergency event: %v", err)
		return nil, err
	}
	s.metrics.EventCreated(stored.EventType)

	s.audit.Append(ctx, models.AuditEntry{
		Action:       models.ActionCallCreated,
		ResourceType: models.ResourceEmergencyEvent,
		ResourceID:   stored.ExternalID,
		Details: models.CallCreatedDetails{
			EventType:       stored.EventType,
			Severity:        stored.Severity,
			EmergencyNumber: stored.EmergencyNumber,
			HasLocation:     stored.Location != nil,
		},
		Severity: models.SeverityCritical,
	})

	s.QueueTask(models.Task{
		Kind:            models.TaskCallFollowUp,
		EventID:         stored.ID,
		ExternalID:      stored.ExternalID,
		UserID:          stored.UserID,
		EventType:       stored.EventType,
		Severity:        stored.Severity,
		EmergencyNumber: stored.EmergencyNumber,
		Location:        stored.Location,
		SystemInfo:      stored.SystemInfo,
		QueuedAt:        s.now(),
	})
	s.hub.Publish(stored.UserID, StreamMessage{
		Type:       StreamEventCreated,
		ResourceID: stored.ExternalID,
		Event:      stored,
		Timestamp:  s.now(),
	})
	s.logger.Infof("Emergency call %s created: type=%s severity=%s number=%s", stored.ExternalID, stored.EventType, stored.Severity, number)

	return &CallResult{
		CallID:          stored.ExternalID,
		EmergencyNumber: number,
		Location:        loc,
		Timestamp:       stored.CreatedAt,
		Event:           stored,
	}, nil
}

// usableLocation returns a copy of loc. Out of range coordinates yield nil and
// a description of what was rejected.
func usableLocation(loc *models.Location) (*models.Location, string) {
	if loc == nil {
		return nil, ""
	}
	if !location.ValidateCoordinates(location.Coordinates{Latitude: loc.Latitude, Longitude: loc.Longitude}) {
		return nil, fmt.Sprintf("latitude=%v longitude=%v", loc.Latitude, loc.Longitude)
	}
	l := *loc
	return &l, ""
}

// LogEvent records a client diagnostic payload in the audit log and returns its id.
func (s *Service) LogEvent(ctx context.Context, payload map[string]any) string {
	id := s.ids.NewID()
	s.audit.Append(ctx, models.AuditEntry{
		Action:       models.ActionEventLogged,
		ResourceType: models.ResourceEmergencyEvent,
		ResourceID:   id,
		Details:      models.FreeformDetails(payload),
		Severity:     models.SeverityInfo,
	})
	return id
}

// GetEvent returns the event with the public id callID or ErrNotFound.
func (s *Service) GetEvent(ctx context.Context, callID string) (*models.EmergencyEvent, error) {
	ev, err := s.store.GetEventByExternalID(ctx, callID)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, fmt.Errorf("emergency event %s: %w", callID, models.ErrNotFound)
	}
	return ev, nil
}

// Resolution carries the optional fields recorded when an event is closed.
type Resolution struct {
	ResponseTime *int
	CallDuration *int
	Notes        *string
}

// ResolveEvent moves an active event to resolved.
func (s *Service) ResolveEvent(ctx context.Context, callID string, r Resolution) (*models.EmergencyEvent, error) {
	return s.transition(ctx, callID, models.StatusResolved, r)
}

// CancelEvent moves an active event to cancelled.
func (s *Service) CancelEvent(ctx context.Context, callID string, notes *string) (*models.EmergencyEvent, error) {
	return s.transition(ctx, callID, models.StatusCancelled, Resolution{Notes: notes})
}

func (s *Service) transition(ctx context.Context, callID string, to models.EventStatus, r Resolution) (*models.EmergencyEvent, error) {
	if r.ResponseTime != nil && *r.ResponseTime < 0 {
		return nil, models.NewValidationError("responseTime", "Response time must not be negative")
	}
	if r.CallDuration != nil && *r.CallDuration < 0 {
		return nil, models.NewValidationError("callDuration", "Call duration must not be negative")
	}

	ev, err := s.GetEvent(ctx, callID)
	if err != nil {
		return nil, err
	}
	if !ev.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%s -> %s: %w", ev.Status, to, models.ErrInvalidTransition)
	}

	now := s.now()
	version := ev.Version
	update := models.EventUpdate{
		Status:          &to,
		ResolvedAt:      &now,
		ResponseTime:    r.ResponseTime,
		CallDuration:    r.CallDuration,
		Notes:           r.Notes,
		ExpectedVersion: &version,
	}
	updated, err := s.store.UpdateEvent(ctx, ev.ID, update)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, fmt.Errorf("emergency event %s: %w", callID, models.ErrNotFound)
	}

	s.metrics.StatusChanged(to)
	s.audit.Append(ctx, models.AuditEntry{
		Action:       models.ActionStatusChanged,
		ResourceType: models.ResourceEmergencyEvent,
		ResourceID:   callID,
		Details:      models.StatusChangedDetails{From: ev.Status, To: to},
		Severity:     models.SeverityHigh,
	})
	s.hub.Publish(updated.UserID, StreamMessage{
		Type:       StreamStatusChanged,
		ResourceID: callID,
		Event:      updated,
		Timestamp:  now,
	})
	s.logger.Infof("Emergency event %s moved %s -> %s", callID, ev.Status, to)
	return updated, nil
}

// DeleteEvent removes an event for administrative cleanup. The audit trail is kept.
func (s *Service) DeleteEvent(ctx context.Context, callID string) error {
	ev, err := s.GetEvent(ctx, callID)
	if err != nil {
		return err
	}
	deleted, err := s.store.DeleteEvent(ctx, ev.ID)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("emergency event %s: %w", callID, models.ErrNotFound)
	}
	s.audit.Append(ctx, models.AuditEntry{
		Action:       models.ActionEventDeleted,
		ResourceType: models.ResourceEmergencyEvent,
		ResourceID:   callID,
		Details: models.FreeformDetails{
			"eventType": string(ev.EventType),
			"status":    string(ev.Status),
		},
		Severity: models.SeverityHigh,
	})
	s.logger.Warnf("Emergency event %s deleted", callID)
	return nil
}

// AuditTrail lists the audit entries recorded for an event, oldest first.
func (s *Service) AuditTrail(ctx context.Context, callID string) ([]models.AuditEntry, error) {
	return s.store.ListAuditEntries(ctx, models.ResourceEmergencyEvent, callID)
}

// NearbyServices ranks emergency facilities around center.
func (s *Service) NearbyServices(ctx context.Context, center location.Coordinates, serviceType location.ServiceType, radiusMeters float64) ([]location.ServiceLocation, error) {
	if !location.ValidateCoordinates(center) {
		return nil, models.NewValidationError("location", "Invalid coordinates")
	}
	if serviceType != "" && !serviceType.Valid() {
		return nil, models.NewValidationError("type", fmt.Sprintf("Unknown service type %q", serviceType))
	}
	return s.enricher.FindNearby(ctx, center, serviceType, radiusMeters)
}

// Health reports the status of the database and of id generation.
type Health struct {
	Healthy  bool            `json:"healthy"`
	Services map[string]bool `json:"services"`
	Uptime   time.Duration   `json:"-"`
}

func (s *Service) Health(ctx context.Context) Health {
	services := map[string]bool{
		"database":           s.store.Ping(ctx) == nil,
		"core_functionality": s.ids.NewID() != "",
	}
	healthy := true
	for _, ok := range services {
		healthy = healthy && ok
	}
	return Health{Healthy: healthy, Services: services, Uptime: s.now().Sub(s.startedAt)}
}
