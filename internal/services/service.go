// Package services implements the emergency use cases on top of the store,
// audit log, location enricher and notification dispatcher.
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"emergency-service/internal/audit"
	"emergency-service/internal/config"
	"emergency-service/internal/location"
	"emergency-service/internal/logging"
	"emergency-service/internal/metrics"
	"emergency-service/internal/models"
	"emergency-service/internal/notification"
)

const (
	defaultHistoryLimit = 50
	statisticsWindow    = 30 * 24 * time.Hour
	maxEnrichAttempts   = 3
)

// EventStore persists emergency events.
type EventStore interface {
	CreateEvent(ctx context.Context, e *models.EmergencyEvent) (*models.EmergencyEvent, error)
	GetEventByID(ctx context.Context, id int64) (*models.EmergencyEvent, error)
	GetEventByExternalID(ctx context.Context, externalID string) (*models.EmergencyEvent, error)
	ListEvents(ctx context.Context, f models.EventFilter) ([]models.EmergencyEvent, error)
	CountEvents(ctx context.Context, f models.EventFilter) (int, error)
	UpdateEvent(ctx context.Context, id int64, u models.EventUpdate) (*models.EmergencyEvent, error)
	DeleteEvent(ctx context.Context, id int64) (bool, error)
	Statistics(ctx context.Context, userID *int64, since time.Time) (models.Statistics, error)
	Ping(ctx context.Context) error
}

// AlertStore persists contact alert batches with their attempts.
type AlertStore interface {
	CreateContactAlert(ctx context.Context, alert *models.ContactAlert) error
	GetContactAlert(ctx context.Context, externalID string) (*models.ContactAlert, error)
}

// AuditReader lists the audit trail of a resource.
type AuditReader interface {
	ListAuditEntries(ctx context.Context, resourceType, resourceID string) ([]models.AuditEntry, error)
}

// Store is everything a backing database provides.
type Store interface {
	EventStore
	AlertStore
	AuditReader
	audit.Writer
}

// Dispatcher fans an alert out to contacts.
type Dispatcher interface {
	Dispatch(ctx context.Context, contacts []models.Contact, content notification.Content) (notification.Result, error)
}

// Enricher resolves addresses and nearby services.
type Enricher interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (location.Address, bool)
	FindNearby(ctx context.Context, center location.Coordinates, serviceType location.ServiceType, radiusMeters float64) ([]location.ServiceLocation, error)
}

// Escalator notifies a human operator.
type Escalator interface {
	Escalate(ctx context.Context, text string) error
}

// IDGenerator hands out public identifiers.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator issues random version 4 UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.NewString() }

// Deps are the collaborators of a Service. Escalator, Hub and Metrics are optional.
type Deps struct {
	Store      Store
	Audit      *audit.Log
	Dispatcher Dispatcher
	Enricher   Enricher
	Numbers    *NumberResolver
	Hub        *Hub
	Escalator  Escalator
	Metrics    *metrics.Metrics
	IDs        IDGenerator
	Clock      func() time.Time
	Logger     *logging.Logger
}

// Service runs the emergency use cases and the background enrichment pool.
type Service struct {
	store      Store
	audit      *audit.Log
	dispatcher Dispatcher
	enricher   Enricher
	numbers    *NumberResolver
	hub        *Hub
	escalator  Escalator
	metrics    *metrics.Metrics
	ids        IDGenerator
	now        func() time.Time
	logger     *logging.Logger
	config     config.Config
	startedAt  time.Time

	tasks  chan models.Task
	ctx    context.Context
	cancel context.CancelFunc
	wg     *sync.WaitGroup
}

// New constructs a Service. Call Start to run the background workers.
func New(deps Deps, cfg config.Config) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	svc := &Service{
		store:      deps.Store,
		audit:      deps.Audit,
		dispatcher: deps.Dispatcher,
		enricher:   deps.Enricher,
		numbers:    deps.Numbers,
		hub:        deps.Hub,
		escalator:  deps.Escalator,
		metrics:    deps.Metrics,
		ids:        deps.IDs,
		now:        deps.Clock,
		logger:     deps.Logger,
		config:     cfg,
		tasks:      make(chan models.Task, cfg.Worker.QueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}
	if svc.ids == nil {
		svc.ids = UUIDGenerator{}
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	if svc.numbers == nil {
		svc.numbers = NewNumberResolver(FlatNumberPolicy(cfg.Emergency.DefaultNumber))
	}
	svc.startedAt = svc.now()
	return svc
}

// Logger exposes the Service's logger to the Kafka consumer or caller.
func (s *Service) Logger() *logging.Logger {
	return s.logger
}

// Hub returns the stream hub, nil when streaming is disabled.
func (s *Service) Hub() *Hub {
	return s.hub
}

// Start launches the worker pool.
func (s *Service) Start(wg *sync.WaitGroup) {
	s.wg = wg
	workers := s.config.Worker.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

// Stop cancels the workers. Tasks still queued are dropped.
func (s *Service) Stop() {
	s.cancel()
}

// QueueTask enqueues a Task without blocking. A full queue drops the task.
func (s *Service) QueueTask(task models.Task) {
	select {
	case s.tasks <- task:
		s.logger.Debugf("Queued %s task: resource_id=%s", task.Kind, task.ExternalID)
	default:
		s.metrics.TaskDropped()
		s.logger.Errorf("Queue full, dropping %s task: resource_id=%s", task.Kind, task.ExternalID)
	}
}

// worker processes Tasks until context is cancelled.
func (s *Service) worker(id int) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Infof("Worker %d stopped", id)
			return
		case task := <-s.tasks:
			switch task.Kind {
			case models.TaskEscalation:
				s.escalate(s.ctx, task.Text)
			case models.TaskCallFollowUp:
				s.handleTask(task)
			default:
				s.logger.Errorf("Dropping task of unknown kind %q: resource_id=%s", task.Kind, task.ExternalID)
			}
		}
	}
}

// handleTask is the background continuation of InitiateCall. Nothing here may
// fail the call: every error is logged and dropped.
func (s *Service) handleTask(task models.Task) {
	ctx := s.ctx

	if task.Location != nil {
		s.enrich(ctx, task)
	}

	s.audit.Append(ctx, models.AuditEntry{
		Action:       models.ActionCallInitiated,
		ResourceType: models.ResourceEmergencyEvent,
		ResourceID:   task.ExternalID,
		Details: models.CallInitiatedDetails{
			Location:   task.Location,
			SystemInfo: task.SystemInfo,
		},
		Severity: models.SeverityCritical,
	})

	if task.Severity == models.SeverityCritical {
		s.escalate(ctx, criticalEventText(task))
	}
}

// enrich writes the geocoded address with a version guarded update so that a
// concurrent resolve or cancel is never overwritten.
func (s *Service) enrich(ctx context.Context, task models.Task) {
	addr, ok := s.enricher.ReverseGeocode(ctx, task.Location.Latitude, task.Location.Longitude)
	if !ok {
		s.logger.Warnf("Skipping enrichment of %s: invalid coordinates", task.ExternalID)
		return
	}

	for attempt := 1; attempt <= maxEnrichAttempts; attempt++ {
		ev, err := s.store.GetEventByID(ctx, task.EventID)
		if err != nil {
			s.logger.Errorf("Enrichment of %s failed to load event: %v", task.ExternalID, err)
			return
		}
		if ev == nil {
			s.logger.Warnf("Enrichment of %s skipped: event no longer exists", task.ExternalID)
			return
		}
		if !ev.Location.SameCoordinates(task.Location) {
			s.logger.Infof("Enrichment of %s skipped: location changed", task.ExternalID)
			return
		}
		if ev.Location.Address != "" {
			return
		}

		loc := *ev.Location
		loc.Address = addr.Text
		info := ev.SystemInfo
		info.Enrichment = &models.EnrichmentInfo{Source: addr.Source, EnrichedAt: s.now()}
		version := ev.Version

		updated, err := s.store.UpdateEvent(ctx, ev.ID, models.EventUpdate{
			Location:        &loc,
			SystemInfo:      &info,
			ExpectedVersion: &version,
		})
		if errors.Is(err, models.ErrVersionConflict) {
			s.logger.Debugf("Enrichment of %s raced an update (attempt %d/%d)", task.ExternalID, attempt, maxEnrichAttempts)
			continue
		}
		if err != nil {
			s.logger.Errorf("Enrichment of %s failed to update event: %v", task.ExternalID, err)
			return
		}
		if updated == nil {
			return
		}

		s.metrics.Enriched(addr.Source)
		s.audit.Append(ctx, models.AuditEntry{
			Action:       models.ActionLocationEnriched,
			ResourceType: models.ResourceEmergencyEvent,
			ResourceID:   task.ExternalID,
			Details:      models.EnrichmentDetails{Address: addr.Text, Source: addr.Source},
			Severity:     models.SeverityInfo,
		})
		s.hub.Publish(updated.UserID, StreamMessage{
			Type:       StreamEventEnriched,
			ResourceID: updated.ExternalID,
			Event:      updated,
			Timestamp:  s.now(),
		})
		s.logger.Infof("Enriched event %s with %s address", task.ExternalID, addr.Source)
		return
	}
	s.logger.Warnf("Gave up enriching %s after %d conflicting updates", task.ExternalID, maxEnrichAttempts)
}

func (s *Service) escalate(ctx context.Context, text string) {
	if s.escalator == nil {
		return
	}
	if err := s.escalator.Escalate(ctx, text); err != nil {
		s.logger.Errorf("Operator escalation failed: %v", err)
	}
}
