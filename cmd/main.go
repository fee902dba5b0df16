package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"emergency-service/internal/api"
	"emergency-service/internal/audit"
	"emergency-service/internal/config"
	"emergency-service/internal/db"
	"emergency-service/internal/db/sqlite"
	"emergency-service/internal/kafka"
	"emergency-service/internal/location"
	"emergency-service/internal/logging"
	"emergency-service/internal/metrics"
	"emergency-service/internal/models"
	"emergency-service/internal/notification"
	"emergency-service/internal/providers"
	"emergency-service/internal/services"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Errorf("Failed to open %s store: %v", cfg.DB.Driver, err)
		log.Fatalf("Database connection failed: %v", err)
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	enricher, err := newEnricher(cfg, logger)
	if err != nil {
		log.Fatalf("Location enricher init failed: %v", err)
	}

	adapter, err := providers.FromConfig(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Notification provider init failed: %v", err)
	}
	dispatcher := notification.NewDispatcher(adapter, notification.MustLoadTemplates(), logger,
		notification.WithConcurrency(cfg.Notification.Concurrency),
		notification.WithAttemptTimeout(cfg.Notification.AttemptTimeout),
		notification.WithRateLimit(models.ChannelSMS, cfg.Notification.SMSRatePerSecond),
		notification.WithRateLimit(models.ChannelEmail, cfg.Notification.EmailRatePerSecond),
		notification.WithRecorder(m),
	)

	var escalator services.Escalator
	if cfg.Telegram.BotToken != "" {
		escalator = providers.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.RatePerSecond, logger)
		logger.Infof("Operator escalation enabled for chat %d", cfg.Telegram.ChatID)
	}

	numbers := services.FlatNumberPolicy(cfg.Emergency.DefaultNumber)
	if cfg.Emergency.JurisdictionAware {
		numbers = services.JurisdictionNumberPolicy()
	}

	hub := services.NewHub(logger, m)
	svc := services.New(services.Deps{
		Store:      store,
		Audit:      audit.New(store, logger),
		Dispatcher: dispatcher,
		Enricher:   enricher,
		Numbers:    services.NewNumberResolver(numbers),
		Hub:        hub,
		Escalator:  escalator,
		Metrics:    m,
		Logger:     logger,
	}, cfg)
	var wg sync.WaitGroup
	svc.Start(&wg)

	// Initialize Kafka consumer
	if cfg.Kafka.Broker != "" {
		consumer := kafka.NewConsumer([]string{cfg.Kafka.Broker}, cfg.Kafka.Topic, cfg.Kafka.GroupID, svc, logger)
		consumer.Start(ctx, &wg)
		defer consumer.Close()
		logger.Infof("Kafka consumer initialized with topic: %s", cfg.Kafka.Topic)
	}

	// Start API server
	server := &http.Server{
		Addr:              cfg.API.Port,
		Handler:           api.NewRouter(svc, logger, cfg, m),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Infof("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API server shutdown failed: %v", err)
	}
	hub.CloseAll()
	svc.Stop()
	wg.Wait()
}

func openStore(ctx context.Context, cfg config.Config, logger *logging.Logger) (services.Store, func(), error) {
	switch cfg.DB.Driver {
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		d, err := db.New(ctx, cfg.DB.DSN, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := d.Migrate(ctx); err != nil {
			d.Close()
			return nil, nil, err
		}
		return d, d.Close, nil
	}
}

func newEnricher(cfg config.Config, logger *logging.Logger) (*location.Enricher, error) {
	opts := []location.Option{location.WithTimeout(cfg.Maps.GeocodeTimeout)}
	if cfg.Maps.APIKey != "" {
		gm, err := location.NewGoogleMaps(cfg.Maps.APIKey)
		if err != nil {
			return nil, err
		}
		opts = append(opts, location.WithGeocoder(gm), location.WithDirectory(gm))
		logger.Infof("Google Maps geocoding enabled")
	}
	return location.NewEnricher(logger, opts...), nil
}
