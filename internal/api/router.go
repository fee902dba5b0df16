package api

import (
	"github.com/gin-gonic/gin"

	"emergency-service/internal/config"
	"emergency-service/internal/logging"
	"emergency-service/internal/metrics"
	"emergency-service/internal/services"
)

func NewRouter(svc *services.Service, logger *logging.Logger, cfg config.Config, m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))
	r.Use(MetricsMiddleware(m))

	h := NewHandler(svc, logger)
	api := r.Group(cfg.API.BasePath + "/emergency")
	{
		api.POST("/call", h.InitiateCall)
		api.POST("/alert-contacts", h.AlertContacts)
		api.POST("/log-event", h.LogEvent)
		api.GET("/history", h.GetHistory)
		api.GET("/statistics", h.GetStatistics)
		api.GET("/health", h.Health)

		// Event lifecycle
		api.GET("/events/:id", h.GetEvent)
		api.POST("/events/:id/resolve", h.ResolveEvent)
		api.POST("/events/:id/cancel", h.CancelEvent)
		api.DELETE("/events/:id", h.DeleteEvent)
		api.GET("/events/:id/audit", h.GetAuditTrail)

		api.GET("/alerts/:id", h.GetAlert)
		api.GET("/nearby", h.NearbyServices)
		api.GET("/stream", h.Stream)
	}

	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}
	return r
}
