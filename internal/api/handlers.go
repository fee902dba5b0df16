package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"emergency-service/internal/location"
	"emergency-service/internal/logging"
	"emergency-service/internal/models"
	"emergency-service/internal/services"
)

const (
	msgCallInitiated = "Emergency call initiated successfully. Location shared with emergency services."
	msgCallFailed    = "Failed to initiate emergency call. Please call 911 directly."
	msgAlertFailed   = "Failed to alert emergency contacts."
	msgEventLogged   = "Emergency event logged successfully."
	msgLogFailed     = "Failed to log emergency event."
	msgHistoryFailed = "Failed to fetch emergency history."
	msgStatsFailed   = "Failed to fetch emergency statistics."
	msgEventFailed   = "Failed to update emergency event."
	msgNearbyFailed  = "Failed to find nearby emergency services."
)

type Handler struct {
	svc    *services.Service
	logger *logging.Logger
}

func NewHandler(svc *services.Service, logger *logging.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type callRequest struct {
	EmergencyType models.EventType `json:"emergencyType"`
	Location      *models.Location `json:"location"`
	UserInfo      *models.UserInfo `json:"userInfo"`
	Timestamp     string           `json:"timestamp"`
	UserID        *int64           `json:"userId"`
}

type alertRequest struct {
	Contacts      []models.Contact `json:"contacts"`
	Message       string           `json:"message"`
	EmergencyType models.EventType `json:"emergencyType"`
	Location      *models.Location `json:"location"`
	UserID        *int64           `json:"userId"`
}

type resolveRequest struct {
	ResponseTime *int    `json:"responseTime"`
	CallDuration *int    `json:"callDuration"`
	Notes        *string `json:"notes"`
}

// statusFor maps a service error to an HTTP status. Anything unrecognised is
// treated as the store being unavailable.
func statusFor(err error) int {
	switch {
	case models.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrVersionConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// failureMessage keeps validation and lookup messages and hides storage details
// behind fallback.
func failureMessage(err error, fallback string) string {
	if statusFor(err) == http.StatusInternalServerError {
		return fallback
	}
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	return err.Error()
}

func (h *Handler) InitiateCall(c *gin.Context) {
	var req callRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid request body for emergency call: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "callId": "", "message": "Invalid request body", "timestamp": time.Now().UTC()})
		return
	}

	res, err := h.svc.InitiateCall(c.Request.Context(), services.CallRequest{
		EmergencyType: req.EmergencyType,
		Location:      req.Location,
		UserInfo:      req.UserInfo,
		UserID:        req.UserID,
		Timestamp:     req.Timestamp,
		Client: &models.ClientInfo{
			UserAgent: c.Request.UserAgent(),
			Language:  c.GetHeader("Accept-Language"),
		},
		UserIP: c.ClientIP(),
	})
	if err != nil {
		h.logger.Errorf("Emergency call failed: %v", err)
		c.JSON(statusFor(err), gin.H{"success": false, "callId": "", "message": failureMessage(err, msgCallFailed), "timestamp": time.Now().UTC()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"callId":          res.CallID,
		"message":         msgCallInitiated,
		"emergencyNumber": res.EmergencyNumber,
		"location":        res.Location,
		"timestamp":       res.Timestamp,
	})
}

func (h *Handler) AlertContacts(c *gin.Context) {
	var req alertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid request body for contact alert: %v", err)
		c.JSON(http.StatusBadRequest, alertFailure("Invalid request body"))
		return
	}

	res, err := h.svc.AlertContacts(c.Request.Context(), services.AlertRequest{
		Contacts:      req.Contacts,
		Message:       req.Message,
		EmergencyType: req.EmergencyType,
		Location:      req.Location,
		UserID:        req.UserID,
	})
	if err != nil {
		h.logger.Errorf("Contact alert failed: %v", err)
		c.JSON(statusFor(err), alertFailure(failureMessage(err, msgAlertFailed)))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"alertId":          res.AlertID,
		"contactsNotified": res.ContactsNotified,
		"failedContacts":   res.FailedContacts,
		"message":          services.AlertSummary(res.ContactsNotified, res.ContactsTotal),
	})
}

func alertFailure(message string) gin.H {
	return gin.H{"success": false, "alertId": "", "contactsNotified": 0, "failedContacts": []string{}, "message": message}
}

func (h *Handler) LogEvent(c *gin.Context) {
	payload := map[string]any{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.logger.Errorf("Invalid request body for event log: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "eventId": "", "message": msgLogFailed})
		return
	}
	payload["userIp"] = c.ClientIP()
	payload["userAgent"] = c.Request.UserAgent()

	id := h.svc.LogEvent(c.Request.Context(), payload)
	c.JSON(http.StatusOK, gin.H{"success": true, "eventId": id, "message": msgEventLogged, "timestamp": time.Now().UTC()})
}

func (h *Handler) GetHistory(c *gin.Context) {
	filter, err := historyFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "history": []services.HistoryEntry{}, "total": 0, "message": failureMessage(err, msgHistoryFailed)})
		return
	}

	page, err := h.svc.History(c.Request.Context(), filter)
	if err != nil {
		h.logger.Errorf("Failed to fetch emergency history: %v", err)
		c.JSON(statusFor(err), gin.H{"success": false, "history": []services.HistoryEntry{}, "total": 0, "message": failureMessage(err, msgHistoryFailed)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"history": page.Entries,
		"total":   page.Total,
		"limit":   page.Limit,
		"offset":  page.Offset,
	})
}

func historyFilter(c *gin.Context) (models.EventFilter, error) {
	var f models.EventFilter
	var err error
	if f.UserID, err = optionalInt64(c, "userId"); err != nil {
		return f, err
	}
	if f.Limit, err = optionalInt(c, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = optionalInt(c, "offset"); err != nil {
		return f, err
	}
	if v := c.Query("type"); v != "" {
		f.EventType = models.EventType(v)
		if !f.EventType.Valid() {
			return f, models.NewValidationError("type", "Unknown emergency type "+strconv.Quote(v))
		}
	}
	if v := c.Query("status"); v != "" {
		f.Status = models.EventStatus(v)
		if !f.Status.Valid() {
			return f, models.NewValidationError("status", "Unknown status "+strconv.Quote(v))
		}
	}
	for key, dst := range map[string]**time.Time{"dateFrom": &f.DateFrom, "dateTo": &f.DateTo} {
		if v := c.Query(key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return f, models.NewValidationError(key, "Invalid "+key+", expected RFC 3339")
			}
			*dst = &t
		}
	}
	return f, nil
}

func (h *Handler) GetStatistics(c *gin.Context) {
	userID, err := optionalInt64(c, "userId")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "statistics": nil, "message": failureMessage(err, msgStatsFailed)})
		return
	}
	stats, err := h.svc.Statistics(c.Request.Context(), userID)
	if err != nil {
		h.logger.Errorf("Failed to fetch emergency statistics: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "statistics": nil, "message": msgStatsFailed})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "statistics": stats})
}

func (h *Handler) Health(c *gin.Context) {
	health := h.svc.Health(c.Request.Context())
	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
		h.logger.Warnf("Health check failed: %v", health.Services)
	}
	c.JSON(status, gin.H{
		"healthy":   health.Healthy,
		"timestamp": time.Now().UTC(),
		"services":  health.Services,
		"uptime":    health.Uptime.Seconds(),
	})
}

func (h *Handler) GetEvent(c *gin.Context) {
	id := c.Param("id")
	ev, err := h.svc.GetEvent(c.Request.Context(), id)
	if err != nil {
		h.logger.Errorf("Failed to get emergency event %s: %v", id, err)
		c.JSON(statusFor(err), gin.H{"success": false, "message": failureMessage(err, "Failed to fetch emergency event.")})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "event": ev})
}

func (h *Handler) ResolveEvent(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request body"})
		return
	}
	id := c.Param("id")
	ev, err := h.svc.ResolveEvent(c.Request.Context(), id, services.Resolution{
		ResponseTime: req.ResponseTime,
		CallDuration: req.CallDuration,
		Notes:        req.Notes,
	})
	h.respondEvent(c, id, ev, err)
}

func (h *Handler) CancelEvent(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request body"})
		return
	}
	id := c.Param("id")
	ev, err := h.svc.CancelEvent(c.Request.Context(), id, req.Notes)
	h.respondEvent(c, id, ev, err)
}

func (h *Handler) respondEvent(c *gin.Context, id string, ev *models.EmergencyEvent, err error) {
	if err != nil {
		h.logger.Errorf("Failed to update emergency event %s: %v", id, err)
		c.JSON(statusFor(err), gin.H{"success": false, "message": failureMessage(err, msgEventFailed)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "event": ev})
}

func (h *Handler) DeleteEvent(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.DeleteEvent(c.Request.Context(), id); err != nil {
		h.logger.Errorf("Failed to delete emergency event %s: %v", id, err)
		c.JSON(statusFor(err), gin.H{"success": false, "message": failureMessage(err, "Failed to delete emergency event.")})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Emergency event deleted."})
}

func (h *Handler) GetAuditTrail(c *gin.Context) {
	id := c.Param("id")
	entries, err := h.svc.AuditTrail(c.Request.Context(), id)
	if err != nil {
		h.logger.Errorf("Failed to list audit trail of %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to fetch audit trail."})
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "entries": entries})
}

func (h *Handler) GetAlert(c *gin.Context) {
	id := c.Param("id")
	alert, err := h.svc.GetAlert(c.Request.Context(), id)
	if err != nil {
		h.logger.Errorf("Failed to get contact alert %s: %v", id, err)
		c.JSON(statusFor(err), gin.H{"success": false, "message": failureMessage(err, "Failed to fetch contact alert.")})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "alert": alert})
}

func (h *Handler) NearbyServices(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("latitude"), 64)
	lon, errLon := strconv.ParseFloat(c.Query("longitude"), 64)
	if errLat != nil || errLon != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "latitude and longitude are required"})
		return
	}
	radius := location.DefaultSearchRadius
	if v := c.Query("radius"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid radius"})
			return
		}
		radius = r
	}

	found, err := h.svc.NearbyServices(c.Request.Context(),
		location.Coordinates{Latitude: lat, Longitude: lon},
		location.ServiceType(c.Query("type")), radius)
	if err != nil {
		h.logger.Errorf("Nearby services lookup failed: %v", err)
		c.JSON(statusFor(err), gin.H{"success": false, "message": failureMessage(err, msgNearbyFailed)})
		return
	}
	if found == nil {
		found = []location.ServiceLocation{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "services": found})
}

func optionalInt(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, models.NewValidationError(key, "Invalid "+key)
	}
	return n, nil
}

func optionalInt64(c *gin.Context, key string) (*int64, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, models.NewValidationError(key, "Invalid "+key)
	}
	return &n, nil
}
