package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emergency-service/internal/audit"
	"emergency-service/internal/config"
	"emergency-service/internal/db/sqlite"
	"emergency-service/internal/location"
	"emergency-service/internal/logging"
	"emergency-service/internal/metrics"
	"emergency-service/internal/models"
	"emergency-service/internal/notification"
	"emergency-service/internal/services"
)

type scriptedProvider struct {
	fail map[string]bool
}

func (p scriptedProvider) SendSMS(_ context.Context, phone, _ string) (string, error) {
	if p.fail[phone] {
		return "", errors.New("sms gateway unavailable")
	}
	return "sms-1", nil
}

func (p scriptedProvider) SendEmail(_ context.Context, address, _ string, _ notification.EmailBody) (string, error) {
	if p.fail[address] {
		return "", errors.New("smtp relay refused")
	}
	return "email-1", nil
}

type testServer struct {
	router *gin.Engine
	store  *sqlite.Store
	hub    *services.Hub
}

func setupTestServer(t *testing.T, fail map[string]bool) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	logger := logging.Discard()

	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	t.Cleanup(store.Close)

	var cfg config.Config
	cfg.API.BasePath = "/api/v0"
	cfg.Worker.QueueSize = 16
	cfg.Worker.MaxWorkers = 1
	cfg.Emergency.DefaultNumber = "911"

	m := metrics.New(prometheus.NewRegistry())
	hub := services.NewHub(logger, m)
	svc := services.New(services.Deps{
		Store:      store,
		Audit:      audit.New(store, logger),
		Dispatcher: notification.NewDispatcher(scriptedProvider{fail: fail}, notification.MustLoadTemplates(), logger, notification.WithRecorder(m)),
		Enricher:   location.NewEnricher(logger),
		Hub:        hub,
		Metrics:    m,
		Logger:     logger,
	}, cfg)
	var wg sync.WaitGroup
	svc.Start(&wg)
	t.Cleanup(func() {
		svc.Stop()
		wg.Wait()
		hub.CloseAll()
	})

	return &testServer{router: NewRouter(svc, logger, cfg, m), store: store, hub: hub}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestInitiateCall(t *testing.T) {
	srv := setupTestServer(t, nil)

	w, body := srv.do(t, http.MethodPost, "/api/v0/emergency/call", map[string]any{
		"emergencyType": "fire",
		"timestamp":     "2024-03-01T12:00:00Z",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "911", body["emergencyNumber"])
	assert.Equal(t, msgCallInitiated, body["message"])
	assert.Nil(t, body["location"])
	callID := body["callId"].(string)
	assert.Len(t, callID, 36)

	w, body = srv.do(t, http.MethodGet, "/api/v0/emergency/events/"+callID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	event := body["event"].(map[string]any)
	assert.Equal(t, "critical", event["severity"])
	assert.Equal(t, "active", event["status"])
}

func TestInitiateCallRequiresType(t *testing.T) {
	srv := setupTestServer(t, nil)

	w, body := srv.do(t, http.MethodPost, "/api/v0/emergency/call", map[string]any{"timestamp": "now"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Emergency type is required", body["message"])
	assert.Equal(t, "", body["callId"])
}

func TestInitiateCallWithOutOfRangeLocation(t *testing.T) {
	srv := setupTestServer(t, nil)

	w, body := srv.do(t, http.MethodPost, "/api/v0/emergency/call", map[string]any{
		"emergencyType": "medical",
		"location":      map[string]any{"latitude": 40.7128, "longitude": 181},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "911", body["emergencyNumber"])
	assert.Nil(t, body["location"])

	w, body = srv.do(t, http.MethodGet, "/api/v0/emergency/events/"+body["callId"].(string), nil)
	require.Equal(t, http.StatusOK, w.Code)
	event := body["event"].(map[string]any)
	assert.Nil(t, event["location"])
	extra := event["systemInfo"].(map[string]any)["extra"].(map[string]any)
	assert.Equal(t, "latitude=40.7128 longitude=181", extra["rejectedLocation"])
}

func TestInitiateCallStorageFailure(t *testing.T) {
	srv := setupTestServer(t, nil)
	srv.store.Close()

	w, body := srv.do(t, http.MethodPost, "/api/v0/emergency/call", map[string]any{"emergencyType": "medical"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, msgCallFailed, body["message"])

	w, body = srv.do(t, http.MethodGet, "/api/v0/emergency/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, false, body["healthy"])
}

func TestAlertContactsPartialFailure(t *testing.T) {
	srv := setupTestServer(t, map[string]bool{"+15550002222": true, "both@example.com": true})

	w, body := srv.do(t, http.MethodPost, "/api/v0/emergency/alert-contacts", map[string]any{
		"contacts": []map[string]any{
			{"name": "Email Only", "email": "only@example.com", "relationship": "friend"},
			{"name": "Phone Only", "phone": "+15550002222", "relationship": "sibling"},
			{"name": "Both", "phone": "+15550003333", "email": "both@example.com", "relationship": "parent"},
		},
		"message":       "I need help",
		"emergencyType": "medical",
		"location":      map[string]any{"latitude": 40.7128, "longitude": -74.006},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 2, body["contactsNotified"])
	assert.Equal(t, []any{"Phone Only"}, body["failedContacts"])
	assert.Equal(t, "Successfully alerted 2 of 3 emergency contacts.", body["message"])

	w, body = srv.do(t, http.MethodGet, "/api/v0/emergency/alerts/"+body["alertId"].(string), nil)
	require.Equal(t, http.StatusOK, w.Code)
	alert := body["alert"].(map[string]any)
	assert.Len(t, alert["attempts"], 4)
}

func TestAlertContactsRequiresContacts(t *testing.T) {
	srv := setupTestServer(t, nil)

	w, body := srv.do(t, http.MethodPost, "/api/v0/emergency/alert-contacts", map[string]any{"contacts": []any{}, "message": "help"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No emergency contacts provided", body["message"])
	assert.Equal(t, []any{}, body["failedContacts"])
}

func TestLogEvent(t *testing.T) {
	srv := setupTestServer(t, nil)

	w, body := srv.do(t, http.MethodPost, "/api/v0/emergency/log-event", map[string]any{"kind": "sos_pressed"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, msgEventLogged, body["message"])

	entries, err := srv.store.ListAuditEntries(context.Background(), models.ResourceEmergencyEvent, body["eventId"].(string))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionEventLogged, entries[0].Action)
}

func TestHistoryAndStatistics(t *testing.T) {
	srv := setupTestServer(t, nil)

	for _, typ := range []string{"medical", "police"} {
		w, _ := srv.do(t, http.MethodPost, "/api/v0/emergency/call", map[string]any{"emergencyType": typ, "userId": 3})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w, body := srv.do(t, http.MethodGet, "/api/v0/emergency/history?limit=1&offset=0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["total"])
	assert.EqualValues(t, 1, body["limit"])
	history := body["history"].([]any)
	require.Len(t, history, 1)
	entry := history[0].(map[string]any)
	assert.Equal(t, "Police Emergency", entry["type"])
	assert.Equal(t, "Active", entry["status"])
	assert.Equal(t, "N/A", entry["responseTime"])

	w, body = srv.do(t, http.MethodGet, "/api/v0/emergency/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 50, body["limit"])

	w, _ = srv.do(t, http.MethodGet, "/api/v0/emergency/history?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = srv.do(t, http.MethodGet, "/api/v0/emergency/statistics?userId=3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := body["statistics"].(map[string]any)
	assert.EqualValues(t, 2, stats["total"])
	assert.EqualValues(t, 1, stats["byType"].(map[string]any)["police"])
}

func TestEventLifecycle(t *testing.T) {
	srv := setupTestServer(t, nil)

	_, body := srv.do(t, http.MethodPost, "/api/v0/emergency/call", map[string]any{"emergencyType": "general"})
	callID := body["callId"].(string)

	w, body := srv.do(t, http.MethodPost, "/api/v0/emergency/events/"+callID+"/resolve", map[string]any{"responseTime": 90, "notes": "Handled"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "resolved", body["event"].(map[string]any)["status"])

	w, _ = srv.do(t, http.MethodPost, "/api/v0/emergency/events/"+callID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body = srv.do(t, http.MethodGet, "/api/v0/emergency/events/"+callID+"/audit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["entries"])

	w, _ = srv.do(t, http.MethodDelete, "/api/v0/emergency/events/"+callID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = srv.do(t, http.MethodGet, "/api/v0/emergency/events/"+callID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNearbyServices(t *testing.T) {
	srv := setupTestServer(t, nil)

	w, body := srv.do(t, http.MethodGet, "/api/v0/emergency/nearby?latitude=40.7128&longitude=-74.006&type=hospital", nil)
	require.Equal(t, http.StatusOK, w.Code)
	found, ok := body["services"].([]any)
	require.True(t, ok)
	require.Len(t, found, 1)
	hospital := found[0].(map[string]any)
	assert.Equal(t, "hospital", hospital["type"])
	assert.Equal(t, true, hospital["approximate"])

	w, _ = srv.do(t, http.MethodGet, "/api/v0/emergency/nearby?latitude=95&longitude=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = srv.do(t, http.MethodGet, "/api/v0/emergency/nearby?latitude=1&longitude=1&type=spa", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = srv.do(t, http.MethodGet, "/api/v0/emergency/nearby", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := setupTestServer(t, nil)

	w, body := srv.do(t, http.MethodGet, "/api/v0/emergency/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["healthy"])
	assert.Equal(t, map[string]any{"database": true, "core_functionality": true}, body["services"])

	w, _ = srv.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "emergency_http_requests_total")
}

func TestStreamReceivesCreatedEvents(t *testing.T) {
	srv := setupTestServer(t, nil)
	ts := httptest.NewServer(srv.router)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v0/emergency/stream?userId=9"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return srv.hub.Count(9) == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(ts.URL+"/api/v0/emergency/call", "application/json",
		strings.NewReader(`{"emergencyType":"medical","userId":9}`))
	require.NoError(t, err)
	resp.Body.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg services.StreamMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, services.StreamEventCreated, msg.Type)
	require.NotNil(t, msg.Event)
	assert.Equal(t, msg.ResourceID, msg.Event.ExternalID)
}
