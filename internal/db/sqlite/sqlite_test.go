package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emergency-service/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	store, err := Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	t.Cleanup(store.Close)
	return store
}

func newEvent(ext string, typ models.EventType, created time.Time) *models.EmergencyEvent {
	return &models.EmergencyEvent{
		ExternalID:      ext,
		EventType:       typ,
		Status:          models.StatusActive,
		Severity:        models.SeverityCritical,
		EmergencyNumber: "911",
		CreatedAt:       created,
	}
}

func ptr[T any](v T) *T { return &v }

func TestCreateAndFindEvent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	created := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	e := newEvent("ext-1", models.EventMedical, created)
	e.UserID = ptr(int64(7))
	e.Location = &models.Location{Latitude: 40.7128, Longitude: -74.006, Accuracy: ptr(12.5)}
	e.SystemInfo = models.SystemInfo{AppVersion: "1.2.3", Extra: map[string]any{"battery": "low"}}

	stored, err := store.CreateEvent(ctx, e)
	require.NoError(t, err)
	assert.NotZero(t, stored.ID)
	assert.Equal(t, int64(1), stored.Version)
	assert.True(t, created.Equal(stored.CreatedAt))

	byID, err := store.GetEventByID(ctx, stored.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "ext-1", byID.ExternalID)
	assert.Equal(t, int64(7), *byID.UserID)
	require.NotNil(t, byID.Location)
	assert.Equal(t, 40.7128, byID.Location.Latitude)
	assert.Equal(t, 12.5, *byID.Location.Accuracy)
	assert.Empty(t, byID.Location.Address)
	assert.Equal(t, "1.2.3", byID.SystemInfo.AppVersion)
	assert.Equal(t, "low", byID.SystemInfo.Extra["battery"])

	byExt, err := store.GetEventByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, stored.ID, byExt.ID)
}

func TestUnknownIDsAreNotErrors(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	e, err := store.GetEventByID(ctx, 404)
	require.NoError(t, err)
	assert.Nil(t, e)

	e, err = store.GetEventByExternalID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, e)

	e, err = store.UpdateEvent(ctx, 404, models.EventUpdate{Notes: ptr("x")})
	require.NoError(t, err)
	assert.Nil(t, e)

	e, err = store.UpdateEvent(ctx, 404, models.EventUpdate{Notes: ptr("x"), ExpectedVersion: ptr(int64(1))})
	require.NoError(t, err)
	assert.Nil(t, e)

	ok, err := store.DeleteEvent(ctx, 404)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListEventsNewestFirstWithPaging(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, typ := range []models.EventType{models.EventFire, models.EventPolice, models.EventMedical} {
		_, err := store.CreateEvent(ctx, newEvent("ext-"+string(typ), typ, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}

	all, err := store.ListEvents(ctx, models.EventFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "ext-medical", all[0].ExternalID)
	assert.Equal(t, "ext-police", all[1].ExternalID)
	assert.Equal(t, "ext-fire", all[2].ExternalID)

	page, err := store.ListEvents(ctx, models.EventFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "ext-police", page[0].ExternalID)

	tail, err := store.ListEvents(ctx, models.EventFilter{Offset: 2})
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, "ext-fire", tail[0].ExternalID)

	fires, err := store.ListEvents(ctx, models.EventFilter{EventType: models.EventFire})
	require.NoError(t, err)
	require.Len(t, fires, 1)

	from := base.Add(30 * time.Minute)
	recent, err := store.ListEvents(ctx, models.EventFilter{DateFrom: &from})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	total, err := store.CountEvents(ctx, models.EventFilter{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestListEventsTieBreaksOnID(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	same := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.CreateEvent(ctx, newEvent("first", models.EventGeneral, same))
	require.NoError(t, err)
	_, err = store.CreateEvent(ctx, newEvent("second", models.EventGeneral, same))
	require.NoError(t, err)

	events, err := store.ListEvents(ctx, models.EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "second", events[0].ExternalID)
}

func TestUpdateEventBumpsVersionAndDetectsConflict(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	e, err := store.CreateEvent(ctx, newEvent("ext", models.EventFire, time.Time{}))
	require.NoError(t, err)

	loc := &models.Location{Latitude: 1, Longitude: 2, Address: "Main St"}
	updated, err := store.UpdateEvent(ctx, e.ID, models.EventUpdate{Location: loc, ExpectedVersion: ptr(e.Version)})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, e.Version+1, updated.Version)
	assert.Equal(t, "Main St", updated.Location.Address)

	_, err = store.UpdateEvent(ctx, e.ID, models.EventUpdate{Notes: ptr("late"), ExpectedVersion: ptr(e.Version)})
	assert.ErrorIs(t, err, models.ErrVersionConflict)

	resolved := models.StatusResolved
	now := time.Now()
	final, err := store.UpdateEvent(ctx, e.ID, models.EventUpdate{Status: &resolved, ResolvedAt: &now, ResponseTime: ptr(95)})
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, final.Status)
	require.NotNil(t, final.ResolvedAt)
	assert.Equal(t, 95, *final.ResponseTime)
	assert.Equal(t, e.Version+2, final.Version)
}

func TestDeleteEvent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	e, err := store.CreateEvent(ctx, newEvent("ext", models.EventFire, time.Time{}))
	require.NoError(t, err)

	ok, err := store.DeleteEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	gone, err := store.GetEventByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestStatistics(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	old := newEvent("old", models.EventFire, now.AddDate(0, 0, -60))
	old.UserID = ptr(int64(1))
	old.ResponseTime = ptr(60)
	fresh := newEvent("fresh", models.EventMedical, now.AddDate(0, 0, -1))
	fresh.UserID = ptr(int64(1))
	fresh.ResponseTime = ptr(120)
	other := newEvent("other", models.EventMedical, now)
	other.UserID = ptr(int64(2))
	other.Status = models.StatusCancelled

	for _, e := range []*models.EmergencyEvent{old, fresh, other} {
		_, err := store.CreateEvent(ctx, e)
		require.NoError(t, err)
	}

	since := now.AddDate(0, 0, -30)
	all, err := store.Statistics(ctx, nil, since)
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total)
	assert.Equal(t, 2, all.RecentEvents)
	assert.Equal(t, map[string]int{"fire": 1, "medical": 2}, all.ByType)
	assert.Equal(t, map[string]int{"active": 2, "cancelled": 1}, all.ByStatus)
	assert.InDelta(t, 90.0, all.AverageResponseTime, 0.001)

	mine, err := store.Statistics(ctx, ptr(int64(1)), since)
	require.NoError(t, err)
	assert.Equal(t, 2, mine.Total)
	assert.Equal(t, 1, mine.RecentEvents)

	empty, err := store.Statistics(ctx, ptr(int64(99)), since)
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Zero(t, empty.AverageResponseTime)
	assert.Empty(t, empty.ByType)
}

func TestAuditEntriesRoundTripDetails(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	entries := []*models.AuditEntry{
		{
			Action: models.ActionCallCreated, ResourceType: models.ResourceEmergencyEvent, ResourceID: "ev-1",
			Severity: models.SeverityCritical,
			Details:  models.CallCreatedDetails{EventType: models.EventFire, Severity: models.SeverityCritical, EmergencyNumber: "911"},
		},
		{
			Action: models.ActionEventLogged, ResourceType: models.ResourceEmergencyEvent, ResourceID: "ev-1",
			Severity: models.SeverityInfo,
			Details:  models.FreeformDetails{"screen": "home"},
		},
	}
	for _, e := range entries {
		require.NoError(t, store.InsertAuditEntry(ctx, e))
		assert.NotZero(t, e.ID)
	}

	got, err := store.ListAuditEntries(ctx, models.ResourceEmergencyEvent, "ev-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.ActionCallCreated, got[0].Action)
	created, ok := got[0].Details.(models.CallCreatedDetails)
	require.True(t, ok)
	assert.Equal(t, "911", created.EmergencyNumber)
	free, ok := got[1].Details.(models.FreeformDetails)
	require.True(t, ok)
	assert.Equal(t, "home", free["screen"])
}

func TestContactAlertKeepsAttemptOrder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	alert := &models.ContactAlert{
		ExternalID:       "alert-1",
		Message:          "help",
		EmergencyType:    models.EventMedical,
		Location:         &models.Location{Latitude: 1, Longitude: 2},
		ContactsTotal:    2,
		ContactsNotified: 1,
		FailedContacts:   []string{"Bob"},
		Attempts: []models.NotificationAttempt{
			{ContactName: "Alice", Channel: models.ChannelEmail, Success: true, ProviderMessageID: "m-1"},
			{ContactName: "Bob", Channel: models.ChannelSMS, Success: false, Error: "rejected"},
		},
	}
	require.NoError(t, store.CreateContactAlert(ctx, alert))
	assert.NotZero(t, alert.ID)

	got, err := store.GetContactAlert(ctx, "alert-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"Bob"}, got.FailedContacts)
	require.Len(t, got.Attempts, 2)
	assert.Equal(t, "Alice", got.Attempts[0].ContactName)
	assert.True(t, got.Attempts[0].Success)
	assert.Equal(t, "m-1", got.Attempts[0].ProviderMessageID)
	assert.Equal(t, "rejected", got.Attempts[1].Error)

	missing, err := store.GetContactAlert(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestClosedStoreReportsUnavailable(t *testing.T) {
	store := setupTestStore(t)
	store.Close()

	_, err := store.CreateEvent(context.Background(), newEvent("ext", models.EventFire, time.Time{}))
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
	assert.ErrorIs(t, store.Ping(context.Background()), models.ErrStorageUnavailable)
}
