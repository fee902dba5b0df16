package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emergency-service/internal/logging"
	"emergency-service/internal/models"
)

type fakeWriter struct {
	mu      sync.Mutex
	entries []models.AuditEntry
	err     error
	block   bool
}

func (f *fakeWriter) InsertAuditEntry(ctx context.Context, e *models.AuditEntry) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *e)
	return nil
}

func TestAppendWritesEntryWithTimestamp(t *testing.T) {
	w := &fakeWriter{}
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	l := New(w, logging.Discard(), WithClock(func() time.Time { return fixed }))

	l.Append(context.Background(), models.AuditEntry{
		Action:       models.ActionCallCreated,
		ResourceType: models.ResourceEmergencyEvent,
		ResourceID:   "ev-1",
		Severity:     models.SeverityCritical,
	})

	require.Len(t, w.entries, 1)
	assert.Equal(t, fixed, w.entries[0].CreatedAt)
	assert.Equal(t, "ev-1", w.entries[0].ResourceID)
}

func TestAppendSwallowsWriteFailures(t *testing.T) {
	base, hook := test.NewNullLogger()
	w := &fakeWriter{err: errors.New("disk full")}
	l := New(w, logging.FromLogrus(base))

	assert.NotPanics(t, func() {
		l.Append(context.Background(), models.AuditEntry{
			Action:       models.ActionContactsAlerted,
			ResourceType: models.ResourceContactAlert,
			ResourceID:   "alert-1",
			Severity:     models.SeverityHigh,
		})
	})

	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, models.ActionContactsAlerted, entry.Data["action"])
	assert.Equal(t, "alert-1", entry.Data["resource_id"])
	assert.Contains(t, entry.Message, "disk full")
}

func TestAppendIsBoundedByTimeout(t *testing.T) {
	w := &fakeWriter{block: true}
	l := New(w, logging.Discard(), WithTimeout(20*time.Millisecond))

	start := time.Now()
	l.Append(context.Background(), models.AuditEntry{Action: models.ActionEventLogged})
	assert.Less(t, time.Since(start), time.Second)
}

func TestAppendSurvivesCancelledCaller(t *testing.T) {
	w := &fakeWriter{}
	l := New(w, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.Append(ctx, models.AuditEntry{Action: models.ActionEventLogged})

	assert.Len(t, w.entries, 1)
}
