// Package audit appends safety relevant actions to the audit trail.
package audit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"emergency-service/internal/logging"
	"emergency-service/internal/models"
)

const defaultTimeout = 2 * time.Second

// Writer persists audit entries.
type Writer interface {
	InsertAuditEntry(ctx context.Context, entry *models.AuditEntry) error
}

// Log is a best-effort audit trail. Append never fails the caller.
type Log struct {
	writer  Writer
	logger  *logging.Logger
	timeout time.Duration
	now     func() time.Time
}

type Option func(*Log)

func WithTimeout(d time.Duration) Option {
	return func(l *Log) { l.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

func New(writer Writer, logger *logging.Logger, opts ...Option) *Log {
	l := &Log{writer: writer, logger: logger, timeout: defaultTimeout, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append writes entry. Write failures are logged locally and swallowed. The write
// is detached from ctx cancellation so a finished request does not drop its entry.
func (l *Log) Append(ctx context.Context, entry models.AuditEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.now()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	if err := l.writer.InsertAuditEntry(ctx, &entry); err != nil {
		l.logger.WithFields(logrus.Fields{
			"action":        entry.Action,
			"resource_type": entry.ResourceType,
			"resource_id":   entry.ResourceID,
			"severity":      entry.Severity,
		}).Errorf("Audit write failed: %v", err)
		return
	}
	l.logger.Debugf("Audit %s recorded for %s %s", entry.Action, entry.ResourceType, entry.ResourceID)
}
