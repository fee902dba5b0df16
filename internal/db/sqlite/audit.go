package sqlite

import (
	"context"

	"emergency-service/internal/db"
	"emergency-service/internal/models"
)

func (s *Store) InsertAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	kind, details, err := models.EncodeDetails(entry.Details)
	if err != nil {
		return err
	}
	created := entry.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	res, err := s.db.ExecContext(ctx, `
	INSERT INTO audit_log (action, resource_type, resource_id, details_kind, details, severity, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Action, entry.ResourceType, entry.ResourceID, kind, string(details), string(entry.Severity), formatTime(created),
	)
	if err != nil {
		return db.Unavailable("insert audit entry", err)
	}
	if entry.ID, err = res.LastInsertId(); err != nil {
		return db.Unavailable("insert audit entry", err)
	}
	entry.CreatedAt = created.UTC()
	return nil
}

func (s *Store) ListAuditEntries(ctx context.Context, resourceType, resourceID string) ([]models.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, action, resource_type, resource_id, details_kind, COALESCE(details, 'null'), severity, created_at
	FROM audit_log
	WHERE resource_type = ? AND resource_id = ?
	ORDER BY id`, resourceType, resourceID)
	if err != nil {
		return nil, db.Unavailable("list audit entries", err)
	}
	defer rows.Close()

	entries := []models.AuditEntry{}
	for rows.Next() {
		var (
			e       models.AuditEntry
			kind    string
			details string
			created string
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.ResourceType, &e.ResourceID, &kind, &details, &e.Severity, &created); err != nil {
			return nil, db.Unavailable("scan audit entry", err)
		}
		if e.Details, err = models.DecodeDetails(kind, []byte(details)); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Unavailable("list audit entries", err)
	}
	return entries, nil
}
