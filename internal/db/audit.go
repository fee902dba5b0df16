package db

import (
	"context"
	"time"

	"emergency-service/internal/models"
)

// InsertAuditEntry appends one audit row.
func (d *DB) InsertAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	kind, details, err := models.EncodeDetails(entry.Details)
	if err != nil {
		return err
	}
	created := entry.CreatedAt
	if created.IsZero() {
		created = d.now()
	}
	err = d.Pool.QueryRow(ctx, `
	INSERT INTO audit_log (action, resource_type, resource_id, details_kind, details, severity, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id`,
		entry.Action, entry.ResourceType, entry.ResourceID, kind, string(details), string(entry.Severity), pgTime(created),
	).Scan(&entry.ID)
	if err != nil {
		return Unavailable("insert audit entry", err)
	}
	entry.CreatedAt = created
	return nil
}

// ListAuditEntries returns the trail of one resource in append order.
func (d *DB) ListAuditEntries(ctx context.Context, resourceType, resourceID string) ([]models.AuditEntry, error) {
	rows, err := d.Pool.Query(ctx, `
	SELECT id, action, resource_type, resource_id, details_kind, COALESCE(details::text, 'null'), severity, created_at
	FROM audit_log
	WHERE resource_type = $1 AND resource_id = $2
	ORDER BY id`, resourceType, resourceID)
	if err != nil {
		return nil, Unavailable("list audit entries", err)
	}
	defer rows.Close()

	entries := []models.AuditEntry{}
	for rows.Next() {
		var (
			e       models.AuditEntry
			kind    string
			details string
			created time.Time
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.ResourceType, &e.ResourceID, &kind, &details, &e.Severity, &created); err != nil {
			return nil, Unavailable("scan audit entry", err)
		}
		if e.Details, err = models.DecodeDetails(kind, []byte(details)); err != nil {
			return nil, err
		}
		e.CreatedAt = created
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, Unavailable("list audit entries", err)
	}
	return entries, nil
}
