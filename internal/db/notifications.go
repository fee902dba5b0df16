package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"emergency-service/internal/models"
)

// insertAttempts writes attempts with their batch position so reads keep dispatch order.
func insertAttempts(ctx context.Context, tx pgx.Tx, alertID int64, attempts []models.NotificationAttempt) error {
	if len(attempts) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, at := range attempts {
		batch.Queue(`
		INSERT INTO notification_attempts (
			alert_id, position, contact_name, channel, success, provider_message_id, error, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			alertID, i, at.ContactName, string(at.Channel), at.Success,
			nullString(at.ProviderMessageID), nullString(at.Error), at.Duration.Milliseconds(),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return Unavailable("insert notification attempts", err)
	}
	return nil
}

func (d *DB) listAttempts(ctx context.Context, alertID int64) ([]models.NotificationAttempt, error) {
	rows, err := d.Pool.Query(ctx, `
	SELECT contact_name, channel, success, provider_message_id, error, duration_ms
	FROM notification_attempts
	WHERE alert_id = $1
	ORDER BY position`, alertID)
	if err != nil {
		return nil, Unavailable("list notification attempts", err)
	}
	defer rows.Close()

	attempts := []models.NotificationAttempt{}
	for rows.Next() {
		var (
			at          models.NotificationAttempt
			msgID, errS *string
			durationMS  int64
		)
		if err := rows.Scan(&at.ContactName, &at.Channel, &at.Success, &msgID, &errS, &durationMS); err != nil {
			return nil, Unavailable("scan notification attempt", err)
		}
		if msgID != nil {
			at.ProviderMessageID = *msgID
		}
		if errS != nil {
			at.Error = *errS
		}
		at.Duration = time.Duration(durationMS) * time.Millisecond
		attempts = append(attempts, at)
	}
	if err := rows.Err(); err != nil {
		return nil, Unavailable("list notification attempts", err)
	}
	return attempts, nil
}
