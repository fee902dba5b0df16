package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"emergency-service/internal/db"
	"emergency-service/internal/models"
)

func (s *Store) CreateContactAlert(ctx context.Context, alert *models.ContactAlert) error {
	failed := alert.FailedContacts
	if failed == nil {
		failed = []string{}
	}
	failedJSON, err := json.Marshal(failed)
	if err != nil {
		return fmt.Errorf("failed to encode failed contacts: %w", err)
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = s.now()
	}
	lat, lon, acc, addr := db.LocationColumns(alert.Location)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return db.Unavailable("begin contact alert transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
	INSERT INTO contact_alerts (
		external_id, message, emergency_type, latitude, longitude, accuracy, address,
		contacts_total, contacts_notified, failed_contacts, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ExternalID, alert.Message, string(alert.EmergencyType), lat, lon, acc, addr,
		alert.ContactsTotal, alert.ContactsNotified, string(failedJSON), formatTime(alert.CreatedAt),
	)
	if err != nil {
		return db.Unavailable("insert contact alert", err)
	}
	if alert.ID, err = res.LastInsertId(); err != nil {
		return db.Unavailable("insert contact alert", err)
	}

	for i, at := range alert.Attempts {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO notification_attempts (
			alert_id, position, contact_name, channel, success, provider_message_id, error, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			alert.ID, i, at.ContactName, string(at.Channel), at.Success,
			nullString(at.ProviderMessageID), nullString(at.Error), at.Duration.Milliseconds(),
		)
		if err != nil {
			return db.Unavailable("insert notification attempt", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return db.Unavailable("commit contact alert", err)
	}
	return nil
}

func (s *Store) GetContactAlert(ctx context.Context, externalID string) (*models.ContactAlert, error) {
	var (
		alert         models.ContactAlert
		lat, lon, acc *float64
		addr          *string
		failed        string
		created       string
	)
	err := s.db.QueryRowContext(ctx, `
	SELECT id, external_id, message, emergency_type, latitude, longitude, accuracy, address,
	       contacts_total, contacts_notified, failed_contacts, created_at
	FROM contact_alerts WHERE external_id = ?`, externalID).Scan(
		&alert.ID, &alert.ExternalID, &alert.Message, &alert.EmergencyType, &lat, &lon, &acc, &addr,
		&alert.ContactsTotal, &alert.ContactsNotified, &failed, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, db.Unavailable(fmt.Sprintf("get contact alert %s", externalID), err)
	}
	alert.Location = db.LocationFromColumns(lat, lon, acc, addr)
	if err := json.Unmarshal([]byte(failed), &alert.FailedContacts); err != nil {
		return nil, fmt.Errorf("failed to decode failed contacts: %w", err)
	}
	if alert.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT contact_name, channel, success, provider_message_id, error, duration_ms
	FROM notification_attempts
	WHERE alert_id = ?
	ORDER BY position`, alert.ID)
	if err != nil {
		return nil, db.Unavailable("list notification attempts", err)
	}
	defer rows.Close()

	alert.Attempts = []models.NotificationAttempt{}
	for rows.Next() {
		var (
			at          models.NotificationAttempt
			msgID, errS sql.NullString
			durationMS  int64
		)
		if err := rows.Scan(&at.ContactName, &at.Channel, &at.Success, &msgID, &errS, &durationMS); err != nil {
			return nil, db.Unavailable("scan notification attempt", err)
		}
		at.ProviderMessageID = msgID.String
		at.Error = errS.String
		at.Duration = time.Duration(durationMS) * time.Millisecond
		alert.Attempts = append(alert.Attempts, at)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Unavailable("list notification attempts", err)
	}
	return &alert, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
