package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"emergency-service/internal/models"
)

// CreateContactAlert stores a batch and its attempts in one transaction.
func (d *DB) CreateContactAlert(ctx context.Context, alert *models.ContactAlert) error {
	failed, err := json.Marshal(nonNil(alert.FailedContacts))
	if err != nil {
		return fmt.Errorf("failed to encode failed contacts: %w", err)
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = d.now()
	}
	lat, lon, acc, addr := LocationColumns(alert.Location)

	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return Unavailable("begin contact alert transaction", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
	INSERT INTO contact_alerts (
		external_id, message, emergency_type, latitude, longitude, accuracy, address,
		contacts_total, contacts_notified, failed_contacts, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	RETURNING id`,
		alert.ExternalID, alert.Message, string(alert.EmergencyType), lat, lon, acc, addr,
		alert.ContactsTotal, alert.ContactsNotified, string(failed), pgTime(alert.CreatedAt),
	).Scan(&alert.ID)
	if err != nil {
		return Unavailable("insert contact alert", err)
	}

	if err := insertAttempts(ctx, tx, alert.ID, alert.Attempts); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return Unavailable("commit contact alert", err)
	}
	return nil
}

// GetContactAlert returns nil when no batch has that external id.
func (d *DB) GetContactAlert(ctx context.Context, externalID string) (*models.ContactAlert, error) {
	var (
		alert         models.ContactAlert
		lat, lon, acc *float64
		addr          *string
		failed        string
	)
	err := d.Pool.QueryRow(ctx, `
	SELECT id, external_id, message, emergency_type, latitude, longitude, accuracy, address,
	       contacts_total, contacts_notified, failed_contacts::text, created_at
	FROM contact_alerts WHERE external_id = $1`, externalID).Scan(
		&alert.ID, &alert.ExternalID, &alert.Message, &alert.EmergencyType, &lat, &lon, &acc, &addr,
		&alert.ContactsTotal, &alert.ContactsNotified, &failed, &alert.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, Unavailable(fmt.Sprintf("get contact alert %s", externalID), err)
	}
	alert.Location = LocationFromColumns(lat, lon, acc, addr)
	if err := json.Unmarshal([]byte(failed), &alert.FailedContacts); err != nil {
		return nil, fmt.Errorf("failed to decode failed contacts: %w", err)
	}

	if alert.Attempts, err = d.listAttempts(ctx, alert.ID); err != nil {
		return nil, err
	}
	return &alert, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
