package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"emergency-service/internal/models"
)

const eventColumns = `id, external_id, user_id, event_type, status, severity,
	latitude, longitude, accuracy, address, emergency_number,
	call_duration, response_time, notes, system_info, version,
	created_at, updated_at, resolved_at`

func scanEvent(row pgx.Row) (*models.EmergencyEvent, error) {
	var (
		e             models.EmergencyEvent
		lat, lon, acc *float64
		addr          *string
		info          string
	)
	err := row.Scan(
		&e.ID, &e.ExternalID, &e.UserID, &e.EventType, &e.Status, &e.Severity,
		&lat, &lon, &acc, &addr, &e.EmergencyNumber,
		&e.CallDuration, &e.ResponseTime, &e.Notes, &info, &e.Version,
		&e.CreatedAt, &e.UpdatedAt, &e.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Location = LocationFromColumns(lat, lon, acc, addr)
	if e.SystemInfo, err = DecodeSystemInfo(info); err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateEvent inserts e and returns the stored row with id and timestamps assigned.
func (d *DB) CreateEvent(ctx context.Context, e *models.EmergencyEvent) (*models.EmergencyEvent, error) {
	info, err := EncodeSystemInfo(e.SystemInfo)
	if err != nil {
		return nil, err
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = d.now()
	}
	lat, lon, acc, addr := LocationColumns(e.Location)

	query := `
	INSERT INTO emergency_events (
		external_id, user_id, event_type, status, severity,
		latitude, longitude, accuracy, address, emergency_number,
		call_duration, response_time, notes, system_info, version,
		created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1, $15, $15)
	RETURNING ` + eventColumns

	row := d.Pool.QueryRow(ctx, query,
		e.ExternalID, e.UserID, string(e.EventType), string(e.Status), string(e.Severity),
		lat, lon, acc, addr, e.EmergencyNumber,
		e.CallDuration, e.ResponseTime, e.Notes, info,
		pgTime(created),
	)
	stored, err := scanEvent(row)
	if err != nil {
		return nil, Unavailable("insert emergency event", err)
	}
	return stored, nil
}

// GetEventByID returns nil when no event has that id.
func (d *DB) GetEventByID(ctx context.Context, id int64) (*models.EmergencyEvent, error) {
	row := d.Pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM emergency_events WHERE id = $1`, id)
	return d.oneEvent(row, id)
}

// GetEventByExternalID returns nil when no event has that external id.
func (d *DB) GetEventByExternalID(ctx context.Context, externalID string) (*models.EmergencyEvent, error) {
	row := d.Pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM emergency_events WHERE external_id = $1`, externalID)
	return d.oneEvent(row, externalID)
}

func (d *DB) oneEvent(row pgx.Row, key any) (*models.EmergencyEvent, error) {
	e, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, Unavailable(fmt.Sprintf("get emergency event %v", key), err)
	}
	return e, nil
}

// ListEvents returns events matching f, newest first.
func (d *DB) ListEvents(ctx context.Context, f models.EventFilter) ([]models.EmergencyEvent, error) {
	a := NewArgs(Dollar)
	query := `SELECT ` + eventColumns + ` FROM emergency_events` + FilterClause(f, a, pgTime) + PageClause(f, a)

	rows, err := d.Pool.Query(ctx, query, a.Values()...)
	if err != nil {
		return nil, Unavailable("list emergency events", err)
	}
	defer rows.Close()

	events := []models.EmergencyEvent{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, Unavailable("scan emergency event", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, Unavailable("list emergency events", err)
	}
	return events, nil
}

// CountEvents counts events matching f, ignoring paging.
func (d *DB) CountEvents(ctx context.Context, f models.EventFilter) (int, error) {
	a := NewArgs(Dollar)
	var total int
	err := d.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM emergency_events`+FilterClause(f, a, pgTime), a.Values()...).Scan(&total)
	if err != nil {
		return 0, Unavailable("count emergency events", err)
	}
	return total, nil
}

// UpdateEvent applies u to the event with id. It returns nil when the event does not
// exist and ErrVersionConflict when u.ExpectedVersion no longer matches.
func (d *DB) UpdateEvent(ctx context.Context, id int64, u models.EventUpdate) (*models.EmergencyEvent, error) {
	if u.IsEmpty() {
		return d.GetEventByID(ctx, id)
	}
	a := NewArgs(Dollar)
	set, err := SetClause(u, a, pgTime, d.now())
	if err != nil {
		return nil, err
	}
	query := `UPDATE emergency_events SET ` + set + ` WHERE id = ` + a.Add(id)
	if u.ExpectedVersion != nil {
		query += ` AND version = ` + a.Add(*u.ExpectedVersion)
	}
	query += ` RETURNING ` + eventColumns

	e, err := scanEvent(d.Pool.QueryRow(ctx, query, a.Values()...))
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, Unavailable(fmt.Sprintf("update emergency event %d", id), err)
	}
	if u.ExpectedVersion == nil {
		return nil, nil
	}
	var exists bool
	if err := d.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM emergency_events WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, Unavailable(fmt.Sprintf("check emergency event %d", id), err)
	}
	if exists {
		return nil, models.ErrVersionConflict
	}
	return nil, nil
}

// DeleteEvent reports whether a row was removed.
func (d *DB) DeleteEvent(ctx context.Context, id int64) (bool, error) {
	tag, err := d.Pool.Exec(ctx, `DELETE FROM emergency_events WHERE id = $1`, id)
	if err != nil {
		return false, Unavailable(fmt.Sprintf("delete emergency event %d", id), err)
	}
	return tag.RowsAffected() > 0, nil
}
