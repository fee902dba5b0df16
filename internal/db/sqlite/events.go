package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"emergency-service/internal/db"
	"emergency-service/internal/models"
)

const eventColumns = `id, external_id, user_id, event_type, status, severity,
	latitude, longitude, accuracy, address, emergency_number,
	call_duration, response_time, notes, system_info, version,
	created_at, updated_at, resolved_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*models.EmergencyEvent, error) {
	var (
		e                models.EmergencyEvent
		lat, lon, acc    *float64
		addr             *string
		info             string
		created, updated string
		resolved         *string
	)
	err := row.Scan(
		&e.ID, &e.ExternalID, &e.UserID, &e.EventType, &e.Status, &e.Severity,
		&lat, &lon, &acc, &addr, &e.EmergencyNumber,
		&e.CallDuration, &e.ResponseTime, &e.Notes, &info, &e.Version,
		&created, &updated, &resolved,
	)
	if err != nil {
		return nil, err
	}
	e.Location = db.LocationFromColumns(lat, lon, acc, addr)
	if e.SystemInfo, err = db.DecodeSystemInfo(info); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	if e.ResolvedAt, err = parseNullTime(resolved); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) CreateEvent(ctx context.Context, e *models.EmergencyEvent) (*models.EmergencyEvent, error) {
	info, err := db.EncodeSystemInfo(e.SystemInfo)
	if err != nil {
		return nil, err
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	lat, lon, acc, addr := db.LocationColumns(e.Location)

	row := s.db.QueryRowContext(ctx, `
	INSERT INTO emergency_events (
		external_id, user_id, event_type, status, severity,
		latitude, longitude, accuracy, address, emergency_number,
		call_duration, response_time, notes, system_info, version,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	RETURNING `+eventColumns,
		e.ExternalID, e.UserID, string(e.EventType), string(e.Status), string(e.Severity),
		lat, lon, acc, addr, e.EmergencyNumber,
		e.CallDuration, e.ResponseTime, e.Notes, info,
		formatTime(created), formatTime(created),
	)
	stored, err := scanEvent(row)
	if err != nil {
		return nil, db.Unavailable("insert emergency event", err)
	}
	return stored, nil
}

func (s *Store) GetEventByID(ctx context.Context, id int64) (*models.EmergencyEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM emergency_events WHERE id = ?`, id)
	return oneEvent(row, id)
}

func (s *Store) GetEventByExternalID(ctx context.Context, externalID string) (*models.EmergencyEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM emergency_events WHERE external_id = ?`, externalID)
	return oneEvent(row, externalID)
}

func oneEvent(row *sql.Row, key any) (*models.EmergencyEvent, error) {
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, db.Unavailable(fmt.Sprintf("get emergency event %v", key), err)
	}
	return e, nil
}

func (s *Store) ListEvents(ctx context.Context, f models.EventFilter) ([]models.EmergencyEvent, error) {
	a := db.NewArgs(db.Question)
	query := `SELECT ` + eventColumns + ` FROM emergency_events` + db.FilterClause(f, a, sqliteTime) + db.PageClause(f, a)

	rows, err := s.db.QueryContext(ctx, query, a.Values()...)
	if err != nil {
		return nil, db.Unavailable("list emergency events", err)
	}
	defer rows.Close()

	events := []models.EmergencyEvent{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, db.Unavailable("scan emergency event", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Unavailable("list emergency events", err)
	}
	return events, nil
}

func (s *Store) CountEvents(ctx context.Context, f models.EventFilter) (int, error) {
	a := db.NewArgs(db.Question)
	var total int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM emergency_events`+db.FilterClause(f, a, sqliteTime), a.Values()...).Scan(&total)
	if err != nil {
		return 0, db.Unavailable("count emergency events", err)
	}
	return total, nil
}

func (s *Store) UpdateEvent(ctx context.Context, id int64, u models.EventUpdate) (*models.EmergencyEvent, error) {
	if u.IsEmpty() {
		return s.GetEventByID(ctx, id)
	}
	a := db.NewArgs(db.Question)
	set, err := db.SetClause(u, a, sqliteTime, s.now())
	if err != nil {
		return nil, err
	}
	query := `UPDATE emergency_events SET ` + set + ` WHERE id = ` + a.Add(id)
	if u.ExpectedVersion != nil {
		query += ` AND version = ` + a.Add(*u.ExpectedVersion)
	}
	query += ` RETURNING ` + eventColumns

	e, err := scanEvent(s.db.QueryRowContext(ctx, query, a.Values()...))
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, db.Unavailable(fmt.Sprintf("update emergency event %d", id), err)
	}
	if u.ExpectedVersion == nil {
		return nil, nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM emergency_events WHERE id = ?)`, id).Scan(&exists); err != nil {
		return nil, db.Unavailable(fmt.Sprintf("check emergency event %d", id), err)
	}
	if exists {
		return nil, models.ErrVersionConflict
	}
	return nil, nil
}

func (s *Store) DeleteEvent(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM emergency_events WHERE id = ?`, id)
	if err != nil {
		return false, db.Unavailable(fmt.Sprintf("delete emergency event %d", id), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, db.Unavailable(fmt.Sprintf("delete emergency event %d", id), err)
	}
	return n > 0, nil
}
