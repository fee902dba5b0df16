package db

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"emergency-service/internal/models"
)

// Placeholder renders the n-th (1-based) bind parameter for a SQL dialect.
type Placeholder func(n int) string

// Dollar renders PostgreSQL style placeholders.
func Dollar(n int) string { return fmt.Sprintf("$%d", n) }

// Question renders SQLite style placeholders.
func Question(int) string { return "?" }

// TimeArg converts a time to the bind value a dialect stores.
type TimeArg func(time.Time) any

// Args accumulates bind parameters for a statement.
type Args struct {
	ph   Placeholder
	vals []any
}

func NewArgs(ph Placeholder) *Args {
	return &Args{ph: ph}
}

// Add appends v and returns its placeholder.
func (a *Args) Add(v any) string {
	a.vals = append(a.vals, v)
	return a.ph(len(a.vals))
}

func (a *Args) Values() []any {
	return a.vals
}

// FilterClause builds the WHERE clause for an event filter.
func FilterClause(f models.EventFilter, a *Args, ts TimeArg) string {
	var conds []string
	if f.UserID != nil {
		conds = append(conds, "user_id = "+a.Add(*f.UserID))
	}
	if f.EventType != "" {
		conds = append(conds, "event_type = "+a.Add(string(f.EventType)))
	}
	if f.Status != "" {
		conds = append(conds, "status = "+a.Add(string(f.Status)))
	}
	if f.DateFrom != nil {
		conds = append(conds, "created_at >= "+a.Add(ts(*f.DateFrom)))
	}
	if f.DateTo != nil {
		conds = append(conds, "created_at <= "+a.Add(ts(*f.DateTo)))
	}
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

// PageClause orders newest first and applies limit/offset.
func PageClause(f models.EventFilter, a *Args) string {
	q := " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		q += " LIMIT " + a.Add(f.Limit)
		if f.Offset > 0 {
			q += " OFFSET " + a.Add(f.Offset)
		}
	} else if f.Offset > 0 {
		q += " LIMIT " + a.Add(math.MaxInt32) + " OFFSET " + a.Add(f.Offset)
	}
	return q
}

// SetClause builds the SET list for a partial update. The version column is
// always bumped and updated_at always refreshed.
func SetClause(u models.EventUpdate, a *Args, ts TimeArg, now time.Time) (string, error) {
	sets := []string{"version = version + 1", "updated_at = " + a.Add(ts(now))}
	if u.Status != nil {
		sets = append(sets, "status = "+a.Add(string(*u.Status)))
	}
	if u.Location != nil {
		sets = append(sets,
			"latitude = "+a.Add(u.Location.Latitude),
			"longitude = "+a.Add(u.Location.Longitude),
			"accuracy = "+a.Add(u.Location.Accuracy),
			"address = "+a.Add(nullString(u.Location.Address)),
		)
	}
	if u.CallDuration != nil {
		sets = append(sets, "call_duration = "+a.Add(*u.CallDuration))
	}
	if u.ResponseTime != nil {
		sets = append(sets, "response_time = "+a.Add(*u.ResponseTime))
	}
	if u.Notes != nil {
		sets = append(sets, "notes = "+a.Add(*u.Notes))
	}
	if u.SystemInfo != nil {
		info, err := EncodeSystemInfo(*u.SystemInfo)
		if err != nil {
			return "", err
		}
		sets = append(sets, "system_info = "+a.Add(info))
	}
	if u.ResolvedAt != nil {
		sets = append(sets, "resolved_at = "+a.Add(ts(*u.ResolvedAt)))
	}
	return strings.Join(sets, ", "), nil
}

func EncodeSystemInfo(info models.SystemInfo) (string, error) {
	b, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("failed to encode system info: %w", err)
	}
	return string(b), nil
}

func DecodeSystemInfo(raw string) (models.SystemInfo, error) {
	var info models.SystemInfo
	if raw == "" {
		return info, nil
	}
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return info, fmt.Errorf("failed to decode system info: %w", err)
	}
	return info, nil
}

// LocationFromColumns rebuilds a Location from its nullable columns.
func LocationFromColumns(lat, lon, acc *float64, addr *string) *models.Location {
	if lat == nil || lon == nil {
		return nil
	}
	loc := &models.Location{Latitude: *lat, Longitude: *lon, Accuracy: acc}
	if addr != nil {
		loc.Address = *addr
	}
	return loc
}

// LocationColumns splits a Location into nullable column values.
func LocationColumns(loc *models.Location) (lat, lon, acc *float64, addr *string) {
	if loc == nil {
		return nil, nil, nil, nil
	}
	la, lo := loc.Latitude, loc.Longitude
	return &la, &lo, loc.Accuracy, nullString(loc.Address)
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Unavailable wraps a driver error so callers can match ErrStorageUnavailable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, models.ErrStorageUnavailable, err)
}
