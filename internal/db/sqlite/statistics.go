package sqlite

import (
	"context"
	"database/sql"
	"time"

	"emergency-service/internal/db"
	"emergency-service/internal/models"
)

func (s *Store) Statistics(ctx context.Context, userID *int64, since time.Time) (models.Statistics, error) {
	stats := models.Statistics{ByType: map[string]int{}, ByStatus: map[string]int{}}
	f := models.EventFilter{UserID: userID}

	a := db.NewArgs(db.Question)
	recent := a.Add(formatTime(since))
	where := db.FilterClause(f, a, sqliteTime)
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
	SELECT COUNT(*),
	       AVG(response_time),
	       COALESCE(SUM(CASE WHEN created_at >= `+recent+` THEN 1 ELSE 0 END), 0)
	FROM emergency_events`+where, a.Values()...).Scan(&stats.Total, &avg, &stats.RecentEvents)
	if err != nil {
		return stats, db.Unavailable("aggregate emergency events", err)
	}
	if avg.Valid {
		stats.AverageResponseTime = avg.Float64
	}

	groups := []struct {
		column string
		into   map[string]int
	}{
		{"event_type", stats.ByType},
		{"status", stats.ByStatus},
	}
	for _, g := range groups {
		if err := s.groupCount(ctx, f, g.column, g.into); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (s *Store) groupCount(ctx context.Context, f models.EventFilter, column string, into map[string]int) error {
	a := db.NewArgs(db.Question)
	rows, err := s.db.QueryContext(ctx, `SELECT `+column+`, COUNT(*) FROM emergency_events`+
		db.FilterClause(f, a, sqliteTime)+` GROUP BY `+column, a.Values()...)
	if err != nil {
		return db.Unavailable("group emergency events by "+column, err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return db.Unavailable("scan emergency event group", err)
		}
		into[key] = n
	}
	if err := rows.Err(); err != nil {
		return db.Unavailable("group emergency events by "+column, err)
	}
	return nil
}
