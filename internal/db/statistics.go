package db

import (
	"context"
	"time"

	"emergency-service/internal/models"
)

// Statistics aggregates events, optionally for one owner. recentEvents counts
// events created at or after since.
func (d *DB) Statistics(ctx context.Context, userID *int64, since time.Time) (models.Statistics, error) {
	stats := models.Statistics{ByType: map[string]int{}, ByStatus: map[string]int{}}
	f := models.EventFilter{UserID: userID}

	a := NewArgs(Dollar)
	recent := a.Add(pgTime(since))
	where := FilterClause(f, a, pgTime)
	var avg *float64
	err := d.Pool.QueryRow(ctx, `
	SELECT COUNT(*),
	       AVG(response_time)::float8,
	       COALESCE(SUM(CASE WHEN created_at >= `+recent+` THEN 1 ELSE 0 END), 0)
	FROM emergency_events`+where, a.Values()...).Scan(&stats.Total, &avg, &stats.RecentEvents)
	if err != nil {
		return stats, Unavailable("aggregate emergency events", err)
	}
	if avg != nil {
		stats.AverageResponseTime = *avg
	}

	for column, into := range map[string]map[string]int{"event_type": stats.ByType, "status": stats.ByStatus} {
		a := NewArgs(Dollar)
		rows, err := d.Pool.Query(ctx, `SELECT `+column+`, COUNT(*) FROM emergency_events`+
			FilterClause(f, a, pgTime)+` GROUP BY `+column, a.Values()...)
		if err != nil {
			return stats, Unavailable("group emergency events by "+column, err)
		}
		for rows.Next() {
			var key string
			var n int
			if err := rows.Scan(&key, &n); err != nil {
				rows.Close()
				return stats, Unavailable("scan emergency event group", err)
			}
			into[key] = n
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return stats, Unavailable("group emergency events by "+column, err)
		}
	}
	return stats, nil
}
