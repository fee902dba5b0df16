package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emergency-service/internal/models"
)

func identity(t time.Time) any { return t }

func TestFilterClauseNumbersPlaceholders(t *testing.T) {
	uid := int64(5)
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := models.EventFilter{UserID: &uid, Status: models.StatusActive, DateFrom: &from, Limit: 10, Offset: 20}

	a := NewArgs(Dollar)
	where := FilterClause(f, a, identity)
	page := PageClause(f, a)

	assert.Equal(t, " WHERE user_id = $1 AND status = $2 AND created_at >= $3", where)
	assert.Equal(t, " ORDER BY created_at DESC, id DESC LIMIT $4 OFFSET $5", page)
	assert.Equal(t, []any{uid, "active", from, 10, 20}, a.Values())
}

func TestFilterClauseEmpty(t *testing.T) {
	a := NewArgs(Question)
	assert.Empty(t, FilterClause(models.EventFilter{}, a, identity))
	assert.Equal(t, " ORDER BY created_at DESC, id DESC", PageClause(models.EventFilter{}, a))
	assert.Empty(t, a.Values())
}

func TestSetClauseAlwaysBumpsVersion(t *testing.T) {
	notes := "updated"
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewArgs(Question)

	set, err := SetClause(models.EventUpdate{Notes: &notes}, a, identity, now)
	require.NoError(t, err)
	assert.Equal(t, "version = version + 1, updated_at = ?, notes = ?", set)
	assert.Equal(t, []any{now, "updated"}, a.Values())
}

func TestLocationColumnsRoundTrip(t *testing.T) {
	acc := 3.5
	in := &models.Location{Latitude: 10, Longitude: 20, Accuracy: &acc}
	lat, lon, gotAcc, addr := LocationColumns(in)
	assert.Nil(t, addr)

	out := LocationFromColumns(lat, lon, gotAcc, addr)
	assert.Equal(t, in, out)
	assert.Nil(t, LocationFromColumns(nil, lon, nil, nil))
}

func TestUnavailableWrapsSentinel(t *testing.T) {
	err := Unavailable("ping database", assert.AnError)
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
	assert.ErrorIs(t, err, assert.AnError)
}
