package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"emergency-service/internal/location"
	"emergency-service/internal/models"
)

const maxHistoryLimit = 500

// HistoryLocation is the location block of a history entry.
type HistoryLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// HistoryEntry is an event shaped for the history view.
type HistoryEntry struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Date            string          `json:"date"`
	Time            string          `json:"time"`
	Location        HistoryLocation `json:"location"`
	Status          string          `json:"status"`
	ResponseTime    string          `json:"responseTime"`
	Contacts        []string        `json:"contacts"`
	Notes           string          `json:"notes"`
	EmergencyNumber string          `json:"emergencyNumber,omitempty"`
	CallID          string          `json:"callId"`
}

// HistoryPage is one page of history plus the unpaged total.
type HistoryPage struct {
	Entries []HistoryEntry
	Total   int
	Limit   int
	Offset  int
}

// History lists events newest first. A zero limit means the default of 50.
func (s *Service) History(ctx context.Context, f models.EventFilter) (*HistoryPage, error) {
	if f.Limit < 0 || f.Offset < 0 {
		return nil, models.NewValidationError("limit", "Limit and offset must not be negative")
	}
	if f.Limit == 0 {
		f.Limit = defaultHistoryLimit
	}
	if f.Limit > maxHistoryLimit {
		f.Limit = maxHistoryLimit
	}

	events, err := s.store.ListEvents(ctx, f)
	if err != nil {
		return nil, err
	}
	total, err := s.store.CountEvents(ctx, f)
	if err != nil {
		return nil, err
	}

	entries := make([]HistoryEntry, 0, len(events))
	for _, ev := range events {
		entries = append(entries, FormatHistoryEntry(ev))
	}
	return &HistoryPage{Entries: entries, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// Statistics aggregates events of one owner, or of everyone when userID is nil.
// Recent events are those of the last 30 days.
func (s *Service) Statistics(ctx context.Context, userID *int64) (models.Statistics, error) {
	return s.store.Statistics(ctx, userID, s.now().Add(-statisticsWindow))
}

// FormatHistoryEntry shapes ev for display. Times are rendered in UTC.
func FormatHistoryEntry(ev models.EmergencyEvent) HistoryEntry {
	created := ev.CreatedAt.UTC()
	entry := HistoryEntry{
		ID:              ev.ExternalID,
		Type:            ev.EventType.Label(),
		Date:            created.Format("2006-01-02"),
		Time:            created.Format("15:04"),
		Status:          capitalize(string(ev.Status)),
		ResponseTime:    FormatResponseTime(ev.ResponseTime),
		Contacts:        []string{"Emergency Services"},
		Notes:           ev.Notes,
		EmergencyNumber: ev.EmergencyNumber,
		CallID:          ev.ExternalID,
	}
	if entry.Notes == "" {
		entry.Notes = fmt.Sprintf("%s emergency call initiated via EmergencyGuard app.", ev.EventType.Label())
	}
	if ev.Location != nil {
		entry.Location = HistoryLocation{
			Latitude:  ev.Location.Latitude,
			Longitude: ev.Location.Longitude,
			Address:   ev.Location.Address,
		}
		if entry.Location.Address == "" {
			entry.Location.Address = mapsURL(ev.Location)
		}
	}
	return entry
}

// FormatResponseTime renders seconds as M:SS, or N/A when unknown.
func FormatResponseTime(seconds *int) string {
	if seconds == nil {
		return "N/A"
	}
	d := time.Duration(*seconds) * time.Second
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), *seconds%60)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func mapsURL(loc *models.Location) string {
	return location.MapsURL(location.Coordinates{Latitude: loc.Latitude, Longitude: loc.Longitude})
}
