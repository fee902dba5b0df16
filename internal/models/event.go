package models

import "time"

// Location is a point reported by the device. Address is filled in later by enrichment.
type Location struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Address   string   `json:"address,omitempty"`
}

// SameCoordinates reports whether l and o point at the same coordinates.
func (l *Location) SameCoordinates(o *Location) bool {
	if l == nil || o == nil {
		return l == o
	}
	return l.Latitude == o.Latitude && l.Longitude == o.Longitude
}

type UserInfo struct {
	Name        string `json:"name,omitempty"`
	Phone       string `json:"phone,omitempty"`
	MedicalInfo string `json:"medicalInfo,omitempty"`
}

type ClientInfo struct {
	UserAgent string `json:"userAgent,omitempty"`
	Platform  string `json:"platform,omitempty"`
	Language  string `json:"language,omitempty"`
}

// EnrichmentInfo records how the address of an event was obtained.
type EnrichmentInfo struct {
	Source     string    `json:"source"`
	EnrichedAt time.Time `json:"enrichedAt"`
}

// SystemInfo is the diagnostic blob attached to an event. Known shapes are
// typed; anything else lands in Extra.
type SystemInfo struct {
	Client           *ClientInfo     `json:"client,omitempty"`
	UserIP           string          `json:"userIp,omitempty"`
	RequestTimestamp string          `json:"requestTimestamp,omitempty"`
	AppVersion       string          `json:"appVersion,omitempty"`
	UserInfo         *UserInfo       `json:"userInfo,omitempty"`
	Enrichment       *EnrichmentInfo `json:"enrichment,omitempty"`
	Extra            map[string]any  `json:"extra,omitempty"`
}

// EmergencyEvent is one triggered emergency.
type EmergencyEvent struct {
	ID              int64       `json:"-"`
	ExternalID      string      `json:"id"`
	UserID          *int64      `json:"userId,omitempty"`
	EventType       EventType   `json:"eventType"`
	Status          EventStatus `json:"status"`
	Severity        Severity    `json:"severity"`
	Location        *Location   `json:"location,omitempty"`
	EmergencyNumber string      `json:"emergencyNumber"`
	CallDuration    *int        `json:"callDuration,omitempty"`
	ResponseTime    *int        `json:"responseTime,omitempty"`
	Notes           string      `json:"notes,omitempty"`
	SystemInfo      SystemInfo  `json:"systemInfo"`
	Version         int64       `json:"version"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
	ResolvedAt      *time.Time  `json:"resolvedAt,omitempty"`
}

// EventFilter selects events for history queries. Zero values mean "any".
type EventFilter struct {
	UserID    *int64
	EventType EventType
	Status    EventStatus
	DateFrom  *time.Time
	DateTo    *time.Time
	Limit     int
	Offset    int
}

// EventUpdate is a partial update. Nil fields are left untouched.
// When ExpectedVersion is set the update only applies to that row version.
type EventUpdate struct {
	Status          *EventStatus
	Location        *Location
	CallDuration    *int
	ResponseTime    *int
	Notes           *string
	SystemInfo      *SystemInfo
	ResolvedAt      *time.Time
	ExpectedVersion *int64
}

func (u EventUpdate) IsEmpty() bool {
	return u.Status == nil && u.Location == nil && u.CallDuration == nil &&
		u.ResponseTime == nil && u.Notes == nil && u.SystemInfo == nil && u.ResolvedAt == nil
}

// Statistics aggregates events for one owner or globally.
type Statistics struct {
	Total               int            `json:"total"`
	ByType              map[string]int `json:"byType"`
	ByStatus            map[string]int `json:"byStatus"`
	AverageResponseTime float64        `json:"averageResponseTime"`
	RecentEvents        int            `json:"recentEvents"`
}
