package models

// EventType is the kind of emergency the user triggered.
type EventType string

const (
	EventMedical EventType = "medical"
	EventFire    EventType = "fire"
	EventPolice  EventType = "police"
	EventGeneral EventType = "general"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventMedical, EventFire, EventPolice, EventGeneral:
		return true
	}
	return false
}

// Label returns the human readable name used in history views.
func (t EventType) Label() string {
	switch t {
	case EventMedical:
		return "Medical Emergency"
	case EventFire:
		return "Fire Emergency"
	case EventPolice:
		return "Police Emergency"
	case EventGeneral:
		return "General Emergency"
	default:
		return "Emergency"
	}
}

// EventStatus is the lifecycle state of an EmergencyEvent.
type EventStatus string

const (
	StatusActive    EventStatus = "active"
	StatusResolved  EventStatus = "resolved"
	StatusCancelled EventStatus = "cancelled"
)

func (s EventStatus) Valid() bool {
	switch s {
	case StatusActive, StatusResolved, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s EventStatus) Terminal() bool {
	return s == StatusResolved || s == StatusCancelled
}

// CanTransitionTo reports whether s -> next is a legal lifecycle move.
// Only active events move, and only to resolved or cancelled.
func (s EventStatus) CanTransitionTo(next EventStatus) bool {
	return s == StatusActive && next.Terminal()
}

// Severity ranks events and audit entries.
type Severity string

const (
	// SeverityInfo is only used for audit entries.
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Channel is a delivery channel for a notification attempt.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)
