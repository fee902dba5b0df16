package models

import "time"

// TaskKind selects what a worker does with a Task.
type TaskKind string

// A call follow-up enriches a new call, audits it and escalates critical ones.
// An escalation forwards Text to the operator channel.
const (
	TaskCallFollowUp TaskKind = "call_follow_up"
	TaskEscalation   TaskKind = "escalation"
)

// Task is background work queued by the request path.
type Task struct {
	Kind            TaskKind
	EventID         int64
	ExternalID      string
	UserID          *int64
	EventType       EventType
	Severity        Severity
	EmergencyNumber string
	Location        *Location
	SystemInfo      SystemInfo
	Text            string
	QueuedAt        time.Time
}
