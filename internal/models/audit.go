package models

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	ActionCallCreated      = "emergency_call_created"
	ActionCallInitiated    = "emergency_call_initiated"
	ActionContactsAlerted  = "emergency_contacts_alerted"
	ActionEventLogged      = "emergency_event_logged"
	ActionLocationEnriched = "emergency_location_enriched"
	ActionStatusChanged    = "emergency_status_changed"
	ActionEventDeleted     = "emergency_event_deleted"

	ResourceEmergencyEvent = "emergency_event"
	ResourceContactAlert   = "contact_alert"
)

// AuditEntry is an append-only record of a safety relevant action.
type AuditEntry struct {
	ID           int64        `json:"-"`
	Action       string       `json:"action"`
	ResourceType string       `json:"resourceType"`
	ResourceID   string       `json:"resourceId"`
	Details      AuditDetails `json:"details,omitempty"`
	Severity     Severity     `json:"severity"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// AuditDetails is the payload of an audit entry. Kind names the concrete shape.
type AuditDetails interface {
	Kind() string
}

type CallCreatedDetails struct {
	EventType       EventType `json:"eventType"`
	Severity        Severity  `json:"severity"`
	EmergencyNumber string    `json:"emergencyNumber"`
	HasLocation     bool      `json:"hasLocation"`
}

func (CallCreatedDetails) Kind() string { return "call_created" }

type CallInitiatedDetails struct {
	Location   *Location  `json:"location,omitempty"`
	SystemInfo SystemInfo `json:"systemInfo"`
}

func (CallInitiatedDetails) Kind() string { return "call_initiated" }

// ContactsAlertedDetails only carries counts so batches do not bloat the log.
type ContactsAlertedDetails struct {
	EmergencyType    EventType `json:"emergencyType"`
	ContactsTotal    int       `json:"contactsTotal"`
	ContactsNotified int       `json:"contactsNotified"`
	ContactsFailed   int       `json:"contactsFailed"`
	Attempts         int       `json:"attempts"`
	HasLocation      bool      `json:"hasLocation"`
}

func (ContactsAlertedDetails) Kind() string { return "contacts_alerted" }

type EnrichmentDetails struct {
	Address string `json:"address"`
	Source  string `json:"source"`
}

func (EnrichmentDetails) Kind() string { return "enrichment" }

type StatusChangedDetails struct {
	From EventStatus `json:"from"`
	To   EventStatus `json:"to"`
}

func (StatusChangedDetails) Kind() string { return "status_changed" }

// FreeformDetails holds client supplied diagnostic payloads.
type FreeformDetails map[string]any

func (FreeformDetails) Kind() string { return "freeform" }

// EncodeDetails returns the kind tag and JSON body for d.
func EncodeDetails(d AuditDetails) (string, []byte, error) {
	if d == nil {
		return "", []byte("null"), nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode audit details: %w", err)
	}
	return d.Kind(), b, nil
}

// DecodeDetails restores details previously written by EncodeDetails.
func DecodeDetails(kind string, data []byte) (AuditDetails, error) {
	var d AuditDetails
	switch kind {
	case "":
		return nil, nil
	case CallCreatedDetails{}.Kind():
		var v CallCreatedDetails
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("failed to decode %s details: %w", kind, err)
		}
		d = v
	case CallInitiatedDetails{}.Kind():
		var v CallInitiatedDetails
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("failed to decode %s details: %w", kind, err)
		}
		d = v
	case ContactsAlertedDetails{}.Kind():
		var v ContactsAlertedDetails
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("failed to decode %s details: %w", kind, err)
		}
		d = v
	case EnrichmentDetails{}.Kind():
		var v EnrichmentDetails
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("failed to decode %s details: %w", kind, err)
		}
		d = v
	case StatusChangedDetails{}.Kind():
		var v StatusChangedDetails
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("failed to decode %s details: %w", kind, err)
		}
		d = v
	default:
		v := FreeformDetails{}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("failed to decode %s details: %w", kind, err)
		}
		d = v
	}
	return d, nil
}
