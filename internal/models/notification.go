package models

import "time"

// NotificationAttempt is one try to reach one contact over one channel.
type NotificationAttempt struct {
	ContactName       string        `json:"contactName"`
	Channel           Channel       `json:"channel"`
	Success           bool          `json:"success"`
	ProviderMessageID string        `json:"providerMessageId,omitempty"`
	Error             string        `json:"error,omitempty"`
	Duration          time.Duration `json:"-"`
}

// ContactAlert is one alert-contacts batch.
type ContactAlert struct {
	ID               int64                 `json:"-"`
	ExternalID       string                `json:"id"`
	Message          string                `json:"message"`
	EmergencyType    EventType             `json:"emergencyType"`
	Location         *Location             `json:"location,omitempty"`
	ContactsTotal    int                   `json:"contactsTotal"`
	ContactsNotified int                   `json:"contactsNotified"`
	FailedContacts   []string              `json:"failedContacts"`
	Attempts         []NotificationAttempt `json:"attempts"`
	CreatedAt        time.Time             `json:"createdAt"`
}
