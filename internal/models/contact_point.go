package models

import "strings"

// Contact is an emergency contact supplied with an alert request.
type Contact struct {
	Name         string `json:"name"`
	Phone        string `json:"phone,omitempty"`
	Email        string `json:"email,omitempty"`
	Relationship string `json:"relationship,omitempty"`
}

// Channels returns the channels configured for c, sms before email.
func (c Contact) Channels() []Channel {
	var chans []Channel
	if strings.TrimSpace(c.Phone) != "" {
		chans = append(chans, ChannelSMS)
	}
	if strings.TrimSpace(c.Email) != "" {
		chans = append(chans, ChannelEmail)
	}
	return chans
}

// Destination returns the address used for ch.
func (c Contact) Destination(ch Channel) string {
	switch ch {
	case ChannelSMS:
		return strings.TrimSpace(c.Phone)
	case ChannelEmail:
		return strings.TrimSpace(c.Email)
	}
	return ""
}
