package notification

import (
	"fmt"
	"regexp"

	"emergency-service/internal/models"
)

var (
	phonePattern = regexp.MustCompile(`^\+?[\d\s\-()]{10,}$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

func ValidEmail(addr string) bool {
	return emailPattern.MatchString(addr)
}

// validateDestination rejects destinations a provider could never deliver to.
func validateDestination(ch models.Channel, dest string) error {
	switch ch {
	case models.ChannelSMS:
		if !ValidPhone(dest) {
			return fmt.Errorf("invalid phone number format: %q", dest)
		}
	case models.ChannelEmail:
		if !ValidEmail(dest) {
			return fmt.Errorf("invalid email format: %q", dest)
		}
	default:
		return fmt.Errorf("unsupported channel %q", ch)
	}
	return nil
}
