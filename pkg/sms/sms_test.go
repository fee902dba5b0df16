package sms

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"+1 (555) 000-1111": "+15550001111",
		"555-000-1111":      "+15550001111",
		"15550001111":       "+15550001111",
		"+44 20 7946 0958":  "+442079460958",
	}
	for in, want := range tests {
		assert.Equal(t, want, Normalize(in), in)
	}
}
