package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsValidPurpose(t *testing.T) {
	tests := []struct {
		name     string
		purpose  Purpose
		expected bool
	}{
		{"login", PurposeLogin, true},
		{"signup", PurposeSignup, true},
		{"verification", PurposeVerification, true},
		{"password reset", PurposePasswordReset, true},
		{"unknown", "transfer", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsValidPurpose(tt.purpose))
		})
	}
}

func TestOTPRecord_IsExpired(t *testing.T) {
	now := time.Now()
	rec := &OTPRecord{ExpiresAt: now}
	assert.False(t, rec.IsExpired(now))
	assert.True(t, rec.IsExpired(now.Add(time.Second)))
}

func TestTelemetryEvent_EventTime(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	ev := &TelemetryEvent{Timestamp: "2024-04-30T08:15:00Z"}
	assert.Equal(t, time.Date(2024, 4, 30, 8, 15, 0, 0, time.UTC), ev.EventTime(now))

	ev = &TelemetryEvent{}
	assert.Equal(t, now, ev.EventTime(now))

	ev = &TelemetryEvent{Timestamp: "yesterday"}
	assert.Equal(t, now, ev.EventTime(now))
}
