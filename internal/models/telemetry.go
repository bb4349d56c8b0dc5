package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TelemetryLog is the audit row written for every inbound telemetry event.
type TelemetryLog struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	DeviceID          string             `bson:"device_id" json:"deviceId"`
	Event             string             `bson:"event" json:"event"`
	Timestamp         time.Time          `bson:"timestamp" json:"timestamp"`
	RawPayload        bson.M             `bson:"raw_payload" json:"rawPayload"`
	NotificationSent  bool               `bson:"notification_sent" json:"notificationSent"`
	DevicesNotified   int                `bson:"devices_notified" json:"devicesNotified"`
	NotificationError string             `bson:"notification_error,omitempty" json:"notificationError,omitempty"`
	ReceivedAt        time.Time          `bson:"received_at" json:"receivedAt"`
	ProcessedAt       *time.Time         `bson:"processed_at,omitempty" json:"processedAt,omitempty"`
}

// NotificationOutcome is written back onto an audit row once dispatch finishes.
type NotificationOutcome struct {
	Sent            bool
	DevicesNotified int
	Error           string
	ProcessedAt     time.Time
}

// TelemetryEvent is an inbound vehicle event.
type TelemetryEvent struct {
	DeviceID  string                 `json:"deviceId" validate:"required"`
	Event     string                 `json:"event" validate:"required"`
	Timestamp string                 `json:"timestamp,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Raw       bson.M                 `json:"-"`
}

// EventTime parses the event timestamp, falling back to now for missing
// or unparseable values.
func (e *TelemetryEvent) EventTime(now time.Time) time.Time {
	if e.Timestamp == "" {
		return now
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, e.Timestamp); err == nil {
			return t
		}
	}
	return now
}
