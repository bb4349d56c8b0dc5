// Package telemetry turns vehicle events into push notifications.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-relay/internal/db"
	"github.com/ukydev/fleet-relay/internal/models"
	"github.com/ukydev/fleet-relay/internal/notify"
	"github.com/ukydev/fleet-relay/internal/push"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrMissingFields = errors.New("deviceId and event are required")
	ErrInvalidEvent  = errors.New("telemetry event must be a JSON object")
	ErrInvalidField  = errors.New("invalid telemetry field")
)

// Dispatcher sends a push to the devices matching a query.
type Dispatcher interface {
	SendPush(ctx context.Context, query models.DeviceQuery, msg push.Message) notify.Result
}

// Outcome is returned to the caller once an event has been handled.
type Outcome struct {
	LogID             primitive.ObjectID `json:"logId"`
	DeviceID          string             `json:"deviceId"`
	Event             string             `json:"event"`
	NotificationSent  bool               `json:"notificationSent"`
	DevicesNotified   int                `json:"devicesNotified"`
	NotificationError string             `json:"notificationError,omitempty"`
}

// Router records telemetry events and notifies the vehicle's devices.
type Router struct {
	logs       db.TelemetryCollection
	dispatcher Dispatcher
	now        func() time.Time
}

// NewRouter creates a telemetry router.
func NewRouter(logs db.TelemetryCollection, dispatcher Dispatcher) *Router {
	return &Router{logs: logs, dispatcher: dispatcher, now: time.Now}
}

// DecodeEvent parses a JSON telemetry event and keeps the raw document.
func DecodeEvent(body []byte) (models.TelemetryEvent, error) {
	var raw bson.M
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return models.TelemetryEvent{}, ErrInvalidEvent
	}
	var wire struct {
		models.TelemetryEvent
		DeviceID json.RawMessage `json:"deviceId"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return models.TelemetryEvent{}, fmt.Errorf("%w: %s has the wrong type", ErrInvalidField, typeErr.Field)
		}
		return models.TelemetryEvent{}, ErrInvalidEvent
	}
	id, err := decodeDeviceID(wire.DeviceID)
	if err != nil {
		return models.TelemetryEvent{}, err
	}
	ev := wire.TelemetryEvent
	ev.DeviceID = id
	ev.Raw = raw
	return ev, nil
}

// decodeDeviceID accepts a string or a number; trackers that report numeric
// ids get them as their decimal text.
func decodeDeviceID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return "", fmt.Errorf("%w: deviceId must be a string or number", ErrInvalidField)
		}
		return id, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("%w: deviceId must be a string or number", ErrInvalidField)
	}
	return n.String(), nil
}

// RouteTelemetry writes the audit row, notifies the devices linked to the
// vehicle and records the outcome. Only a failure to write the audit row
// is returned as an error.
func (r *Router) RouteTelemetry(ctx context.Context, ev models.TelemetryEvent) (*Outcome, error) {
	if ev.DeviceID == "" || ev.Event == "" {
		return nil, ErrMissingFields
	}

	now := r.now()
	entry := &models.TelemetryLog{
		DeviceID:   ev.DeviceID,
		Event:      ev.Event,
		Timestamp:  ev.EventTime(now),
		RawPayload: rawPayload(ev),
		ReceivedAt: now,
	}
	if err := r.logs.InsertTelemetryLog(ctx, entry); err != nil {
		return nil, err
	}

	logger := log.WithFields(log.Fields{
		"log_id":    entry.ID.Hex(),
		"device_id": ev.DeviceID,
		"event":     ev.Event,
	})

	tmpl := TemplateFor(EventType(ev.Event))
	data := map[string]string{
		"type":      "telemetry",
		"event":     ev.Event,
		"deviceId":  ev.DeviceID,
		"timestamp": entry.Timestamp.UTC().Format(time.RFC3339),
	}
	res := r.dispatcher.SendPush(ctx, models.DeviceQuery{VehicleID: ev.DeviceID}, tmpl.Message(ev.DeviceID, data))

	outcome := models.NotificationOutcome{
		Sent:            res.Success,
		DevicesNotified: res.SuccessCount,
		ProcessedAt:     r.now(),
	}
	if !res.Success {
		outcome.Error = res.Summary()
	}
	if err := r.logs.UpdateTelemetryOutcome(ctx, entry.ID, outcome); err != nil {
		logger.WithError(err).Error("Failed to record telemetry notification outcome")
	}

	logger.WithFields(log.Fields{
		"notification_sent": outcome.Sent,
		"devices_notified":  outcome.DevicesNotified,
	}).Info("Telemetry event processed")

	return &Outcome{
		LogID:             entry.ID,
		DeviceID:          ev.DeviceID,
		Event:             ev.Event,
		NotificationSent:  outcome.Sent,
		DevicesNotified:   outcome.DevicesNotified,
		NotificationError: outcome.Error,
	}, nil
}

func rawPayload(ev models.TelemetryEvent) bson.M {
	if ev.Raw != nil {
		return ev.Raw
	}
	raw := bson.M{"deviceId": ev.DeviceID, "event": ev.Event}
	if ev.Timestamp != "" {
		raw["timestamp"] = ev.Timestamp
	}
	if ev.Data != nil {
		raw["data"] = ev.Data
	}
	return raw
}
