package telemetry

import (
	"fmt"

	"github.com/ukydev/fleet-relay/internal/push"
)

// EventType identifies a vehicle event.
type EventType string

const (
	EventBatteryCriticalLow EventType = "BATTERY_CRITICAL_LOW"
	EventBatteryLow         EventType = "BATTERY_LOW"
	EventChargingStarted    EventType = "CHARGING_STARTED"
	EventChargingCompleted  EventType = "CHARGING_COMPLETED"
	EventMotorOverheat      EventType = "MOTOR_OVERHEAT"
	EventTheftAlert         EventType = "THEFT_ALERT"
	EventCrashDetected      EventType = "CRASH_DETECTED"
	EventOverspeed          EventType = "OVERSPEED"
	EventGeofenceBreach     EventType = "GEOFENCE_BREACH"
	EventIgnitionOn         EventType = "IGNITION_ON"
	EventIgnitionOff        EventType = "IGNITION_OFF"
	EventServiceDue         EventType = "SERVICE_DUE"
)

// Template is the notification text for an event. Body is a format
// string that receives the vehicle id.
type Template struct {
	Title     string
	Body      string
	Priority  string
	Sound     string
	ChannelID string
}

const (
	channelCritical = "fleet_critical"
	channelAlerts   = "fleet_alerts"
	channelInfo     = "fleet_info"
)

// DefaultTemplate is used for event types without an entry in Templates.
var DefaultTemplate = Template{
	Title:     "Vehicle Update",
	Body:      "New event received from vehicle %s",
	Priority:  push.PriorityNormal,
	ChannelID: channelInfo,
}

// Templates maps known event types to their notification.
var Templates = map[EventType]Template{
	EventBatteryCriticalLow: {
		Title:     "Battery Critically Low",
		Body:      "Vehicle %s battery is critically low. Charge immediately.",
		Priority:  push.PriorityHigh,
		Sound:     "alarm",
		ChannelID: channelCritical,
	},
	EventBatteryLow: {
		Title:     "Battery Low",
		Body:      "Vehicle %s battery is running low. Plan a charging stop.",
		Priority:  push.PriorityHigh,
		ChannelID: channelAlerts,
	},
	EventChargingStarted: {
		Title:     "Charging Started",
		Body:      "Vehicle %s has started charging.",
		Priority:  push.PriorityNormal,
		ChannelID: channelInfo,
	},
	EventChargingCompleted: {
		Title:     "Charging Complete",
		Body:      "Vehicle %s is fully charged.",
		Priority:  push.PriorityNormal,
		ChannelID: channelInfo,
	},
	EventMotorOverheat: {
		Title:     "Motor Overheating",
		Body:      "Vehicle %s motor temperature is too high. Stop safely and let it cool.",
		Priority:  push.PriorityHigh,
		Sound:     "alarm",
		ChannelID: channelCritical,
	},
	EventTheftAlert: {
		Title:     "Theft Alert",
		Body:      "Unauthorised movement detected on vehicle %s.",
		Priority:  push.PriorityHigh,
		Sound:     "alarm",
		ChannelID: channelCritical,
	},
	EventCrashDetected: {
		Title:     "Crash Detected",
		Body:      "A possible crash was detected on vehicle %s.",
		Priority:  push.PriorityHigh,
		Sound:     "alarm",
		ChannelID: channelCritical,
	},
	EventOverspeed: {
		Title:     "Overspeed Warning",
		Body:      "Vehicle %s is exceeding the speed limit.",
		Priority:  push.PriorityHigh,
		ChannelID: channelAlerts,
	},
	EventGeofenceBreach: {
		Title:     "Geofence Breach",
		Body:      "Vehicle %s has left its permitted area.",
		Priority:  push.PriorityHigh,
		ChannelID: channelAlerts,
	},
	EventIgnitionOn: {
		Title:     "Ignition On",
		Body:      "Vehicle %s has been switched on.",
		Priority:  push.PriorityNormal,
		ChannelID: channelInfo,
	},
	EventIgnitionOff: {
		Title:     "Ignition Off",
		Body:      "Vehicle %s has been switched off.",
		Priority:  push.PriorityNormal,
		ChannelID: channelInfo,
	},
	EventServiceDue: {
		Title:     "Service Due",
		Body:      "Vehicle %s is due for service.",
		Priority:  push.PriorityNormal,
		ChannelID: channelInfo,
	},
}

// TemplateFor returns the template for an event, or DefaultTemplate.
func TemplateFor(event EventType) Template {
	if t, ok := Templates[event]; ok {
		return t
	}
	return DefaultTemplate
}

// Message renders the template for a vehicle.
func (t Template) Message(deviceID string, data map[string]string) push.Message {
	return push.Message{
		Title:     t.Title,
		Body:      fmt.Sprintf(t.Body, deviceID),
		Data:      data,
		Priority:  t.Priority,
		Sound:     t.Sound,
		ChannelID: t.ChannelID,
	}
}
