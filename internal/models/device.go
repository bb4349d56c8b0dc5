package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Platform constants
const (
	PlatformAndroid = "android"
	PlatformIOS     = "ios"
	PlatformWeb     = "web"
)

// DeviceInfo describes the app install that owns a push token.
type DeviceInfo struct {
	Model      string `bson:"model,omitempty" json:"model,omitempty"`
	OSVersion  string `bson:"os_version,omitempty" json:"osVersion,omitempty"`
	AppVersion string `bson:"app_version,omitempty" json:"appVersion,omitempty"`
}

// DeviceToken is a registered push token. Tokens are unique and are
// deactivated rather than deleted.
type DeviceToken struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Token              string             `bson:"token" json:"token"`
	PhoneNumber        string             `bson:"phone_number" json:"phoneNumber"`
	UserID             string             `bson:"user_id" json:"userId"`
	VehicleID          string             `bson:"vehicle_id" json:"vehicleId"`
	RegistrationNumber string             `bson:"registration_number" json:"registrationNumber"`
	ChassisNumber      string             `bson:"chassis_number" json:"chassisNumber"`
	Platform           string             `bson:"platform" json:"platform"`
	DeviceInfo         DeviceInfo         `bson:"device_info" json:"deviceInfo"`
	Active             bool               `bson:"active" json:"active"`
	LastUsed           time.Time          `bson:"last_used" json:"lastUsed"`
	CreatedAt          time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt          time.Time          `bson:"updated_at" json:"updatedAt"`
}

// DeviceQuery selects active devices. An empty VehicleID selects all of them.
type DeviceQuery struct {
	VehicleID string
}

// RegisterDeviceRequest is the body of /register-device
type RegisterDeviceRequest struct {
	Token              string     `json:"token" validate:"required"`
	PhoneNumber        string     `json:"phoneNumber"`
	UserID             string     `json:"userId"`
	VehicleID          string     `json:"vehicleId"`
	RegistrationNumber string     `json:"registrationNumber"`
	ChassisNumber      string     `json:"chassisNumber"`
	Platform           string     `json:"platform" validate:"omitempty,oneof=android ios web"`
	DeviceInfo         DeviceInfo `json:"deviceInfo"`
}

// UnregisterDeviceRequest is the body of /unregister-device
type UnregisterDeviceRequest struct {
	Token string `json:"token" validate:"required"`
}

// SendNotificationRequest is the body of /send-notification
type SendNotificationRequest struct {
	Title     string            `json:"title" validate:"required"`
	Body      string            `json:"body" validate:"required"`
	VehicleID string            `json:"vehicleId"`
	Data      map[string]string `json:"data"`
}
