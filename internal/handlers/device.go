package handlers

import (
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-relay/internal/db"
	"github.com/ukydev/fleet-relay/internal/models"
	"github.com/ukydev/fleet-relay/internal/phone"
)

// DeviceHandler manages push token registration
type DeviceHandler struct {
	devices    db.DeviceCollection
	normalizer *phone.Normalizer
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(devices db.DeviceCollection, normalizer *phone.Normalizer) *DeviceHandler {
	return &DeviceHandler{devices: devices, normalizer: normalizer}
}

// Register handles POST /register-device
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterDeviceRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	device := models.DeviceToken{
		Token:              req.Token,
		UserID:             req.UserID,
		VehicleID:          req.VehicleID,
		RegistrationNumber: req.RegistrationNumber,
		ChassisNumber:      req.ChassisNumber,
		Platform:           req.Platform,
		DeviceInfo:         req.DeviceInfo,
	}
	if req.PhoneNumber != "" {
		device.PhoneNumber = h.normalizer.Normalize(req.PhoneNumber)
	}
	if device.Platform == "" {
		device.Platform = models.PlatformAndroid
	}

	saved, err := h.devices.UpsertDevice(r.Context(), device)
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.WithFields(log.Fields{
		"device_id":  saved.ID.Hex(),
		"vehicle_id": saved.VehicleID,
		"platform":   saved.Platform,
	}).Info("Device registered")

	writeJSON(w, http.StatusOK, Envelope{
		"success": true,
		"message": "Device registered successfully",
		"data":    saved,
	})
}

// Unregister handles POST /unregister-device
func (h *DeviceHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	var req models.UnregisterDeviceRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	found, err := h.devices.DeactivateDevice(r.Context(), req.Token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, Envelope{"success": false, "message": "Device not found", "error": CodeDeviceNotFound})
		return
	}

	writeJSON(w, http.StatusOK, Envelope{
		"success": true,
		"message": "Device unregistered successfully",
	})
}

// List handles GET /devices
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	devices, err := h.devices.FindActiveDevices(r.Context(), models.DeviceQuery{VehicleID: r.URL.Query().Get("vehicleId")})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{
		"success": true,
		"count":   len(devices),
		"data":    devices,
	})
}
