package handlers

import (
	"net/http"

	"github.com/ukydev/fleet-relay/internal/models"
	"github.com/ukydev/fleet-relay/internal/push"
)

// NotificationHandler sends manual push notifications
type NotificationHandler struct {
	notifier Notifier
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notifier Notifier) *NotificationHandler {
	return &NotificationHandler{notifier: notifier}
}

// Send handles POST /send-notification. Without vehicleId every active
// device is targeted.
func (h *NotificationHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req models.SendNotificationRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	data := map[string]string{"type": "manual"}
	for k, v := range req.Data {
		data[k] = v
	}
	res := h.notifier.SendPush(r.Context(), models.DeviceQuery{VehicleID: req.VehicleID}, push.Message{
		Title:    req.Title,
		Body:     req.Body,
		Data:     data,
		Priority: push.PriorityHigh,
	})

	message := "Notification sent"
	if !res.Success {
		message = "Notification not delivered"
	}
	writeJSON(w, http.StatusOK, Envelope{
		"success": res.Success,
		"message": message,
		"data":    res,
	})
}
