package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-relay/internal/db"
	"github.com/ukydev/fleet-relay/internal/middleware"
	"github.com/ukydev/fleet-relay/internal/models"
	"github.com/ukydev/fleet-relay/internal/notify"
	"github.com/ukydev/fleet-relay/internal/push"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

// Notifier sends a push to the devices matching a query.
type Notifier interface {
	SendPush(ctx context.Context, query models.DeviceQuery, msg push.Message) notify.Result
}

// DeviceCounter counts active devices.
type DeviceCounter interface {
	CountActiveDevices(ctx context.Context) (int64, error)
}

// redactedHeaders are stored without their values.
var redactedHeaders = map[string]bool{
	"authorization": true,
	"cookie":        true,
}

// WebhookHandler handles generic webhook ingestion and inspection
type WebhookHandler struct {
	webhooks  db.WebhookCollection
	devices   DeviceCounter
	notifier  Notifier
	storeName string
}

// NewWebhookHandler creates a new webhook handler. storeName is echoed
// back as "savedTo".
func NewWebhookHandler(webhooks db.WebhookCollection, devices DeviceCounter, notifier Notifier, storeName string) *WebhookHandler {
	return &WebhookHandler{
		webhooks:  webhooks,
		devices:   devices,
		notifier:  notifier,
		storeName: storeName,
	}
}

// Receive handles POST /webhook: store the payload and notify every device.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	payload, err := models.ParseWebhookPayload(r.Header.Get("Content-Type"), body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rec := h.newRecord(r, payload)
	if err := h.webhooks.InsertWebhook(r.Context(), rec); err != nil {
		writeError(w, r, err)
		return
	}

	res := h.notifier.SendPush(r.Context(), models.DeviceQuery{}, webhookMessage(rec))
	outcome := models.NotificationOutcome{Sent: res.Success, ProcessedAt: time.Now()}
	if !res.Success {
		outcome.Error = res.Summary()
	}
	if err := h.webhooks.UpdateWebhookOutcome(r.Context(), rec.ID, outcome); err != nil {
		log.WithError(err).WithField("webhook_id", rec.ID.Hex()).Error("Failed to record webhook notification outcome")
	}
	rec.NotificationSent = outcome.Sent
	rec.NotificationError = outcome.Error

	log.WithFields(log.Fields{
		"webhook_id":        rec.ID.Hex(),
		"notification_sent": outcome.Sent,
		"request_id":        middleware.RequestIDFromContext(r.Context()),
	}).Info("Webhook received and saved")

	writeJSON(w, http.StatusOK, Envelope{
		"success":      true,
		"message":      "Webhook received successfully",
		"id":           rec.ID,
		"timestamp":    rec.Timestamp,
		"receivedData": rec.Payload,
		"savedTo":      h.storeName,
		"notification": res,
	})
}

// ReceiveGet handles GET /webhook: store the query string. No push is sent.
func (h *WebhookHandler) ReceiveGet(w http.ResponseWriter, r *http.Request) {
	rec := h.newRecord(r, models.ValuesToDocument(r.URL.Query()))
	if err := h.webhooks.InsertWebhook(r.Context(), rec); err != nil {
		writeError(w, r, err)
		return
	}

	log.WithField("webhook_id", rec.ID.Hex()).Info("Webhook GET request saved")
	writeJSON(w, http.StatusOK, Envelope{
		"success":      true,
		"message":      "Webhook GET request received",
		"id":           rec.ID,
		"timestamp":    rec.Timestamp,
		"receivedData": rec.Payload,
		"savedTo":      h.storeName,
	})
}

// List handles GET /webhooks
func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"))
	records, err := h.webhooks.FindRecentWebhooks(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{
		"success": true,
		"count":   len(records),
		"data":    records,
	})
}

// Get handles GET /webhooks/{id}
func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.webhooks.FindWebhookByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, Envelope{"success": false, "message": "Webhook not found", "error": CodeNotFound})
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{"success": true, "data": rec})
}

// DeleteAll handles DELETE /webhooks
func (h *WebhookHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.webhooks.DeleteAllWebhooks(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.WithField("deleted", n).Warn("All webhook records deleted")
	writeJSON(w, http.StatusOK, Envelope{
		"success": true,
		"message": fmt.Sprintf("Deleted %d webhooks", n),
	})
}

// Status handles GET /webhook-status
func (h *WebhookHandler) Status(w http.ResponseWriter, r *http.Request) {
	stats, err := h.webhooks.WebhookStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	devices, err := h.devices.CountActiveDevices(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{
		"success": true,
		"data": Envelope{
			"totalWebhooks":    stats.Total,
			"notifiedWebhooks": stats.Notified,
			"lastReceived":     stats.LastReceived,
			"activeDevices":    devices,
		},
	})
}

func (h *WebhookHandler) newRecord(r *http.Request, payload bson.M) *models.WebhookRecord {
	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		key := strings.ToLower(name)
		if redactedHeaders[key] {
			headers[key] = "[redacted]"
			continue
		}
		headers[key] = strings.Join(values, ", ")
	}
	return &models.WebhookRecord{
		Payload:   payload,
		Headers:   headers,
		Method:    r.Method,
		SourceIP:  middleware.ClientIP(r),
		URL:       r.URL.RequestURI(),
		Timestamp: time.Now().UTC(),
	}
}

func webhookMessage(rec *models.WebhookRecord) push.Message {
	body := "A new webhook payload was received"
	if event, ok := rec.Payload["event"].(string); ok && event != "" {
		body = "Event: " + event
	}
	return push.Message{
		Title: "New Webhook Received",
		Body:  body,
		Data: map[string]string{
			"type":      "webhook",
			"webhookId": rec.ID.Hex(),
			"timestamp": rec.Timestamp.Format(time.RFC3339),
		},
		Priority: push.PriorityNormal,
	}
}

// parseLimit reads a list limit, defaulting to 10 and capping at 100.
func parseLimit(raw string) int64 {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}
