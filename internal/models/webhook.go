package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrInvalidPayload is returned when a body claims to be JSON but is not.
var ErrInvalidPayload = errors.New("invalid payload")

// WebhookRecord is the audit row written for every generic webhook call.
type WebhookRecord struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Payload           bson.M             `bson:"payload" json:"payload"`
	Headers           map[string]string  `bson:"headers" json:"headers"`
	Method            string             `bson:"method" json:"method"`
	SourceIP          string             `bson:"source_ip" json:"sourceIp"`
	URL               string             `bson:"url" json:"url"`
	Timestamp         time.Time          `bson:"timestamp" json:"timestamp"`
	NotificationSent  bool               `bson:"notification_sent" json:"notificationSent"`
	NotificationError string             `bson:"notification_error,omitempty" json:"notificationError,omitempty"`
}

// WebhookStats summarises the webhook collection for /webhook-status.
type WebhookStats struct {
	Total        int64      `json:"total"`
	Notified     int64      `json:"notified"`
	LastReceived *time.Time `json:"lastReceived,omitempty"`
}

// ParseWebhookPayload turns a request body into a storable document.
// JSON objects are kept as-is, other JSON values are stored under
// "value", form bodies become a field map and anything else is kept
// verbatim under "raw".
func ParseWebhookPayload(contentType string, body []byte) (bson.M, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return bson.M{}, nil
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mediaType == "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, ErrInvalidPayload
		}
		return ValuesToDocument(values), nil
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		doc, ok := decodeJSON(body)
		if !ok {
			return nil, ErrInvalidPayload
		}
		return doc, nil
	default:
		if doc, ok := decodeJSON(body); ok {
			return doc, nil
		}
		return bson.M{"raw": string(body)}, nil
	}
}

// ValuesToDocument flattens single-valued keys and keeps repeated keys as lists.
func ValuesToDocument(values url.Values) bson.M {
	doc := bson.M{}
	for k, v := range values {
		if len(v) == 1 {
			doc[k] = v[0]
			continue
		}
		doc[k] = v
	}
	return doc
}

func decodeJSON(body []byte) (bson.M, bool) {
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, false
	}
	if obj, ok := v.(map[string]interface{}); ok {
		return bson.M(obj), true
	}
	return bson.M{"value": v}, true
}
