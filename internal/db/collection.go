package db

import (
	"context"
	"time"

	"github.com/ukydev/fleet-relay/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OTPCollection defines the interface for OTP record operations.
type OTPCollection interface {
	DeleteUnverified(ctx context.Context, phoneNumber string) (int64, error)
	InsertOTP(ctx context.Context, rec *models.OTPRecord) error
	FindLatestUnverified(ctx context.Context, phoneNumber string) (*models.OTPRecord, error)
	IncrementAttempts(ctx context.Context, id primitive.ObjectID) (int, error)
	MarkVerified(ctx context.Context, id primitive.ObjectID, at time.Time) error
	DeleteOTP(ctx context.Context, id primitive.ObjectID) error
}

// DeviceCollection defines the interface for the device registry.
type DeviceCollection interface {
	UpsertDevice(ctx context.Context, device models.DeviceToken) (*models.DeviceToken, error)
	DeactivateDevice(ctx context.Context, token string) (bool, error)
	DeactivateTokens(ctx context.Context, tokens []string) (int64, error)
	TouchTokens(ctx context.Context, tokens []string, at time.Time) error
	FindActiveDevices(ctx context.Context, query models.DeviceQuery) ([]models.DeviceToken, error)
	CountActiveDevices(ctx context.Context) (int64, error)
}

// TelemetryCollection defines the interface for telemetry audit rows.
type TelemetryCollection interface {
	InsertTelemetryLog(ctx context.Context, entry *models.TelemetryLog) error
	UpdateTelemetryOutcome(ctx context.Context, id primitive.ObjectID, outcome models.NotificationOutcome) error
	FindTelemetryLogs(ctx context.Context, deviceID string, limit int64) ([]models.TelemetryLog, error)
}

// WebhookCollection defines the interface for webhook audit rows.
type WebhookCollection interface {
	InsertWebhook(ctx context.Context, rec *models.WebhookRecord) error
	UpdateWebhookOutcome(ctx context.Context, id primitive.ObjectID, outcome models.NotificationOutcome) error
	FindRecentWebhooks(ctx context.Context, limit int64) ([]models.WebhookRecord, error)
	FindWebhookByID(ctx context.Context, id string) (*models.WebhookRecord, error)
	DeleteAllWebhooks(ctx context.Context) (int64, error)
	WebhookStats(ctx context.Context) (*models.WebhookStats, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
