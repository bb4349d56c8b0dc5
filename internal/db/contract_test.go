package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-relay/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// The contract tests run against MemoryStore and, when MONGO_URI is set,
// against the MongoDB collections.

func runOTPCollectionContract(t *testing.T, coll OTPCollection) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	old := &models.OTPRecord{PhoneNumber: "+919876543210", CodeHash: "h1", Purpose: models.PurposeLogin,
		ExpiresAt: now.Add(10 * time.Minute), CreatedAt: now.Add(-time.Minute)}
	newer := &models.OTPRecord{PhoneNumber: "+919876543210", CodeHash: "h2", Purpose: models.PurposeLogin,
		ExpiresAt: now.Add(10 * time.Minute), CreatedAt: now}
	other := &models.OTPRecord{PhoneNumber: "+919000000000", CodeHash: "h3", Purpose: models.PurposeSignup,
		ExpiresAt: now.Add(10 * time.Minute), CreatedAt: now}
	require.NoError(t, coll.InsertOTP(ctx, old))
	require.NoError(t, coll.InsertOTP(ctx, newer))
	require.NoError(t, coll.InsertOTP(ctx, other))
	assert.False(t, old.ID.IsZero())

	latest, err := coll.FindLatestUnverified(ctx, "+919876543210")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)
	assert.Equal(t, "h2", latest.CodeHash)

	n, err := coll.IncrementAttempts(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = coll.IncrementAttempts(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = coll.IncrementAttempts(ctx, primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, coll.MarkVerified(ctx, newer.ID, now))
	assert.ErrorIs(t, coll.MarkVerified(ctx, newer.ID, now), ErrNotFound)

	latest, err = coll.FindLatestUnverified(ctx, "+919876543210")
	require.NoError(t, err)
	assert.Equal(t, old.ID, latest.ID)

	deleted, err := coll.DeleteUnverified(ctx, "+919876543210")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = coll.FindLatestUnverified(ctx, "+919876543210")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, coll.DeleteOTP(ctx, other.ID))
	_, err = coll.FindLatestUnverified(ctx, "+919000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func runDeviceCollectionContract(t *testing.T, coll DeviceCollection) {
	ctx := context.Background()

	first, err := coll.UpsertDevice(ctx, models.DeviceToken{Token: "tok-1", VehicleID: "V-1", Platform: models.PlatformAndroid})
	require.NoError(t, err)
	assert.True(t, first.Active)
	assert.False(t, first.CreatedAt.IsZero())

	_, err = coll.UpsertDevice(ctx, models.DeviceToken{Token: "tok-2", VehicleID: "V-2", RegistrationNumber: "KA01AB1234"})
	require.NoError(t, err)
	_, err = coll.UpsertDevice(ctx, models.DeviceToken{Token: "tok-3", ChassisNumber: "CH-9"})
	require.NoError(t, err)

	again, err := coll.UpsertDevice(ctx, models.DeviceToken{Token: "tok-1", VehicleID: "V-1", UserID: "U-1"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "U-1", again.UserID)

	all, err := coll.FindActiveDevices(ctx, models.DeviceQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byReg, err := coll.FindActiveDevices(ctx, models.DeviceQuery{VehicleID: "KA01AB1234"})
	require.NoError(t, err)
	require.Len(t, byReg, 1)
	assert.Equal(t, "tok-2", byReg[0].Token)

	byChassis, err := coll.FindActiveDevices(ctx, models.DeviceQuery{VehicleID: "CH-9"})
	require.NoError(t, err)
	require.Len(t, byChassis, 1)

	found, err := coll.DeactivateDevice(ctx, "tok-3")
	require.NoError(t, err)
	assert.True(t, found)
	found, err = coll.DeactivateDevice(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	n, err := coll.DeactivateTokens(ctx, []string{"tok-2", "missing"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	count, err := coll.CountActiveDevices(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, coll.TouchTokens(ctx, []string{"tok-1"}, time.Now()))

	reactivated, err := coll.UpsertDevice(ctx, models.DeviceToken{Token: "tok-2", VehicleID: "V-2"})
	require.NoError(t, err)
	assert.True(t, reactivated.Active)
}

func runTelemetryCollectionContract(t *testing.T, coll TelemetryCollection) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	a := &models.TelemetryLog{DeviceID: "V-1", Event: "BATTERY_LOW", RawPayload: bson.M{"soc": 12.0}, ReceivedAt: now.Add(-time.Second)}
	b := &models.TelemetryLog{DeviceID: "V-2", Event: "OVERSPEED", RawPayload: bson.M{}, ReceivedAt: now}
	require.NoError(t, coll.InsertTelemetryLog(ctx, a))
	require.NoError(t, coll.InsertTelemetryLog(ctx, b))

	require.NoError(t, coll.UpdateTelemetryOutcome(ctx, a.ID, models.NotificationOutcome{Sent: true, DevicesNotified: 2, ProcessedAt: now}))
	assert.ErrorIs(t, coll.UpdateTelemetryOutcome(ctx, primitive.NewObjectID(), models.NotificationOutcome{}), ErrNotFound)

	logs, err := coll.FindTelemetryLogs(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, b.ID, logs[0].ID)

	logs, err = coll.FindTelemetryLogs(ctx, "V-1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].NotificationSent)
	assert.Equal(t, 2, logs[0].DevicesNotified)
	require.NotNil(t, logs[0].ProcessedAt)

	logs, err = coll.FindTelemetryLogs(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func runWebhookCollectionContract(t *testing.T, coll WebhookCollection) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	stats, err := coll.WebhookStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Total)
	assert.Nil(t, stats.LastReceived)

	a := &models.WebhookRecord{Payload: bson.M{"event": "a"}, Method: "POST", Timestamp: now.Add(-time.Second)}
	b := &models.WebhookRecord{Payload: bson.M{"event": "b"}, Method: "GET", Timestamp: now}
	require.NoError(t, coll.InsertWebhook(ctx, a))
	require.NoError(t, coll.InsertWebhook(ctx, b))
	require.NoError(t, coll.UpdateWebhookOutcome(ctx, a.ID, models.NotificationOutcome{Sent: true}))

	recent, err := coll.FindRecentWebhooks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, b.ID, recent[0].ID)

	got, err := coll.FindWebhookByID(ctx, a.ID.Hex())
	require.NoError(t, err)
	assert.True(t, got.NotificationSent)
	assert.Equal(t, "a", got.Payload["event"])

	_, err = coll.FindWebhookByID(ctx, "not-an-id")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = coll.FindWebhookByID(ctx, primitive.NewObjectID().Hex())
	assert.ErrorIs(t, err, ErrNotFound)

	stats, err = coll.WebhookStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Notified)
	require.NotNil(t, stats.LastReceived)
	assert.True(t, stats.LastReceived.Equal(now))

	deleted, err := coll.DeleteAllWebhooks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}
