package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ukydev/fleet-relay/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore holds every collection in memory. It backs local
// development and tests and is not for production.
type MemoryStore struct {
	otps      map[primitive.ObjectID]models.OTPRecord
	devices   map[string]models.DeviceToken
	telemetry []models.TelemetryLog
	webhooks  []models.WebhookRecord

	// Mutexes for thread safety
	otpMu       sync.Mutex
	deviceMu    sync.RWMutex
	telemetryMu sync.RWMutex
	webhookMu   sync.RWMutex
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		otps:    make(map[primitive.ObjectID]models.OTPRecord),
		devices: make(map[string]models.DeviceToken),
	}
}

// Ping always succeeds
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// OTP operations

func (m *MemoryStore) DeleteUnverified(ctx context.Context, phoneNumber string) (int64, error) {
	m.otpMu.Lock()
	defer m.otpMu.Unlock()

	var n int64
	for id, rec := range m.otps {
		if rec.PhoneNumber == phoneNumber && !rec.Verified {
			delete(m.otps, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) InsertOTP(ctx context.Context, rec *models.OTPRecord) error {
	m.otpMu.Lock()
	defer m.otpMu.Unlock()

	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	m.otps[rec.ID] = *rec
	return nil
}

func (m *MemoryStore) FindLatestUnverified(ctx context.Context, phoneNumber string) (*models.OTPRecord, error) {
	m.otpMu.Lock()
	defer m.otpMu.Unlock()

	var latest *models.OTPRecord
	for _, rec := range m.otps {
		if rec.PhoneNumber != phoneNumber || rec.Verified {
			continue
		}
		if latest == nil || rec.CreatedAt.After(latest.CreatedAt) {
			r := rec
			latest = &r
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (m *MemoryStore) IncrementAttempts(ctx context.Context, id primitive.ObjectID) (int, error) {
	m.otpMu.Lock()
	defer m.otpMu.Unlock()

	rec, ok := m.otps[id]
	if !ok {
		return 0, ErrNotFound
	}
	rec.Attempts++
	m.otps[id] = rec
	return rec.Attempts, nil
}

func (m *MemoryStore) MarkVerified(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	m.otpMu.Lock()
	defer m.otpMu.Unlock()

	rec, ok := m.otps[id]
	if !ok || rec.Verified {
		return ErrNotFound
	}
	rec.Verified = true
	rec.VerifiedAt = &at
	m.otps[id] = rec
	return nil
}

func (m *MemoryStore) DeleteOTP(ctx context.Context, id primitive.ObjectID) error {
	m.otpMu.Lock()
	defer m.otpMu.Unlock()

	delete(m.otps, id)
	return nil
}

// OTPs returns a snapshot of every stored OTP record
func (m *MemoryStore) OTPs() []models.OTPRecord {
	m.otpMu.Lock()
	defer m.otpMu.Unlock()

	out := make([]models.OTPRecord, 0, len(m.otps))
	for _, rec := range m.otps {
		out = append(out, rec)
	}
	return out
}

// Device operations

func (m *MemoryStore) UpsertDevice(ctx context.Context, device models.DeviceToken) (*models.DeviceToken, error) {
	m.deviceMu.Lock()
	defer m.deviceMu.Unlock()

	now := time.Now()
	if existing, ok := m.devices[device.Token]; ok {
		device.ID = existing.ID
		device.CreatedAt = existing.CreatedAt
	} else {
		device.ID = primitive.NewObjectID()
		device.CreatedAt = now
	}
	device.Active = true
	device.LastUsed = now
	device.UpdatedAt = now
	m.devices[device.Token] = device

	out := device
	return &out, nil
}

func (m *MemoryStore) DeactivateDevice(ctx context.Context, token string) (bool, error) {
	m.deviceMu.Lock()
	defer m.deviceMu.Unlock()

	device, ok := m.devices[token]
	if !ok {
		return false, nil
	}
	device.Active = false
	device.UpdatedAt = time.Now()
	m.devices[token] = device
	return true, nil
}

func (m *MemoryStore) DeactivateTokens(ctx context.Context, tokens []string) (int64, error) {
	m.deviceMu.Lock()
	defer m.deviceMu.Unlock()

	var n int64
	for _, token := range tokens {
		device, ok := m.devices[token]
		if !ok || !device.Active {
			continue
		}
		device.Active = false
		device.UpdatedAt = time.Now()
		m.devices[token] = device
		n++
	}
	return n, nil
}

func (m *MemoryStore) TouchTokens(ctx context.Context, tokens []string, at time.Time) error {
	m.deviceMu.Lock()
	defer m.deviceMu.Unlock()

	for _, token := range tokens {
		if device, ok := m.devices[token]; ok {
			device.LastUsed = at
			m.devices[token] = device
		}
	}
	return nil
}

func (m *MemoryStore) FindActiveDevices(ctx context.Context, query models.DeviceQuery) ([]models.DeviceToken, error) {
	m.deviceMu.RLock()
	defer m.deviceMu.RUnlock()

	out := []models.DeviceToken{}
	for _, device := range m.devices {
		if !device.Active {
			continue
		}
		if query.VehicleID != "" &&
			device.VehicleID != query.VehicleID &&
			device.RegistrationNumber != query.VehicleID &&
			device.ChassisNumber != query.VehicleID {
			continue
		}
		out = append(out, device)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) CountActiveDevices(ctx context.Context) (int64, error) {
	m.deviceMu.RLock()
	defer m.deviceMu.RUnlock()

	var n int64
	for _, device := range m.devices {
		if device.Active {
			n++
		}
	}
	return n, nil
}

// Device returns the stored device for a token
func (m *MemoryStore) Device(token string) (models.DeviceToken, bool) {
	m.deviceMu.RLock()
	defer m.deviceMu.RUnlock()

	device, ok := m.devices[token]
	return device, ok
}

// Telemetry operations

func (m *MemoryStore) InsertTelemetryLog(ctx context.Context, entry *models.TelemetryLog) error {
	m.telemetryMu.Lock()
	defer m.telemetryMu.Unlock()

	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	m.telemetry = append(m.telemetry, *entry)
	return nil
}

func (m *MemoryStore) UpdateTelemetryOutcome(ctx context.Context, id primitive.ObjectID, outcome models.NotificationOutcome) error {
	m.telemetryMu.Lock()
	defer m.telemetryMu.Unlock()

	for i := range m.telemetry {
		if m.telemetry[i].ID != id {
			continue
		}
		processedAt := outcome.ProcessedAt
		m.telemetry[i].NotificationSent = outcome.Sent
		m.telemetry[i].DevicesNotified = outcome.DevicesNotified
		m.telemetry[i].NotificationError = outcome.Error
		m.telemetry[i].ProcessedAt = &processedAt
		return nil
	}
	return ErrNotFound
}

func (m *MemoryStore) FindTelemetryLogs(ctx context.Context, deviceID string, limit int64) ([]models.TelemetryLog, error) {
	m.telemetryMu.RLock()
	defer m.telemetryMu.RUnlock()

	out := []models.TelemetryLog{}
	for i := len(m.telemetry) - 1; i >= 0; i-- {
		if deviceID != "" && m.telemetry[i].DeviceID != deviceID {
			continue
		}
		out = append(out, m.telemetry[i])
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

// Webhook operations

func (m *MemoryStore) InsertWebhook(ctx context.Context, rec *models.WebhookRecord) error {
	m.webhookMu.Lock()
	defer m.webhookMu.Unlock()

	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	m.webhooks = append(m.webhooks, *rec)
	return nil
}

func (m *MemoryStore) UpdateWebhookOutcome(ctx context.Context, id primitive.ObjectID, outcome models.NotificationOutcome) error {
	m.webhookMu.Lock()
	defer m.webhookMu.Unlock()

	for i := range m.webhooks {
		if m.webhooks[i].ID != id {
			continue
		}
		m.webhooks[i].NotificationSent = outcome.Sent
		m.webhooks[i].NotificationError = outcome.Error
		return nil
	}
	return ErrNotFound
}

func (m *MemoryStore) FindRecentWebhooks(ctx context.Context, limit int64) ([]models.WebhookRecord, error) {
	m.webhookMu.RLock()
	defer m.webhookMu.RUnlock()

	out := []models.WebhookRecord{}
	for i := len(m.webhooks) - 1; i >= 0; i-- {
		out = append(out, m.webhooks[i])
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) FindWebhookByID(ctx context.Context, id string) (*models.WebhookRecord, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	m.webhookMu.RLock()
	defer m.webhookMu.RUnlock()

	for _, rec := range m.webhooks {
		if rec.ID == objectID {
			out := rec
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) DeleteAllWebhooks(ctx context.Context) (int64, error) {
	m.webhookMu.Lock()
	defer m.webhookMu.Unlock()

	n := int64(len(m.webhooks))
	m.webhooks = nil
	return n, nil
}

func (m *MemoryStore) WebhookStats(ctx context.Context) (*models.WebhookStats, error) {
	m.webhookMu.RLock()
	defer m.webhookMu.RUnlock()

	stats := &models.WebhookStats{Total: int64(len(m.webhooks))}
	for _, rec := range m.webhooks {
		if rec.NotificationSent {
			stats.Notified++
		}
		if stats.LastReceived == nil || rec.Timestamp.After(*stats.LastReceived) {
			ts := rec.Timestamp
			stats.LastReceived = &ts
		}
	}
	return stats, nil
}

var (
	_ OTPCollection       = (*MemoryStore)(nil)
	_ DeviceCollection    = (*MemoryStore)(nil)
	_ TelemetryCollection = (*MemoryStore)(nil)
	_ WebhookCollection   = (*MemoryStore)(nil)
	_ Pinger              = (*MemoryStore)(nil)

	_ OTPCollection       = (*MongoOTPCollection)(nil)
	_ DeviceCollection    = (*MongoDeviceCollection)(nil)
	_ TelemetryCollection = (*MongoTelemetryCollection)(nil)
	_ WebhookCollection   = (*MongoWebhookCollection)(nil)
	_ Pinger              = (*Store)(nil)
)
