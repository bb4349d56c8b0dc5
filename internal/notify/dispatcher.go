// Package notify fans push notifications out to registered devices.
package notify

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-relay/internal/db"
	"github.com/ukydev/fleet-relay/internal/models"
	"github.com/ukydev/fleet-relay/internal/push"
)

// ReasonNoDevices is reported when no active device matches the query.
const ReasonNoDevices = "No devices registered"

// Result summarises one dispatch. Gateway errors end up in Error.
type Result struct {
	Success      bool   `json:"success"`
	Reason       string `json:"reason,omitempty"`
	SuccessCount int    `json:"successCount"`
	FailureCount int    `json:"failureCount"`
	TotalDevices int    `json:"totalDevices"`
	Error        string `json:"error,omitempty"`
}

// Summary returns the reason or error text of an unsuccessful result.
func (r Result) Summary() string {
	if r.Error != "" {
		return r.Error
	}
	return r.Reason
}

// Dispatcher resolves target devices and sends through a push gateway.
type Dispatcher struct {
	devices   db.DeviceCollection
	gateway   push.Gateway
	batchSize int
	now       func() time.Time
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(devices db.DeviceCollection, gateway push.Gateway) *Dispatcher {
	return &Dispatcher{
		devices:   devices,
		gateway:   gateway,
		batchSize: push.MaxMulticastTokens,
		now:       time.Now,
	}
}

// SendPush delivers msg to every active device matching query. Tokens the
// gateway rejects are deactivated.
func (d *Dispatcher) SendPush(ctx context.Context, query models.DeviceQuery, msg push.Message) Result {
	logger := log.WithFields(log.Fields{"vehicle_id": query.VehicleID, "title": msg.Title})

	devices, err := d.devices.FindActiveDevices(ctx, query)
	if err != nil {
		logger.WithError(err).Error("Failed to load device tokens")
		return Result{Success: false, Error: err.Error()}
	}
	if len(devices) == 0 {
		logger.Info("No devices registered, skipping push")
		return Result{Success: false, Reason: ReasonNoDevices}
	}

	tokens := make([]string, 0, len(devices))
	for _, device := range devices {
		tokens = append(tokens, device.Token)
	}

	res := Result{TotalDevices: len(tokens)}
	var failed, delivered []string
	for start := 0; start < len(tokens); start += d.batchSize {
		end := start + d.batchSize
		if end > len(tokens) {
			end = len(tokens)
		}

		batch, err := d.gateway.SendMulticast(ctx, tokens[start:end], msg)
		if err != nil {
			logger.WithError(err).WithField("batch_start", start).Error("Push gateway call failed")
			res.FailureCount += end - start
			res.Error = err.Error()
			continue
		}
		res.SuccessCount += batch.SuccessCount
		res.FailureCount += batch.FailureCount
		failed = append(failed, batch.FailedTokens()...)
		delivered = append(delivered, batch.SucceededTokens()...)
	}

	if len(failed) > 0 {
		n, err := d.devices.DeactivateTokens(ctx, failed)
		if err != nil {
			logger.WithError(err).Error("Failed to deactivate invalid tokens")
		} else {
			logger.WithField("deactivated", n).Info("Deactivated invalid device tokens")
		}
	}
	if len(delivered) > 0 {
		if err := d.devices.TouchTokens(ctx, delivered, d.now()); err != nil {
			logger.WithError(err).Warn("Failed to update device last_used")
		}
	}

	res.Success = res.SuccessCount > 0
	logger.WithFields(log.Fields{
		"success_count": res.SuccessCount,
		"failure_count": res.FailureCount,
		"total_devices": res.TotalDevices,
	}).Info("Push notification dispatched")
	return res
}
