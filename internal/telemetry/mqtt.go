package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-relay/internal/models"
)

const (
	connectTimeout = 10 * time.Second
	handleTimeout  = 30 * time.Second
	quiesceMillis  = 250
)

// EventRouter handles one telemetry event.
type EventRouter interface {
	RouteTelemetry(ctx context.Context, ev models.TelemetryEvent) (*Outcome, error)
}

// SubscriberConfig configures the MQTT subscriber.
type SubscriberConfig struct {
	BrokerURL string
	ClientID  string
	Topic     string
	QoS       byte
}

// Subscriber feeds telemetry published on MQTT into an EventRouter.
type Subscriber struct {
	cfg    SubscriberConfig
	router EventRouter
	client mqtt.Client
	ctx    context.Context
}

// NewSubscriber creates a subscriber. Nothing connects until Start.
func NewSubscriber(cfg SubscriberConfig, router EventRouter) *Subscriber {
	s := &Subscriber{cfg: cfg, router: router, ctx: context.Background()}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetOrderMatters(false)
	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.WithError(err).Warn("MQTT connection lost")
	})
	s.client = mqtt.NewClient(opts)
	return s
}

// Start connects to the broker. Subscriptions are (re)made on every connect.
// ctx bounds the handling of messages received after Start.
func (s *Subscriber) Start(ctx context.Context) error {
	s.ctx = ctx
	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt connect to %s timed out", s.cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect error: %w", err)
	}
	return nil
}

// Stop disconnects from the broker.
func (s *Subscriber) Stop() {
	if s.client.IsConnected() {
		s.client.Disconnect(quiesceMillis)
	}
	log.Info("MQTT subscriber stopped")
}

func (s *Subscriber) onConnect(c mqtt.Client) {
	token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, s.handleMessage)
	if token.WaitTimeout(connectTimeout) && token.Error() == nil {
		log.WithFields(log.Fields{"broker": s.cfg.BrokerURL, "topic": s.cfg.Topic}).Info("MQTT subscribed")
		return
	}
	log.WithError(token.Error()).WithField("topic", s.cfg.Topic).Error("MQTT subscribe failed")
}

func (s *Subscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	logger := log.WithField("topic", msg.Topic())

	ev, err := parseMessage(msg.Topic(), msg.Payload())
	if err != nil {
		logger.WithError(err).Warn("Dropping invalid telemetry message")
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, handleTimeout)
	defer cancel()
	if _, err := s.router.RouteTelemetry(ctx, ev); err != nil {
		logger.WithError(err).Error("Failed to route telemetry message")
	}
}

// parseMessage decodes an MQTT payload. The vehicle id falls back to the
// second topic segment, so "vehicles/EV-42/events" yields "EV-42".
func parseMessage(topic string, payload []byte) (models.TelemetryEvent, error) {
	ev, err := DecodeEvent(payload)
	if err != nil {
		return ev, err
	}
	if ev.DeviceID == "" {
		if parts := strings.Split(topic, "/"); len(parts) >= 2 && parts[1] != "" {
			ev.DeviceID = parts[1]
			ev.Raw["deviceId"] = ev.DeviceID
		}
	}
	if ev.DeviceID == "" || ev.Event == "" {
		return ev, fmt.Errorf("%w (topic %s)", ErrMissingFields, topic)
	}
	return ev, nil
}
