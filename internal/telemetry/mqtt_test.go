package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-relay/internal/models"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type mockRouter struct {
	mock.Mock
}

func (m *mockRouter) RouteTelemetry(ctx context.Context, ev models.TelemetryEvent) (*Outcome, error) {
	args := m.Called(ctx, ev)
	out, _ := args.Get(0).(*Outcome)
	return out, args.Error(1)
}

func TestParseMessage_TopicFallback(t *testing.T) {
	ev, err := parseMessage("vehicles/EV-42/events", []byte(`{"event":"THEFT_ALERT"}`))
	require.NoError(t, err)
	assert.Equal(t, "EV-42", ev.DeviceID)
	assert.Equal(t, "EV-42", ev.Raw["deviceId"])
}

func TestParseMessage_PayloadWins(t *testing.T) {
	ev, err := parseMessage("vehicles/EV-42/events", []byte(`{"deviceId":"EV-7","event":"IGNITION_ON"}`))
	require.NoError(t, err)
	assert.Equal(t, "EV-7", ev.DeviceID)
}

func TestParseMessage_Invalid(t *testing.T) {
	_, err := parseMessage("telemetry", []byte(`{"event":"IGNITION_ON"}`))
	assert.ErrorIs(t, err, ErrMissingFields)

	_, err = parseMessage("vehicles/EV-1/events", []byte(`{"deviceId":"EV-1"}`))
	assert.ErrorIs(t, err, ErrMissingFields)

	_, err = parseMessage("vehicles/EV-1/events", []byte(`garbage`))
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestSubscriber_HandleMessage(t *testing.T) {
	router := new(mockRouter)
	router.On("RouteTelemetry", mock.Anything, mock.MatchedBy(func(ev models.TelemetryEvent) bool {
		return ev.DeviceID == "EV-42" && ev.Event == "CRASH_DETECTED"
	})).Return(&Outcome{NotificationSent: true}, nil).Once()

	s := NewSubscriber(SubscriberConfig{BrokerURL: "tcp://127.0.0.1:1883", ClientID: "test", Topic: "vehicles/+/events"}, router)
	s.handleMessage(nil, &fakeMessage{topic: "vehicles/EV-42/events", payload: []byte(`{"event":"CRASH_DETECTED"}`)})
	s.handleMessage(nil, &fakeMessage{topic: "vehicles/EV-42/events", payload: []byte(`nope`)})

	router.AssertExpectations(t)
}
