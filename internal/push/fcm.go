package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

const (
	defaultSound     = "default"
	defaultChannelID = "fleet_alerts"
)

type multicastClient interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMGateway sends notifications through Firebase Cloud Messaging.
type FCMGateway struct {
	client multicastClient
}

// NewFCMGateway initialises a Firebase app from a service account file.
// An empty path falls back to Application Default Credentials.
func NewFCMGateway(ctx context.Context, credentialsFile string) (*FCMGateway, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp error: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase messaging error: %w", err)
	}
	return &FCMGateway{client: client}, nil
}

// SendMulticast sends msg to every token in one FCM call.
func (g *FCMGateway) SendMulticast(ctx context.Context, tokens []string, msg Message) (*BatchResult, error) {
	if len(tokens) > MaxMulticastTokens {
		return nil, ErrTooManyTokens
	}

	resp, err := g.client.SendEachForMulticast(ctx, buildMulticast(tokens, msg))
	if err != nil {
		return nil, fmt.Errorf("fcm: %w", err)
	}

	res := &BatchResult{
		SuccessCount: resp.SuccessCount,
		FailureCount: resp.FailureCount,
		Responses:    make([]SendResult, len(tokens)),
	}
	for i, token := range tokens {
		r := SendResult{Token: token}
		if i < len(resp.Responses) && resp.Responses[i] != nil {
			r.Success = resp.Responses[i].Success
			r.Err = resp.Responses[i].Error
		}
		if r.Err != nil {
			log.WithFields(log.Fields{
				"token":        token,
				"unregistered": messaging.IsUnregistered(r.Err),
			}).WithError(r.Err).Debug("FCM delivery failed")
		}
		res.Responses[i] = r
	}
	return res, nil
}

func buildMulticast(tokens []string, msg Message) *messaging.MulticastMessage {
	priority := msg.Priority
	if priority == "" {
		priority = PriorityHigh
	}
	sound := msg.Sound
	if sound == "" {
		sound = defaultSound
	}
	channelID := msg.ChannelID
	if channelID == "" {
		channelID = defaultChannelID
	}

	aps := &messaging.Aps{Sound: sound}
	if msg.Badge > 0 {
		badge := msg.Badge
		aps.Badge = &badge
	}
	apnsPriority := "10"
	if priority == PriorityNormal {
		apnsPriority = "5"
	}

	return &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
		Android: &messaging.AndroidConfig{
			Priority: priority,
			Notification: &messaging.AndroidNotification{
				Sound:     sound,
				ChannelID: channelID,
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{"apns-priority": apnsPriority},
			Payload: &messaging.APNSPayload{Aps: aps},
		},
	}
}
