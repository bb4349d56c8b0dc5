// Package sms delivers OTP text messages.
package sms

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// ErrMissingCredentials is returned when the Twilio sender is not configured.
var ErrMissingCredentials = errors.New("missing Twilio credentials")

// Sender delivers a text message to a phone number.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSender sends SMS through Twilio Programmable Messaging.
type TwilioSender struct {
	api  messageCreator
	from string
}

// NewTwilioSender creates a sender for the given account and from number.
func NewTwilioSender(accountSid, authToken, from string) (*TwilioSender, error) {
	if accountSid == "" || authToken == "" || from == "" {
		return nil, ErrMissingCredentials
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSid,
		Password: authToken,
	})
	return &TwilioSender{api: client.Api, from: from}, nil
}

// Send sends body to the E.164 number to.
func (t *TwilioSender) Send(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(t.from)
	params.SetTo(to)
	params.SetBody(body)

	resp, err := t.api.CreateMessage(params)
	if err != nil {
		log.WithFields(log.Fields{"to": to}).WithError(err).Error("Failed to send SMS")
		return fmt.Errorf("twilio: %w", err)
	}

	fields := log.Fields{"to": to}
	if resp != nil && resp.Sid != nil {
		fields["sid"] = *resp.Sid
	}
	log.WithFields(fields).Info("SMS sent")
	return nil
}

// LogSender logs messages instead of sending them. For local development.
type LogSender struct{}

// Send logs the message.
func (LogSender) Send(ctx context.Context, to, body string) error {
	log.WithFields(log.Fields{"to": to, "body": body}).Info("SMS (log driver)")
	return nil
}

// OTPMessage is the text sent with a login code.
func OTPMessage(code string, ttlMinutes int) string {
	return fmt.Sprintf("Your verification code is %s. It expires in %d minutes. Do not share it with anyone.", code, ttlMinutes)
}
